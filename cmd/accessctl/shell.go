package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"

	"github.com/nerrad567/gray-logic-access/internal/chain"
)

const shellHelp = `Commands:
  validate   verify the audit chain
  print      list every block
  states     print the control loop state table
  help       show this message
  exit       leave the shell
`

var shellCommands = []string{"validate", "print", "states", "help", "exit"}

// console executes shell commands against one chain file.
type console struct {
	ledger *chain.Chain
	out    io.Writer
}

// exec runs one command line. It returns true when the shell should exit.
// Command failures are printed, never returned: a tampered chain must not
// end the session.
func (c *console) exec(input string) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "validate":
		if err := validate(c.ledger, c.out); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	case "print":
		if err := c.ledger.Print(c.out); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	case "states":
		printStates(c.out)
	case "help", "?":
		fmt.Fprint(c.out, shellHelp)
	case "exit", "quit":
		return true
	default:
		fmt.Fprintf(c.out, "unknown command %q, type help\n", fields[0])
	}
	return false
}

// complete offers command names for tab completion.
func complete(line string) []string {
	var out []string
	prefix := strings.ToLower(line)
	for _, cmd := range shellCommands {
		if strings.HasPrefix(cmd, prefix) {
			out = append(out, cmd)
		}
	}
	return out
}

// runShell reads commands until exit, EOF or Ctrl+C.
func runShell(ledger *chain.Chain, out io.Writer) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(complete)

	c := &console{ledger: ledger, out: out}
	fmt.Fprintf(out, "accessctl shell on %s, type help for commands\n", ledger.Path())

	for {
		input, err := line.Prompt("accessctl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return fmt.Errorf("reading command: %w", err)
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		if c.exec(input) {
			return nil
		}
	}
}
