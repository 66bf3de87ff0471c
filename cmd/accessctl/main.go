// accessctl is the offline operator tool for a Gray Logic access node.
//
// It reads the audit chain file directly, so it works while the node is
// stopped or unreachable:
//
//	accessctl validate [-log path]   verify every block of the audit chain
//	accessctl print [-log path]      list every block
//	accessctl states                 print the control loop state table
//	accessctl hash-password [-stdin] hash an operator password for the config
//	accessctl shell [-log path]      interactive console
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/chain"
)

// defaultChainPath matches the node's default chain.path.
const defaultChainPath = "./data/chain.log"

// errUsage marks a command line that could not be parsed. Usage has already
// been printed when it is returned.
var errUsage = errors.New("usage")

const usage = `Usage: accessctl <command> [flags]

Commands:
  validate [-log path]    verify the audit chain
  print [-log path]       list every block of the audit chain
  states                  print the control loop state table
  hash-password [-stdin]  hash an operator password (argon2id)
  shell [-log path]       interactive console
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// run dispatches one command.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "validate":
		path, err := parseLogFlag(cmd, rest, stderr)
		if err != nil {
			return err
		}
		ledger, err := openExisting(path)
		if err != nil {
			return err
		}
		return validate(ledger, stdout)
	case "print":
		path, err := parseLogFlag(cmd, rest, stderr)
		if err != nil {
			return err
		}
		ledger, err := openExisting(path)
		if err != nil {
			return err
		}
		return ledger.Print(stdout)
	case "states":
		printStates(stdout)
		return nil
	case "hash-password":
		return hashPassword(rest, stdin, stdout, stderr)
	case "shell":
		path, err := parseLogFlag(cmd, rest, stderr)
		if err != nil {
			return err
		}
		ledger, err := openExisting(path)
		if err != nil {
			return err
		}
		return runShell(ledger, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return errUsage
	}
}

// parseLogFlag parses the -log flag shared by the chain commands.
// GRAYLOGIC_CHAIN_PATH overrides the default, as it does for the node.
func parseLogFlag(cmd string, args []string, stderr io.Writer) (string, error) {
	def := defaultChainPath
	if v := os.Getenv("GRAYLOGIC_CHAIN_PATH"); v != "" {
		def = v
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("log", def, "path to the audit chain file")
	if err := fs.Parse(args); err != nil {
		return "", errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return "", errUsage
	}
	return *path, nil
}

// openExisting opens a chain file without creating it.
func openExisting(path string) (*chain.Chain, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audit chain %s: %w", path, err)
	}
	return chain.Open(path)
}

// validate reports the result of a full chain check. A tampered chain is
// returned as an error so the exit status reflects it.
func validate(ledger *chain.Chain, w io.Writer) error {
	n, err := ledger.Validate()
	if err != nil {
		var integrity *chain.IntegrityError
		if errors.As(err, &integrity) {
			fmt.Fprintf(w, "Audit chain INVALID: %v\n", integrity)
		}
		return fmt.Errorf("validating %s: %w", ledger.Path(), err)
	}
	fmt.Fprintf(w, "Audit chain valid: %d blocks\n", n)
	return nil
}

func printStates(w io.Writer) {
	for i, name := range access.StateNames() {
		fmt.Fprintf(w, "%2d  %s\n", i, name)
	}
}

// hashPassword prints an argon2id hash for security.operator.password_hash.
// With -stdin the password is the first line of stdin; otherwise it is
// prompted for twice without echo.
func hashPassword(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fromStdin := fs.Bool("stdin", false, "read the password from stdin")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	var (
		password string
		err      error
	)
	if *fromStdin {
		password, err = readLine(stdin)
	} else {
		password, err = promptPassword()
	}
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}

func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return "", errors.New("reading password: no input")
	}
	return strings.TrimRight(sc.Text(), "\r"), nil
}

func promptPassword() (string, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	first, err := line.PasswordPrompt("Password: ")
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	second, err := line.PasswordPrompt("Confirm:  ")
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}
