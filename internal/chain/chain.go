package chain

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// maxLineSize bounds a single block line.
	maxLineSize = 64 * 1024
)

// Logger is the logging interface used by Chain and Validator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Chain is the append-only log file.
type Chain struct {
	path   string
	mu     sync.Mutex
	logger Logger
}

// Open prepares the log at path, creating its directory and an empty file
// when absent. Existing content is never modified.
func Open(path string) (*Chain, error) {
	if path == "" {
		return nil, errors.New("chain: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating chain directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("creating chain file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing chain file: %w", err)
	}
	return &Chain{path: path, logger: noopLogger{}}, nil
}

// SetLogger sets the logger.
func (c *Chain) SetLogger(logger Logger) {
	c.logger = logger
}

// Path returns the log file location.
func (c *Chain) Path() string {
	return c.path
}

// Append chains e onto the last readable block and writes it as one new
// line. The block is fully formed before the file is opened for writing.
func (c *Chain) Append(e Entry) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.lastHash()
	b, err := newBlock(e, prev)
	if err != nil {
		return Block{}, err
	}
	line, err := encodeCompact(b)
	if err != nil {
		return Block{}, err
	}

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions)
	if err != nil {
		return Block{}, fmt.Errorf("opening chain for append: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close() //nolint:errcheck // error path
		return Block{}, fmt.Errorf("writing block: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck // error path
		return Block{}, fmt.Errorf("syncing chain: %w", err)
	}
	if err := f.Close(); err != nil {
		return Block{}, fmt.Errorf("closing chain: %w", err)
	}

	c.logger.Debug("block appended", "event", b.Event, "timestamp", b.Timestamp, "hash", b.CurrHash)
	return b, nil
}

// lastHash returns curr_hash of the last parseable line, or Genesis when
// the log is empty or cannot be read.
func (c *Chain) lastHash() string {
	hash := Genesis
	err := c.scan(func(lineNo int, line []byte) error {
		b, err := parseBlock(line)
		if err != nil {
			c.logger.Warn("skipping unreadable chain line", "line", lineNo, "error", err)
			return nil
		}
		hash = b.CurrHash
		return nil
	})
	if err != nil {
		c.logger.Warn("chain unreadable, chaining from genesis", "error", err)
		return Genesis
	}
	return hash
}

// Validate walks the whole log. It returns the number of blocks read and
// an *IntegrityError at the first block whose prev_hash differs from the
// recomputed hash of its predecessor, or at the first line that does not
// parse. An empty log and a single-block log are valid; the last block has
// no successor to vouch for it.
//
// A stored curr_hash that disagrees with its block's content is logged but
// is not a failure: the link to the successor is what Validate checks.
//
// Validate holds the append lock for the whole scan so it never sees a
// half-written line.
func (c *Chain) Validate() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		count    int
		prevHash string
	)

	err := c.scan(func(lineNo int, line []byte) error {
		b, err := parseBlock(line)
		if err != nil {
			return &IntegrityError{Line: lineNo, Reason: "unparsable block", Err: ErrMalformed}
		}

		computed, err := b.ComputeHash()
		if err != nil {
			return &IntegrityError{Line: lineNo, Timestamp: b.Timestamp, Reason: err.Error(), Err: ErrMalformed}
		}
		if count > 0 && b.PrevHash != prevHash {
			return &IntegrityError{
				Line:      lineNo,
				Timestamp: b.Timestamp,
				Reason:    "prev_hash does not match previous block",
				Err:       ErrTampered,
			}
		}
		if b.CurrHash != computed {
			c.logger.Warn("stored curr_hash does not match block content",
				"line", lineNo,
				"timestamp", b.Timestamp,
			)
		}

		prevHash = computed
		count++
		return nil
	})
	return count, err
}

// Blocks returns every block in order. Unparsable lines are an error.
func (c *Chain) Blocks() ([]Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var blocks []Block
	err := c.scan(func(lineNo int, line []byte) error {
		b, err := parseBlock(line)
		if err != nil {
			return &IntegrityError{Line: lineNo, Reason: "unparsable block", Err: ErrMalformed}
		}
		blocks = append(blocks, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// Print writes an operator listing of every block.
func (c *Chain) Print(w io.Writer) error {
	blocks, err := c.Blocks()
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		_, err := fmt.Fprintln(w, "Audit chain is empty.")
		return err
	}

	bw := bufio.NewWriter(w)
	for i, b := range blocks {
		fmt.Fprintf(bw, "Block %d:\n", i)
		fmt.Fprintf(bw, "  Timestamp:  %s\n", b.Timestamp)
		fmt.Fprintf(bw, "  Event:      %s\n", b.Event)
		fmt.Fprintf(bw, "  Mag meas:   %s\n", b.MagMeas)
		fmt.Fprintf(bw, "  Ultra meas: %s\n", b.UltraMeas)
		fmt.Fprintf(bw, "  User:       %s\n", b.User)
		fmt.Fprintf(bw, "  MAC:        %s\n", b.MAC)
		fmt.Fprintf(bw, "  Prev hash:  %s\n", b.PrevHash)
		fmt.Fprintf(bw, "  Curr hash:  %s\n", b.CurrHash)
	}
	return bw.Flush()
}

// scan calls fn for every non-blank line. Line numbers are 1-based and
// count blank lines.
func (c *Chain) scan(fn func(lineNo int, line []byte) error) error {
	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("opening chain: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), maxLineSize)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading chain: %w", err)
	}
	return nil
}
