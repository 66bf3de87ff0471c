package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrTampered means a block's prev_hash does not match its predecessor.
	ErrTampered = errors.New("chain: tampered")

	// ErrMalformed means a line is not a well-formed block.
	ErrMalformed = errors.New("chain: malformed block")
)

// IntegrityError locates the first failure found by Validate.
type IntegrityError struct {
	Line      int    // 1-based line number in the log file
	Timestamp string // timestamp of the offending block, if it parsed
	Reason    string
	Err       error // ErrTampered or ErrMalformed
}

func (e *IntegrityError) Error() string {
	if e.Timestamp != "" {
		return fmt.Sprintf("%v at line %d (timestamp %s): %s", e.Err, e.Line, e.Timestamp, e.Reason)
	}
	return fmt.Sprintf("%v at line %d: %s", e.Err, e.Line, e.Reason)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}
