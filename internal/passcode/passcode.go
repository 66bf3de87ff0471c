// Package passcode verifies keypad entry against a credential's passcode.
//
// A Verifier lives for one mobile pairing session. It buffers up to four
// digits, accepts Clear, Delete and Enter keys, and allows three wrong
// codes before locking the session out. Every key press that does not end
// the session produces a feedback line for the paired display.
package passcode

import "strings"

const (
	// Length is the number of digits in a passcode.
	Length = 4

	// MaxAttempts is the number of wrong codes allowed per session.
	MaxAttempts = 3

	// Placeholder marks an unfilled slot in feedback.
	Placeholder = '-'
)

// Keypad keys with a meaning beyond digits.
const (
	KeyClear  = 'C'
	KeyDelete = 'D'
	KeyEnter  = 'E'
)

// Display messages sent on session end and on a wrong code.
const (
	MsgAccepted  = "Y"
	MsgLockedOut = "F"
	MsgIncorrect = "N"
)

// closedFeedback is shown once the session has ended.
var closedFeedback = "-:" + strings.Repeat(string(Placeholder), Length)

// Outcome is the result of one key press.
type Outcome int

const (
	// Pending means the session continues.
	Pending Outcome = iota
	// Accepted means the correct passcode was entered.
	Accepted
	// LockedOut means MaxAttempts wrong codes were entered.
	LockedOut
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case LockedOut:
		return "locked_out"
	default:
		return "pending"
	}
}

// Result tells the caller what to do after a key press.
type Result struct {
	Outcome Outcome

	// Send lists the messages to write to the paired display, in order.
	// It is empty when the key was ignored.
	Send []string
}

// Verifier is the per-session entry state. It is not safe for concurrent
// use; the control loop owns it.
type Verifier struct {
	expected string
	buf      []byte
	attempts int
	done     bool
}

// New starts a session checking entries against expected.
func New(expected string) *Verifier {
	return &Verifier{
		expected: expected,
		buf:      make([]byte, 0, Length),
	}
}

// Press handles one key. Keys other than digits, Clear, Delete and Enter
// are ignored, as is any key after the session has ended.
func (v *Verifier) Press(key rune) Result {
	if v.done {
		return Result{Outcome: v.outcome()}
	}

	switch {
	case key >= '0' && key <= '9':
		if len(v.buf) >= Length {
			return Result{}
		}
		v.buf = append(v.buf, byte(key))

	case key == KeyClear:
		v.buf = v.buf[:0]

	case key == KeyDelete:
		if len(v.buf) > 0 {
			v.buf = v.buf[:len(v.buf)-1]
		}

	case key == KeyEnter:
		if len(v.buf) != Length {
			return Result{}
		}
		return v.submit()

	default:
		return Result{}
	}

	return Result{Outcome: Pending, Send: []string{v.Feedback()}}
}

func (v *Verifier) submit() Result {
	entered := string(v.buf)
	v.buf = v.buf[:0]

	if entered == v.expected {
		v.done = true
		v.attempts = 0
		return Result{Outcome: Accepted, Send: []string{closedFeedback, MsgAccepted}}
	}

	v.attempts++
	if v.attempts >= MaxAttempts {
		v.done = true
		return Result{Outcome: LockedOut, Send: []string{closedFeedback, MsgLockedOut}}
	}
	return Result{Outcome: Pending, Send: []string{MsgIncorrect, v.Feedback()}}
}

func (v *Verifier) outcome() Outcome {
	if v.attempts >= MaxAttempts {
		return LockedOut
	}
	return Accepted
}

// Feedback renders the remaining attempts and the masked buffer, e.g.
// "3:12--".
func (v *Verifier) Feedback() string {
	var b strings.Builder
	b.Grow(2 + Length)
	b.WriteByte(byte('0' + v.Remaining()))
	b.WriteByte(':')
	b.Write(v.buf)
	for i := len(v.buf); i < Length; i++ {
		b.WriteByte(Placeholder)
	}
	return b.String()
}

// Remaining returns how many wrong codes may still be entered.
func (v *Verifier) Remaining() int {
	return MaxAttempts - v.attempts
}

// Entered returns how many digits are buffered.
func (v *Verifier) Entered() int {
	return len(v.buf)
}
