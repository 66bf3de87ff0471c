package credential

import "errors"

// Domain errors for the credential package.
var (
	// ErrNotFound is returned when an alias does not exist.
	ErrNotFound = errors.New("credential: not found")

	// ErrAliasExists is returned when adding an alias that is already registered.
	ErrAliasExists = errors.New("credential: alias already exists")

	// ErrMACExists is returned when adding a MAC that another alias already uses.
	ErrMACExists = errors.New("credential: MAC already registered")

	// ErrInvalidAlias is returned when an alias is empty or too long.
	ErrInvalidAlias = errors.New("credential: invalid alias")

	// ErrInvalidMAC is returned when a MAC is not in xx:xx:xx:xx:xx:xx form.
	ErrInvalidMAC = errors.New("credential: invalid MAC")

	// ErrInvalidPasscode is returned when a passcode is not exactly 4 digits.
	ErrInvalidPasscode = errors.New("credential: invalid passcode")
)
