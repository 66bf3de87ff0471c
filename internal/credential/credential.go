package credential

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxAliasLength bounds an alias in bytes.
	MaxAliasLength = 32

	// PasscodeLength is the number of digits in a passcode.
	PasscodeLength = 4

	macLength = 17
)

// Credential is one authorised user.
type Credential struct {
	Alias     string    `json:"alias"`
	MAC       string    `json:"mac"`
	Passcode  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks every field.
func (c Credential) Validate() error {
	if err := ValidateAlias(c.Alias); err != nil {
		return err
	}
	if err := ValidateMAC(c.MAC); err != nil {
		return err
	}
	return ValidatePasscode(c.Passcode)
}

// ValidateAlias requires a non-empty alias of at most MaxAliasLength bytes.
func ValidateAlias(alias string) error {
	if strings.TrimSpace(alias) == "" {
		return fmt.Errorf("%w: alias is required", ErrInvalidAlias)
	}
	if len(alias) > MaxAliasLength {
		return fmt.Errorf("%w: alias exceeds %d characters", ErrInvalidAlias, MaxAliasLength)
	}
	return nil
}

// ValidateMAC requires six colon-separated pairs of hex digits.
func ValidateMAC(mac string) error {
	if len(mac) != macLength {
		return fmt.Errorf("%w: %q must be %d characters", ErrInvalidMAC, mac, macLength)
	}
	for i := 0; i < macLength; i++ {
		ch := mac[i]
		if i%3 == 2 {
			if ch != ':' {
				return fmt.Errorf("%w: %q expected ':' at position %d", ErrInvalidMAC, mac, i)
			}
			continue
		}
		if !isHex(ch) {
			return fmt.Errorf("%w: %q has non-hex character at position %d", ErrInvalidMAC, mac, i)
		}
	}
	return nil
}

// ValidatePasscode requires exactly PasscodeLength ASCII digits.
func ValidatePasscode(passcode string) error {
	if len(passcode) != PasscodeLength {
		return fmt.Errorf("%w: must be %d digits", ErrInvalidPasscode, PasscodeLength)
	}
	for i := 0; i < len(passcode); i++ {
		if passcode[i] < '0' || passcode[i] > '9' {
			return fmt.Errorf("%w: must contain digits only", ErrInvalidPasscode)
		}
	}
	return nil
}

// NormalizeMAC returns mac in upper case, the form stored and compared.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}

func isHex(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}
