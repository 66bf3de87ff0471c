package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Operator is the configured operator account.
type Operator struct {
	Username     string
	PasswordHash string
	TOTPSecret   string
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
	TTL         time.Duration
}

// totpOpts matches authenticator apps: 30 s period, six digits, SHA1, one step of skew.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Authenticator checks operator logins and issues access tokens.
type Authenticator struct {
	op     Operator
	secret string
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator signing tokens with secret.
func NewAuthenticator(op Operator, secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{
		op:     op,
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// TOTPEnabled reports whether logins require a second factor.
func (a *Authenticator) TOTPEnabled() bool {
	return a.op.TOTPSecret != ""
}

// Login verifies the username, password and (when enabled) TOTP code.
// Every mismatch yields ErrInvalidCredentials so callers cannot tell which factor failed.
func (a *Authenticator) Login(username, password, code string) (Token, error) {
	if a.op.PasswordHash == "" {
		return Token{}, ErrOperatorNotConfigured
	}

	// The password is always checked so a wrong username costs the same as a wrong password.
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.op.Username)) == 1
	passOK, err := VerifyPassword(password, a.op.PasswordHash)
	if err != nil {
		return Token{}, fmt.Errorf("verifying operator password: %w", err)
	}
	if !userOK || !passOK {
		return Token{}, ErrInvalidCredentials
	}

	now := a.now()
	if a.TOTPEnabled() {
		code = strings.TrimSpace(code)
		if code == "" {
			return Token{}, ErrTOTPRequired
		}
		valid, err := totp.ValidateCustom(code, a.op.TOTPSecret, now.UTC(), totpOpts)
		if err != nil || !valid {
			return Token{}, ErrInvalidCredentials
		}
	}

	signed, err := GenerateAccessToken(a.op.Username, a.secret, a.ttl, now)
	if err != nil {
		return Token{}, err
	}
	return Token{
		AccessToken: signed,
		ExpiresAt:   now.Add(a.ttl),
		TTL:         a.ttl,
	}, nil
}

// Verify parses a bearer token issued by Login.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	return ParseToken(token, a.secret)
}
