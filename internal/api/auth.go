package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// ticketBytes is the number of random bytes in a WebSocket ticket.
const ticketBytes = 32

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTP     string `json:"totp,omitempty"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleLogin authenticates the operator and returns a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	tok, err := s.auth.Login(req.Username, req.Password, req.TOTP)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrTOTPRequired):
		writeError(w, http.StatusUnauthorized, ErrCodeTOTPRequired, "totp code required")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.logger.Warn("operator login failed", "username", req.Username, "remote", clientKey(r))
		s.recordLogin(req.Username, audit.ActionLoginFailed, clientKey(r))
		writeUnauthorized(w, "invalid credentials")
		return
	case errors.Is(err, auth.ErrOperatorNotConfigured):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "operator account not configured")
		return
	default:
		s.logger.Error("operator login error", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	s.logger.Info("operator logged in", "username", req.Username, "remote", clientKey(r))
	s.recordLogin(req.Username, audit.ActionLogin, clientKey(r))

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: tok.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(tok.TTL.Seconds()),
	})
}

func (s *Server) recordLogin(username, action, remote string) {
	if s.journal == nil {
		return
	}
	s.journal.Record(audit.Entry{
		Action:     action,
		EntityType: audit.EntityOperator,
		EntityID:   username,
		UserID:     username,
		Source:     audit.SourceAPI,
		Details:    map[string]any{"remote": remote},
	})
}

// handleWSTicket issues a single-use WebSocket ticket so the bearer token
// never appears in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.tickets.issue(operatorFrom(r.Context()), time.Now())
	if err != nil {
		s.logger.Error("generating websocket ticket failed", "error", err)
		writeInternalError(w, "failed to issue ticket")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketStore holds pending WebSocket tickets. Tickets are single-use.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
}

type ticketEntry struct {
	operator  string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

func (t *ticketStore) issue(operator string, now time.Time) (string, error) {
	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	ticket := hex.EncodeToString(b)

	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{operator: operator, expiresAt: now.Add(ticketTTL)}
	t.mu.Unlock()
	return ticket, nil
}

// redeem consumes a ticket, returning its operator when still valid.
func (t *ticketStore) redeem(ticket string, now time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return "", false
	}
	delete(t.tickets, ticket)
	if !now.Before(entry.expiresAt) {
		return "", false
	}
	return entry.operator, true
}

func (t *ticketStore) expire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ticket, entry := range t.tickets {
		if !now.Before(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

func (t *ticketStore) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tickets)
}
