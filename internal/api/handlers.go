package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/chain"
	"github.com/nerrad567/gray-logic-access/internal/credential"
	"github.com/nerrad567/gray-logic-access/internal/threshold"
)

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// stateResponse is the body of GET /state.
type stateResponse struct {
	access.Snapshot
	StateNames []string `json:"state_names"`
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		Snapshot:   s.state.Snapshot(),
		StateNames: access.StateNames(),
	})
}

// ─── Audit chain ───────────────────────────────────────────────────

type chainResponse struct {
	Blocks []chain.Block `json:"blocks"`
	Count  int           `json:"count"`
}

func (s *Server) handleListBlocks(w http.ResponseWriter, _ *http.Request) {
	blocks, err := s.chain.Blocks()
	if err != nil {
		s.logger.Error("reading audit chain failed", "error", err)
		writeInternalError(w, "failed to read audit chain")
		return
	}
	if blocks == nil {
		blocks = []chain.Block{}
	}
	writeJSON(w, http.StatusOK, chainResponse{Blocks: blocks, Count: len(blocks)})
}

// handleValidateChain runs a validation pass now. A tampered chain is still a 200:
// the result body carries valid=false.
func (s *Server) handleValidateChain(w http.ResponseWriter, r *http.Request) {
	res := s.validator.Check()
	s.ChainValidated(res)
	s.record(r, audit.ActionValidate, audit.EntityChain, "", map[string]any{
		"valid":  res.Valid,
		"blocks": res.Blocks,
	})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePrintChain(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.chain.Print(w); err != nil {
		s.logger.Error("printing audit chain failed", "error", err)
	}
}

// ─── Credentials ───────────────────────────────────────────────────

// credentialRequest is the body of POST /credentials. The passcode is write-only.
type credentialRequest struct {
	Alias    string `json:"alias"`
	MAC      string `json:"mac"`
	Passcode string `json:"passcode"`
}

func (s *Server) handleListCredentials(w http.ResponseWriter, _ *http.Request) {
	creds := s.credentials.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"credentials": creds,
		"count":       len(creds),
	})
}

func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	c, ok := s.credentials.Get(alias)
	if !ok {
		writeNotFound(w, "credential not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	created, err := s.credentials.Add(r.Context(), credential.Credential{
		Alias:    req.Alias,
		MAC:      req.MAC,
		Passcode: req.Passcode,
	})
	switch {
	case err == nil:
	case errors.Is(err, credential.ErrInvalidAlias),
		errors.Is(err, credential.ErrInvalidMAC),
		errors.Is(err, credential.ErrInvalidPasscode):
		writeValidationError(w, err.Error())
		return
	case errors.Is(err, credential.ErrAliasExists), errors.Is(err, credential.ErrMACExists):
		writeConflict(w, err.Error())
		return
	default:
		s.logger.Error("creating credential failed", "alias", req.Alias, "error", err)
		writeInternalError(w, "failed to create credential")
		return
	}

	s.logger.Info("credential added", "alias", created.Alias, "mac", created.MAC, "operator", operatorFrom(r.Context()))
	s.record(r, audit.ActionCreate, audit.EntityCredential, created.Alias, map[string]any{"mac": created.MAC})
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	err := s.credentials.Remove(r.Context(), alias)
	switch {
	case err == nil:
	case errors.Is(err, credential.ErrNotFound):
		writeNotFound(w, "credential not found")
		return
	default:
		s.logger.Error("removing credential failed", "alias", alias, "error", err)
		writeInternalError(w, "failed to remove credential")
		return
	}

	s.logger.Info("credential removed", "alias", alias, "operator", operatorFrom(r.Context()))
	s.record(r, audit.ActionDelete, audit.EntityCredential, alias, nil)
	w.WriteHeader(http.StatusNoContent)
}

// ─── Thresholds ────────────────────────────────────────────────────

type thresholdRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.thresholds.All())
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	kind, err := threshold.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeNotFound(w, "unknown threshold kind")
		return
	}

	var req thresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	previous := s.thresholds.All()[kind]
	err = s.thresholds.Set(r.Context(), kind, req.Value)
	switch {
	case err == nil:
	case errors.Is(err, threshold.ErrInvalidValue):
		writeValidationError(w, err.Error())
		return
	default:
		s.logger.Error("setting threshold failed", "kind", kind, "error", err)
		writeInternalError(w, "failed to set threshold")
		return
	}

	s.logger.Info("threshold updated", "kind", kind, "value", req.Value, "operator", operatorFrom(r.Context()))
	s.record(r, audit.ActionUpdate, audit.EntityThreshold, string(kind), map[string]any{
		"from": previous,
		"to":   req.Value,
	})
	writeJSON(w, http.StatusOK, s.thresholds.All())
}

// ─── Operator journal ──────────────────────────────────────────────

// handleListAudit returns journal entries, newest first.
//
// Query parameters: action, entity_type, entity_id, user_id, limit (default 50, max 200), offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "operator journal not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing operator journal failed", "error", err)
		writeInternalError(w, "failed to list operator journal")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
