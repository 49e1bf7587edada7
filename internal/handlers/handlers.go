package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/internal/chain"
	"rfqmarket/internal/docstore"
	"rfqmarket/internal/eval"
)

// AnchorClient is the chain-anchor collaborator. A nil client disables
// anchoring; records are then created off-chain only.
type AnchorClient interface {
	CreateRFQ(ctx context.Context, title, contentHash string, deadline int64, category string, budget int64, location string) (chain.AnchorResult, error)
	CloseRFQ(ctx context.Context, onchainID int64) (string, error)
	SubmitBid(ctx context.Context, onchainID int64, price int64, docHash string) (chain.AnchorResult, error)
}

// Handler wires the stores and collaborators behind the HTTP API.
type Handler struct {
	Store  StorageInterface
	Eval   *eval.Service
	Anchor AnchorClient
	Docs   *docstore.Store

	SessionTTL time.Duration
	// QualificationCap bounds qualifications derived from document text.
	QualificationCap int

	Log *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(store StorageInterface, evalSvc *eval.Service, anchor AnchorClient, docs *docstore.Store, sessionTTL time.Duration, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Handler{
		Store: store, Eval: evalSvc, Anchor: anchor, Docs: docs,
		SessionTTL: sessionTTL, QualificationCap: 4000, Log: log,
	}
}

// PingHandler answers "ok" for liveness checks.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storeError maps storage sentinels onto HTTP statuses.
func (h *Handler) storeError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, db.ErrConflict):
		writeError(w, http.StatusConflict, "conflicting state")
	default:
		h.Log.Error("storage failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseDate accepts the date formats clients send. Empty input is nil.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("invalid date format")
}
