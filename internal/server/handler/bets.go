package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alanyoungcy/surebet/internal/arbitrage"
	"github.com/alanyoungcy/surebet/internal/domain"
	"github.com/alanyoungcy/surebet/internal/service"
)

// BetService defines the methods that the bet and pair handlers require.
type BetService interface {
	List(ctx context.Context, filter domain.BetFilter) ([]domain.Bet, error)
	Get(ctx context.Context, id string) (domain.Bet, error)
	Pair(ctx context.Context, pairID string) (service.PairView, error)
	CreatePair(ctx context.Context, data domain.OCRData) (domain.Bet, domain.Bet, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Bet, error)
	Summary(ctx context.Context, filter domain.BetFilter) (arbitrage.Summary, error)
	History(ctx context.Context, subject string) ([]domain.AuditEntry, error)
}

// BetHandler serves the bet endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logHandler(logger, "bets")}
}

// List returns bets ordered by creation time unless another sort is asked.
// GET /api/bets?status=&search=&sort=&limit=&offset=
func (h *BetHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseBetFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bets, err := h.bets.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, bets)
}

type createPairResponse struct {
	Success bool         `json:"success"`
	Bets    []domain.Bet `json:"bets"`
	PairID  string       `json:"pairId"`
}

// Create validates and stores a verified pair.
// POST /api/bets
func (h *BetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var data domain.OCRData
	if err := decodeJSON(w, r, &data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, b, err := h.bets.CreatePair(r.Context(), data)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, createPairResponse{
		Success: true,
		Bets:    []domain.Bet{a, b},
		PairID:  a.PairID,
	})
}

// Get returns a single bet.
// GET /api/bets/{id}
func (h *BetHandler) Get(w http.ResponseWriter, r *http.Request) {
	bet, err := h.bets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus settles a bet and returns the updated leg.
// PATCH /api/bets/{id}/status
func (h *BetHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bet, err := h.bets.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// Summary returns dashboard statistics over the filtered bets.
// GET /api/bets/summary
func (h *BetHandler) Summary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseBetFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := h.bets.Summary(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Pair returns both legs of a pair with recomputed metrics.
// GET /api/pairs/{pairId}
func (h *BetHandler) Pair(w http.ResponseWriter, r *http.Request) {
	view, err := h.bets.Pair(r.Context(), chi.URLParam(r, "pairId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// History returns the audit trail of a pair.
// GET /api/pairs/{pairId}/history
func (h *BetHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.bets.History(r.Context(), chi.URLParam(r, "pairId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
