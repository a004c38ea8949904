package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/surebet/internal/arbitrage"
	"github.com/alanyoungcy/surebet/internal/domain"
)

// BetConfig holds settlement policy switches.
type BetConfig struct {
	// AllowReset permits moving a resolved leg back to pending.
	AllowReset bool
}

// PairView is a pair with display metrics recomputed from its stored legs.
type PairView struct {
	domain.Pair
	Metrics          arbitrage.PairMetrics `json:"metrics"`
	GuaranteedProfit decimal.Decimal       `json:"guaranteedProfit"`
	Violations       []arbitrage.Violation `json:"violations,omitempty"`
}

// BetService owns the bet lifecycle: pair creation and settlement. Every
// mutation goes through the BetStore; events, audit rows and notifications
// are best-effort and only logged when they fail.
type BetService struct {
	bets   domain.BetStore
	audit  domain.AuditStore
	events domain.EventPublisher
	cfg    BetConfig
	logger *slog.Logger
}

// NewBetService creates a BetService. audit and events may be nil.
func NewBetService(
	bets domain.BetStore,
	audit domain.AuditStore,
	events domain.EventPublisher,
	cfg BetConfig,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		bets:   bets,
		audit:  audit,
		events: events,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "bet_service")),
	}
}

// List returns bets matching the filter.
func (s *BetService) List(ctx context.Context, filter domain.BetFilter) ([]domain.Bet, error) {
	bets, err := s.bets.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list: %w", err)
	}
	return bets, nil
}

// Get returns one bet.
func (s *BetService) Get(ctx context.Context, id string) (domain.Bet, error) {
	bet, err := s.bets.GetByID(ctx, id)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: get %s: %w", id, err)
	}
	return bet, nil
}

// Pair returns both legs of a pair in position order, with recomputed
// metrics and any integrity violations found on the stored rows.
func (s *BetService) Pair(ctx context.Context, pairID string) (PairView, error) {
	legs, err := s.bets.ListByPair(ctx, pairID)
	if err != nil {
		return PairView{}, fmt.Errorf("bet_service: pair %s: %w", pairID, err)
	}
	if len(legs) == 0 {
		return PairView{}, fmt.Errorf("bet_service: pair %s: %w", pairID, domain.ErrNotFound)
	}
	if len(legs) != 2 {
		return PairView{}, fmt.Errorf("bet_service: pair %s has %d legs", pairID, len(legs))
	}

	a, b := legs[0], legs[1]
	if b.Position == domain.PositionA {
		a, b = b, a
	}
	return PairView{
		Pair:             domain.Pair{ID: pairID, A: a, B: b},
		Metrics:          arbitrage.PairMetricsOf(a, b),
		GuaranteedProfit: arbitrage.GuaranteedProfit(a.Stake, b.Stake, a.Payout, b.Payout),
		Violations:       arbitrage.ValidateStoredPair(a, b),
	}, nil
}

// CreatePair validates a paired submission, computes the pair metrics and
// persists both legs atomically. Invalid input yields *arbitrage.ValidationError.
func (s *BetService) CreatePair(ctx context.Context, data domain.OCRData) (domain.Bet, domain.Bet, error) {
	vs := arbitrage.ValidatePair(data.BetA, data.BetB)
	if data.GameDate.IsZero() {
		vs = append(vs, arbitrage.Violation{
			Field:   "gameDate",
			Code:    arbitrage.CodeRequired,
			Message: "must not be empty",
		})
	}
	if len(vs) > 0 {
		return domain.Bet{}, domain.Bet{}, &arbitrage.ValidationError{Violations: vs}
	}

	pairID := uuid.NewString()
	insA := newInsert(data.BetA, data.GameDate, pairID, domain.PositionA)
	insB := newInsert(data.BetB, data.GameDate, pairID, domain.PositionB)

	m := arbitrage.ComputePairMetrics(insA.Stake, insB.Stake, insA.Payout, insB.Payout)
	insA.TotalPairStake, insB.TotalPairStake = m.TotalStake, m.TotalStake
	insA.ProfitPercentage, insB.ProfitPercentage = m.ProfitPercentageA, m.ProfitPercentageB

	a, b, err := s.bets.CreatePair(ctx, insA, insB)
	if err != nil {
		return domain.Bet{}, domain.Bet{}, fmt.Errorf("bet_service: create pair: %w", err)
	}

	s.logger.InfoContext(ctx, "pair created",
		slog.String("pair_id", pairID),
		slog.String("total_stake", m.TotalStake.String()),
		slog.String("profit_pct_a", m.ProfitPercentageA.String()),
		slog.String("profit_pct_b", m.ProfitPercentageB.String()),
	)
	s.record(ctx, domain.BetEvent{
		Type:      domain.EventPairCreated,
		PairID:    pairID,
		Bets:      []domain.Bet{a, b},
		Timestamp: time.Now().UTC(),
	}, "pair.created", pairID, map[string]any{
		"betA":       a.ID,
		"betB":       b.ID,
		"totalStake": m.TotalStake.String(),
	})
	return a, b, nil
}

// newInsert builds a leg from already validated input.
func newInsert(in domain.LegInput, gameDate time.Time, pairID string, pos domain.Position) domain.BetInsert {
	odds, _ := arbitrage.ParseOdds(in.Odds)
	stake, _ := arbitrage.ParseMoney(in.Stake)
	payout, _ := arbitrage.ParseMoney(in.Payout)
	return domain.BetInsert{
		ID:           uuid.NewString(),
		BettingHouse: in.BettingHouse,
		Sport:        in.Sport,
		League:       in.League,
		TeamA:        in.TeamA,
		TeamB:        in.TeamB,
		BetType:      in.BetType,
		SelectedSide: in.SelectedSide,
		Odds:         odds,
		Stake:        stake,
		Payout:       payout,
		GameDate:     gameDate.UTC(),
		IsVerified:   true,
		PairID:       pairID,
		Position:     pos,
	}
}

// UpdateStatus moves a bet to status and returns the updated bet. Paired
// bets are settled under the pair lock so a win also resolves a pending
// sibling; unpaired bets get a conditional single-row write.
func (s *BetService) UpdateStatus(ctx context.Context, id, status string) (domain.Bet, error) {
	to, err := domain.ParseBetStatus(status)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: %q: %w", status, err)
	}

	bet, err := s.bets.GetByID(ctx, id)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: update status %s: %w", id, err)
	}

	var (
		changes []domain.StatusChange
		legs    []domain.Bet
	)
	if bet.Paired() {
		legs, err = s.bets.UpdatePair(ctx, bet.PairID, func(current []domain.Bet) ([]domain.StatusChange, error) {
			cs, err := arbitrage.Settle(current, id, to)
			if err != nil {
				return nil, err
			}
			if err := s.checkReset(cs[0]); err != nil {
				return nil, err
			}
			changes = cs
			return cs, nil
		})
	} else {
		change := domain.StatusChange{BetID: id, From: bet.Status, To: to}
		if err = s.checkReset(change); err == nil {
			var updated domain.Bet
			updated, err = s.bets.UpdateStatus(ctx, id, to, &change.From)
			legs = []domain.Bet{updated}
			changes = []domain.StatusChange{change}
		}
	}
	if err != nil {
		if errors.Is(err, domain.ErrSiblingWon) || errors.Is(err, domain.ErrStatusConflict) {
			s.logger.WarnContext(ctx, "settlement refused",
				slog.String("bet_id", id),
				slog.String("pair_id", bet.PairID),
				slog.String("to", string(to)),
				slog.String("error", err.Error()),
			)
		}
		return domain.Bet{}, fmt.Errorf("bet_service: update status %s: %w", id, err)
	}

	var primary domain.Bet
	for _, l := range legs {
		if l.ID == id {
			primary = l
		}
	}

	applied := effective(changes)
	if len(applied) == 0 {
		return primary, nil
	}

	subject := bet.PairID
	if subject == "" {
		subject = id
	}
	s.logger.InfoContext(ctx, "bet settled",
		slog.String("bet_id", id),
		slog.String("pair_id", bet.PairID),
		slog.String("to", string(to)),
		slog.Int("writes", len(applied)),
	)
	s.record(ctx, domain.BetEvent{
		Type:      domain.EventBetSettled,
		PairID:    bet.PairID,
		Bets:      legs,
		Changes:   applied,
		Timestamp: time.Now().UTC(),
	}, "bet.settled", subject, map[string]any{
		"betId":   id,
		"changes": applied,
	})
	return primary, nil
}

// checkReset enforces the pending-reset policy on the primary change.
func (s *BetService) checkReset(c domain.StatusChange) error {
	if c.To == domain.BetStatusPending && c.From.Resolved() && !s.cfg.AllowReset {
		return fmt.Errorf("%w: resetting a resolved bet to pending is disabled", domain.ErrInvalidStatus)
	}
	return nil
}

func effective(changes []domain.StatusChange) []domain.StatusChange {
	out := make([]domain.StatusChange, 0, len(changes))
	for _, c := range changes {
		if c.From != c.To {
			out = append(out, c)
		}
	}
	return out
}

// Summary aggregates every bet matching the filter. Pagination in the
// filter is ignored.
func (s *BetService) Summary(ctx context.Context, filter domain.BetFilter) (arbitrage.Summary, error) {
	filter.ListOpts = domain.ListOpts{Since: filter.Since, Until: filter.Until}
	bets, err := s.bets.List(ctx, filter)
	if err != nil {
		return arbitrage.Summary{}, fmt.Errorf("bet_service: summary: %w", err)
	}
	return arbitrage.Summarize(bets), nil
}

// History returns the audit trail of a pair (or unpaired bet), oldest first.
func (s *BetService) History(ctx context.Context, subject string) ([]domain.AuditEntry, error) {
	if s.audit == nil {
		return []domain.AuditEntry{}, nil
	}
	entries, err := s.audit.History(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("bet_service: history %s: %w", subject, err)
	}
	return entries, nil
}

// record runs the post-commit side effects. Failures never reach the caller.
func (s *BetService) record(ctx context.Context, evt domain.BetEvent, auditEvent, subject string, detail map[string]any) {
	if s.audit != nil {
		if err := s.audit.Log(ctx, auditEvent, subject, detail); err != nil {
			s.logger.ErrorContext(ctx, "audit log failed",
				slog.String("event", auditEvent),
				slog.String("subject", subject),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.events != nil {
		if err := s.events.PublishBetEvent(ctx, evt); err != nil {
			s.logger.ErrorContext(ctx, "publish bet event failed",
				slog.String("type", evt.Type),
				slog.String("pair_id", evt.PairID),
				slog.String("error", err.Error()),
			)
		}
	}
}
