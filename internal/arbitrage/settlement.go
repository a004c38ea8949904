package arbitrage

import (
	"fmt"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// Settle computes the writes needed to move betID to the requested status,
// given the current legs of its pair. The target is always overwritten, even
// if it was already resolved. A win additionally forces a still-pending
// sibling to lost; a sibling that is already resolved is left alone.
//
// A win is refused with domain.ErrSiblingWon while the sibling is already
// won, which keeps at most one winner per pair even when both legs are
// marked won at the same time.
//
// The primary change comes first in the result, even when From == To.
func Settle(legs []domain.Bet, betID string, to domain.BetStatus) ([]domain.StatusChange, error) {
	if _, err := domain.ParseBetStatus(string(to)); err != nil {
		return nil, err
	}

	target, sibling, err := splitPair(legs, betID)
	if err != nil {
		return nil, err
	}

	changes := []domain.StatusChange{{BetID: target.ID, From: target.Status, To: to}}
	if to != domain.BetStatusWon || sibling == nil {
		return changes, nil
	}

	switch sibling.Status {
	case domain.BetStatusWon:
		return nil, fmt.Errorf("arbitrage: settle %s: %w", betID, domain.ErrSiblingWon)
	case domain.BetStatusPending:
		changes = append(changes, domain.StatusChange{
			BetID: sibling.ID,
			From:  domain.BetStatusPending,
			To:    domain.BetStatusLost,
		})
	}
	return changes, nil
}

// Apply returns a copy of legs with changes applied.
func Apply(legs []domain.Bet, changes []domain.StatusChange) []domain.Bet {
	out := make([]domain.Bet, len(legs))
	copy(out, legs)
	for _, c := range changes {
		for i := range out {
			if out[i].ID == c.BetID {
				out[i].Status = c.To
			}
		}
	}
	return out
}

// splitPair finds the target leg and, when present, the other leg of its
// pair. Legs with a different pair id than the target are ignored.
func splitPair(legs []domain.Bet, betID string) (domain.Bet, *domain.Bet, error) {
	var target *domain.Bet
	for i := range legs {
		if legs[i].ID == betID {
			target = &legs[i]
			break
		}
	}
	if target == nil {
		return domain.Bet{}, nil, fmt.Errorf("arbitrage: settle %s: %w", betID, domain.ErrNotFound)
	}
	if !target.Paired() {
		return *target, nil, nil
	}

	for i := range legs {
		if legs[i].ID != betID && legs[i].PairID == target.PairID {
			sib := legs[i]
			return *target, &sib, nil
		}
	}
	return *target, nil, nil
}
