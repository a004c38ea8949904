package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// BetSort selects the ordering of a bet listing.
type BetSort string

const (
	BetSortCreated BetSort = "created" // created_at ascending
	BetSortDate    BetSort = "date"    // game_date descending
	BetSortStake   BetSort = "stake"   // stake descending
	BetSortOdds    BetSort = "odds"    // odds descending
)

// BetFilter narrows a bet listing. Zero values mean "no filter".
type BetFilter struct {
	Status BetStatus
	// Search matches bookmaker or bet type, case-insensitively.
	Search string
	Sort   BetSort
	ListOpts
}

// PairUpdateFunc receives the current legs of a pair, read under the pair
// lock, and returns the status changes to apply.
type PairUpdateFunc func(legs []Bet) ([]StatusChange, error)

// BetStore persists bet legs.
type BetStore interface {
	List(ctx context.Context, filter BetFilter) ([]Bet, error)
	GetByID(ctx context.Context, id string) (Bet, error)
	ListByPair(ctx context.Context, pairID string) ([]Bet, error)
	// CreatePair inserts both legs in a single transaction.
	CreatePair(ctx context.Context, a, b BetInsert) (Bet, Bet, error)
	// UpdateStatus sets the status of one bet. When expected is non-nil the
	// write only happens if the stored status still equals *expected,
	// otherwise ErrStatusConflict is returned.
	UpdateStatus(ctx context.Context, id string, status BetStatus, expected *BetStatus) (Bet, error)
	// UpdatePair serializes a read-modify-write over all legs of a pair and
	// returns the legs as they stand after the update.
	UpdatePair(ctx context.Context, pairID string, fn PairUpdateFunc) ([]Bet, error)
	// ListSettledBefore returns legs of pairs whose legs are all resolved and
	// which were created before the cutoff.
	ListSettledBefore(ctx context.Context, before time.Time) ([]Bet, error)
}

// AuditEntry is a single audit log row. Subject is the pair or bet id the
// event concerns.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Subject   string         `json:"subject"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event, subject string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	// History returns the entries for one subject, oldest first.
	History(ctx context.Context, subject string) ([]AuditEntry, error)
}
