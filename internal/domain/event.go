package domain

import (
	"context"
	"time"
)

// Bet event types published after state changes.
const (
	EventPairCreated = "pair_created"
	EventBetSettled  = "bet_settled"
	EventError       = "error"
)

// BetEvent describes a committed change to one or more legs.
type BetEvent struct {
	Type      string         `json:"type"`
	PairID    string         `json:"pairId,omitempty"`
	Bets      []Bet          `json:"bets"`
	Changes   []StatusChange `json:"changes,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventPublisher fans bet events out to downstream consumers.
type EventPublisher interface {
	PublishBetEvent(ctx context.Context, evt BetEvent) error
}
