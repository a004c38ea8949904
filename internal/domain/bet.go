package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus tracks the lifecycle of a single leg.
type BetStatus string

const (
	BetStatusPending  BetStatus = "pending"
	BetStatusWon      BetStatus = "won"
	BetStatusLost     BetStatus = "lost"
	BetStatusReturned BetStatus = "returned" // voided by the bookmaker, stake refunded
)

// ParseBetStatus converts a wire value into a BetStatus. It returns
// ErrInvalidStatus for anything outside the four known values.
func ParseBetStatus(s string) (BetStatus, error) {
	switch st := BetStatus(s); st {
	case BetStatusPending, BetStatusWon, BetStatusLost, BetStatusReturned:
		return st, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Resolved reports whether the status is terminal.
func (s BetStatus) Resolved() bool {
	return s == BetStatusWon || s == BetStatusLost || s == BetStatusReturned
}

// Side is the competitor a leg backs.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Position is a leg's slot within its pair.
type Position string

const (
	PositionA Position = "A"
	PositionB Position = "B"
)

// Bet is one leg of an arbitrage pair.
type Bet struct {
	ID               string          `json:"id"`
	BettingHouse     string          `json:"bettingHouse"`
	Sport            string          `json:"sport,omitempty"`
	League           string          `json:"league,omitempty"`
	TeamA            string          `json:"teamA"`
	TeamB            string          `json:"teamB"`
	BetType          string          `json:"betType"`
	SelectedSide     Side            `json:"selectedSide"`
	Odds             decimal.Decimal `json:"odds"`
	Stake            decimal.Decimal `json:"stake"`
	Payout           decimal.Decimal `json:"payout"`
	GameDate         time.Time       `json:"gameDate"`
	Status           BetStatus       `json:"status"`
	IsVerified       bool            `json:"isVerified"`
	PairID           string          `json:"pairId,omitempty"`
	Position         Position        `json:"betPosition,omitempty"`
	TotalPairStake   decimal.Decimal `json:"totalPairStake"`
	ProfitPercentage decimal.Decimal `json:"profitPercentage"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Paired reports whether the bet belongs to a pair.
func (b Bet) Paired() bool {
	return b.PairID != ""
}

// BetInsert carries the fields written when a leg is first persisted. Status
// always starts as pending; timestamps are assigned by the store.
type BetInsert struct {
	ID               string
	BettingHouse     string
	Sport            string
	League           string
	TeamA            string
	TeamB            string
	BetType          string
	SelectedSide     Side
	Odds             decimal.Decimal
	Stake            decimal.Decimal
	Payout           decimal.Decimal
	GameDate         time.Time
	IsVerified       bool
	PairID           string
	Position         Position
	TotalPairStake   decimal.Decimal
	ProfitPercentage decimal.Decimal
}

// StatusChange is one row write produced by the settlement rule.
type StatusChange struct {
	BetID string    `json:"betId"`
	From  BetStatus `json:"from"`
	To    BetStatus `json:"to"`
}

// LegInput is a raw, untrusted leg as produced by the extractor or typed by
// the user on the verification form. Amounts stay as strings until validated.
type LegInput struct {
	BettingHouse string `json:"bettingHouse"`
	Sport        string `json:"sport,omitempty"`
	League       string `json:"league,omitempty"`
	TeamA        string `json:"teamA"`
	TeamB        string `json:"teamB"`
	BetType      string `json:"betType"`
	SelectedSide Side   `json:"selectedSide"`
	Odds         string `json:"odds"`
	Stake        string `json:"stake"`
	Payout       string `json:"payout"`
}

// OCRData is the paired submission: two legs plus the shared event date.
type OCRData struct {
	BetA     LegInput  `json:"betA"`
	BetB     LegInput  `json:"betB"`
	GameDate time.Time `json:"gameDate"`
	GameTime string    `json:"gameTime,omitempty"`
}

// Pair groups the two legs of a pair in position order.
type Pair struct {
	ID string `json:"pairId"`
	A  Bet    `json:"betA"`
	B  Bet    `json:"betB"`
}
