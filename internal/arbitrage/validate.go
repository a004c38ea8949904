package arbitrage

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// Violation codes reported by the validator.
const (
	CodeRequired         = "required"
	CodeInvalidAmount    = "invalid_amount"
	CodeInvalidSide      = "invalid_side"
	CodeEventMismatch    = "event_mismatch"
	CodeSideConflict     = "side_conflict"
	CodePairMismatch     = "pair_mismatch"
	CodePositionConflict = "position_conflict"
)

// Amount limits match the storage columns: stake and payout NUMERIC(12,2),
// odds NUMERIC(10,3).
const (
	MoneyScale     = 2
	OddsScale      = 3
	moneyIntDigits = 10
	oddsIntDigits  = 7
	maxAmountLen   = 32
)

// Violation is a single failed check. Leg is "A", "B" or empty for checks
// that span both legs.
type Violation struct {
	Leg     string `json:"leg,omitempty"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Leg == "" {
		return fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return fmt.Sprintf("bet%s.%s: %s", v.Leg, v.Field, v.Message)
}

// ValidationError wraps a non-empty violation list. It matches
// domain.ErrValidation under errors.Is.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == domain.ErrValidation
}

// ValidatePair checks two raw legs for completeness and for describing the
// same event from opposite sides. Every check runs; an empty result means
// the pair is valid.
func ValidatePair(a, b domain.LegInput) []Violation {
	var vs []Violation
	vs = append(vs, validateLeg("A", a)...)
	vs = append(vs, validateLeg("B", b)...)

	if !sameEvent(a.TeamA, a.TeamB, b.TeamA, b.TeamB) {
		vs = append(vs, Violation{
			Field:   "teams",
			Code:    CodeEventMismatch,
			Message: fmt.Sprintf("legs name different events (%q vs %q / %q vs %q)", a.TeamA, a.TeamB, b.TeamA, b.TeamB),
		})
	}
	if a.SelectedSide == b.SelectedSide {
		vs = append(vs, Violation{
			Field:   "selectedSide",
			Code:    CodeSideConflict,
			Message: fmt.Sprintf("both legs back side %q", a.SelectedSide),
		})
	}
	return vs
}

// ValidateStoredPair applies the pair checks to persisted legs and adds the
// pairing invariants: one shared pair id and distinct positions.
func ValidateStoredPair(a, b domain.Bet) []Violation {
	vs := ValidatePair(legInputOf(a), legInputOf(b))
	if a.PairID == "" || a.PairID != b.PairID {
		vs = append(vs, Violation{
			Field:   "pairId",
			Code:    CodePairMismatch,
			Message: fmt.Sprintf("legs belong to different pairs (%q, %q)", a.PairID, b.PairID),
		})
	}
	if a.Position == b.Position {
		vs = append(vs, Violation{
			Field:   "betPosition",
			Code:    CodePositionConflict,
			Message: fmt.Sprintf("both legs hold position %q", a.Position),
		})
	}
	return vs
}

func validateLeg(leg string, in domain.LegInput) []Violation {
	var vs []Violation
	required := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			vs = append(vs, Violation{Leg: leg, Field: field, Code: CodeRequired, Message: "must not be empty"})
		}
	}
	required("bettingHouse", in.BettingHouse)
	required("betType", in.BetType)

	if in.SelectedSide != domain.SideA && in.SelectedSide != domain.SideB {
		vs = append(vs, Violation{Leg: leg, Field: "selectedSide", Code: CodeInvalidSide, Message: fmt.Sprintf("must be A or B, got %q", in.SelectedSide)})
	}

	for _, f := range []struct {
		name, value string
		parse       func(string) (decimal.Decimal, error)
	}{
		{"odds", in.Odds, ParseOdds},
		{"stake", in.Stake, ParseMoney},
		{"payout", in.Payout, ParseMoney},
	} {
		if _, err := f.parse(f.value); err != nil {
			vs = append(vs, Violation{Leg: leg, Field: f.name, Code: CodeInvalidAmount, Message: err.Error()})
		}
	}
	return vs
}

// ParseMoney parses a stake or payout: positive, at most two decimal places
// and ten integer digits. A comma decimal separator ("979,47") is accepted.
func ParseMoney(s string) (decimal.Decimal, error) {
	return ParseAmount(s, MoneyScale, moneyIntDigits)
}

// ParseOdds parses decimal odds: positive, at most three decimal places and
// seven integer digits.
func ParseOdds(s string) (decimal.Decimal, error) {
	return ParseAmount(s, OddsScale, oddsIntDigits)
}

// ParseAmount parses a positive plain decimal with at most scale fractional
// digits (trailing zeros aside) and intDigits integer digits. Exponent
// notation is rejected.
func ParseAmount(s string, scale int32, intDigits int) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("must not be empty")
	}
	if len(s) > maxAmountLen || strings.ContainsAny(s, "eE") {
		return decimal.Zero, fmt.Errorf("%q is not a plain decimal number", s)
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("must be greater than 0, got %s", d)
	}
	if !d.Equal(d.Truncate(scale)) {
		return decimal.Zero, fmt.Errorf("%s has more than %d decimal places", d, scale)
	}
	if d.GreaterThanOrEqual(decimal.New(1, int32(intDigits))) {
		return decimal.Zero, fmt.Errorf("%s has more than %d integer digits", d, intDigits)
	}
	return d.Truncate(scale), nil
}

// NormalizeName trims and case-folds a competitor name and collapses inner
// whitespace.
func NormalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// sameEvent compares the competitor pairs of two legs regardless of order.
func sameEvent(a1, a2, b1, b2 string) bool {
	a1, a2, b1, b2 = NormalizeName(a1), NormalizeName(a2), NormalizeName(b1), NormalizeName(b2)
	return (a1 == b1 && a2 == b2) || (a1 == b2 && a2 == b1)
}

func legInputOf(b domain.Bet) domain.LegInput {
	return domain.LegInput{
		BettingHouse: b.BettingHouse,
		Sport:        b.Sport,
		League:       b.League,
		TeamA:        b.TeamA,
		TeamB:        b.TeamB,
		BetType:      b.BetType,
		SelectedSide: b.SelectedSide,
		Odds:         b.Odds.String(),
		Stake:        b.Stake.String(),
		Payout:       b.Payout.String(),
	}
}
