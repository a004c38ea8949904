package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/surebet/internal/arbitrage"
	"github.com/alanyoungcy/surebet/internal/domain"
)

// FormatBetEvent renders a bet event as a title and a plain-text body.
func FormatBetEvent(evt domain.BetEvent) (string, string) {
	switch evt.Type {
	case domain.EventPairCreated:
		return "New surebet pair", formatPair(evt.Bets)
	case domain.EventBetSettled:
		return "Bet settled", formatSettlement(evt)
	default:
		return "Surebet " + evt.Type, formatLegs(evt.Bets)
	}
}

func formatPair(legs []domain.Bet) string {
	var sb strings.Builder
	if len(legs) > 0 {
		fmt.Fprintf(&sb, "%s vs %s", legs[0].TeamA, legs[0].TeamB)
		if !legs[0].GameDate.IsZero() {
			fmt.Fprintf(&sb, " on %s", legs[0].GameDate.UTC().Format("2006-01-02 15:04"))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(formatLegs(legs))
	if len(legs) == 2 {
		a, b := legs[0], legs[1]
		m := arbitrage.PairMetricsOf(a, b)
		fmt.Fprintf(&sb, "\nTotal stake %s, guaranteed profit %s",
			m.TotalStake.StringFixed(2),
			arbitrage.GuaranteedProfit(a.Stake, b.Stake, a.Payout, b.Payout).StringFixed(2))
	}
	return sb.String()
}

func formatSettlement(evt domain.BetEvent) string {
	byID := make(map[string]domain.Bet, len(evt.Bets))
	for _, b := range evt.Bets {
		byID[b.ID] = b
	}
	lines := make([]string, 0, len(evt.Changes))
	for _, c := range evt.Changes {
		label := c.BetID
		if b, ok := byID[c.BetID]; ok {
			label = fmt.Sprintf("%s %s", b.BettingHouse, b.BetType)
		}
		lines = append(lines, fmt.Sprintf("%s: %s -> %s", label, c.From, c.To))
	}
	if len(lines) == 0 {
		return formatLegs(evt.Bets)
	}
	return strings.Join(lines, "\n")
}

func formatLegs(legs []domain.Bet) string {
	lines := make([]string, 0, len(legs))
	for _, b := range legs {
		pos := string(b.Position)
		if pos == "" {
			pos = "-"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s %s @ %s, stake %s, payout %s (%s)",
			pos, b.BettingHouse, b.BetType, b.Odds.String(),
			b.Stake.StringFixed(2), b.Payout.StringFixed(2), b.Status))
	}
	return strings.Join(lines, "\n")
}
