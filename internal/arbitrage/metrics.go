// Package arbitrage holds the pair engine: the metrics calculator, the
// settlement rule that cascades a win onto the opposing leg, and the
// cross-leg validator. Everything here is pure and never blocks.
package arbitrage

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// percentScale is the number of fractional digits kept on profit percentages.
const percentScale = 2

var hundred = decimal.NewFromInt(100)

// PairMetrics are the derived figures stored on both legs of a pair.
type PairMetrics struct {
	TotalStake        decimal.Decimal `json:"totalStake"`
	ProfitPercentageA decimal.Decimal `json:"profitPercentageA"`
	ProfitPercentageB decimal.Decimal `json:"profitPercentageB"`
}

// ComputePairMetrics returns the combined stake and, for each leg, the return
// on the whole pair if that leg wins: (payout - total) / total * 100. A zero
// total yields zero percentages rather than a division error.
func ComputePairMetrics(stakeA, stakeB, payoutA, payoutB decimal.Decimal) PairMetrics {
	total := stakeA.Add(stakeB)
	return PairMetrics{
		TotalStake:        total,
		ProfitPercentageA: profitPercentage(payoutA, total),
		ProfitPercentageB: profitPercentage(payoutB, total),
	}
}

func profitPercentage(payout, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return payout.Sub(total).Div(total).Mul(hundred).Round(percentScale)
}

// GuaranteedProfit is the worst-case net result of the pair: the smaller of
// the two "this leg wins" outcomes. Negative means the pair is not a true
// arbitrage at the recorded prices.
func GuaranteedProfit(stakeA, stakeB, payoutA, payoutB decimal.Decimal) decimal.Decimal {
	total := stakeA.Add(stakeB)
	return decimal.Min(payoutA.Sub(total), payoutB.Sub(total))
}

// PairMetricsOf recomputes metrics from two stored legs, for display.
func PairMetricsOf(a, b domain.Bet) PairMetrics {
	return ComputePairMetrics(a.Stake, b.Stake, a.Payout, b.Payout)
}
