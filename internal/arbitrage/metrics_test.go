package arbitrage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputePairMetrics_KnownPair(t *testing.T) {
	m := ComputePairMetrics(dec("150.00"), dec("125.00"), dec("412.50"), dec("400.00"))

	assert.Equal(t, "275.00", m.TotalStake.StringFixed(2))
	assert.Equal(t, "50.00", m.ProfitPercentageA.StringFixed(2))
	assert.Equal(t, "45.45", m.ProfitPercentageB.StringFixed(2))
}

func TestComputePairMetrics_ZeroTotalStake(t *testing.T) {
	m := ComputePairMetrics(decimal.Zero, decimal.Zero, dec("10"), dec("20"))

	assert.True(t, m.TotalStake.IsZero())
	assert.True(t, m.ProfitPercentageA.IsZero())
	assert.True(t, m.ProfitPercentageB.IsZero())
}

func TestComputePairMetrics_LosingPair(t *testing.T) {
	// Payouts below the combined stake are not an arbitrage.
	m := ComputePairMetrics(dec("100"), dec("100"), dec("190"), dec("150"))

	assert.Equal(t, "-5.00", m.ProfitPercentageA.StringFixed(2))
	assert.Equal(t, "-25.00", m.ProfitPercentageB.StringFixed(2))
}

func TestGuaranteedProfit(t *testing.T) {
	got := GuaranteedProfit(dec("979.47"), dec("236.04"), dec("1243.67"), dec("1243.93"))
	assert.Equal(t, "28.16", got.StringFixed(2))
}

// cents draws a non-negative money amount with two fractional digits.
func cents(t *rapid.T, label string) decimal.Decimal {
	return decimal.New(rapid.Int64Range(0, 10_000_000).Draw(t, label), -2)
}

func TestProperty_ProfitPercentageFormula(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		stakeA := cents(t, "stakeA")
		stakeB := cents(t, "stakeB")
		payoutA := cents(t, "payoutA")
		payoutB := cents(t, "payoutB")

		m := ComputePairMetrics(stakeA, stakeB, payoutA, payoutB)
		total := stakeA.Add(stakeB)

		if !m.TotalStake.Equal(total) {
			t.Fatalf("total stake %s, want %s", m.TotalStake, total)
		}
		if total.IsZero() {
			if !m.ProfitPercentageA.IsZero() || !m.ProfitPercentageB.IsZero() {
				t.Fatalf("zero total must give zero percentages, got %s / %s", m.ProfitPercentageA, m.ProfitPercentageB)
			}
			return
		}

		wantA := payoutA.Sub(total).Div(total).Mul(decimal.NewFromInt(100)).Round(2)
		wantB := payoutB.Sub(total).Div(total).Mul(decimal.NewFromInt(100)).Round(2)
		if !m.ProfitPercentageA.Equal(wantA) {
			t.Fatalf("profit %% A = %s, want %s", m.ProfitPercentageA, wantA)
		}
		if !m.ProfitPercentageB.Equal(wantB) {
			t.Fatalf("profit %% B = %s, want %s", m.ProfitPercentageB, wantB)
		}
	})
}

func TestProperty_MetricsSymmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		stakeA, stakeB := cents(t, "stakeA"), cents(t, "stakeB")
		payoutA, payoutB := cents(t, "payoutA"), cents(t, "payoutB")

		ab := ComputePairMetrics(stakeA, stakeB, payoutA, payoutB)
		ba := ComputePairMetrics(stakeB, stakeA, payoutB, payoutA)

		if !ab.ProfitPercentageA.Equal(ba.ProfitPercentageB) || !ab.ProfitPercentageB.Equal(ba.ProfitPercentageA) {
			t.Fatalf("swapping legs changed results: %+v vs %+v", ab, ba)
		}
	})
}
