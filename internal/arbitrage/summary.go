package arbitrage

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// Summary is the dashboard roll-up over a set of legs.
type Summary struct {
	TotalBets    int             `json:"totalBets"`
	TotalPairs   int             `json:"totalPairs"`
	PendingBets  int             `json:"pendingBets"`
	WonBets      int             `json:"wonBets"`
	LostBets     int             `json:"lostBets"`
	ReturnedBets int             `json:"returnedBets"`
	TotalStaked  decimal.Decimal `json:"totalStaked"`
	TotalProfit  decimal.Decimal `json:"totalProfit"`
	TotalLoss    decimal.Decimal `json:"totalLoss"`
	NetProfit    decimal.Decimal `json:"netProfit"`
	WinRate      decimal.Decimal `json:"winRate"`
}

// Summarize aggregates legs into dashboard statistics. Profit on a won leg is
// payout minus stake; a lost leg loses its stake; returned legs count as
// neither. Win rate only considers won and lost legs.
func Summarize(bets []domain.Bet) Summary {
	s := Summary{
		TotalBets:   len(bets),
		TotalStaked: decimal.Zero,
		TotalProfit: decimal.Zero,
		TotalLoss:   decimal.Zero,
		NetProfit:   decimal.Zero,
		WinRate:     decimal.Zero,
	}
	pairs := make(map[string]struct{})

	for _, b := range bets {
		s.TotalStaked = s.TotalStaked.Add(b.Stake)
		if b.Paired() {
			pairs[b.PairID] = struct{}{}
		}
		switch b.Status {
		case domain.BetStatusPending:
			s.PendingBets++
		case domain.BetStatusWon:
			s.WonBets++
			s.TotalProfit = s.TotalProfit.Add(b.Payout.Sub(b.Stake))
		case domain.BetStatusLost:
			s.LostBets++
			s.TotalLoss = s.TotalLoss.Add(b.Stake)
		case domain.BetStatusReturned:
			s.ReturnedBets++
		}
	}

	s.TotalPairs = len(pairs)
	s.NetProfit = s.TotalProfit.Sub(s.TotalLoss)
	if resolved := s.WonBets + s.LostBets; resolved > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.WonBets)).
			Div(decimal.NewFromInt(int64(resolved))).
			Mul(hundred).
			Round(percentScale)
	}
	return s
}
