package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/surebet/internal/arbitrage"
	"github.com/alanyoungcy/surebet/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "bets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func leg(pairID string, pos domain.Position, house, stake, odds, payout string) domain.BetInsert {
	side := domain.SideA
	if pos == domain.PositionB {
		side = domain.SideB
	}
	return domain.BetInsert{
		BettingHouse:     house,
		Sport:            "Tennis",
		TeamA:            "Giulio Zeppieri",
		TeamB:            "Learner Tien",
		BetType:          "Over 8.5 games",
		SelectedSide:     side,
		Odds:             dec(odds),
		Stake:            dec(stake),
		Payout:           dec(payout),
		GameDate:         time.Date(2025, 10, 1, 18, 30, 0, 0, time.UTC),
		PairID:           pairID,
		Position:         pos,
		TotalPairStake:   dec("275.00"),
		ProfitPercentage: dec("50.00"),
	}
}

func createPair(t *testing.T, store *BetStore) (domain.Bet, domain.Bet) {
	t.Helper()
	pairID := uuid.NewString()
	a, b, err := store.CreatePair(context.Background(),
		leg(pairID, domain.PositionA, "Betfast", "150.00", "2.750", "412.50"),
		leg(pairID, domain.PositionB, "Pinnacle", "125.00", "3.200", "400.00"))
	require.NoError(t, err)
	return a, b
}

func settle(store *BetStore, pairID, betID string, to domain.BetStatus) ([]domain.Bet, error) {
	return store.UpdatePair(context.Background(), pairID, func(legs []domain.Bet) ([]domain.StatusChange, error) {
		return arbitrage.Settle(legs, betID, to)
	})
}

func TestCreatePair_RoundTrip(t *testing.T) {
	store := NewBetStore(openTestDB(t))
	a, b := createPair(t, store)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, domain.BetStatusPending, a.Status)
	assert.Equal(t, domain.PositionA, a.Position)
	assert.Equal(t, domain.PositionB, b.Position)
	assert.True(t, dec("412.50").Equal(a.Payout))
	assert.True(t, dec("2.750").Equal(a.Odds))
	assert.Equal(t, "Tennis", a.Sport)
	assert.Equal(t, 2025, a.GameDate.Year())

	got, err := store.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, a.PairID, got.PairID)

	legs, err := store.ListByPair(context.Background(), a.PairID)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, a.ID, legs[0].ID)
}

func TestCreatePair_DuplicatePositionRollsBack(t *testing.T) {
	store := NewBetStore(openTestDB(t))
	pairID := uuid.NewString()

	_, _, err := store.CreatePair(context.Background(),
		leg(pairID, domain.PositionA, "X", "10", "2", "20"),
		leg(pairID, domain.PositionA, "Y", "10", "2", "20"))
	require.Error(t, err)

	legs, err := store.ListByPair(context.Background(), pairID)
	require.NoError(t, err)
	assert.Empty(t, legs)
}

func TestGetByID_NotFound(t *testing.T) {
	store := NewBetStore(openTestDB(t))
	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdatePair_WinCascades(t *testing.T) {
	store := NewBetStore(openTestDB(t))
	a, b := createPair(t, store)

	legs, err := settle(store, a.PairID, b.ID, domain.BetStatusWon)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, domain.BetStatusLost, legs[0].Status)
	assert.Equal(t, domain.BetStatusWon, legs[1].Status)

	_, err = settle(store, a.PairID, a.ID, domain.BetStatusWon)
	assert.ErrorIs(t, err, domain.ErrSiblingWon)

	_, err = settle(store, "no-such-pair", a.ID, domain.BetStatusWon)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdatePair_ConflictRollsBack(t *testing.T) {
	store := NewBetStore(openTestDB(t))
	a, b := createPair(t, store)

	_, err := store.UpdatePair(context.Background(), a.PairID, func(legs []domain.Bet) ([]domain.StatusChange, error) {
		return []domain.StatusChange{
			{BetID: a.ID, From: domain.BetStatusPending, To: domain.BetStatusWon},
			{BetID: b.ID, From: domain.BetStatusWon, To: domain.BetStatusLost}, // stale expectation
		}, nil
	})
	assert.ErrorIs(t, err, domain.ErrStatusConflict)

	got, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusPending, got.Status)
}

func TestConcurrentWinsLeaveExactlyOneWinner(t *testing.T) {
	store := NewBetStore(openTestDB(t))

	for i := 0; i < 20; i++ {
		a, b := createPair(t, store)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j, id := range []string{a.ID, b.ID} {
			wg.Add(1)
			go func(j int, id string) {
				defer wg.Done()
				_, errs[j] = settle(store, a.PairID, id, domain.BetStatusWon)
			}(j, id)
		}
		wg.Wait()

		legs, err := store.ListByPair(context.Background(), a.PairID)
		require.NoError(t, err)
		assert.ElementsMatch(t,
			[]domain.BetStatus{domain.BetStatusWon, domain.BetStatusLost},
			[]domain.BetStatus{legs[0].Status, legs[1].Status})

		failed := 0
		for _, err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrSiblingWon)
				failed++
			}
		}
		assert.Equal(t, 1, failed)
	}
}

func TestUpdateStatus_Expected(t *testing.T) {
	store := NewBetStore(openTestDB(t))
	a, _ := createPair(t, store)
	ctx := context.Background()

	pending := domain.BetStatusPending
	got, err := store.UpdateStatus(ctx, a.ID, domain.BetStatusReturned, &pending)
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusReturned, got.Status)

	_, err = store.UpdateStatus(ctx, a.ID, domain.BetStatusWon, &pending)
	assert.ErrorIs(t, err, domain.ErrStatusConflict)

	got, err = store.UpdateStatus(ctx, a.ID, domain.BetStatusWon, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusWon, got.Status)

	_, err = store.UpdateStatus(ctx, "missing", domain.BetStatusWon, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList_FiltersAndSorts(t *testing.T) {
	store := NewBetStore(openTestDB(t))
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	a1, b1 := createPair(t, store)
	pairID := uuid.NewString()
	a2, b2, err := store.CreatePair(ctx,
		leg(pairID, domain.PositionA, "Bet365", "500.00", "1.500", "750.00"),
		leg(pairID, domain.PositionB, "Betfast", "260.00", "3.000", "780.00"))
	require.NoError(t, err)
	_, err = settle(store, a1.PairID, a1.ID, domain.BetStatusWon)
	require.NoError(t, err)

	all, err := store.List(ctx, domain.BetFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{a1.ID, b1.ID, a2.ID, b2.ID}, ids(all))

	won, err := store.List(ctx, domain.BetFilter{Status: domain.BetStatusWon})
	require.NoError(t, err)
	assert.Equal(t, []string{a1.ID}, ids(won))

	search, err := store.List(ctx, domain.BetFilter{Search: "betFAST"})
	require.NoError(t, err)
	assert.Equal(t, []string{a1.ID, b2.ID}, ids(search))

	byStake, err := store.List(ctx, domain.BetFilter{Sort: domain.BetSortStake})
	require.NoError(t, err)
	assert.Equal(t, []string{a2.ID, b2.ID, a1.ID, b1.ID}, ids(byStake))

	byOdds, err := store.List(ctx, domain.BetFilter{Sort: domain.BetSortOdds, ListOpts: domain.ListOpts{Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, []string{b1.ID, b2.ID}, ids(byOdds))

	page, err := store.List(ctx, domain.BetFilter{ListOpts: domain.ListOpts{Offset: 3}})
	require.NoError(t, err)
	assert.Equal(t, []string{b2.ID}, ids(page))
}

func TestListSettledBefore(t *testing.T) {
	store := NewBetStore(openTestDB(t))
	ctx := context.Background()

	settled, _ := createPair(t, store)
	open, _ := createPair(t, store)
	_, err := settle(store, settled.PairID, settled.ID, domain.BetStatusWon)
	require.NoError(t, err)
	_, err = store.UpdateStatus(ctx, open.ID, domain.BetStatusLost, nil)
	require.NoError(t, err)

	bets, err := store.ListSettledBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, bets, 2)
	for _, b := range bets {
		assert.Equal(t, settled.PairID, b.PairID)
	}

	bets, err = store.ListSettledBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, bets)
}

func TestAuditStore(t *testing.T) {
	db := openTestDB(t)
	audit := NewAuditStore(db)
	ctx := context.Background()

	require.NoError(t, audit.Log(ctx, "pair_created", "p1", map[string]any{"stake": "275.00"}))
	require.NoError(t, audit.Log(ctx, "bet_settled", "p2", nil))
	require.NoError(t, audit.Log(ctx, "bet_settled", "p1", map[string]any{"to": "won"}))

	hist, err := audit.History(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "pair_created", hist[0].Event)
	assert.Equal(t, "275.00", hist[0].Detail["stake"])
	assert.Equal(t, "won", hist[1].Detail["to"])

	latest, err := audit.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "p1", latest[0].Subject)
}

func ids(bets []domain.Bet) []string {
	out := make([]string, len(bets))
	for i, b := range bets {
		out[i] = b.ID
	}
	return out
}
