package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/surebet/internal/arbitrage"
	"github.com/alanyoungcy/surebet/internal/domain"
	"github.com/alanyoungcy/surebet/internal/store/sqlite"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.BetEvent
	err    error
}

func (p *recordingPublisher) PublishBetEvent(_ context.Context, evt domain.BetEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	svc    *BetService
	bets   *sqlite.BetStore
	audit  *sqlite.AuditStore
	events *recordingPublisher
}

func newFixture(t *testing.T, cfg BetConfig) fixture {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "bets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := fixture{
		bets:   sqlite.NewBetStore(db),
		audit:  sqlite.NewAuditStore(db),
		events: &recordingPublisher{},
	}
	f.svc = NewBetService(f.bets, f.audit, f.events, cfg, quietLogger())
	return f
}

func submission() domain.OCRData {
	return domain.OCRData{
		BetA: domain.LegInput{
			BettingHouse: "Betfast", Sport: "Tennis", League: "ATP Hangzhou",
			TeamA: "Giulio Zeppieri", TeamB: "Learner Tien", BetType: "Over 8.5 1st set",
			SelectedSide: domain.SideA, Odds: "2.750", Stake: "150.00", Payout: "412.50",
		},
		BetB: domain.LegInput{
			BettingHouse: "Pinnacle", Sport: "Tennis", League: "ATP Hangzhou",
			TeamA: "learner tien", TeamB: " Giulio  Zeppieri", BetType: "Under 8.5 1st set",
			SelectedSide: domain.SideB, Odds: "3.200", Stake: "125,00", Payout: "400.00",
		},
		GameDate: time.Date(2025, 9, 20, 14, 30, 0, 0, time.UTC),
	}
}

func TestCreatePair_PersistsMetrics(t *testing.T) {
	f := newFixture(t, BetConfig{})
	ctx := context.Background()

	a, b, err := f.svc.CreatePair(ctx, submission())
	require.NoError(t, err)

	assert.Equal(t, a.PairID, b.PairID)
	assert.Equal(t, domain.PositionA, a.Position)
	assert.Equal(t, domain.PositionB, b.Position)
	assert.Equal(t, "275", a.TotalPairStake.String())
	assert.True(t, a.TotalPairStake.Equal(b.TotalPairStake))
	assert.Equal(t, "50", a.ProfitPercentage.String())
	assert.Equal(t, "45.45", b.ProfitPercentage.String())
	assert.Equal(t, "125", b.Stake.String())
	assert.Equal(t, domain.BetStatusPending, a.Status)
	assert.True(t, a.IsVerified)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, domain.EventPairCreated, f.events.events[0].Type)

	history, err := f.svc.History(ctx, a.PairID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "pair.created", history[0].Event)
}

func TestCreatePair_RejectsInvalid(t *testing.T) {
	f := newFixture(t, BetConfig{})
	data := submission()
	data.BetB.SelectedSide = domain.SideA
	data.BetB.Stake = "-1"
	data.GameDate = time.Time{}

	_, _, err := f.svc.CreatePair(context.Background(), data)
	require.ErrorIs(t, err, domain.ErrValidation)

	var verr *arbitrage.ValidationError
	require.ErrorAs(t, err, &verr)
	codes := make([]string, 0, len(verr.Violations))
	for _, v := range verr.Violations {
		codes = append(codes, v.Code)
	}
	assert.ElementsMatch(t, []string{arbitrage.CodeInvalidAmount, arbitrage.CodeSideConflict, arbitrage.CodeRequired}, codes)

	all, err := f.svc.List(context.Background(), domain.BetFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.events.events)
}

func TestCreatePair_RejectsAmountsTheStoreCannotHold(t *testing.T) {
	f := newFixture(t, BetConfig{})
	ctx := context.Background()

	for _, stake := range []string{"10.005", "1e-5", "1e9", "10000000000"} {
		in := submission()
		in.BetA.Stake = stake
		_, _, err := f.svc.CreatePair(ctx, in)

		var verr *arbitrage.ValidationError
		require.ErrorAs(t, err, &verr, stake)
		require.Len(t, verr.Violations, 1, stake)
		assert.Equal(t, arbitrage.CodeInvalidAmount, verr.Violations[0].Code)
		assert.Equal(t, "stake", verr.Violations[0].Field)
	}

	in := submission()
	in.BetA.Stake = "10.01"
	in.BetB.Stake = "10.01"
	a, b, err := f.svc.CreatePair(ctx, in)
	require.NoError(t, err)
	assert.True(t, a.Stake.Add(b.Stake).Equal(a.TotalPairStake))
	assert.Equal(t, "20.02", a.TotalPairStake.StringFixed(2))
}

func TestUpdateStatus_WinCascades(t *testing.T) {
	f := newFixture(t, BetConfig{})
	ctx := context.Background()
	a, b, err := f.svc.CreatePair(ctx, submission())
	require.NoError(t, err)

	won, err := f.svc.UpdateStatus(ctx, a.ID, "won")
	require.NoError(t, err)
	assert.Equal(t, a.ID, won.ID)
	assert.Equal(t, domain.BetStatusWon, won.Status)

	sib, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusLost, sib.Status)

	require.Len(t, f.events.events, 2)
	settled := f.events.events[1]
	assert.Equal(t, domain.EventBetSettled, settled.Type)
	assert.Equal(t, []domain.StatusChange{
		{BetID: a.ID, From: domain.BetStatusPending, To: domain.BetStatusWon},
		{BetID: b.ID, From: domain.BetStatusPending, To: domain.BetStatusLost},
	}, settled.Changes)

	history, err := f.svc.History(ctx, a.PairID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "bet.settled", history[1].Event)
}

func TestUpdateStatus_SiblingWon(t *testing.T) {
	f := newFixture(t, BetConfig{})
	ctx := context.Background()
	a, b, err := f.svc.CreatePair(ctx, submission())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, a.ID, "won")
	require.NoError(t, err)
	// Re-resolving the loser to returned is allowed and does not cascade.
	_, err = f.svc.UpdateStatus(ctx, b.ID, "returned")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, b.ID, "won")
	assert.ErrorIs(t, err, domain.ErrSiblingWon)

	got, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusWon, got.Status)
}

func TestUpdateStatus_NoOpPublishesNothing(t *testing.T) {
	f := newFixture(t, BetConfig{})
	ctx := context.Background()
	a, _, err := f.svc.CreatePair(ctx, submission())
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(ctx, a.ID, "pending")
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusPending, got.Status)
	assert.Len(t, f.events.events, 1)
}

func TestUpdateStatus_Errors(t *testing.T) {
	f := newFixture(t, BetConfig{})
	ctx := context.Background()
	a, _, err := f.svc.CreatePair(ctx, submission())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, a.ID, "cancelled")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(ctx, "missing", "won")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateStatus_ResetPolicy(t *testing.T) {
	ctx := context.Background()

	strict := newFixture(t, BetConfig{})
	a, _, err := strict.svc.CreatePair(ctx, submission())
	require.NoError(t, err)
	_, err = strict.svc.UpdateStatus(ctx, a.ID, "lost")
	require.NoError(t, err)
	_, err = strict.svc.UpdateStatus(ctx, a.ID, "pending")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	lenient := newFixture(t, BetConfig{AllowReset: true})
	a, _, err = lenient.svc.CreatePair(ctx, submission())
	require.NoError(t, err)
	_, err = lenient.svc.UpdateStatus(ctx, a.ID, "lost")
	require.NoError(t, err)
	got, err := lenient.svc.UpdateStatus(ctx, a.ID, "pending")
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusPending, got.Status)
}

func TestUpdateStatus_Unpaired(t *testing.T) {
	f := newFixture(t, BetConfig{})
	ctx := context.Background()

	legacy, _, err := f.bets.CreatePair(ctx,
		domain.BetInsert{BettingHouse: "Betfast", BetType: "ML", SelectedSide: domain.SideA, GameDate: time.Now()},
		domain.BetInsert{BettingHouse: "Pinnacle", BetType: "ML", SelectedSide: domain.SideB, GameDate: time.Now()},
	)
	require.NoError(t, err)
	require.False(t, legacy.Paired())

	got, err := f.svc.UpdateStatus(ctx, legacy.ID, "won")
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusWon, got.Status)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, []domain.StatusChange{{BetID: legacy.ID, From: domain.BetStatusPending, To: domain.BetStatusWon}}, f.events.events[0].Changes)

	history, err := f.svc.History(ctx, legacy.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestUpdateStatus_ConcurrentWins(t *testing.T) {
	f := newFixture(t, BetConfig{})
	ctx := context.Background()
	a, b, err := f.svc.CreatePair(ctx, submission())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.UpdateStatus(ctx, id, "won")
		}()
	}
	wg.Wait()

	refused := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, domain.ErrSiblingWon)
			refused++
		}
	}
	assert.Equal(t, 1, refused)

	view, err := f.svc.Pair(ctx, a.PairID)
	require.NoError(t, err)
	statuses := []domain.BetStatus{view.A.Status, view.B.Status}
	assert.ElementsMatch(t, []domain.BetStatus{domain.BetStatusWon, domain.BetStatusLost}, statuses)
}

func TestPair(t *testing.T) {
	f := newFixture(t, BetConfig{})
	ctx := context.Background()
	a, b, err := f.svc.CreatePair(ctx, submission())
	require.NoError(t, err)

	view, err := f.svc.Pair(ctx, a.PairID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, view.A.ID)
	assert.Equal(t, b.ID, view.B.ID)
	assert.Equal(t, "275", view.Metrics.TotalStake.String())
	assert.Equal(t, "45.45", view.Metrics.ProfitPercentageB.String())
	assert.Equal(t, "125", view.GuaranteedProfit.String())
	assert.Empty(t, view.Violations)

	_, err = f.svc.Pair(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSummary(t *testing.T) {
	f := newFixture(t, BetConfig{})
	ctx := context.Background()
	a, _, err := f.svc.CreatePair(ctx, submission())
	require.NoError(t, err)
	_, _, err = f.svc.CreatePair(ctx, submission())
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, a.ID, "won")
	require.NoError(t, err)

	sum, err := f.svc.Summary(ctx, domain.BetFilter{ListOpts: domain.ListOpts{Limit: 1}})
	require.NoError(t, err)
	assert.Equal(t, 4, sum.TotalBets)
	assert.Equal(t, 2, sum.TotalPairs)
	assert.Equal(t, 1, sum.WonBets)
	assert.Equal(t, 1, sum.LostBets)
	assert.Equal(t, "262.5", sum.TotalProfit.String())
	assert.Equal(t, "137.5", sum.NetProfit.String())
	assert.Equal(t, "50", sum.WinRate.String())
}

func TestSideEffectFailuresDoNotFailRequest(t *testing.T) {
	f := newFixture(t, BetConfig{})
	f.events.err = errors.New("broker down")

	_, _, err := f.svc.CreatePair(context.Background(), submission())
	assert.NoError(t, err)
}

func TestFanout(t *testing.T) {
	ok := &recordingPublisher{}
	bad := &recordingPublisher{err: errors.New("down")}
	err := Fanout{bad, nil, ok}.PublishBetEvent(context.Background(), domain.BetEvent{Type: domain.EventPairCreated})
	assert.Error(t, err)
	assert.Len(t, ok.events, 1)
	assert.Len(t, bad.events, 1)
}
