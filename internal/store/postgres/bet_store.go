package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// betSelectCols lists the columns selected when reading bets. Numerics are
// read as text so they round-trip exactly through decimal.Decimal.
const betSelectCols = `id::text, betting_house, sport, league, team_a, team_b, bet_type,
	selected_side, odds::text, stake::text, payout::text, game_date, status,
	is_verified, COALESCE(pair_id::text, ''), COALESCE(bet_position, ''),
	total_pair_stake::text, profit_percentage::text, created_at, updated_at`

func scanBet(scanner interface{ Scan(dest ...any) error }) (domain.Bet, error) {
	var b domain.Bet
	var side, status, position string
	var odds, stake, payout, total, profit string

	err := scanner.Scan(
		&b.ID, &b.BettingHouse, &b.Sport, &b.League, &b.TeamA, &b.TeamB, &b.BetType,
		&side, &odds, &stake, &payout, &b.GameDate, &status,
		&b.IsVerified, &b.PairID, &position,
		&total, &profit, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}

	b.SelectedSide = domain.Side(side)
	b.Status = domain.BetStatus(status)
	b.Position = domain.Position(position)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&b.Odds, odds},
		{&b.Stake, stake},
		{&b.Payout, payout},
		{&b.TotalPairStake, total},
		{&b.ProfitPercentage, profit},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return domain.Bet{}, fmt.Errorf("parse numeric %q: %w", f.src, err)
		}
		*f.dst = d
	}
	return b, nil
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	defer rows.Close()
	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// validID filters out ids that would make Postgres reject the uuid cast.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// List returns bets matching the filter.
func (s *BetStore) List(ctx context.Context, f domain.BetFilter) ([]domain.Bet, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	if f.Search != "" {
		query += fmt.Sprintf(" AND (betting_house ILIKE $%d OR bet_type ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+f.Search+"%")
		argIdx++
	}
	if f.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *f.Since)
		argIdx++
	}
	if f.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *f.Until)
		argIdx++
	}

	query += " ORDER BY " + betOrderBy(f.Sort)

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	bets, err := collectBets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	return bets, nil
}

func betOrderBy(sort domain.BetSort) string {
	switch sort {
	case domain.BetSortDate:
		return "game_date DESC, created_at ASC, id"
	case domain.BetSortStake:
		return "stake DESC, created_at ASC, id"
	case domain.BetSortOdds:
		return "odds DESC, created_at ASC, id"
	default:
		return "created_at ASC, bet_position ASC NULLS LAST, id"
	}
}

// GetByID returns a single bet.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	if !validID(id) {
		return domain.Bet{}, domain.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+betSelectCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// ListByPair returns the legs of a pair ordered by position.
func (s *BetStore) ListByPair(ctx context.Context, pairID string) ([]domain.Bet, error) {
	if !validID(pairID) {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE pair_id = $1 ORDER BY bet_position`, pairID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pair %s: %w", pairID, err)
	}
	bets, err := collectBets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pair %s: %w", pairID, err)
	}
	return bets, nil
}

const insertBet = `
	INSERT INTO bets (
		id, betting_house, sport, league, team_a, team_b, bet_type,
		selected_side, odds, stake, payout, game_date, status,
		is_verified, pair_id, bet_position, total_pair_stake, profit_percentage
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11, $12, 'pending',
		$13, NULLIF($14, '')::uuid, NULLIF($15, ''), $16, $17
	)
	RETURNING ` + betSelectCols

func insertArgs(in domain.BetInsert) []any {
	return []any{
		in.ID, in.BettingHouse, in.Sport, in.League, in.TeamA, in.TeamB, in.BetType,
		string(in.SelectedSide), in.Odds.String(), in.Stake.String(), in.Payout.String(), in.GameDate,
		in.IsVerified, in.PairID, string(in.Position),
		in.TotalPairStake.String(), in.ProfitPercentage.String(),
	}
}

// CreatePair inserts both legs in one transaction. Empty ids are assigned.
func (s *BetStore) CreatePair(ctx context.Context, a, b domain.BetInsert) (domain.Bet, domain.Bet, error) {
	for _, in := range []*domain.BetInsert{&a, &b} {
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Bet{}, domain.Bet{}, fmt.Errorf("postgres: begin create pair: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	legA, err := scanBet(tx.QueryRow(ctx, insertBet, insertArgs(a)...))
	if err != nil {
		return domain.Bet{}, domain.Bet{}, fmt.Errorf("postgres: insert bet %s: %w", a.ID, err)
	}
	legB, err := scanBet(tx.QueryRow(ctx, insertBet, insertArgs(b)...))
	if err != nil {
		return domain.Bet{}, domain.Bet{}, fmt.Errorf("postgres: insert bet %s: %w", b.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Bet{}, domain.Bet{}, fmt.Errorf("postgres: commit create pair: %w", err)
	}
	return legA, legB, nil
}

// UpdateStatus sets one bet's status, optionally only when it still holds
// the expected status.
func (s *BetStore) UpdateStatus(ctx context.Context, id string, status domain.BetStatus, expected *domain.BetStatus) (domain.Bet, error) {
	if !validID(id) {
		return domain.Bet{}, domain.ErrNotFound
	}

	query := `UPDATE bets SET status = $1, updated_at = NOW() WHERE id = $2`
	args := []any{string(status), id}
	if expected != nil {
		query += ` AND status = $3`
		args = append(args, string(*expected))
	}
	query += ` RETURNING ` + betSelectCols

	b, err := scanBet(s.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Bet{}, fmt.Errorf("postgres: update bet status %s: %w", id, err)
	}
	if _, getErr := s.GetByID(ctx, id); getErr != nil {
		return domain.Bet{}, getErr
	}
	return domain.Bet{}, domain.ErrStatusConflict
}

// UpdatePair locks every leg of the pair with SELECT ... FOR UPDATE, hands
// them to fn and applies the returned changes before committing. Concurrent
// callers on the same pair queue on the row locks.
func (s *BetStore) UpdatePair(ctx context.Context, pairID string, fn domain.PairUpdateFunc) ([]domain.Bet, error) {
	if !validID(pairID) {
		return nil, domain.ErrNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin update pair: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const lockQuery = `SELECT ` + betSelectCols + ` FROM bets WHERE pair_id = $1 ORDER BY bet_position FOR UPDATE`

	rows, err := tx.Query(ctx, lockQuery, pairID)
	if err != nil {
		return nil, fmt.Errorf("postgres: lock pair %s: %w", pairID, err)
	}
	legs, err := collectBets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: lock pair %s: %w", pairID, err)
	}
	if len(legs) == 0 {
		return nil, domain.ErrNotFound
	}

	changes, err := fn(legs)
	if err != nil {
		return nil, err
	}

	for _, c := range changes {
		if c.From == c.To {
			continue
		}
		tag, err := tx.Exec(ctx,
			`UPDATE bets SET status = $1, updated_at = NOW() WHERE id = $2 AND pair_id = $3 AND status = $4`,
			string(c.To), c.BetID, pairID, string(c.From),
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: settle bet %s: %w", c.BetID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, domain.ErrStatusConflict
		}
	}

	rows, err = tx.Query(ctx, `SELECT `+betSelectCols+` FROM bets WHERE pair_id = $1 ORDER BY bet_position`, pairID)
	if err != nil {
		return nil, fmt.Errorf("postgres: reload pair %s: %w", pairID, err)
	}
	legs, err = collectBets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: reload pair %s: %w", pairID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit update pair %s: %w", pairID, err)
	}
	return legs, nil
}

// ListSettledBefore returns legs of fully resolved pairs created before the
// cutoff, grouped by pair.
func (s *BetStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Bet, error) {
	const query = `
		SELECT ` + betSelectCols + `
		FROM bets b
		WHERE b.pair_id IS NOT NULL
		  AND b.created_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM bets o WHERE o.pair_id = b.pair_id AND o.status = 'pending'
		  )
		ORDER BY b.created_at, b.pair_id, b.bet_position`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled bets: %w", err)
	}
	bets, err := collectBets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled bets: %w", err)
	}
	return bets, nil
}
