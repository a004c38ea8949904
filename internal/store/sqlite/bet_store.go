package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// BetStore implements domain.BetStore on SQLite.
type BetStore struct {
	db *sql.DB
	// now is swapped in tests.
	now func() time.Time
}

// NewBetStore creates a BetStore on the given database.
func NewBetStore(d *DB) *BetStore {
	return &BetStore{db: d.db, now: time.Now}
}

const betSelectCols = `id, betting_house, sport, league, team_a, team_b, bet_type,
	selected_side, odds, stake, payout, game_date, status, is_verified,
	COALESCE(pair_id, ''), COALESCE(bet_position, ''),
	total_pair_stake, profit_percentage, created_at, updated_at`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanBet(scanner interface{ Scan(dest ...any) error }) (domain.Bet, error) {
	var b domain.Bet
	var side, status, position string
	var odds, stake, payout, total, profit string
	var gameDate, createdAt, updatedAt string

	err := scanner.Scan(
		&b.ID, &b.BettingHouse, &b.Sport, &b.League, &b.TeamA, &b.TeamB, &b.BetType,
		&side, &odds, &stake, &payout, &gameDate, &status, &b.IsVerified,
		&b.PairID, &position,
		&total, &profit, &createdAt, &updatedAt,
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
			return domain.Bet{}, fmt.Errorf("parse decimal %q: %w", f.src, err)
		}
		*f.dst = d
	}
	for _, f := range []struct {
		dst *time.Time
		src string
	}{
		{&b.GameDate, gameDate},
		{&b.CreatedAt, createdAt},
		{&b.UpdatedAt, updatedAt},
	} {
		t, err := parseTime(f.src)
		if err != nil {
			return domain.Bet{}, fmt.Errorf("parse time %q: %w", f.src, err)
		}
		*f.dst = t
	}
	return b, nil
}

func queryBets(ctx context.Context, q querier, query string, args ...any) ([]domain.Bet, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
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

// List returns bets matching the filter.
func (s *BetStore) List(ctx context.Context, f domain.BetFilter) ([]domain.Bet, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Search != "" {
		// LIKE is case-insensitive for ASCII in SQLite.
		query += ` AND (betting_house LIKE ? OR bet_type LIKE ?)`
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	if f.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(*f.Since))
	}
	if f.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, formatTime(*f.Until))
	}

	switch f.Sort {
	case domain.BetSortDate:
		query += ` ORDER BY game_date DESC, created_at, id`
	case domain.BetSortStake:
		query += ` ORDER BY CAST(stake AS REAL) DESC, created_at, id`
	case domain.BetSortOdds:
		query += ` ORDER BY CAST(odds AS REAL) DESC, created_at, id`
	default:
		query += ` ORDER BY created_at, bet_position, id`
	}

	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, f.Offset)
	}

	bets, err := queryBets(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list bets: %w", err)
	}
	return bets, nil
}

// GetByID returns a single bet.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	return getBet(ctx, s.db, id)
}

func getBet(ctx context.Context, q querier, id string) (domain.Bet, error) {
	b, err := scanBet(q.QueryRowContext(ctx, `SELECT `+betSelectCols+` FROM bets WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("sqlite: get bet %s: %w", id, err)
	}
	return b, nil
}

// ListByPair returns the legs of a pair ordered by position.
func (s *BetStore) ListByPair(ctx context.Context, pairID string) ([]domain.Bet, error) {
	bets, err := queryBets(ctx, s.db,
		`SELECT `+betSelectCols+` FROM bets WHERE pair_id = ? ORDER BY bet_position`, pairID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list pair %s: %w", pairID, err)
	}
	return bets, nil
}

const insertBet = `
	INSERT INTO bets (
		id, betting_house, sport, league, team_a, team_b, bet_type,
		selected_side, odds, stake, payout, game_date, status, is_verified,
		pair_id, bet_position, total_pair_stake, profit_percentage,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?)`

// CreatePair inserts both legs in one transaction. Empty ids are assigned.
func (s *BetStore) CreatePair(ctx context.Context, a, b domain.BetInsert) (domain.Bet, domain.Bet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bet{}, domain.Bet{}, fmt.Errorf("sqlite: begin create pair: %w", err)
	}
	defer tx.Rollback()

	ts := formatTime(s.now())
	var legs [2]domain.Bet
	for i, in := range []domain.BetInsert{a, b} {
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, insertBet,
			in.ID, in.BettingHouse, in.Sport, in.League, in.TeamA, in.TeamB, in.BetType,
			string(in.SelectedSide), in.Odds.String(), in.Stake.String(), in.Payout.String(),
			formatTime(in.GameDate), in.IsVerified,
			in.PairID, string(in.Position),
			in.TotalPairStake.String(), in.ProfitPercentage.String(),
			ts, ts,
		)
		if err != nil {
			return domain.Bet{}, domain.Bet{}, fmt.Errorf("sqlite: insert bet %s: %w", in.ID, err)
		}
		if legs[i], err = getBet(ctx, tx, in.ID); err != nil {
			return domain.Bet{}, domain.Bet{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Bet{}, domain.Bet{}, fmt.Errorf("sqlite: commit create pair: %w", err)
	}
	return legs[0], legs[1], nil
}

// UpdateStatus sets one bet's status, optionally only when it still holds
// the expected status.
func (s *BetStore) UpdateStatus(ctx context.Context, id string, status domain.BetStatus, expected *domain.BetStatus) (domain.Bet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("sqlite: begin update status: %w", err)
	}
	defer tx.Rollback()

	current, err := getBet(ctx, tx, id)
	if err != nil {
		return domain.Bet{}, err
	}
	if expected != nil && current.Status != *expected {
		return domain.Bet{}, domain.ErrStatusConflict
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE bets SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(s.now()), id,
	); err != nil {
		return domain.Bet{}, fmt.Errorf("sqlite: update bet status %s: %w", id, err)
	}
	updated, err := getBet(ctx, tx, id)
	if err != nil {
		return domain.Bet{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bet{}, fmt.Errorf("sqlite: commit update status %s: %w", id, err)
	}
	return updated, nil
}

// UpdatePair reads the legs of a pair, hands them to fn and applies the
// returned changes in one transaction. The single-connection pool means no
// other transaction can interleave.
func (s *BetStore) UpdatePair(ctx context.Context, pairID string, fn domain.PairUpdateFunc) ([]domain.Bet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin update pair: %w", err)
	}
	defer tx.Rollback()

	const pairQuery = `SELECT ` + betSelectCols + ` FROM bets WHERE pair_id = ? ORDER BY bet_position`

	legs, err := queryBets(ctx, tx, pairQuery, pairID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read pair %s: %w", pairID, err)
	}
	if len(legs) == 0 {
		return nil, domain.ErrNotFound
	}

	changes, err := fn(legs)
	if err != nil {
		return nil, err
	}

	ts := formatTime(s.now())
	for _, c := range changes {
		if c.From == c.To {
			continue
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE bets SET status = ?, updated_at = ? WHERE id = ? AND pair_id = ? AND status = ?`,
			string(c.To), ts, c.BetID, pairID, string(c.From),
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: settle bet %s: %w", c.BetID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, domain.ErrStatusConflict
		}
	}

	legs, err = queryBets(ctx, tx, pairQuery, pairID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reload pair %s: %w", pairID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit update pair %s: %w", pairID, err)
	}
	return legs, nil
}

// ListSettledBefore returns legs of fully resolved pairs created before the
// cutoff.
func (s *BetStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Bet, error) {
	const query = `
		SELECT ` + betSelectCols + `
		FROM bets b
		WHERE b.pair_id IS NOT NULL
		  AND b.created_at < ?
		  AND NOT EXISTS (
			SELECT 1 FROM bets o WHERE o.pair_id = b.pair_id AND o.status = 'pending'
		  )
		ORDER BY b.created_at, b.pair_id, b.bet_position`

	bets, err := queryBets(ctx, s.db, query, formatTime(before))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list settled bets: %w", err)
	}
	return bets, nil
}
