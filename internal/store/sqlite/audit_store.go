package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// AuditStore implements domain.AuditStore on SQLite.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates an AuditStore on the given database.
func NewAuditStore(d *DB) *AuditStore {
	return &AuditStore{db: d.db}
}

// Log appends an audit entry; detail is stored as JSON text.
func (s *AuditStore) Log(ctx context.Context, event, subject string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (event, subject, detail, created_at) VALUES (?, ?, ?, ?)`,
		event, subject, string(detailJSON), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: log audit event %s for %s: %w", event, subject, err)
	}
	return nil
}

// List returns audit entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, event, subject, detail, created_at FROM audit_log WHERE 1=1`
	var args []any
	if opts.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(*opts.Since))
	}
	if opts.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, formatTime(*opts.Until))
	}
	query += ` ORDER BY id DESC`
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, opts.Offset)
	}
	return s.query(ctx, query, args...)
}

// History returns every entry recorded for subject in insertion order.
func (s *AuditStore) History(ctx context.Context, subject string) ([]domain.AuditEntry, error) {
	return s.query(ctx,
		`SELECT id, event, subject, detail, created_at FROM audit_log WHERE subject = ? ORDER BY id`,
		subject)
}

func (s *AuditStore) query(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detail sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Event, &e.Subject, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid && detail.String != "" && detail.String != "null" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: parse audit time: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
