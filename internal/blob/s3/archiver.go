package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/surebet/internal/arbitrage"
	"github.com/alanyoungcy/surebet/internal/domain"
)

// multipartThreshold switches archive uploads to the multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// SettledBetSource is the slice of domain.BetStore the archiver reads.
type SettledBetSource interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Bet, error)
}

// ArchivedPair is one JSONL line in a bet archive file.
type ArchivedPair struct {
	PairID           string          `json:"pairId"`
	CreatedAt        time.Time       `json:"createdAt"`
	Legs             []domain.Bet    `json:"legs"`
	TotalStake       decimal.Decimal `json:"totalStake"`
	GuaranteedProfit decimal.Decimal `json:"guaranteedProfit"`
	RealizedProfit   decimal.Decimal `json:"realizedProfit"`
}

// Archiver implements domain.Archiver. It copies fully resolved pairs to
// archive/bets/YYYY-MM.jsonl, one file per creation month. Each run rewrites
// the month files it touches; rows stay in the primary store.
type Archiver struct {
	writer domain.BlobWriter
	bets   SettledBetSource
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, bets SettledBetSource, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, bets: bets, audit: audit}
}

// ArchiveSettled uploads every settled pair created before the cutoff and
// returns the number of pairs written.
func (a *Archiver) ArchiveSettled(ctx context.Context, before time.Time) (int64, error) {
	bets, err := a.bets.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(bets) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]ArchivedPair)
	for _, p := range groupPairs(bets) {
		month := p.CreatedAt.UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], p)
	}

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	var total int64
	for _, month := range months {
		pairs := byMonth[month]
		buf, err := marshalJSONL(pairs)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive marshal %s: %w", month, err)
		}

		path := archivePath(month)
		if len(buf) > multipartThreshold {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
		}
		if err != nil {
			return total, fmt.Errorf("s3blob: archive upload %s: %w", path, err)
		}
		total += int64(len(pairs))

		if a.audit != nil {
			if err := a.audit.Log(ctx, "archive.bets", path, map[string]any{
				"count":  len(pairs),
				"before": before.UTC().Format(time.RFC3339),
			}); err != nil {
				return total, fmt.Errorf("s3blob: archive audit log: %w", err)
			}
		}
	}
	return total, nil
}

// groupPairs folds legs into ArchivedPair records, keeping the order in which
// each pair first appears.
func groupPairs(bets []domain.Bet) []ArchivedPair {
	index := make(map[string]int)
	var pairs []ArchivedPair
	for _, b := range bets {
		i, ok := index[b.PairID]
		if !ok {
			i = len(pairs)
			index[b.PairID] = i
			pairs = append(pairs, ArchivedPair{PairID: b.PairID, CreatedAt: b.CreatedAt})
		}
		pairs[i].Legs = append(pairs[i].Legs, b)
	}

	for i := range pairs {
		p := &pairs[i]
		p.TotalStake = decimal.Zero
		for _, l := range p.Legs {
			p.TotalStake = p.TotalStake.Add(l.Stake)
		}
		if len(p.Legs) == 2 {
			a, b := p.Legs[0], p.Legs[1]
			p.GuaranteedProfit = arbitrage.GuaranteedProfit(a.Stake, b.Stake, a.Payout, b.Payout)
		}
		p.RealizedProfit = arbitrage.Summarize(p.Legs).NetProfit
	}
	return pairs
}

// archivePath builds the key for a month's archive file, e.g.
// archive/bets/2025-01.jsonl.
func archivePath(month string) string {
	return fmt.Sprintf("archive/bets/%s.jsonl", month)
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
