package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/surebet/internal/domain"
)

type fakeBlobArchiver struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakeBlobArchiver) ArchiveSettled(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return f.n, f.err
}

func (f *fakeBlobArchiver) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

type fakeLocks struct {
	held     bool
	err      error
	released int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.held = true
	return func() { l.held = false; l.released++ }, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiver_RunOnce(t *testing.T) {
	blob := &fakeBlobArchiver{n: 3}
	locks := &fakeLocks{}
	a := NewArchiver(blob, locks, ArchiveConfig{RetentionDays: 30}, quietLogger())
	a.now = func() time.Time { return time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC) }

	n, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, blob.cutoffs, 1)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), blob.cutoffs[0])
	assert.Equal(t, 1, locks.released)
	assert.False(t, locks.held)
}

func TestArchiver_SkipsWhenLockHeld(t *testing.T) {
	blob := &fakeBlobArchiver{}
	a := NewArchiver(blob, &fakeLocks{held: true}, ArchiveConfig{RetentionDays: 1}, quietLogger())

	n, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, blob.runs())
}

func TestArchiver_Errors(t *testing.T) {
	boom := errors.New("boom")

	_, err := NewArchiver(&fakeBlobArchiver{}, &fakeLocks{err: boom}, ArchiveConfig{}, quietLogger()).RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)

	locks := &fakeLocks{}
	_, err = NewArchiver(&fakeBlobArchiver{err: boom}, locks, ArchiveConfig{}, quietLogger()).RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, locks.released)
}

func TestArchiver_RunStopsOnCancel(t *testing.T) {
	blob := &fakeBlobArchiver{}
	a := NewArchiver(blob, nil, ArchiveConfig{Interval: time.Hour}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return blob.runs() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("archiver did not stop")
	}
}

func TestArchiver_RequiresInterval(t *testing.T) {
	a := NewArchiver(&fakeBlobArchiver{}, nil, ArchiveConfig{}, quietLogger())
	assert.Error(t, a.Run(context.Background()))
}
