package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/surebet/internal/domain"
)

type countingExtractor struct {
	calls int
	err   error
}

func (e *countingExtractor) Name() string { return "fake" }

func (e *countingExtractor) Extract(context.Context, []byte, string) (domain.OCRData, error) {
	e.calls++
	if e.err != nil {
		return domain.OCRData{}, e.err
	}
	return domain.OCRData{BetA: domain.LegInput{BettingHouse: "Betfast"}}, nil
}

type memCache map[string]domain.OCRData

func (c memCache) Get(_ context.Context, digest string) (domain.OCRData, error) {
	d, ok := c[digest]
	if !ok {
		return domain.OCRData{}, domain.ErrNotFound
	}
	return d, nil
}

func (c memCache) Set(_ context.Context, digest string, data domain.OCRData) error {
	c[digest] = data
	return nil
}

type memSlips struct {
	objects map[string][]byte
	puts    int
	putErr  error
}

func (m *memSlips) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.puts++
	m.objects[path] = b
	return nil
}

func (m *memSlips) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memSlips) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

const sampleDigest = "4e8f4e4a0b3d7b1f1b0bd4c6e63c9c8fd3f3c4c8d0d0b3a4b0a3c0b0e4f0c3d2"

func TestSlipService_CachesByDigest(t *testing.T) {
	ex := &countingExtractor{}
	slips := &memSlips{objects: map[string][]byte{}}
	svc := NewSlipService(ex, memCache{}, slips, quietLogger())
	svc.now = func() time.Time { return time.Date(2025, 9, 20, 10, 0, 0, 0, time.UTC) }

	img := []byte("fake png bytes")
	first, err := svc.Process(context.Background(), img, "image/png")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.False(t, first.IsVerified)
	assert.Equal(t, "fake", first.Extractor)
	assert.Equal(t, "Betfast", first.BetA.BettingHouse)
	assert.Len(t, first.Digest, 64)
	assert.Equal(t, "slips/2025/09/20/"+first.Digest+".png", first.ImageKey)

	second, err := svc.Process(context.Background(), img, "image/png")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ImageKey, second.ImageKey)

	assert.Equal(t, 1, ex.calls)
	assert.Equal(t, 1, slips.puts)
}

func TestSlipService_WithoutBackends(t *testing.T) {
	ex := &countingExtractor{}
	svc := NewSlipService(ex, nil, nil, quietLogger())

	res, err := svc.Process(context.Background(), []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Empty(t, res.ImageKey)

	_, err = svc.Process(context.Background(), []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, 2, ex.calls)
}

func TestSlipService_UploadFailureIsNotFatal(t *testing.T) {
	slips := &memSlips{objects: map[string][]byte{}, putErr: errors.New("s3 down")}
	svc := NewSlipService(&countingExtractor{}, nil, slips, quietLogger())

	res, err := svc.Process(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Empty(t, res.ImageKey)
}

func TestSlipService_Errors(t *testing.T) {
	svc := NewSlipService(&countingExtractor{err: domain.ErrExtractionFailed}, memCache{}, nil, quietLogger())

	_, err := svc.Process(context.Background(), nil, "image/png")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Process(context.Background(), []byte("img"), "image/png")
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
}

func TestSlipKey(t *testing.T) {
	at := time.Date(2025, 1, 2, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "slips/2025/01/02/"+sampleDigest+".jpg", SlipKey(at, sampleDigest, "image/jpeg; charset=binary"))
	assert.Equal(t, "slips/2025/01/02/"+sampleDigest+".webp", SlipKey(at, sampleDigest, "IMAGE/WEBP"))
	assert.Equal(t, "slips/2025/01/02/"+sampleDigest+".bin", SlipKey(at, sampleDigest, "application/octet-stream"))
}

func TestSlipService_OpenSlip(t *testing.T) {
	slips := &memSlips{objects: map[string][]byte{}}
	svc := NewSlipService(&countingExtractor{}, nil, slips, quietLogger())

	res, err := svc.Process(context.Background(), []byte("jpeg bytes"), "image/jpeg")
	require.NoError(t, err)

	rc, ct, err := svc.OpenSlip(context.Background(), res.ImageKey)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(body))
	assert.Equal(t, "image/jpeg", ct)

	for _, key := range []string{"archive/bets/2025-01.jsonl", "slips/../archive/x", "slips/2025/01/02/missing.png"} {
		_, _, err := svc.OpenSlip(context.Background(), key)
		assert.ErrorIs(t, err, domain.ErrNotFound, key)
	}

	_, _, err = NewSlipService(&countingExtractor{}, nil, nil, quietLogger()).OpenSlip(context.Background(), res.ImageKey)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
