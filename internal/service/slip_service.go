package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/surebet/internal/domain"
)

const slipPrefix = "slips/"

// SlipStore is the slice of blob storage the slip archive needs.
type SlipStore interface {
	domain.BlobReader
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// SlipResult is the extractor output returned to the verification form. The
// data is unverified until the user submits it as a pair.
type SlipResult struct {
	domain.OCRData
	Digest     string `json:"digest"`
	ImageKey   string `json:"imageKey,omitempty"`
	Extractor  string `json:"extractor"`
	Cached     bool   `json:"cached"`
	IsVerified bool   `json:"isVerified"`
}

// SlipService turns uploaded slip images into pair submissions. Images are
// archived and extractions cached by content digest when those backends
// are configured.
type SlipService struct {
	extractor domain.Extractor
	cache     domain.ExtractionCache
	slips     SlipStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewSlipService creates a SlipService. cache and slips may be nil.
func NewSlipService(extractor domain.Extractor, cache domain.ExtractionCache, slips SlipStore, logger *slog.Logger) *SlipService {
	return &SlipService{
		extractor: extractor,
		cache:     cache,
		slips:     slips,
		logger:    logger.With(slog.String("component", "slip_service")),
		now:       time.Now,
	}
}

// Process archives the image, then returns a cached extraction for the same
// digest or runs the extractor.
func (s *SlipService) Process(ctx context.Context, image []byte, contentType string) (SlipResult, error) {
	if len(image) == 0 {
		return SlipResult{}, fmt.Errorf("slip_service: %w: empty image", domain.ErrValidation)
	}

	sum := sha256.Sum256(image)
	digest := hex.EncodeToString(sum[:])
	res := SlipResult{Digest: digest, Extractor: s.extractor.Name()}
	res.ImageKey = s.archive(ctx, image, contentType, digest)

	if s.cache != nil {
		data, err := s.cache.Get(ctx, digest)
		switch {
		case err == nil:
			res.OCRData = data
			res.Cached = true
			return res, nil
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "extraction cache read failed",
				slog.String("digest", digest),
				slog.String("error", err.Error()),
			)
		}
	}

	start := s.now()
	data, err := s.extractor.Extract(ctx, image, contentType)
	if err != nil {
		s.logger.ErrorContext(ctx, "slip extraction failed",
			slog.String("digest", digest),
			slog.String("extractor", s.extractor.Name()),
			slog.String("error", err.Error()),
		)
		return SlipResult{}, fmt.Errorf("slip_service: extract: %w", err)
	}
	s.logger.InfoContext(ctx, "slip extracted",
		slog.String("digest", digest),
		slog.String("extractor", s.extractor.Name()),
		slog.Duration("took", s.now().Sub(start)),
	)
	res.OCRData = data

	if s.cache != nil {
		if err := s.cache.Set(ctx, digest, data); err != nil {
			s.logger.WarnContext(ctx, "extraction cache write failed",
				slog.String("digest", digest),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}

// archive stores the image once per day and digest. It returns the object
// key, or "" when the image could not be stored.
func (s *SlipService) archive(ctx context.Context, image []byte, contentType, digest string) string {
	if s.slips == nil {
		return ""
	}
	key := SlipKey(s.now(), digest, contentType)

	exists, err := s.slips.Exists(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "slip exists check failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	if exists {
		return key
	}
	if err := s.slips.Put(ctx, key, bytes.NewReader(image), contentType); err != nil {
		s.logger.ErrorContext(ctx, "slip upload failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return key
}

// OpenSlip returns an archived slip image and its content type. Keys outside
// the slips/ prefix are reported as not found.
func (s *SlipService) OpenSlip(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if s.slips == nil || !strings.HasPrefix(key, slipPrefix) || strings.Contains(key, "..") {
		return nil, "", fmt.Errorf("slip_service: slip %q: %w", key, domain.ErrNotFound)
	}
	rc, err := s.slips.Get(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("slip_service: open slip %s: %w", key, err)
	}
	return rc, slipContentType(key), nil
}

// SlipKey builds the object key for a slip image, e.g.
// slips/2025/09/20/<sha256>.png.
func SlipKey(at time.Time, digest, contentType string) string {
	return fmt.Sprintf(slipPrefix+"%s/%s.%s", at.UTC().Format("2006/01/02"), digest, imageExt(contentType))
}

func imageExt(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/heic":
		return "heic"
	case "image/bmp":
		return "bmp"
	default:
		return "bin"
	}
}

func slipContentType(key string) string {
	ext := key[strings.LastIndexByte(key, '.')+1:]
	switch ext {
	case "jpg":
		return "image/jpeg"
	case "png", "webp", "gif", "heic", "bmp":
		return "image/" + ext
	default:
		return "application/octet-stream"
	}
}
