package domain

import "context"

// Extractor turns a bet-slip screenshot into a best-effort paired submission.
// Its output is untrusted and must be validated before it is persisted.
type Extractor interface {
	Extract(ctx context.Context, image []byte, contentType string) (OCRData, error)
	Name() string
}
