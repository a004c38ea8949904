package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidStatus    = errors.New("invalid bet status")
	ErrValidation       = errors.New("validation failed")
	ErrStatusConflict   = errors.New("bet status changed concurrently")
	ErrSiblingWon       = errors.New("sibling leg already won")
	ErrExtractionFailed = errors.New("slip extraction failed")
	ErrLockHeld         = errors.New("lock already held")
)
