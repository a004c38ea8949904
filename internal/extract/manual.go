package extract

import (
	"context"
	"time"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// Manual implements domain.Extractor without reading the image. It returns
// an empty two-leg template dated today for the verification form, so the
// upload flow still works when no model is configured.
type Manual struct {
	now func() time.Time
}

// NewManual creates a Manual extractor.
func NewManual() *Manual {
	return &Manual{now: time.Now}
}

// Name identifies the extractor.
func (m *Manual) Name() string { return "manual" }

// Extract returns the blank template.
func (m *Manual) Extract(context.Context, []byte, string) (domain.OCRData, error) {
	y, mo, d := m.now().UTC().Date()
	return domain.OCRData{
		BetA:     domain.LegInput{SelectedSide: domain.SideA},
		BetB:     domain.LegInput{SelectedSide: domain.SideB},
		GameDate: time.Date(y, mo, d, 0, 0, 0, 0, time.UTC),
	}, nil
}

var _ domain.Extractor = (*Manual)(nil)
