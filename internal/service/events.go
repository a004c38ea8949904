package service

import (
	"context"
	"errors"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// Fanout publishes each event to every wrapped publisher and joins their
// errors. Nil entries are skipped.
type Fanout []domain.EventPublisher

// PublishBetEvent implements domain.EventPublisher.
func (f Fanout) PublishBetEvent(ctx context.Context, evt domain.BetEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishBetEvent(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ domain.EventPublisher = Fanout(nil)
