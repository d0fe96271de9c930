package events

import (
	"context"
	"errors"

	"github.com/ignatzorin/barter-backend/internal/domain/repository"
)

// Fanout публикует событие во все каналы. Ошибка одного канала не мешает остальным.
type Fanout struct {
	publishers []repository.EventPublisher
}

var _ repository.EventPublisher = (*Fanout)(nil)

func NewFanout(publishers ...repository.EventPublisher) *Fanout {
	out := &Fanout{}
	for _, p := range publishers {
		if p != nil {
			out.publishers = append(out.publishers, p)
		}
	}
	return out
}

func (f *Fanout) Publish(ctx context.Context, event repository.Event) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
