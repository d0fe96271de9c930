package ws

import (
	"context"
	"errors"

	"github.com/ignatzorin/barter-backend/internal/domain/repository"
)

// Notifier доставляет доменные события подключённым участникам.
type Notifier struct {
	hub *Hub
}

var _ repository.EventPublisher = (*Notifier)(nil)

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

func (n *Notifier) Publish(ctx context.Context, event repository.Event) error {
	var errs []error
	for _, userID := range event.Recipients {
		if err := n.hub.BroadcastToUser(ctx, userID, string(event.Type), event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
