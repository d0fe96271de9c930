package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSwapStatusChanged  EventType = "swap.status_changed"
	EventSwapArrivalMarked  EventType = "swap.arrival_marked"
	EventSwapEvidenceAdded  EventType = "swap.evidence_added"
	EventSwapCodeIssued     EventType = "swap.code_issued"
	EventDisputeOpened      EventType = "dispute.opened"
	EventDisputeResolved    EventType = "dispute.resolved"
	EventMultiSwapCreated   EventType = "multiswap.created"
	EventMultiSwapConfirmed EventType = "multiswap.participant_confirmed"
	EventMultiSwapStatus    EventType = "multiswap.status_changed"
)

// Event - уведомление для внешнего канала доставки. Публикуется после фиксации изменения.
type Event struct {
	Type        EventType         `json:"type"`
	AggregateID uuid.UUID         `json:"aggregate_id"`
	Recipients  []uuid.UUID       `json:"recipients"`
	Status      string            `json:"status,omitempty"`
	ActorID     *uuid.UUID        `json:"actor_id,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
