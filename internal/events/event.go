package events

import (
	"context"
	"time"
)

type Type string

const (
	ProductCreated Type = "product.created"
	ProductUpdated Type = "product.updated"
	ProductDeleted Type = "product.deleted"

	OrderCreated       Type = "order.created"
	OrderUpdated       Type = "order.updated"
	OrderStatusChanged Type = "order.status_changed"
	OrderDeleted       Type = "order.deleted"
)

const (
	ResourceProduct = "product"
	ResourceOrder   = "order"
)

type Event struct {
	Type       Type        `json:"type"`
	Resource   string      `json:"resource"`
	ID         string      `json:"id"`
	OccurredAt time.Time   `json:"occurredAt"`
	Data       interface{} `json:"data,omitempty"`
}

func New(t Type, resource, id string, data interface{}, now time.Time) Event {
	return Event{Type: t, Resource: resource, ID: id, OccurredAt: now.UTC(), Data: data}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
