// Package events is a small in-process publish/subscribe bus. Modules publish
// facts about leads; side effects such as operator alerts subscribe to them.
package events

import (
	"context"
	"time"
)

// Event is a named fact with the time it happened.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the occurrence time. Embed it in concrete events.
type BaseEvent struct {
	Timestamp time.Time `json:"occurredAt"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps an event with the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Publisher is the side the lead pipeline depends on. Publish must not block
// on handlers; PublishSync returns their joined errors.
type Publisher interface {
	Publish(ctx context.Context, event Event)
	PublishSync(ctx context.Context, event Event) error
}

// Subscriber registers handlers by event name, as returned by EventName.
type Subscriber interface {
	Subscribe(eventName string, handler Handler)
}

// Bus is both sides of the event bus.
type Bus interface {
	Publisher
	Subscriber
}
