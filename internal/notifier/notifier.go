// Package notifier pushes capture events to realtime subscribers.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/logger"
	"github.com/Miguel-Alzate/modr/internal/pkg/metrics"
)

// Notifier delivers one event on one topic. Implementations must not block
// the caller on slow subscribers.
type Notifier interface {
	Publish(ctx context.Context, topic string, ev model.Event)
}

// Message is the wire envelope shared by every transport.
type Message struct {
	Topic  string      `json:"event"`
	Data   model.Event `json:"data"`
	SentAt time.Time   `json:"sent_at"`
}

func encode(topic string, ev model.Event) ([]byte, error) {
	return json.Marshal(Message{Topic: topic, Data: ev, SentAt: time.Now().UTC()})
}

// Multi fans an event out to several notifiers.
type Multi []Notifier

func (m Multi) Publish(ctx context.Context, topic string, ev model.Event) {
	for _, n := range m {
		deliver(ctx, n, topic, ev)
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, model.Event) {}

// Announce emits the events for a committed capture: always new_request,
// and error_request as well when the status is 400 or above.
func Announce(ctx context.Context, n Notifier, ev model.Event) {
	if n == nil {
		return
	}
	if deliver(ctx, n, model.TopicNewRequest, ev) {
		metrics.EventsTotal.WithLabelValues(model.TopicNewRequest).Inc()
	}
	if ev.IsError() && deliver(ctx, n, model.TopicErrorRequest, ev) {
		metrics.EventsTotal.WithLabelValues(model.TopicErrorRequest).Inc()
	}
}

// deliver publishes one event and keeps a panicking notifier from unwinding
// into the capture that triggered it. It reports whether Publish returned.
func deliver(ctx context.Context, n Notifier, topic string, ev model.Event) (ok bool) {
	if n == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notifier panicked", "topic", topic, "request_id", ev.ID.String(), "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	n.Publish(ctx, topic, ev)
	return true
}
