package notification

import (
	"context"
	"time"

	"github.com/scentmatch/scentmatch/internal/telemetry"
)

// EventType identifies what happened.
type EventType string

const (
	EventMutualMatch EventType = "match.mutual"
	EventNewMessage  EventType = "message.new"
)

// Event describes a notification-worthy state change.
type Event struct {
	Type        EventType
	MatchID     string
	ActorID     string
	RecipientID string
	Text        string
}

// Sender delivers an event over one channel.
type Sender interface {
	Send(ctx context.Context, event Event) error
}

// Notifier fans events out to senders. Delivery is fire-and-forget: a
// failed or slow notification must never fail the state transition that
// produced it.
type Notifier struct {
	senders []Sender
	timeout time.Duration
}

// NewNotifier creates a notifier over the given senders.
func NewNotifier(senders ...Sender) *Notifier {
	return &Notifier{
		senders: senders,
		timeout: 10 * time.Second,
	}
}

// Notify dispatches the event asynchronously to every sender.
func (n *Notifier) Notify(event Event) {
	if n == nil {
		return
	}
	for _, sender := range n.senders {
		go func(s Sender) {
			ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
			defer cancel()
			ctx = telemetry.WithCorrelationID(ctx, telemetry.NewCorrelationID())

			if err := s.Send(ctx, event); err != nil {
				telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
					"operation":  "notify",
					"event_type": string(event.Type),
					"match_id":   event.MatchID,
				}).WithError(err).Warn("Failed to deliver notification")
			}
		}(sender)
	}
}
