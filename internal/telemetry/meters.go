package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Meters holds the domain counters for the matching core.
type Meters struct {
	LikesRecorded   metric.Int64Counter
	MutualMatches   metric.Int64Counter
	MessagesSent    metric.Int64Counter
	DecryptFailures metric.Int64Counter
}

// NewMeters registers the matching-core instruments on the global meter provider.
func NewMeters() (*Meters, error) {
	meter := otel.Meter("scentmatch/core")

	likes, err := meter.Int64Counter("scentmatch.likes.recorded",
		metric.WithDescription("Like and pass decisions recorded"))
	if err != nil {
		return nil, err
	}

	mutual, err := meter.Int64Counter("scentmatch.matches.mutual",
		metric.WithDescription("Matches that reached the mutual state"))
	if err != nil {
		return nil, err
	}

	messages, err := meter.Int64Counter("scentmatch.messages.sent",
		metric.WithDescription("Messages persisted"))
	if err != nil {
		return nil, err
	}

	decryptFailures, err := meter.Int64Counter("scentmatch.messages.decrypt_failures",
		metric.WithDescription("Messages that failed authenticated decryption on read"))
	if err != nil {
		return nil, err
	}

	return &Meters{
		LikesRecorded:   likes,
		MutualMatches:   mutual,
		MessagesSent:    messages,
		DecryptFailures: decryptFailures,
	}, nil
}

// RecordDecision counts a like or pass decision.
func (m *Meters) RecordDecision(ctx context.Context, decision string) {
	if m == nil {
		return
	}
	m.LikesRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}
