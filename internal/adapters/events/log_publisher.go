package events

import (
	"context"
	"log"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
)

// LogPublisher writes each event to the standard logger. It is the publisher
// used when no webhook is configured.
type LogPublisher struct {
	logger *log.Logger
}

func NewLogPublisher(logger *log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.logger.Printf("outbox publish topic=%s event_id=%s event_type=%s owner=%s aggregate=%s/%s version=%d payload_bytes=%d",
		topic, event.EventID, event.EventType, event.OwnerID, event.AggregateType, event.AggregateID, event.AggregateVersion, len(event.Payload))
	return nil
}
