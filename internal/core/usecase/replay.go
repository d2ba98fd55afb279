package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
)

type ReplayEvent struct {
	Envelope domain.EventEnvelope `json:"envelope"`
	AuditID  int64                `json:"audit_id"`
}

// ReplayOwnerEvents feeds the owner's audit trail, oldest first, through codec
// and into applyFn. It stops at the first error.
func ReplayOwnerEvents(ctx context.Context, audit *AuditService, codec *EventCodec, ownerID string, batchSize int, applyFn func(ReplayEvent) error) error {
	afterID := int64(0)
	for {
		events, err := audit.List(ctx, domain.AuditFilter{OwnerID: ownerID, AfterID: afterID, Limit: batchSize})
		if err != nil {
			return fmt.Errorf("list audit events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		for _, e := range events {
			envelope := domain.EventEnvelope{
				EventID:          e.EventID,
				EventType:        e.Action,
				SchemaVersion:    e.SchemaVersion,
				OwnerID:          e.OwnerID,
				AggregateType:    e.AggregateType,
				AggregateID:      e.AggregateID,
				AggregateVersion: e.AggregateVersion,
				OccurredAt:       e.OccurredAt,
				CorrelationID:    e.CorrelationID,
				CausationID:      e.CausationID,
				Actor:            e.Actor,
				Source:           e.Source,
			}
			switch {
			case len(e.AfterJSON) > 0:
				envelope.Payload = e.AfterJSON
			case len(e.BeforeJSON) > 0:
				envelope.Payload = e.BeforeJSON
			default:
				envelope.Payload = json.RawMessage(`{}`)
			}

			normalized, err := codec.Normalize(envelope)
			if err != nil {
				return fmt.Errorf("normalize event %s: %w", e.EventID, err)
			}

			if err := applyFn(ReplayEvent{Envelope: normalized, AuditID: e.ID}); err != nil {
				return fmt.Errorf("apply replay event %s: %w", e.EventID, err)
			}
			afterID = e.ID
		}
	}
}
