package usecase

import (
	"encoding/json"
	"fmt"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
)

// Upcaster rewrites an event payload from one envelope schema version to the
// next.
type Upcaster interface {
	FromVersion() int
	ToVersion() int
	Upcast(payload json.RawMessage) (json.RawMessage, error)
}

type EventCodec struct {
	upcasters map[int]Upcaster
}

func NewEventCodec(upcasters ...Upcaster) *EventCodec {
	m := make(map[int]Upcaster, len(upcasters))
	for _, up := range upcasters {
		m[up.FromVersion()] = up
	}
	return &EventCodec{upcasters: m}
}

// Decode parses a stored envelope and brings it to the current version.
func (c *EventCodec) Decode(raw json.RawMessage) (domain.EventEnvelope, error) {
	var envelope domain.EventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.EventEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return c.Normalize(envelope)
}

// Normalize upcasts envelope to domain.CurrentEventSchemaVersion. Envelopes
// written by a newer version are rejected.
func (c *EventCodec) Normalize(envelope domain.EventEnvelope) (domain.EventEnvelope, error) {
	if envelope.SchemaVersion > domain.CurrentEventSchemaVersion {
		return domain.EventEnvelope{}, fmt.Errorf("unsupported event schema version %d", envelope.SchemaVersion)
	}

	v := envelope.SchemaVersion
	payload := envelope.Payload
	for v < domain.CurrentEventSchemaVersion {
		up, ok := c.upcasters[v]
		if !ok {
			return domain.EventEnvelope{}, fmt.Errorf("missing upcaster from version %d", v)
		}
		next, err := up.Upcast(payload)
		if err != nil {
			return domain.EventEnvelope{}, fmt.Errorf("upcast %d->%d: %w", up.FromVersion(), up.ToVersion(), err)
		}
		payload = next
		v = up.ToVersion()
	}

	envelope.SchemaVersion = v
	envelope.Payload = payload
	return envelope, nil
}
