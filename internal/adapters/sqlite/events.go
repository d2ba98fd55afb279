package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
)

type auditEventModel struct {
	ID               int64     `gorm:"column:id;primaryKey;autoIncrement"`
	EventID          string    `gorm:"column:event_id;not null"`
	SchemaVersion    int       `gorm:"column:schema_version;not null"`
	OwnerID          string    `gorm:"column:owner_id;not null"`
	AggregateType    string    `gorm:"column:aggregate_type;not null"`
	AggregateID      string    `gorm:"column:aggregate_id;not null"`
	AggregateVersion int64     `gorm:"column:aggregate_version;not null"`
	Action           string    `gorm:"column:action;not null"`
	Actor            string    `gorm:"column:actor;not null"`
	Source           string    `gorm:"column:source;not null"`
	RequestID        string    `gorm:"column:request_id;not null"`
	CorrelationID    string    `gorm:"column:correlation_id;not null"`
	CausationID      string    `gorm:"column:causation_id;not null"`
	IdempotencyKey   string    `gorm:"column:idempotency_key;not null"`
	BeforeJSON       *string   `gorm:"column:before_json"`
	AfterJSON        *string   `gorm:"column:after_json"`
	OccurredAt       time.Time `gorm:"column:occurred_at;not null"`
}

func (auditEventModel) TableName() string {
	return "audit_events"
}

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	OwnerID       string     `gorm:"column:owner_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string {
	return "outbox_events"
}

// mutation is one aggregate change to record in the audit trail and the
// outbox. before and after are the JSON snapshots of the aggregate.
type mutation struct {
	ownerID       string
	aggregateType string
	aggregateID   string
	eventType     string
	before        json.RawMessage
	after         json.RawMessage
	payload       any
}

// recordMutation writes the audit row and the outbox row for m inside tx.
// It must run in the same transaction as the change itself.
func recordMutation(tx *gorm.DB, m mutation, meta domain.MutationMetadata) error {
	version, err := nextAggregateVersion(tx, m.ownerID, m.aggregateType, m.aggregateID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(m.payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	occurredAt := meta.OccurredAt.UTC()
	envelope := domain.EventEnvelope{
		EventID:          uuid.NewString(),
		EventType:        m.eventType,
		SchemaVersion:    domain.CurrentEventSchemaVersion,
		OwnerID:          m.ownerID,
		AggregateType:    m.aggregateType,
		AggregateID:      m.aggregateID,
		AggregateVersion: version,
		OccurredAt:       occurredAt,
		CorrelationID:    meta.CorrelationID,
		CausationID:      meta.CausationID,
		Actor:            meta.Actor,
		Source:           meta.Source,
		Payload:          payload,
	}

	audit := auditEventModel{
		EventID:          envelope.EventID,
		SchemaVersion:    envelope.SchemaVersion,
		OwnerID:          m.ownerID,
		AggregateType:    m.aggregateType,
		AggregateID:      m.aggregateID,
		AggregateVersion: version,
		Action:           m.eventType,
		Actor:            meta.Actor,
		Source:           meta.Source,
		RequestID:        meta.RequestID,
		CorrelationID:    meta.CorrelationID,
		CausationID:      meta.CausationID,
		IdempotencyKey:   meta.IdempotencyKey,
		BeforeJSON:       optionalJSON(m.before),
		AfterJSON:        optionalJSON(m.after),
		OccurredAt:       occurredAt,
	}
	if err := tx.Create(&audit).Error; err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	outbox := outboxEventModel{
		EventID:       envelope.EventID,
		OwnerID:       m.ownerID,
		Topic:         domain.OutboxTopic(m.ownerID, m.eventType),
		PayloadJSON:   string(body),
		Status:        "pending",
		NextAttemptAt: occurredAt,
		CreatedAt:     occurredAt,
	}
	if err := tx.Create(&outbox).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func nextAggregateVersion(tx *gorm.DB, ownerID, aggregateType, aggregateID string) (int64, error) {
	var maxVersion int64
	err := tx.Model(&auditEventModel{}).
		Where("owner_id = ? AND aggregate_type = ? AND aggregate_id = ?", ownerID, aggregateType, aggregateID).
		Select("COALESCE(MAX(aggregate_version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, fmt.Errorf("query aggregate version: %w", err)
	}
	return maxVersion + 1, nil
}

func optionalJSON(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}
