package models

import (
	"time"

	id "census/pkg/domain"
)

// EventType names a domain event published after a committed write.
type EventType string

const (
	EventImportCreated  EventType = "import.created"
	EventCitizenUpdated EventType = "citizen.updated"
)

// Event is emitted after a transaction commits. Consumers use it to
// invalidate projections; it carries identities, not citizen data.
type Event struct {
	Type         EventType      `json:"type"`
	ImportID     id.ImportID    `json:"import_id"`
	CitizenID    *id.CitizenID  `json:"citizen_id,omitempty"`
	CitizenCount int            `json:"citizen_count,omitempty"`
	Relatives    []id.CitizenID `json:"relatives,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
	RequestID    string         `json:"request_id,omitempty"`
}
