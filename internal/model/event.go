package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventEmployeeCreated     = "employee.created"
	EventEmployeeUpdated     = "employee.updated"
	EventEmployeeDeactivated = "employee.deactivated"
	EventEmployeeActivated   = "employee.activated"
)

// Shape records which wire layout an event was decoded from.
type Shape string

const (
	ShapeDirect      Shape = "direct"
	ShapeEntityState Shape = "entity_state"
	ShapeUnresolved  Shape = "unresolved"
)

// MissingOccurredAt stands in for an absent occurredOn on an identified
// event. It is older than any real event time and still fits DATETIME(6).
var MissingOccurredAt = time.Unix(0, 0).UTC()

// CanonicalEvent is the shape-independent form of an employee domain event.
type CanonicalEvent struct {
	EntityID   uuid.UUID `json:"entity_id"`
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`

	FirstName      string              `json:"first_name"`
	LastName       string              `json:"last_name"`
	Email          string              `json:"email"`
	PayType        *int                `json:"pay_type,omitempty"`
	PayRate        decimal.NullDecimal `json:"pay_rate"`
	PayPeriodHours decimal.NullDecimal `json:"pay_period_hours"`
	IsActive       *bool               `json:"is_active,omitempty"`
}

// Active reports the payload's active flag, defaulting to true when absent.
func (e CanonicalEvent) Active() bool {
	if e.IsActive == nil {
		return true
	}
	return *e.IsActive
}

// Identified is false when neither wire shape carried an event id.
func (e CanonicalEvent) Identified() bool {
	return e.EventID != "" && e.EventType != ""
}

// ChangeType strips the category prefix: "employee.created" -> "created".
func ChangeType(eventType string) string {
	if i := strings.IndexByte(eventType, '.'); i >= 0 {
		return eventType[i+1:]
	}
	return eventType
}
