package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// wireEvent is the union of both upstream layouts: the event projection
// (eventId/eventType/occurredOn/employeeId at the top level) and the aggregate
// state the outbox exporter publishes by mistake (id + domainEvents[]).
type wireEvent struct {
	EventID    string    `json:"eventId,omitempty"`
	OccurredOn *wireTime `json:"occurredOn,omitempty"`
	EventType  string    `json:"eventType,omitempty"`
	EmployeeID string    `json:"employeeId,omitempty"`

	ID             string              `json:"id,omitempty"`
	FirstName      string              `json:"firstName"`
	LastName       string              `json:"lastName"`
	Email          string              `json:"email"`
	PayType        *int                `json:"payType,omitempty"`
	PayRate        decimal.NullDecimal `json:"payRate"`
	PayPeriodHours decimal.NullDecimal `json:"payPeriodHours"`
	IsActive       *bool               `json:"isActive,omitempty"`

	DomainEvents []wireDomainEvent `json:"domainEvents,omitempty"`
}

type wireDomainEvent struct {
	EventID    string    `json:"eventId"`
	OccurredOn *wireTime `json:"occurredOn"`
	EventType  string    `json:"eventType"`
}

// wireBox is the transport wrapper whose data is either an object or a
// JSON document encoded as a string.
type wireBox struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
}

// wireTime accepts RFC 3339 timestamps with or without a zone designator.
// Zone-less values are read as UTC.
type wireTime struct {
	time.Time
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *wireTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = v
		return nil
	}
	for _, layout := range zonelessLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

func (t wireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *wireTime) value() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time
}

func newWireTime(v time.Time) *wireTime {
	if v.IsZero() {
		return nil
	}
	return &wireTime{Time: v}
}

// blankEventID treats the upstream Guid.Empty rendering like a missing id.
func blankEventID(s string) bool {
	if s == "" {
		return true
	}
	id, err := uuid.Parse(s)
	return err == nil && id == uuid.Nil
}
