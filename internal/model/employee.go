package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultPayPeriodHours applies when an event carries no pay-period hours.
var DefaultPayPeriodHours = decimal.NewFromInt(40)

// Employee is the read-side projection persisted in employee_records.
type Employee struct {
	ID             uuid.UUID           `db:"id"               json:"id"`
	FirstName      string              `db:"first_name"       json:"firstName"`
	LastName       string              `db:"last_name"        json:"lastName"`
	Email          string              `db:"email"            json:"email"`
	PayType        PayType             `db:"pay_type"         json:"payType"`
	PayRate        decimal.NullDecimal `db:"pay_rate"         json:"payRate"`
	PayPeriodHours decimal.Decimal     `db:"pay_period_hours" json:"payPeriodHours"`
	IsActive       bool                `db:"is_active"        json:"isActive"`

	// idempotency
	LastEventID        string    `db:"last_event_id"        json:"lastEventId"`
	LastEventTimestamp time.Time `db:"last_event_timestamp" json:"lastEventTimestamp"`
	LastEventType      string    `db:"last_event_type"      json:"lastEventType"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	PayAttributes *PayAttributes `db:"-" json:"payAttributes,omitempty"`
}

// Clone returns a deep copy so callers can mutate without aliasing the stored value.
func (e Employee) Clone() Employee {
	c := e
	if e.PayAttributes != nil {
		pa := *e.PayAttributes
		c.PayAttributes = &pa
	}
	return c
}
