// Package envelope turns raw broker payloads into canonical events.
//
// Two upstream bugs shape this package: the outbox exporter sometimes
// publishes the aggregate state instead of the event, and the transport may
// box the payload in a wrapper whose "data" field is a JSON string. Both are
// resolved here so nothing downstream branches on wire layout.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/jmehdipour/payroll-projector/internal/model"
	"github.com/jmehdipour/payroll-projector/internal/util"
)

var (
	// ErrDecode marks payloads that are not a recognizable envelope.
	// They are acknowledged and dropped, never retried.
	ErrDecode = errors.New("envelope: decode failed")

	// ErrTombstone marks an empty payload (compacted-topic delete marker).
	ErrTombstone = errors.New("envelope: empty payload")
)

// maxBoxDepth bounds how many transport wrappers are peeled off.
const maxBoxDepth = 2

// Codec decodes and encodes both ingestion channels. It is built once at
// startup and shared; it holds no mutable state.
type Codec struct {
	now func() time.Time
	log *zap.Logger
}

type Option func(*Codec)

// WithClock overrides the clock used for events that carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Codec) { c.log = l }
}

func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		now: time.Now,
		log: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DecodeEmployeeEvent normalizes an employee-events payload. The shape is
// reported beside the event for logging only; both layouts of one event
// yield the same CanonicalEvent.
func (c *Codec) DecodeEmployeeEvent(raw []byte) (model.CanonicalEvent, model.Shape, error) {
	body, err := unbox(raw)
	if err != nil {
		return model.CanonicalEvent{}, "", err
	}

	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return model.CanonicalEvent{}, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return c.resolve(w)
}

// resolve applies the shape rule: direct fields win when both event id and
// type are present, otherwise the first nested domain event is used.
func (c *Codec) resolve(w wireEvent) (model.CanonicalEvent, model.Shape, error) {
	ev := model.CanonicalEvent{
		FirstName:      w.FirstName,
		LastName:       w.LastName,
		Email:          w.Email,
		PayType:        w.PayType,
		PayRate:        w.PayRate,
		PayPeriodHours: w.PayPeriodHours,
		IsActive:       w.IsActive,
	}

	var shape model.Shape
	rawEntityID := w.ID
	switch {
	case !blankEventID(w.EventID) && w.EventType != "":
		shape = model.ShapeDirect
		ev.EventID = w.EventID
		ev.EventType = w.EventType
		ev.OccurredAt = w.OccurredOn.value()
		if w.EmployeeID != "" {
			rawEntityID = w.EmployeeID
		}
	case len(w.DomainEvents) > 0:
		de := w.DomainEvents[0]
		shape = model.ShapeEntityState
		ev.EventID = de.EventID
		if blankEventID(de.EventID) {
			ev.EventID = ""
		}
		ev.EventType = de.EventType
		ev.OccurredAt = de.OccurredOn.value()
	default:
		shape = model.ShapeUnresolved
		ev.OccurredAt = c.now()
	}

	// A resolved event without occurredOn sorts before anything stored, so
	// an existing record rejects it as stale.
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = model.MissingOccurredAt
	}
	// The record store keeps microseconds; comparing at a finer grain would
	// let a redelivered event look newer than its own stored timestamp.
	ev.OccurredAt = ev.OccurredAt.UTC().Truncate(time.Microsecond)

	id, err := util.ParseEntityID(rawEntityID)
	if err != nil {
		return model.CanonicalEvent{}, "", fmt.Errorf("%w: entity id %q: %v", ErrDecode, rawEntityID, err)
	}
	ev.EntityID = id

	if !ev.Identified() {
		c.log.Warn("unidentifiable employee event",
			zap.String("entity_id", id.String()),
			zap.String("shape", string(shape)),
			zap.String("event_id", ev.EventID),
			zap.String("event_type", ev.EventType),
		)
	}
	return ev, shape, nil
}

// DecodePaySnapshot decodes a net-pay channel payload. The employee id is
// left unparsed; rejecting a bad id is an outcome of the attribute channel.
func (c *Codec) DecodePaySnapshot(raw []byte) (model.PaySnapshot, error) {
	if len(raw) == 0 {
		return model.PaySnapshot{}, ErrTombstone
	}
	body, err := unbox(raw)
	if err != nil {
		return model.PaySnapshot{}, err
	}

	var s model.PaySnapshot
	if err := json.Unmarshal(body, &s); err != nil {
		return model.PaySnapshot{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return s, nil
}

// unbox peels transport wrappers. A string "data" is parsed as JSON text,
// an object "data" is used as is.
func unbox(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	body := raw
	for depth := 0; ; depth++ {
		if !gjson.ValidBytes(body) {
			return nil, fmt.Errorf("%w: invalid json", ErrDecode)
		}
		root := gjson.ParseBytes(body)
		if !root.IsObject() {
			return nil, fmt.Errorf("%w: payload is not an object", ErrDecode)
		}
		if depth == maxBoxDepth {
			return body, nil
		}

		data := root.Get("data")
		switch {
		case data.Type == gjson.String:
			body = []byte(data.Str)
		case data.IsObject():
			body = []byte(data.Raw)
		default:
			return body, nil
		}
	}
}

// Boxing selects the transport wrapper the encoders emit.
type Boxing int

const (
	BoxNone Boxing = iota
	BoxObject
	BoxString
)

// EncodeEmployeeEvent renders ev in the requested upstream layout. It is the
// inverse of DecodeEmployeeEvent and is used to produce demo and test traffic.
func (c *Codec) EncodeEmployeeEvent(ev model.CanonicalEvent, shape model.Shape, box Boxing) ([]byte, error) {
	w := wireEvent{
		FirstName:      ev.FirstName,
		LastName:       ev.LastName,
		Email:          ev.Email,
		PayType:        ev.PayType,
		PayRate:        ev.PayRate,
		PayPeriodHours: ev.PayPeriodHours,
		IsActive:       ev.IsActive,
	}

	switch shape {
	case model.ShapeDirect:
		w.EventID = ev.EventID
		w.EventType = ev.EventType
		w.OccurredOn = newWireTime(ev.OccurredAt)
		w.EmployeeID = entityString(ev.EntityID)
	case model.ShapeEntityState:
		w.ID = entityString(ev.EntityID)
		w.DomainEvents = []wireDomainEvent{{
			EventID:    ev.EventID,
			OccurredOn: newWireTime(ev.OccurredAt),
			EventType:  ev.EventType,
		}}
	default:
		return nil, fmt.Errorf("envelope: cannot encode shape %q", shape)
	}

	body, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal employee event: %w", err)
	}
	return c.box(body, ev.EventID, box)
}

// EncodePaySnapshot renders a snapshot with the ALL_CAPS field names.
func (c *Codec) EncodePaySnapshot(s model.PaySnapshot, box Boxing) ([]byte, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal pay snapshot: %w", err)
	}
	return c.box(body, util.NewID(), box)
}

func (c *Codec) box(body []byte, id string, box Boxing) ([]byte, error) {
	if box == BoxNone {
		return body, nil
	}
	b := wireBox{
		SpecVersion: "1.0",
		ID:          id,
		Source:      "payroll-service",
		Type:        "com.dapr.event.sent",
	}
	switch box {
	case BoxObject:
		b.DataContentType = "application/json"
		b.Data = body
	case BoxString:
		b.DataContentType = "text/plain"
		quoted, err := json.Marshal(string(body))
		if err != nil {
			return nil, err
		}
		b.Data = quoted
	default:
		return nil, fmt.Errorf("envelope: unknown boxing %d", box)
	}
	out, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal box: %w", err)
	}
	return out, nil
}

func entityString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
