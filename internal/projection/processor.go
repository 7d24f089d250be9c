// Package projection applies canonical employee events and pay snapshots to
// the record store and emits change notifications for applied transitions.
package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/payroll-projector/internal/model"
	"github.com/jmehdipour/payroll-projector/internal/repository"
	"github.com/jmehdipour/payroll-projector/internal/util"
)

// ErrPublish wraps fan-out failures. The store write that preceded it stands.
var ErrPublish = errors.New("projection: publish change notification")

const defaultMaxAttempts = 3

// Publisher delivers change notifications to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, n model.ChangeNotification) error
}

type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeDuplicate
	OutcomeStale
	OutcomeUnknownType
	OutcomeInvalidID
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeStale:
		return "stale"
	case OutcomeUnknownType:
		return "unknown_type"
	case OutcomeInvalidID:
		return "invalid_id"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Processor struct {
	employees   repository.EmployeesRepository
	attrs       repository.PayAttributesRepository
	pub         Publisher
	log         *zap.Logger
	now         func() time.Time
	maxAttempts int
}

type Option func(*Processor)

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// WithMaxAttempts bounds how often a conflicting conditional write is
// re-derived before the conflict is returned to the caller.
func WithMaxAttempts(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func NewProcessor(employees repository.EmployeesRepository, attrs repository.PayAttributesRepository, pub Publisher, opts ...Option) *Processor {
	p := &Processor{
		employees:   employees,
		attrs:       attrs,
		pub:         pub,
		log:         zap.NewNop(),
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Processor) clock() time.Time {
	return p.now().UTC().Truncate(time.Microsecond)
}

// ApplyEmployeeEvent runs the idempotency guard and, if the event is
// accepted, the state transition, the conditional write, the pay-attribute
// cascade for deactivations and finally the change notification.
func (p *Processor) ApplyEmployeeEvent(ctx context.Context, ev model.CanonicalEvent) (Outcome, error) {
	log := p.log.With(
		zap.String("employee_id", ev.EntityID.String()),
		zap.String("event_id", ev.EventID),
		zap.String("event_type", ev.EventType),
	)

	var (
		out  Outcome
		next model.Employee
		err  error
	)
	for attempt := 1; ; attempt++ {
		out, next, err = p.applyOnce(ctx, ev)
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
		if attempt >= p.maxAttempts {
			return out, fmt.Errorf("apply event %s after %d attempts: %w", ev.EventID, attempt, err)
		}
		log.Debug("conditional write lost, re-deriving", zap.Int("attempt", attempt))
	}
	if err != nil {
		return out, err
	}

	switch out {
	case OutcomeDuplicate:
		log.Info("skipping duplicate event")
		return out, p.repairCascade(ctx, ev, next)
	case OutcomeStale:
		log.Info("skipping older event", zap.Time("stored_at", next.LastEventTimestamp), zap.Time("occurred_at", ev.OccurredAt))
		return out, nil
	case OutcomeUnknownType:
		log.Warn("unknown event type")
		return out, nil
	}

	if ev.EventType == model.EventEmployeeDeactivated {
		if err := p.attrs.DeleteByEmployeeID(ctx, ev.EntityID); err != nil {
			return out, fmt.Errorf("delete pay attributes for %s: %w", ev.EntityID, err)
		}
	}
	log.Info("applied employee event", zap.Bool("is_active", next.IsActive))

	return out, p.publish(ctx, next, model.ChangeType(ev.EventType))
}

// repairCascade re-issues the attribute delete when a deactivation is
// redelivered after its cascade failed. The delete is idempotent.
func (p *Processor) repairCascade(ctx context.Context, ev model.CanonicalEvent, stored model.Employee) error {
	if ev.EventType != model.EventEmployeeDeactivated || stored.IsActive {
		return nil
	}
	if err := p.attrs.DeleteByEmployeeID(ctx, ev.EntityID); err != nil {
		return fmt.Errorf("delete pay attributes for %s: %w", ev.EntityID, err)
	}
	return nil
}

// applyOnce is one read-decide-write round. For rejections the returned
// employee is the stored snapshot.
func (p *Processor) applyOnce(ctx context.Context, ev model.CanonicalEvent) (Outcome, model.Employee, error) {
	cur, err := p.employees.GetByID(ctx, ev.EntityID)
	if err != nil {
		return OutcomeApplied, model.Employee{}, fmt.Errorf("get employee %s: %w", ev.EntityID, err)
	}

	if cur != nil {
		if cur.LastEventID == ev.EventID {
			return OutcomeDuplicate, *cur, nil
		}
		if !cur.LastEventTimestamp.Before(ev.OccurredAt) {
			return OutcomeStale, *cur, nil
		}
	}

	next, ok := transition(cur, ev)
	if !ok {
		if cur != nil {
			return OutcomeUnknownType, *cur, nil
		}
		return OutcomeUnknownType, model.Employee{}, nil
	}

	now := p.clock()
	next.LastEventID = ev.EventID
	next.LastEventTimestamp = ev.OccurredAt
	next.LastEventType = ev.EventType
	next.UpdatedAt = now

	if cur == nil {
		next.CreatedAt = now
		if err := p.employees.Insert(ctx, next); err != nil {
			return OutcomeApplied, next, err
		}
		return OutcomeApplied, next, nil
	}

	if err := p.employees.UpdateIfLastEvent(ctx, next, cur.LastEventID); err != nil {
		return OutcomeApplied, next, err
	}
	return OutcomeApplied, next, nil
}

// transition is the per-type state machine. It reports false for tags
// outside the taxonomy.
func transition(cur *model.Employee, ev model.CanonicalEvent) (model.Employee, bool) {
	var next model.Employee
	if cur != nil {
		next = cur.Clone()
	} else {
		next = model.Employee{ID: ev.EntityID, PayPeriodHours: model.DefaultPayPeriodHours}
	}
	next.PayAttributes = nil

	switch ev.EventType {
	case model.EventEmployeeCreated, model.EventEmployeeUpdated:
		next.FirstName = ev.FirstName
		next.LastName = ev.LastName
		next.Email = ev.Email
		next.PayType = model.PayTypeNone
		if ev.PayType != nil {
			next.PayType, _ = model.PayTypeFromCode(*ev.PayType)
		}
		next.PayRate = ev.PayRate
		next.PayPeriodHours = model.DefaultPayPeriodHours
		if ev.PayPeriodHours.Valid {
			next.PayPeriodHours = ev.PayPeriodHours.Decimal
		}
		next.IsActive = ev.Active()
	case model.EventEmployeeDeactivated:
		next.IsActive = false
	case model.EventEmployeeActivated:
		next.IsActive = true
	default:
		return model.Employee{}, false
	}
	return next, true
}

// ApplyPaySnapshot stores a computed pay period unless a newer period is
// already stored, then notifies subscribers if the employee is known.
func (p *Processor) ApplyPaySnapshot(ctx context.Context, snap model.PaySnapshot) (Outcome, error) {
	id, err := util.ParseEntityID(snap.EmployeeID)
	if err != nil {
		p.log.Warn("invalid employee id in pay snapshot", zap.String("employee_id", snap.EmployeeID), zap.Error(err))
		return OutcomeInvalidID, nil
	}

	log := p.log.With(zap.String("employee_id", id.String()), zap.Int64("pay_period", snap.PayPeriodNumber))

	existing, err := p.attrs.GetByEmployeeID(ctx, id)
	if err != nil {
		return OutcomeApplied, fmt.Errorf("get pay attributes %s: %w", id, err)
	}
	if existing != nil && snap.PayPeriodNumber < existing.PayPeriodNumber {
		log.Info("skipping older pay period", zap.Int64("stored_period", existing.PayPeriodNumber))
		return OutcomeStale, nil
	}

	pa := snap.Attributes(id, p.clock())
	written, err := p.attrs.Upsert(ctx, pa)
	if err != nil {
		return OutcomeApplied, fmt.Errorf("upsert pay attributes %s: %w", id, err)
	}
	if !written {
		log.Info("newer pay period stored concurrently")
		return OutcomeStale, nil
	}
	log.Info("upserted pay attributes", zap.String("net_pay", pa.NetPay.String()))

	emp, err := p.employees.GetByID(ctx, id)
	if err != nil {
		return OutcomeApplied, fmt.Errorf("get employee %s: %w", id, err)
	}
	if emp == nil {
		return OutcomeApplied, nil
	}
	emp.PayAttributes = &pa

	return OutcomeApplied, p.publish(ctx, *emp, model.ChangeTypePayUpdated)
}

func (p *Processor) publish(ctx context.Context, e model.Employee, changeType string) error {
	if p.pub == nil {
		return nil
	}
	n := model.ChangeNotification{
		ID:         util.NewID(),
		Employee:   e,
		ChangeType: changeType,
		Timestamp:  p.clock(),
	}
	if err := p.pub.Publish(ctx, n); err != nil {
		p.log.Error("publish change notification failed",
			zap.String("employee_id", e.ID.String()),
			zap.String("change_type", changeType),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}
