package projection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/jmehdipour/payroll-projector/internal/envelope"
	"github.com/jmehdipour/payroll-projector/internal/model"
	"github.com/jmehdipour/payroll-projector/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu   sync.Mutex
	sent []model.ChangeNotification
	err  error
}

func (r *recordingPublisher) Publish(_ context.Context, n model.ChangeNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fixture struct {
	store *repository.MemoryStore
	pub   *recordingPublisher
	proc  *Processor
}

func newFixture(t *testing.T) *fixture {
	store := repository.NewMemoryStore()
	pub := &recordingPublisher{}
	proc := NewProcessor(store.Employees(), store.PayAttributes(), pub,
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return t0.Add(time.Hour) }),
	)
	return &fixture{store: store, pub: pub, proc: proc}
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func createdEvent(id uuid.UUID, eventID string, at time.Time) model.CanonicalEvent {
	return model.CanonicalEvent{
		EntityID:   id,
		EventID:    eventID,
		EventType:  model.EventEmployeeCreated,
		OccurredAt: at,
		FirstName:  "Ann",
		LastName:   "Lee",
		Email:      "ann@example.com",
		PayType:    intPtr(2),
		PayRate:    decimal.NewNullDecimal(decimal.NewFromInt(75000)),
		IsActive:   boolPtr(true),
	}
}

func lifecycleEvent(id uuid.UUID, eventID, eventType string, at time.Time) model.CanonicalEvent {
	return model.CanonicalEvent{EntityID: id, EventID: eventID, EventType: eventType, OccurredAt: at}
}

func snapshot(id uuid.UUID, period int64, net int64) model.PaySnapshot {
	return model.PaySnapshot{
		EmployeeID:      id.String(),
		PayPeriodNumber: period,
		GrossPay:        decimal.NewFromInt(net + 500),
		NetPay:          decimal.NewFromInt(net),
		PayType:         "Salary",
		PayPeriodStart:  "2026-03-01",
		PayPeriodEnd:    "2026-03-14",
	}
}

func (f *fixture) employee(t *testing.T, id uuid.UUID) *model.Employee {
	t.Helper()
	e, err := f.store.Employees().GetByID(context.Background(), id)
	require.NoError(t, err)
	return e
}

func (f *fixture) attrs(t *testing.T, id uuid.UUID) *model.PayAttributes {
	t.Helper()
	pa, err := f.store.PayAttributes().GetByEmployeeID(context.Background(), id)
	require.NoError(t, err)
	return pa
}

func TestEmployeeLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e1 := uuid.New()
	t1 := t0
	t2 := t0.Add(time.Minute)

	out, err := f.proc.ApplyEmployeeEvent(ctx, createdEvent(e1, "A", t1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	got := f.employee(t, e1)
	require.NotNil(t, got)
	assert.Equal(t, "Ann", got.FirstName)
	assert.True(t, got.IsActive)
	assert.Equal(t, "A", got.LastEventID)
	assert.Equal(t, model.PayTypeSalary, got.PayType)
	assert.True(t, got.PayPeriodHours.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, t0.Add(time.Hour), got.CreatedAt)
	require.Equal(t, 1, f.pub.count())
	assert.Equal(t, "created", f.pub.sent[0].ChangeType)

	out, err = f.proc.ApplyEmployeeEvent(ctx, createdEvent(e1, "A", t1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	assert.Equal(t, 1, f.pub.count(), "redelivery must not publish")

	_, err = f.proc.ApplyPaySnapshot(ctx, snapshot(e1, 3, 2500))
	require.NoError(t, err)
	require.NotNil(t, f.attrs(t, e1))

	out, err = f.proc.ApplyEmployeeEvent(ctx, lifecycleEvent(e1, "B", model.EventEmployeeDeactivated, t2))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	got = f.employee(t, e1)
	assert.False(t, got.IsActive)
	assert.Equal(t, "B", got.LastEventID)
	assert.Equal(t, model.EventEmployeeDeactivated, got.LastEventType)
	assert.Equal(t, "Ann", got.FirstName, "deactivation keeps business fields")
	assert.Nil(t, f.attrs(t, e1))
	assert.Equal(t, "deactivated", f.pub.sent[len(f.pub.sent)-1].ChangeType)
}

func TestActivationDoesNotResurrectPayAttributes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := uuid.New()

	_, err := f.proc.ApplyEmployeeEvent(ctx, createdEvent(id, "a", t0))
	require.NoError(t, err)
	_, err = f.proc.ApplyPaySnapshot(ctx, snapshot(id, 1, 1000))
	require.NoError(t, err)
	_, err = f.proc.ApplyEmployeeEvent(ctx, lifecycleEvent(id, "b", model.EventEmployeeDeactivated, t0.Add(time.Second)))
	require.NoError(t, err)

	out, err := f.proc.ApplyEmployeeEvent(ctx, lifecycleEvent(id, "c", model.EventEmployeeActivated, t0.Add(2*time.Second)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.True(t, f.employee(t, id).IsActive)
	assert.Nil(t, f.attrs(t, id))
}

func TestUnknownTypeLeavesSnapshotUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := uuid.New()

	_, err := f.proc.ApplyEmployeeEvent(ctx, createdEvent(id, "a", t0))
	require.NoError(t, err)
	before := f.employee(t, id)

	out, err := f.proc.ApplyEmployeeEvent(ctx, lifecycleEvent(id, "r", "employee.renamed", t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownType, out)
	assert.Equal(t, before, f.employee(t, id))
	assert.Equal(t, 1, f.pub.count())
}

func TestUnknownTypeForUnseenEmployee(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	out, err := f.proc.ApplyEmployeeEvent(context.Background(), model.CanonicalEvent{EntityID: id, OccurredAt: t0})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownType, out)
	assert.Nil(t, f.employee(t, id))
}

func TestUpdatedOverwritesAllBusinessFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := uuid.New()

	_, err := f.proc.ApplyEmployeeEvent(ctx, createdEvent(id, "a", t0))
	require.NoError(t, err)

	upd := model.CanonicalEvent{
		EntityID:       id,
		EventID:        "b",
		EventType:      model.EventEmployeeUpdated,
		OccurredAt:     t0.Add(time.Minute),
		FirstName:      "Anne",
		LastName:       "Lee",
		PayType:        intPtr(1),
		PayPeriodHours: decimal.NewNullDecimal(decimal.NewFromInt(32)),
		IsActive:       boolPtr(false),
	}
	out, err := f.proc.ApplyEmployeeEvent(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	got := f.employee(t, id)
	assert.Equal(t, "Anne", got.FirstName)
	assert.Equal(t, "", got.Email)
	assert.Equal(t, model.PayTypeHourly, got.PayType)
	assert.False(t, got.PayRate.Valid)
	assert.True(t, got.PayPeriodHours.Equal(decimal.NewFromInt(32)))
	assert.False(t, got.IsActive)
	assert.Equal(t, "updated", f.pub.sent[len(f.pub.sent)-1].ChangeType)
}

func TestStaleEventsNeverMutate(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		pub := &recordingPublisher{}
		proc := NewProcessor(store.Employees(), store.PayAttributes(), pub,
			WithClock(func() time.Time { return t0 }))

		id := uuid.New()
		stored := t0.Add(time.Duration(rapid.Int64Range(0, 1e6).Draw(rt, "stored_s")) * time.Second)
		_, err := proc.ApplyEmployeeEvent(ctx, createdEvent(id, "seed", stored))
		require.NoError(rt, err)
		before, _ := store.Employees().GetByID(ctx, id)

		lag := time.Duration(rapid.Int64Range(0, 1e6).Draw(rt, "lag_s")) * time.Second
		eventType := rapid.SampledFrom([]string{
			model.EventEmployeeCreated, model.EventEmployeeUpdated,
			model.EventEmployeeDeactivated, model.EventEmployeeActivated, "employee.renamed",
		}).Draw(rt, "type")
		ev := createdEvent(id, rapid.StringMatching(`[a-z0-9]{1,12}`).Draw(rt, "event_id"), stored.Add(-lag))
		ev.EventType = eventType
		ev.FirstName = "Mallory"

		out, err := proc.ApplyEmployeeEvent(ctx, ev)
		require.NoError(rt, err)
		if out != OutcomeStale && out != OutcomeDuplicate {
			rt.Fatalf("expected rejection, got %s", out)
		}

		after, _ := store.Employees().GetByID(ctx, id)
		assert.Equal(rt, before, after)
		assert.Equal(rt, 1, pub.count())
	})
}

func TestEventWithoutTimestampIsStaleForExistingEmployee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e1 := uuid.New()

	_, err := f.proc.ApplyEmployeeEvent(ctx, createdEvent(e1, "A", t0.Add(48*time.Hour)))
	require.NoError(t, err)
	published := f.pub.count()

	raw := []byte(`{"eventId":"OLD","eventType":"employee.updated","employeeId":"` + e1.String() + `","firstName":"Stale","isActive":false}`)
	ev, _, err := envelope.NewCodec(envelope.WithClock(func() time.Time { return t0.Add(72 * time.Hour) })).DecodeEmployeeEvent(raw)
	require.NoError(t, err)

	out, err := f.proc.ApplyEmployeeEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, out)

	got := f.employee(t, e1)
	assert.Equal(t, "Ann", got.FirstName)
	assert.True(t, got.IsActive)
	assert.Equal(t, "A", got.LastEventID)
	assert.Equal(t, published, f.pub.count())
}

func TestUnknownPayTypeCodeKeepsDecimalForm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e1 := uuid.New()

	ev := createdEvent(e1, "A", t0)
	ev.PayType = intPtr(7)
	_, err := f.proc.ApplyEmployeeEvent(ctx, ev)
	require.NoError(t, err)

	assert.Equal(t, model.PayType("7"), f.employee(t, e1).PayType)
}

func TestPayPeriodMonotonic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := uuid.New()

	out, err := f.proc.ApplyPaySnapshot(ctx, snapshot(id, 5, 3000))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	out, err = f.proc.ApplyPaySnapshot(ctx, snapshot(id, 4, 9999))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, out)

	got := f.attrs(t, id)
	assert.Equal(t, int64(5), got.PayPeriodNumber)
	assert.True(t, got.NetPay.Equal(decimal.NewFromInt(3000)))

	out, err = f.proc.ApplyPaySnapshot(ctx, snapshot(id, 5, 3100))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out, "same period re-applies")
	assert.True(t, f.attrs(t, id).NetPay.Equal(decimal.NewFromInt(3100)))
}

func TestPaySnapshotPublishesOnlyForKnownEmployee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := uuid.New()

	_, err := f.proc.ApplyPaySnapshot(ctx, snapshot(id, 1, 1000))
	require.NoError(t, err)
	assert.Equal(t, 0, f.pub.count())

	_, err = f.proc.ApplyEmployeeEvent(ctx, createdEvent(id, "a", t0))
	require.NoError(t, err)
	_, err = f.proc.ApplyPaySnapshot(ctx, snapshot(id, 2, 1100))
	require.NoError(t, err)

	require.Equal(t, 2, f.pub.count())
	n := f.pub.sent[1]
	assert.Equal(t, model.ChangeTypePayUpdated, n.ChangeType)
	require.NotNil(t, n.Employee.PayAttributes)
	assert.Equal(t, int64(2), n.Employee.PayAttributes.PayPeriodNumber)
	assert.NotEmpty(t, n.ID)
}

func TestPaySnapshotInvalidID(t *testing.T) {
	f := newFixture(t)
	for _, raw := range []string{"", "not-a-guid", uuid.Nil.String()} {
		out, err := f.proc.ApplyPaySnapshot(context.Background(), model.PaySnapshot{EmployeeID: raw, PayPeriodNumber: 1})
		require.NoError(t, err)
		assert.Equal(t, OutcomeInvalidID, out, raw)
	}
}

type guardedAttrs struct {
	repository.PayAttributesRepository
}

func (guardedAttrs) Upsert(context.Context, model.PayAttributes) (bool, error) { return false, nil }

func TestPaySnapshotConcurrentNewerPeriodIsStale(t *testing.T) {
	store := repository.NewMemoryStore()
	proc := NewProcessor(store.Employees(), guardedAttrs{store.PayAttributes()}, nil)

	out, err := proc.ApplyPaySnapshot(context.Background(), snapshot(uuid.New(), 1, 10))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, out)
}

// racingEmployees lets a competing writer land a newer event between the
// processor's read and its write.
type racingEmployees struct {
	repository.EmployeesRepository
	once  sync.Once
	race  func()
	calls int
}

func (r *racingEmployees) Insert(ctx context.Context, e model.Employee) error {
	r.calls++
	r.once.Do(r.race)
	return r.EmployeesRepository.Insert(ctx, e)
}

func (r *racingEmployees) UpdateIfLastEvent(ctx context.Context, e model.Employee, expected string) error {
	r.calls++
	r.once.Do(r.race)
	return r.EmployeesRepository.UpdateIfLastEvent(ctx, e, expected)
}

func TestConflictRederivesFromCurrentState(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	pub := &recordingPublisher{}
	id := uuid.New()

	newer := model.Employee{ID: id, FirstName: "Winner", LastEventID: "z", LastEventTimestamp: t0.Add(time.Hour)}
	repo := &racingEmployees{EmployeesRepository: store.Employees()}
	repo.race = func() { require.NoError(t, store.Employees().Insert(ctx, newer)) }

	proc := NewProcessor(repo, store.PayAttributes(), pub, WithLogger(zaptest.NewLogger(t)))
	out, err := proc.ApplyEmployeeEvent(ctx, createdEvent(id, "a", t0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, out)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, 0, pub.count())

	got, _ := store.Employees().GetByID(ctx, id)
	assert.Equal(t, "Winner", got.FirstName)
}

type conflictingEmployees struct {
	repository.EmployeesRepository
	updates int
}

func (c *conflictingEmployees) UpdateIfLastEvent(context.Context, model.Employee, string) error {
	c.updates++
	return repository.ErrConflict
}

func TestConflictGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	id := uuid.New()
	require.NoError(t, store.Employees().Insert(ctx, model.Employee{ID: id, LastEventID: "a", LastEventTimestamp: t0}))

	repo := &conflictingEmployees{EmployeesRepository: store.Employees()}
	pub := &recordingPublisher{}
	proc := NewProcessor(repo, store.PayAttributes(), pub)

	_, err := proc.ApplyEmployeeEvent(ctx, lifecycleEvent(id, "b", model.EventEmployeeActivated, t0.Add(time.Second)))
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Equal(t, defaultMaxAttempts, repo.updates)
	assert.Equal(t, 0, pub.count())
}

type failingEmployees struct {
	repository.EmployeesRepository
	err error
}

func (f failingEmployees) GetByID(context.Context, uuid.UUID) (*model.Employee, error) {
	return nil, f.err
}

func TestStoreFailurePropagates(t *testing.T) {
	store := repository.NewMemoryStore()
	boom := errors.New("connection reset")
	pub := &recordingPublisher{}
	proc := NewProcessor(failingEmployees{store.Employees(), boom}, store.PayAttributes(), pub)

	_, err := proc.ApplyEmployeeEvent(context.Background(), createdEvent(uuid.New(), "a", t0))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrPublish)
	assert.Equal(t, 0, pub.count())
}

func TestPublishFailureKeepsStoredWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pub.err = errors.New("redis down")
	id := uuid.New()

	out, err := f.proc.ApplyEmployeeEvent(ctx, createdEvent(id, "a", t0))
	assert.Equal(t, OutcomeApplied, out)
	assert.ErrorIs(t, err, ErrPublish)

	got := f.employee(t, id)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.LastEventID)

	out, err = f.proc.ApplyEmployeeEvent(ctx, createdEvent(id, "a", t0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
}

type flakyDeleteAttrs struct {
	repository.PayAttributesRepository
	failures int
}

func (f *flakyDeleteAttrs) DeleteByEmployeeID(ctx context.Context, id uuid.UUID) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("lock wait timeout")
	}
	return f.PayAttributesRepository.DeleteByEmployeeID(ctx, id)
}

func TestRedeliveredDeactivationCompletesCascade(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	attrs := &flakyDeleteAttrs{PayAttributesRepository: store.PayAttributes()}
	proc := NewProcessor(store.Employees(), attrs, &recordingPublisher{})
	id := uuid.New()

	_, err := proc.ApplyEmployeeEvent(ctx, createdEvent(id, "a", t0))
	require.NoError(t, err)
	_, err = proc.ApplyPaySnapshot(ctx, snapshot(id, 1, 100))
	require.NoError(t, err)

	attrs.failures = 1
	deactivate := lifecycleEvent(id, "b", model.EventEmployeeDeactivated, t0.Add(time.Second))
	_, err = proc.ApplyEmployeeEvent(ctx, deactivate)
	require.Error(t, err)

	pa, _ := store.PayAttributes().GetByEmployeeID(ctx, id)
	require.NotNil(t, pa)

	out, err := proc.ApplyEmployeeEvent(ctx, deactivate)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	pa, _ = store.PayAttributes().GetByEmployeeID(ctx, id)
	assert.Nil(t, pa)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "applied", OutcomeApplied.String())
	assert.Equal(t, "unknown_type", OutcomeUnknownType.String())
	assert.Equal(t, "invalid_id", OutcomeInvalidID.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
}
