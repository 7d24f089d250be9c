package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jmehdipour/payroll-projector/internal/model"
)

// MemoryStore is an in-process record store with the same conditional-write
// semantics as the MySQL adapters. It backs `serve --memory` and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	employees map[uuid.UUID]model.Employee
	attrs     map[uuid.UUID]model.PayAttributes
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		employees: make(map[uuid.UUID]model.Employee),
		attrs:     make(map[uuid.UUID]model.PayAttributes),
	}
}

// Employees returns the EmployeesRepository view of the store.
func (s *MemoryStore) Employees() EmployeesRepository { return memoryEmployees{s} }

// PayAttributes returns the PayAttributesRepository view of the store.
func (s *MemoryStore) PayAttributes() PayAttributesRepository { return memoryPayAttributes{s} }

type memoryEmployees struct{ s *MemoryStore }

func (m memoryEmployees) GetByID(_ context.Context, id uuid.UUID) (*model.Employee, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	e, ok := m.s.employees[id]
	if !ok {
		return nil, nil
	}
	c := e.Clone()
	c.PayAttributes = nil
	return &c, nil
}

func (m memoryEmployees) Insert(_ context.Context, e model.Employee) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.employees[e.ID]; ok {
		return fmt.Errorf("insert employee %s: %w", e.ID, ErrConflict)
	}
	e.PayAttributes = nil
	m.s.employees[e.ID] = e
	return nil
}

func (m memoryEmployees) UpdateIfLastEvent(_ context.Context, e model.Employee, expectedLastEventID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	cur, ok := m.s.employees[e.ID]
	if !ok || cur.LastEventID != expectedLastEventID {
		return fmt.Errorf("update employee %s: %w", e.ID, ErrConflict)
	}
	e.CreatedAt = cur.CreatedAt
	e.PayAttributes = nil
	m.s.employees[e.ID] = e
	return nil
}

func (m memoryEmployees) List(_ context.Context, f EmployeeFilter) ([]model.Employee, error) {
	f, col, desc := f.Normalize()

	m.s.mu.RLock()
	out := make([]model.Employee, 0, len(m.s.employees))
	for _, e := range m.s.employees {
		if f.Active != nil && e.IsActive != *f.Active {
			continue
		}
		if f.PayType != model.PayTypeNone && e.PayType != f.PayType {
			continue
		}
		out = append(out, e.Clone())
	}
	m.s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		c := compareEmployees(out[i], out[j], col)
		if c == 0 {
			return out[i].ID.String() < out[j].ID.String()
		}
		if desc {
			return c > 0
		}
		return c < 0
	})

	if f.Offset >= len(out) {
		return []model.Employee{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m memoryEmployees) DeleteAll(_ context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	n := int64(len(m.s.employees))
	m.s.employees = make(map[uuid.UUID]model.Employee)
	m.s.attrs = make(map[uuid.UUID]model.PayAttributes)
	return n, nil
}

func compareEmployees(a, b model.Employee, col string) int {
	switch col {
	case "first_name":
		return strings.Compare(a.FirstName, b.FirstName)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "pay_rate":
		return a.PayRate.Decimal.Cmp(b.PayRate.Decimal)
	default:
		return strings.Compare(a.LastName, b.LastName)
	}
}

type memoryPayAttributes struct{ s *MemoryStore }

func (m memoryPayAttributes) GetByEmployeeID(_ context.Context, employeeID uuid.UUID) (*model.PayAttributes, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	pa, ok := m.s.attrs[employeeID]
	if !ok {
		return nil, nil
	}
	return &pa, nil
}

func (m memoryPayAttributes) Upsert(_ context.Context, pa model.PayAttributes) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if cur, ok := m.s.attrs[pa.EmployeeID]; ok && cur.PayPeriodNumber > pa.PayPeriodNumber {
		return false, nil
	}
	m.s.attrs[pa.EmployeeID] = pa
	return true, nil
}

func (m memoryPayAttributes) DeleteByEmployeeID(_ context.Context, employeeID uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	delete(m.s.attrs, employeeID)
	return nil
}
