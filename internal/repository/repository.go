package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jmehdipour/payroll-projector/internal/model"
)

// ErrConflict is returned by conditional writes when the stored row no longer
// matches what the caller read (or already exists, for inserts).
var ErrConflict = errors.New("repository: conditional write conflict")

// EmployeesRepository persists employee projections.
type EmployeesRepository interface {
	// GetByID returns (nil, nil) when the employee has never been seen.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Employee, error)
	// Insert fails with ErrConflict if the id already exists.
	Insert(ctx context.Context, e model.Employee) error
	// UpdateIfLastEvent writes e only while the stored last_event_id still
	// equals expectedLastEventID; otherwise ErrConflict.
	UpdateIfLastEvent(ctx context.Context, e model.Employee, expectedLastEventID string) error
	List(ctx context.Context, f EmployeeFilter) ([]model.Employee, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// PayAttributesRepository persists the latest pay period per employee.
type PayAttributesRepository interface {
	// GetByEmployeeID returns (nil, nil) when no attributes are stored.
	GetByEmployeeID(ctx context.Context, employeeID uuid.UUID) (*model.PayAttributes, error)
	// Upsert writes pa unless a newer period is stored; the bool reports
	// whether the row was written.
	Upsert(ctx context.Context, pa model.PayAttributes) (bool, error)
	DeleteByEmployeeID(ctx context.Context, employeeID uuid.UUID) error
}

// EmployeeFilter narrows List. Zero values mean "no constraint".
type EmployeeFilter struct {
	Active  *bool
	PayType model.PayType
	Sort    string // column name, "-" prefix for descending
	Limit   int
	Offset  int
}

var sortColumns = map[string]string{
	"first_name": "first_name",
	"last_name":  "last_name",
	"email":      "email",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"pay_rate":   "pay_rate",
}

// Normalize clamps paging and resolves Sort to a whitelisted column.
func (f EmployeeFilter) Normalize() (EmployeeFilter, string, bool) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	desc := false
	key := f.Sort
	if len(key) > 0 && key[0] == '-' {
		desc = true
		key = key[1:]
	}
	col, ok := sortColumns[key]
	if !ok {
		col, desc = "last_name", false
	}
	return f, col, desc
}
