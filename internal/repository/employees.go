package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/payroll-projector/internal/model"
)

const mysqlDuplicateEntry = 1062

const employeeColumns = `id, first_name, last_name, email, pay_type, pay_rate, pay_period_hours, is_active,
		       last_event_id, last_event_timestamp, last_event_type, created_at, updated_at`

type EmployeesRepositoryImpl struct {
	db *sqlx.DB
}

func NewEmployeesRepository(db *sqlx.DB) *EmployeesRepositoryImpl {
	return &EmployeesRepositoryImpl{db: db}
}

var _ EmployeesRepository = (*EmployeesRepositoryImpl)(nil)

func (r *EmployeesRepositoryImpl) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *EmployeesRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*model.Employee, error) {
	var e model.Employee
	err := r.db.GetContext(ctx, &e, `
		SELECT `+employeeColumns+`
		  FROM employee_records
		 WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EmployeesRepositoryImpl) Insert(ctx context.Context, e model.Employee) error {
	const q = `
		INSERT INTO employee_records
		    (id, first_name, last_name, email, pay_type, pay_rate, pay_period_hours, is_active,
		     last_event_id, last_event_timestamp, last_event_type, created_at, updated_at)
		VALUES
		    (:id, :first_name, :last_name, :email, :pay_type, :pay_rate, :pay_period_hours, :is_active,
		     :last_event_id, :last_event_timestamp, :last_event_type, :created_at, :updated_at)
	`
	_, err := r.db.NamedExecContext(ctx, q, e)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("insert employee %s: %w", e.ID, ErrConflict)
	}
	return err
}

// UpdateIfLastEvent is the compare-and-swap write of the idempotency guard.
func (r *EmployeesRepositoryImpl) UpdateIfLastEvent(ctx context.Context, e model.Employee, expectedLastEventID string) error {
	const q = `
		UPDATE employee_records
		   SET first_name = ?, last_name = ?, email = ?, pay_type = ?, pay_rate = ?,
		       pay_period_hours = ?, is_active = ?,
		       last_event_id = ?, last_event_timestamp = ?, last_event_type = ?,
		       updated_at = ?
		 WHERE id = ? AND last_event_id = ?
	`
	res, err := r.db.ExecContext(ctx, q,
		e.FirstName, e.LastName, e.Email, e.PayType, e.PayRate,
		e.PayPeriodHours, e.IsActive,
		e.LastEventID, e.LastEventTimestamp, e.LastEventType,
		e.UpdatedAt,
		e.ID, expectedLastEventID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update employee %s: %w", e.ID, ErrConflict)
	}
	return nil
}

func (r *EmployeesRepositoryImpl) List(ctx context.Context, f EmployeeFilter) ([]model.Employee, error) {
	f, col, desc := f.Normalize()

	q := `SELECT ` + employeeColumns + ` FROM employee_records WHERE 1 = 1`
	var args []any
	if f.Active != nil {
		q += " AND is_active = ?"
		args = append(args, *f.Active)
	}
	if f.PayType != model.PayTypeNone {
		q += " AND pay_type = ?"
		args = append(args, f.PayType)
	}

	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	q += fmt.Sprintf(" ORDER BY %s %s, id ASC LIMIT ? OFFSET ?", col, dir)
	args = append(args, f.Limit, f.Offset)

	var rows []model.Employee
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteAll wipes the projection (attributes first, they reference employees).
func (r *EmployeesRepositoryImpl) DeleteAll(ctx context.Context) (int64, error) {
	var deleted int64
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM employee_pay_attributes`); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM employee_records`)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
