package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/payroll-projector/internal/model"
)

// payAttributeValueColumns are overwritten on upsert; pay_period_number is
// handled separately and must be assigned last.
var payAttributeValueColumns = []string{
	"gross_pay", "federal_tax", "state_tax",
	"additional_federal_withholding", "additional_state_withholding",
	"total_tax", "total_fixed_deductions", "total_percent_deductions", "total_deductions",
	"net_pay", "pay_rate", "pay_type", "total_hours_worked",
	"pay_period_start", "pay_period_end", "updated_at",
}

type PayAttributesRepositoryImpl struct {
	db *sqlx.DB

	upsertQuery string
}

func NewPayAttributesRepository(db *sqlx.DB) *PayAttributesRepositoryImpl {
	return &PayAttributesRepositoryImpl{db: db, upsertQuery: buildPayAttributesUpsert()}
}

var _ PayAttributesRepository = (*PayAttributesRepositoryImpl)(nil)

func (r *PayAttributesRepositoryImpl) GetByEmployeeID(ctx context.Context, employeeID uuid.UUID) (*model.PayAttributes, error) {
	var pa model.PayAttributes
	err := r.db.GetContext(ctx, &pa, `
		SELECT employee_id, pay_period_number, `+strings.Join(payAttributeValueColumns, ", ")+`
		  FROM employee_pay_attributes
		 WHERE employee_id = ? LIMIT 1
	`, employeeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pa, nil
}

// Upsert inserts or overwrites the row. Every assignment is guarded by the
// period comparison so a late, older computation is a no-op even when it
// races a newer one; MySQL then reports zero affected rows.
func (r *PayAttributesRepositoryImpl) Upsert(ctx context.Context, pa model.PayAttributes) (bool, error) {
	res, err := r.db.NamedExecContext(ctx, r.upsertQuery, pa)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PayAttributesRepositoryImpl) DeleteByEmployeeID(ctx context.Context, employeeID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM employee_pay_attributes WHERE employee_id = ?`, employeeID)
	return err
}

func buildPayAttributesUpsert() string {
	cols := append([]string{"employee_id", "pay_period_number"}, payAttributeValueColumns...)

	var sb strings.Builder
	sb.WriteString("INSERT INTO employee_pay_attributes (")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(") VALUES (")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(":" + c)
	}
	sb.WriteString(") ON DUPLICATE KEY UPDATE ")
	for _, c := range payAttributeValueColumns {
		sb.WriteString(c + " = IF(VALUES(pay_period_number) >= pay_period_number, VALUES(" + c + "), " + c + "), ")
	}
	sb.WriteString("pay_period_number = GREATEST(pay_period_number, VALUES(pay_period_number))")
	return sb.String()
}
