package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/payroll-projector/internal/model"
)

// ChangeRecord is one archived change notification.
type ChangeRecord struct {
	ID            string    `db:"id"              json:"id"`
	EmployeeID    string    `db:"employee_id"     json:"employeeId"`
	ChangeType    string    `db:"change_type"     json:"changeType"`
	IsActive      bool      `db:"is_active"       json:"isActive"`
	LastEventID   string    `db:"last_event_id"   json:"lastEventId"`
	LastEventType string    `db:"last_event_type" json:"lastEventType"`
	Payload       string    `db:"payload"         json:"payload"`
	PublishedAt   time.Time `db:"published_at"    json:"publishedAt"`
}

// CHChangesRepository archives change notifications in ClickHouse and serves
// the change history report.
type CHChangesRepository interface {
	Insert(ctx context.Context, n model.ChangeNotification) error
	ListByEmployee(ctx context.Context, employeeID, changeType string, limit, offset int) ([]ChangeRecord, error)
}

type chChangesRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHChangesRepository(ch *sqlx.DB) CHChangesRepository {
	return &chChangesRepository{ch: ch}
}

func (r *chChangesRepository) Insert(ctx context.Context, n model.ChangeNotification) error {
	payload, err := json.Marshal(n.Employee)
	if err != nil {
		return fmt.Errorf("marshal change payload: %w", err)
	}

	_, err = r.ch.ExecContext(ctx, `
		INSERT INTO payroll.employee_changes
		    (id, employee_id, change_type, is_active, last_event_id, last_event_type, payload, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID, n.Employee.ID.String(), n.ChangeType, n.Employee.IsActive,
		n.Employee.LastEventID, n.Employee.LastEventType, string(payload), n.Timestamp,
	)
	return err
}

func (r *chChangesRepository) ListByEmployee(ctx context.Context, employeeID, changeType string, limit, offset int) ([]ChangeRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, employee_id, change_type, is_active, last_event_id, last_event_type, payload, published_at
		FROM payroll.employee_changes
		WHERE 1 = 1
	`
	var args []any

	if employeeID != "" {
		q += " AND employee_id = ?"
		args = append(args, employeeID)
	}
	if changeType != "" {
		q += " AND change_type = ?"
		args = append(args, changeType)
	}

	q += " ORDER BY published_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []ChangeRecord
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
