package reminders

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const reminderColumns = `id, document_id, vehicle_ref, kind, due_date, status, created_at, updated_at`

func (r *PGRepo) Upsert(ctx context.Context, rem Reminder) (Reminder, error) {
	const query = `
INSERT INTO reminders (id, document_id, vehicle_ref, kind, due_date, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (document_id, kind) DO UPDATE
SET vehicle_ref = EXCLUDED.vehicle_ref,
    status = CASE WHEN reminders.due_date <> EXCLUDED.due_date THEN 'active' ELSE reminders.status END,
    due_date = EXCLUDED.due_date,
    updated_at = EXCLUDED.updated_at
RETURNING ` + reminderColumns

	row := r.DB.QueryRowContext(
		ctx,
		query,
		rem.ID,
		rem.DocumentID,
		rem.VehicleRef,
		string(rem.Kind),
		rem.DueDate,
		string(rem.Status),
		rem.UpdatedAt,
	)
	return scanReminder(row)
}

func (r *PGRepo) List(ctx context.Context, f Filter) ([]Reminder, error) {
	f = f.normalized()
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.VehicleRef != "" {
		args = append(args, f.VehicleRef)
		where = append(where, fmt.Sprintf("vehicle_ref = $%d", len(args)))
	}
	query := `SELECT ` + reminderColumns + ` FROM reminders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(` ORDER BY due_date ASC, id ASC LIMIT $%d`, len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Reminder, 0)
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}

func (r *PGRepo) ExpireBefore(ctx context.Context, day, at time.Time) (int, error) {
	const query = `
UPDATE reminders
SET status = 'expired',
    updated_at = $2
WHERE status IN ('active', 'notified') AND due_date < $1`

	res, err := r.DB.ExecContext(ctx, query, day, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (Reminder, error) {
	var (
		rem    Reminder
		kind   string
		status string
	)
	if err := row.Scan(&rem.ID, &rem.DocumentID, &rem.VehicleRef, &kind, &rem.DueDate, &status, &rem.CreatedAt, &rem.UpdatedAt); err != nil {
		return Reminder{}, err
	}
	rem.Kind = Kind(kind)
	rem.Status = Status(status)
	return rem, nil
}
