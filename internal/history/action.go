package history

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/esplink/internal/telemetry"
)

// ActionRecord is a stored device status event.
type ActionRecord struct {
	ID     int64     `json:"id"`
	Device string    `json:"device"`
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

var actionSortColumns = map[string]string{
	"id":     "id",
	"time":   "recorded_at",
	"device": "device",
	"status": "status",
}

// SQLiteActionRepository stores device status events in the action_history table.
type SQLiteActionRepository struct {
	db *sql.DB
}

// NewSQLiteActionRepository creates a new action history repository.
func NewSQLiteActionRepository(db *sql.DB) *SQLiteActionRepository {
	return &SQLiteActionRepository{db: db}
}

// SaveStatusEvent inserts one status event at its producer time.
func (r *SQLiteActionRepository) SaveStatusEvent(ctx context.Context, ev telemetry.DeviceStatusEvent) error {
	if ev.Device == "" {
		return fmt.Errorf("device is required")
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO action_history (device, status, recorded_at) VALUES (?, ?, ?)",
		ev.Device,
		ev.Status,
		formatTimestamp(ev.Time),
	)
	if err != nil {
		return fmt.Errorf("inserting action history: %w", err)
	}
	return nil
}

// ListStatusEvents returns one page of action history.
func (r *SQLiteActionRepository) ListStatusEvents(ctx context.Context, q Query) (Page[ActionRecord], error) { //nolint:gocognit // dynamic query builder: WHERE clause assembly from filter fields
	q = q.normalize()

	order, err := q.orderBy(actionSortColumns)
	if err != nil {
		return Page[ActionRecord]{}, err
	}

	var conditions []string
	var args []any

	if !isFilterAll(q.Device) {
		conditions = append(conditions, "device = ?")
		args = append(args, strings.TrimSpace(q.Device))
	}
	if !isFilterAll(q.Status) {
		conditions = append(conditions, "status = ?")
		args = append(args, strings.TrimSpace(q.Status))
	}
	if q.Keyword != "" {
		if id, err := strconv.ParseInt(q.Keyword, 10, 64); err == nil {
			conditions = append(conditions, "id = ?")
			args = append(args, id)
		} else {
			conditions = append(conditions, "recorded_at LIKE ?")
			args = append(args, timeKeyword(q.Keyword))
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM action_history " + where //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page[ActionRecord]{}, fmt.Errorf("counting action history: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // ORDER BY from whitelist, WHERE parameterised
		"SELECT id, device, status, recorded_at FROM action_history %s %s LIMIT ? OFFSET ?",
		where, order,
	)
	rows, err := r.db.QueryContext(ctx, query, append(args, q.Size, q.offset())...)
	if err != nil {
		return Page[ActionRecord]{}, fmt.Errorf("querying action history: %w", err)
	}
	defer rows.Close()

	items := make([]ActionRecord, 0, q.Size)
	for rows.Next() {
		var rec ActionRecord
		var recordedAt string
		if err := rows.Scan(&rec.ID, &rec.Device, &rec.Status, &recordedAt); err != nil {
			return Page[ActionRecord]{}, fmt.Errorf("scanning action history: %w", err)
		}
		if rec.Time, err = parseTimestamp(recordedAt); err != nil {
			return Page[ActionRecord]{}, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return Page[ActionRecord]{}, fmt.Errorf("iterating action history: %w", err)
	}

	return newPage(items, q, total), nil
}

// PruneBefore deletes events recorded before cutoff and returns how many
// were removed.
func (r *SQLiteActionRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM action_history WHERE recorded_at < ?",
		formatTimestamp(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting action history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
