package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/esplink/internal/telemetry"
)

// SensorRecord is a stored sensor reading.
type SensorRecord struct {
	ID          int64     `json:"id"`
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Light       int       `json:"light"`
}

var sensorSortColumns = map[string]string{
	"id":          "id",
	"time":        "recorded_at",
	"temperature": "temperature",
	"humidity":    "humidity",
	"light":       "light",
}

// SQLiteSensorRepository stores sensor readings in the sensor_readings table.
type SQLiteSensorRepository struct {
	db *sql.DB
}

// NewSQLiteSensorRepository creates a new sensor reading repository.
func NewSQLiteSensorRepository(db *sql.DB) *SQLiteSensorRepository {
	return &SQLiteSensorRepository{db: db}
}

// SaveSensorReading inserts one reading at its producer time.
func (r *SQLiteSensorRepository) SaveSensorReading(ctx context.Context, reading telemetry.SensorReading) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sensor_readings (temperature, humidity, light, recorded_at) VALUES (?, ?, ?, ?)",
		reading.Temperature,
		reading.Humidity,
		reading.Light,
		formatTimestamp(reading.Time),
	)
	if err != nil {
		return fmt.Errorf("inserting sensor reading: %w", err)
	}
	return nil
}

// LatestSensorReading returns the reading with the newest producer time,
// or ErrNotFound if none are stored.
func (r *SQLiteSensorRepository) LatestSensorReading(ctx context.Context) (SensorRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, recorded_at, temperature, humidity, light
		 FROM sensor_readings
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT 1`)

	rec, err := scanSensorRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SensorRecord{}, ErrNotFound
	}
	return rec, err
}

// ListSensorReadings returns one page of readings.
func (r *SQLiteSensorRepository) ListSensorReadings(ctx context.Context, q Query) (Page[SensorRecord], error) {
	q = q.normalize()

	order, err := q.orderBy(sensorSortColumns)
	if err != nil {
		return Page[SensorRecord]{}, err
	}
	where, args, matchable, err := sensorSearch(q)
	if err != nil {
		return Page[SensorRecord]{}, err
	}
	if !matchable {
		return newPage[SensorRecord](nil, q, 0), nil
	}

	countQuery := "SELECT COUNT(*) FROM sensor_readings " + where //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page[SensorRecord]{}, fmt.Errorf("counting sensor readings: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // ORDER BY from whitelist, WHERE parameterised
		"SELECT id, recorded_at, temperature, humidity, light FROM sensor_readings %s %s LIMIT ? OFFSET ?",
		where, order,
	)
	rows, err := r.db.QueryContext(ctx, query, append(args, q.Size, q.offset())...)
	if err != nil {
		return Page[SensorRecord]{}, fmt.Errorf("querying sensor readings: %w", err)
	}
	defer rows.Close()

	items := make([]SensorRecord, 0, q.Size)
	for rows.Next() {
		rec, err := scanSensorRecord(rows)
		if err != nil {
			return Page[SensorRecord]{}, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return Page[SensorRecord]{}, fmt.Errorf("iterating sensor readings: %w", err)
	}

	return newPage(items, q, total), nil
}

// PruneBefore deletes readings recorded before cutoff and returns how many
// were removed.
func (r *SQLiteSensorRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sensor_readings WHERE recorded_at < ?",
		formatTimestamp(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting sensor readings: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// sensorSearch turns Column/Keyword into a WHERE clause. matchable is false
// when the keyword cannot match the column's type, e.g. "abc" for light.
func sensorSearch(q Query) (where string, args []any, matchable bool, err error) {
	column := strings.ToLower(strings.TrimSpace(q.Column))
	if q.Keyword == "" || column == "" {
		return "", nil, true, nil
	}
	kw := q.Keyword

	switch column {
	case "id":
		id, err := strconv.ParseInt(kw, 10, 64)
		if err != nil {
			return "", nil, false, nil
		}
		return "WHERE id = ?", []any{id}, true, nil
	case "temperature", "humidity":
		v, err := strconv.ParseFloat(kw, 64)
		if err != nil {
			return "", nil, false, nil
		}
		return "WHERE " + column + " = ?", []any{v}, true, nil
	case "light":
		v, err := strconv.Atoi(kw)
		if err != nil {
			return "", nil, false, nil
		}
		return "WHERE light = ?", []any{v}, true, nil
	case "time":
		return "WHERE recorded_at LIKE ?", []any{timeKeyword(kw)}, true, nil
	case FilterAll:
		return `WHERE (CAST(id AS TEXT) = ? OR recorded_at LIKE ? OR CAST(temperature AS TEXT) = ?
			OR CAST(humidity AS TEXT) = ? OR CAST(light AS TEXT) = ?)`,
			[]any{kw, timePrefix(kw), kw, kw, kw}, true, nil
	default:
		return "", nil, false, fmt.Errorf("%w: cannot search column %q", ErrInvalidQuery, q.Column)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSensorRecord(s scanner) (SensorRecord, error) {
	var rec SensorRecord
	var recordedAt string
	if err := s.Scan(&rec.ID, &recordedAt, &rec.Temperature, &rec.Humidity, &rec.Light); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SensorRecord{}, err
		}
		return SensorRecord{}, fmt.Errorf("scanning sensor reading: %w", err)
	}

	t, err := parseTimestamp(recordedAt)
	if err != nil {
		return SensorRecord{}, err
	}
	rec.Time = t
	return rec, nil
}
