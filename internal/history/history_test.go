package history

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/esplink/internal/infrastructure/database"
	"github.com/nerrad567/esplink/internal/telemetry"
	"github.com/nerrad567/esplink/migrations"
)

// =============================================================================
// Test helpers
// =============================================================================

var baseTime = time.Date(2024, time.January, 2, 10, 0, 0, 0, time.UTC)

// openTestDB opens a migrated SQLite database in a temp directory.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// seedReadings stores n readings one minute apart, starting at baseTime.
// Reading i has temperature 20+i, humidity 50+i, light 100*i.
func seedReadings(t *testing.T, repo *SQLiteSensorRepository, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := repo.SaveSensorReading(context.Background(), telemetry.SensorReading{
			Time:        baseTime.Add(time.Duration(i) * time.Minute),
			Temperature: 20 + float64(i),
			Humidity:    50 + float64(i),
			Light:       100 * i,
		})
		if err != nil {
			t.Fatalf("SaveSensorReading() error = %v", err)
		}
	}
}

func seedActions(t *testing.T, repo *SQLiteActionRepository) {
	t.Helper()
	events := []telemetry.DeviceStatusEvent{
		{Device: "DEV1", Status: "ON", Time: baseTime},
		{Device: "DEV2", Status: "ON", Time: baseTime.Add(time.Minute)},
		{Device: "DEV1", Status: "OFF", Time: baseTime.Add(2 * time.Minute)},
		{Device: "DEV3", Status: "ON", Time: baseTime.Add(24 * time.Hour)},
		{Device: "DEV1", Status: "ON", Time: baseTime.Add(25 * time.Hour)},
	}
	for _, ev := range events {
		if err := repo.SaveStatusEvent(context.Background(), ev); err != nil {
			t.Fatalf("SaveStatusEvent() error = %v", err)
		}
	}
}

// =============================================================================
// Sensor Reading Tests
// =============================================================================

func TestSensorRepository_SaveAndLatest(t *testing.T) {
	repo := NewSQLiteSensorRepository(openTestDB(t).DB)
	ctx := context.Background()

	if _, err := repo.LatestSensorReading(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestSensorReading() on empty table error = %v, want ErrNotFound", err)
	}

	// Inserted out of order: latest means newest producer time.
	for _, r := range []telemetry.SensorReading{
		{Time: baseTime.Add(time.Hour), Temperature: 30.5, Humidity: 40, Light: 800},
		{Time: baseTime, Temperature: 20, Humidity: 60, Light: 100},
	} {
		if err := repo.SaveSensorReading(ctx, r); err != nil {
			t.Fatalf("SaveSensorReading() error = %v", err)
		}
	}

	got, err := repo.LatestSensorReading(ctx)
	if err != nil {
		t.Fatalf("LatestSensorReading() error = %v", err)
	}
	want := SensorRecord{ID: 1, Time: baseTime.Add(time.Hour), Temperature: 30.5, Humidity: 40, Light: 800}
	if got != want {
		t.Errorf("LatestSensorReading() = %+v, want %+v", got, want)
	}
}

func TestSensorRepository_ListPagination(t *testing.T) {
	repo := NewSQLiteSensorRepository(openTestDB(t).DB)
	seedReadings(t, repo, 23)

	tests := []struct {
		name      string
		query     Query
		wantLen   int
		wantFirst int64
		wantPages int
		wantSize  int
	}{
		{name: "defaults", query: Query{}, wantLen: 10, wantFirst: 1, wantPages: 3, wantSize: 10},
		{name: "second page", query: Query{Page: 1, Size: 10}, wantLen: 10, wantFirst: 11, wantPages: 3, wantSize: 10},
		{name: "last partial page", query: Query{Page: 2, Size: 10}, wantLen: 3, wantFirst: 21, wantPages: 3, wantSize: 10},
		{name: "past the end", query: Query{Page: 9, Size: 10}, wantLen: 0, wantPages: 3, wantSize: 10},
		{name: "negative page", query: Query{Page: -1, Size: 5}, wantLen: 5, wantFirst: 1, wantPages: 5, wantSize: 5},
		{name: "size capped", query: Query{Size: 1000}, wantLen: 23, wantFirst: 1, wantPages: 1, wantSize: MaxPageSize},
		{name: "desc", query: Query{Size: 5, Direction: "DESC"}, wantLen: 5, wantFirst: 23, wantPages: 5, wantSize: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.ListSensorReadings(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("ListSensorReadings() error = %v", err)
			}
			if len(page.Items) != tt.wantLen {
				t.Fatalf("len(Items) = %d, want %d", len(page.Items), tt.wantLen)
			}
			if tt.wantLen > 0 && page.Items[0].ID != tt.wantFirst {
				t.Errorf("Items[0].ID = %d, want %d", page.Items[0].ID, tt.wantFirst)
			}
			if page.Total != 23 {
				t.Errorf("Total = %d, want 23", page.Total)
			}
			if page.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", page.TotalPages, tt.wantPages)
			}
			if page.Size != tt.wantSize {
				t.Errorf("Size = %d, want %d", page.Size, tt.wantSize)
			}
		})
	}
}

func TestSensorRepository_ListSort(t *testing.T) {
	repo := NewSQLiteSensorRepository(openTestDB(t).DB)
	ctx := context.Background()
	for _, r := range []telemetry.SensorReading{
		{Time: baseTime.Add(2 * time.Minute), Temperature: 19, Humidity: 70, Light: 5},
		{Time: baseTime, Temperature: 31, Humidity: 40, Light: 900},
		{Time: baseTime.Add(time.Minute), Temperature: 25, Humidity: 55, Light: 300},
	} {
		if err := repo.SaveSensorReading(ctx, r); err != nil {
			t.Fatalf("SaveSensorReading() error = %v", err)
		}
	}

	tests := []struct {
		sortBy    string
		direction string
		wantIDs   []int64
	}{
		{sortBy: "time", direction: "asc", wantIDs: []int64{2, 3, 1}},
		{sortBy: "temperature", direction: "desc", wantIDs: []int64{2, 3, 1}},
		{sortBy: "humidity", direction: "asc", wantIDs: []int64{2, 3, 1}},
		{sortBy: "light", direction: "asc", wantIDs: []int64{1, 3, 2}},
		{sortBy: "id", direction: "desc", wantIDs: []int64{3, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.sortBy+"_"+tt.direction, func(t *testing.T) {
			page, err := repo.ListSensorReadings(ctx, Query{SortBy: tt.sortBy, Direction: tt.direction})
			if err != nil {
				t.Fatalf("ListSensorReadings() error = %v", err)
			}
			if len(page.Items) != len(tt.wantIDs) {
				t.Fatalf("len(Items) = %d, want %d", len(page.Items), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if page.Items[i].ID != id {
					t.Errorf("Items[%d].ID = %d, want %d", i, page.Items[i].ID, id)
				}
			}
		})
	}
}

func TestSensorRepository_ListInvalidQuery(t *testing.T) {
	repo := NewSQLiteSensorRepository(openTestDB(t).DB)

	tests := []struct {
		name  string
		query Query
	}{
		{name: "unknown sort column", query: Query{SortBy: "temperature; DROP TABLE sensor_readings"}},
		{name: "status not a sensor column", query: Query{SortBy: "status"}},
		{name: "bad direction", query: Query{Direction: "sideways"}},
		{name: "unknown search column", query: Query{Column: "pressure", Keyword: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.ListSensorReadings(context.Background(), tt.query); !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("ListSensorReadings() error = %v, want ErrInvalidQuery", err)
			}
		})
	}
}

func TestSensorRepository_Search(t *testing.T) {
	repo := NewSQLiteSensorRepository(openTestDB(t).DB)
	seedReadings(t, repo, 5)

	tests := []struct {
		name    string
		column  string
		keyword string
		wantIDs []int64
	}{
		{name: "id", column: "id", keyword: "3", wantIDs: []int64{3}},
		{name: "temperature", column: "temperature", keyword: "21", wantIDs: []int64{2}},
		{name: "humidity", column: "humidity", keyword: "54.0", wantIDs: []int64{5}},
		{name: "light", column: "light", keyword: "200", wantIDs: []int64{3}},
		{name: "time with space", column: "time", keyword: "2024-01-02 10:03", wantIDs: []int64{4}},
		{name: "time prefix", column: "time", keyword: "2024-01-02", wantIDs: []int64{1, 2, 3, 4, 5}},
		{name: "all matches light", column: "all", keyword: "400", wantIDs: []int64{5}},
		{name: "all matches id", column: "ALL", keyword: "1", wantIDs: []int64{1}},
		{name: "non-numeric light", column: "light", keyword: "bright", wantIDs: nil},
		{name: "empty keyword", column: "light", keyword: "  ", wantIDs: []int64{1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.ListSensorReadings(context.Background(), Query{Column: tt.column, Keyword: tt.keyword})
			if err != nil {
				t.Fatalf("ListSensorReadings() error = %v", err)
			}
			if page.Total != len(tt.wantIDs) {
				t.Fatalf("Total = %d, want %d", page.Total, len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if page.Items[i].ID != id {
					t.Errorf("Items[%d].ID = %d, want %d", i, page.Items[i].ID, id)
				}
			}
		})
	}
}

func TestSensorRepository_PruneBefore(t *testing.T) {
	repo := NewSQLiteSensorRepository(openTestDB(t).DB)
	seedReadings(t, repo, 5)
	ctx := context.Background()

	n, err := repo.PruneBefore(ctx, baseTime.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("PruneBefore() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PruneBefore() = %d, want 2", n)
	}

	page, _ := repo.ListSensorReadings(ctx, Query{})
	if page.Total != 3 || page.Items[0].ID != 3 {
		t.Errorf("remaining Total=%d first=%d, want 3 and 3", page.Total, page.Items[0].ID)
	}
}

// =============================================================================
// Action History Tests
// =============================================================================

func TestActionRepository_SaveRejectsEmptyDevice(t *testing.T) {
	repo := NewSQLiteActionRepository(openTestDB(t).DB)

	err := repo.SaveStatusEvent(context.Background(), telemetry.DeviceStatusEvent{Status: "ON", Time: baseTime})
	if err == nil {
		t.Error("SaveStatusEvent() with empty device error = nil")
	}
}

func TestActionRepository_ListFilters(t *testing.T) {
	repo := NewSQLiteActionRepository(openTestDB(t).DB)
	seedActions(t, repo)

	tests := []struct {
		name    string
		query   Query
		wantIDs []int64
	}{
		{name: "everything", query: Query{}, wantIDs: []int64{1, 2, 3, 4, 5}},
		{name: "all means any", query: Query{Device: "all", Status: "ALL"}, wantIDs: []int64{1, 2, 3, 4, 5}},
		{name: "device", query: Query{Device: "DEV1"}, wantIDs: []int64{1, 3, 5}},
		{name: "status", query: Query{Status: "ON"}, wantIDs: []int64{1, 2, 4, 5}},
		{name: "device and status", query: Query{Device: "DEV1", Status: "ON"}, wantIDs: []int64{1, 5}},
		{name: "numeric keyword is id", query: Query{Keyword: "4"}, wantIDs: []int64{4}},
		{name: "id keyword respects filters", query: Query{Device: "DEV2", Keyword: "4"}, wantIDs: nil},
		{name: "time keyword", query: Query{Keyword: "2024-01-03"}, wantIDs: []int64{4, 5}},
		{name: "sort by device desc", query: Query{SortBy: "device", Direction: "desc"}, wantIDs: []int64{4, 2, 5, 3, 1}},
		{name: "sort by time desc", query: Query{SortBy: "time", Direction: "desc", Size: 2}, wantIDs: []int64{5, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.ListStatusEvents(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("ListStatusEvents() error = %v", err)
			}
			if len(page.Items) != len(tt.wantIDs) {
				t.Fatalf("len(Items) = %d, want %d", len(page.Items), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if page.Items[i].ID != id {
					t.Errorf("Items[%d].ID = %d, want %d", i, page.Items[i].ID, id)
				}
			}
		})
	}
}

func TestActionRepository_RecordFields(t *testing.T) {
	repo := NewSQLiteActionRepository(openTestDB(t).DB)
	seedActions(t, repo)

	page, err := repo.ListStatusEvents(context.Background(), Query{Keyword: "3"})
	if err != nil {
		t.Fatalf("ListStatusEvents() error = %v", err)
	}
	want := ActionRecord{ID: 3, Device: "DEV1", Status: "OFF", Time: baseTime.Add(2 * time.Minute)}
	if len(page.Items) != 1 || page.Items[0] != want {
		t.Errorf("Items = %+v, want [%+v]", page.Items, want)
	}
}

func TestActionRepository_ListInvalidSort(t *testing.T) {
	repo := NewSQLiteActionRepository(openTestDB(t).DB)

	if _, err := repo.ListStatusEvents(context.Background(), Query{SortBy: "light"}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("ListStatusEvents() error = %v, want ErrInvalidQuery", err)
	}
}

func TestActionRepository_PruneBefore(t *testing.T) {
	repo := NewSQLiteActionRepository(openTestDB(t).DB)
	seedActions(t, repo)

	n, err := repo.PruneBefore(context.Background(), baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore() error = %v", err)
	}
	if n != 3 {
		t.Errorf("PruneBefore() = %d, want 3", n)
	}
}

// =============================================================================
// Page Tests
// =============================================================================

func TestPage_JSON(t *testing.T) {
	page := newPage[ActionRecord](nil, Query{Page: 0, Size: 10}, 0)

	got, err := json.Marshal(page)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"content":[],"number":0,"size":10,"totalElements":0,"totalPages":0}`
	if string(got) != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-01-02T10:00:00Z", want: baseTime},
		{in: "2024-01-02T11:00:00+01:00", want: baseTime},
		{in: "2024-01-02 10:00:00", want: baseTime},
		{in: "", wantErr: true},
		{in: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseTimestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTimestamp(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
