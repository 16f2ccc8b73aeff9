// Package history persists sensor readings and device status events in
// SQLite and serves paginated, sortable, searchable views of them.
//
// Tables are created by the embedded migrations in the migrations package.
// Timestamps are stored as RFC 3339 text in UTC.
package history
