package history

import (
	"fmt"
	"strings"
)

// Page size bounds.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// FilterAll matches any device or status.
const FilterAll = "all"

// Query selects one page of history.
type Query struct {
	// Page is zero-based.
	Page int

	// Size defaults to DefaultPageSize and is capped at MaxPageSize.
	Size int

	// SortBy names a column: id, time, and the record's own fields.
	// Defaults to id.
	SortBy string

	// Direction is asc or desc. Defaults to asc.
	Direction string

	// Device and Status filter action history. Empty or FilterAll matches any.
	Device string
	Status string

	// Column and Keyword search sensor readings. Column is one of id, time,
	// temperature, humidity, light or all. For action history only Keyword
	// is used: numeric keywords match the id, others match the time.
	Column  string
	Keyword string
}

// Page is one page of results.
type Page[T any] struct {
	Items      []T `json:"content"`
	Page       int `json:"number"`
	Size       int `json:"size"`
	Total      int `json:"totalElements"`
	TotalPages int `json:"totalPages"`
}

func newPage[T any](items []T, q Query, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if total > 0 {
		pages = (total + q.Size - 1) / q.Size
	}
	return Page[T]{
		Items:      items,
		Page:       q.Page,
		Size:       q.Size,
		Total:      total,
		TotalPages: pages,
	}
}

func (q Query) normalize() Query {
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Size <= 0 {
		q.Size = DefaultPageSize
	}
	if q.Size > MaxPageSize {
		q.Size = MaxPageSize
	}
	q.SortBy = strings.ToLower(strings.TrimSpace(q.SortBy))
	if q.SortBy == "" {
		q.SortBy = "id"
	}
	q.Direction = strings.ToLower(strings.TrimSpace(q.Direction))
	if q.Direction == "" {
		q.Direction = "asc"
	}
	q.Keyword = strings.TrimSpace(q.Keyword)
	return q
}

func (q Query) offset() int {
	return q.Page * q.Size
}

// orderBy builds an ORDER BY clause from a column whitelist. The id
// tiebreak keeps pages stable when the sort column has duplicates.
func (q Query) orderBy(columns map[string]string) (string, error) {
	col, ok := columns[q.SortBy]
	if !ok {
		return "", fmt.Errorf("%w: cannot sort by %q", ErrInvalidQuery, q.SortBy)
	}
	if q.Direction != "asc" && q.Direction != "desc" {
		return "", fmt.Errorf("%w: direction %q must be asc or desc", ErrInvalidQuery, q.Direction)
	}
	dir := strings.ToUpper(q.Direction)
	if col == "id" {
		return "ORDER BY id " + dir, nil
	}
	return fmt.Sprintf("ORDER BY %s %s, id %s", col, dir, dir), nil
}

func isFilterAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, FilterAll)
}

// timeKeyword lets "2024-01-02 10:00" match stored RFC 3339 text.
func timeKeyword(kw string) string {
	return "%" + strings.Replace(kw, " ", "T", 1) + "%"
}

// timePrefix is timeKeyword anchored at the start, so a short number such as
// "1" does not match every timestamp.
func timePrefix(kw string) string {
	return strings.Replace(kw, " ", "T", 1) + "%"
}
