package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nerrad567/esplink/internal/history"
)

// handleListSensorReadings serves /datasensor and /datasensor/search.
//
// Query parameters: page (0-based), size, sortBy, direction, column, keyword.
func (s *Server) handleListSensorReadings(w http.ResponseWriter, r *http.Request) {
	q, err := parseHistoryQuery(r.URL.Query(), "asc")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	page, err := s.sensors.ListSensorReadings(r.Context(), q)
	if err != nil {
		s.writeHistoryError(w, "listing sensor readings", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleListStatusEvents serves /actionhistory and /actionhistory/search.
//
// Query parameters: page (0-based), size, sortBy, direction, device,
// status, keyword. direction falls back to defaultDirection.
func (s *Server) handleListStatusEvents(defaultDirection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseHistoryQuery(r.URL.Query(), defaultDirection)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}

		page, err := s.actions.ListStatusEvents(r.Context(), q)
		if err != nil {
			s.writeHistoryError(w, "listing action history", err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (s *Server) writeHistoryError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, history.ErrInvalidQuery) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	s.logger.Error(op, "error", err)
	writeInternalError(w, "failed to query history")
}

func parseHistoryQuery(v url.Values, defaultDirection string) (history.Query, error) {
	page, err := intParam(v, "page")
	if err != nil {
		return history.Query{}, err
	}
	size, err := intParam(v, "size")
	if err != nil {
		return history.Query{}, err
	}

	q := history.Query{
		Page:      page,
		Size:      size,
		SortBy:    v.Get("sortBy"),
		Direction: v.Get("direction"),
		Device:    v.Get("device"),
		Status:    v.Get("status"),
		Column:    v.Get("column"),
		Keyword:   v.Get("keyword"),
	}
	if q.Direction == "" {
		q.Direction = defaultDirection
	}
	return q, nil
}

// intParam reads an optional integer query parameter; absent means 0.
func intParam(v url.Values, name string) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s must be an integer", name)
	}
	return n, nil
}
