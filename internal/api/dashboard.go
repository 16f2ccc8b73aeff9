package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/esplink/internal/command"
	"github.com/nerrad567/esplink/internal/history"
)

// handleControl issues a device command and blocks until the device
// acknowledges it or the command window closes.
//
// Once the body is a well-formed command the response is always 200; the
// outcome is carried in the result's success flag and message.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var cmd command.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := cmd.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.commands.Issue(r.Context(), cmd))
}

// handleChart returns the most recent sensor reading as a list of at most
// one element. An empty store yields an empty list.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	latest := []history.SensorRecord{}

	rec, err := s.sensors.LatestSensorReading(r.Context())
	switch {
	case errors.Is(err, history.ErrNotFound):
	case err != nil:
		s.logger.Error("loading latest sensor reading", "error", err)
		writeInternalError(w, "failed to load sensor reading")
		return
	default:
		latest = append(latest, rec)
	}

	writeJSON(w, http.StatusOK, latest)
}
