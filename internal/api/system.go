package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// pruneConfirmation must be sent verbatim to delete history.
const pruneConfirmation = "PRUNE HISTORY"

// PruneRequest selects which history to delete.
type PruneRequest struct {
	// Before is an RFC 3339 cutoff; rows recorded earlier are deleted.
	Before        string `json:"before"`
	ClearReadings bool   `json:"clear_readings"`
	ClearActions  bool   `json:"clear_actions"`
	Confirm       string `json:"confirm"`
}

// PruneResponse reports what was deleted.
type PruneResponse struct {
	Status  string           `json:"status"`
	Deleted map[string]int64 `json:"deleted"`
}

// handlePending lists in-flight command requests, oldest first.
func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.pending.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(snapshot),
		"pending": snapshot,
	})
}

// handlePrune deletes stored history older than a cutoff.
//
// This is a destructive operation: the request must include an exact
// confirmation string.
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Confirm != pruneConfirmation {
		writeBadRequest(w, `confirm field must be exactly "`+pruneConfirmation+`"`)
		return
	}
	if !req.ClearReadings && !req.ClearActions {
		writeBadRequest(w, "at least one clear_* option must be true")
		return
	}
	cutoff, err := time.Parse(time.RFC3339, req.Before)
	if err != nil {
		writeBadRequest(w, "before must be an RFC 3339 timestamp")
		return
	}

	ctx := r.Context()
	deleted := make(map[string]int64)

	if req.ClearReadings {
		n, err := s.sensors.PruneBefore(ctx, cutoff)
		if err != nil {
			s.logger.Error("prune: failed to clear sensor readings", "error", err)
			writeInternalError(w, "failed to clear sensor readings")
			return
		}
		deleted["sensor_readings"] = n
	}

	if req.ClearActions {
		n, err := s.actions.PruneBefore(ctx, cutoff)
		if err != nil {
			s.logger.Error("prune: failed to clear action history", "error", err)
			writeInternalError(w, "failed to clear action history")
			return
		}
		deleted["action_history"] = n
	}

	s.logger.Info("history pruned", "before", cutoff, "deleted", deleted)

	writeJSON(w, http.StatusOK, PruneResponse{
		Status:  "ok",
		Deleted: deleted,
	})
}
