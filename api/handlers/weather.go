package handlers

import (
	"net/http"

	"github.com/civicgrid/civic-issue-api/api/scheduler"
)

// Weather exposes the rain alert raised by the weather escalation job.
type Weather struct {
	Alerts *scheduler.AlertState
}

// AlertStatusHandler returns the current process-wide rain alert.
func (wa Weather) AlertStatusHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, wa.Alerts.Snapshot())
}
