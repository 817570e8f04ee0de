package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/civicgrid/civic-issue-api/config"
	"github.com/civicgrid/civic-issue-api/models"
)

// domainError writes the HTTP response for a domain error, mapping each
// sentinel to its status code.
func domainError(message string, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		config.ErrorStatus(message, http.StatusBadRequest, w, err)
	case errors.Is(err, models.ErrNotFound), errors.Is(err, mongo.ErrNoDocuments):
		config.ErrorStatus(message, http.StatusNotFound, w, err)
	case errors.Is(err, models.ErrAlreadyUpvoted),
		errors.Is(err, models.ErrTerminalState),
		errors.Is(err, models.ErrInvalidAssignment):
		config.ErrorStatus(message, http.StatusConflict, w, err)
	case errors.Is(err, models.ErrExternalDependency):
		config.ErrorStatus(message, http.StatusBadGateway, w, err)
	default:
		config.ErrorStatus(message, http.StatusInternalServerError, w, err)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	b, err := json.Marshal(payload)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		zap.S().Errorw("failed to write response", "error", err)
	}
}

// pagination pulls limit/page query params with the collection defaults.
func pagination(r *http.Request) (limit, page int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	return limit, page
}
