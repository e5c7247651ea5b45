package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"can-session-logger/internal/analyzer"
	"can-session-logger/internal/can"
	"can-session-logger/internal/framelog"
	"can-session-logger/internal/models"

	"github.com/goccy/go-json"
)

// parseAnalysisParams parses the query parameters shared by the analysis endpoints
func parseAnalysisParams(r *http.Request, defaultTopN int) (models.AnalysisParams, error) {
	params := models.AnalysisParams{
		TopN:  defaultTopN,
		Limit: 100, // default limit
	}

	// Parse can_id (supports both decimal and hex)
	if canIDStr := r.URL.Query().Get("can_id"); canIDStr != "" {
		canID, err := models.ParseID(canIDStr)
		if err != nil {
			return params, fmt.Errorf("invalid can_id format: %v", err)
		}
		params.CANID = &canID
	}

	if topNStr := r.URL.Query().Get("top_n"); topNStr != "" {
		topN, err := strconv.Atoi(topNStr)
		if err != nil {
			return params, fmt.Errorf("invalid top_n format: %v", err)
		}
		params.TopN = topN
	}

	// Parse limit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return params, fmt.Errorf("invalid limit format: %q", limitStr)
		}
		params.Limit = limit
	}

	// Parse offset
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return params, fmt.Errorf("invalid offset format: %q", offsetStr)
		}
		params.Offset = offset
	}

	return params, nil
}

// page applies offset and limit to a result set
func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// statusFor maps session errors to HTTP status codes
func statusFor(err error) int {
	var parseErr *analyzer.ParseError
	var ioErr *framelog.IOError
	switch {
	case errors.Is(err, can.ErrNotConnected):
		return http.StatusConflict
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ioErr):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// respondWithError sends an error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
