package api

import (
	"net/http"

	"can-session-logger/internal/analyzer"
	"can-session-logger/internal/models"
	"can-session-logger/internal/session"
)

// AnalysisAPI serves analysis of the session log. Every request stops
// logging first, as RunAnalysis does.
type AnalysisAPI struct {
	ctrl        *session.Controller
	defaultTopN int
}

// NewAnalysisAPI creates a new analysis API handler
func NewAnalysisAPI(ctrl *session.Controller, defaultTopN int) *AnalysisAPI {
	return &AnalysisAPI{ctrl: ctrl, defaultTopN: defaultTopN}
}

// run parses the request and analyses the log, writing the error response
// itself when either fails
func (api *AnalysisAPI) run(w http.ResponseWriter, r *http.Request) (*session.Analysis, models.AnalysisParams, bool) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return nil, models.AnalysisParams{}, false
	}

	params, err := parseAnalysisParams(r, api.defaultTopN)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return nil, params, false
	}

	analysis, err := api.ctrl.RunAnalysis(params.TopN)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return nil, params, false
	}
	return analysis, params, true
}

// GetSummary handles GET /api/analysis/summary. The summary is null when the
// log holds no frames. Like every analysis endpoint it switches logging off;
// polling it ends the logging sub-session.
func (api *AnalysisAPI) GetSummary(w http.ResponseWriter, r *http.Request) {
	analysis, _, ok := api.run(w, r)
	if !ok {
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"log_path": analysis.Log.Path,
		"summary":  analysis.Summary,
	})
}

// GetMessages handles GET /api/analysis/messages. It switches logging off.
func (api *AnalysisAPI) GetMessages(w http.ResponseWriter, r *http.Request) {
	analysis, params, ok := api.run(w, r)
	if !ok {
		return
	}

	rows := analysis.Log.Rows
	if params.CANID != nil {
		rows = analyzer.FilterByID(analysis.Log, *params.CANID)
	}
	total := len(rows)
	rows = page(rows, params.Offset, params.Limit)

	messages := make([]models.CANMessageResponse, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.Response())
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
		"total":    total,
		"limit":    params.Limit,
		"offset":   params.Offset,
	})
}

// GetFrequency handles GET /api/analysis/frequency. It switches logging off.
func (api *AnalysisAPI) GetFrequency(w http.ResponseWriter, r *http.Request) {
	analysis, params, ok := api.run(w, r)
	if !ok {
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"top_n":     params.TopN,
		"frequency": analysis.Frequency,
	})
}
