package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tvjuke/tvjuke/internal/service/logs"
)

// LogsHandler serves the recent log buffer.
type LogsHandler struct {
	service *logs.Service
}

// NewLogsHandler creates a new logs handler.
func NewLogsHandler(service *logs.Service) *LogsHandler {
	return &LogsHandler{service: service}
}

// LogsInput is the input for the logs endpoint.
type LogsInput struct {
	Limit int `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum number of entries to return"`
}

// LogsOutput is the output for the logs endpoint.
type LogsOutput struct {
	Body struct {
		Logs  []logs.LogEntry `json:"logs"`
		Count int             `json:"count"`
	}
}

// Register registers the logs routes with the API.
func (h *LogsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getLogs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Get recent log entries",
		Tags:        []string{"System"},
	}, h.GetLogs)
}

// GetLogs returns the most recent log entries, oldest first.
func (h *LogsHandler) GetLogs(ctx context.Context, input *LogsInput) (*LogsOutput, error) {
	entries := h.service.Recent(input.Limit)

	out := &LogsOutput{}
	out.Body.Logs = entries
	out.Body.Count = len(entries)
	return out, nil
}
