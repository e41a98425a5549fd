package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"interaction-export/internal/usecase"
)

// ExportRunner runs one full export pass.
type ExportRunner interface {
	Run(ctx context.Context) (usecase.RunSummary, error)
}

// Handler adapts the export run to scheduled Lambda invocations.
type Handler struct {
	exporter ExportRunner
}

// NewHandler creates a Handler around the export service.
func NewHandler(exporter ExportRunner) (*Handler, error) {
	if exporter == nil {
		return nil, errors.New("handler: exporter must not be nil")
	}
	return &Handler{exporter: exporter}, nil
}

type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type runResponse struct {
	RunID        string `json:"runId"`
	DaysExported int    `json:"daysExported"`
	Watermark    string `json:"watermark,omitempty"`
	TodayRecords int    `json:"todayRecords"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handle runs the export for one scheduled invocation. The error is
// returned alongside the response body so Lambda records the invocation
// as failed and the schedule's retry policy applies.
func (h *Handler) Handle(ctx context.Context, _ events.CloudWatchEvent) (Response, error) {
	summary, err := h.exporter.Run(ctx)
	if err != nil {
		code := usecase.ErrorInternal
		reason := ""
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) {
			code = ucErr.Code
			reason = ucErr.Reason
		}
		slog.Error("export run failed", "code", code, "reason", reason, "err", err)
		body, _ := json.Marshal(errorResponse{Error: string(code), Reason: reason})
		return Response{StatusCode: http.StatusInternalServerError, Body: string(body)}, err
	}

	body, _ := json.Marshal(runResponse{
		RunID:        summary.RunID,
		DaysExported: summary.DaysExported,
		Watermark:    summary.Watermark,
		TodayRecords: summary.TodayRecords,
	})
	return Response{StatusCode: http.StatusOK, Body: string(body)}, nil
}
