package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian-stock/internal/reports"
)

// ReportWarmer pre-populates the hot report keys so the first dashboard
// request after an invalidation does not pay the fold cost.
type ReportWarmer struct {
	reports *reports.Service
	logger  *slog.Logger
}

// NewReportWarmer constructs a ReportWarmer.
func NewReportWarmer(reportService *reports.Service, logger *slog.Logger) *ReportWarmer {
	return &ReportWarmer{reports: reportService, logger: logger}
}

// Warm loads the unscoped reports into the cache.
func (w *ReportWarmer) Warm(ctx context.Context) error {
	if _, err := w.reports.WorkflowCounts(ctx); err != nil {
		return err
	}
	if _, err := w.reports.Valuation(ctx, uuid.Nil); err != nil {
		return err
	}
	if _, err := w.reports.MovementSummary(ctx, reports.MovementParams{}); err != nil {
		return err
	}
	w.logger.Info("report cache warmed")
	return nil
}

// Handler adapts the warmer to an Asynq task handler.
func (w *ReportWarmer) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		return w.Warm(ctx)
	}
}
