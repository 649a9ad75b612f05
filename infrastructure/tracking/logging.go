package tracking

import (
	"context"
	"log/slog"

	"github.com/helixml/modelprep/domain/model"
)

// LoggingReporter implements Reporter by logging status changes.
type LoggingReporter struct {
	logger *slog.Logger
}

// NewLoggingReporter creates a new LoggingReporter.
func NewLoggingReporter(logger *slog.Logger) *LoggingReporter {
	return &LoggingReporter{
		logger: logger,
	}
}

// OnChange logs the status message with the step state as attributes.
func (r *LoggingReporter) OnChange(ctx context.Context, u Update) error {
	status := u.Status
	attrs := []any{
		slog.String("model", u.Model),
		slog.String("step", string(status.Step())),
		slog.String("state", string(status.State())),
	}
	if status.State() == model.ReportingStateInProgress && status.Total() > 0 {
		attrs = append(attrs,
			slog.Int64("current", status.Current()),
			slog.Int64("total", status.Total()),
			slog.Float64("completion_percent", status.CompletionPercent()),
		)
	}

	if status.State() == model.ReportingStateFailed {
		attrs = append(attrs, slog.String("error", status.Error()))
		r.logger.ErrorContext(ctx, status.Message(), attrs...)
		return nil
	}
	r.logger.InfoContext(ctx, status.Message(), attrs...)
	return nil
}
