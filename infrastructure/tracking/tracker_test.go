package tracking_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/modelprep/domain/model"
	"github.com/helixml/modelprep/infrastructure/tracking"
)

type failingReporter struct{}

func (failingReporter) OnChange(context.Context, tracking.Update) error {
	return errors.New("subscriber down")
}

func TestTracker_Lifecycle(t *testing.T) {
	fake := &fakeReporter{}
	tr := tracking.NewTracker("run-1", "cmlm-en-base", model.StepDownload, nil, fake)
	ctx := context.Background()

	tr.Start(ctx, "Downloading model...")
	tr.SetTotal(ctx, 100)
	tr.SetCurrent(ctx, 40, "")
	tr.Complete(ctx, "Saved archive as cmlm-en-base.tar.gz")

	require.Equal(t, 4, fake.count())
	first := fake.updates[0]
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, "cmlm-en-base", first.Model)
	assert.Equal(t, "run-1/download", first.Key())
	assert.Equal(t, "Downloading model...", first.Status.Message())
	assert.Equal(t, model.ReportingStateStarted, first.Status.State())

	assert.InDelta(t, 40.0, fake.updates[2].Status.CompletionPercent(), 0.001)

	final := tr.Status()
	assert.Equal(t, model.ReportingStateCompleted, final.State())
	assert.Equal(t, int64(100), final.Current())
	assert.Equal(t, "Saved archive as cmlm-en-base.tar.gz", final.Message())
}

func TestTracker_SubscriberErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	fake := &fakeReporter{}

	tr := tracking.NewTracker("run-1", "cmlm-en-base", model.StepExtract, logger, failingReporter{})
	tr.Subscribe(fake)
	tr.Skip(context.Background(), "cmlm-en-base/ already exists, skipping extraction.")

	assert.Equal(t, 1, fake.count(), "remaining subscribers are still notified")
	assert.Contains(t, buf.String(), "failed to notify subscriber")
	assert.Equal(t, model.ReportingStateSkipped, tr.Status().State())
}

func TestLoggingReporter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	reporter := tracking.NewLoggingReporter(logger)
	ctx := context.Background()

	status := model.NewStatus(model.StepDownload).WithMessage("Downloading model...").SetTotal(200).SetCurrent(50, "")
	require.NoError(t, reporter.OnChange(ctx, update("run", status)))
	out := buf.String()
	assert.Contains(t, out, `msg="Downloading model..."`)
	assert.Contains(t, out, "step=download")
	assert.Contains(t, out, "completion_percent=25")

	buf.Reset()
	require.NoError(t, reporter.OnChange(ctx, update("run", status.Fail("HTTP 503"))))
	out = buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `error="HTTP 503"`)
}
