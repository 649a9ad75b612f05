package model

import "time"

// Step is one stage of the preparation pipeline.
type Step string

// Step values, in execution order.
const (
	StepDownload Step = "download"
	StepExtract  Step = "extract"
	StepConvert  Step = "convert"
	StepVerify   Step = "verify"
)

// ReportingState represents the state of a step.
type ReportingState string

// ReportingState values.
const (
	ReportingStateStarted    ReportingState = "started"
	ReportingStateInProgress ReportingState = "in_progress"
	ReportingStateCompleted  ReportingState = "completed"
	ReportingStateFailed     ReportingState = "failed"
	ReportingStateSkipped    ReportingState = "skipped"
)

// IsTerminal returns true if the state represents a final state.
func (s ReportingState) IsTerminal() bool {
	return s == ReportingStateCompleted ||
		s == ReportingStateFailed ||
		s == ReportingStateSkipped
}

// Status tracks one step of a run. Current and Total count bytes for
// downloads and are zero for steps without measurable progress.
type Status struct {
	step         Step
	state        ReportingState
	message      string
	errorMessage string
	current      int64
	total        int64
	startedAt    time.Time
	updatedAt    time.Time
}

// NewStatus creates a started Status for step.
func NewStatus(step Step) Status {
	now := time.Now().UTC()
	return Status{
		step:      step,
		state:     ReportingStateStarted,
		startedAt: now,
		updatedAt: now,
	}
}

// NewStatusFull creates a Status with all fields (used by the run store).
func NewStatusFull(
	step Step,
	state ReportingState,
	message, errorMessage string,
	current, total int64,
	startedAt, updatedAt time.Time,
) Status {
	return Status{
		step:         step,
		state:        state,
		message:      message,
		errorMessage: errorMessage,
		current:      current,
		total:        total,
		startedAt:    startedAt,
		updatedAt:    updatedAt,
	}
}

// Step returns the pipeline step.
func (s Status) Step() Step { return s.step }

// State returns the current state.
func (s Status) State() ReportingState { return s.state }

// Message returns the status message.
func (s Status) Message() string { return s.message }

// Error returns the error message if failed.
func (s Status) Error() string { return s.errorMessage }

// Current returns the progress counter.
func (s Status) Current() int64 { return s.current }

// Total returns the expected progress total, or zero when unknown.
func (s Status) Total() int64 { return s.total }

// StartedAt returns when the step started.
func (s Status) StartedAt() time.Time { return s.startedAt }

// UpdatedAt returns when the status last changed.
func (s Status) UpdatedAt() time.Time { return s.updatedAt }

// Duration returns the time between start and the last update.
func (s Status) Duration() time.Duration { return s.updatedAt.Sub(s.startedAt) }

// CompletionPercent calculates the completion percentage.
func (s Status) CompletionPercent() float64 {
	if s.total <= 0 {
		return 0.0
	}
	percent := float64(s.current) / float64(s.total) * 100.0
	if percent < 0 {
		return 0.0
	}
	if percent > 100 {
		return 100.0
	}
	return percent
}

// WithMessage replaces the message without changing the state.
func (s Status) WithMessage(message string) Status {
	s.message = message
	s.updatedAt = time.Now().UTC()
	return s
}

// Skip marks the step as skipped with the given message.
func (s Status) Skip(message string) Status {
	s.state = ReportingStateSkipped
	s.message = message
	s.updatedAt = time.Now().UTC()
	return s
}

// Fail marks the step as failed with the given error message.
func (s Status) Fail(errorMsg string) Status {
	s.state = ReportingStateFailed
	s.errorMessage = errorMsg
	s.updatedAt = time.Now().UTC()
	return s
}

// SetTotal sets the expected progress total.
func (s Status) SetTotal(total int64) Status {
	s.total = total
	s.updatedAt = time.Now().UTC()
	return s
}

// SetCurrent records progress and optionally updates the message.
func (s Status) SetCurrent(current int64, message string) Status {
	s.state = ReportingStateInProgress
	s.current = current
	if message != "" {
		s.message = message
	}
	s.updatedAt = time.Now().UTC()
	return s
}

// Complete marks the step as completed with the given message.
// If already in a terminal state, no change is made.
func (s Status) Complete(message string) Status {
	if s.state.IsTerminal() {
		return s
	}
	s.state = ReportingStateCompleted
	if message != "" {
		s.message = message
	}
	if s.total > 0 {
		s.current = s.total
	}
	s.updatedAt = time.Now().UTC()
	return s
}
