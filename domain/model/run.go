package model

import "time"

// Run is one execution of the pipeline for a single model.
type Run struct {
	id         string
	model      string
	steps      []Status
	startedAt  time.Time
	finishedAt time.Time
}

// NewRun creates a Run that starts now.
func NewRun(id, model string) Run {
	return Run{id: id, model: model, startedAt: time.Now().UTC()}
}

// NewRunFull creates a Run with all fields (used by the run store).
func NewRunFull(id, model string, steps []Status, startedAt, finishedAt time.Time) Run {
	cp := make([]Status, len(steps))
	copy(cp, steps)
	return Run{id: id, model: model, steps: cp, startedAt: startedAt, finishedAt: finishedAt}
}

// ID returns the run id.
func (r Run) ID() string { return r.id }

// Model returns the model name.
func (r Run) Model() string { return r.model }

// StartedAt returns when the run started.
func (r Run) StartedAt() time.Time { return r.startedAt }

// FinishedAt returns when the run finished, or the zero time while running.
func (r Run) FinishedAt() time.Time { return r.finishedAt }

// Steps returns a copy of the recorded step statuses in execution order.
func (r Run) Steps() []Status {
	cp := make([]Status, len(r.steps))
	copy(cp, r.steps)
	return cp
}

// Step returns the status recorded for step.
func (r Run) Step(step Step) (Status, bool) {
	for _, s := range r.steps {
		if s.step == step {
			return s, true
		}
	}
	return Status{}, false
}

// Record stores s, replacing any earlier status for the same step.
func (r Run) Record(s Status) Run {
	steps := make([]Status, 0, len(r.steps)+1)
	replaced := false
	for _, existing := range r.steps {
		if existing.step == s.step {
			steps = append(steps, s)
			replaced = true
			continue
		}
		steps = append(steps, existing)
	}
	if !replaced {
		steps = append(steps, s)
	}
	r.steps = steps
	return r
}

// Finish stamps the run as finished.
func (r Run) Finish() Run {
	r.finishedAt = time.Now().UTC()
	return r
}

// State summarises the step states. Any failure fails the run; a run where
// every step was skipped is skipped; otherwise a run whose steps are all
// terminal is completed.
func (r Run) State() ReportingState {
	if len(r.steps) == 0 {
		return ReportingStateStarted
	}

	for _, s := range r.steps {
		if s.state == ReportingStateFailed {
			return ReportingStateFailed
		}
	}

	allSkipped := true
	for _, s := range r.steps {
		if !s.state.IsTerminal() {
			return ReportingStateInProgress
		}
		if s.state != ReportingStateSkipped {
			allSkipped = false
		}
	}
	if allSkipped {
		return ReportingStateSkipped
	}
	return ReportingStateCompleted
}
