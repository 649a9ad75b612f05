package persistence

import (
	"time"

	"github.com/helixml/modelprep/domain/model"
)

// RunMapper maps between domain Run and persistence RunModel.
type RunMapper struct{}

// ToDomain converts a RunModel to a domain Run.
func (m RunMapper) ToDomain(e RunModel) model.Run {
	steps := make([]model.Status, len(e.Steps))
	for i, s := range e.Steps {
		steps[i] = model.NewStatusFull(
			model.Step(s.Step),
			model.ReportingState(s.State),
			s.Message,
			s.Error,
			s.Current,
			s.Total,
			s.StartedAt,
			s.UpdatedAt,
		)
	}

	var finishedAt time.Time
	if e.FinishedAt != nil {
		finishedAt = *e.FinishedAt
	}

	return model.NewRunFull(e.ID, e.Model, steps, e.StartedAt, finishedAt)
}

// ToModel converts a domain Run to a RunModel.
func (m RunMapper) ToModel(r model.Run) RunModel {
	var finishedAt *time.Time
	if !r.FinishedAt().IsZero() {
		t := r.FinishedAt()
		finishedAt = &t
	}

	statuses := r.Steps()
	steps := make([]StepStatusModel, len(statuses))
	for i, s := range statuses {
		steps[i] = StepStatusModel{
			RunID:     r.ID(),
			Position:  i,
			Step:      string(s.Step()),
			State:     string(s.State()),
			Message:   s.Message(),
			Error:     s.Error(),
			Current:   s.Current(),
			Total:     s.Total(),
			StartedAt: s.StartedAt(),
			UpdatedAt: s.UpdatedAt(),
		}
	}

	return RunModel{
		ID:         r.ID(),
		Model:      r.Model(),
		State:      string(r.State()),
		StartedAt:  r.StartedAt(),
		FinishedAt: finishedAt,
		Steps:      steps,
	}
}
