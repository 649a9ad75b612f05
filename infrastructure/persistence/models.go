package persistence

import "time"

// RunModel represents one pipeline run in the database.
type RunModel struct {
	ID         string            `gorm:"column:id;primaryKey;size:36"`
	Model      string            `gorm:"column:model;index;size:255"`
	State      string            `gorm:"column:state;index;size:32"`
	StartedAt  time.Time         `gorm:"column:started_at;index"`
	FinishedAt *time.Time        `gorm:"column:finished_at"`
	Steps      []StepStatusModel `gorm:"foreignKey:RunID;references:ID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time         `gorm:"column:created_at"`
	UpdatedAt  time.Time         `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (RunModel) TableName() string {
	return "runs"
}

// StepStatusModel represents the status of one step of a run.
type StepStatusModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	RunID     string    `gorm:"column:run_id;index;size:36"`
	Position  int       `gorm:"column:position"`
	Step      string    `gorm:"column:step;size:32"`
	State     string    `gorm:"column:state;size:32"`
	Message   string    `gorm:"column:message;type:text"`
	Error     string    `gorm:"column:error;type:text"`
	Current   int64     `gorm:"column:current"`
	Total     int64     `gorm:"column:total"`
	StartedAt time.Time `gorm:"column:started_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (StepStatusModel) TableName() string {
	return "run_steps"
}
