package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/helixml/modelprep/domain/model"
	"github.com/helixml/modelprep/internal/database"
)

// RunStore implements model.RunStore using GORM.
type RunStore struct {
	database.Repository[model.Run, RunModel]
}

// NewRunStore creates a new RunStore.
func NewRunStore(db database.Database) RunStore {
	return RunStore{
		Repository: database.NewRepository[model.Run, RunModel](db, RunMapper{}, "run"),
	}
}

// Save inserts or replaces a run and its step statuses.
func (s RunStore) Save(ctx context.Context, run model.Run) error {
	if run.ID() == "" {
		return fmt.Errorf("save run: %w", model.ErrInvalidModel)
	}
	entity := s.Mapper().ToModel(run)
	steps := entity.Steps
	entity.Steps = nil

	return database.WithTransaction(ctx, s.Database(), func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", entity.ID).Delete(&StepStatusModel{}).Error; err != nil {
			return fmt.Errorf("save run: clear steps: %w", err)
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"model", "state", "started_at", "finished_at", "updated_at"}),
		}).Create(&entity).Error
		if err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		if len(steps) == 0 {
			return nil
		}
		if err := tx.Create(&steps).Error; err != nil {
			return fmt.Errorf("save run: steps: %w", err)
		}
		return nil
	})
}

// List returns runs newest first, optionally filtered by model name.
func (s RunStore) List(ctx context.Context, modelName string, limit int) ([]model.Run, error) {
	db := s.withSteps(ctx)
	if modelName != "" {
		db = db.Where("model = ?", modelName)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}

	var entities []RunModel
	if err := db.Order("started_at DESC").Order("id DESC").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", s.Label(), err)
	}

	runs := make([]model.Run, len(entities))
	for i, e := range entities {
		runs[i] = s.Mapper().ToDomain(e)
	}
	return runs, nil
}

// Last returns the most recent run for modelName.
func (s RunStore) Last(ctx context.Context, modelName string) (model.Run, error) {
	var entity RunModel
	err := s.withSteps(ctx).
		Where("model = ?", modelName).
		Order("started_at DESC").
		Order("id DESC").
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Run{}, fmt.Errorf("%w: %s for %s", database.ErrNotFound, s.Label(), modelName)
		}
		return model.Run{}, fmt.Errorf("find last %s: %w", s.Label(), err)
	}
	return s.Mapper().ToDomain(entity), nil
}

func (s RunStore) withSteps(ctx context.Context) *gorm.DB {
	return s.DB(ctx).Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

var _ model.RunStore = RunStore{}
