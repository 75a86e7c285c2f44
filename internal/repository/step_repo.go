package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/subtrack_server/internal/model"
)

// StepRepository 工作流步骤记录，实现 durable.StepStore
type StepRepository struct {
	db *gorm.DB
}

func NewStepRepository(db *gorm.DB) *StepRepository {
	return &StepRepository{db: db}
}

// GetStep 记录不存在时返回 (nil, nil)
func (r *StepRepository) GetStep(runID, label, kind string) (*model.WorkflowStep, error) {
	var step model.WorkflowStep
	err := r.db.Where("run_id = ? AND label = ? AND kind = ?", runID, label, kind).First(&step).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &step, nil
}

// SaveStep 按 (run_id, label, kind) 写入或覆盖
func (r *StepRepository) SaveStep(step *model.WorkflowStep) error {
	if step.ID != 0 {
		return r.db.Save(step).Error
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "label"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"output", "wake_at", "completed_at", "updated_at"}),
	}).Create(step).Error
}

func (r *StepRepository) ListByRunID(runID string) ([]*model.WorkflowStep, error) {
	var steps []*model.WorkflowStep
	err := r.db.Where("run_id = ?", runID).Order("id ASC").Find(&steps).Error
	return steps, err
}

func (r *StepRepository) DeleteByRunIDs(runIDs []string) (int64, error) {
	if len(runIDs) == 0 {
		return 0, nil
	}
	result := r.db.Where("run_id IN ?", runIDs).Delete(&model.WorkflowStep{})
	return result.RowsAffected, result.Error
}
