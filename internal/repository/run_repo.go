package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/subtrack_server/internal/model"
)

type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(run *model.WorkflowRun) error {
	return r.db.Create(run).Error
}

func (r *RunRepository) GetByID(id string) (*model.WorkflowRun, error) {
	var run model.WorkflowRun
	err := r.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *RunRepository) Update(run *model.WorkflowRun) error {
	return r.db.Save(run).Error
}

// Claim 将 pending/sleeping 的运行原子地置为 running 并记录持有者，返回是否抢占成功
func (r *RunRepository) Claim(id, owner string, now time.Time) (bool, error) {
	result := r.db.Model(&model.WorkflowRun{}).
		Where("id = ? AND status IN ?", id, []string{model.RunStatusPending, model.RunStatusSleeping}).
		Updates(map[string]interface{}{
			"status":     model.RunStatusRunning,
			"owner":      owner,
			"started_at": gorm.Expr("COALESCE(started_at, ?)", now),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SaveOwned 仅当运行仍由 owner 持有且处于 running 时写回，返回是否写入。
// 运行已被回收或取代时不覆盖。
func (r *RunRepository) SaveOwned(run *model.WorkflowRun, owner string) (bool, error) {
	result := r.db.Model(run).
		Where("status = ? AND owner = ?", model.RunStatusRunning, owner).
		Select("*").
		Omit("id", "created_at").
		Updates(run)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Touch 刷新持有中运行的 updated_at，表示仍在推进
func (r *RunRepository) Touch(id, owner string, now time.Time) error {
	return r.db.Model(&model.WorkflowRun{}).
		Where("id = ? AND status = ? AND owner = ?", id, model.RunStatusRunning, owner).
		Update("updated_at", now).Error
}

// Release 将 owner 持有的 running 运行放回 pending
func (r *RunRepository) Release(id, owner string) (bool, error) {
	result := r.db.Model(&model.WorkflowRun{}).
		Where("id = ? AND status = ? AND owner = ?", id, model.RunStatusRunning, owner).
		Updates(map[string]interface{}{
			"status": model.RunStatusPending,
			"owner":  "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateStatus 仅当当前状态属于 from 时切换到 to，返回是否切换成功。
// 切换到结束状态时记录 reason 与结束时间。
func (r *RunRepository) UpdateStatus(id string, from []string, to, reason string, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":  to,
		"owner":   "",
		"wake_at": nil,
	}
	if model.IsTerminalRunStatus(to) {
		updates["abort_reason"] = reason
		updates["completed_at"] = now
	}

	result := r.db.Model(&model.WorkflowRun{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *RunRepository) ListBySubscriptionID(subscriptionID int64) ([]*model.WorkflowRun, error) {
	var runs []*model.WorkflowRun
	err := r.db.Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&runs).Error
	return runs, err
}

// ListOrphaned 获取无人推进的 running 运行：持有者不在 live 中，
// 或 idleBefore 非零且 updated_at 早于 idleBefore
func (r *RunRepository) ListOrphaned(live []string, idleBefore time.Time, limit int) ([]*model.WorkflowRun, error) {
	query := r.db.Where("status = ?", model.RunStatusRunning)
	switch {
	case len(live) > 0 && !idleBefore.IsZero():
		query = query.Where("(owner NOT IN ? OR updated_at < ?)", live, idleBefore)
	case len(live) > 0:
		query = query.Where("owner NOT IN ?", live)
	}

	var runs []*model.WorkflowRun
	err := query.Order("updated_at ASC").Limit(limit).Find(&runs).Error
	return runs, err
}

// ListRecoverable 获取需要重新入队的运行（pending 与 sleeping）
func (r *RunRepository) ListRecoverable(limit int) ([]*model.WorkflowRun, error) {
	var runs []*model.WorkflowRun
	err := r.db.Where("status IN ?", []string{model.RunStatusPending, model.RunStatusSleeping}).
		Order("created_at ASC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// ListFinishedIDsBefore 获取在 before 之前结束的运行 ID
func (r *RunRepository) ListFinishedIDsBefore(before time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.Model(&model.WorkflowRun{}).
		Where("status IN ? AND completed_at < ?",
			[]string{model.RunStatusCompleted, model.RunStatusAborted, model.RunStatusFailed}, before).
		Order("completed_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *RunRepository) DeleteByIDs(ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Where("id IN ?", ids).Delete(&model.WorkflowRun{})
	return result.RowsAffected, result.Error
}
