package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/subtrack_server/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *model.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *SubscriptionRepository) GetByID(id int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetWithUser 查询订阅并预加载所属用户
func (r *SubscriptionRepository) GetWithUser(id int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Preload("User").Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByUserID 分页查询用户的订阅，按续费日期升序
func (r *SubscriptionRepository) ListByUserID(userID int64, page, pageSize int) ([]*model.Subscription, int64, error) {
	var subs []*model.Subscription
	var total int64

	query := r.db.Model(&model.Subscription{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("renewal_date ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&subs).Error

	return subs, total, err
}

func (r *SubscriptionRepository) Update(sub *model.Subscription) error {
	return r.db.Save(sub).Error
}

// CountDue 统计续费日期已到但尚未标记过期的订阅数
func (r *SubscriptionRepository) CountDue(now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.Subscription{}).
		Where("renewal_date <= ? AND status <> ?", now, model.SubscriptionStatusExpired).
		Count(&count).Error
	return count, err
}

// ExpireDue 将续费日期已到的订阅批量标记为过期
func (r *SubscriptionRepository) ExpireDue(now time.Time) (int64, error) {
	result := r.db.Model(&model.Subscription{}).
		Where("renewal_date <= ? AND status <> ?", now, model.SubscriptionStatusExpired).
		Update("status", model.SubscriptionStatusExpired)
	return result.RowsAffected, result.Error
}
