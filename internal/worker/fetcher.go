package worker

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/qs3c/subtrack_server/internal/model"
	"github.com/qs3c/subtrack_server/internal/repository"
)

// RepoFetcher 基于订阅仓库的 SubscriptionFetcher
type RepoFetcher struct {
	subRepo *repository.SubscriptionRepository
}

func NewRepoFetcher(subRepo *repository.SubscriptionRepository) *RepoFetcher {
	return &RepoFetcher{subRepo: subRepo}
}

func (f *RepoFetcher) FetchSubscription(ctx context.Context, id int64) (*Snapshot, error) {
	sub, err := f.subRepo.GetWithUser(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return NewSnapshot(sub), nil
}

// NewSnapshot 将订阅（含用户）投影为快照
func NewSnapshot(sub *model.Subscription) *Snapshot {
	s := &Snapshot{
		ID:            sub.ID,
		UserID:        sub.UserID,
		Name:          sub.Name,
		Price:         sub.Price,
		Currency:      sub.Currency,
		Frequency:     sub.Frequency,
		PaymentMethod: sub.PaymentMethod,
		Status:        sub.Status,
		StartDate:     sub.StartDate,
		RenewalDate:   sub.RenewalDate,
	}
	if sub.User != nil {
		s.UserName = sub.User.Name
		s.UserEmail = sub.User.Email
	}
	return s
}
