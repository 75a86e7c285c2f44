package model

import (
	"time"
)

// 订阅状态
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusInactive = "inactive"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPending  = "pending"
	SubscriptionStatusExpired  = "expired"
)

// 计费周期
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyYearly  = "yearly"
)

type Subscription struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	UserID        int64     `gorm:"not null;index" json:"user_id"`
	Name          string    `gorm:"size:100;not null" json:"name"`
	Price         float64   `gorm:"type:decimal(10,2);not null" json:"price"`
	Currency      string    `gorm:"size:3;default:INR" json:"currency"`    // INR, USD, EUR, GBP
	Frequency     string    `gorm:"size:10" json:"frequency,omitempty"`    // daily, weekly, monthly, yearly
	Category      string    `gorm:"size:20;not null" json:"category"`      // basic, standard, premium, enterprise
	PaymentMethod string    `gorm:"size:50;not null" json:"payment_method"`
	Status        string    `gorm:"size:20;default:active;index" json:"status"` // active, inactive, canceled, pending, expired
	StartDate     time.Time `gorm:"not null" json:"start_date"`
	RenewalDate   time.Time `gorm:"not null;index" json:"renewal_date"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// 关联
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
