package dto

import (
	"time"

	"github.com/qs3c/subtrack_server/internal/model"
)

// CreateSubscriptionRequest 创建订阅请求
type CreateSubscriptionRequest struct {
	Name          string     `json:"name" binding:"required,min=2,max=100"`
	Price         *float64   `json:"price" binding:"required,min=0"`
	Currency      string     `json:"currency" binding:"omitempty,oneof=INR USD EUR GBP"`
	Frequency     string     `json:"frequency" binding:"omitempty,oneof=daily weekly monthly yearly"`
	Category      string     `json:"category" binding:"required,oneof=basic standard premium enterprise"`
	PaymentMethod string     `json:"payment_method" binding:"required,max=50"`
	Status        string     `json:"status" binding:"omitempty,oneof=active inactive canceled pending expired"`
	StartDate     time.Time  `json:"start_date" binding:"required"`
	RenewalDate   *time.Time `json:"renewal_date,omitempty"`
}

// CreateSubscriptionResponse 创建订阅响应
type CreateSubscriptionResponse struct {
	Subscription  *model.Subscription `json:"subscription"`
	WorkflowRunID string              `json:"workflow_run_id"`
}

// UpdateSubscriptionRequest 更新订阅请求
type UpdateSubscriptionRequest struct {
	Name          *string    `json:"name,omitempty" binding:"omitempty,min=2,max=100"`
	Price         *float64   `json:"price,omitempty" binding:"omitempty,min=0"`
	Currency      *string    `json:"currency,omitempty" binding:"omitempty,oneof=INR USD EUR GBP"`
	Frequency     *string    `json:"frequency,omitempty" binding:"omitempty,oneof=daily weekly monthly yearly"`
	Category      *string    `json:"category,omitempty" binding:"omitempty,oneof=basic standard premium enterprise"`
	PaymentMethod *string    `json:"payment_method,omitempty" binding:"omitempty,max=50"`
	Status        *string    `json:"status,omitempty" binding:"omitempty,oneof=active inactive canceled pending expired"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	RenewalDate   *time.Time `json:"renewal_date,omitempty"`
}

// UpdateSubscriptionResponse 更新订阅响应，续费日期变化时会启动新的提醒运行
type UpdateSubscriptionResponse struct {
	Subscription  *model.Subscription `json:"subscription"`
	WorkflowRunID string              `json:"workflow_run_id,omitempty"`
}
