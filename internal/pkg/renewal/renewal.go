package renewal

import (
	"fmt"
	"time"

	"github.com/qs3c/subtrack_server/internal/model"
)

// intervalDays 各计费周期对应的固定天数（月、年不按日历计算）
var intervalDays = map[string]int{
	model.FrequencyDaily:   1,
	model.FrequencyWeekly:  7,
	model.FrequencyMonthly: 30,
	model.FrequencyYearly:  365,
}

// ValidationError 续费参数校验失败
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Input 计算续费日期所需的订阅字段
type Input struct {
	StartDate   time.Time
	Frequency   string
	RenewalDate *time.Time // 显式指定的续费日期，可为空
	Status      string
}

// Result 计算结果
type Result struct {
	RenewalDate time.Time
	Status      string
}

// IntervalDays 返回计费周期对应的天数
func IntervalDays(frequency string) (int, bool) {
	days, ok := intervalDays[frequency]
	return days, ok
}

// Compute 计算续费日期与派生状态。
// 续费日期不晚于 now 时状态强制为 expired。
func Compute(in Input, now time.Time) (Result, error) {
	var renewalDate time.Time

	if in.RenewalDate != nil && !in.RenewalDate.IsZero() {
		if !in.RenewalDate.After(in.StartDate) {
			return Result{}, &ValidationError{
				Field:   "renewal_date",
				Message: "renewal date must be after start date",
			}
		}
		renewalDate = *in.RenewalDate
	} else {
		if in.Frequency == "" {
			return Result{}, &ValidationError{
				Field:   "frequency",
				Message: "frequency is required when renewal date is not provided",
			}
		}
		days, ok := IntervalDays(in.Frequency)
		if !ok {
			return Result{}, &ValidationError{
				Field:   "frequency",
				Message: fmt.Sprintf("unknown frequency %q", in.Frequency),
			}
		}
		renewalDate = in.StartDate.AddDate(0, 0, days)
	}

	status := in.Status
	if status == "" {
		status = model.SubscriptionStatusActive
	}
	if !renewalDate.After(now) {
		status = model.SubscriptionStatusExpired
	}

	return Result{RenewalDate: renewalDate, Status: status}, nil
}
