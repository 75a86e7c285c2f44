package durable

import (
	"errors"
	"fmt"
	"time"
)

// SuspendError 表示工作流需要休眠到 WakeAt 之后再恢复。
// 宿主收到该错误后应持久化唤醒时间并结束本次执行。
type SuspendError struct {
	Label  string
	WakeAt time.Time
}

func (e *SuspendError) Error() string {
	return fmt.Sprintf("workflow suspended at %q until %s", e.Label, e.WakeAt.Format(time.RFC3339))
}

// AsSuspend 判断错误是否为挂起信号
func AsSuspend(err error) (*SuspendError, bool) {
	var s *SuspendError
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}
