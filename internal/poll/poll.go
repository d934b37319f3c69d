package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted 轮询次数或时间用尽，任务仍未结束
var ErrExhausted = errors.New("polling exhausted before the job finished")

// CheckFunc 单次状态检查。done 为 true 时轮询结束；返回的 err 会原样透传给调用方。
type CheckFunc func(ctx context.Context, attempt int) (done bool, err error)

// Poller 先等待再检查的轮询器
type Poller struct {
	// Interval 每次检查前的等待时间
	Interval time.Duration
	// MaxAttempts 最大检查次数，0 表示不限
	MaxAttempts int
	// Timeout 整体截止时间，0 表示不限
	Timeout time.Duration
}

// Until 反复调用 check 直到其报告完成、返回错误、次数/时间用尽或 ctx 结束。
func (p Poller) Until(ctx context.Context, check CheckFunc) error {
	parent := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	timer := time.NewTimer(p.Interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
			return fmt.Errorf("%w: %d attempts", ErrExhausted, p.MaxAttempts)
		}

		select {
		case <-ctx.Done():
			if parent.Err() == nil {
				return fmt.Errorf("%w: deadline %s", ErrExhausted, p.Timeout)
			}
			return ctx.Err()
		case <-timer.C:
		}

		done, err := check(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		timer.Reset(p.Interval)
	}
}
