package clock

import (
	"context"
	"time"
)

// Clock abstracts wall time for the periodic loops so tests can control
// both Now and Sleep.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Or returns c when non-nil, otherwise the real clock.
func Or(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
