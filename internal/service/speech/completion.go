package speech

import (
	"context"
	"sync"
)

// Path 表示一次播报最终走的通道。
type Path string

const (
	PathNone     Path = "none"
	PathPrimary  Path = "primary"
	PathFallback Path = "fallback"
)

// Outcome 是一次播报的最终结果。Err 只做记录，不会返回给 Speak 的调用方。
type Outcome struct {
	Path      Path
	Cancelled bool
	Err       error
}

// Completion 在播报结束时恰好完成一次。
type Completion struct {
	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// resolve 只有第一次调用生效。
func (c *Completion) resolve(o Outcome) bool {
	resolved := false
	c.once.Do(func() {
		c.outcome = o
		close(c.done)
		resolved = true
	})
	return resolved
}

// Done 在完成时关闭。
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait 阻塞到完成或 ctx 结束。
func (c *Completion) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		return c.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Outcome 返回结果，未完成时第二个返回值为 false。
func (c *Completion) Outcome() (Outcome, bool) {
	select {
	case <-c.done:
		return c.outcome, true
	default:
		return Outcome{}, false
	}
}
