package ledger

import (
	"context"
	"sync"
	"time"
)

// chatLocks serializes writers per chat id without blocking other chats.
// Acquisition waits at most the configured bound, then fails with
// ErrBusy so callers can retry instead of hanging.
type chatLocks struct {
	mu    sync.Mutex
	locks map[int64]chan struct{}
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[int64]chan struct{})}
}

func (c *chatLocks) lockFor(chatID int64) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.locks[chatID]
	if !ok {
		l = make(chan struct{}, 1)
		c.locks[chatID] = l
	}
	return l
}

// acquire takes the chat's writer slot. The returned release function
// must be called exactly once.
func (c *chatLocks) acquire(ctx context.Context, chatID int64, wait time.Duration) (func(), error) {
	l := c.lockFor(chatID)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-timer.C:
		return nil, ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
