package flow

import (
	"context"
	"sync"
)

// userLocks serializes work per user. Waiters are admitted in arrival order and
// an entry is dropped once nobody holds or waits on it.
type userLocks struct {
	mu    sync.Mutex
	users map[int64]*userTurn
}

type userTurn struct {
	waiters []chan struct{}
}

func newUserLocks() *userLocks {
	return &userLocks{users: make(map[int64]*userTurn)}
}

// lock blocks until userID is free or ctx ends. The returned unlock is safe to
// call more than once.
func (l *userLocks) lock(ctx context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	turn, busy := l.users[userID]
	if !busy {
		l.users[userID] = &userTurn{}
		l.mu.Unlock()
		return l.unlocker(userID), nil
	}
	ready := make(chan struct{})
	turn.waiters = append(turn.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return l.unlocker(userID), nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	for i, w := range turn.waiters {
		if w == ready {
			turn.waiters = append(turn.waiters[:i], turn.waiters[i+1:]...)
			l.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	l.mu.Unlock()
	// Handed the turn while giving up: pass it on.
	l.unlock(userID)
	return nil, ctx.Err()
}

func (l *userLocks) unlocker(userID int64) func() {
	var once sync.Once
	return func() { once.Do(func() { l.unlock(userID) }) }
}

func (l *userLocks) unlock(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	turn, ok := l.users[userID]
	if !ok {
		return
	}
	if len(turn.waiters) == 0 {
		delete(l.users, userID)
		return
	}
	next := turn.waiters[0]
	turn.waiters = turn.waiters[1:]
	close(next)
}
