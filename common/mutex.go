package common

import (
	"context"
	"time"
)

type timedMutex struct {
	write chan struct{}
}

func newTimedMutex() interface{} {
	return &timedMutex{
		write: make(chan struct{}, 1),
	}
}

func (m *timedMutex) tryLock(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	select {
	case m.write <- struct{}{}:
		return true
	case <-ctx.Done():
	}
	return false
}

func (m *timedMutex) lock() {
	m.write <- struct{}{}
}

func (m *timedMutex) unlock() {
	<-m.write
}
