package collab

import (
	"context"
	"errors"
)

const DefaultSemaphore = 100

var (
	ErrAcquireTimeout = errors.New("semaphore: acquire reached time limit")
	ErrNotAcquired    = errors.New("semaphore: release without acquire")
)

// SemaphoreControl bounds concurrent work: ws commands in flight and Kafka
// sends.
type SemaphoreControl struct {
	ch chan struct{}
}

func NewSemaphoreControl(size int) *SemaphoreControl {
	if size <= 0 {
		size = DefaultSemaphore
	}
	return &SemaphoreControl{ch: make(chan struct{}, size)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrAcquireTimeout
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrNotAcquired
	}
}
