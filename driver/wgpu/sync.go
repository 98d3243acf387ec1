// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"errors"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"

	"gviegas/rend3/driver"
)

// pollInterval is the interval between queue polls while
// waiting on a fence.
const pollInterval = 100 * time.Microsecond

// fence implements driver.Fence.
// The HAL queue reports progress as a monotonically
// increasing submission index, so a fence records the
// index of the submission that signals it.
type fence struct {
	g        *GPU
	mu       sync.Mutex
	signaled bool
	index    uint64
}

// NewFence creates a new fence.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) {
	return &fence{g: g, signaled: signaled}, nil
}

// arm marks f as signaled by submission index.
func (f *fence) arm(index uint64) {
	f.mu.Lock()
	f.signaled = false
	f.index = index
	f.mu.Unlock()
}

// poll checks whether f has been signaled.
func (f *fence) poll() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.signaled && f.index != 0 {
		f.g.qmu.Lock()
		done := f.g.que.PollCompleted()
		f.g.qmu.Unlock()
		f.signaled = done >= f.index
	}
	return f.signaled
}

// Wait waits for the fence to be signaled.
func (f *fence) Wait(timeout time.Duration) (bool, error) {
	if f.poll() {
		return true, nil
	}
	if timeout <= 0 {
		return false, nil
	}
	var deadline time.Time
	if timeout != driver.Forever {
		deadline = time.Now().Add(timeout)
	}
	f.mu.Lock()
	armed := f.index != 0
	f.mu.Unlock()
	if !armed {
		// Not part of any submission, so only
		// a timeout can end the wait.
		if deadline.IsZero() {
			return false, errors.New("wgpu: waiting forever on fence that was never submitted")
		}
		time.Sleep(time.Until(deadline))
		return f.poll(), nil
	}
	for {
		time.Sleep(pollInterval)
		if f.poll() {
			return true, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false, nil
		}
	}
}

// Reset resets the fence.
func (f *fence) Reset() error {
	if !f.poll() {
		return errors.New("wgpu: resetting unsignaled fence")
	}
	f.mu.Lock()
	f.signaled = false
	f.index = 0
	f.mu.Unlock()
	return nil
}

// Destroy destroys the fence.
func (f *fence) Destroy() {}

// semaphore implements driver.Semaphore.
// The HAL orders queue operations internally, so
// semaphores carry no state.
type semaphore struct{}

// NewSemaphore creates a new semaphore.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) { return &semaphore{}, nil }

// Destroy destroys the semaphore.
func (*semaphore) Destroy() {}

// Submit submits command buffers for execution.
func (g *GPU) Submit(sub *driver.Submission) error {
	hcbs := make([]hal.CommandBuffer, len(sub.Cmd))
	for i, c := range sub.Cmd {
		cb := c.(*cmdBuffer)
		if cb.hcb == nil {
			return driver.NewError(driver.ErrResource, "Submit", "", "command buffer not ended")
		}
		hcbs[i] = cb.hcb
	}
	g.qmu.Lock()
	index, err := g.que.Submit(hcbs)
	g.qmu.Unlock()
	if err != nil {
		return halError(err, "Submit", "")
	}
	for _, c := range sub.Cmd {
		c.(*cmdBuffer).index = index
	}
	if sub.Fence != nil {
		sub.Fence.(*fence).arm(index)
	}
	return nil
}
