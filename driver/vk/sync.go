// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"gviegas/rend3/driver"
)

// fence implements driver.Fence.
type fence struct {
	g     *GPU
	fence vk.Fence
}

// NewFence creates a new fence.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := checkResult(vk.CreateFence(g.dev, &info, nil, &f), "vkCreateFence", ""); err != nil {
		return nil, err
	}
	return &fence{g: g, fence: f}, nil
}

// Wait waits for the fence to be signaled.
func (f *fence) Wait(timeout time.Duration) (bool, error) {
	var res vk.Result
	switch {
	case timeout <= 0:
		res = vk.GetFenceStatus(f.g.dev, f.fence)
	case timeout == driver.Forever:
		res = vk.WaitForFences(f.g.dev, 1, []vk.Fence{f.fence}, vk.True, vk.MaxUint64)
	default:
		res = vk.WaitForFences(f.g.dev, 1, []vk.Fence{f.fence}, vk.True, uint64(timeout.Nanoseconds()))
	}
	switch res {
	case vk.Success:
		return true, nil
	case vk.Timeout, vk.NotReady:
		return false, nil
	}
	return false, checkResult(res, "vkWaitForFences", "")
}

// Reset resets the fence.
func (f *fence) Reset() error {
	switch res := vk.GetFenceStatus(f.g.dev, f.fence); res {
	case vk.Success:
	case vk.NotReady:
		return errors.New("vk: resetting unsignaled fence")
	default:
		return checkResult(res, "vkGetFenceStatus", "")
	}
	return checkResult(vk.ResetFences(f.g.dev, 1, []vk.Fence{f.fence}), "vkResetFences", "")
}

// Destroy destroys the fence.
func (f *fence) Destroy() {
	if f == nil || f.g == nil {
		return
	}
	vk.DestroyFence(f.g.dev, f.fence, nil)
	*f = fence{}
}

// semaphore implements driver.Semaphore.
type semaphore struct {
	g   *GPU
	sem vk.Semaphore
}

// NewSemaphore creates a new semaphore.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) {
	var sem vk.Semaphore
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	if err := checkResult(vk.CreateSemaphore(g.dev, &info, nil, &sem), "vkCreateSemaphore", ""); err != nil {
		return nil, err
	}
	return &semaphore{g: g, sem: sem}, nil
}

// Destroy destroys the semaphore.
func (s *semaphore) Destroy() {
	if s == nil || s.g == nil {
		return
	}
	vk.DestroySemaphore(s.g.dev, s.sem, nil)
	*s = semaphore{}
}

// Submit submits command buffers for execution.
// Wait semaphores block the color attachment output
// stage, which is where swapchain images are first
// written.
func (g *GPU) Submit(sub *driver.Submission) error {
	cbs := make([]vk.CommandBuffer, len(sub.Cmd))
	for i, c := range sub.Cmd {
		cb := c.(*cmdBuffer)
		if cb.recording {
			return driver.NewError(driver.ErrResource, "vkQueueSubmit", "", "command buffer not ended")
		}
		cbs[i] = cb.cb
	}
	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(cbs)),
		PCommandBuffers:    cbs,
	}
	if n := len(sub.Wait); n > 0 {
		wait := make([]vk.Semaphore, n)
		stages := make([]vk.PipelineStageFlags, n)
		for i, s := range sub.Wait {
			wait[i] = s.(*semaphore).sem
			stages[i] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
		}
		info.WaitSemaphoreCount = uint32(n)
		info.PWaitSemaphores = wait
		info.PWaitDstStageMask = stages
	}
	if n := len(sub.Signal); n > 0 {
		sig := make([]vk.Semaphore, n)
		for i, s := range sub.Signal {
			sig[i] = s.(*semaphore).sem
		}
		info.SignalSemaphoreCount = uint32(n)
		info.PSignalSemaphores = sig
	}
	f := vk.NullFence
	if sub.Fence != nil {
		f = sub.Fence.(*fence).fence
	}
	g.qmu.Lock()
	defer g.qmu.Unlock()
	return checkResult(vk.QueueSubmit(g.que, 1, []vk.SubmitInfo{info}, f), "vkQueueSubmit", "")
}
