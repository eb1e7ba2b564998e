// Package trace implements a device that compiles nothing and executes
// nothing: it resolves compute function sources from the code library and
// records every pipeline and dispatch. It backs dry runs and tests.
package trace

import (
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/opgraph/internal/device"
)

// ErrCommitted is returned when encoding into a command buffer that was already committed.
var ErrCommitted = errors.New("trace: command buffer already committed")

// Device records pipelines and command buffers.
type Device struct {
	name string
	libs device.Libraries

	mu        sync.Mutex
	pipelines []*Pipeline
	buffers   []*CommandBuffer
}

var _ device.Device = (*Device)(nil)

// New creates a trace device.
func New(name string) *Device {
	return &Device{name: name}
}

// Name implements device.Device.
func (d *Device) Name() string { return d.name }

// MakePipeline resolves the function source and records a pipeline for it.
func (d *Device) MakePipeline(ic device.InitContext, function string) (device.Pipeline, error) {
	lib, err := d.libs.Get(ic)
	if err != nil {
		return nil, err
	}
	src, err := lib.Source(function)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{function: function, Source: src}
	d.mu.Lock()
	d.pipelines = append(d.pipelines, p)
	d.mu.Unlock()
	return p, nil
}

// NewCommandBuffer implements device.Device.
func (d *Device) NewCommandBuffer() (device.CommandBuffer, error) {
	cb := &CommandBuffer{}
	d.mu.Lock()
	d.buffers = append(d.buffers, cb)
	d.mu.Unlock()
	return cb, nil
}

// Pipelines returns every pipeline made so far.
func (d *Device) Pipelines() []*Pipeline {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Pipeline(nil), d.pipelines...)
}

// CommandBuffers returns every command buffer created so far.
func (d *Device) CommandBuffers() []*CommandBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CommandBuffer(nil), d.buffers...)
}

// Pipeline is a recorded compute pipeline.
type Pipeline struct {
	function string
	Source   string
}

// Function implements device.Pipeline.
func (p *Pipeline) Function() string { return p.function }

// CommandBuffer records dispatches in encode order.
type CommandBuffer struct {
	mu         sync.Mutex
	dispatches []device.Dispatch
	committed  bool
}

// Encode implements device.CommandBuffer.
func (cb *CommandBuffer) Encode(d device.Dispatch) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.committed {
		return ErrCommitted
	}
	if d.Pipeline == nil {
		return fmt.Errorf("trace: dispatch without pipeline")
	}
	cb.dispatches = append(cb.dispatches, d)
	return nil
}

// Commit implements device.CommandBuffer.
func (cb *CommandBuffer) Commit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.committed {
		return ErrCommitted
	}
	cb.committed = true
	return nil
}

// Committed reports whether Commit was called.
func (cb *CommandBuffer) Committed() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.committed
}

// Dispatches returns the recorded dispatches.
func (cb *CommandBuffer) Dispatches() []device.Dispatch {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return append([]device.Dispatch(nil), cb.dispatches...)
}

// Functions returns the function name of each recorded dispatch.
func (cb *CommandBuffer) Functions() []string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	names := make([]string, len(cb.dispatches))
	for i, d := range cb.dispatches {
		names[i] = d.Pipeline.Function()
	}
	return names
}
