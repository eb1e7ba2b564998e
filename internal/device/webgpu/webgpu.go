//go:build windows

// Package webgpu implements device.Device on a WebGPU adapter.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/graph"
)

const (
	storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	// placeholderSize backs unused optional bindings.
	placeholderSize = 16
)

// Device is a WebGPU compute device. Variables are mirrored into storage
// buffers on first use and stay resident until Release.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	name     string

	libs device.Libraries

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
	buffers   map[*graph.Variable]resident
	staging   *stagingPool
}

// resident is a storage buffer and its byte size.
type resident struct {
	buf  *wgpu.Buffer
	size uint64
}

var _ device.Device = (*Device)(nil)

// New requests a high-performance adapter and opens a device on it.
// Returns an error if WebGPU is not available or initialization fails.
func New() (d *Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", err)
	}

	info := adapter.GetInfo()

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", err)
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Device{
		instance:  instance,
		adapter:   adapter,
		device:    dev,
		queue:     queue,
		name:      "webgpu:" + info.Device,
		pipelines: make(map[string]*Pipeline),
		buffers:   make(map[*graph.Variable]resident),
		staging:   newStagingPool(dev),
	}, nil
}

// Name implements device.Device.
func (d *Device) Name() string { return d.name }

// Pipeline is a compiled compute pipeline.
type Pipeline struct {
	function string
	pipeline *wgpu.ComputePipeline
}

// Function implements device.Pipeline.
func (p *Pipeline) Function() string { return p.function }

// MakePipeline compiles function from the library selected by ic. Pipelines
// are cached per library and function.
func (d *Device) MakePipeline(ic device.InitContext, function string) (device.Pipeline, error) {
	lib, err := d.libs.Get(ic)
	if err != nil {
		return nil, err
	}
	key := ic.CustomPath + "#" + function

	d.mu.RLock()
	if p, ok := d.pipelines[key]; ok {
		d.mu.RUnlock()
		return p, nil
	}
	d.mu.RUnlock()

	src, err := lib.Source(function)
	if err != nil {
		return nil, err
	}
	shader := d.device.CreateShaderModuleWGSL(src)
	if shader == nil {
		return nil, fmt.Errorf("webgpu: compiling %s failed", function)
	}
	// Create compute pipeline with auto layout (nil layout)
	cp := d.device.CreateComputePipelineSimple(nil, shader, "main")
	if cp == nil {
		return nil, fmt.Errorf("webgpu: creating pipeline for %s failed", function)
	}
	p := &Pipeline{function: function, pipeline: cp}

	d.mu.Lock()
	d.pipelines[key] = p
	d.mu.Unlock()
	return p, nil
}

// NewCommandBuffer implements device.Device.
func (d *Device) NewCommandBuffer() (device.CommandBuffer, error) {
	encoder := d.device.CreateCommandEncoder(nil)
	if encoder == nil {
		return nil, fmt.Errorf("webgpu: creating command encoder failed")
	}
	return &CommandBuffer{dev: d, encoder: encoder}, nil
}

// bufferFor returns the storage buffer mirroring v, uploading v.Value when
// it holds []float32.
func (d *Device) bufferFor(v *graph.Variable) resident {
	if v == nil {
		return resident{buf: d.createBuffer(make([]byte, placeholderSize), storageUsage), size: placeholderSize}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.buffers[v]; ok {
		return r
	}
	size := v.NumElements() * 4
	if size < placeholderSize {
		size = placeholderSize
	}
	data := make([]byte, size)
	if vals, ok := v.Value.([]float32); ok {
		for i, f := range vals {
			if 4*i+4 > len(data) {
				break
			}
			binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(f))
		}
	}
	r := resident{buf: d.createBuffer(data, storageUsage), size: uint64(size)}
	d.buffers[v] = r
	return r
}

// createBuffer creates a GPU buffer and uploads initial data.
func (d *Device) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()
	return buffer
}

// Read copies the device contents of v back into v.Value as []float32.
// Call it after the command buffer that wrote v was committed.
func (d *Device) Read(v *graph.Variable) error {
	d.mu.RLock()
	r, ok := d.buffers[v]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("webgpu: variable %q has no device buffer", v.Name)
	}
	n := v.NumElements()
	size := uint64(n * 4)
	if size == 0 {
		v.Value = []float32{}
		return nil
	}

	s := d.staging.acquire(size)
	staging := s.buf

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(r.buf, 0, staging, 0, size)
	d.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		staging.Release()
		return fmt.Errorf("webgpu: mapping staging buffer: %w", err)
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(mapped[4*i:]))
	}
	staging.Unmap()
	d.staging.release(s)
	v.Value = vals
	return nil
}

// Release frees every resident buffer and the device itself.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for v, r := range d.buffers {
		r.buf.Release()
		delete(d.buffers, v)
	}
	d.pipelines = make(map[string]*Pipeline)
	d.staging.clear()
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// CommandBuffer records compute passes on one command encoder.
type CommandBuffer struct {
	dev     *Device
	encoder *wgpu.CommandEncoder

	mu        sync.Mutex
	transient []*wgpu.Buffer
	committed bool
}

// Encode implements device.CommandBuffer. Storage bindings take slots
// 0..n-1 in order and the uniforms slot n.
func (cb *CommandBuffer) Encode(disp device.Dispatch) error {
	p, ok := disp.Pipeline.(*Pipeline)
	if !ok || p == nil {
		return fmt.Errorf("webgpu: dispatch pipeline %T was not made by this device", disp.Pipeline)
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.committed {
		return fmt.Errorf("webgpu: command buffer already committed")
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(disp.Bindings)+1)
	for i, b := range disp.Bindings {
		r := cb.dev.bufferFor(b.Var)
		if b.Var == nil {
			cb.transient = append(cb.transient, r.buf)
		}
		//nolint:gosec // G115: binding index is small
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), r.buf, 0, r.size))
	}

	uniforms := disp.Uniforms
	alignedSize := (len(uniforms) + 15) &^ 15
	if alignedSize == 0 {
		alignedSize = 16
	}
	data := make([]byte, alignedSize)
	copy(data, uniforms)
	params := cb.dev.createBuffer(data, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	cb.transient = append(cb.transient, params)
	//nolint:gosec // G115: binding index is small
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(disp.Bindings)), params, 0, uint64(alignedSize)))

	layout := p.pipeline.GetBindGroupLayout(0)
	bindGroup := cb.dev.device.CreateBindGroupSimple(layout, entries)

	pass := cb.encoder.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(disp.Groups[0], disp.Groups[1], disp.Groups[2])
	pass.End()
	return nil
}

// Commit submits the recorded passes to the device queue.
func (cb *CommandBuffer) Commit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.committed {
		return fmt.Errorf("webgpu: command buffer already committed")
	}
	cb.committed = true
	cmd := cb.encoder.Finish(nil)
	cb.dev.queue.Submit(cmd)
	for _, buf := range cb.transient {
		buf.Release()
	}
	cb.transient = nil
	return nil
}
