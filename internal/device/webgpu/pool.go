//go:build windows

package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

const (
	stagingUsage = wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst

	smallThreshold  = 4 * 1024
	mediumThreshold = 1024 * 1024
	maxPerBucket    = 32
)

type bucket int

const (
	small bucket = iota
	medium
	large
	numBuckets
)

func bucketOf(size uint64) bucket {
	switch {
	case size < smallThreshold:
		return small
	case size < mediumThreshold:
		return medium
	default:
		return large
	}
}

type staged struct {
	buf  *wgpu.Buffer
	size uint64
}

// stagingPool recycles map-read buffers used by Device.Read.
type stagingPool struct {
	device *wgpu.Device

	mu      sync.Mutex
	buckets [numBuckets][]staged

	hits   uint64
	misses uint64
}

func newStagingPool(device *wgpu.Device) *stagingPool {
	return &stagingPool{device: device}
}

// acquire returns a staging buffer of at least size bytes.
func (p *stagingPool) acquire(size uint64) staged {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := bucketOf(size)
	for i, s := range p.buckets[b] {
		if s.size >= size {
			p.buckets[b] = append(p.buckets[b][:i], p.buckets[b][i+1:]...)
			p.hits++
			return s
		}
	}
	p.misses++
	return staged{
		buf:  p.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: stagingUsage, Size: size}),
		size: size,
	}
}

// release returns an unmapped buffer to its bucket or frees it when the
// bucket is full.
func (p *stagingPool) release(s staged) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := bucketOf(s.size)
	if len(p.buckets[b]) >= maxPerBucket {
		s.buf.Release()
		return
	}
	p.buckets[b] = append(p.buckets[b], s)
}

// clear frees every pooled buffer.
func (p *stagingPool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for b := range p.buckets {
		for _, s := range p.buckets[b] {
			s.buf.Release()
		}
		p.buckets[b] = nil
	}
}

// stats returns the number of acquisitions served from the pool and the
// number that allocated.
func (p *stagingPool) stats() (hits, misses uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses
}
