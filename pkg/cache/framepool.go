package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Frame is a pre-allocated block of interleaved-channel audio samples.
// Frames are checked out of and back into a fixed pool by ID and are
// never resized after allocation.
type Frame struct {
	ID           string
	Data         [][]float32 // one slice per channel
	SampleRate   int
	Channels     int
	Frames       int
	Compressed   bool
	lastAccessed time.Time
	pooled       bool
}

// LastAccessed returns when the frame was last checked out.
func (f *Frame) LastAccessed() time.Time {
	return f.lastAccessed
}

// Pooled reports whether the frame belongs to the pool or was a direct
// allocation made while the pool was exhausted.
func (f *Frame) Pooled() bool {
	return f.pooled
}

// SizeBytes reports the sample footprint of the frame.
func (f *Frame) SizeBytes() int64 {
	return int64(f.Channels) * int64(f.Frames) * 4
}

// FramePool holds a fixed number of pre-allocated audio frames. When the
// pool is exhausted, Checkout falls back to a direct allocation that is
// not tracked; checking such a frame in is a no-op and it is left for the
// garbage collector.
type FramePool struct {
	sampleRate int
	channels   int
	frameLen   int

	mu     sync.Mutex
	frames map[string]*Frame
	free   []string

	directAllocs atomic.Int64
	checkouts    atomic.Int64
}

// NewFramePool pre-allocates capacity frames of channels x frameLen
// samples each.
func NewFramePool(capacity, channels, frameLen, sampleRate int) *FramePool {
	if capacity <= 0 {
		capacity = 1
	}
	p := &FramePool{
		sampleRate: sampleRate,
		channels:   channels,
		frameLen:   frameLen,
		frames:     make(map[string]*Frame, capacity),
		free:       make([]string, 0, capacity),
	}
	for i := 0; i < capacity; i++ {
		f := p.allocate(true)
		p.frames[f.ID] = f
		p.free = append(p.free, f.ID)
	}
	return p
}

func (p *FramePool) allocate(pooled bool) *Frame {
	data := make([][]float32, p.channels)
	for c := range data {
		data[c] = make([]float32, p.frameLen)
	}
	return &Frame{
		ID:         uuid.NewString(),
		Data:       data,
		SampleRate: p.sampleRate,
		Channels:   p.channels,
		Frames:     p.frameLen,
		pooled:     pooled,
	}
}

// Checkout hands out a free pooled frame, or a direct allocation when the
// pool is exhausted.
func (p *FramePool) Checkout() *Frame {
	p.checkouts.Add(1)

	p.mu.Lock()
	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		f := p.frames[id]
		f.lastAccessed = time.Now()
		p.mu.Unlock()
		return f
	}
	p.mu.Unlock()

	p.directAllocs.Add(1)
	f := p.allocate(false)
	f.lastAccessed = time.Now()
	return f
}

// Checkin returns a pooled frame to the free list by ID. Unknown IDs
// (direct allocations) are ignored.
func (p *FramePool) Checkin(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.frames[id]
	if !ok {
		return false
	}
	for _, freeID := range p.free {
		if freeID == id {
			return false
		}
	}
	f.Compressed = false
	p.free = append(p.free, id)
	return true
}

// Available returns the number of free pooled frames.
func (p *FramePool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Capacity returns the fixed pool size.
func (p *FramePool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

// DirectAllocs returns how many checkouts fell back to direct allocation.
func (p *FramePool) DirectAllocs() int64 {
	return p.directAllocs.Load()
}
