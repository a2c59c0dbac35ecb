package lifetime

import (
	"sync"

	"github.com/cg-tuwien/auto-vk/avk/containers"
	"github.com/cg-tuwien/auto-vk/avk/core"
)

type Releasable interface {
	Release()
}

type frameBucket struct {
	frame uint64
	items []Releasable
}

// DeferredReleaser keeps resources alive until the GPU can no longer be
// using them, i.e. framesInFlight frames after the frame that last used them.
type DeferredReleaser struct {
	mu             sync.Mutex
	framesInFlight uint64
	buckets        *containers.RingQueue[*frameBucket]
	last           *frameBucket
}

func NewDeferredReleaser(framesInFlight uint32) *DeferredReleaser {
	if framesInFlight == 0 {
		framesInFlight = 1
	}
	return &DeferredReleaser{
		framesInFlight: uint64(framesInFlight),
		buckets:        containers.NewRingQueue[*frameBucket](int(framesInFlight) + 1),
	}
}

// Defer schedules r for release once frame has retired. Frames must not go
// backwards; an older frame is folded into the newest bucket.
func (d *DeferredReleaser) Defer(frame uint64, r Releasable) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.last != nil && frame <= d.last.frame {
		d.last.items = append(d.last.items, r)
		return
	}
	if d.buckets.IsFull() {
		// Advance was not called often enough.
		core.LogWarn("deferred releaser overflow, releasing frame %d early", d.oldestFrame())
		d.releaseOldest()
	}
	b := &frameBucket{frame: frame, items: []Releasable{r}}
	_ = d.buckets.Enqueue(b)
	d.last = b
}

// Advance releases everything deferred for frames that retired by current.
// It returns the number of released resources.
func (d *DeferredReleaser) Advance(current uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	released := 0
	for !d.buckets.IsEmpty() {
		b, _ := d.buckets.Peek()
		if b.frame+d.framesInFlight > current {
			break
		}
		released += d.releaseOldest()
	}
	return released
}

// ReleaseAll releases everything regardless of frame, e.g. after vkDeviceWaitIdle.
func (d *DeferredReleaser) ReleaseAll() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	released := 0
	for !d.buckets.IsEmpty() {
		released += d.releaseOldest()
	}
	return released
}

func (d *DeferredReleaser) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for i := 0; i < d.buckets.Len(); i++ {
		b, _ := d.buckets.Dequeue()
		n += len(b.items)
		_ = d.buckets.Enqueue(b)
	}
	return n
}

func (d *DeferredReleaser) oldestFrame() uint64 {
	b, err := d.buckets.Peek()
	if err != nil {
		return 0
	}
	return b.frame
}

func (d *DeferredReleaser) releaseOldest() int {
	b, err := d.buckets.Dequeue()
	if err != nil {
		return 0
	}
	if b == d.last {
		d.last = nil
	}
	for _, r := range b.items {
		r.Release()
	}
	return len(b.items)
}
