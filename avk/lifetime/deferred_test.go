package lifetime

import "testing"

type counter struct {
	n *int
}

func (c counter) Release() { *c.n++ }

func TestDeferredReleaserWaitsForFramesInFlight(t *testing.T) {
	released := 0
	d := NewDeferredReleaser(2)

	d.Defer(0, counter{&released})
	d.Defer(0, counter{&released})
	d.Defer(1, counter{&released})
	if d.Pending() != 3 {
		t.Fatalf("pending = %d", d.Pending())
	}

	if n := d.Advance(1); n != 0 || released != 0 {
		t.Fatalf("released %d at frame 1", n)
	}
	if n := d.Advance(2); n != 2 || released != 2 {
		t.Fatalf("frame 2 released %d, want 2", n)
	}
	if n := d.Advance(3); n != 1 || released != 3 {
		t.Fatalf("frame 3 released %d, want 1", n)
	}
	if d.Pending() != 0 {
		t.Fatalf("nothing should be pending")
	}
}

func TestDeferredReleaserFoldsOlderFrames(t *testing.T) {
	released := 0
	d := NewDeferredReleaser(1)
	d.Defer(5, counter{&released})
	d.Defer(3, counter{&released})
	if n := d.Advance(5); n != 0 {
		t.Fatalf("released too early")
	}
	if n := d.Advance(6); n != 2 {
		t.Fatalf("released %d, want 2", n)
	}
}

func TestDeferredReleaserOverflowAndReleaseAll(t *testing.T) {
	released := 0
	d := NewDeferredReleaser(1)
	d.Defer(1, counter{&released})
	d.Defer(2, counter{&released})
	// capacity is two buckets, a third frame forces the oldest out
	d.Defer(3, counter{&released})
	if released != 1 {
		t.Fatalf("overflow released %d, want 1", released)
	}
	if n := d.ReleaseAll(); n != 2 || released != 3 {
		t.Fatalf("release all: %d / %d", n, released)
	}
}

func TestDeferredReleaserOwnedValues(t *testing.T) {
	destroyed := 0
	o := Own(&handle{}, func(*handle) { destroyed++ })
	d := NewDeferredReleaser(1)
	d.Defer(0, o)
	d.Advance(1)
	if destroyed != 1 {
		t.Fatalf("owned value not destroyed")
	}
}
