package lifetime

import (
	"testing"

	"github.com/cockroachdb/errors"
)

type handle struct {
	id int
}

func TestUniqueOwnershipCannotBeShared(t *testing.T) {
	destroyed := 0
	o := Own(&handle{id: 1}, func(*handle) { destroyed++ })

	if o.IsShared() {
		t.Fatalf("new owners must be unique")
	}
	if _, err := o.Share(); !errors.Is(err, ErrNotShared) {
		t.Fatalf("share on unique owner: %v", err)
	}

	o.Release()
	o.Release()
	if destroyed != 1 {
		t.Fatalf("destroyed %d times, want 1", destroyed)
	}
	if _, err := o.Share(); !errors.Is(err, ErrReleased) {
		t.Fatalf("share after release: %v", err)
	}
}

func TestSharedOwnershipDestroysWithLastOwner(t *testing.T) {
	destroyed := 0
	o := Own(&handle{id: 2}, func(*handle) { destroyed++ }).EnableSharedOwnership()

	s1, err := o.Share()
	if err != nil {
		t.Fatal(err)
	}
	s2, err := s1.Share()
	if err != nil {
		t.Fatal(err)
	}
	if o.Owners() != 3 {
		t.Fatalf("owners = %d, want 3", o.Owners())
	}
	if s2.Get() != o.Get() {
		t.Fatalf("shared owners must see the same value")
	}

	ref := o.Reference()
	o.Release()
	s1.Release()
	if destroyed != 0 || !ref.IsValid() {
		t.Fatalf("destroyed early")
	}
	s2.Release()
	if destroyed != 1 {
		t.Fatalf("destroyed %d times, want 1", destroyed)
	}
	if ref.IsValid() {
		t.Fatalf("reference should be invalid after the last release")
	}
}

func TestMoveTransfersOwnership(t *testing.T) {
	destroyed := 0
	o := Own(handle{id: 3}, func(handle) { destroyed++ })
	moved, err := o.Move()
	if err != nil {
		t.Fatal(err)
	}
	if !o.IsReleased() || destroyed != 0 {
		t.Fatalf("move must release the source without destroying")
	}
	if moved.Get().id != 3 {
		t.Fatalf("moved value lost")
	}
	if _, err := o.Move(); !errors.Is(err, ErrReleased) {
		t.Fatalf("moving twice: %v", err)
	}
	moved.Release()
	if destroyed != 1 {
		t.Fatalf("destroyed %d times", destroyed)
	}
}

func TestGetAfterReleasePanics(t *testing.T) {
	o := Own(1, nil)
	o.Release()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	_ = o.Get()
}

func TestOwnershipReleasesOnlyOwners(t *testing.T) {
	destroyed := 0
	o := Own(&handle{id: 4}, func(*handle) { destroyed++ })

	borrowed := Referencing(o.Reference())
	if borrowed.IsOwned() {
		t.Fatalf("reference reported as owned")
	}
	borrowed.Release()
	if destroyed != 0 {
		t.Fatalf("releasing a reference destroyed the value")
	}

	owning := Owning(o)
	if !owning.IsOwned() || owning.Get().id != 4 {
		t.Fatalf("owning wrapper broken")
	}
	owning.Release()
	if destroyed != 1 {
		t.Fatalf("owning wrapper did not release")
	}

	external := Ref(&handle{id: 5})
	if !external.IsValid() || external.Get().id != 5 {
		t.Fatalf("external reference broken")
	}
	var zero Reference[int]
	if zero.IsValid() {
		t.Fatalf("zero reference must be invalid")
	}
}
