package vulkan

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// DescriptorSetLayout is identified by its bindings; two layouts with the
// same bindings are interchangeable and the cache only creates one.
type DescriptorSetLayout struct {
	Handle vk.DescriptorSetLayout

	bindings []LayoutBinding
	hash     uint64
}

// NewDescriptorSetLayout prepares a layout. The Vulkan object is created by
// the descriptor cache on first use.
func NewDescriptorSetLayout(bindings []LayoutBinding) (*DescriptorSetLayout, error) {
	sorted := make([]LayoutBinding, len(bindings))
	copy(sorted, bindings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Binding < sorted[j].Binding })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Binding == sorted[i-1].Binding {
			return nil, errors.Wrapf(ErrDuplicateBinding, "binding %d", sorted[i].Binding)
		}
	}
	for _, b := range sorted {
		if b.Count == 0 {
			return nil, errors.Wrapf(ErrEmptyBinding, "binding %d", b.Binding)
		}
	}

	h := newHasher()
	for _, b := range sorted {
		fmt.Fprintf(h, "%d:%d:%d:%d|", b.Binding, b.Type, b.Count, b.Stages)
	}
	return &DescriptorSetLayout{bindings: sorted, hash: h.Sum64()}, nil
}

func (l *DescriptorSetLayout) Bindings() []LayoutBinding {
	return l.bindings
}

func (l *DescriptorSetLayout) NumBindings() int {
	return len(l.bindings)
}

func (l *DescriptorSetLayout) Hash() uint64 {
	return l.hash
}

func (l *DescriptorSetLayout) Equal(o *DescriptorSetLayout) bool {
	if l == o {
		return true
	}
	if o == nil || l.hash != o.hash || len(l.bindings) != len(o.bindings) {
		return false
	}
	for i := range l.bindings {
		if l.bindings[i] != o.bindings[i] {
			return false
		}
	}
	return true
}

// RequiredPoolSizes sums descriptor counts per type, ordered by type.
func (l *DescriptorSetLayout) RequiredPoolSizes() []PoolSize {
	var sizes []PoolSize
	for _, b := range l.bindings {
		sizes = addPoolSize(sizes, PoolSize{Type: b.Type, Count: b.Count})
	}
	return sizes
}

func (l *DescriptorSetLayout) IsCreated() bool {
	return l.Handle != nil
}

func (l *DescriptorSetLayout) create(device Device) error {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(l.bindings))
	for i, b := range l.bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  b.Type,
			DescriptorCount: b.Count,
			StageFlags:      b.Stages,
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	handle, err := device.CreateDescriptorSetLayout(&createInfo)
	if err != nil {
		return errors.Wrapf(err, "creating descriptor set layout with %d bindings", len(l.bindings))
	}
	l.Handle = handle
	return nil
}

func (l *DescriptorSetLayout) destroy(device Device) {
	if l.Handle != nil {
		device.DestroyDescriptorSetLayout(l.Handle)
		l.Handle = nil
	}
}
