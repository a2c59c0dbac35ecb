package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// DescriptorSet is an allocated set together with the bindings it was
// written with. Two sets are equal when they have the same set index, layout
// and resources.
type DescriptorSet struct {
	Handle vk.DescriptorSet

	setID    uint32
	layout   *DescriptorSetLayout
	bindings []Binding
	pool     *DescriptorPool
	hash     uint64
}

func prepareDescriptorSet(setID uint32, layout *DescriptorSetLayout, bindings []Binding) *DescriptorSet {
	h := newHasher()
	fmt.Fprintf(h, "set%d:%x|", setID, layout.Hash())
	for _, b := range bindings {
		b.hashInto(h)
	}
	return &DescriptorSet{
		setID:    setID,
		layout:   layout,
		bindings: cloneBindings(bindings),
		hash:     h.Sum64(),
	}
}

// cloneBindings copies the resource lists so a cached set does not change
// when the caller reuses its slices.
func cloneBindings(bindings []Binding) []Binding {
	out := make([]Binding, len(bindings))
	for i, b := range bindings {
		b.Buffers = append([]BufferInfo(nil), b.Buffers...)
		b.Images = append([]ImageInfo(nil), b.Images...)
		b.TexelViews = append([]vk.BufferView(nil), b.TexelViews...)
		out[i] = b
	}
	return out
}

func (s *DescriptorSet) SetID() uint32 {
	return s.setID
}

func (s *DescriptorSet) Layout() *DescriptorSetLayout {
	return s.layout
}

func (s *DescriptorSet) Bindings() []Binding {
	return s.bindings
}

func (s *DescriptorSet) Pool() *DescriptorPool {
	return s.pool
}

func (s *DescriptorSet) Hash() uint64 {
	return s.hash
}

func (s *DescriptorSet) Equal(o *DescriptorSet) bool {
	if s == o {
		return true
	}
	if o == nil || s.hash != o.hash || s.setID != o.setID || !s.layout.Equal(o.layout) || len(s.bindings) != len(o.bindings) {
		return false
	}
	for i := range s.bindings {
		a, b := s.bindings[i], o.bindings[i]
		if a.LayoutBinding() != b.LayoutBinding() || !a.equalResources(b) {
			return false
		}
	}
	return true
}

// Writes builds one VkWriteDescriptorSet per binding. Each write owns its
// info slices, so the result stays valid however the caller moves it around.
func (s *DescriptorSet) Writes() []vk.WriteDescriptorSet {
	writes := make([]vk.WriteDescriptorSet, 0, len(s.bindings))
	for _, b := range s.bindings {
		w := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.Handle,
			DstBinding:      b.Binding,
			DstArrayElement: 0,
			DescriptorCount: uint32(b.numResources()),
			DescriptorType:  b.Type,
		}
		switch kindOf(b.Type) {
		case resourceBuffer:
			infos := make([]vk.DescriptorBufferInfo, len(b.Buffers))
			for i, buf := range b.Buffers {
				infos[i] = vk.DescriptorBufferInfo{Buffer: buf.Buffer, Offset: buf.Offset, Range: buf.Range}
			}
			w.PBufferInfo = infos
		case resourceTexel:
			views := make([]vk.BufferView, len(b.TexelViews))
			copy(views, b.TexelViews)
			w.PTexelBufferView = views
		default:
			infos := make([]vk.DescriptorImageInfo, len(b.Images))
			for i, img := range b.Images {
				infos[i] = vk.DescriptorImageInfo{Sampler: img.Sampler, ImageView: img.View, ImageLayout: img.Layout}
			}
			w.PImageInfo = infos
		}
		writes = append(writes, w)
	}
	return writes
}
