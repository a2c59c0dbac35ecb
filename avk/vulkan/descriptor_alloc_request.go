package vulkan

import (
	"sort"

	vk "github.com/goki/vulkan"

	"github.com/cg-tuwien/auto-vk/avk/core"
)

type PoolSize struct {
	Type  vk.DescriptorType
	Count uint32
}

// addPoolSize merges s into sizes, keeping sizes sorted by type.
func addPoolSize(sizes []PoolSize, s PoolSize) []PoolSize {
	i := sort.Search(len(sizes), func(i int) bool { return sizes[i].Type >= s.Type })
	if i < len(sizes) && sizes[i].Type == s.Type {
		sizes[i].Count += s.Count
		return sizes
	}
	sizes = append(sizes, PoolSize{})
	copy(sizes[i+1:], sizes[i:])
	sizes[i] = s
	return sizes
}

func countOf(sizes []PoolSize, t vk.DescriptorType) uint32 {
	i := sort.Search(len(sizes), func(i int) bool { return sizes[i].Type >= t })
	if i < len(sizes) && sizes[i].Type == t {
		return sizes[i].Count
	}
	return 0
}

func toVkPoolSizes(sizes []PoolSize) []vk.DescriptorPoolSize {
	out := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		out[i] = vk.DescriptorPoolSize{Type: s.Type, DescriptorCount: s.Count}
	}
	return out
}

// DescriptorAllocRequest is what a batch of descriptor sets needs from a pool.
type DescriptorAllocRequest struct {
	sizes   []PoolSize
	numSets uint32
}

func NewDescriptorAllocRequest(layouts []*DescriptorSetLayout) DescriptorAllocRequest {
	var r DescriptorAllocRequest
	for _, l := range layouts {
		for _, s := range l.RequiredPoolSizes() {
			r.AddSizeRequirements(s)
		}
	}
	r.numSets = uint32(len(layouts))
	return r
}

func (r *DescriptorAllocRequest) AddSizeRequirements(s PoolSize) {
	if s.Count == 0 {
		return
	}
	r.sizes = addPoolSize(r.sizes, s)
}

func (r *DescriptorAllocRequest) SetNumSets(n uint32) {
	r.numSets = n
}

// MultiplySizeRequirements scales every descriptor count and the set count.
func (r DescriptorAllocRequest) MultiplySizeRequirements(factor uint32) DescriptorAllocRequest {
	out := DescriptorAllocRequest{
		sizes:   make([]PoolSize, len(r.sizes)),
		numSets: r.numSets * factor,
	}
	for i, s := range r.sizes {
		out.sizes[i] = PoolSize{Type: s.Type, Count: s.Count * factor}
	}
	return out
}

func (r DescriptorAllocRequest) AccumulatedPoolSizes() []PoolSize {
	out := make([]PoolSize, len(r.sizes))
	copy(out, r.sizes)
	return out
}

func (r DescriptorAllocRequest) NumSets() uint32 {
	return r.numSets
}

// outgrow returns r enlarged so that every count, and the set count, is at
// least twice what p was created with.
func (r DescriptorAllocRequest) outgrow(p *DescriptorPool) DescriptorAllocRequest {
	out := DescriptorAllocRequest{
		sizes:   r.AccumulatedPoolSizes(),
		numSets: core.Max(r.numSets, 2*p.numInitialSets),
	}
	for _, s := range p.initialCapacities {
		if missing := int64(2*s.Count) - int64(countOf(out.sizes, s.Type)); missing > 0 {
			out.sizes = addPoolSize(out.sizes, PoolSize{Type: s.Type, Count: uint32(missing)})
		}
	}
	return out
}
