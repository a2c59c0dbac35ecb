package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/cg-tuwien/auto-vk/avk/core"
)

var ErrPoolExhausted = errors.New("descriptor pool has no capacity for the request")

// DescriptorPool wraps a VkDescriptorPool and tracks how much of it is left.
// Vulkan does not report remaining capacity, so every allocation through
// Allocate is accounted for here.
type DescriptorPool struct {
	ID     uuid.UUID
	Handle vk.DescriptorPool

	device   Device
	freeable bool

	initialCapacities   []PoolSize
	remainingCapacities []PoolSize
	numInitialSets      uint32
	numRemainingSets    uint32
	// set once the driver refused an allocation our bookkeeping allowed
	exhausted bool
}

func CreateDescriptorPool(device Device, sizes []PoolSize, numSets uint32, freeable bool) (*DescriptorPool, error) {
	if numSets == 0 {
		return nil, errors.New("a descriptor pool needs room for at least one set")
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       numSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    toVkPoolSizes(sizes),
	}
	if freeable {
		createInfo.Flags = vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit)
	}

	handle, err := device.CreateDescriptorPool(&createInfo)
	if err != nil {
		return nil, errors.Wrapf(err, "creating descriptor pool for %d sets", numSets)
	}

	p := &DescriptorPool{
		ID:               uuid.New(),
		Handle:           handle,
		device:           device,
		freeable:         freeable,
		numInitialSets:   numSets,
		numRemainingSets: numSets,
	}
	p.initialCapacities = make([]PoolSize, len(sizes))
	copy(p.initialCapacities, sizes)
	p.remainingCapacities = make([]PoolSize, len(sizes))
	copy(p.remainingCapacities, sizes)

	core.LogDebug("Descriptor pool %s created: %d sets, %v", p.ID, numSets, sizes)
	return p, nil
}

// HasCapacityFor checks the bookkeeping, not the driver.
func (p *DescriptorPool) HasCapacityFor(req DescriptorAllocRequest) bool {
	if p.exhausted || p.numRemainingSets < req.NumSets() {
		return false
	}
	for _, s := range req.sizes {
		if countOf(p.remainingCapacities, s.Type) < s.Count {
			return false
		}
	}
	return true
}

// Allocate one set per layout. On success the pool's remaining capacity
// shrinks by the layouts' requirements. If the driver reports the pool as
// full the pool is marked exhausted and the Vulkan error is returned.
func (p *DescriptorPool) Allocate(layouts []*DescriptorSetLayout) ([]vk.DescriptorSet, error) {
	if len(layouts) == 0 {
		return nil, nil
	}
	req := NewDescriptorAllocRequest(layouts)
	if !p.HasCapacityFor(req) {
		return nil, errors.Wrapf(ErrPoolExhausted, "pool %s", p.ID)
	}

	handles := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		handles[i] = l.Handle
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Handle,
		DescriptorSetCount: uint32(len(handles)),
		PSetLayouts:        handles,
	}
	sets, err := p.device.AllocateDescriptorSets(&allocInfo)
	if err != nil {
		if IsOutOfPoolMemory(err) {
			p.exhausted = true
		}
		return nil, err
	}

	for _, s := range req.sizes {
		p.consume(s)
	}
	p.numRemainingSets -= req.NumSets()
	return sets, nil
}

func (p *DescriptorPool) consume(s PoolSize) {
	for i := range p.remainingCapacities {
		if p.remainingCapacities[i].Type == s.Type {
			p.remainingCapacities[i].Count -= s.Count
			return
		}
	}
}

// Free returns sets to a pool created with free support and gives their
// capacity back.
func (p *DescriptorPool) Free(sets []vk.DescriptorSet, layouts []*DescriptorSetLayout) error {
	if !p.freeable {
		return errors.Newf("descriptor pool %s was not created with free support", p.ID)
	}
	if err := p.device.FreeDescriptorSets(p.Handle, sets); err != nil {
		return err
	}
	req := NewDescriptorAllocRequest(layouts)
	for _, s := range req.sizes {
		for i := range p.remainingCapacities {
			if p.remainingCapacities[i].Type == s.Type {
				p.remainingCapacities[i].Count += s.Count
			}
		}
	}
	p.numRemainingSets += req.NumSets()
	p.exhausted = false
	return nil
}

// Reset invalidates every set allocated from the pool.
func (p *DescriptorPool) Reset() error {
	if err := p.device.ResetDescriptorPool(p.Handle); err != nil {
		return err
	}
	copy(p.remainingCapacities, p.initialCapacities)
	p.numRemainingSets = p.numInitialSets
	p.exhausted = false
	return nil
}

func (p *DescriptorPool) Destroy() {
	if p.Handle != nil {
		p.device.DestroyDescriptorPool(p.Handle)
		p.Handle = nil
	}
}

func (p *DescriptorPool) InitialCapacities() []PoolSize {
	return p.initialCapacities
}

func (p *DescriptorPool) RemainingCapacities() []PoolSize {
	return p.remainingCapacities
}

func (p *DescriptorPool) NumInitialSets() uint32 {
	return p.numInitialSets
}

func (p *DescriptorPool) NumRemainingSets() uint32 {
	return p.numRemainingSets
}

func (p *DescriptorPool) IsExhausted() bool {
	return p.exhausted
}
