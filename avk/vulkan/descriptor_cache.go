package vulkan

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/cg-tuwien/auto-vk/avk/core"
)

type CacheStats struct {
	LayoutHits   uint64
	LayoutMisses uint64
	SetHits      uint64
	SetMisses    uint64
	PoolsCreated uint64
	Retries      uint64

	AllocationCount   uint64
	AverageAllocation time.Duration
}

// DescriptorCache deduplicates descriptor set layouts and descriptor sets and
// owns the pools the sets are allocated from. Pools only grow: when no pool
// has room for a request a new, larger one is created.
type DescriptorCache struct {
	name   string
	device Device
	config core.DescriptorConfig
	locks  *VulkanLockPool

	layouts map[uint64][]*DescriptorSetLayout
	sets    map[uint64][]*DescriptorSet
	pools   []*DescriptorPool
	// doubles on every out-of-pool retry, capped by MaxPoolSizeFactor
	growth uint32

	metrics *core.Metrics

	layoutHits, layoutMisses atomic.Uint64
	setHits, setMisses       atomic.Uint64
	poolsCreated, retries    atomic.Uint64
}

func NewDescriptorCache(device Device, name string, config core.DescriptorConfig) *DescriptorCache {
	return &DescriptorCache{
		name:    name,
		device:  device,
		config:  config,
		locks:   NewVulkanLockPool(),
		layouts: make(map[uint64][]*DescriptorSetLayout),
		sets:    make(map[uint64][]*DescriptorSet),
		growth:  1,
		metrics: core.NewMetrics(),
	}
}

func (c *DescriptorCache) Name() string {
	return c.name
}

// GetOrCreateDescriptorSetLayout returns the cached layout equal to the one
// described by bindings, creating it on a miss.
func (c *DescriptorCache) GetOrCreateDescriptorSetLayout(bindings []LayoutBinding) (*DescriptorSetLayout, error) {
	prepared, err := NewDescriptorSetLayout(bindings)
	if err != nil {
		return nil, err
	}

	var result *DescriptorSetLayout
	err = c.locks.SafeCall(LayoutManagement, func() error {
		for _, l := range c.layouts[prepared.Hash()] {
			if l.Equal(prepared) {
				c.layoutHits.Add(1)
				result = l
				return nil
			}
		}
		c.layoutMisses.Add(1)
		if err := prepared.create(c.device); err != nil {
			return err
		}
		c.layouts[prepared.Hash()] = append(c.layouts[prepared.Hash()], prepared)
		result = prepared
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "descriptor cache %q", c.name)
	}
	return result, nil
}

// GetOrCreateDescriptorSets returns one set per distinct set index in
// bindings, ordered by set index. Sets already in the cache are reused as is;
// the rest are allocated in one batch and written.
func (c *DescriptorCache) GetOrCreateDescriptorSets(bindings []Binding) ([]*DescriptorSet, error) {
	groups, err := groupBySet(bindings, true)
	if err != nil {
		return nil, err
	}

	result := make([]*DescriptorSet, 0, len(groups))
	err = c.locks.SafeCall(DescriptorSetManagement, func() error {
		var missing []*DescriptorSet
		for _, g := range groups {
			layout, err := c.GetOrCreateDescriptorSetLayout(layoutBindingsOf(g.bindings))
			if err != nil {
				return err
			}
			prepared := prepareDescriptorSet(g.set, layout, g.bindings)
			if cached := c.findSet(prepared); cached != nil {
				c.setHits.Add(1)
				result = append(result, cached)
				continue
			}
			c.setMisses.Add(1)
			missing = append(missing, prepared)
			result = append(result, prepared)
		}
		if len(missing) == 0 {
			return nil
		}

		if err := c.allocate(missing); err != nil {
			return err
		}
		var writes = missing[0].Writes()
		for _, s := range missing[1:] {
			writes = append(writes, s.Writes()...)
		}
		c.device.UpdateDescriptorSets(writes)

		for _, s := range missing {
			c.sets[s.Hash()] = append(c.sets[s.Hash()], s)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "descriptor cache %q", c.name)
	}
	return result, nil
}

func (c *DescriptorCache) findSet(prepared *DescriptorSet) *DescriptorSet {
	for _, s := range c.sets[prepared.Hash()] {
		if s.Equal(prepared) {
			return s
		}
	}
	return nil
}

// allocate assigns handles and pools to sets. A pool that runs out despite
// our bookkeeping (drivers may fragment) is abandoned for a fresh, bigger one
// and the allocation retried once.
func (c *DescriptorCache) allocate(sets []*DescriptorSet) error {
	defer c.metrics.Start()()

	layouts := make([]*DescriptorSetLayout, len(sets))
	for i, s := range sets {
		layouts[i] = s.layout
	}
	req := NewDescriptorAllocRequest(layouts)

	pool, err := c.poolFor(req, nil)
	if err != nil {
		return err
	}
	handles, err := pool.Allocate(layouts)
	if err != nil && (IsOutOfPoolMemory(err) || errors.Is(err, ErrPoolExhausted)) {
		c.retries.Add(1)
		core.LogDebug("Descriptor pool %s exhausted, retrying with a larger pool", pool.ID)
		pool, err = c.poolFor(req, pool)
		if err != nil {
			return err
		}
		handles, err = pool.Allocate(layouts)
	}
	if err != nil {
		return errors.Wrapf(err, "allocating %d descriptor sets", len(sets))
	}

	for i, s := range sets {
		s.Handle = handles[i]
		s.pool = pool
	}
	return nil
}

func (c *DescriptorCache) poolSizeFactor() uint32 {
	base := c.config.PoolSizeFactor
	switch c.device.VendorID() {
	case VendorNVIDIA, VendorAMD:
		// These drivers do not hold pools to the per-type counts they were
		// created with, so generously sized pools cost little.
		base = c.config.LenientPoolSizeFactor
	}
	return core.Clamp(base*c.growth, 1, core.Max(c.config.MaxPoolSizeFactor, 1))
}

// poolFor finds a pool with room for req or creates one. After a failed
// allocation, failed is the pool that refused it and the new pool is made
// larger than it even once the growth factor is capped.
func (c *DescriptorCache) poolFor(req DescriptorAllocRequest, failed *DescriptorPool) (*DescriptorPool, error) {
	if failed == nil {
		for _, p := range c.pools {
			if p.HasCapacityFor(req) {
				return p, nil
			}
		}
	} else {
		c.growth = core.Clamp(c.growth*2, 1, core.Max(c.config.MaxPoolSizeFactor, 1))
	}

	factor := c.poolSizeFactor()
	amplified := req.MultiplySizeRequirements(factor)
	if failed != nil {
		if factor >= core.Max(c.config.MaxPoolSizeFactor, 1) {
			core.LogWarn("Descriptor pool factor capped at %d, sizing the retry from pool %s", factor, failed.ID)
		}
		amplified = amplified.outgrow(failed)
	}
	pool, err := CreateDescriptorPool(c.device, amplified.AccumulatedPoolSizes(), amplified.NumSets(), c.config.FreeDescriptorSets)
	if err != nil {
		return nil, err
	}
	c.poolsCreated.Add(1)
	c.pools = append(c.pools, pool)
	return pool, nil
}

// FreeDescriptorSet evicts s from the cache and returns it to its pool.
// Only possible when the cache was configured with FreeDescriptorSets.
func (c *DescriptorCache) FreeDescriptorSet(s *DescriptorSet) error {
	return c.locks.SafeCall(DescriptorSetManagement, func() error {
		bucket := c.sets[s.Hash()]
		for i, cached := range bucket {
			if cached != s {
				continue
			}
			if err := s.pool.Free([]vk.DescriptorSet{s.Handle}, []*DescriptorSetLayout{s.layout}); err != nil {
				return err
			}
			c.sets[s.Hash()] = append(bucket[:i], bucket[i+1:]...)
			if len(c.sets[s.Hash()]) == 0 {
				delete(c.sets, s.Hash())
			}
			s.Handle = nil
			s.pool = nil
			return nil
		}
		return errors.Newf("descriptor set %d is not owned by cache %q", s.setID, c.name)
	})
}

// Reset resets every pool. All cached sets become invalid and are dropped;
// layouts stay. If a pool fails to reset, the sets of the pools reset before
// it are still dropped.
func (c *DescriptorCache) Reset() error {
	return c.locks.SafeCall(DescriptorSetManagement, func() error {
		reset := make(map[*DescriptorPool]bool, len(c.pools))
		for _, p := range c.pools {
			if err := p.Reset(); err != nil {
				c.dropSetsOf(reset)
				return errors.Wrapf(err, "resetting descriptor pool %s", p.ID)
			}
			reset[p] = true
		}
		c.sets = make(map[uint64][]*DescriptorSet)
		return nil
	})
}

func (c *DescriptorCache) dropSetsOf(pools map[*DescriptorPool]bool) {
	for h, bucket := range c.sets {
		kept := bucket[:0]
		for _, s := range bucket {
			if !pools[s.pool] {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(c.sets, h)
		} else {
			c.sets[h] = kept
		}
	}
}

// Cleanup destroys every pool and layout. The cache is empty but usable
// afterwards.
func (c *DescriptorCache) Cleanup() {
	_ = c.locks.SafeCall(DescriptorSetManagement, func() error {
		for _, p := range c.pools {
			p.Destroy()
		}
		c.pools = nil
		c.sets = make(map[uint64][]*DescriptorSet)
		c.growth = 1
		return c.locks.SafeCall(LayoutManagement, func() error {
			for _, bucket := range c.layouts {
				for _, l := range bucket {
					l.destroy(c.device)
				}
			}
			c.layouts = make(map[uint64][]*DescriptorSetLayout)
			return nil
		})
	})
	core.LogDebug("Descriptor cache %q cleaned up", c.name)
}

func (c *DescriptorCache) NumCachedLayouts() int {
	n := 0
	_ = c.locks.SafeCall(LayoutManagement, func() error {
		for _, bucket := range c.layouts {
			n += len(bucket)
		}
		return nil
	})
	return n
}

func (c *DescriptorCache) NumCachedSets() int {
	n := 0
	_ = c.locks.SafeCall(DescriptorSetManagement, func() error {
		for _, bucket := range c.sets {
			n += len(bucket)
		}
		return nil
	})
	return n
}

func (c *DescriptorCache) Pools() []*DescriptorPool {
	var pools []*DescriptorPool
	_ = c.locks.SafeCall(DescriptorSetManagement, func() error {
		pools = append(pools, c.pools...)
		return nil
	})
	return pools
}

func (c *DescriptorCache) Stats() CacheStats {
	return CacheStats{
		LayoutHits:        c.layoutHits.Load(),
		LayoutMisses:      c.layoutMisses.Load(),
		SetHits:           c.setHits.Load(),
		SetMisses:         c.setMisses.Load(),
		PoolsCreated:      c.poolsCreated.Load(),
		Retries:           c.retries.Load(),
		AllocationCount:   c.metrics.Count(),
		AverageAllocation: c.metrics.Average(),
	}
}
