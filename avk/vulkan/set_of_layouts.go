package vulkan

import (
	vk "github.com/goki/vulkan"
)

// SetOfDescriptorSetLayouts is the layouts of every set a pipeline uses,
// keyed by set index.
type SetOfDescriptorSetLayouts struct {
	setIDs  []uint32
	layouts []*DescriptorSetLayout
	empty   *DescriptorSetLayout
}

// GetOrCreateSetOfLayouts groups bindings by set and resolves each layout
// through the cache. Bindings need no resources here.
func (c *DescriptorCache) GetOrCreateSetOfLayouts(bindings []Binding) (*SetOfDescriptorSetLayouts, error) {
	groups, err := groupBySet(bindings, false)
	if err != nil {
		return nil, err
	}

	s := &SetOfDescriptorSetLayouts{}
	for _, g := range groups {
		layout, err := c.GetOrCreateDescriptorSetLayout(layoutBindingsOf(g.bindings))
		if err != nil {
			return nil, err
		}
		s.setIDs = append(s.setIDs, g.set)
		s.layouts = append(s.layouts, layout)
	}

	if s.hasGaps() {
		// vkCreatePipelineLayout wants a layout for every index up to the last one.
		empty, err := c.GetOrCreateDescriptorSetLayout(nil)
		if err != nil {
			return nil, err
		}
		s.empty = empty
	}
	return s, nil
}

func (s *SetOfDescriptorSetLayouts) hasGaps() bool {
	for i, id := range s.setIDs {
		if id != uint32(i) {
			return true
		}
	}
	return false
}

func (s *SetOfDescriptorSetLayouts) NumberOfSets() int {
	return len(s.layouts)
}

func (s *SetOfDescriptorSetLayouts) FirstSetID() uint32 {
	if len(s.setIDs) == 0 {
		return 0
	}
	return s.setIDs[0]
}

func (s *SetOfDescriptorSetLayouts) LastSetID() uint32 {
	if len(s.setIDs) == 0 {
		return 0
	}
	return s.setIDs[len(s.setIDs)-1]
}

func (s *SetOfDescriptorSetLayouts) SetIDs() []uint32 {
	return s.setIDs
}

func (s *SetOfDescriptorSetLayouts) LayoutForSet(setID uint32) (*DescriptorSetLayout, bool) {
	for i, id := range s.setIDs {
		if id == setID {
			return s.layouts[i], true
		}
	}
	return nil, false
}

// RequiredPoolSizes of allocating one set of every layout.
func (s *SetOfDescriptorSetLayouts) RequiredPoolSizes() []PoolSize {
	return NewDescriptorAllocRequest(s.layouts).AccumulatedPoolSizes()
}

// LayoutHandles returns handles for set 0 up to the last set index, with the
// empty layout standing in for unused indices.
func (s *SetOfDescriptorSetLayouts) LayoutHandles() []vk.DescriptorSetLayout {
	if len(s.layouts) == 0 {
		return nil
	}
	handles := make([]vk.DescriptorSetLayout, s.LastSetID()+1)
	for i := range handles {
		if s.empty != nil {
			handles[i] = s.empty.Handle
		}
	}
	for i, id := range s.setIDs {
		handles[id] = s.layouts[i].Handle
	}
	return handles
}
