package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/cg-tuwien/auto-vk/avk/core"
)

var ErrMisalignedPushConstants = errors.New("push constant ranges must be 4-byte aligned")

type PushConstantRange struct {
	Stages vk.ShaderStageFlags
	Offset uint32
	Size   uint32
}

type PipelineLayout struct {
	Handle        vk.PipelineLayout
	Layouts       *SetOfDescriptorSetLayouts
	PushConstants []PushConstantRange

	device Device
}

func validatePushConstants(ranges []PushConstantRange) error {
	for i, r := range ranges {
		if r.Size == 0 {
			return errors.Wrapf(ErrMisalignedPushConstants, "push constant range %d is empty", i)
		}
		if core.AlignUp(r.Offset, 4) != r.Offset || core.AlignUp(r.Size, 4) != r.Size {
			return errors.Wrapf(ErrMisalignedPushConstants, "push constant range %d: offset %d size %d", i, r.Offset, r.Size)
		}
	}
	return nil
}

// CreatePipelineLayout resolves the descriptor set layouts of bindings
// through cache and creates a pipeline layout from them.
func CreatePipelineLayout(device Device, cache *DescriptorCache, bindings []Binding, pushConstants []PushConstantRange) (*PipelineLayout, error) {
	if err := validatePushConstants(pushConstants); err != nil {
		return nil, core.LogAndReturn(err)
	}

	layouts, err := cache.GetOrCreateSetOfLayouts(bindings)
	if err != nil {
		return nil, err
	}

	handles := layouts.LayoutHandles()
	ranges := make([]vk.PushConstantRange, len(pushConstants))
	for i, r := range pushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: r.Stages,
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}

	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(handles)),
		PSetLayouts:            handles,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	handle, err := device.CreatePipelineLayout(&createInfo)
	if err != nil {
		return nil, errors.Wrapf(err, "creating pipeline layout with %d set layouts", len(handles))
	}

	pl := &PipelineLayout{
		Handle:        handle,
		Layouts:       layouts,
		PushConstants: make([]PushConstantRange, len(pushConstants)),
		device:        device,
	}
	copy(pl.PushConstants, pushConstants)
	return pl, nil
}

// Destroy leaves the descriptor set layouts to the cache that owns them.
func (p *PipelineLayout) Destroy() {
	if p.Handle != nil {
		p.device.DestroyPipelineLayout(p.Handle)
		p.Handle = nil
	}
}
