package vulkan

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/fnv"
	"sort"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

var (
	ErrDuplicateBinding     = errors.New("binding declared twice within the same set")
	ErrEmptyBinding         = errors.New("binding has neither a descriptor count nor resources")
	ErrTooManyResources     = errors.New("binding has more resources than descriptors")
	ErrResourceKindMismatch = errors.New("resources do not match the descriptor type")
)

type BufferInfo struct {
	Buffer vk.Buffer
	Offset vk.DeviceSize
	Range  vk.DeviceSize
}

type ImageInfo struct {
	Sampler vk.Sampler
	View    vk.ImageView
	Layout  vk.ImageLayout
}

// LayoutBinding is what a descriptor set layout knows about a binding.
type LayoutBinding struct {
	Binding uint32
	Type    vk.DescriptorType
	Count   uint32
	Stages  vk.ShaderStageFlags
}

// Binding ties a shader binding to the resources bound to it. Only the
// resource list matching Type is used. A zero Count means one descriptor
// per resource.
type Binding struct {
	Set     uint32
	Binding uint32
	Type    vk.DescriptorType
	Count   uint32
	Stages  vk.ShaderStageFlags

	Buffers    []BufferInfo
	Images     []ImageInfo
	TexelViews []vk.BufferView
}

type resourceKind int

const (
	resourceImage resourceKind = iota
	resourceBuffer
	resourceTexel
)

func kindOf(t vk.DescriptorType) resourceKind {
	switch t {
	case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeUniformBufferDynamic, vk.DescriptorTypeStorageBufferDynamic:
		return resourceBuffer
	case vk.DescriptorTypeUniformTexelBuffer, vk.DescriptorTypeStorageTexelBuffer:
		return resourceTexel
	default:
		return resourceImage
	}
}

func UniformBuffer(set, binding uint32, stages vk.ShaderStageFlags, buffers ...BufferInfo) Binding {
	return Binding{Set: set, Binding: binding, Type: vk.DescriptorTypeUniformBuffer, Stages: stages, Buffers: buffers}
}

func UniformBufferDynamic(set, binding uint32, stages vk.ShaderStageFlags, buffers ...BufferInfo) Binding {
	return Binding{Set: set, Binding: binding, Type: vk.DescriptorTypeUniformBufferDynamic, Stages: stages, Buffers: buffers}
}

func StorageBuffer(set, binding uint32, stages vk.ShaderStageFlags, buffers ...BufferInfo) Binding {
	return Binding{Set: set, Binding: binding, Type: vk.DescriptorTypeStorageBuffer, Stages: stages, Buffers: buffers}
}

func CombinedImageSampler(set, binding uint32, stages vk.ShaderStageFlags, images ...ImageInfo) Binding {
	return Binding{Set: set, Binding: binding, Type: vk.DescriptorTypeCombinedImageSampler, Stages: stages, Images: images}
}

func SampledImage(set, binding uint32, stages vk.ShaderStageFlags, images ...ImageInfo) Binding {
	return Binding{Set: set, Binding: binding, Type: vk.DescriptorTypeSampledImage, Stages: stages, Images: images}
}

func StorageImage(set, binding uint32, stages vk.ShaderStageFlags, images ...ImageInfo) Binding {
	return Binding{Set: set, Binding: binding, Type: vk.DescriptorTypeStorageImage, Stages: stages, Images: images}
}

func Sampler(set, binding uint32, stages vk.ShaderStageFlags, samplers ...vk.Sampler) Binding {
	images := make([]ImageInfo, len(samplers))
	for i, s := range samplers {
		images[i] = ImageInfo{Sampler: s}
	}
	return Binding{Set: set, Binding: binding, Type: vk.DescriptorTypeSampler, Stages: stages, Images: images}
}

// InputAttachment is always visible to the fragment stage only.
func InputAttachment(set, binding uint32, views ...vk.ImageView) Binding {
	images := make([]ImageInfo, len(views))
	for i, v := range views {
		images[i] = ImageInfo{View: v, Layout: vk.ImageLayoutShaderReadOnlyOptimal}
	}
	return Binding{
		Set:     set,
		Binding: binding,
		Type:    vk.DescriptorTypeInputAttachment,
		Stages:  vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		Images:  images,
	}
}

func UniformTexelBuffer(set, binding uint32, stages vk.ShaderStageFlags, views ...vk.BufferView) Binding {
	return Binding{Set: set, Binding: binding, Type: vk.DescriptorTypeUniformTexelBuffer, Stages: stages, TexelViews: views}
}

func StorageTexelBuffer(set, binding uint32, stages vk.ShaderStageFlags, views ...vk.BufferView) Binding {
	return Binding{Set: set, Binding: binding, Type: vk.DescriptorTypeStorageTexelBuffer, Stages: stages, TexelViews: views}
}

func (b Binding) numResources() int {
	switch kindOf(b.Type) {
	case resourceBuffer:
		return len(b.Buffers)
	case resourceTexel:
		return len(b.TexelViews)
	default:
		return len(b.Images)
	}
}

// DescriptorCount as declared in the layout.
func (b Binding) DescriptorCount() uint32 {
	if b.Count != 0 {
		return b.Count
	}
	return uint32(b.numResources())
}

func (b Binding) LayoutBinding() LayoutBinding {
	return LayoutBinding{
		Binding: b.Binding,
		Type:    b.Type,
		Count:   b.DescriptorCount(),
		Stages:  b.Stages,
	}
}

func (b Binding) validate(requireResources bool) error {
	if b.DescriptorCount() == 0 {
		return errors.Wrapf(ErrEmptyBinding, "set %d binding %d", b.Set, b.Binding)
	}
	n := b.numResources()
	if uint32(n) > b.DescriptorCount() {
		return errors.Wrapf(ErrTooManyResources, "set %d binding %d has %d resources for %d descriptors", b.Set, b.Binding, n, b.DescriptorCount())
	}
	foreign := 0
	switch kindOf(b.Type) {
	case resourceBuffer:
		foreign = len(b.Images) + len(b.TexelViews)
	case resourceTexel:
		foreign = len(b.Images) + len(b.Buffers)
	default:
		foreign = len(b.Buffers) + len(b.TexelViews)
	}
	if foreign > 0 {
		return errors.Wrapf(ErrResourceKindMismatch, "set %d binding %d", b.Set, b.Binding)
	}
	if requireResources && n == 0 {
		return errors.Wrapf(ErrEmptyBinding, "set %d binding %d has nothing to write", b.Set, b.Binding)
	}
	return nil
}

func (b Binding) equalResources(o Binding) bool {
	if len(b.Buffers) != len(o.Buffers) || len(b.Images) != len(o.Images) || len(b.TexelViews) != len(o.TexelViews) {
		return false
	}
	for i := range b.Buffers {
		if b.Buffers[i] != o.Buffers[i] {
			return false
		}
	}
	for i := range b.Images {
		if b.Images[i] != o.Images[i] {
			return false
		}
	}
	for i := range b.TexelViews {
		if b.TexelViews[i] != o.TexelViews[i] {
			return false
		}
	}
	return true
}

func (b Binding) hashInto(h hash.Hash64) {
	fmt.Fprintf(h, "b%d:%d:%d:%d|", b.Binding, b.Type, b.DescriptorCount(), b.Stages)
	var buf []byte
	for _, info := range b.Buffers {
		buf = appendHandle(buf, info.Buffer)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(info.Offset))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(info.Range))
	}
	for _, img := range b.Images {
		buf = appendHandle(buf, img.Sampler)
		buf = appendHandle(buf, img.View)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(img.Layout))
	}
	for _, v := range b.TexelViews {
		buf = appendHandle(buf, v)
	}
	h.Write(buf)
}

// appendHandle appends the address a handle carries. Handles point at
// incomplete C types, so they are read as plain words and never
// dereferenced or reflected on.
func appendHandle[H any](buf []byte, handle H) []byte {
	if unsafe.Sizeof(handle) != unsafe.Sizeof(uintptr(0)) {
		panic("vulkan: handle is not pointer sized")
	}
	addr := *(*uintptr)(unsafe.Pointer(&handle))
	return binary.LittleEndian.AppendUint64(buf, uint64(addr))
}

type bindingGroup struct {
	set      uint32
	bindings []Binding
}

// groupBySet sorts bindings into per-set groups ordered by set index, each
// ordered by binding index.
func groupBySet(bindings []Binding, requireResources bool) ([]bindingGroup, error) {
	bySet := make(map[uint32][]Binding)
	for _, b := range bindings {
		if err := b.validate(requireResources); err != nil {
			return nil, err
		}
		for _, other := range bySet[b.Set] {
			if other.Binding == b.Binding {
				return nil, errors.Wrapf(ErrDuplicateBinding, "set %d binding %d", b.Set, b.Binding)
			}
		}
		bySet[b.Set] = append(bySet[b.Set], b)
	}

	groups := make([]bindingGroup, 0, len(bySet))
	for set, bs := range bySet {
		sort.Slice(bs, func(i, j int) bool { return bs[i].Binding < bs[j].Binding })
		groups = append(groups, bindingGroup{set: set, bindings: bs})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].set < groups[j].set })
	return groups, nil
}

func layoutBindingsOf(bindings []Binding) []LayoutBinding {
	out := make([]LayoutBinding, len(bindings))
	for i, b := range bindings {
		out[i] = b.LayoutBinding()
	}
	return out
}

func newHasher() hash.Hash64 {
	return fnv.New64a()
}
