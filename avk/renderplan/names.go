package renderplan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"golang.org/x/exp/constraints"
)

var ErrUnknownName = errors.New("unknown name")

var formats = map[string]vk.Format{
	"R8_UNORM":            vk.FormatR8Unorm,
	"R8G8B8A8_UNORM":      vk.FormatR8g8b8a8Unorm,
	"R8G8B8A8_SRGB":       vk.FormatR8g8b8a8Srgb,
	"B8G8R8A8_UNORM":      vk.FormatB8g8r8a8Unorm,
	"B8G8R8A8_SRGB":       vk.FormatB8g8r8a8Srgb,
	"R16G16B16A16_SFLOAT": vk.FormatR16g16b16a16Sfloat,
	"R32G32B32A32_SFLOAT": vk.FormatR32g32b32a32Sfloat,
	"R32_SFLOAT":          vk.FormatR32Sfloat,
	"D16_UNORM":           vk.FormatD16Unorm,
	"D32_SFLOAT":          vk.FormatD32Sfloat,
	"D24_UNORM_S8_UINT":   vk.FormatD24UnormS8Uint,
	"D32_SFLOAT_S8_UINT":  vk.FormatD32SfloatS8Uint,
}

var layouts = map[string]vk.ImageLayout{
	"UNDEFINED":                        vk.ImageLayoutUndefined,
	"GENERAL":                          vk.ImageLayoutGeneral,
	"COLOR_ATTACHMENT_OPTIMAL":         vk.ImageLayoutColorAttachmentOptimal,
	"DEPTH_STENCIL_ATTACHMENT_OPTIMAL": vk.ImageLayoutDepthStencilAttachmentOptimal,
	"DEPTH_STENCIL_READ_ONLY_OPTIMAL":  vk.ImageLayoutDepthStencilReadOnlyOptimal,
	"SHADER_READ_ONLY_OPTIMAL":         vk.ImageLayoutShaderReadOnlyOptimal,
	"TRANSFER_SRC_OPTIMAL":             vk.ImageLayoutTransferSrcOptimal,
	"TRANSFER_DST_OPTIMAL":             vk.ImageLayoutTransferDstOptimal,
	"PRESENT_SRC_KHR":                  vk.ImageLayoutPresentSrc,
}

var loadOps = map[string]vk.AttachmentLoadOp{
	"load":      vk.AttachmentLoadOpLoad,
	"clear":     vk.AttachmentLoadOpClear,
	"dont_care": vk.AttachmentLoadOpDontCare,
}

var storeOps = map[string]vk.AttachmentStoreOp{
	"store":     vk.AttachmentStoreOpStore,
	"dont_care": vk.AttachmentStoreOpDontCare,
}

var stages = map[string]vk.PipelineStageFlagBits{
	"top_of_pipe":             vk.PipelineStageTopOfPipeBit,
	"vertex_shader":           vk.PipelineStageVertexShaderBit,
	"early_fragment_tests":    vk.PipelineStageEarlyFragmentTestsBit,
	"fragment_shader":         vk.PipelineStageFragmentShaderBit,
	"late_fragment_tests":     vk.PipelineStageLateFragmentTestsBit,
	"color_attachment_output": vk.PipelineStageColorAttachmentOutputBit,
	"compute_shader":          vk.PipelineStageComputeShaderBit,
	"transfer":                vk.PipelineStageTransferBit,
	"bottom_of_pipe":          vk.PipelineStageBottomOfPipeBit,
}

var accesses = map[string]vk.AccessFlagBits{
	"input_attachment_read":          vk.AccessInputAttachmentReadBit,
	"shader_read":                    vk.AccessShaderReadBit,
	"shader_write":                   vk.AccessShaderWriteBit,
	"color_attachment_read":          vk.AccessColorAttachmentReadBit,
	"color_attachment_write":         vk.AccessColorAttachmentWriteBit,
	"depth_stencil_attachment_read":  vk.AccessDepthStencilAttachmentReadBit,
	"depth_stencil_attachment_write": vk.AccessDepthStencilAttachmentWriteBit,
	"transfer_read":                  vk.AccessTransferReadBit,
	"transfer_write":                 vk.AccessTransferWriteBit,
	"memory_read":                    vk.AccessMemoryReadBit,
	"memory_write":                   vk.AccessMemoryWriteBit,
}

func lookup[V any](table map[string]V, kind, name string) (V, error) {
	v, ok := table[name]
	if !ok {
		var zero V
		return zero, errors.Wrapf(ErrUnknownName, "%s %q", kind, name)
	}
	return v, nil
}

func nameOf[V comparable](table map[string]V, v V) string {
	for name, candidate := range table {
		if candidate == v {
			return name
		}
	}
	return fmt.Sprintf("%v", v)
}

// maskNames lists the names of the bits set in mask, sorted.
func maskNames[B constraints.Integer](table map[string]B, mask uint32) string {
	var names []string
	for name, bit := range table {
		if mask&uint32(bit) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func FormatName(f vk.Format) string {
	return nameOf(formats, f)
}

func LayoutName(l vk.ImageLayout) string {
	return nameOf(layouts, l)
}

func StageNames(s vk.PipelineStageFlags) string {
	return maskNames(stages, uint32(s))
}

func AccessNames(a vk.AccessFlags) string {
	return maskNames(accesses, uint32(a))
}
