package vulkan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

var ErrInvalidUsage = errors.New("invalid subpass usage")

type UsageFlags uint32

const (
	UsageInput UsageFlags = 1 << iota
	UsageColor
	UsageDepthStencil
	UsageResolve
	UsagePreserve
)

// SubpassUsage describes what one subpass does with an attachment. Usages
// combine with And, e.g. Input(0).And(Color(1)).
type SubpassUsage struct {
	flags         UsageFlags
	inputLocation uint32
	colorLocation uint32
	resolveTarget uint32
}

func Unused() SubpassUsage {
	return SubpassUsage{}
}

// Input reads the attachment at the given input_attachment_index.
func Input(location uint32) SubpassUsage {
	return SubpassUsage{flags: UsageInput, inputLocation: location}
}

// Color writes the attachment at the given fragment output location.
func Color(location uint32) SubpassUsage {
	return SubpassUsage{flags: UsageColor, colorLocation: location}
}

func DepthStencil() SubpassUsage {
	return SubpassUsage{flags: UsageDepthStencil}
}

// Preserve keeps the contents although the subpass does not touch them.
func Preserve() SubpassUsage {
	return SubpassUsage{flags: UsagePreserve}
}

func (u SubpassUsage) And(o SubpassUsage) SubpassUsage {
	u.flags |= o.flags
	if o.flags&UsageInput != 0 {
		u.inputLocation = o.inputLocation
	}
	if o.flags&UsageColor != 0 {
		u.colorLocation = o.colorLocation
	}
	if o.flags&UsageResolve != 0 {
		u.resolveTarget = o.resolveTarget
	}
	return u
}

// Resolve marks a color usage to be resolved into the attachment with index
// target, e.g. Color(0).And(Resolve(2)).
func Resolve(target uint32) SubpassUsage {
	return SubpassUsage{flags: UsageResolve, resolveTarget: target}
}

// ResolveTo resolves this multisampled color attachment into the attachment
// with index target at the end of the subpass.
func (u SubpassUsage) ResolveTo(target uint32) SubpassUsage {
	u.flags |= UsageResolve
	u.resolveTarget = target
	return u
}

func (u SubpassUsage) Flags() UsageFlags { return u.flags }
func (u SubpassUsage) IsUnused() bool { return u.flags&^UsagePreserve == 0 }
func (u SubpassUsage) IsInput() bool { return u.flags&UsageInput != 0 }
func (u SubpassUsage) IsColor() bool { return u.flags&UsageColor != 0 }
func (u SubpassUsage) IsDepthStencil() bool { return u.flags&UsageDepthStencil != 0 }
func (u SubpassUsage) IsResolve() bool { return u.flags&UsageResolve != 0 }
func (u SubpassUsage) IsPreserve() bool { return u.flags&UsagePreserve != 0 }
func (u SubpassUsage) InputLocation() uint32 { return u.inputLocation }
func (u SubpassUsage) ColorLocation() uint32 { return u.colorLocation }
func (u SubpassUsage) ResolveTarget() uint32 { return u.resolveTarget }

func (u SubpassUsage) String() string {
	if u.flags == 0 {
		return "unused"
	}
	var parts []string
	if u.IsInput() {
		parts = append(parts, fmt.Sprintf("input(%d)", u.inputLocation))
	}
	if u.IsColor() {
		parts = append(parts, fmt.Sprintf("color(%d)", u.colorLocation))
	}
	if u.IsDepthStencil() {
		parts = append(parts, "depth_stencil")
	}
	if u.IsResolve() {
		parts = append(parts, fmt.Sprintf("resolve(%d)", u.resolveTarget))
	}
	if u.IsPreserve() {
		parts = append(parts, "preserve")
	}
	return strings.Join(parts, "+")
}

// ParseUsage reads the notation produced by SubpassUsage.String, e.g.
// "input(0)+color(1)" or "color(0)+resolve(2)".
func ParseUsage(s string) (SubpassUsage, error) {
	var u SubpassUsage
	for _, part := range strings.Split(s, "+") {
		part = strings.ToLower(strings.TrimSpace(part))
		name, arg, hasArg := strings.Cut(part, "(")
		var n uint32
		if hasArg {
			if !strings.HasSuffix(arg, ")") {
				return SubpassUsage{}, errors.Wrapf(ErrInvalidUsage, "%q", part)
			}
			v, err := strconv.ParseUint(strings.TrimSuffix(arg, ")"), 10, 32)
			if err != nil {
				return SubpassUsage{}, errors.Wrapf(ErrInvalidUsage, "%q: %s", part, err)
			}
			n = uint32(v)
		}

		var next SubpassUsage
		switch {
		case name == "unused" && !hasArg:
			next = Unused()
		case name == "input" && hasArg:
			next = Input(n)
		case name == "color" && hasArg:
			next = Color(n)
		case name == "depth_stencil" && !hasArg:
			next = DepthStencil()
		case name == "resolve" && hasArg:
			next = Resolve(n)
		case name == "preserve" && !hasArg:
			next = Preserve()
		default:
			return SubpassUsage{}, errors.Wrapf(ErrInvalidUsage, "%q", part)
		}
		u = u.And(next)
	}
	return u, nil
}

// Attachment declares one render pass attachment and its usage in every
// subpass. Nil layouts are derived from the usages.
type Attachment struct {
	Format         vk.Format
	Samples        vk.SampleCountFlagBits
	LoadOp         vk.AttachmentLoadOp
	StoreOp        vk.AttachmentStoreOp
	StencilLoadOp  vk.AttachmentLoadOp
	StencilStoreOp vk.AttachmentStoreOp
	InitialLayout  *vk.ImageLayout
	FinalLayout    *vk.ImageLayout
	Usages         []SubpassUsage
}

func Layout(l vk.ImageLayout) *vk.ImageLayout {
	return &l
}

// ColorAttachment is cleared on load and stored.
func ColorAttachment(format vk.Format, usages ...SubpassUsage) Attachment {
	return Attachment{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		Usages:         usages,
	}
}

// PresentableColorAttachment ends up in the layout the swapchain presents from.
func PresentableColorAttachment(format vk.Format, usages ...SubpassUsage) Attachment {
	a := ColorAttachment(format, usages...)
	a.FinalLayout = Layout(vk.ImageLayoutPresentSrc)
	return a
}

// DepthStencilAttachment is cleared on load and its contents discarded.
func DepthStencilAttachment(format vk.Format, usages ...SubpassUsage) Attachment {
	return Attachment{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpClear,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		Usages:         usages,
	}
}

func (a Attachment) samples() vk.SampleCountFlagBits {
	if a.Samples == 0 {
		return vk.SampleCount1Bit
	}
	return a.Samples
}

func IsDepthFormat(f vk.Format) bool {
	switch f {
	case vk.FormatD16Unorm, vk.FormatX8D24UnormPack32, vk.FormatD32Sfloat, vk.FormatS8Uint,
		vk.FormatD16UnormS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return true
	}
	return false
}
