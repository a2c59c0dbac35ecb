package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/cg-tuwien/auto-vk/avk/core"
	"github.com/cg-tuwien/auto-vk/avk/lifetime"
)

var ErrAttachmentCountMismatch = errors.New("framebuffer attachments do not match the render pass")

// Framebuffer keeps its render pass alive when it owns it.
type Framebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  lifetime.Ownership[*Renderpass]
	Width       uint32
	Height      uint32
	Layers      uint32

	device Device
}

func CreateFramebuffer(device Device, renderpass lifetime.Ownership[*Renderpass], views []vk.ImageView, width, height, layers uint32) (*Framebuffer, error) {
	rp := renderpass.Get()
	if len(views) != rp.NumAttachments() {
		return nil, core.LogAndReturn(errors.Wrapf(ErrAttachmentCountMismatch,
			"render pass %s has %d attachments, got %d views", rp.ID, rp.NumAttachments(), len(views)))
	}
	if layers == 0 {
		layers = 1
	}

	fb := &Framebuffer{
		Attachments: make([]vk.ImageView, len(views)),
		Renderpass:  renderpass,
		Width:       width,
		Height:      height,
		Layers:      layers,
		device:      device,
	}
	copy(fb.Attachments, views)

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.Handle,
		AttachmentCount: uint32(len(fb.Attachments)),
		PAttachments:    fb.Attachments,
		Width:           width,
		Height:          height,
		Layers:          layers,
	}
	handle, err := device.CreateFramebuffer(&createInfo)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %dx%d framebuffer", width, height)
	}
	fb.Handle = handle
	return fb, nil
}

// Destroy releases the render pass too if the framebuffer owns it.
func (f *Framebuffer) Destroy() {
	if f.Handle != nil {
		f.device.DestroyFramebuffer(f.Handle)
		f.Handle = nil
	}
	f.Attachments = nil
	f.Renderpass.Release()
}
