package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/cg-tuwien/auto-vk/avk/core"
)

// Well known PCI vendor ids, see VkPhysicalDeviceProperties::vendorID.
const (
	VendorNVIDIA uint32 = 0x10DE
	VendorAMD    uint32 = 0x1002
	VendorIntel  uint32 = 0x8086
)

// Device is the slice of the Vulkan device API this package drives. Instance,
// physical device selection and queue setup happen elsewhere; VulkanDevice
// wraps an already created logical device.
type Device interface {
	VendorID() uint32

	CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout)

	CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error)
	DestroyDescriptorPool(pool vk.DescriptorPool)
	ResetDescriptorPool(pool vk.DescriptorPool) error
	AllocateDescriptorSets(info *vk.DescriptorSetAllocateInfo) ([]vk.DescriptorSet, error)
	FreeDescriptorSets(pool vk.DescriptorPool, sets []vk.DescriptorSet) error
	UpdateDescriptorSets(writes []vk.WriteDescriptorSet)

	CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error)
	DestroyRenderPass(renderpass vk.RenderPass)
	CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error)
	DestroyFramebuffer(framebuffer vk.Framebuffer)

	CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error)
	DestroyPipelineLayout(layout vk.PipelineLayout)

	CreateShaderModule(info *vk.ShaderModuleCreateInfo) (vk.ShaderModule, error)
	DestroyShaderModule(module vk.ShaderModule)
}

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
	Allocator      *vk.AllocationCallbacks

	Properties vk.PhysicalDeviceProperties
}

func NewVulkanDevice(physicalDevice vk.PhysicalDevice, logicalDevice vk.Device, allocator *vk.AllocationCallbacks) *VulkanDevice {
	d := &VulkanDevice{
		PhysicalDevice: physicalDevice,
		LogicalDevice:  logicalDevice,
		Allocator:      allocator,
	}
	vk.GetPhysicalDeviceProperties(physicalDevice, &d.Properties)
	d.Properties.Deref()
	core.LogInfo("Using device vendor 0x%04X for descriptor pool sizing", d.Properties.VendorID)
	return d
}

func (d *VulkanDevice) VendorID() uint32 {
	return d.Properties.VendorID
}

func (d *VulkanDevice) CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error) {
	var layout vk.DescriptorSetLayout
	if err := checkResult("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.LogicalDevice, info, d.Allocator, &layout)); err != nil {
		return nil, err
	}
	return layout, nil
}

func (d *VulkanDevice) DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(d.LogicalDevice, layout, d.Allocator)
}

func (d *VulkanDevice) CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error) {
	var pool vk.DescriptorPool
	if err := checkResult("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.LogicalDevice, info, d.Allocator, &pool)); err != nil {
		return nil, err
	}
	return pool, nil
}

func (d *VulkanDevice) DestroyDescriptorPool(pool vk.DescriptorPool) {
	vk.DestroyDescriptorPool(d.LogicalDevice, pool, d.Allocator)
}

func (d *VulkanDevice) ResetDescriptorPool(pool vk.DescriptorPool) error {
	return checkResult("vkResetDescriptorPool", vk.ResetDescriptorPool(d.LogicalDevice, pool, 0))
}

func (d *VulkanDevice) AllocateDescriptorSets(info *vk.DescriptorSetAllocateInfo) ([]vk.DescriptorSet, error) {
	if info.DescriptorSetCount == 0 {
		return nil, nil
	}
	sets := make([]vk.DescriptorSet, info.DescriptorSetCount)
	// Pool exhaustion is expected and handled by the caller, so it is not logged here.
	if res := vk.AllocateDescriptorSets(d.LogicalDevice, info, &sets[0]); res != vk.Success {
		return nil, newResultError("vkAllocateDescriptorSets", res)
	}
	return sets, nil
}

func (d *VulkanDevice) FreeDescriptorSets(pool vk.DescriptorPool, sets []vk.DescriptorSet) error {
	if len(sets) == 0 {
		return nil
	}
	return checkResult("vkFreeDescriptorSets", vk.FreeDescriptorSets(d.LogicalDevice, pool, uint32(len(sets)), &sets[0]))
}

func (d *VulkanDevice) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	if len(writes) == 0 {
		return
	}
	vk.UpdateDescriptorSets(d.LogicalDevice, uint32(len(writes)), writes, 0, nil)
}

func (d *VulkanDevice) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	var renderpass vk.RenderPass
	if err := checkResult("vkCreateRenderPass", vk.CreateRenderPass(d.LogicalDevice, info, d.Allocator, &renderpass)); err != nil {
		return nil, err
	}
	return renderpass, nil
}

func (d *VulkanDevice) DestroyRenderPass(renderpass vk.RenderPass) {
	vk.DestroyRenderPass(d.LogicalDevice, renderpass, d.Allocator)
}

func (d *VulkanDevice) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	var framebuffer vk.Framebuffer
	if err := checkResult("vkCreateFramebuffer", vk.CreateFramebuffer(d.LogicalDevice, info, d.Allocator, &framebuffer)); err != nil {
		return nil, err
	}
	return framebuffer, nil
}

func (d *VulkanDevice) DestroyFramebuffer(framebuffer vk.Framebuffer) {
	vk.DestroyFramebuffer(d.LogicalDevice, framebuffer, d.Allocator)
}

func (d *VulkanDevice) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	var layout vk.PipelineLayout
	if err := checkResult("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.LogicalDevice, info, d.Allocator, &layout)); err != nil {
		return nil, err
	}
	return layout, nil
}

func (d *VulkanDevice) DestroyPipelineLayout(layout vk.PipelineLayout) {
	vk.DestroyPipelineLayout(d.LogicalDevice, layout, d.Allocator)
}

func (d *VulkanDevice) CreateShaderModule(info *vk.ShaderModuleCreateInfo) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	if err := checkResult("vkCreateShaderModule", vk.CreateShaderModule(d.LogicalDevice, info, d.Allocator, &module)); err != nil {
		return nil, err
	}
	return module, nil
}

func (d *VulkanDevice) DestroyShaderModule(module vk.ShaderModule) {
	vk.DestroyShaderModule(d.LogicalDevice, module, d.Allocator)
}
