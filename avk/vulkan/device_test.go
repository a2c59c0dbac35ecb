package vulkan

import (
	"sync"
	"sync/atomic"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// nextHandle hands out addresses below any Go heap arena; the handles
// only need to be distinct and non-nil, they are never dereferenced.
var nextHandle atomic.Uintptr

func init() {
	nextHandle.Store(0x100000)
}

// fakeHandle returns a unique non-nil handle of any Vulkan handle type.
func fakeHandle[H any]() H {
	addr := nextHandle.Add(0x10)
	return *(*H)(unsafe.Pointer(&addr))
}

// fakeDevice records what the package asks of the driver.
type fakeDevice struct {
	mu     sync.Mutex
	vendor uint32
	// number of upcoming AllocateDescriptorSets calls that report out of pool memory
	failAllocations int
	// 1-based ResetDescriptorPool call that fails, 0 for none
	failResetCall int

	createdLayouts   int
	destroyedLayouts int
	poolInfos        []vk.DescriptorPoolCreateInfo
	destroyedPools   int
	resetPools       int
	allocateCalls    int
	allocatedSets    int
	freedSets        int
	updateCalls      int
	writes           []vk.WriteDescriptorSet

	renderpassInfos       []vk.RenderPassCreateInfo
	destroyedRenderpasses int
	framebufferInfos      []vk.FramebufferCreateInfo
	destroyedFramebuffers int
	pipelineLayoutInfos   []vk.PipelineLayoutCreateInfo
	destroyedPipelines    int
	shaderModuleInfos     []vk.ShaderModuleCreateInfo
	destroyedShaders      int
}

func newFakeDevice(vendor uint32) *fakeDevice {
	return &fakeDevice{vendor: vendor}
}

func (d *fakeDevice) VendorID() uint32 {
	return d.vendor
}

func (d *fakeDevice) CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.createdLayouts++
	return fakeHandle[vk.DescriptorSetLayout](), nil
}

func (d *fakeDevice) DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyedLayouts++
}

func (d *fakeDevice) CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.poolInfos = append(d.poolInfos, *info)
	return fakeHandle[vk.DescriptorPool](), nil
}

func (d *fakeDevice) DestroyDescriptorPool(pool vk.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyedPools++
}

func (d *fakeDevice) ResetDescriptorPool(pool vk.DescriptorPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failResetCall > 0 && d.resetPools+1 == d.failResetCall {
		return newResultError("vkResetDescriptorPool", vk.ErrorOutOfHostMemory)
	}
	d.resetPools++
	return nil
}

func (d *fakeDevice) AllocateDescriptorSets(info *vk.DescriptorSetAllocateInfo) ([]vk.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocateCalls++
	if d.failAllocations > 0 {
		d.failAllocations--
		return nil, newResultError("vkAllocateDescriptorSets", vk.ErrorOutOfPoolMemory)
	}
	sets := make([]vk.DescriptorSet, info.DescriptorSetCount)
	for i := range sets {
		sets[i] = fakeHandle[vk.DescriptorSet]()
	}
	d.allocatedSets += len(sets)
	return sets, nil
}

func (d *fakeDevice) FreeDescriptorSets(pool vk.DescriptorPool, sets []vk.DescriptorSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freedSets += len(sets)
	return nil
}

func (d *fakeDevice) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updateCalls++
	d.writes = append(d.writes, writes...)
}

func (d *fakeDevice) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderpassInfos = append(d.renderpassInfos, *info)
	return fakeHandle[vk.RenderPass](), nil
}

func (d *fakeDevice) DestroyRenderPass(renderpass vk.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyedRenderpasses++
}

func (d *fakeDevice) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.framebufferInfos = append(d.framebufferInfos, *info)
	return fakeHandle[vk.Framebuffer](), nil
}

func (d *fakeDevice) DestroyFramebuffer(framebuffer vk.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyedFramebuffers++
}

func (d *fakeDevice) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipelineLayoutInfos = append(d.pipelineLayoutInfos, *info)
	return fakeHandle[vk.PipelineLayout](), nil
}

func (d *fakeDevice) DestroyPipelineLayout(layout vk.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyedPipelines++
}

func (d *fakeDevice) CreateShaderModule(info *vk.ShaderModuleCreateInfo) (vk.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shaderModuleInfos = append(d.shaderModuleInfos, *info)
	return fakeHandle[vk.ShaderModule](), nil
}

func (d *fakeDevice) DestroyShaderModule(module vk.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyedShaders++
}

var _ Device = (*fakeDevice)(nil)
