package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

var ErrEmptyShaderCode = errors.New("shader code is empty")

type ShaderModule struct {
	Handle vk.ShaderModule
	Name   string

	device Device
}

// CreateShaderModule wraps already validated SPIR-V words, see assets.LoadSPIRV.
func CreateShaderModule(device Device, name string, code []uint32) (*ShaderModule, error) {
	if len(code) == 0 {
		return nil, errors.Wrapf(ErrEmptyShaderCode, "shader %q", name)
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}
	handle, err := device.CreateShaderModule(&createInfo)
	if err != nil {
		return nil, errors.Wrapf(err, "creating shader module %q", name)
	}
	return &ShaderModule{Handle: handle, Name: name, device: device}, nil
}

// Entry point of every module, NUL terminated for the driver.
const entryPoint = "main\x00"

// StageInfo describes the module as one stage of a pipeline, entry point main.
func (m *ShaderModule) StageInfo(stage vk.ShaderStageFlagBits) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: m.Handle,
		PName:  entryPoint,
	}
}

func (m *ShaderModule) Destroy() {
	if m.Handle != nil {
		m.device.DestroyShaderModule(m.Handle)
		m.Handle = nil
	}
}
