// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"encoding/binary"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"gviegas/rend3/driver"
)

const spirvMagic = 0x07230203

// shaderCode implements driver.ShaderCode.
type shaderCode struct {
	g     *GPU
	stage driver.Stage
	mod   vk.ShaderModule
}

// NewShaderCode creates a new shader code from SPIR-V data.
func (g *GPU) NewShaderCode(stage driver.Stage, data []byte) (driver.ShaderCode, error) {
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, driver.NewError(driver.ErrResource, "vkCreateShaderModule", "", fmt.Sprintf("invalid SPIR-V size %d", len(data)))
	}
	code := make([]uint32, len(data)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if code[0] != spirvMagic {
		return nil, driver.NewError(driver.ErrResource, "vkCreateShaderModule", "", "not SPIR-V")
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(data)),
		PCode:    code,
	}
	var mod vk.ShaderModule
	if err := checkResult(vk.CreateShaderModule(g.dev, &info, nil, &mod), "vkCreateShaderModule", ""); err != nil {
		return nil, err
	}
	return &shaderCode{g: g, stage: stage, mod: mod}, nil
}

// Destroy destroys the shader code.
func (s *shaderCode) Destroy() {
	if s == nil || s.g == nil {
		return
	}
	vk.DestroyShaderModule(s.g.dev, s.mod, nil)
	*s = shaderCode{}
}
