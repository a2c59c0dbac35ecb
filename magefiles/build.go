//go:build mage

package main

import (
	"io/fs"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var shaderStages = map[string]bool{".vert": true, ".frag": true, ".comp": true, ".geom": true}

// Compiles every GLSL source under shaders/ into a .spv next to it.
func (Build) Shaders() error {
	return buildShaders("shaders")
}

// Builds the auto-vk binary into bin/.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/auto-vk", "."), withStream())
	return err
}

func buildShaders(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if d.IsDir() || !shaderStages[ext] {
			return nil
		}
		// shaders/gbuffer.frag -> shaders/gbuffer.frag.spv
		out := path + ".spv"
		if _, err := executeCmd("glslc", withArgs(path, "-o", out), withStream()); err != nil {
			return err
		}
		return nil
	})
}
