//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Plans the deferred-shading sample render pass and prints it.
func (Run) Plan() error {
	fmt.Println("Planning plans/deferred.toml...")
	_, err := executeCmd("go", withArgs("run", ".", "-plan", "plans/deferred.toml"), withStream())
	return err
}

// Compiles the shaders, then serves them with hot reload until interrupted.
func (Run) Watch() error {
	if err := buildShaders("shaders"); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("run", ".", "-config", "avk.toml", "-watch"), withStream())
	return err
}

// Runs the unit tests of every package.
func Test() error {
	// goki/vulkan is a cgo binding
	_, err := executeCmd("go", withArgs("test", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}

// Tidies the module and vets every package.
func Tidy() error {
	return goTidy()
}
