//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles every GLSL stage under assets/shaders to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}

// Downloads the modules and builds the engine binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	fmt.Println("Build engine...")
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/anima-gpu", "."), withStream()); err != nil {
		return err
	}
	return nil
}
