//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/magefile/mage/mg"
)

const shaderDir = "assets/shaders"

type cmdOptions struct {
	args   []string
	dir    string
	stream bool
}

type cmdOption func(*cmdOptions)

func withArgs(args ...string) cmdOption {
	return func(o *cmdOptions) {
		o.args = args
	}
}

func withStream() cmdOption {
	return func(o *cmdOptions) {
		o.stream = true
	}
}

func executeCmd(command string, options ...cmdOption) (string, error) {
	opts := &cmdOptions{}
	for _, o := range options {
		o(opts)
	}

	fmt.Printf("Executing: %s %s\n", command, strings.Join(opts.args, " "))
	cmd := exec.Command(command, opts.args...)
	if opts.dir != "" {
		cmd.Dir = opts.dir
	}

	streamOutput := mg.Verbose() || opts.stream

	var b bytes.Buffer
	if streamOutput {
		cmd.Stdout = io.MultiWriter(&b, os.Stdout)
		cmd.Stderr = io.MultiWriter(&b, os.Stderr)
	} else {
		cmd.Stdout = &b
		cmd.Stderr = &b
	}
	err := cmd.Run()
	if err != nil {
		if !streamOutput {
			fmt.Println("... failed command output:")
			fmt.Println(b.String())
		}
		return "", fmt.Errorf("error executing %s: %w", command, err)
	}
	return b.String(), nil
}

// shaderStages are the GLSL source extensions glslc compiles.
var shaderStages = []string{".vert", ".tesc", ".tese", ".frag", ".comp"}

// buildShaders compiles assets/shaders/<name>.<stage> into
// <name>.<stage>.spv next to it.
func buildShaders() error {
	sources, err := filepath.Glob(filepath.Join(shaderDir, "*"))
	if err != nil {
		return err
	}
	for _, src := range sources {
		if !slices.Contains(shaderStages, filepath.Ext(src)) {
			continue
		}
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.1", src, "-o", src+".spv"), withStream()); err != nil {
			return err
		}
	}
	return nil
}
