//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/magefile/mage/mg"
)

// cmd describes one external tool invocation.
type cmd struct {
	args   []string
	dir    string
	env    []string
	stream bool
}

type cmdOption func(*cmd)

func withArgs(args ...string) cmdOption {
	return func(c *cmd) { c.args = append(c.args, args...) }
}

func withDir(dir string) cmdOption {
	return func(c *cmd) { c.dir = dir }
}

// withEnv adds KEY=VALUE pairs on top of the current environment.
func withEnv(kv ...string) cmdOption {
	return func(c *cmd) { c.env = append(c.env, kv...) }
}

func withStream() cmdOption {
	return func(c *cmd) { c.stream = true }
}

// executeCmd runs command and returns its combined output. Output is echoed
// when streaming was asked for or mage runs verbose; otherwise it is only
// printed if the command fails.
func executeCmd(command string, options ...cmdOption) (string, error) {
	c := &cmd{}
	for _, o := range options {
		o(c)
	}

	fmt.Printf("Executing: %s %s\n", command, strings.Join(c.args, " "))
	ex := exec.Command(command, c.args...)
	ex.Dir = c.dir
	if len(c.env) > 0 {
		ex.Env = append(os.Environ(), c.env...)
	}

	echo := c.stream || mg.Verbose()
	var out bytes.Buffer
	ex.Stdout, ex.Stderr = &out, &out
	if echo {
		ex.Stdout = io.MultiWriter(&out, os.Stdout)
		ex.Stderr = io.MultiWriter(&out, os.Stderr)
	}

	if err := ex.Run(); err != nil {
		if !echo {
			fmt.Printf("%s failed:\n%s\n", command, out.String())
		}
		return out.String(), fmt.Errorf("%s: %w", command, err)
	}
	return out.String(), nil
}

func goTidy() error {
	if _, err := executeCmd("go", withArgs("mod", "tidy")); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("vet", "./..."), withDir("."))
	return err
}
