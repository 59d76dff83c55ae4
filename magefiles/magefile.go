//go:build mage

// Package main provides build targets for carechain using Mage.
//
// Usage:
//
//	mage build      Compile the carechain binary to bin/
//	mage test:unit  Run unit tests
//	mage test:all   Run all tests with the race detector
//	mage lint       Run golangci-lint
//	mage clean      Remove build artifacts
//	mage install    Install carechain to GOPATH/bin
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "carechain"
	binaryDir  = "bin"
	cmdDir     = "./cmd/carechain"
	versionVar = "github.com/mesh-intelligence/carechain/internal/cli.Version"
)

// Test groups the test targets.
type Test mg.Namespace

// Build compiles the carechain binary to bin/, stamping the version from
// git describe when available.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	args := []string{"build", "-v", "-o", filepath.Join(binaryDir, binaryName)}
	if v, err := sh.Output("git", "describe", "--tags", "--always", "--dirty"); err == nil && v != "" {
		args = append(args, "-ldflags", fmt.Sprintf("-X %s=%s", versionVar, strings.TrimPrefix(v, "v")))
	}
	return sh.RunV("go", append(args, cmdDir)...)
}

// Unit runs the package tests in short mode.
func (Test) Unit() error {
	return sh.RunV("go", "test", "-short", "./...")
}

// All runs every test with the race detector and no caching.
func (Test) All() error {
	mg.Deps(Build)
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Clean removes build artifacts and the local data created by manual runs.
func Clean() error {
	for _, dir := range []string{binaryDir, ".carechain-db"} {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return sh.RunV("go", "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output("go", "env", "GOPATH")
	if err != nil {
		return err
	}
	return sh.Copy(filepath.Join(gopath, "bin", binaryName), filepath.Join(binaryDir, binaryName))
}
