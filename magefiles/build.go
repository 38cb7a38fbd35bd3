//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "docmodel"
	binaryDir  = "bin"
	cmdDir     = "./cmd/docmodel"
	versionVar = "github.com/mesh-intelligence/docmodel/internal/cli.Version"
)

// version returns the version stamped into the binary: $DOCMODEL_VERSION,
// else the closest git tag, else "dev".
func version() string {
	if v := os.Getenv("DOCMODEL_VERSION"); v != "" {
		return v
	}
	if tag, err := sh.Output("git", "describe", "--tags", "--always", "--dirty"); err == nil && tag != "" {
		return strings.TrimPrefix(tag, "v")
	}
	return "dev"
}

// Build compiles the docmodel binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	ldflags := "-X " + versionVar + "=" + version()
	return sh.RunV(binGo, "build", "-v", "-ldflags", ldflags, "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
