//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Test groups test targets.
type Test mg.Namespace

// All runs every test. Mongo tests skip unless DOCMODEL_MONGO_URI is set.
func (Test) All() error {
	return sh.RunV(binGo, "test", "-v", "./...")
}

// Unit runs the tests with the race detector and without a mongo server.
func (Test) Unit() error {
	env := map[string]string{"DOCMODEL_MONGO_URI": ""}
	return sh.RunWithV(env, binGo, "test", "-race", "./...")
}

// Mongo runs the mongo backend tests against DOCMODEL_MONGO_URI.
func (Test) Mongo() error {
	if os.Getenv("DOCMODEL_MONGO_URI") == "" {
		return fmt.Errorf("DOCMODEL_MONGO_URI is not set")
	}
	return sh.RunV(binGo, "test", "-v", "-run", "Integration", "./internal/mongo/...")
}

// Cover writes coverage.out and prints the per-function summary.
func (Test) Cover() error {
	if err := sh.RunV(binGo, "test", "-coverprofile=coverage.out", "./..."); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func=coverage.out")
}
