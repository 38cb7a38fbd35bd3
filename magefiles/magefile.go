//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for docmodel using Mage.
//
// Usage:
//
//	mage build          Compile the docmodel binary to bin/
//	mage test:all       Run every test
//	mage test:unit      Run tests with -race and without a mongo server
//	mage test:mongo     Run the mongo backend tests (needs DOCMODEL_MONGO_URI)
//	mage test:cover     Write coverage.out and print the summary
//	mage lint           Run golangci-lint
//	mage clean          Remove build artifacts
//	mage install        Install docmodel to GOPATH/bin
//	mage stats          Print Go line counts per package
package main

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type lineCount struct {
	prod, test int
}

// Stats prints Go lines of code per package directory, split into
// production and test lines.
func Stats() error {
	counts := map[string]*lineCount{}
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			hidden := path != "." && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, "."))
			if hidden || path == binaryDir || path == "magefiles" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		n, err := countLines(path)
		if err != nil {
			return nil
		}
		dir := filepath.Dir(path)
		c, ok := counts[dir]
		if !ok {
			c = &lineCount{}
			counts[dir] = c
		}
		if strings.HasSuffix(path, "_test.go") {
			c.test += n
		} else {
			c.prod += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(counts))
	for dir := range counts {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var total lineCount
	for _, dir := range dirs {
		c := counts[dir]
		fmt.Printf("%-24s %6d prod %6d test\n", dir, c.prod, c.test)
		total.prod += c.prod
		total.test += c.test
	}
	fmt.Printf("%-24s %6d prod %6d test\n", "total", total.prod, total.test)
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
