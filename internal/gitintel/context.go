package gitintel

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/mod/modfile"
)

const (
	readmePrefixBytes = 2000
	maxListedDeps     = 15
)

var readmeNames = []string{"README.md", "README.rst", "README.txt", "README"}

// RepoContext builds a short plain-text description of the project from its
// README and package manifests. It returns "" when nothing is found.
func (e *Extractor) RepoContext() string {
	var parts []string

	if block := e.readmeBlock(); block != "" {
		parts = append(parts, block)
	}
	parts = append(parts, e.packageJSONContext()...)

	if fileExists(filepath.Join(e.dir, "pyproject.toml")) {
		parts = append(parts, "Python project (pyproject.toml found)")
	}
	if module := e.goModulePath(); module != "" {
		parts = append(parts, "Go module: "+module)
	}

	return strings.Join(parts, "\n")
}

// readmeBlock returns the first paragraph of the first README found. Only
// the first candidate that exists is considered.
func (e *Extractor) readmeBlock() string {
	for _, name := range readmeNames {
		p := filepath.Join(e.dir, name)
		if !fileExists(p) {
			continue
		}
		prefix, err := readPrefix(p, readmePrefixBytes)
		if err != nil {
			e.logger.Debug("Unreadable README", zap.String("path", p), zap.Error(err))
			return ""
		}
		text := strings.TrimSpace(prefix)
		if text == "" {
			return ""
		}
		first, _, _ := strings.Cut(text, "\n\n")
		return first
	}
	return ""
}

// packageJSONContext reads the description and dependency names from
// package.json, preserving the manifest's key order.
func (e *Extractor) packageJSONContext() []string {
	p := filepath.Join(e.dir, "package.json")
	data, err := os.ReadFile(p)
	if err != nil {
		return nil
	}

	var description string
	var deps []string

	iter := jsoniter.ParseBytes(jsoniter.ConfigCompatibleWithStandardLibrary, data)
	for field := iter.ReadObject(); field != "" && iter.Error == nil; field = iter.ReadObject() {
		switch {
		case field == "description" && iter.WhatIsNext() == jsoniter.StringValue:
			description = iter.ReadString()
		case field == "dependencies" && iter.WhatIsNext() == jsoniter.ObjectValue:
			for dep := iter.ReadObject(); dep != "" && iter.Error == nil; dep = iter.ReadObject() {
				if len(deps) < maxListedDeps {
					deps = append(deps, dep)
				}
				iter.Skip()
			}
		default:
			iter.Skip()
		}
	}
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		e.logger.Debug("Malformed package.json", zap.String("path", p), zap.Error(iter.Error))
		return nil
	}

	var parts []string
	if description != "" {
		parts = append(parts, "Description: "+description)
	}
	if len(deps) > 0 {
		parts = append(parts, "Dependencies: "+strings.Join(deps, ", "))
	}
	return parts
}

func (e *Extractor) goModulePath() string {
	data, err := os.ReadFile(filepath.Join(e.dir, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

func readPrefix(path string, n int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, n))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(buf), "\uFFFD"), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
