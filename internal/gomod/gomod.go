// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gomod locates the Go module enclosing a directory.
package gomod

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/gx-org/symgraph/base/errs"
	"github.com/spf13/afero"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
)

func findModuleRoot(fsys afero.Fs, dir string) string {
	dir = filepath.Clean(dir)
	for {
		if fi, err := fsys.Stat(filepath.Join(dir, "go.mod")); err == nil && !fi.IsDir() {
			return dir
		}
		d := filepath.Dir(dir)
		if d == dir {
			break
		}
		dir = d
	}
	return ""
}

// Module is a Go module.
type Module struct {
	root string
	mod  *modfile.File
}

// Find returns the module enclosing a directory.
func Find(fsys afero.Fs, dir string) (*Module, error) {
	root := findModuleRoot(fsys, dir)
	if root == "" {
		return nil, errs.IOf("directory %q is not in a Go module: cannot find go.mod", dir)
	}
	modPath := filepath.Join(root, "go.mod")
	data, err := afero.ReadFile(fsys, modPath)
	if err != nil {
		return nil, errs.IOf("cannot read %s: %v", modPath, err)
	}
	mod, err := modfile.Parse(modPath, data, nil)
	if err != nil {
		return nil, errs.IOf("cannot parse %s: %v", modPath, err)
	}
	if mod.Module == nil {
		return nil, errs.IOf("%s does not declare a module path", modPath)
	}
	return &Module{root: root, mod: mod}, nil
}

// Name of the module as specified in the go.mod file.
func (m *Module) Name() string {
	return m.mod.Module.Mod.Path
}

// Root returns the directory containing the go.mod file.
func (m *Module) Root() string {
	return m.root
}

// GoVersion returns the Go version declared by the module.
func (m *Module) GoVersion() string {
	if m.mod.Go == nil {
		return ""
	}
	return m.mod.Go.Version
}

// ImportPath returns the import path of the package in a directory of the module.
func (m *Module) ImportPath(dir string) (string, error) {
	rel, err := filepath.Rel(m.root, filepath.Clean(dir))
	if err != nil {
		return "", errs.IOf("cannot compute the path of %q in module %s: %v", dir, m.Name(), err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errs.IOf("directory %q does not belong to module %s rooted at %s", dir, m.Name(), m.root)
	}
	importPath := m.Name()
	if rel != "." {
		importPath = path.Join(importPath, rel)
	}
	if err := module.CheckImportPath(importPath); err != nil {
		return "", errs.IOf("invalid import path for %q: %v", dir, err)
	}
	return importPath, nil
}

// PackageName returns the default package name of an import path.
func PackageName(importPath string) string {
	name := path.Base(importPath)
	if prefix, _, ok := module.SplitPathVersion(importPath); ok && prefix != importPath {
		name = path.Base(prefix)
	}
	return strings.ReplaceAll(name, "-", "_")
}
