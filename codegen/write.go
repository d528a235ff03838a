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

package codegen

import (
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/internal/gomod"
)

// WriteGoPackage generates the Go source of programs into a directory of a Go module.
// The package name is derived from the import path of the directory.
// It returns the import path of the generated package.
func WriteGoPackage(fs afero.Fs, dir string, progs ...*Program) (string, error) {
	mod, err := gomod.Find(fs, dir)
	if err != nil {
		return "", err
	}
	importPath, err := mod.ImportPath(dir)
	if err != nil {
		return "", err
	}
	pkg := gomod.PackageName(importPath)
	src, err := GoSource(pkg, progs...)
	if err != nil {
		return "", err
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", errs.IOf("cannot create directory %s: %v", dir, err)
	}
	target := filepath.Join(dir, pkg+".go")
	if err := afero.WriteFile(fs, target, src, 0o644); err != nil {
		return "", errs.IOf("cannot write %s: %v", target, err)
	}
	return importPath, nil
}
