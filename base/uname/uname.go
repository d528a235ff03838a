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

// Package uname provides unique Go identifiers.
package uname

import (
	"fmt"
	"go/token"
	"strings"
	"unicode"

	"github.com/iancoleman/strcase"
)

// Unique generates unique names.
type Unique struct {
	next map[string]int
	used map[string]bool
}

// New name generator.
func New() *Unique {
	return &Unique{
		next: make(map[string]int),
		used: make(map[string]bool),
	}
}

// Register marks a name as taken.
func (n *Unique) Register(name string) {
	n.used[name] = true
}

// Name returns a unique name given a desired base name.
// If the base name is available, it is returned directly. Else, a unique suffix is appended.
func (n *Unique) Name(root string) string {
	name := root
	for n.used[name] {
		index := n.next[root] + 1
		n.next[root] = index
		name = fmt.Sprintf("%s%d", root, index)
	}
	n.used[name] = true
	return name
}

// Ident returns a unique, unexported Go identifier derived from a name.
func (n *Unique) Ident(name string) string {
	return n.Name(Ident(name, false))
}

// Exported returns a unique, exported Go identifier derived from a name.
func (n *Unique) Exported(name string) string {
	return n.Name(Ident(name, true))
}

// Ident converts a name into a valid Go identifier.
func Ident(name string, exported bool) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return '_'
	}, name)
	if exported {
		clean = strcase.ToCamel(clean)
	} else {
		clean = strcase.ToLowerCamel(clean)
	}
	if clean == "" {
		clean = "x"
	}
	if unicode.IsDigit(rune(clean[0])) {
		prefix := "x"
		if exported {
			prefix = "X"
		}
		clean = prefix + clean
	}
	if token.IsKeyword(clean) {
		clean += "_"
	}
	return clean
}
