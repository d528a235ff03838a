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

// Package ordered provides maps remembering the insertion order of their keys.
package ordered

import (
	"github.com/pkg/errors"
	"github.com/gx-org/symgraph/base/errs"
)

// Map is a map iterating over its keys in insertion order.
type Map[K comparable, V any] struct {
	keys []K
	m    map[K]V
}

// NewMap returns a new empty map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V)}
}

// Index returns a map from every key to its position in keys.
// Keys must be distinct.
func Index[K comparable](keys []K) (*Map[K, int], error) {
	m := NewMap[K, int]()
	for i, k := range keys {
		if prev, ok := m.Load(k); ok {
			return nil, errors.Wrapf(errs.ErrInvalidOption, "%v at position %d is already at position %d", k, i, prev)
		}
		m.Store(k, i)
	}
	return m, nil
}

// Store a key,value pair.
func (m *Map[K, V]) Store(k K, v V) {
	_, in := m.m[k]
	if !in {
		m.keys = append(m.keys, k)
	}
	m.m[k] = v
}

// Load returns a value given a key.
func (m *Map[K, V]) Load(k K) (V, bool) {
	v, ok := m.m[k]
	return v, ok
}

// Iter returns an iterator to range over the elements of the map.
func (m *Map[K, V]) Iter() func(func(K, V) bool) {
	return func(yield func(K, V) bool) {
		for _, k := range m.keys {
			if !yield(k, m.m[k]) {
				break
			}
		}
	}
}

// Keys returns the keys of the map in insertion order.
func (m *Map[K, V]) Keys() []K {
	return append([]K{}, m.keys...)
}

// Size returns the number of elements in the map.
func (m *Map[K, V]) Size() int {
	return len(m.keys)
}
