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

package graph

import (
	"encoding/binary"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/gx-org/symgraph/matrix"
)

type registry struct {
	mu    sync.Mutex
	nodes map[string]weak.Pointer[Node]
}

var (
	nextID atomic.Uint64
	nodes  = &registry{nodes: make(map[string]weak.Pointer[Node])}
)

func newID() uint64 {
	return nextID.Add(1)
}

// intern returns the live node registered under key or registers the
// node returned by build.
func (r *registry) intern(key string, build func() *Node) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wp, ok := r.nodes[key]; ok {
		if n := wp.Value(); n != nil {
			return n
		}
	}
	n := build()
	n.id = newID()
	wp := weak.Make(n)
	r.nodes[key] = wp
	runtime.AddCleanup(n, r.drop, cleanupKey{key: key, wp: wp})
	return n
}

type cleanupKey struct {
	key string
	wp  weak.Pointer[Node]
}

func (r *registry) drop(k cleanupKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.nodes[k.key]; ok && cur == k.wp {
		delete(r.nodes, k.key)
	}
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// NumInterned returns the number of entries in the process-wide node registry.
func NumInterned() int {
	return nodes.size()
}

// keyBuilder builds the structural key of a node.
type keyBuilder struct {
	buf []byte
}

func newKey(op Op) *keyBuilder {
	k := &keyBuilder{}
	return k.int(int(op))
}

func (k *keyBuilder) int(v int) *keyBuilder {
	k.buf = binary.AppendVarint(k.buf, int64(v))
	return k
}

func (k *keyBuilder) uint(v uint64) *keyBuilder {
	k.buf = binary.AppendUvarint(k.buf, v)
	return k
}

func (k *keyBuilder) float(v float64) *keyBuilder {
	k.buf = binary.LittleEndian.AppendUint64(k.buf, math.Float64bits(v))
	return k
}

func (k *keyBuilder) str(s string) *keyBuilder {
	k.int(len(s))
	k.buf = append(k.buf, s...)
	return k
}

func (k *keyBuilder) children(cs []*Node) *keyBuilder {
	k.int(len(cs))
	for _, c := range cs {
		k.uint(c.id)
	}
	return k
}

func (k *keyBuilder) ints(vs []int) *keyBuilder {
	k.int(len(vs))
	for _, v := range vs {
		k.int(v)
	}
	return k
}

func (k *keyBuilder) refs(terms [][]matrix.Ref) *keyBuilder {
	k.int(len(terms))
	for _, refs := range terms {
		k.int(len(refs))
		for _, ref := range refs {
			k.int(ref.Arg).int(ref.NZ)
		}
	}
	return k
}

func (k *keyBuilder) String() string {
	return string(k.buf)
}
