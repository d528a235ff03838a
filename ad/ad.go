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

// Package ad computes derivatives of expression graphs.
//
// Derivatives are expression graphs themselves: forward mode propagates
// directional derivatives from the inputs to the outputs and reverse
// mode propagates adjoints from the outputs back to the inputs. Both
// sweeps use the rules attached to every operation of the graph.
package ad

import (
	"github.com/pkg/errors"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/graph"
)

func checkSeeds(what string, nodes, seeds []*graph.Node) error {
	if len(seeds) != len(nodes) {
		return errs.Arityf("%d %s seeds for %d expressions", len(seeds), what, len(nodes))
	}
	return nil
}

func projectSeed(n, seed *graph.Node) (*graph.Node, error) {
	if seed == nil {
		return nil, nil
	}
	s, err := graph.Broadcast(seed, n.Rows(), n.Cols())
	if err != nil {
		return nil, err
	}
	if s, err = graph.Project(s, n.Sparsity()); err != nil {
		return nil, err
	}
	if s.IsZero() {
		return nil, nil
	}
	return s, nil
}

func orZeros(d, n *graph.Node) *graph.Node {
	if d == nil {
		return graph.Zeros(n.Sparsity())
	}
	return d
}

// Forward returns the directional derivatives of the outputs given
// seeds on the inputs. A nil seed is zero.
func Forward(outputs, inputs, seeds []*graph.Node) ([]*graph.Node, error) {
	if err := checkSeeds("forward", inputs, seeds); err != nil {
		return nil, err
	}
	deriv := make(map[*graph.Node]*graph.Node)
	for i, in := range inputs {
		s, err := projectSeed(in, seeds[i])
		if err != nil {
			return nil, errors.WithMessagef(err, "forward seed %d", i)
		}
		if s != nil {
			deriv[in] = s
		}
	}
	for _, n := range graph.Sort(outputs) {
		if n.NumChildren() == 0 {
			continue
		}
		seeds := make([]*graph.Node, n.NumChildren())
		for c, child := range n.Children() {
			seeds[c] = deriv[child]
		}
		d, err := n.Forward(seeds)
		if err != nil {
			return nil, err
		}
		if d != nil {
			deriv[n] = d
		}
	}
	res := make([]*graph.Node, len(outputs))
	for i, out := range outputs {
		res[i] = orZeros(deriv[out], out)
	}
	return res, nil
}

// Reverse returns the adjoints of the inputs given adjoint seeds on the
// outputs. A nil seed is zero. The contributions of all the parents of a
// node are summed before propagating to its children.
func Reverse(outputs, adjoints, inputs []*graph.Node) ([]*graph.Node, error) {
	if err := checkSeeds("reverse", outputs, adjoints); err != nil {
		return nil, err
	}
	adj := make(map[*graph.Node]*graph.Node)
	accumulate := func(n, a *graph.Node) error {
		if a == nil {
			return nil
		}
		prev, ok := adj[n]
		if !ok {
			adj[n] = a
			return nil
		}
		sum, err := graph.Add(prev, a)
		if err != nil {
			return err
		}
		adj[n] = sum
		return nil
	}
	for i, out := range outputs {
		s, err := projectSeed(out, adjoints[i])
		if err != nil {
			return nil, errors.WithMessagef(err, "reverse seed %d", i)
		}
		if err := accumulate(out, s); err != nil {
			return nil, err
		}
	}
	order := graph.Sort(outputs)
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		a, ok := adj[n]
		if !ok || n.NumChildren() == 0 {
			continue
		}
		contribs, err := n.Reverse(a)
		if err != nil {
			return nil, err
		}
		for c, child := range n.Children() {
			if err := accumulate(child, contribs[c]); err != nil {
				return nil, err
			}
		}
	}
	res := make([]*graph.Node, len(inputs))
	for i, in := range inputs {
		res[i] = orZeros(adj[in], in)
	}
	return res, nil
}
