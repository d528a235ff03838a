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

// Package graph implements hash-consed expression graphs.
//
// Nodes are immutable. Constructing an operation returns the existing
// node if an identical one (same operation, same children, same
// parameters) is still alive, so that structurally equal subgraphs
// share the same nodes. Every node carries the sparsity pattern of its
// value, derived from the patterns of its children only.
package graph

import (
	"fmt"
	"strings"

	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
)

// Node of an expression graph.
type Node struct {
	id       uint64
	op       Op
	sp       *sparsity.Pattern
	children []*Node

	// Parameters, depending on op.
	name  string
	value *matrix.Matrix
	idx   []int
	terms [][]matrix.Ref
}

// ID returns the identifier of the node, unique in the process.
func (n *Node) ID() uint64 { return n.id }

// Op returns the operation of the node.
func (n *Node) Op() Op { return n.op }

// Sparsity returns the pattern of the value of the node.
func (n *Node) Sparsity() *sparsity.Pattern { return n.sp }

// Rows returns the number of rows of the value of the node.
func (n *Node) Rows() int { return n.sp.Rows() }

// Cols returns the number of columns of the value of the node.
func (n *Node) Cols() int { return n.sp.Cols() }

// NumChildren returns the number of children.
func (n *Node) NumChildren() int { return len(n.children) }

// Child returns the i-th child.
func (n *Node) Child(i int) *Node { return n.children[i] }

// Children returns the children of the node. The slice must not be modified.
func (n *Node) Children() []*Node { return n.children }

// Name returns the name of a symbol.
func (n *Node) Name() string { return n.name }

// Value returns the value of a constant.
func (n *Node) Value() *matrix.Matrix { return n.value }

// Indices returns the nonzero indices selected by a GetNonzeros node.
// -1 selects a zero.
func (n *Node) Indices() []int { return n.idx }

// Terms returns the terms of an Assemble node.
func (n *Node) Terms() [][]matrix.Ref { return n.terms }

// IsSymbol returns true if the node is a symbol.
func (n *Node) IsSymbol() bool { return n.op == OpSymbol }

// IsConst returns true if the node is a constant.
func (n *Node) IsConst() bool { return n.op == OpConst }

// IsZero returns true if the node is structurally zero or a constant
// where all nonzeros are 0.
func (n *Node) IsZero() bool {
	if n.sp.IsEmpty() {
		return true
	}
	if n.op != OpConst {
		return false
	}
	for _, v := range n.value.NZ() {
		if v != 0 {
			return false
		}
	}
	return true
}

// IsConstValue returns true if the node is a constant where all
// elements, structural zeros included, are equal to v.
func (n *Node) IsConstValue(v float64) bool {
	if n.op != OpConst {
		return false
	}
	if !n.sp.IsDense() {
		return v == 0 && n.IsZero()
	}
	for _, x := range n.value.NZ() {
		if x != v {
			return false
		}
	}
	return true
}

// String returns a textual representation of the expression.
func (n *Node) String() string {
	switch n.op {
	case OpSymbol:
		return n.name
	case OpConst:
		return n.value.String()
	}
	args := make([]string, len(n.children))
	for i, c := range n.children {
		args[i] = c.String()
	}
	switch n.op {
	case OpAdd:
		return "(" + args[0] + "+" + args[1] + ")"
	case OpSub:
		return "(" + args[0] + "-" + args[1] + ")"
	case OpMul:
		return "(" + args[0] + "*" + args[1] + ")"
	case OpDiv:
		return "(" + args[0] + "/" + args[1] + ")"
	case OpNeg:
		return "(-" + args[0] + ")"
	case OpTranspose:
		return args[0] + "'"
	case OpGetNonzeros:
		return fmt.Sprintf("%s%v", args[0], n.idx)
	case OpAssemble:
		return fmt.Sprintf("assemble%s(%s)", n.sp, strings.Join(args, ", "))
	}
	return n.op.String() + "(" + strings.Join(args, ", ") + ")"
}
