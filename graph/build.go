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
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
)

// Symbol returns a new symbol. Symbols are never shared: two calls
// return two different symbols even if they have the same name.
func Symbol(name string, sp *sparsity.Pattern) *Node {
	return &Node{
		id:   newID(),
		op:   OpSymbol,
		sp:   sp,
		name: name,
	}
}

// Sym returns a new dense symbol of dimensions rows x cols.
func Sym(name string, rows, cols int) *Node {
	return Symbol(name, sparsity.Dense(rows, cols))
}

// Const returns a constant node.
func Const(m *matrix.Matrix) *Node {
	k := newKey(OpConst).str(m.Sparsity().Key())
	for _, v := range m.NZ() {
		k.float(v)
	}
	return nodes.intern(k.String(), func() *Node {
		return &Node{op: OpConst, sp: m.Sparsity(), value: m}
	})
}

// Scalar returns a dense 1x1 constant.
func Scalar(v float64) *Node {
	return Const(matrix.Scalar(v))
}

// Zeros returns a constant with all nonzeros of the pattern set to 0.
func Zeros(sp *sparsity.Pattern) *Node {
	return Const(matrix.Zeros(sp))
}

func (n *Node) key() string {
	k := newKey(n.op).children(n.children).str(n.sp.Key())
	switch n.op {
	case OpGetNonzeros:
		k.ints(n.idx)
	case OpAssemble:
		k.refs(n.terms)
	}
	return k.String()
}

func allConst(children []*Node) bool {
	for _, c := range children {
		if !c.IsConst() {
			return false
		}
	}
	return true
}

// register folds a node where all children are constants into a constant
// or returns the registered node structurally equal to proto.
func register(proto *Node) *Node {
	if len(proto.children) > 0 && allConst(proto.children) {
		if folded, ok := fold(proto); ok {
			return Const(folded)
		}
	}
	return nodes.intern(proto.key(), func() *Node { return proto })
}

func fold(proto *Node) (*matrix.Matrix, bool) {
	args := make([]*matrix.Matrix, len(proto.children))
	for i, c := range proto.children {
		args[i] = c.value
	}
	val, err := rules[proto.op].eval(proto, args)
	if err != nil {
		return nil, false
	}
	if !val.IsFinite() {
		// Leave it to the evaluation to report the error.
		return nil, false
	}
	return val, true
}

// Unary returns a unary elementwise operation applied to x.
func Unary(op Op, x *Node) (*Node, error) {
	if !op.IsUnary() {
		return nil, errs.Graphf("%s is not a unary operation", op)
	}
	return unary(op, x), nil
}

func unary(op Op, x *Node) *Node {
	if op == OpNeg && x.op == OpNeg {
		return x.children[0]
	}
	sp := x.sp
	if !preservesZero(op) {
		sp = sparsity.Dense(x.Rows(), x.Cols())
	}
	return register(&Node{op: op, sp: sp, children: []*Node{x}})
}

// Neg returns -x.
func Neg(x *Node) *Node { return unary(OpNeg, x) }

// Sq returns x*x.
func Sq(x *Node) *Node { return unary(OpSq, x) }

// Sqrt returns the square root of x.
func Sqrt(x *Node) *Node { return unary(OpSqrt, x) }

// Sin returns the sine of x.
func Sin(x *Node) *Node { return unary(OpSin, x) }

// Cos returns the cosine of x.
func Cos(x *Node) *Node { return unary(OpCos, x) }

// Tan returns the tangent of x.
func Tan(x *Node) *Node { return unary(OpTan, x) }

// Exp returns the exponential of x.
func Exp(x *Node) *Node { return unary(OpExp, x) }

// Log returns the natural logarithm of x.
func Log(x *Node) *Node { return unary(OpLog, x) }

// Tanh returns the hyperbolic tangent of x.
func Tanh(x *Node) *Node { return unary(OpTanh, x) }

// Abs returns the absolute value of x.
func Abs(x *Node) *Node { return unary(OpAbs, x) }

// Floor returns the largest integers not greater than x.
func Floor(x *Node) *Node { return unary(OpFloor, x) }

// Ceil returns the smallest integers not less than x.
func Ceil(x *Node) *Node { return unary(OpCeil, x) }

// Sign returns the sign of x.
func Sign(x *Node) *Node { return unary(OpSign, x) }

func broadcastPattern(p *sparsity.Pattern, rows, cols int) *sparsity.Pattern {
	if p.Rows() == rows && p.Cols() == cols {
		return p
	}
	if p.IsEmpty() {
		return sparsity.Empty(rows, cols)
	}
	return sparsity.Dense(rows, cols)
}

func binaryShape(op Op, x, y *Node) (rows, cols int, err error) {
	switch {
	case x.Rows() == y.Rows() && x.Cols() == y.Cols():
		return x.Rows(), x.Cols(), nil
	case x.sp.IsScalar():
		return y.Rows(), y.Cols(), nil
	case y.sp.IsScalar():
		return x.Rows(), x.Cols(), nil
	}
	return 0, 0, errs.Dimensionf("%s: cannot combine %dx%d and %dx%d", op, x.Rows(), x.Cols(), y.Rows(), y.Cols())
}

func binaryPattern(op Op, x, y *Node) (*sparsity.Pattern, error) {
	rows, cols, err := binaryShape(op, x, y)
	if err != nil {
		return nil, err
	}
	bx := broadcastPattern(x.sp, rows, cols)
	by := broadcastPattern(y.sp, rows, cols)
	switch op {
	case OpAdd, OpSub, OpFmin, OpFmax:
		return sparsity.Union(bx, by)
	case OpMul:
		return sparsity.Intersect(bx, by)
	case OpDiv:
		if by.IsDense() {
			return bx, nil
		}
	}
	return sparsity.Dense(rows, cols), nil
}

// Binary returns a binary elementwise operation applied to x and y.
// A 1x1 operand is broadcast to the dimensions of the other operand.
func Binary(op Op, x, y *Node) (*Node, error) {
	if !op.IsBinary() {
		return nil, errs.Graphf("%s is not a binary operation", op)
	}
	sp, err := binaryPattern(op, x, y)
	if err != nil {
		return nil, err
	}
	if n := simplifyBinary(op, x, y, sp); n != nil {
		return n, nil
	}
	return register(&Node{op: op, sp: sp, children: []*Node{x, y}}), nil
}

// simplifyBinary returns a simpler node computing op(x, y) with the
// pattern sp or nil if there is none.
func simplifyBinary(op Op, x, y *Node, sp *sparsity.Pattern) *Node {
	same := func(n *Node) bool { return n.sp.Equal(sp) }
	switch op {
	case OpAdd:
		if x.IsZero() && same(y) {
			return y
		}
		if y.IsZero() && same(x) {
			return x
		}
	case OpSub:
		if y.IsZero() && same(x) {
			return x
		}
		if x.IsZero() && same(y) {
			return Neg(y)
		}
	case OpMul:
		if x.IsZero() || y.IsZero() {
			return Zeros(sp)
		}
		if x.IsConstValue(1) && same(y) {
			return y
		}
		if y.IsConstValue(1) && same(x) {
			return x
		}
	case OpDiv:
		if y.IsConstValue(1) && same(x) {
			return x
		}
	case OpPow:
		if !y.sp.IsScalar() || !same(x) {
			break
		}
		switch {
		case y.IsConstValue(1):
			return x
		case y.IsConstValue(2):
			return Sq(x)
		case y.IsConstValue(0.5):
			return Sqrt(x)
		}
	}
	return nil
}

// Add returns x+y.
func Add(x, y *Node) (*Node, error) { return Binary(OpAdd, x, y) }

// Sub returns x-y.
func Sub(x, y *Node) (*Node, error) { return Binary(OpSub, x, y) }

// Mul returns the elementwise product of x and y.
func Mul(x, y *Node) (*Node, error) { return Binary(OpMul, x, y) }

// Div returns the elementwise division of x by y.
func Div(x, y *Node) (*Node, error) { return Binary(OpDiv, x, y) }

// Pow returns x to the power y, elementwise.
func Pow(x, y *Node) (*Node, error) { return Binary(OpPow, x, y) }

// Fmin returns the elementwise minimum of x and y.
func Fmin(x, y *Node) (*Node, error) { return Binary(OpFmin, x, y) }

// Fmax returns the elementwise maximum of x and y.
func Fmax(x, y *Node) (*Node, error) { return Binary(OpFmax, x, y) }

// MTimes returns the matrix product of x and y.
func MTimes(x, y *Node) (*Node, error) {
	sp, err := sparsity.MatMul(x.sp, y.sp)
	if err != nil {
		return nil, err
	}
	if x.IsZero() || y.IsZero() {
		return Zeros(sp), nil
	}
	return register(&Node{op: OpMTimes, sp: sp, children: []*Node{x, y}}), nil
}

// Transpose returns the transpose of x.
func Transpose(x *Node) *Node {
	if x.op == OpTranspose {
		return x.children[0]
	}
	return register(&Node{op: OpTranspose, sp: sparsity.Transpose(x.sp), children: []*Node{x}})
}

// Sum returns the sum of all the elements of x.
func Sum(x *Node) *Node {
	sp := sparsity.Scalar()
	if x.sp.IsEmpty() {
		sp = sparsity.Empty(1, 1)
	}
	return register(&Node{op: OpSum, sp: sp, children: []*Node{x}})
}

func concat(op Op, xs []*Node, pattern func(...*sparsity.Pattern) (*sparsity.Pattern, error)) (*Node, error) {
	if len(xs) == 1 {
		return xs[0], nil
	}
	sps := make([]*sparsity.Pattern, len(xs))
	for i, x := range xs {
		sps[i] = x.sp
	}
	sp, err := pattern(sps...)
	if err != nil {
		return nil, err
	}
	return register(&Node{op: op, sp: sp, children: append([]*Node{}, xs...)}), nil
}

// Horzcat concatenates expressions horizontally.
func Horzcat(xs ...*Node) (*Node, error) {
	return concat(OpHorzcat, xs, sparsity.Horzcat)
}

// Vertcat concatenates expressions vertically.
func Vertcat(xs ...*Node) (*Node, error) {
	return concat(OpVertcat, xs, sparsity.Vertcat)
}

// GetNonzeros returns an expression with pattern sp where the nonzero k
// is the nonzero idx[k] of x, or 0 if idx[k] is -1.
func GetNonzeros(x *Node, sp *sparsity.Pattern, idx []int) (*Node, error) {
	if len(idx) != sp.NNZ() {
		return nil, errs.Dimensionf("%d indices for pattern %s with %d nonzeros", len(idx), sp, sp.NNZ())
	}
	identity := sp.Equal(x.sp)
	for k, i := range idx {
		if i == -1 {
			identity = false
			continue
		}
		if err := errs.CheckIndex("nonzero", i, x.sp.NNZ()); err != nil {
			return nil, err
		}
		identity = identity && i == k
	}
	if identity {
		return x, nil
	}
	return register(&Node{
		op:       OpGetNonzeros,
		sp:       sp,
		children: []*Node{x},
		idx:      append([]int{}, idx...),
	}), nil
}

// Assemble returns an expression with pattern sp where the nonzero k is
// the sum of the nonzeros of the arguments referenced by terms[k].
func Assemble(sp *sparsity.Pattern, args []*Node, terms [][]matrix.Ref) (*Node, error) {
	if len(terms) != sp.NNZ() {
		return nil, errs.Dimensionf("%d terms for pattern %s with %d nonzeros", len(terms), sp, sp.NNZ())
	}
	empty := true
	for _, refs := range terms {
		for _, ref := range refs {
			if err := errs.CheckIndex("argument", ref.Arg, len(args)); err != nil {
				return nil, err
			}
			if err := errs.CheckIndex("nonzero", ref.NZ, args[ref.Arg].sp.NNZ()); err != nil {
				return nil, err
			}
			empty = false
		}
	}
	if empty {
		return Zeros(sp), nil
	}
	if len(args) == 1 && args[0].sp.Equal(sp) && isIdentity(terms) {
		return args[0], nil
	}
	cp := make([][]matrix.Ref, len(terms))
	for k, refs := range terms {
		cp[k] = append([]matrix.Ref{}, refs...)
	}
	return register(&Node{
		op:       OpAssemble,
		sp:       sp,
		children: append([]*Node{}, args...),
		terms:    cp,
	}), nil
}

func isIdentity(terms [][]matrix.Ref) bool {
	for k, refs := range terms {
		if len(refs) != 1 || refs[0].NZ != k {
			return false
		}
	}
	return true
}
