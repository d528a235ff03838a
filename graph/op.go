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
	"fmt"
	"math"
)

// Op is the kind of operation computed by a node.
type Op int

// Operations of the graph.
const (
	OpSymbol Op = iota
	OpConst

	// Unary elementwise operations.
	OpNeg
	OpSq
	OpSqrt
	OpSin
	OpCos
	OpTan
	OpExp
	OpLog
	OpTanh
	OpAbs
	OpFloor
	OpCeil
	OpSign

	// Binary elementwise operations.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPow
	OpFmin
	OpFmax

	// Matrix operations.
	OpMTimes
	OpTranspose
	OpSum

	OpHorzcat
	OpVertcat

	// OpGetNonzeros selects nonzeros of its argument.
	OpGetNonzeros
	// OpAssemble computes every output nonzero as a sum of argument nonzeros.
	OpAssemble

	numOps
)

var opNames = [numOps]string{
	OpSymbol:      "symbol",
	OpConst:       "const",
	OpNeg:         "neg",
	OpSq:          "sq",
	OpSqrt:        "sqrt",
	OpSin:         "sin",
	OpCos:         "cos",
	OpTan:         "tan",
	OpExp:         "exp",
	OpLog:         "log",
	OpTanh:        "tanh",
	OpAbs:         "fabs",
	OpFloor:       "floor",
	OpCeil:        "ceil",
	OpSign:        "sign",
	OpAdd:         "add",
	OpSub:         "sub",
	OpMul:         "mul",
	OpDiv:         "div",
	OpPow:         "pow",
	OpFmin:        "fmin",
	OpFmax:        "fmax",
	OpMTimes:      "mtimes",
	OpTranspose:   "transpose",
	OpSum:         "sum",
	OpHorzcat:     "horzcat",
	OpVertcat:     "vertcat",
	OpGetNonzeros: "getnonzeros",
	OpAssemble:    "assemble",
}

// String returns the name of the operation.
func (op Op) String() string {
	if op < 0 || op >= numOps {
		return fmt.Sprintf("Op(%d)", int(op))
	}
	return opNames[op]
}

// ParseOp returns the operation given its name.
func ParseOp(name string) (Op, bool) {
	for op, n := range opNames {
		if n == name {
			return Op(op), true
		}
	}
	return 0, false
}

// IsUnary returns true if the operation is a unary elementwise operation.
func (op Op) IsUnary() bool { return op >= OpNeg && op <= OpSign }

// IsBinary returns true if the operation is a binary elementwise operation.
func (op Op) IsBinary() bool { return op >= OpAdd && op <= OpFmax }

// IsLeaf returns true for symbols and constants.
func (op Op) IsLeaf() bool { return op == OpSymbol || op == OpConst }

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return x
}

var unaryFuncs = map[Op]func(float64) float64{
	OpNeg:   func(x float64) float64 { return -x },
	OpSq:    func(x float64) float64 { return x * x },
	OpSqrt:  math.Sqrt,
	OpSin:   math.Sin,
	OpCos:   math.Cos,
	OpTan:   math.Tan,
	OpExp:   math.Exp,
	OpLog:   math.Log,
	OpTanh:  math.Tanh,
	OpAbs:   math.Abs,
	OpFloor: math.Floor,
	OpCeil:  math.Ceil,
	OpSign:  sign,
}

var binaryFuncs = map[Op]func(float64, float64) float64{
	OpAdd:  func(x, y float64) float64 { return x + y },
	OpSub:  func(x, y float64) float64 { return x - y },
	OpMul:  func(x, y float64) float64 { return x * y },
	OpDiv:  func(x, y float64) float64 { return x / y },
	OpPow:  math.Pow,
	OpFmin: math.Min,
	OpFmax: math.Max,
}

// UnaryFunc returns the scalar function computed by a unary operation.
func UnaryFunc(op Op) (func(float64) float64, bool) {
	f, ok := unaryFuncs[op]
	return f, ok
}

// BinaryFunc returns the scalar function computed by a binary operation.
func BinaryFunc(op Op) (func(float64, float64) float64, bool) {
	f, ok := binaryFuncs[op]
	return f, ok
}

// preservesZero returns true if f(0) == 0 for a unary operation,
// in which case the result keeps the sparsity of its argument.
func preservesZero(op Op) bool {
	switch op {
	case OpCos, OpExp, OpLog:
		return false
	}
	return true
}
