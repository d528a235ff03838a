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
	"fmt"
	"go/format"
	"math"
	"strconv"
	"strings"
	"text/template"

	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/base/tmpl"
	"github.com/gx-org/symgraph/base/uname"
	"github.com/gx-org/symgraph/graph"
)

var goExprs = map[graph.Op]string{
	graph.OpNeg:   "-%[1]s",
	graph.OpSq:    "%[1]s * %[1]s",
	graph.OpSqrt:  "math.Sqrt(%[1]s)",
	graph.OpSin:   "math.Sin(%[1]s)",
	graph.OpCos:   "math.Cos(%[1]s)",
	graph.OpTan:   "math.Tan(%[1]s)",
	graph.OpExp:   "math.Exp(%[1]s)",
	graph.OpLog:   "math.Log(%[1]s)",
	graph.OpTanh:  "math.Tanh(%[1]s)",
	graph.OpAbs:   "math.Abs(%[1]s)",
	graph.OpFloor: "math.Floor(%[1]s)",
	graph.OpCeil:  "math.Ceil(%[1]s)",
	graph.OpSign:  "sign(%[1]s)",
	graph.OpAdd:   "%[1]s + %[2]s",
	graph.OpSub:   "%[1]s - %[2]s",
	graph.OpMul:   "%[1]s * %[2]s",
	graph.OpDiv:   "%[1]s / %[2]s",
	graph.OpPow:   "math.Pow(%[1]s, %[2]s)",
	graph.OpFmin:  "math.Min(%[1]s, %[2]s)",
	graph.OpFmax:  "math.Max(%[1]s, %[2]s)",
}

const bufferName = "w"

type (
	goFile struct {
		Package  string
		Funcs    []*goFunc
		UseMath  bool
		UseSign  bool
		Sources  string
		funcName *uname.Unique
	}

	goFunc struct {
		file     *goFile
		prog     *Program
		FuncName string
		Params   []string
		NumSlots int
		names    *uname.Unique
	}
)

var goFileTmpl = template.Must(template.New("goFileTMPL").Parse(`// Code generated by symgraph. DO NOT EDIT.

// Package {{.Package}} evaluates compiled symbolic functions.
package {{.Package}}
{{if .UseMath}}
import "math"
{{end}}
{{.Sources}}
{{if .UseSign}}
func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return x
}
{{end}}
`))

var goFuncTmpl = template.Must(template.New("goFuncTMPL").Parse(`
// {{.FuncName}} evaluates {{.Name}}.
//
// Arguments and results hold the nonzeros of the matrices in column-major order.
{{.Doc}}
func {{.FuncName}}({{.Parameters}}) ({{.Results}}) {
{{.Body}}
}
`))

// Name of the program being generated.
func (f *goFunc) Name() string { return f.prog.Name() }

// Doc lists the layout of the arguments and results.
func (f *goFunc) Doc() (string, error) {
	var lines []string
	for i, in := range f.prog.Inputs() {
		lines = append(lines, fmt.Sprintf("//   %s: %s", f.Params[i], in.Sparsity()))
	}
	for i, out := range f.prog.Outputs() {
		lines = append(lines, fmt.Sprintf("//   result %s: %s", f.prog.OutputNames()[i], out.Sparsity))
	}
	return strings.Join(lines, "\n"), nil
}

// Parameters returns the declaration of the parameters.
func (f *goFunc) Parameters() string {
	if len(f.Params) == 0 {
		return ""
	}
	return strings.Join(f.Params, ", ") + " []float64"
}

// Results returns the types of the results.
func (f *goFunc) Results() string {
	res := make([]string, len(f.prog.Outputs()))
	for i := range res {
		res[i] = "[]float64"
	}
	return strings.Join(res, ", ")
}

func (f *goFunc) slot(i int) string {
	return fmt.Sprintf("%s[%d]", bufferName, i)
}

func (f *goFunc) constant(v float64) string {
	switch {
	case math.IsNaN(v):
		f.file.UseMath = true
		return "math.NaN()"
	case math.IsInf(v, 0):
		f.file.UseMath = true
		return fmt.Sprintf("math.Inf(%d)", int(math.Copysign(1, v)))
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (f *goFunc) instr(instr Instr) (string, error) {
	var expr string
	switch {
	case instr.Op == graph.OpConst:
		expr = f.constant(instr.Value)
	case instr.Op == graph.OpGetNonzeros:
		expr = fmt.Sprintf("%s[%d]", f.Params[instr.Input], instr.NZ)
	default:
		format, ok := goExprs[instr.Op]
		if !ok {
			return "", errs.Graphf("no Go expression for operation %s", instr.Op)
		}
		args := make([]any, len(instr.Args))
		for i, a := range instr.Args {
			args[i] = f.slot(a)
		}
		expr = fmt.Sprintf(format, args...)
		f.file.UseMath = f.file.UseMath || strings.HasPrefix(format, "math.")
		f.file.UseSign = f.file.UseSign || instr.Op == graph.OpSign
	}
	return fmt.Sprintf("\t%s = %s", f.slot(instr.Result), expr), nil
}

// Body returns the statements of the function.
func (f *goFunc) Body() (string, error) {
	var body []string
	if f.NumSlots > 0 {
		body = append(body, fmt.Sprintf("\tvar %s [%d]float64", bufferName, f.NumSlots))
	}
	instrs, err := tmpl.IterateFunc(f.prog.Instructions(), func(_ int, instr Instr) (string, error) {
		return f.instr(instr)
	})
	if err != nil {
		return "", err
	}
	if instrs != "" {
		body = append(body, instrs)
	}
	results := make([]string, len(f.prog.Outputs()))
	for i, out := range f.prog.Outputs() {
		vals := make([]string, len(out.Slots))
		for k, s := range out.Slots {
			vals[k] = "0"
			if s >= 0 {
				vals[k] = f.slot(s)
			}
		}
		results[i] = fmt.Sprintf("[]float64{%s}", strings.Join(vals, ", "))
	}
	body = append(body, "\treturn "+strings.Join(results, ", "))
	return strings.Join(body, "\n"), nil
}

func (g *goFile) newFunc(prog *Program) *goFunc {
	f := &goFunc{
		file:     g,
		prog:     prog,
		FuncName: g.funcName.Exported(prog.Name()),
		NumSlots: prog.NumSlots(),
		names:    uname.New(),
	}
	for _, reserved := range []string{bufferName, "math", "sign"} {
		f.names.Register(reserved)
	}
	for i, in := range prog.Inputs() {
		name := in.Name()
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		f.Params = append(f.Params, f.names.Ident(name))
	}
	return f
}

// GoSource generates the source code of a Go package evaluating programs.
// Every program becomes an exported function of the package.
func GoSource(pkg string, progs ...*Program) ([]byte, error) {
	if len(progs) == 0 {
		return nil, errs.Arityf("no program to generate package %s", pkg)
	}
	file := &goFile{
		Package:  pkg,
		funcName: uname.New(),
	}
	for _, prog := range progs {
		file.Funcs = append(file.Funcs, file.newFunc(prog))
	}
	var err error
	if file.Sources, err = tmpl.IterateTmpl(file.Funcs, goFuncTmpl); err != nil {
		return nil, err
	}
	source, err := tmpl.Execute(goFileTmpl, file)
	if err != nil {
		return nil, err
	}
	formatted, err := format.Source([]byte(source))
	if err != nil {
		return []byte(source), errs.IOf("cannot format source code: %v", err)
	}
	return formatted, nil
}
