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

package main

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/codegen"
	"github.com/gx-org/symgraph/examples/rosenbrock"
	"github.com/gx-org/symgraph/function"
	"github.com/gx-org/symgraph/matrix"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// EvalArgs are the arguments of the eval command.
type EvalArgs struct {
	Function string   `arg:"positional,required" help:"YAML file of the function"`
	Values   []string `arg:"positional" help:"nonzeros of each input, separated by commas"`
	JIT      bool     `arg:"--jit" help:"evaluate the expanded program"`
}

type evalResult struct {
	Name  string      `yaml:"name"`
	Value [][]float64 `yaml:"value,flow"`
}

func parseValues(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var vals []float64
	for _, field := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, errors.Wrapf(errs.ErrInvalidOption, "invalid value %q: %v", field, err)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func (cmd *EvalArgs) arguments(f *function.Function) ([]*matrix.Matrix, error) {
	if len(cmd.Values) != f.NumIn() {
		return nil, errs.Arityf("%s takes %d inputs but %d values have been given", f.Name(), f.NumIn(), len(cmd.Values))
	}
	args := make([]*matrix.Matrix, f.NumIn())
	for i, s := range cmd.Values {
		vals, err := parseValues(s)
		if err != nil {
			return nil, err
		}
		sp, err := f.SparsityIn(i)
		if err != nil {
			return nil, err
		}
		if args[i], err = matrix.New(sp, vals); err != nil {
			return nil, errors.WithMessagef(err, "input %s", f.InputNames()[i])
		}
	}
	return args, nil
}

func (cmd *EvalArgs) run(e *env) error {
	f, err := e.load(cmd.Function)
	if err != nil {
		return err
	}
	if cmd.JIT {
		if f, err = f.Expand(""); err != nil {
			return err
		}
	}
	args, err := cmd.arguments(f)
	if err != nil {
		return err
	}
	outs, err := f.Evaluate(args...)
	if err != nil {
		return err
	}
	results := make([]evalResult, len(outs))
	for i, out := range outs {
		results[i] = evalResult{Name: f.OutputNames()[i], Value: out.Dense()}
	}
	data, err := yaml.Marshal(results)
	if err != nil {
		return errs.IOf("cannot encode results: %v", err)
	}
	return e.write("", data)
}

// DerivativeArgs are the arguments of the jacobian and hessian commands.
type DerivativeArgs struct {
	Function string `arg:"positional,required" help:"YAML file of the function"`
	Out      string `arg:"--out" help:"name of the output to differentiate (default: first output)"`
	In       string `arg:"--in" help:"name of the input to differentiate with respect to (default: first input)"`
	Output   string `arg:"-o,--output" help:"YAML file to write (default: stdout)"`
}

func (cmd *DerivativeArgs) ports(f *function.Function) (oind, iind int, err error) {
	if cmd.Out != "" {
		if oind, err = f.IndexOut(cmd.Out); err != nil {
			return
		}
	}
	if cmd.In != "" {
		if iind, err = f.IndexIn(cmd.In); err != nil {
			return
		}
	}
	return
}

func (cmd *DerivativeArgs) derive(e *env, kind string, derive func(f *function.Function, oind, iind int) (*function.Function, error)) error {
	f, err := e.load(cmd.Function)
	if err != nil {
		return err
	}
	oind, iind, err := cmd.ports(f)
	if err != nil {
		return err
	}
	d, err := derive(f, oind, iind)
	if err != nil {
		return err
	}
	e.logger.Info("derivative built", zap.String("kind", kind), zap.Stringer("function", d))
	return e.writeFunction(cmd.Output, d)
}

func (cmd *DerivativeArgs) jacobian(e *env) error {
	return cmd.derive(e, "jacobian", (*function.Function).Jacobian)
}

func (cmd *DerivativeArgs) hessian(e *env) error {
	return cmd.derive(e, "hessian", (*function.Function).Hessian)
}

// ExpandArgs are the arguments of the expand command.
type ExpandArgs struct {
	Function string `arg:"positional,required" help:"YAML file of the function"`
	Name     string `arg:"--name" help:"name of the expanded function"`
	Listing  bool   `arg:"--listing" help:"print the program instead of the function"`
	Output   string `arg:"-o,--output" help:"YAML file to write (default: stdout)"`
}

func (cmd *ExpandArgs) run(e *env) error {
	f, err := e.load(cmd.Function)
	if err != nil {
		return err
	}
	expanded, err := f.Expand(cmd.Name)
	if err != nil {
		return err
	}
	if !cmd.Listing {
		return e.writeFunction(cmd.Output, expanded)
	}
	prog, err := expanded.Program()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(prog)
	if err != nil {
		return errs.IOf("cannot encode program %s: %v", prog.Name(), err)
	}
	return e.write(cmd.Output, data)
}

// CodegenArgs are the arguments of the codegen command.
type CodegenArgs struct {
	Functions []string `arg:"positional,required" help:"YAML files of the functions"`
	Dir       string   `arg:"--dir" help:"directory of the Go package to write (default: print the source)"`
	Package   string   `arg:"--package" default:"generated" help:"package name when the source is printed"`
}

func (cmd *CodegenArgs) programs(e *env) ([]*codegen.Program, error) {
	progs := make([]*codegen.Program, len(cmd.Functions))
	for i, path := range cmd.Functions {
		f, err := e.load(path)
		if err != nil {
			return nil, err
		}
		if progs[i], err = f.Program(); err != nil {
			return nil, err
		}
	}
	return progs, nil
}

func (cmd *CodegenArgs) run(e *env) error {
	progs, err := cmd.programs(e)
	if err != nil {
		return err
	}
	if cmd.Dir == "" {
		src, err := codegen.GoSource(cmd.Package, progs...)
		if err != nil {
			return err
		}
		return e.write("", src)
	}
	importPath, err := codegen.WriteGoPackage(e.fs, cmd.Dir, progs...)
	if err != nil {
		return err
	}
	e.logger.Info("go package written", zap.String("import", importPath), zap.Int("functions", len(progs)))
	return nil
}

// ExampleArgs are the arguments of the example command.
type ExampleArgs struct {
	Dir string `arg:"positional" default:"." help:"directory in which the functions are written"`
}

func (cmd *ExampleArgs) run(e *env) error {
	f, g, err := rosenbrock.Functions(nil)
	if err != nil {
		return err
	}
	if err := e.fs.MkdirAll(cmd.Dir, 0o755); err != nil {
		return errs.IOf("cannot create directory %s: %v", cmd.Dir, err)
	}
	for _, fn := range []*function.Function{f, g} {
		if err := e.writeFunction(filepath.Join(cmd.Dir, fn.Name()+".yaml"), fn); err != nil {
			return err
		}
	}
	return nil
}
