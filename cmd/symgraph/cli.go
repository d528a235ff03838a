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
	"fmt"
	"io"

	"github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/function"
	"github.com/gx-org/symgraph/internal/metrics"
	"github.com/gx-org/symgraph/serial"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Args are the command line arguments.
type Args struct {
	Verbose bool `arg:"-v,--verbose" help:"log debug messages on stderr"`
	Metrics bool `arg:"--metrics" help:"print the evaluation counters once the command is done"`

	EvalCmd     *EvalArgs       `arg:"subcommand:eval" help:"evaluate a function"`
	JacobianCmd *DerivativeArgs `arg:"subcommand:jacobian" help:"write the jacobian function of a function"`
	HessianCmd  *DerivativeArgs `arg:"subcommand:hessian" help:"write the hessian function of a function"`
	ExpandCmd   *ExpandArgs     `arg:"subcommand:expand" help:"write the scalar expansion of a function"`
	CodegenCmd  *CodegenArgs    `arg:"subcommand:codegen" help:"generate Go source from functions"`
	ExampleCmd  *ExampleArgs    `arg:"subcommand:example" help:"write the functions of the rosenbrock problem"`
}

// env is the environment in which a command runs.
type env struct {
	fs     afero.Fs
	stdout io.Writer
	logger *zap.Logger
}

func (e *env) load(path string) (*function.Function, error) {
	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, errs.IOf("cannot read function: %v", err)
	}
	f, err := serial.Decode(data, e.logger)
	if err != nil {
		return nil, errors.WithMessagef(err, "cannot load %s", path)
	}
	e.logger.Debug("function loaded", zap.String("path", path), zap.Stringer("function", f))
	return f, nil
}

func (e *env) write(path string, data []byte) error {
	if path == "" || path == "-" {
		if _, err := e.stdout.Write(data); err != nil {
			return errs.IOf("cannot write output: %v", err)
		}
		return nil
	}
	if err := afero.WriteFile(e.fs, path, data, 0o644); err != nil {
		return errs.IOf("cannot write %s: %v", path, err)
	}
	e.logger.Debug("file written", zap.String("path", path))
	return nil
}

func (e *env) writeFunction(path string, f *function.Function) error {
	data, err := serial.Encode(f)
	if err != nil {
		return err
	}
	return e.write(path, data)
}

func (args *Args) command() (func(*env) error, bool) {
	switch {
	case args.EvalCmd != nil:
		return args.EvalCmd.run, true
	case args.JacobianCmd != nil:
		return args.JacobianCmd.jacobian, true
	case args.HessianCmd != nil:
		return args.HessianCmd.hessian, true
	case args.ExpandCmd != nil:
		return args.ExpandCmd.run, true
	case args.CodegenCmd != nil:
		return args.CodegenCmd.run, true
	case args.ExampleCmd != nil:
		return args.ExampleCmd.run, true
	}
	return nil, false
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

func run(argv []string, fs afero.Fs, stdout io.Writer) error {
	var args Args
	parser, err := arg.NewParser(arg.Config{Program: "symgraph"}, &args)
	if err != nil {
		return errors.Wrapf(errs.ErrInvalidOption, "cli config error: %v", err)
	}
	err = parser.Parse(argv)
	if err == arg.ErrHelp {
		parser.WriteHelp(stdout)
		return nil
	}
	if err != nil {
		return errors.Wrapf(errs.ErrInvalidOption, "cannot parse command line: %v", err)
	}
	cmd, ok := args.command()
	if !ok {
		parser.WriteHelp(stdout)
		return nil
	}
	logger, err := newLogger(args.Verbose)
	if err != nil {
		return errs.IOf("cannot create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if err := cmd(&env{fs: fs, stdout: stdout, logger: logger}); err != nil {
		return err
	}
	if args.Metrics {
		fmt.Fprintln(stdout, "# metrics")
		return metrics.Dump(stdout)
	}
	return nil
}
