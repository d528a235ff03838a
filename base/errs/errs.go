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

// Package errs defines the categories of errors returned by symgraph.
//
// Every error returned by the packages of the module wraps exactly one of
// the sentinel errors below. Use errors.Is to test for a category.
// Errors returned by solver plugins while solving, context cancellation
// included, are passed through unchanged.
package errs

import "github.com/pkg/errors"

var (
	// ErrDimensionMismatch is returned when shapes or sparsity patterns are incompatible.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrArity is returned when a function is called or built with the wrong ports.
	ErrArity = errors.New("arity error")

	// ErrUnknownOption is returned when an option set contains an unsupported key.
	ErrUnknownOption = errors.New("unknown option")

	// ErrInvalidOption is returned when a known option has an invalid value.
	ErrInvalidOption = errors.New("invalid option")

	// ErrNotDifferentiable is returned when a derivative flows through an operation without derivative rules.
	ErrNotDifferentiable = errors.New("not differentiable")

	// ErrMapAccumShape is returned when the ports of a mapped function are inconsistent.
	ErrMapAccumShape = errors.New("map accumulator shape error")

	// ErrIndexOutOfRange is returned when a port, row, column, or nonzero index is out of bounds.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrDomain is returned at evaluation time when an operation is evaluated outside of its domain.
	ErrDomain = errors.New("domain error")

	// ErrInvalidGraph is returned when an expression, an operation or a serialized graph is malformed.
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrPlugin is returned when a solver plugin cannot be registered or found.
	ErrPlugin = errors.New("solver plugin error")

	// ErrIO is returned when a file or a generated source cannot be read, written or parsed.
	ErrIO = errors.New("input/output error")
)

// Dimensionf returns an ErrDimensionMismatch error with a formatted message.
func Dimensionf(format string, args ...any) error {
	return errors.Wrapf(ErrDimensionMismatch, format, args...)
}

// Arityf returns an ErrArity error with a formatted message.
func Arityf(format string, args ...any) error {
	return errors.Wrapf(ErrArity, format, args...)
}

// Indexf returns an ErrIndexOutOfRange error with a formatted message.
func Indexf(format string, args ...any) error {
	return errors.Wrapf(ErrIndexOutOfRange, format, args...)
}

// Graphf returns an ErrInvalidGraph error with a formatted message.
func Graphf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidGraph, format, args...)
}

// Pluginf returns an ErrPlugin error with a formatted message.
func Pluginf(format string, args ...any) error {
	return errors.Wrapf(ErrPlugin, format, args...)
}

// IOf returns an ErrIO error with a formatted message.
func IOf(format string, args ...any) error {
	return errors.Wrapf(ErrIO, format, args...)
}

// CheckIndex returns an ErrIndexOutOfRange error if i is not in [0, n).
func CheckIndex(what string, i, n int) error {
	if i < 0 || i >= n {
		return Indexf("%s index %d out of range [0, %d)", what, i, n)
	}
	return nil
}
