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

// Package options specifies the options accepted when constructing functions.
//
// Options are given as a Dict, for example decoded from a YAML file,
// and parsed into a closed record for every construction context.
// Unknown keys are rejected at construction.
package options

import (
	"fmt"
	"maps"
	"math"
	"runtime"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	expmaps "golang.org/x/exp/maps"
	"github.com/gx-org/symgraph/base/errs"
)

// Recognized option keys.
const (
	KeyADWeight        = "ad_weight"
	KeyInputScheme     = "input_scheme"
	KeyOutputScheme    = "output_scheme"
	KeyJIT             = "jit"
	KeyVerbose         = "verbose"
	KeyParallelization = "parallelization"
	KeyMaxWorkers      = "max_workers"
)

// Dict is a dynamic set of options.
type Dict map[string]any

// Clone returns a shallow copy of the dictionary.
func (d Dict) Clone() Dict {
	if d == nil {
		return Dict{}
	}
	return expmaps.Clone(d)
}

// Keys returns the keys of the dictionary in sorted order.
func (d Dict) Keys() []string {
	return slices.Sorted(maps.Keys(d))
}

type (
	// ParallelMode selects how the repetitions of a map are evaluated.
	ParallelMode int

	// Function are the options accepted by all functions.
	Function struct {
		// ADWeight selects forward (0) or reverse (1) mode to compute
		// Jacobians. Nil selects a mode from the sparsity of the Jacobian.
		ADWeight *float64
		// InputScheme names the inputs.
		InputScheme []string
		// OutputScheme names the outputs.
		OutputScheme []string
		// JIT evaluates the function through its compiled scalar program.
		JIT bool
		// Verbose logs evaluations.
		Verbose bool
		// Logger used by the function. Not settable from a Dict.
		Logger *zap.Logger
	}

	// Map are the options accepted by map functions.
	Map struct {
		Function
		// Parallelization selects serial or parallel evaluation.
		Parallelization ParallelMode
		// MaxWorkers is the size of the worker pool used in parallel mode.
		MaxWorkers int
	}
)

// Parallel modes.
const (
	Serial ParallelMode = iota
	Parallel
)

var parallelModes = map[string]ParallelMode{
	"serial":   Serial,
	"parallel": Parallel,
}

// ParseParallelMode returns the mode given its name.
func ParseParallelMode(s string) (ParallelMode, error) {
	mode, ok := parallelModes[s]
	if !ok {
		return Serial, errors.Wrapf(errs.ErrInvalidOption, "unknown parallelization %q: available modes are %v", s, slices.Sorted(maps.Keys(parallelModes)))
	}
	return mode, nil
}

func (m ParallelMode) String() string {
	if m == Parallel {
		return "parallel"
	}
	return "serial"
}

// Weight returns the AD weight, 0.5 if it has not been set.
func (o Function) Weight() float64 {
	if o.ADWeight == nil {
		return 0.5
	}
	return *o.ADWeight
}

// Log returns the logger of the function or a no-op logger.
func (o Function) Log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Workers returns the number of workers to use for the given number of tasks.
func (o Map) Workers(tasks int) int {
	workers := o.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return max(1, min(workers, tasks))
}

type setter[T any] func(opts *T, v any) error

func invalid(key string, v any, want string) error {
	return errors.Wrapf(errs.ErrInvalidOption, "option %s: got %v of type %T but want %s", key, v, v, want)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return append([]string{}, x...), true
	case []any:
		ss := make([]string, len(x))
		for i, el := range x {
			s, ok := el.(string)
			if !ok {
				return nil, false
			}
			ss[i] = s
		}
		return ss, true
	}
	return nil, false
}

var functionSetters = map[string]setter[Function]{
	KeyADWeight: func(o *Function, v any) error {
		w, ok := toFloat(v)
		if !ok || math.IsNaN(w) || w < 0 || w > 1 {
			return invalid(KeyADWeight, v, "a number in [0, 1]")
		}
		o.ADWeight = &w
		return nil
	},
	KeyInputScheme: func(o *Function, v any) error {
		ss, ok := toStrings(v)
		if !ok {
			return invalid(KeyInputScheme, v, "a list of names")
		}
		o.InputScheme = ss
		return nil
	},
	KeyOutputScheme: func(o *Function, v any) error {
		ss, ok := toStrings(v)
		if !ok {
			return invalid(KeyOutputScheme, v, "a list of names")
		}
		o.OutputScheme = ss
		return nil
	},
	KeyJIT: func(o *Function, v any) error {
		b, ok := v.(bool)
		if !ok {
			return invalid(KeyJIT, v, "a boolean")
		}
		o.JIT = b
		return nil
	},
	KeyVerbose: func(o *Function, v any) error {
		b, ok := v.(bool)
		if !ok {
			return invalid(KeyVerbose, v, "a boolean")
		}
		o.Verbose = b
		return nil
	},
}

var mapSetters = map[string]setter[Map]{
	KeyParallelization: func(o *Map, v any) error {
		s, ok := v.(string)
		if !ok {
			return invalid(KeyParallelization, v, "a string")
		}
		mode, err := ParseParallelMode(s)
		if err != nil {
			return err
		}
		o.Parallelization = mode
		return nil
	},
	KeyMaxWorkers: func(o *Map, v any) error {
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) || f < 1 {
			return invalid(KeyMaxWorkers, v, "a positive integer")
		}
		o.MaxWorkers = int(f)
		return nil
	},
}

func unknown(context string, keys []string, known ...[]string) error {
	if len(keys) == 0 {
		return nil
	}
	var all []string
	for _, k := range known {
		all = append(all, k...)
	}
	slices.Sort(all)
	var err error
	for _, key := range keys {
		err = multierr.Append(err, errors.Wrapf(errs.ErrUnknownOption, "%s option %q: available options are %v", context, key, all))
	}
	return err
}

// ParseFunction parses the options of a function.
func ParseFunction(d Dict) (Function, error) {
	var o Function
	var err error
	var unknownKeys []string
	for _, key := range d.Keys() {
		set, ok := functionSetters[key]
		if !ok {
			unknownKeys = append(unknownKeys, key)
			continue
		}
		err = multierr.Append(err, set(&o, d[key]))
	}
	err = multierr.Append(err, unknown("function", unknownKeys, slices.Collect(maps.Keys(functionSetters))))
	return o, err
}

// ParseMap parses the options of a map function.
func ParseMap(d Dict) (Map, error) {
	var o Map
	var err error
	var unknownKeys []string
	for _, key := range d.Keys() {
		if set, ok := functionSetters[key]; ok {
			err = multierr.Append(err, set(&o.Function, d[key]))
			continue
		}
		if set, ok := mapSetters[key]; ok {
			err = multierr.Append(err, set(&o, d[key]))
			continue
		}
		unknownKeys = append(unknownKeys, key)
	}
	err = multierr.Append(err, unknown("map", unknownKeys,
		slices.Collect(maps.Keys(functionSetters)),
		slices.Collect(maps.Keys(mapSetters)),
	))
	return o, err
}

// String returns a representation of the options.
func (o Function) String() string {
	w := "auto"
	if o.ADWeight != nil {
		w = fmt.Sprint(*o.ADWeight)
	}
	return fmt.Sprintf("{ad_weight: %s, input_scheme: %v, output_scheme: %v, jit: %v, verbose: %v}", w, o.InputScheme, o.OutputScheme, o.JIT, o.Verbose)
}
