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

package options_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/symgraph/api/options"
	"github.com/gx-org/symgraph/base/errs"
)

func TestParseFunction(t *testing.T) {
	o, err := options.ParseFunction(options.Dict{
		"ad_weight":     1,
		"output_scheme": []any{"f", "g"},
		"jit":           true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := o.Weight(); got != 1 {
		t.Errorf("weight = %v, want 1", got)
	}
	if diff := cmp.Diff([]string{"f", "g"}, o.OutputScheme); diff != "" {
		t.Errorf("unexpected output scheme (-want +got):\n%s", diff)
	}
	if !o.JIT {
		t.Errorf("jit not set")
	}
	def, err := options.ParseFunction(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := def.Weight(); got != 0.5 {
		t.Errorf("default weight = %v, want 0.5", got)
	}
}

func TestUnknownOption(t *testing.T) {
	_, err := options.ParseFunction(options.Dict{"foo": 1, "bar": 2, "jit": false})
	if !errors.Is(err, errs.ErrUnknownOption) {
		t.Fatalf("got error %v, want %v", err, errs.ErrUnknownOption)
	}
	// parallelization is only recognized by maps.
	if _, err := options.ParseFunction(options.Dict{"parallelization": "serial"}); !errors.Is(err, errs.ErrUnknownOption) {
		t.Errorf("got error %v, want %v", err, errs.ErrUnknownOption)
	}
	if _, err := options.ParseMap(options.Dict{"parallelization": "serial", "ad_weight": 0}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInvalidOption(t *testing.T) {
	tests := []options.Dict{
		{"ad_weight": "foo"},
		{"ad_weight": 2.0},
		{"jit": "yes"},
		{"output_scheme": []any{"f", 1}},
	}
	for i, d := range tests {
		if _, err := options.ParseFunction(d); !errors.Is(err, errs.ErrInvalidOption) {
			t.Errorf("test %d: got error %v, want %v", i, err, errs.ErrInvalidOption)
		}
	}
	for i, d := range []options.Dict{
		{"parallelization": "openmp"},
		{"max_workers": 0},
		{"max_workers": 1.5},
	} {
		if _, err := options.ParseMap(d); !errors.Is(err, errs.ErrInvalidOption) {
			t.Errorf("map test %d: got error %v, want %v", i, err, errs.ErrInvalidOption)
		}
	}
}

func TestWorkers(t *testing.T) {
	o, err := options.ParseMap(options.Dict{"parallelization": "parallel", "max_workers": 4})
	if err != nil {
		t.Fatal(err)
	}
	if o.Parallelization != options.Parallel {
		t.Errorf("parallelization = %s, want parallel", o.Parallelization)
	}
	if got := o.Workers(2); got != 2 {
		t.Errorf("workers for 2 tasks = %d, want 2", got)
	}
	if got := o.Workers(10); got != 4 {
		t.Errorf("workers for 10 tasks = %d, want 4", got)
	}
}

func TestClone(t *testing.T) {
	d := options.Dict{"jit": true}
	c := d.Clone()
	c["verbose"] = true
	if diff := cmp.Diff([]string{"jit"}, d.Keys()); diff != "" {
		t.Errorf("clone modified the original (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"jit", "verbose"}, c.Keys()); diff != "" {
		t.Errorf("unexpected keys (-want +got):\n%s", diff)
	}
}
