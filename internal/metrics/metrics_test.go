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

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(mapRepetitions.WithLabelValues("parallel"))
	MapRepetitions("parallel", 5)
	if got := testutil.ToFloat64(mapRepetitions.WithLabelValues("parallel")) - before; got != 5 {
		t.Errorf("parallel repetitions increased by %v, want 5", got)
	}
	Derivative("hessian")
	Evaluation("jit")
	var out strings.Builder
	if err := Dump(&out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`symgraph_derivatives_total{kind="hessian"}`,
		`symgraph_evaluations_total{path="jit"}`,
		`symgraph_map_repetitions_total{mode="parallel"}`,
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("dump does not contain %s:\n%s", want, out.String())
		}
	}
}
