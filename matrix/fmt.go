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

package matrix

import (
	"fmt"
	"strings"
)

// structuralZero is printed in place of elements absent from the pattern.
const structuralZero = "00"

func toValue(x float64) string {
	result := fmt.Sprintf("%.10f", x)
	if strings.ContainsRune(result, '.') {
		// Remove any number of trailing zeroes after the decimal point, and remove
		// the point itself if there are no digits after it.
		result = strings.TrimRight(result, "0")
		result = strings.TrimSuffix(result, ".")
	}
	if result == "-0" {
		result = "0"
	}
	return result
}

// String returns a representation of the matrix where structural
// zeros are printed as 00.
func (m *Matrix) String() string {
	if m.sp.IsScalar() {
		if m.sp.IsEmpty() {
			return structuralZero
		}
		return toValue(m.nz[0])
	}
	w := &strings.Builder{}
	w.WriteString("[")
	for i := 0; i < m.Rows(); i++ {
		if i > 0 {
			w.WriteString(", ")
		}
		w.WriteString("[")
		for j := 0; j < m.Cols(); j++ {
			if j > 0 {
				w.WriteString(", ")
			}
			k := m.sp.Find(i, j)
			if k < 0 {
				w.WriteString(structuralZero)
			} else {
				w.WriteString(toValue(m.nz[k]))
			}
		}
		w.WriteString("]")
	}
	w.WriteString("]")
	return w.String()
}
