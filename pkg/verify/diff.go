// Copyright 2025 Tom Barlow
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

package verify

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffThreshold is the length above which mismatching strings get an
// inline character diff in the issue description.
const diffThreshold = 40

// textDiff renders the character difference between two long strings as
// "[-removed-]{+added+}" markup. Short strings return "".
func textDiff(expected, actual string) string {
	if len(expected) < diffThreshold && len(actual) < diffThreshold {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(expected, actual, false))

	var out []byte
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			out = append(out, "[-"+d.Text+"-]"...)
		case diffmatchpatch.DiffInsert:
			out = append(out, "{+"+d.Text+"+}"...)
		default:
			out = append(out, d.Text...)
		}
	}
	return string(out)
}
