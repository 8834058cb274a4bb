/*
Copyright The CloudNativePG Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package rowcount

import "testing"

func TestToWireProtocol(t *testing.T) {
	cases := []struct {
		name  string
		input int64
		want  int64
	}{
		{"unknown", -1, -2},
		{"error", -2, -3},
		{"zero rows", 0, 0},
		{"positive count", 42, 42},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToWireProtocol(tc.input); got != tc.want {
				t.Fatalf("ToWireProtocol(%d) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}
