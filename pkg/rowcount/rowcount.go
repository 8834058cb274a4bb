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

// Package rowcount adapts the core's row-count semantics (-1 = unknown,
// -2 = error) to the PostgreSQL wire-protocol front-end's convention
// (unknown=-2, error=-3). The core never produces row counts itself;
// this adapter exists only because the remapping must be preserved
// anywhere a count crosses that boundary.
package rowcount

// ToWireProtocol remaps a core row count to the wire-protocol
// convention: any negative value is decremented by one, and
// non-negative values (actual row counts) pass through unchanged.
func ToWireProtocol(count int64) int64 {
	if count < 0 {
		return count - 1
	}
	return count
}
