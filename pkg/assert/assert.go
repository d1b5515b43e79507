/* Copyright 2025 URL Notes Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package assert provides assertion helpers for tests
package assert

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Equal fails a test if the actual does not match the expected
func Equal(t *testing.T, a interface{}, b interface{}, message string) {
	t.Helper()

	if a != b {
		t.Errorf("%s. Actual: %+v. Expected: %+v.", message, a, b)
	}
}

// Equalf fails a test if the actual does not match the expected, and terminates the test
func Equalf(t *testing.T, a interface{}, b interface{}, message string) {
	t.Helper()

	if a != b {
		t.Fatalf("%s. Actual: %+v. Expected: %+v.", message, a, b)
	}
}

// NotEqual fails a test if the actual matches the expected
func NotEqual(t *testing.T, a interface{}, b interface{}, message string) {
	t.Helper()

	if a == b {
		t.Errorf("%s. Got: %+v.", message, a)
	}
}

// DeepEqual fails a test if the actual does not deeply equal the expected
func DeepEqual(t *testing.T, a interface{}, b interface{}, message string) {
	t.Helper()

	if diff := cmp.Diff(b, a); diff != "" {
		t.Errorf("%s. Diff (-expected +actual):\n%s", message, diff)
	}
}

// DeepEqualf fails a test if the actual does not deeply equal the expected, and terminates the test
func DeepEqualf(t *testing.T, a interface{}, b interface{}, message string) {
	t.Helper()

	if diff := cmp.Diff(b, a); diff != "" {
		t.Fatalf("%s. Diff (-expected +actual):\n%s", message, diff)
	}
}
