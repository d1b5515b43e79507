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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/g1mliii/urlnotes/pkg/assert"
	"github.com/g1mliii/urlnotes/pkg/cli/consts"
	"github.com/pkg/errors"
)

func TestWriteRead(t *testing.T) {
	configHome := t.TempDir()
	if err := os.MkdirAll(filepath.Join(configHome, consts.DirName), 0755); err != nil {
		t.Fatal(errors.Wrap(err, "preparing config dir"))
	}

	cf := Config{
		APIEndpoint:         "https://api.example.com",
		SyncIntervalMinutes: 7,
		MaxVersionSnapshots: 8,
		Editor:              "vim",
	}
	if err := Write(configHome, cf); err != nil {
		t.Fatal(errors.Wrap(err, "writing config"))
	}

	got, err := Read(configHome)
	if err != nil {
		t.Fatal(errors.Wrap(err, "reading config"))
	}
	assert.DeepEqual(t, got, cf, "config roundtrip mismatch")
}

func TestReadNormalizes(t *testing.T) {
	configHome := t.TempDir()
	path := GetPath(configHome)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(errors.Wrap(err, "preparing config dir"))
	}

	testCases := []struct {
		name              string
		raw               string
		expectedInterval  int
		expectedSnapshots int
	}{
		{
			name:              "missing values fall back to defaults",
			raw:               "apiEndpoint: https://api.example.com\n",
			expectedInterval:  DefaultSyncIntervalMinutes,
			expectedSnapshots: DefaultMaxVersionSnapshots,
		},
		{
			name:              "snapshot cap clamped from below",
			raw:               "maxVersionSnapshots: 2\n",
			expectedInterval:  DefaultSyncIntervalMinutes,
			expectedSnapshots: 5,
		},
		{
			name:              "snapshot cap clamped from above",
			raw:               "maxVersionSnapshots: 50\n",
			expectedInterval:  DefaultSyncIntervalMinutes,
			expectedSnapshots: 10,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := os.WriteFile(path, []byte(tc.raw), 0644); err != nil {
				t.Fatal(errors.Wrap(err, "writing raw config"))
			}

			got, err := Read(configHome)
			if err != nil {
				t.Fatal(errors.Wrap(err, "reading config"))
			}

			assert.Equal(t, got.SyncIntervalMinutes, tc.expectedInterval, "interval mismatch")
			assert.Equal(t, got.MaxVersionSnapshots, tc.expectedSnapshots, "snapshot cap mismatch")
		})
	}
}
