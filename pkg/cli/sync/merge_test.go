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

package sync

import (
	"testing"

	"github.com/g1mliii/urlnotes/pkg/assert"
	"github.com/g1mliii/urlnotes/pkg/cli/database"
)

func TestDecide(t *testing.T) {
	const lastSync = int64(1000)

	testCases := []struct {
		name     string
		local    database.Note
		remote   database.Note
		expected decision
	}{
		{
			name:     "remote newer, local untouched",
			local:    database.Note{UpdatedAt: 500, Version: 1, ContentHash: "a"},
			remote:   database.Note{UpdatedAt: 2000, Version: 2, ContentHash: "b"},
			expected: decisionApplyRemote,
		},
		{
			name:     "local edited, remote untouched",
			local:    database.Note{UpdatedAt: 2000, Version: 2, ContentHash: "a"},
			remote:   database.Note{UpdatedAt: 500, Version: 1, ContentHash: "b"},
			expected: decisionKeepLocal,
		},
		{
			name:     "both edited since the watermark",
			local:    database.Note{UpdatedAt: 2000, Version: 2, ContentHash: "a"},
			remote:   database.Note{UpdatedAt: 3000, Version: 2, ContentHash: "b"},
			expected: decisionConflict,
		},
		{
			name:     "both edited but identical content",
			local:    database.Note{UpdatedAt: 2000, Version: 3, ContentHash: "a"},
			remote:   database.Note{UpdatedAt: 3000, Version: 2, ContentHash: "a"},
			expected: decisionKeepLocal,
		},
		{
			name:     "identical content, higher remote version",
			local:    database.Note{UpdatedAt: 500, Version: 1, ContentHash: "a"},
			remote:   database.Note{UpdatedAt: 600, Version: 4, ContentHash: "a"},
			expected: decisionApplyRemote,
		},
		{
			name:     "local tombstone wins over older remote edit",
			local:    database.Note{Deleted: true, DeletedAt: 2000, UpdatedAt: 2000},
			remote:   database.Note{UpdatedAt: 1500, Version: 2, ContentHash: "b"},
			expected: decisionKeepLocal,
		},
		{
			name:     "newer remote edit resurrects local tombstone",
			local:    database.Note{Deleted: true, DeletedAt: 2000, UpdatedAt: 2000},
			remote:   database.Note{UpdatedAt: 3000, Version: 2, ContentHash: "b"},
			expected: decisionApplyRemote,
		},
		{
			name:     "remote tombstone wins over older local edit",
			local:    database.Note{UpdatedAt: 1500, Version: 2, ContentHash: "a"},
			remote:   database.Note{Deleted: true, DeletedAt: 2000, UpdatedAt: 2000},
			expected: decisionApplyRemote,
		},
		{
			name:     "newer local edit survives remote tombstone",
			local:    database.Note{UpdatedAt: 3000, Version: 2, ContentHash: "a"},
			remote:   database.Note{Deleted: true, DeletedAt: 2000, UpdatedAt: 2000},
			expected: decisionKeepLocal,
		},
		{
			name:     "both tombstoned",
			local:    database.Note{Deleted: true, DeletedAt: 2000, UpdatedAt: 2000},
			remote:   database.Note{Deleted: true, DeletedAt: 3000, UpdatedAt: 3000},
			expected: decisionKeepLocal,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := decide(tc.local, tc.remote, lastSync)
			assert.Equal(t, got, tc.expected, "decision mismatch")
		})
	}
}

func TestDecidePairwiseDeterminism(t *testing.T) {
	// swapping sides must never let both devices keep their own copy
	const lastSync = int64(1000)

	a := database.Note{UUID: "n1", UpdatedAt: 2000, Version: 2, ContentHash: "a"}
	b := database.Note{UUID: "n1", UpdatedAt: 3000, Version: 2, ContentHash: "b"}

	deviceA := decide(a, b, lastSync)
	deviceB := decide(b, a, lastSync)

	assert.Equal(t, deviceA, decisionConflict, "device A should see a conflict")
	assert.Equal(t, deviceB, decisionConflict, "device B should see a conflict")

	winnerA, sideA := resolveConflict(a, b)
	winnerB, sideB := resolveConflict(b, a)

	// both devices converge on the same note
	assert.Equal(t, winnerA.ContentHash, winnerB.ContentHash, "devices should pick the same winner")
	assert.Equal(t, sideA, "remote", "device A should take the remote copy")
	assert.Equal(t, sideB, "local", "device B should keep its local copy")
}

func TestResolveConflictTieKeepsLocal(t *testing.T) {
	local := database.Note{UUID: "n1", UpdatedAt: 2000, ContentHash: "a"}
	remote := database.Note{UUID: "n1", UpdatedAt: 2000, ContentHash: "b"}

	winner, side := resolveConflict(local, remote)
	assert.Equal(t, side, "local", "a timestamp tie should keep the local copy")
	assert.Equal(t, winner.ContentHash, "a", "winner should be the local note")
}
