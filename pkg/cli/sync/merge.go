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
	"github.com/g1mliii/urlnotes/pkg/cli/database"
)

// decision is the outcome of reconciling a pulled note against its local
// counterpart
type decision int

const (
	// decisionKeepLocal discards the pulled note
	decisionKeepLocal decision = iota
	// decisionApplyRemote writes the pulled note over the local one
	decisionApplyRemote
	// decisionConflict means both sides changed independently and a winner
	// must be chosen
	decisionConflict
)

// decide reconciles a pulled note against the local copy. lastSync is the
// watermark of the previous successful pass, in unix nanoseconds.
//
// Local data has priority: a local edit is never silently overwritten.
// Tombstones take precedence on both sides, except that a strictly newer
// remote edit resurrects a locally deleted note.
func decide(local database.Note, remote database.Note, lastSync int64) decision {
	if local.Deleted {
		if !remote.Deleted && remote.UpdatedAt > local.DeletedAt {
			return decisionApplyRemote
		}
		return decisionKeepLocal
	}

	if remote.Deleted {
		if local.UpdatedAt > remote.DeletedAt {
			return decisionKeepLocal
		}
		return decisionApplyRemote
	}

	if local.ContentHash == remote.ContentHash {
		// same content; take the remote row only if it advances the version
		if remote.Version > local.Version {
			return decisionApplyRemote
		}
		return decisionKeepLocal
	}

	localChanged := local.UpdatedAt > lastSync
	remoteChanged := remote.UpdatedAt > lastSync

	if localChanged && remoteChanged {
		return decisionConflict
	}
	if localChanged {
		return decisionKeepLocal
	}

	return decisionApplyRemote
}

// resolveConflict picks the conflict winner by last write. A tie keeps the
// local note.
func resolveConflict(local, remote database.Note) (winner database.Note, side string) {
	if remote.UpdatedAt > local.UpdatedAt {
		return remote, "remote"
	}

	return local, "local"
}
