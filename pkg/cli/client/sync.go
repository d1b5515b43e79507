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

package client

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

const syncPath = "/functions/v1/sync"

// EncryptedNote is a note on the wire. Field contents are independent
// AES-GCM blobs; the backend never sees plaintext.
type EncryptedNote struct {
	ID               string    `json:"id"`
	TitleEncrypted   string    `json:"title_encrypted"`
	ContentEncrypted string    `json:"content_encrypted"`
	TagsEncrypted    string    `json:"tags_encrypted"`
	URL              string    `json:"url"`
	Domain           string    `json:"domain"`
	ContentHash      string    `json:"content_hash"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int       `json:"version"`
	Deleted          bool      `json:"is_deleted"`
	DeletedAt        time.Time `json:"deleted_at,omitempty"`
}

// DeletionPayload asks the backend to tombstone a note
type DeletionPayload struct {
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Conflict is a note the backend refused to accept because its stored
// version diverged from the pushed one
type Conflict struct {
	NoteID        string        `json:"note_id"`
	RemoteNote    EncryptedNote `json:"remote_note"`
	RemoteVersion int           `json:"remote_version"`
}

// PushResult is the backend's account of a push operation
type PushResult struct {
	// MissingNotes are notes the backend has that this client does not
	MissingNotes []EncryptedNote `json:"missing_notes"`
	// AcceptedNotes are ids the backend has never seen and accepted as new
	AcceptedNotes []string `json:"accepted_notes"`
	// ProcessedDeletions are tombstones the backend acknowledged
	ProcessedDeletions []string `json:"processed_deletions"`
	// Conflicts are notes that need resolution before they can land
	Conflicts []Conflict `json:"conflicts"`
}

type syncRequest struct {
	Operation string            `json:"operation"`
	Notes     []EncryptedNote   `json:"notes,omitempty"`
	Deletions []DeletionPayload `json:"deletions,omitempty"`
	LastSync  *time.Time        `json:"last_sync_time,omitempty"`

	// resolve_conflict fields
	NoteID     string         `json:"note_id,omitempty"`
	Resolution string         `json:"resolution,omitempty"`
	Winner     *EncryptedNote `json:"winner,omitempty"`
}

func (c *Client) doSyncReq(req syncRequest, dest interface{}) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return errors.Wrapf(err, "marshalling %s request", req.Operation)
	}

	res, err := c.doAuthorizedReq("POST", syncPath, string(payload))
	if err != nil {
		return errors.Wrapf(err, "requesting %s", req.Operation)
	}

	if dest == nil {
		res.Body.Close()
		return nil
	}

	return readBody(res, dest)
}

// Push uploads changed notes and pending deletions. The watermark lets the
// backend flag notes changed on both sides as conflicts.
func (c *Client) Push(notes []EncryptedNote, deletions []DeletionPayload, lastSync time.Time) (PushResult, error) {
	var ret PushResult

	req := syncRequest{
		Operation: "push",
		Notes:     notes,
		Deletions: deletions,
	}
	if !lastSync.IsZero() {
		req.LastSync = &lastSync
	}

	err := c.doSyncReq(req, &ret)

	return ret, err
}

// PullResp is the response of the pull operation
type PullResp struct {
	Notes []EncryptedNote `json:"notes"`
	// Deletions are ids tombstoned on other devices since last_sync_time
	Deletions []DeletionPayload `json:"deletions"`
}

// Pull downloads notes and deletions changed remotely since the given
// watermark. A zero watermark pulls everything.
func (c *Client) Pull(lastSync time.Time) (PullResp, error) {
	var ret PullResp

	req := syncRequest{Operation: "pull"}
	if !lastSync.IsZero() {
		req.LastSync = &lastSync
	}

	err := c.doSyncReq(req, &ret)

	return ret, err
}

// ResolveConflict tells the backend which side won a conflict. The winner
// note carries the surviving encrypted fields.
func (c *Client) ResolveConflict(noteID, resolution string, winner EncryptedNote) error {
	return c.doSyncReq(syncRequest{
		Operation:  "resolve_conflict",
		NoteID:     noteID,
		Resolution: resolution,
		Winner:     &winner,
	}, nil)
}

// PushVersions uploads version snapshots for premium accounts
func (c *Client) PushVersions(noteID string, versions []EncryptedNote) error {
	return c.doSyncReq(syncRequest{
		Operation: "sync_versions",
		NoteID:    noteID,
		Notes:     versions,
	}, nil)
}
