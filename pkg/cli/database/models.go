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

package database

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Note represents a note attached to a URL. Timestamps are unix nanoseconds.
type Note struct {
	UUID        string   `json:"id"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	URL         string   `json:"url"`
	Domain      string   `json:"domain"`
	Tags        []string `json:"tags"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
	Version     int      `json:"version"`
	Deleted     bool     `json:"is_deleted"`
	DeletedAt   int64    `json:"deleted_at"`
	SyncPending bool     `json:"sync_pending"`
	ContentHash string   `json:"content_hash"`
}

// VersionSnapshot is an immutable point-in-time copy of a note's content
type VersionSnapshot struct {
	ID        int64  `json:"id"`
	NoteUUID  string `json:"note_uuid"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Version   int    `json:"version"`
	CreatedAt int64  `json:"created_at"`
}

// DeletionRecord tracks a deletion that must propagate to the backend. It is
// independent of the note row so the tombstone can be purged locally without
// losing the pending deletion.
type DeletionRecord struct {
	NoteUUID  string `json:"note_uuid"`
	DeletedAt int64  `json:"deleted_at"`
	Synced    bool   `json:"synced"`
}

// Insert inserts a new note
func (n Note) Insert(db *DB) error {
	tags, err := marshalTags(n.Tags)
	if err != nil {
		return err
	}

	_, err = db.Exec(`INSERT INTO notes
		(uuid, title, content, url, domain, tags, created_at, updated_at, version, deleted, deleted_at, sync_pending, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.UUID, n.Title, n.Content, n.URL, n.Domain, tags, n.CreatedAt, n.UpdatedAt, n.Version, n.Deleted, n.DeletedAt, n.SyncPending, n.ContentHash)
	if err != nil {
		return errors.Wrapf(err, "inserting note with uuid %s", n.UUID)
	}

	return nil
}

// Update updates the note with the given data
func (n Note) Update(db *DB) error {
	tags, err := marshalTags(n.Tags)
	if err != nil {
		return err
	}

	_, err = db.Exec(`UPDATE notes SET
		title = ?, content = ?, url = ?, domain = ?, tags = ?, created_at = ?, updated_at = ?, version = ?, deleted = ?, deleted_at = ?, sync_pending = ?, content_hash = ?
		WHERE uuid = ?`,
		n.Title, n.Content, n.URL, n.Domain, tags, n.CreatedAt, n.UpdatedAt, n.Version, n.Deleted, n.DeletedAt, n.SyncPending, n.ContentHash, n.UUID)
	if err != nil {
		return errors.Wrapf(err, "updating the note with uuid %s", n.UUID)
	}

	return nil
}

// Expunge hard-deletes the note, its snapshots, and its index entries. The
// deletion record survives so a pending deletion still propagates.
func (n Note) Expunge(db *DB) error {
	if _, err := db.Exec("DELETE FROM note_versions WHERE note_uuid = ?", n.UUID); err != nil {
		return errors.Wrapf(err, "expunging versions of note %s", n.UUID)
	}
	if _, err := db.Exec("DELETE FROM note_index WHERE note_uuid = ?", n.UUID); err != nil {
		return errors.Wrapf(err, "expunging index entries of note %s", n.UUID)
	}
	if _, err := db.Exec("DELETE FROM notes WHERE uuid = ?", n.UUID); err != nil {
		return errors.Wrapf(err, "expunging note %s", n.UUID)
	}

	return nil
}

// Insert inserts a new version snapshot
func (v VersionSnapshot) Insert(db *DB) error {
	_, err := db.Exec("INSERT INTO note_versions (note_uuid, title, content, version, created_at) VALUES (?, ?, ?, ?, ?)",
		v.NoteUUID, v.Title, v.Content, v.Version, v.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "inserting version snapshot for note %s", v.NoteUUID)
	}

	return nil
}

// Upsert inserts or replaces a deletion record
func (r DeletionRecord) Upsert(db *DB) error {
	_, err := db.Exec("INSERT OR REPLACE INTO deletion_records (note_uuid, deleted_at, synced) VALUES (?, ?, ?)",
		r.NoteUUID, r.DeletedAt, r.Synced)
	if err != nil {
		return errors.Wrapf(err, "upserting deletion record for note %s", r.NoteUUID)
	}

	return nil
}

func scanNote(row rowScanner) (Note, error) {
	var n Note
	var tags string

	err := row.Scan(&n.UUID, &n.Title, &n.Content, &n.URL, &n.Domain, &tags, &n.CreatedAt,
		&n.UpdatedAt, &n.Version, &n.Deleted, &n.DeletedAt, &n.SyncPending, &n.ContentHash)
	if err != nil {
		return n, err
	}

	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return n, errors.Wrapf(err, "unmarshalling tags of note %s", n.UUID)
	}

	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const noteColumns = "uuid, title, content, url, domain, tags, created_at, updated_at, version, deleted, deleted_at, sync_pending, content_hash"

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}

	b, err := json.Marshal(tags)
	if err != nil {
		return "", errors.Wrap(err, "marshalling tags")
	}

	return string(b), nil
}
