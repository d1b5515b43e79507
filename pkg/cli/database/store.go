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
	"database/sql"
	"strings"
	"time"
	"unicode"

	"github.com/g1mliii/urlnotes/pkg/cli/consts"
	"github.com/g1mliii/urlnotes/pkg/cli/crypt"
	"github.com/g1mliii/urlnotes/pkg/cli/event"
	"github.com/g1mliii/urlnotes/pkg/cli/utils"
	"github.com/g1mliii/urlnotes/pkg/clock"
	"github.com/pkg/errors"
)

// ErrNotFound is an error for a note that does not exist
var ErrNotFound = errors.New("note not found")

// ErrStaleVersion is an error for accepting a note whose version is not newer
// than the stored one
var ErrStaleVersion = errors.New("stale note version")

// ErrPremiumRequired is an error for a feature that requires an active paid entitlement
var ErrPremiumRequired = errors.New("premium subscription required")

// tombstoneRetention is how long a synced tombstone is kept before physical purge
const tombstoneRetention = 24 * time.Hour

// Store is the single source of truth for persisted note state. Every
// mutating operation runs in one transaction spanning its related record
// types.
type Store struct {
	db           *DB
	clock        clock.Clock
	bus          *event.Bus
	maxSnapshots int
}

// NewStore creates a store backed by the given database
func NewStore(db *DB, c clock.Clock, bus *event.Bus, maxSnapshots int) *Store {
	return &Store{
		db:           db,
		clock:        c,
		bus:          bus,
		maxSnapshots: maxSnapshots,
	}
}

// DB exposes the underlying database for system state access
func (s *Store) DB() *DB {
	return s.db
}

// SaveNote persists a local edit. It assigns a uuid when blank, increments
// the version, stamps updated_at, snapshots the previous content when the
// content actually changed, rebuilds the search index, and marks the note
// sync_pending.
func (s *Store) SaveNote(n Note) (Note, error) {
	now := s.clock.Now().UnixNano()

	if n.UUID == "" {
		uuid, err := utils.GenerateUUID()
		if err != nil {
			return Note{}, errors.Wrap(err, "generating note uuid")
		}
		n.UUID = uuid
	}

	err := s.db.InTransaction(func(tx *DB) error {
		existing, err := getNote(tx, n.UUID)
		if err != nil && errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "getting existing note")
		}

		n.ContentHash = crypt.ContentHash(n.Title, n.Content, n.Tags)
		n.UpdatedAt = now
		n.SyncPending = true
		n.Deleted = false
		n.DeletedAt = 0

		if errors.Cause(err) == ErrNotFound {
			n.Version = 1
			if n.CreatedAt == 0 {
				n.CreatedAt = now
			}

			if err := n.Insert(tx); err != nil {
				return errors.Wrap(err, "inserting note")
			}
		} else {
			n.Version = existing.Version + 1
			n.CreatedAt = existing.CreatedAt

			// snapshot the previous content only on a real content change,
			// not on metadata-only touches
			if existing.ContentHash != n.ContentHash {
				snapshot := VersionSnapshot{
					NoteUUID:  existing.UUID,
					Title:     existing.Title,
					Content:   existing.Content,
					Version:   existing.Version,
					CreatedAt: now,
				}
				if err := snapshot.Insert(tx); err != nil {
					return errors.Wrap(err, "snapshotting previous version")
				}
				if err := pruneVersions(tx, n.UUID, s.maxSnapshots); err != nil {
					return errors.Wrap(err, "pruning old versions")
				}
			}

			if err := n.Update(tx); err != nil {
				return errors.Wrap(err, "updating note")
			}
		}

		if err := indexNote(tx, n); err != nil {
			return errors.Wrap(err, "indexing note")
		}

		return nil
	})
	if err != nil {
		return Note{}, err
	}

	s.bus.Publish(event.NotesUpdated{NoteUUID: n.UUID})

	return n, nil
}

// ApplyRemote accepts a note from the backend. Unless authoritative, a
// version lower than or equal to the stored one is rejected with
// ErrStaleVersion. The note is stored as given and is not marked
// sync_pending.
func (s *Store) ApplyRemote(n Note, authoritative bool) error {
	err := s.db.InTransaction(func(tx *DB) error {
		existing, err := getNote(tx, n.UUID)
		if err != nil && errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "getting existing note")
		}

		n.SyncPending = false

		if errors.Cause(err) == ErrNotFound {
			if err := n.Insert(tx); err != nil {
				return errors.Wrap(err, "inserting remote note")
			}
		} else {
			if !authoritative && n.Version <= existing.Version {
				return errors.Wrapf(ErrStaleVersion, "stored %d, incoming %d", existing.Version, n.Version)
			}

			if !n.Deleted && existing.ContentHash != n.ContentHash && existing.Content != "" {
				snapshot := VersionSnapshot{
					NoteUUID:  existing.UUID,
					Title:     existing.Title,
					Content:   existing.Content,
					Version:   existing.Version,
					CreatedAt: s.clock.Now().UnixNano(),
				}
				if err := snapshot.Insert(tx); err != nil {
					return errors.Wrap(err, "snapshotting previous version")
				}
				if err := pruneVersions(tx, n.UUID, s.maxSnapshots); err != nil {
					return errors.Wrap(err, "pruning old versions")
				}
			}

			if err := n.Update(tx); err != nil {
				return errors.Wrap(err, "updating note from remote")
			}
		}

		return indexNote(tx, n)
	})
	if err != nil {
		return err
	}

	s.bus.Publish(event.NotesUpdated{NoteUUID: n.UUID})

	return nil
}

// GetNote returns the note with the given uuid. Tombstones are visible here
// so the sync engine can reconcile against them.
func (s *Store) GetNote(uuid string) (Note, error) {
	return getNote(s.db, uuid)
}

// GetNotesByURL returns non-deleted notes attached to the given URL
func (s *Store) GetNotesByURL(url string) ([]Note, error) {
	return queryNotes(s.db, "SELECT "+noteColumns+" FROM notes WHERE url = ? AND NOT deleted ORDER BY updated_at DESC", url)
}

// GetNotesByDomain returns non-deleted notes attached to the given domain
func (s *Store) GetNotesByDomain(domain string) ([]Note, error) {
	return queryNotes(s.db, "SELECT "+noteColumns+" FROM notes WHERE domain = ? AND NOT deleted ORDER BY updated_at DESC", domain)
}

// SearchNotes returns non-deleted notes whose title or content contains the
// given word, using the word index.
func (s *Store) SearchNotes(term string) ([]Note, error) {
	word := strings.ToLower(strings.TrimSpace(term))
	if word == "" {
		return nil, nil
	}

	return queryNotes(s.db, `SELECT `+noteColumns+` FROM notes
		WHERE NOT deleted AND uuid IN (SELECT note_uuid FROM note_index WHERE word = ?)
		ORDER BY updated_at DESC`, word)
}

// DeleteNote soft-deletes the note and records the deletion for propagation,
// in one transaction
func (s *Store) DeleteNote(uuid string) error {
	now := s.clock.Now().UnixNano()

	err := s.db.InTransaction(func(tx *DB) error {
		n, err := getNote(tx, uuid)
		if err != nil {
			return err
		}

		n.Deleted = true
		n.DeletedAt = now
		n.UpdatedAt = now
		n.SyncPending = true

		if err := n.Update(tx); err != nil {
			return errors.Wrap(err, "soft-deleting note")
		}

		if _, err := tx.Exec("DELETE FROM note_index WHERE note_uuid = ?", uuid); err != nil {
			return errors.Wrap(err, "removing index entries")
		}

		record := DeletionRecord{NoteUUID: uuid, DeletedAt: now, Synced: false}
		if err := record.Upsert(tx); err != nil {
			return errors.Wrap(err, "recording deletion")
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.bus.Publish(event.NotesUpdated{NoteUUID: uuid})

	return nil
}

// GetNotesForSync returns notes with pending local state: sync_pending or
// modified after the given watermark
func (s *Store) GetNotesForSync(lastSync int64) ([]Note, error) {
	return queryNotes(s.db, "SELECT "+noteColumns+" FROM notes WHERE sync_pending OR updated_at > ?", lastSync)
}

// MarkNotesSynced clears the sync_pending flag for the given notes
func (s *Store) MarkNotesSynced(uuids []string) error {
	return s.db.InTransaction(func(tx *DB) error {
		for _, uuid := range uuids {
			if _, err := tx.Exec("UPDATE notes SET sync_pending = ? WHERE uuid = ?", false, uuid); err != nil {
				return errors.Wrapf(err, "clearing sync_pending for note %s", uuid)
			}
		}

		return nil
	})
}

// GetUnsyncedDeletions returns deletion records not yet acknowledged by the backend
func (s *Store) GetUnsyncedDeletions() ([]DeletionRecord, error) {
	rows, err := s.db.Query("SELECT note_uuid, deleted_at, synced FROM deletion_records WHERE NOT synced")
	if err != nil {
		return nil, errors.Wrap(err, "querying unsynced deletions")
	}
	defer rows.Close()

	var ret []DeletionRecord
	for rows.Next() {
		var r DeletionRecord
		if err := rows.Scan(&r.NoteUUID, &r.DeletedAt, &r.Synced); err != nil {
			return nil, errors.Wrap(err, "scanning deletion record")
		}
		ret = append(ret, r)
	}

	return ret, rows.Err()
}

// MarkDeletionsSynced marks the deletions of the given notes as acknowledged
func (s *Store) MarkDeletionsSynced(uuids []string) error {
	return s.db.InTransaction(func(tx *DB) error {
		for _, uuid := range uuids {
			if _, err := tx.Exec("UPDATE deletion_records SET synced = ? WHERE note_uuid = ?", true, uuid); err != nil {
				return errors.Wrapf(err, "marking deletion synced for note %s", uuid)
			}
		}

		return nil
	})
}

// CleanupSyncedDeletedNotes purges tombstones that have been acknowledged by
// the backend and are older than the retention window. It returns the number
// of purged notes.
func (s *Store) CleanupSyncedDeletedNotes() (int, error) {
	cutoff := s.clock.Now().Add(-tombstoneRetention).UnixNano()

	var purged int
	err := s.db.InTransaction(func(tx *DB) error {
		notes, err := queryNotes(tx, "SELECT "+noteColumns+` FROM notes
			WHERE deleted AND NOT sync_pending AND deleted_at <= ?
			AND uuid IN (SELECT note_uuid FROM deletion_records WHERE synced)`, cutoff)
		if err != nil {
			return errors.Wrap(err, "querying purgeable tombstones")
		}

		for _, n := range notes {
			if err := n.Expunge(tx); err != nil {
				return err
			}
		}
		purged = len(notes)

		if _, err := tx.Exec("DELETE FROM deletion_records WHERE synced AND deleted_at <= ? AND note_uuid NOT IN (SELECT uuid FROM notes)", cutoff); err != nil {
			return errors.Wrap(err, "removing settled deletion records")
		}

		return nil
	})

	return purged, err
}

// CountVersions returns the number of version snapshots kept for a note.
// The count is visible regardless of entitlement.
func (s *Store) CountVersions(noteUUID string) (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT count(*) FROM note_versions WHERE note_uuid = ?", noteUUID).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "counting versions for note %s", noteUUID)
	}

	return count, nil
}

// GetVersionHistory returns the most recent version snapshots for a note.
// The snapshot content requires an active premium entitlement.
func (s *Store) GetVersionHistory(noteUUID string, limit int) ([]VersionSnapshot, error) {
	var tier string
	if err := GetSystem(s.db, consts.SystemTierCache, &tier); err != nil {
		return nil, errors.Wrap(err, "reading entitlement tier")
	}
	if tier != consts.TierPremium {
		return nil, ErrPremiumRequired
	}

	if limit <= 0 {
		limit = s.maxSnapshots
	}

	rows, err := s.db.Query(`SELECT id, note_uuid, title, content, version, created_at FROM note_versions
		WHERE note_uuid = ? ORDER BY version DESC LIMIT ?`, noteUUID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "querying versions for note %s", noteUUID)
	}
	defer rows.Close()

	var ret []VersionSnapshot
	for rows.Next() {
		var v VersionSnapshot
		if err := rows.Scan(&v.ID, &v.NoteUUID, &v.Title, &v.Content, &v.Version, &v.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning version snapshot")
		}
		ret = append(ret, v)
	}

	return ret, rows.Err()
}

// CleanupOldVersions prunes snapshots of a note beyond the given cap
func (s *Store) CleanupOldVersions(noteUUID string, max int) error {
	return s.db.InTransaction(func(tx *DB) error {
		return pruneVersions(tx, noteUUID, max)
	})
}

// PendingNote is a pulled note that could not be decrypted yet because no key
// was available. It is retried, not discarded.
type PendingNote struct {
	NoteUUID   string
	Payload    string
	ReceivedAt int64
}

// SavePendingNote queues an encrypted payload for a later decryption attempt
func (s *Store) SavePendingNote(noteUUID, payload string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO pending_notes (note_uuid, payload, received_at) VALUES (?, ?, ?)",
		noteUUID, payload, s.clock.Now().UnixNano())
	if err != nil {
		return errors.Wrapf(err, "queueing pending note %s", noteUUID)
	}

	return nil
}

// GetPendingNotes returns queued notes awaiting a decryption retry
func (s *Store) GetPendingNotes() ([]PendingNote, error) {
	rows, err := s.db.Query("SELECT note_uuid, payload, received_at FROM pending_notes")
	if err != nil {
		return nil, errors.Wrap(err, "querying pending notes")
	}
	defer rows.Close()

	var ret []PendingNote
	for rows.Next() {
		var p PendingNote
		if err := rows.Scan(&p.NoteUUID, &p.Payload, &p.ReceivedAt); err != nil {
			return nil, errors.Wrap(err, "scanning pending note")
		}
		ret = append(ret, p)
	}

	return ret, rows.Err()
}

// DeletePendingNote removes a queued note after a successful decryption
func (s *Store) DeletePendingNote(noteUUID string) error {
	if _, err := s.db.Exec("DELETE FROM pending_notes WHERE note_uuid = ?", noteUUID); err != nil {
		return errors.Wrapf(err, "removing pending note %s", noteUUID)
	}

	return nil
}

func getNote(db *DB, uuid string) (Note, error) {
	n, err := scanNote(db.QueryRow("SELECT "+noteColumns+" FROM notes WHERE uuid = ?", uuid))
	if err == sql.ErrNoRows {
		return Note{}, errors.Wrapf(ErrNotFound, "note %s", uuid)
	}
	if err != nil {
		return Note{}, errors.Wrapf(err, "getting note %s", uuid)
	}

	return n, nil
}

func queryNotes(db *DB, query string, args ...interface{}) ([]Note, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying notes")
	}
	defer rows.Close()

	var ret []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning note")
		}
		ret = append(ret, n)
	}

	return ret, rows.Err()
}

func pruneVersions(tx *DB, noteUUID string, max int) error {
	_, err := tx.Exec(`DELETE FROM note_versions WHERE note_uuid = ? AND id NOT IN
		(SELECT id FROM note_versions WHERE note_uuid = ? ORDER BY version DESC LIMIT ?)`,
		noteUUID, noteUUID, max)
	if err != nil {
		return errors.Wrapf(err, "pruning versions for note %s", noteUUID)
	}

	return nil
}

// indexNote rebuilds the word index entries for a note. Tombstones are not indexed.
func indexNote(tx *DB, n Note) error {
	if _, err := tx.Exec("DELETE FROM note_index WHERE note_uuid = ?", n.UUID); err != nil {
		return errors.Wrapf(err, "clearing index entries for note %s", n.UUID)
	}

	if n.Deleted {
		return nil
	}

	for _, word := range tokenize(n.Title + " " + n.Content) {
		if _, err := tx.Exec("INSERT INTO note_index (note_uuid, word) VALUES (?, ?)", n.UUID, word); err != nil {
			return errors.Wrapf(err, "indexing word for note %s", n.UUID)
		}
	}

	return nil
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := map[string]bool{}
	var ret []string
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			ret = append(ret, f)
		}
	}

	return ret
}
