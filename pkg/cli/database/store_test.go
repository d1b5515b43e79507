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
	"testing"
	"time"

	"github.com/g1mliii/urlnotes/pkg/assert"
	"github.com/g1mliii/urlnotes/pkg/cli/consts"
	"github.com/g1mliii/urlnotes/pkg/cli/event"
	"github.com/g1mliii/urlnotes/pkg/clock"
	"github.com/pkg/errors"
)

func newTestStore(t *testing.T) (*Store, *clock.Mock) {
	t.Helper()

	db := InitTestMemoryDB(t)
	c := clock.NewMock()

	return NewStore(db, c, event.NewBus(), 5), c
}

func TestSaveNoteNew(t *testing.T) {
	store, _ := newTestStore(t)

	saved, err := store.SaveNote(Note{
		Title:   "meeting notes",
		Content: "discuss roadmap",
		URL:     "https://example.com/page",
		Domain:  "example.com",
		Tags:    []string{"work"},
	})
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving note"))
	}

	assert.NotEqual(t, saved.UUID, "", "uuid should be assigned")
	assert.Equal(t, saved.Version, 1, "version should start at 1")
	assert.Equal(t, saved.SyncPending, true, "note should be sync_pending")
	assert.NotEqual(t, saved.ContentHash, "", "content hash should be computed")
	assert.NotEqual(t, saved.UpdatedAt, int64(0), "updated_at should be stamped")
}

func TestSaveNoteMonotonicVersion(t *testing.T) {
	store, _ := newTestStore(t)

	saved, err := store.SaveNote(Note{Title: "a", Content: "one"})
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving note"))
	}

	prev := saved.Version
	for i := 0; i < 5; i++ {
		saved.Content = saved.Content + "!"
		saved, err = store.SaveNote(saved)
		if err != nil {
			t.Fatal(errors.Wrap(err, "saving note again"))
		}

		assert.Equalf(t, saved.Version > prev, true, "version should strictly increase")
		prev = saved.Version
	}
}

func TestSaveNoteSnapshotOnContentChange(t *testing.T) {
	store, _ := newTestStore(t)

	saved, err := store.SaveNote(Note{Title: "a", Content: "one"})
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving note"))
	}

	saved.Content = "two"
	saved, err = store.SaveNote(saved)
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving content change"))
	}

	count, err := store.CountVersions(saved.UUID)
	if err != nil {
		t.Fatal(errors.Wrap(err, "counting versions"))
	}
	assert.Equal(t, count, 1, "content change should snapshot the previous version")

	// metadata-only touch: same title/content/tags
	if _, err = store.SaveNote(saved); err != nil {
		t.Fatal(errors.Wrap(err, "saving metadata touch"))
	}

	count, err = store.CountVersions(saved.UUID)
	if err != nil {
		t.Fatal(errors.Wrap(err, "counting versions after touch"))
	}
	assert.Equal(t, count, 1, "metadata-only save should not snapshot")
}

func TestSaveNoteSnapshotCap(t *testing.T) {
	store, _ := newTestStore(t)

	saved, err := store.SaveNote(Note{Title: "a", Content: "v0"})
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving note"))
	}

	for i := 0; i < 10; i++ {
		saved.Content = saved.Content + "."
		saved, err = store.SaveNote(saved)
		if err != nil {
			t.Fatal(errors.Wrap(err, "saving revision"))
		}
	}

	count, err := store.CountVersions(saved.UUID)
	if err != nil {
		t.Fatal(errors.Wrap(err, "counting versions"))
	}
	assert.Equal(t, count, 5, "snapshots should be capped")
}

func TestDeleteNote(t *testing.T) {
	store, _ := newTestStore(t)

	saved, err := store.SaveNote(Note{Title: "a", Content: "one", URL: "https://example.com/x", Domain: "example.com"})
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving note"))
	}

	if err := store.DeleteNote(saved.UUID); err != nil {
		t.Fatal(errors.Wrap(err, "deleting note"))
	}

	got, err := store.GetNote(saved.UUID)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting tombstone"))
	}
	assert.Equal(t, got.Deleted, true, "note should be soft-deleted")
	assert.Equal(t, got.SyncPending, true, "tombstone should be sync_pending")
	assert.NotEqual(t, got.DeletedAt, int64(0), "deleted_at should be stamped")

	byURL, err := store.GetNotesByURL("https://example.com/x")
	if err != nil {
		t.Fatal(errors.Wrap(err, "listing by url"))
	}
	assert.Equal(t, len(byURL), 0, "tombstone should be excluded from url listing")

	deletions, err := store.GetUnsyncedDeletions()
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting unsynced deletions"))
	}
	assert.Equalf(t, len(deletions), 1, "deletion record should exist")
	assert.Equal(t, deletions[0].NoteUUID, saved.UUID, "deletion record note uuid mismatch")
}

func TestGetNotesByDomain(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.SaveNote(Note{Title: "a", Content: "one", Domain: "example.com"}); err != nil {
		t.Fatal(errors.Wrap(err, "saving first note"))
	}
	if _, err := store.SaveNote(Note{Title: "b", Content: "two", Domain: "example.com"}); err != nil {
		t.Fatal(errors.Wrap(err, "saving second note"))
	}
	if _, err := store.SaveNote(Note{Title: "c", Content: "three", Domain: "other.org"}); err != nil {
		t.Fatal(errors.Wrap(err, "saving third note"))
	}

	got, err := store.GetNotesByDomain("example.com")
	if err != nil {
		t.Fatal(errors.Wrap(err, "listing by domain"))
	}
	assert.Equal(t, len(got), 2, "domain listing count mismatch")
}

func TestSearchNotes(t *testing.T) {
	store, _ := newTestStore(t)

	saved, err := store.SaveNote(Note{Title: "Grocery List", Content: "buy apples and oranges"})
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving note"))
	}
	if _, err := store.SaveNote(Note{Title: "other", Content: "nothing here"}); err != nil {
		t.Fatal(errors.Wrap(err, "saving other note"))
	}

	got, err := store.SearchNotes("apples")
	if err != nil {
		t.Fatal(errors.Wrap(err, "searching"))
	}
	assert.Equalf(t, len(got), 1, "search result count mismatch")
	assert.Equal(t, got[0].UUID, saved.UUID, "search result uuid mismatch")

	got, err = store.SearchNotes("GROCERY")
	if err != nil {
		t.Fatal(errors.Wrap(err, "searching case-insensitively"))
	}
	assert.Equal(t, len(got), 1, "search should be case-insensitive")
}

func TestGetNotesForSync(t *testing.T) {
	store, _ := newTestStore(t)

	saved, err := store.SaveNote(Note{Title: "a", Content: "one"})
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving note"))
	}

	pending, err := store.GetNotesForSync(0)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting notes for sync"))
	}
	assert.Equalf(t, len(pending), 1, "pending note count mismatch")

	if err := store.MarkNotesSynced([]string{saved.UUID}); err != nil {
		t.Fatal(errors.Wrap(err, "marking synced"))
	}

	pending, err = store.GetNotesForSync(saved.UpdatedAt)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting notes for sync after ack"))
	}
	assert.Equal(t, len(pending), 0, "no notes should be pending after ack")
}

func TestApplyRemoteStaleVersion(t *testing.T) {
	store, _ := newTestStore(t)

	saved, err := store.SaveNote(Note{Title: "a", Content: "one"})
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving note"))
	}
	saved.Content = "two"
	saved, err = store.SaveNote(saved)
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving revision"))
	}

	stale := saved
	stale.Version = saved.Version
	err = store.ApplyRemote(stale, false)
	assert.Equal(t, errors.Cause(err), ErrStaleVersion, "equal version should be rejected")

	stale.Version = saved.Version - 1
	err = store.ApplyRemote(stale, false)
	assert.Equal(t, errors.Cause(err), ErrStaleVersion, "lower version should be rejected")

	// cloud-authoritative overwrite bypasses the check
	err = store.ApplyRemote(stale, true)
	assert.Equal(t, err, nil, "authoritative overwrite should be accepted")
}

func TestCleanupSyncedDeletedNotes(t *testing.T) {
	store, c := newTestStore(t)

	saved, err := store.SaveNote(Note{Title: "a", Content: "one"})
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving note"))
	}
	if err := store.DeleteNote(saved.UUID); err != nil {
		t.Fatal(errors.Wrap(err, "deleting note"))
	}

	// not yet acknowledged: no purge regardless of age
	c.Advance(48 * time.Hour)
	purged, err := store.CleanupSyncedDeletedNotes()
	if err != nil {
		t.Fatal(errors.Wrap(err, "running cleanup"))
	}
	assert.Equal(t, purged, 0, "unacknowledged tombstone should not be purged")

	if err := store.MarkDeletionsSynced([]string{saved.UUID}); err != nil {
		t.Fatal(errors.Wrap(err, "marking deletion synced"))
	}
	if err := store.MarkNotesSynced([]string{saved.UUID}); err != nil {
		t.Fatal(errors.Wrap(err, "marking note synced"))
	}

	purged, err = store.CleanupSyncedDeletedNotes()
	if err != nil {
		t.Fatal(errors.Wrap(err, "running cleanup after ack"))
	}
	assert.Equal(t, purged, 1, "acknowledged aged tombstone should be purged")

	_, err = store.GetNote(saved.UUID)
	assert.Equal(t, errors.Cause(err), ErrNotFound, "purged note should be gone")
}

func TestCleanupRespectsRetentionWindow(t *testing.T) {
	store, c := newTestStore(t)

	saved, err := store.SaveNote(Note{Title: "a", Content: "one"})
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving note"))
	}
	if err := store.DeleteNote(saved.UUID); err != nil {
		t.Fatal(errors.Wrap(err, "deleting note"))
	}
	if err := store.MarkDeletionsSynced([]string{saved.UUID}); err != nil {
		t.Fatal(errors.Wrap(err, "marking deletion synced"))
	}
	if err := store.MarkNotesSynced([]string{saved.UUID}); err != nil {
		t.Fatal(errors.Wrap(err, "marking note synced"))
	}

	// younger than 24h
	c.Advance(23 * time.Hour)
	purged, err := store.CleanupSyncedDeletedNotes()
	if err != nil {
		t.Fatal(errors.Wrap(err, "running cleanup"))
	}
	assert.Equal(t, purged, 0, "young tombstone should not be purged")

	c.Advance(2 * time.Hour)
	purged, err = store.CleanupSyncedDeletedNotes()
	if err != nil {
		t.Fatal(errors.Wrap(err, "running cleanup past the window"))
	}
	assert.Equal(t, purged, 1, "aged tombstone should be purged")
}

func TestVersionHistoryPremiumGate(t *testing.T) {
	store, _ := newTestStore(t)

	saved, err := store.SaveNote(Note{Title: "a", Content: "one"})
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving note"))
	}
	saved.Content = "two"
	if _, err := store.SaveNote(saved); err != nil {
		t.Fatal(errors.Wrap(err, "saving revision"))
	}

	_, err = store.GetVersionHistory(saved.UUID, 10)
	assert.Equal(t, errors.Cause(err), ErrPremiumRequired, "history content should require premium")

	// count stays visible regardless of tier
	count, err := store.CountVersions(saved.UUID)
	if err != nil {
		t.Fatal(errors.Wrap(err, "counting versions"))
	}
	assert.Equal(t, count, 1, "version count should be visible without premium")

	if err := UpdateSystem(store.DB(), consts.SystemTierCache, consts.TierPremium); err != nil {
		t.Fatal(errors.Wrap(err, "setting premium tier"))
	}

	history, err := store.GetVersionHistory(saved.UUID, 10)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting history"))
	}
	assert.Equalf(t, len(history), 1, "history length mismatch")
	assert.Equal(t, history[0].Content, "one", "history content mismatch")
}

func TestPendingNotes(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.SavePendingNote("n1", `{"id":"n1"}`); err != nil {
		t.Fatal(errors.Wrap(err, "queueing pending note"))
	}

	pending, err := store.GetPendingNotes()
	if err != nil {
		t.Fatal(errors.Wrap(err, "listing pending notes"))
	}
	assert.Equalf(t, len(pending), 1, "pending count mismatch")
	assert.Equal(t, pending[0].NoteUUID, "n1", "pending note uuid mismatch")

	if err := store.DeletePendingNote("n1"); err != nil {
		t.Fatal(errors.Wrap(err, "removing pending note"))
	}

	pending, err = store.GetPendingNotes()
	if err != nil {
		t.Fatal(errors.Wrap(err, "listing pending notes after removal"))
	}
	assert.Equal(t, len(pending), 0, "pending queue should be empty")
}

func TestNotesUpdatedEvent(t *testing.T) {
	db := InitTestMemoryDB(t)
	bus := event.NewBus()
	store := NewStore(db, clock.NewMock(), bus, 5)

	ch, cancel := bus.Subscribe(4)
	defer cancel()

	saved, err := store.SaveNote(Note{Title: "a", Content: "one"})
	if err != nil {
		t.Fatal(errors.Wrap(err, "saving note"))
	}

	select {
	case e := <-ch:
		updated, ok := e.(event.NotesUpdated)
		assert.Equalf(t, ok, true, "event type mismatch")
		assert.Equal(t, updated.NoteUUID, saved.UUID, "event uuid mismatch")
	default:
		t.Fatal("expected a notes updated event")
	}
}
