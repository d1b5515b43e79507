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

// Package sync reconciles the local store with the backend. A pass pulls
// remote changes, merges them under local priority, then pushes pending
// local changes. The watermark only advances when the whole pass succeeds.
package sync

import (
	"encoding/json"
	gosync "sync"
	"time"

	"github.com/g1mliii/urlnotes/pkg/cli/client"
	"github.com/g1mliii/urlnotes/pkg/cli/consts"
	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/g1mliii/urlnotes/pkg/cli/event"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/g1mliii/urlnotes/pkg/cli/session"
	"github.com/g1mliii/urlnotes/pkg/cli/utils/diff"
	"github.com/g1mliii/urlnotes/pkg/cli/validate"
	"github.com/g1mliii/urlnotes/pkg/clock"
	"github.com/pkg/errors"
)

const (
	// syncBackoffBase is the delay before the first retried pass
	syncBackoffBase = time.Minute
	// syncBackoffCap bounds the delay between retried passes
	syncBackoffCap = 30 * time.Minute

	// tierCacheTTL is how long a fetched entitlement tier is trusted
	tierCacheTTL = 5 * time.Minute
)

// Engine runs sync passes against the backend. At most one pass runs at a
// time; a trigger during a running pass is dropped, not queued.
type Engine struct {
	store  *database.Store
	client *client.Client
	bus    *event.Bus
	clock  clock.Clock

	mu            gosync.Mutex
	syncing       bool
	lastActivity  time.Time
	failures      int
	nextAttemptAt time.Time
}

// Status is a snapshot of the engine state
type Status struct {
	Syncing             bool
	LastSyncAt          time.Time
	LastActivityAt      time.Time
	ConsecutiveFailures int
	NextAttemptAt       time.Time
}

// Stats is the outcome of a successful pass
type Stats struct {
	Pulled    int
	Pushed    int
	Deletions int
	Conflicts int
}

// NewEngine returns a sync engine over the given store and client
func NewEngine(store *database.Store, cl *client.Client, bus *event.Bus, c clock.Clock) *Engine {
	return &Engine{
		store:  store,
		client: cl,
		bus:    bus,
		clock:  c,
	}
}

// NoteActivity records local note activity. It only stamps a timestamp;
// activity never triggers a pass by itself.
func (e *Engine) NoteActivity() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastActivity = e.clock.Now()
}

// Status returns a snapshot of the engine state
func (e *Engine) Status() (Status, error) {
	var lastSync int64
	if err := database.GetSystem(e.store.DB(), consts.SystemLastSyncAt, &lastSync); err != nil {
		return Status{}, errors.Wrap(err, "reading last sync time")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ret := Status{
		Syncing:             e.syncing,
		LastActivityAt:      e.lastActivity,
		ConsecutiveFailures: e.failures,
		NextAttemptAt:       e.nextAttemptAt,
	}
	if lastSync != 0 {
		ret.LastSyncAt = time.Unix(0, lastSync)
	}

	return ret, nil
}

// CanSync reports whether a pass would proceed: a valid session, a
// derivable encryption key, and an active premium entitlement. The session
// and key checks are local; only the entitlement check may contact the
// backend, and only when its cache has gone stale.
func (e *Engine) CanSync() (bool, string) {
	s, err := session.Load(e.store.DB())
	if err != nil || !s.Valid() {
		return false, "not logged in"
	}

	if _, err := loadKey(e.store.DB(), s, e.clock); err != nil {
		return false, "encryption key unavailable"
	}

	tier, err := e.entitlementTier(s)
	if err != nil {
		return false, "entitlement unknown"
	}
	if tier != consts.TierPremium {
		return false, "sync requires premium"
	}

	return true, ""
}

// entitlementTier returns the user's entitlement tier, preferring the
// cached value while it is fresh. A fetch failure falls back to the stale
// cache rather than blocking on the network.
func (e *Engine) entitlementTier(s session.Session) (string, error) {
	db := e.store.DB()

	var tier string
	var cachedAt int64
	if err := database.GetSystem(db, consts.SystemTierCache, &tier); err != nil {
		return "", errors.Wrap(err, "reading tier cache")
	}
	if err := database.GetSystem(db, consts.SystemTierCachedAt, &cachedAt); err != nil {
		return "", errors.Wrap(err, "reading tier cache timestamp")
	}

	now := e.clock.Now()
	if tier != "" && now.UnixNano()-cachedAt < int64(tierCacheTTL) {
		return tier, nil
	}

	profile, err := e.client.GetProfile(s.UserID)
	if err != nil {
		if tier != "" {
			return tier, nil
		}
		return "", errors.Wrap(err, "fetching profile")
	}

	err = db.InTransaction(func(tx *database.DB) error {
		if err := database.UpdateSystem(tx, consts.SystemTierCache, profile.SubscriptionTier); err != nil {
			return errors.Wrap(err, "caching tier")
		}
		return database.UpdateSystem(tx, consts.SystemTierCachedAt, now.UnixNano())
	})
	if err != nil {
		return "", err
	}

	return profile.SubscriptionTier, nil
}

// Sync runs a pass on the timer path. It backs off after failures and is a
// quiet no-op while another pass is running.
func (e *Engine) Sync() error {
	return e.run(false)
}

// ManualSync runs a pass immediately, ignoring the failure backoff
func (e *Engine) ManualSync() error {
	return e.run(true)
}

func (e *Engine) run(manual bool) error {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		log.Debug("sync pass already running, dropping trigger\n")
		return nil
	}
	if !manual && !e.nextAttemptAt.IsZero() && e.clock.Now().Before(e.nextAttemptAt) {
		e.mu.Unlock()
		log.Debug("sync pass backed off until %s\n", e.nextAttemptAt)
		return nil
	}
	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	if ok, reason := e.CanSync(); !ok {
		log.Debug("sync declined: %s\n", reason)
		return nil
	}

	passStart := e.clock.Now()
	e.bus.Publish(event.SyncStarted{At: passStart})

	stats, err := e.pass(passStart)
	if err != nil {
		e.mu.Lock()
		e.failures++
		delay := passBackoff(e.failures)
		e.nextAttemptAt = e.clock.Now().Add(delay)
		e.mu.Unlock()

		e.bus.Publish(event.SyncFailed{At: e.clock.Now(), Err: err})
		return errors.Wrap(err, "running sync pass")
	}

	e.mu.Lock()
	e.failures = 0
	e.nextAttemptAt = time.Time{}
	e.mu.Unlock()

	e.bus.Publish(event.SyncSucceeded{
		At:        e.clock.Now(),
		Pushed:    stats.Pushed,
		Merged:    stats.Pulled,
		Deletions: stats.Deletions,
	})

	return nil
}

// passBackoff doubles with each consecutive failure, up to the cap
func passBackoff(failures int) time.Duration {
	d := syncBackoffBase
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= syncBackoffCap {
			return syncBackoffCap
		}
	}

	return d
}

// pass runs one full pull-merge-push cycle. The watermark advances to
// passStart only when every step succeeds, so anything changed mid-pass is
// revisited by the next one.
func (e *Engine) pass(passStart time.Time) (Stats, error) {
	var stats Stats
	db := e.store.DB()

	s, err := session.Load(db)
	if err != nil {
		return stats, errors.Wrap(err, "loading session")
	}

	key, err := loadKey(db, s, e.clock)
	if err != nil {
		return stats, errors.Wrap(err, "loading key")
	}

	var lastSync int64
	if err := database.GetSystem(db, consts.SystemLastSyncAt, &lastSync); err != nil {
		return stats, errors.Wrap(err, "reading last sync time")
	}

	// ids applied from the remote side are excluded from the push step so a
	// pass does not echo pulled notes back
	applied := map[string]bool{}

	pulled, err := e.pullRemote(key, lastSync, applied)
	if err != nil {
		return stats, err
	}
	stats.Pulled = pulled

	retried, err := e.retryPending(key, lastSync, applied)
	if err != nil {
		return stats, err
	}
	stats.Pulled += retried

	pushed, pushMerged, deletions, conflicts, err := e.pushLocal(key, lastSync, applied)
	if err != nil {
		return stats, err
	}
	stats.Pushed = pushed
	stats.Pulled += pushMerged
	stats.Deletions = deletions
	stats.Conflicts = conflicts

	if err := database.UpdateSystem(db, consts.SystemLastSyncAt, passStart.UnixNano()); err != nil {
		return stats, errors.Wrap(err, "advancing watermark")
	}

	return stats, nil
}

// pullRemote downloads remote changes and merges them into the store.
// Notes that cannot be decrypted yet are queued for retry, never dropped.
func (e *Engine) pullRemote(key []byte, lastSync int64, applied map[string]bool) (int, error) {
	var since time.Time
	if lastSync != 0 {
		since = time.Unix(0, lastSync)
	}

	resp, err := e.client.Pull(since)
	if err != nil {
		return 0, errors.Wrap(err, "pulling remote changes")
	}

	var merged int
	for _, enc := range resp.Notes {
		ok, err := e.mergeEncrypted(enc, key, lastSync, applied)
		if err != nil {
			return merged, err
		}
		if ok {
			merged++
		}
	}

	for _, del := range resp.Deletions {
		ok, err := e.mergeRemote(database.Note{
			UUID:      del.ID,
			Deleted:   true,
			DeletedAt: del.DeletedAt.UnixNano(),
			UpdatedAt: del.DeletedAt.UnixNano(),
		}, lastSync)
		if err != nil {
			return merged, err
		}
		if ok {
			applied[del.ID] = true
			merged++
		}
	}

	return merged, nil
}

// mergeEncrypted decrypts one wire note and reconciles it against the
// local store. A note the key cannot open yet is queued for retry, never
// dropped.
func (e *Engine) mergeEncrypted(enc client.EncryptedNote, key []byte, lastSync int64, applied map[string]bool) (bool, error) {
	remote, err := decryptNote(enc, key)
	if err != nil {
		log.Debug("queueing note %s for key retry: %v\n", enc.ID, err)

		payload, merr := json.Marshal(enc)
		if merr != nil {
			return false, errors.Wrap(merr, "marshalling pending note")
		}
		if err := e.store.SavePendingNote(enc.ID, string(payload)); err != nil {
			return false, err
		}
		return false, nil
	}

	ok, err := e.mergeRemote(remote, lastSync)
	if err != nil {
		return false, err
	}
	if ok {
		applied[remote.UUID] = true
	}

	return ok, nil
}

// mergeRemote reconciles one remote note against the local store. It
// returns true when the remote side was applied.
func (e *Engine) mergeRemote(remote database.Note, lastSync int64) (bool, error) {
	local, err := e.store.GetNote(remote.UUID)
	if errors.Cause(err) == database.ErrNotFound {
		if remote.Deleted {
			// deletion of a note this device never had
			return false, nil
		}
		if err := e.store.ApplyRemote(remote, true); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	switch decide(local, remote, lastSync) {
	case decisionKeepLocal:
		return false, nil

	case decisionApplyRemote:
		if err := e.store.ApplyRemote(remote, true); err != nil {
			return false, err
		}
		return true, nil

	case decisionConflict:
		winner, side := resolveConflict(local, remote)

		e.bus.Publish(event.ConflictDetected{
			NoteUUID: local.UUID,
			Winner:   side,
			Diff:     diff.RenderConflict(local.Content, remote.Content),
		})
		log.Warnf("note %s changed on both sides, keeping the %s copy\n", local.UUID, side)

		if side == "remote" {
			if err := e.store.ApplyRemote(winner, true); err != nil {
				return false, err
			}
			return true, nil
		}

		// the local winner is still sync_pending and travels with the
		// push step of this pass
		return false, nil
	}

	return false, nil
}

// retryPending re-attempts notes that previously failed decryption
func (e *Engine) retryPending(key []byte, lastSync int64, applied map[string]bool) (int, error) {
	pending, err := e.store.GetPendingNotes()
	if err != nil {
		return 0, err
	}

	var merged int
	for _, p := range pending {
		var enc client.EncryptedNote
		if err := json.Unmarshal([]byte(p.Payload), &enc); err != nil {
			return merged, errors.Wrapf(err, "unmarshalling pending note %s", p.NoteUUID)
		}

		remote, err := decryptNote(enc, key)
		if err != nil {
			// still not decryptable, keep it queued
			continue
		}

		ok, err := e.mergeRemote(remote, lastSync)
		if err != nil {
			return merged, err
		}
		if ok {
			applied[remote.UUID] = true
			merged++
		}

		if err := e.store.DeletePendingNote(p.NoteUUID); err != nil {
			return merged, err
		}
	}

	return merged, nil
}

// pushLocal uploads pending local changes and deletions, then settles the
// backend's answer: acknowledgements clear the pending flags, conflicts
// are resolved by last write, and notes this device is missing are merged
// in under the same policy as a pull.
func (e *Engine) pushLocal(key []byte, lastSync int64, applied map[string]bool) (pushed, merged, deletions, conflicts int, err error) {
	notes, err := e.store.GetNotesForSync(lastSync)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	var encrypted []client.EncryptedNote
	var pushedIDs []string
	for _, n := range notes {
		if applied[n.UUID] {
			continue
		}
		if err := validate.CheckNote(n); err != nil {
			log.Warnf("skipping malformed note %s: %v\n", n.UUID, err)
			continue
		}

		enc, err := encryptNote(n, key)
		if err != nil {
			return 0, 0, 0, 0, err
		}
		encrypted = append(encrypted, enc)
		pushedIDs = append(pushedIDs, n.UUID)
	}

	records, err := e.store.GetUnsyncedDeletions()
	if err != nil {
		return 0, 0, 0, 0, err
	}

	var payloads []client.DeletionPayload
	for _, r := range records {
		payloads = append(payloads, client.DeletionPayload{
			ID:        r.NoteUUID,
			DeletedAt: time.Unix(0, r.DeletedAt).UTC(),
		})
	}

	if len(encrypted) == 0 && len(payloads) == 0 {
		return 0, 0, 0, 0, nil
	}

	var watermark time.Time
	if lastSync != 0 {
		watermark = time.Unix(0, lastSync).UTC()
	}
	res, err := e.client.Push(encrypted, payloads, watermark)
	if err != nil {
		return 0, 0, 0, 0, errors.Wrap(err, "pushing local changes")
	}

	conflicted := map[string]bool{}
	for _, c := range res.Conflicts {
		conflicted[c.NoteID] = true
	}

	var acked []string
	for _, id := range pushedIDs {
		if !conflicted[id] {
			acked = append(acked, id)
		}
	}
	if err := e.store.MarkNotesSynced(acked); err != nil {
		return 0, 0, 0, 0, err
	}

	if len(res.ProcessedDeletions) > 0 {
		if err := e.store.MarkDeletionsSynced(res.ProcessedDeletions); err != nil {
			return 0, 0, 0, 0, err
		}
	}

	for _, c := range res.Conflicts {
		if err := e.settleConflict(c, key); err != nil {
			return 0, 0, 0, 0, err
		}
	}

	for _, enc := range res.MissingNotes {
		ok, err := e.mergeEncrypted(enc, key, lastSync, applied)
		if err != nil {
			return 0, 0, 0, 0, err
		}
		if ok {
			merged++
		}
	}

	if err := e.pushVersions(res.AcceptedNotes, key); err != nil {
		return 0, 0, 0, 0, err
	}

	return len(acked), merged, len(res.ProcessedDeletions), len(res.Conflicts), nil
}

// pushVersions uploads the stored snapshots of notes the backend has just
// accepted as new, so version history follows a note across devices
func (e *Engine) pushVersions(noteIDs []string, key []byte) error {
	for _, id := range noteIDs {
		versions, err := e.store.GetVersionHistory(id, 0)
		if errors.Cause(err) == database.ErrPremiumRequired {
			return nil
		}
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			continue
		}

		var encrypted []client.EncryptedNote
		for _, v := range versions {
			enc, err := encryptNote(database.Note{
				UUID:      id,
				Title:     v.Title,
				Content:   v.Content,
				Version:   v.Version,
				CreatedAt: v.CreatedAt,
				UpdatedAt: v.CreatedAt,
			}, key)
			if err != nil {
				return err
			}
			encrypted = append(encrypted, enc)
		}

		if err := e.client.PushVersions(id, encrypted); err != nil {
			return errors.Wrapf(err, "pushing versions for note %s", id)
		}
	}

	return nil
}

// settleConflict resolves a push conflict by last write and tells the
// backend which side survived
func (e *Engine) settleConflict(c client.Conflict, key []byte) error {
	local, err := e.store.GetNote(c.NoteID)
	if err != nil {
		return err
	}

	remote, err := decryptNote(c.RemoteNote, key)
	if err != nil {
		return errors.Wrapf(err, "decrypting conflicting note %s", c.NoteID)
	}

	winner, side := resolveConflict(local, remote)

	e.bus.Publish(event.ConflictDetected{
		NoteUUID: c.NoteID,
		Winner:   side,
		Diff:     diff.RenderConflict(local.Content, remote.Content),
	})
	log.Warnf("note %s conflicted with the backend, keeping the %s copy\n", c.NoteID, side)

	enc, err := encryptNote(winner, key)
	if err != nil {
		return err
	}
	if err := e.client.ResolveConflict(c.NoteID, side, enc); err != nil {
		return err
	}

	if side == "remote" {
		return e.store.ApplyRemote(remote, true)
	}

	// the backend accepted the local copy as the winner
	return e.store.MarkNotesSynced([]string{c.NoteID})
}
