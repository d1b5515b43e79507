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
	"github.com/g1mliii/urlnotes/pkg/cli/consts"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/g1mliii/urlnotes/pkg/cli/utils"
	"github.com/pkg/errors"
)

// migration is a data transformation run once at startup, in order
type migration struct {
	name string
	run  func(tx *DB) error
}

var migrationSequence = []migration{
	{
		name: "backfill-updated-at",
		run:  migrateBackfillUpdatedAt,
	},
	{
		name: "normalize-legacy-ids",
		run:  migrateNormalizeLegacyIDs,
	},
}

// Migrate runs the pending startup migrations. The sequence position is
// tracked in the system table so each migration runs exactly once.
func Migrate(db *DB) error {
	var schema int
	if err := GetSystem(db, consts.SystemSchema, &schema); err != nil {
		return errors.Wrap(err, "reading schema version")
	}

	for i := schema; i < len(migrationSequence); i++ {
		m := migrationSequence[i]
		log.Debug("running migration %s\n", m.name)

		err := db.InTransaction(func(tx *DB) error {
			if err := m.run(tx); err != nil {
				return err
			}

			return UpdateSystem(tx, consts.SystemSchema, i+1)
		})
		if err != nil {
			return errors.Wrapf(err, "running migration %s", m.name)
		}
	}

	return nil
}

// migrateBackfillUpdatedAt populates updated_at on rows that predate the
// column, using created_at
func migrateBackfillUpdatedAt(tx *DB) error {
	_, err := tx.Exec("UPDATE notes SET updated_at = created_at WHERE updated_at = 0")
	if err != nil {
		return errors.Wrap(err, "backfilling updated_at")
	}

	return nil
}

// migrateNormalizeLegacyIDs rewrites legacy non-UUID identifiers to UUIDs.
// The note is flagged sync_pending so it is re-created upstream under the
// new id.
func migrateNormalizeLegacyIDs(tx *DB) error {
	rows, err := tx.Query("SELECT uuid FROM notes")
	if err != nil {
		return errors.Wrap(err, "querying note ids")
	}
	defer rows.Close()

	var legacy []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return errors.Wrap(err, "scanning note id")
		}
		if !utils.IsUUID(id) {
			legacy = append(legacy, id)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterating note ids")
	}

	for _, oldID := range legacy {
		newID, err := utils.GenerateUUID()
		if err != nil {
			return errors.Wrap(err, "generating replacement uuid")
		}

		if _, err := tx.Exec("UPDATE notes SET uuid = ?, sync_pending = ? WHERE uuid = ?", newID, true, oldID); err != nil {
			return errors.Wrapf(err, "rewriting note id %s", oldID)
		}
		if _, err := tx.Exec("UPDATE note_versions SET note_uuid = ? WHERE note_uuid = ?", newID, oldID); err != nil {
			return errors.Wrapf(err, "rewriting version ids for %s", oldID)
		}
		if _, err := tx.Exec("UPDATE note_index SET note_uuid = ? WHERE note_uuid = ?", newID, oldID); err != nil {
			return errors.Wrapf(err, "rewriting index ids for %s", oldID)
		}
		if _, err := tx.Exec("UPDATE deletion_records SET note_uuid = ? WHERE note_uuid = ?", newID, oldID); err != nil {
			return errors.Wrapf(err, "rewriting deletion record ids for %s", oldID)
		}

		log.Debug("normalized legacy note id %s to %s\n", oldID, newID)
	}

	return nil
}
