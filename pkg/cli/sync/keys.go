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
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/g1mliii/urlnotes/pkg/cli/consts"
	"github.com/g1mliii/urlnotes/pkg/cli/crypt"
	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/g1mliii/urlnotes/pkg/cli/session"
	"github.com/g1mliii/urlnotes/pkg/clock"
	"github.com/pkg/errors"
)

// ErrKeyUnavailable is returned when the encryption key cannot be derived
// from the local state
var ErrKeyUnavailable = errors.New("encryption key unavailable")

// keyCacheTTL bounds how long a derived key is reused before rederivation
const keyCacheTTL = time.Hour

// loadKey returns the account encryption key. The derived key is cached in
// the system table to skip the PBKDF2 cost on every pass; the cache never
// outlives the session.
func loadKey(db *database.DB, s session.Session, c clock.Clock) ([]byte, error) {
	if !s.Valid() {
		return nil, ErrKeyUnavailable
	}

	var cached string
	var cachedAt int64
	if err := database.GetSystem(db, consts.SystemKeyCache, &cached); err != nil {
		return nil, errors.Wrap(err, "reading key cache")
	}
	if err := database.GetSystem(db, consts.SystemKeyCachedAt, &cachedAt); err != nil {
		return nil, errors.Wrap(err, "reading key cache timestamp")
	}

	now := c.Now()
	if cached != "" && now.UnixNano()-cachedAt < int64(keyCacheTTL) {
		key, err := hex.DecodeString(cached)
		if err == nil && len(key) == crypt.KeyLen {
			return key, nil
		}
		// fall through and rederive on a corrupt cache
	}

	salt, err := loadSalt(db)
	if err != nil {
		return nil, err
	}

	key, err := crypt.DeriveKey(s.UserID, s.Email, salt)
	if err != nil {
		return nil, errors.Wrap(ErrKeyUnavailable, err.Error())
	}

	if err := cacheKey(db, key, now); err != nil {
		return nil, err
	}

	return key, nil
}

// PrimeKeyCache derives and caches the account key so the first sync pass
// skips the PBKDF2 cost
func PrimeKeyCache(db *database.DB, s session.Session, c clock.Clock) error {
	_, err := loadKey(db, s, c)
	return err
}

// loadSalt reads the stored key derivation salt. ErrKeyUnavailable when no
// salt has been stored yet.
func loadSalt(db *database.DB) ([]byte, error) {
	var encoded string
	if err := database.GetSystem(db, consts.SystemEncryptionSalt, &encoded); err != nil {
		return nil, errors.Wrap(err, "reading salt")
	}
	if encoded == "" {
		return nil, ErrKeyUnavailable
	}

	salt, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "decoding salt")
	}

	return salt, nil
}

func cacheKey(db *database.DB, key []byte, now time.Time) error {
	return db.InTransaction(func(tx *database.DB) error {
		if err := database.UpdateSystem(tx, consts.SystemKeyCache, hex.EncodeToString(key)); err != nil {
			return errors.Wrap(err, "caching key")
		}
		if err := database.UpdateSystem(tx, consts.SystemKeyCachedAt, now.UnixNano()); err != nil {
			return errors.Wrap(err, "stamping key cache")
		}

		return nil
	})
}

// StoreSalt persists the key derivation salt and drops any cached key
// derived from the previous salt
func StoreSalt(db *database.DB, salt []byte) error {
	return db.InTransaction(func(tx *database.DB) error {
		if err := database.UpdateSystem(tx, consts.SystemEncryptionSalt, base64.StdEncoding.EncodeToString(salt)); err != nil {
			return errors.Wrap(err, "storing salt")
		}
		if err := database.DeleteSystem(tx, consts.SystemKeyCache); err != nil {
			return errors.Wrap(err, "dropping key cache")
		}
		if err := database.DeleteSystem(tx, consts.SystemKeyCachedAt); err != nil {
			return errors.Wrap(err, "dropping key cache timestamp")
		}

		return nil
	})
}
