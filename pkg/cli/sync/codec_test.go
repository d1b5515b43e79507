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
	"time"

	"github.com/g1mliii/urlnotes/pkg/assert"
	"github.com/g1mliii/urlnotes/pkg/cli/crypt"
	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/pkg/errors"
)

func testCodecKey(t *testing.T) []byte {
	t.Helper()

	key, err := crypt.DeriveKey("user-1", "user-1@example.com", []byte("0123456789abcdef"))
	if err != nil {
		t.Fatal(errors.Wrap(err, "deriving key"))
	}

	return key
}

func TestEncryptDecryptNote(t *testing.T) {
	key := testCodecKey(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC).UnixNano()

	n := database.Note{
		UUID:        "6b7e9a40-3f6e-4f0b-a2cb-9b1640a2efaf",
		Title:       "meeting notes",
		Content:     "pagination is 1-based",
		URL:         "https://example.com/docs",
		Domain:      "example.com",
		Tags:        []string{"api", "quirks"},
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     2,
		ContentHash: crypt.ContentHash("meeting notes", "pagination is 1-based", []string{"api", "quirks"}),
	}

	enc, err := encryptNote(n, key)
	if err != nil {
		t.Fatal(errors.Wrap(err, "encrypting note"))
	}

	assert.NotEqual(t, enc.TitleEncrypted, n.Title, "title should not travel in the clear")
	assert.NotEqual(t, enc.ContentEncrypted, n.Content, "content should not travel in the clear")

	got, err := decryptNote(enc, key)
	if err != nil {
		t.Fatal(errors.Wrap(err, "decrypting note"))
	}

	assert.DeepEqual(t, got, n, "roundtripped note mismatch")
}

func TestDecryptNoteRejectsTamperedHash(t *testing.T) {
	key := testCodecKey(t)

	n := database.Note{
		UUID:        "6b7e9a40-3f6e-4f0b-a2cb-9b1640a2efaf",
		Title:       "a",
		Content:     "one",
		CreatedAt:   time.Now().UnixNano(),
		UpdatedAt:   time.Now().UnixNano(),
		Version:     1,
		ContentHash: crypt.ContentHash("a", "one", nil),
	}

	enc, err := encryptNote(n, key)
	if err != nil {
		t.Fatal(errors.Wrap(err, "encrypting note"))
	}
	enc.ContentHash = crypt.ContentHash("a", "something else", nil)

	_, err = decryptNote(enc, key)
	assert.Equal(t, errors.Cause(err), crypt.ErrDecryption, "a hash that does not match the decrypted fields should be rejected")
}

func TestDecryptNoteBackfillsMissingHash(t *testing.T) {
	key := testCodecKey(t)

	n := database.Note{
		UUID:      "6b7e9a40-3f6e-4f0b-a2cb-9b1640a2efaf",
		Title:     "a",
		Content:   "one",
		CreatedAt: time.Now().UnixNano(),
		UpdatedAt: time.Now().UnixNano(),
		Version:   1,
	}

	enc, err := encryptNote(n, key)
	if err != nil {
		t.Fatal(errors.Wrap(err, "encrypting note"))
	}
	enc.ContentHash = ""

	got, err := decryptNote(enc, key)
	if err != nil {
		t.Fatal(errors.Wrap(err, "decrypting note"))
	}
	assert.Equal(t, got.ContentHash, crypt.ContentHash("a", "one", nil), "missing hash should be computed from the decrypted fields")
}
