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
	"encoding/json"
	"time"

	"github.com/g1mliii/urlnotes/pkg/cli/client"
	"github.com/g1mliii/urlnotes/pkg/cli/crypt"
	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/pkg/errors"
)

// encryptNote converts a local note to its wire form. Each field is an
// independent ciphertext; only routing metadata travels in the clear.
func encryptNote(n database.Note, key []byte) (client.EncryptedNote, error) {
	var ret client.EncryptedNote

	title, err := crypt.EncryptField(n.Title, key)
	if err != nil {
		return ret, errors.Wrap(err, "encrypting title")
	}

	content, err := crypt.EncryptField(n.Content, key)
	if err != nil {
		return ret, errors.Wrap(err, "encrypting content")
	}

	tagsJSON, err := json.Marshal(n.Tags)
	if err != nil {
		return ret, errors.Wrap(err, "marshalling tags")
	}
	tags, err := crypt.EncryptField(string(tagsJSON), key)
	if err != nil {
		return ret, errors.Wrap(err, "encrypting tags")
	}

	ret = client.EncryptedNote{
		ID:               n.UUID,
		TitleEncrypted:   title,
		ContentEncrypted: content,
		TagsEncrypted:    tags,
		URL:              n.URL,
		Domain:           n.Domain,
		ContentHash:      n.ContentHash,
		CreatedAt:        time.Unix(0, n.CreatedAt).UTC(),
		UpdatedAt:        time.Unix(0, n.UpdatedAt).UTC(),
		Version:          n.Version,
		Deleted:          n.Deleted,
	}
	if n.DeletedAt != 0 {
		ret.DeletedAt = time.Unix(0, n.DeletedAt).UTC()
	}

	return ret, nil
}

// decryptNote converts a wire note to its local form. Any decryption
// failure surfaces crypt.ErrDecryption; ciphertext is never passed off as
// plaintext.
func decryptNote(enc client.EncryptedNote, key []byte) (database.Note, error) {
	var ret database.Note

	title, err := crypt.DecryptField(enc.TitleEncrypted, key)
	if err != nil {
		return ret, errors.Wrap(err, "decrypting title")
	}

	content, err := crypt.DecryptField(enc.ContentEncrypted, key)
	if err != nil {
		return ret, errors.Wrap(err, "decrypting content")
	}

	var tags []string
	if enc.TagsEncrypted != "" {
		tagsJSON, err := crypt.DecryptField(enc.TagsEncrypted, key)
		if err != nil {
			return ret, errors.Wrap(err, "decrypting tags")
		}
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return ret, errors.Wrap(err, "unmarshalling tags")
		}
	}

	// the decrypted fields must reproduce the wire hash; notes pushed by
	// older clients carry no hash and get one computed here
	computed := crypt.ContentHash(title, content, tags)
	if enc.ContentHash != "" && enc.ContentHash != computed {
		return ret, errors.Wrap(crypt.ErrDecryption, "content hash mismatch")
	}

	ret = database.Note{
		UUID:        enc.ID,
		Title:       title,
		Content:     content,
		URL:         enc.URL,
		Domain:      enc.Domain,
		Tags:        tags,
		ContentHash: computed,
		CreatedAt:   enc.CreatedAt.UnixNano(),
		UpdatedAt:   enc.UpdatedAt.UnixNano(),
		Version:     enc.Version,
		Deleted:     enc.Deleted,
	}
	if !enc.DeletedAt.IsZero() {
		ret.DeletedAt = enc.DeletedAt.UnixNano()
	}

	return ret, nil
}
