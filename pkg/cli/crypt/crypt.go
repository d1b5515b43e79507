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

// Package crypt performs key derivation and authenticated encryption of
// note fields at the sync boundary. The backend only ever sees the output
// of EncryptField.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeyLen is the length of the derived symmetric key in bytes
	KeyLen = 32
	// KDFIterations is the PBKDF2 iteration count
	KDFIterations = 100000
	// SaltLen is the length of the per-user key derivation salt in bytes
	SaltLen = 16
)

// ErrKeyDerivation is an error for failing to derive an encryption key
var ErrKeyDerivation = errors.New("unable to derive encryption key")

// ErrDecryption is an error for failing to decrypt a field. Callers must not
// fall back to treating the ciphertext as plaintext.
var ErrDecryption = errors.New("unable to decrypt field")

// DeriveKey derives a 256-bit symmetric key from the user's stable identity
// material and a per-user random salt using PBKDF2 with SHA-256.
func DeriveKey(userID, email string, salt []byte) ([]byte, error) {
	if userID == "" || email == "" {
		return nil, errors.Wrap(ErrKeyDerivation, "missing identity material")
	}
	if len(salt) == 0 {
		return nil, errors.Wrap(ErrKeyDerivation, "missing salt")
	}

	material := userID + ":" + email

	return pbkdf2.Key([]byte(material), salt, KDFIterations, KeyLen, sha256.New), nil
}

// GenerateSalt returns a new random key derivation salt
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Wrap(err, "generating salt")
	}

	return salt, nil
}

// EncryptField encrypts a plaintext field with AES-256-GCM under the given key.
// A fresh random 96-bit nonce is generated per call and prepended to the
// ciphertext. The result is base64 encoded for transport.
func EncryptField(plaintext string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "generating nonce")
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptField decrypts a blob produced by EncryptField. It returns
// ErrDecryption on tag mismatch, truncation, or corruption.
func DecryptField(blob string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", errors.Wrap(ErrDecryption, "decoding ciphertext")
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.Wrap(ErrDecryption, "ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(ErrDecryption, "opening ciphertext")
	}

	return string(plaintext), nil
}

// ContentHash computes a deterministic hex digest over a note's title,
// content, and tags. It is used for tamper evidence and as a cheap equality
// check during conflict detection.
func ContentHash(title, content string, tags []string) string {
	composite := title + "\x00" + content + "\x00" + strings.Join(tags, "\x1f")
	sum := sha256.Sum256([]byte(composite))

	return hex.EncodeToString(sum[:])
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLen {
		return nil, errors.Errorf("key must be %d bytes", KeyLen)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "creating cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCM")
	}

	return gcm, nil
}
