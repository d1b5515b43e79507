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

// Package session persists the signed-in user's tokens and identity in the
// local database.
package session

import (
	"time"

	"github.com/g1mliii/urlnotes/pkg/cli/consts"
	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Session is the locally persisted authentication state
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	UserID       string
	Email        string
}

// Valid returns true if the session carries tokens
func (s Session) Valid() bool {
	return s.AccessToken != "" && s.UserID != ""
}

// ExpiresWithin returns true if the access token expires within the given
// window of now, or has already expired
func (s Session) ExpiresWithin(now time.Time, window time.Duration) bool {
	return s.ExpiresAt <= now.Add(window).Unix()
}

// FromToken builds a session from a token pair by introspecting the access
// token's claims. The signature is not verified locally; the backend is the
// authority on token validity.
func FromToken(accessToken, refreshToken string) (Session, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}

	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return Session{}, errors.Wrap(err, "parsing access token")
	}

	ret := Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}

	if sub, err := claims.GetSubject(); err == nil {
		ret.UserID = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		ret.ExpiresAt = exp.Unix()
	}
	if email, ok := claims["email"].(string); ok {
		ret.Email = email
	}

	if ret.UserID == "" {
		return Session{}, errors.New("access token carries no subject")
	}

	return ret, nil
}

// Load reads the session from the system table. A missing session returns
// a zero value with no error.
func Load(db *database.DB) (Session, error) {
	var ret Session

	if err := database.GetSystem(db, consts.SystemSessionAccessToken, &ret.AccessToken); err != nil {
		return Session{}, errors.Wrap(err, "reading access token")
	}
	if err := database.GetSystem(db, consts.SystemSessionRefreshToken, &ret.RefreshToken); err != nil {
		return Session{}, errors.Wrap(err, "reading refresh token")
	}
	if err := database.GetSystem(db, consts.SystemSessionExpiry, &ret.ExpiresAt); err != nil {
		return Session{}, errors.Wrap(err, "reading session expiry")
	}
	if err := database.GetSystem(db, consts.SystemSessionUserID, &ret.UserID); err != nil {
		return Session{}, errors.Wrap(err, "reading user id")
	}
	if err := database.GetSystem(db, consts.SystemSessionEmail, &ret.Email); err != nil {
		return Session{}, errors.Wrap(err, "reading user email")
	}

	return ret, nil
}

// Save persists the session to the system table in one transaction
func Save(db *database.DB, s Session) error {
	return db.InTransaction(func(tx *database.DB) error {
		if err := database.UpdateSystem(tx, consts.SystemSessionAccessToken, s.AccessToken); err != nil {
			return errors.Wrap(err, "saving access token")
		}
		if err := database.UpdateSystem(tx, consts.SystemSessionRefreshToken, s.RefreshToken); err != nil {
			return errors.Wrap(err, "saving refresh token")
		}
		if err := database.UpdateSystem(tx, consts.SystemSessionExpiry, s.ExpiresAt); err != nil {
			return errors.Wrap(err, "saving session expiry")
		}
		if err := database.UpdateSystem(tx, consts.SystemSessionUserID, s.UserID); err != nil {
			return errors.Wrap(err, "saving user id")
		}
		if err := database.UpdateSystem(tx, consts.SystemSessionEmail, s.Email); err != nil {
			return errors.Wrap(err, "saving user email")
		}

		return nil
	})
}

// Clear removes the session and the cached key material from the system
// table. Notes and the key derivation salt stay on disk.
func Clear(db *database.DB) error {
	return db.InTransaction(func(tx *database.DB) error {
		for _, key := range []string{
			consts.SystemSessionAccessToken,
			consts.SystemSessionRefreshToken,
			consts.SystemSessionExpiry,
			consts.SystemSessionUserID,
			consts.SystemSessionEmail,
			consts.SystemKeyCache,
			consts.SystemKeyCachedAt,
		} {
			if err := database.DeleteSystem(tx, key); err != nil {
				return errors.Wrapf(err, "clearing %s", key)
			}
		}

		return nil
	})
}
