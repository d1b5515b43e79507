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

// Package consts provides definitions of constants
package consts

var (
	// DirName is the name of the directory containing urlnotes files
	DirName = "urlnotes"
	// DBFileName is a filename for the urlnotes SQLite database
	DBFileName = "urlnotes.db"
	// ConfigFilename is the name of the config file
	ConfigFilename = "config.yaml"

	// SystemSchema is the key for schema in the system table
	SystemSchema = "schema"
	// SystemLastSyncAt is the pass-start timestamp of the last successful sync
	SystemLastSyncAt = "last_sync_time"
	// SystemSessionAccessToken is the access token of the current session
	SystemSessionAccessToken = "session_access_token"
	// SystemSessionRefreshToken is the refresh token of the current session
	SystemSessionRefreshToken = "session_refresh_token"
	// SystemSessionExpiry is the timestamp at which the access token expires
	SystemSessionExpiry = "session_expiry"
	// SystemSessionUserID is the id of the signed-in user
	SystemSessionUserID = "session_user_id"
	// SystemSessionEmail is the email of the signed-in user
	SystemSessionEmail = "session_email"
	// SystemEncryptionSalt is the per-user key derivation salt, base64 encoded
	SystemEncryptionSalt = "encryption_salt"
	// SystemKeyCache is the derived encryption key, hex encoded
	SystemKeyCache = "key_cache"
	// SystemKeyCachedAt is the timestamp at which the key was derived
	SystemKeyCachedAt = "key_cached_at"
	// SystemTierCache is the last known entitlement tier
	SystemTierCache = "tier_cache"
	// SystemTierCachedAt is the timestamp at which the tier was fetched
	SystemTierCachedAt = "tier_cached_at"
)

const (
	// TierPremium is the entitlement tier required for sync and version history
	TierPremium = "premium"
	// TierFree is the default entitlement tier
	TierFree = "free"
)
