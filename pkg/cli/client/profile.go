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

package client

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// ProfileResp is the user's profile record. The salt seeds key derivation
// and the tier gates premium features.
type ProfileResp struct {
	ID                 string `json:"id"`
	Salt               string `json:"salt"`
	SubscriptionTier   string `json:"subscription_tier"`
	SubscriptionExpiry string `json:"subscription_expires_at"`
}

// GetProfile fetches the signed-in user's profile
func (c *Client) GetProfile(userID string) (ProfileResp, error) {
	var ret ProfileResp

	path := fmt.Sprintf("/rest/v1/profiles?id=eq.%s&select=id,salt,subscription_tier,subscription_expires_at", userID)
	res, err := c.doAuthorizedReq("GET", path, "")
	if err != nil {
		return ret, errors.Wrap(err, "getting profile")
	}

	var rows []ProfileResp
	if err := readBody(res, &rows); err != nil {
		return ret, err
	}
	if len(rows) == 0 {
		return ret, errors.New("no profile found")
	}

	return rows[0], nil
}

// UpdateProfileSalt stores a newly generated key derivation salt on the
// profile. Done once, on first sign-in from any device.
func (c *Client) UpdateProfileSalt(userID, salt string) error {
	payload, err := json.Marshal(map[string]string{
		"salt": salt,
	})
	if err != nil {
		return errors.Wrap(err, "marshalling salt")
	}

	path := fmt.Sprintf("/rest/v1/profiles?id=eq.%s", userID)
	res, err := c.doAuthorizedReq("PATCH", path, string(payload))
	if err != nil {
		return errors.Wrap(err, "updating profile salt")
	}
	res.Body.Close()

	return nil
}
