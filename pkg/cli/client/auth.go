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
	"net/http"

	"github.com/g1mliii/urlnotes/pkg/cli/session"
	"github.com/pkg/errors"
)

// tokenResp is the token grant response
type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func (c *Client) sessionFromTokenResp(resp tokenResp) (session.Session, error) {
	s, err := session.FromToken(resp.AccessToken, resp.RefreshToken)
	if err != nil {
		return session.Session{}, errors.Wrap(err, "building session from token")
	}

	// fall back to expires_in if the token carries no exp claim
	if s.ExpiresAt == 0 && resp.ExpiresIn > 0 {
		s.ExpiresAt = c.clock.Now().Unix() + resp.ExpiresIn
	}

	return s, nil
}

// Signin exchanges the given credentials for a session
func (c *Client) Signin(email, password string) (session.Session, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return session.Session{}, errors.Wrap(err, "marshalling credentials")
	}

	res, err := c.doReq("POST", "/auth/v1/token?grant_type=password", string(payload))
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusBadRequest || httpErr.StatusCode == http.StatusUnauthorized) {
			return session.Session{}, ErrInvalidLogin
		}

		return session.Session{}, errors.Wrap(err, "signing in")
	}

	var resp tokenResp
	if err := readBody(res, &resp); err != nil {
		return session.Session{}, err
	}

	return c.sessionFromTokenResp(resp)
}

// ExchangeCode exchanges a PKCE authorization code for a session. The code
// verifier must be the one that produced the challenge sent when the
// authorization flow started.
func (c *Client) ExchangeCode(code, verifier string) (session.Session, error) {
	payload, err := json.Marshal(map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	})
	if err != nil {
		return session.Session{}, errors.Wrap(err, "marshalling authorization code")
	}

	res, err := c.doReq("POST", "/auth/v1/token?grant_type=pkce", string(payload))
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusBadRequest || httpErr.StatusCode == http.StatusUnauthorized) {
			return session.Session{}, ErrInvalidLogin
		}

		return session.Session{}, errors.Wrap(err, "exchanging authorization code")
	}

	var resp tokenResp
	if err := readBody(res, &resp); err != nil {
		return session.Session{}, err
	}

	return c.sessionFromTokenResp(resp)
}

// refresh exchanges the refresh token for a new token pair
func (c *Client) refresh(refreshToken string) (session.Session, error) {
	payload, err := json.Marshal(map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return session.Session{}, errors.Wrap(err, "marshalling refresh token")
	}

	res, err := c.doReq("POST", "/auth/v1/token?grant_type=refresh_token", string(payload))
	if err != nil {
		return session.Session{}, errors.Wrap(err, "refreshing token")
	}

	var resp tokenResp
	if err := readBody(res, &resp); err != nil {
		return session.Session{}, err
	}

	return c.sessionFromTokenResp(resp)
}

// UserResp is the response of the user info endpoint
type UserResp struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// GetUser returns the signed-in user's identity
func (c *Client) GetUser() (UserResp, error) {
	var ret UserResp

	res, err := c.doAuthorizedReq("GET", "/auth/v1/user", "")
	if err != nil {
		return ret, errors.Wrap(err, "getting user")
	}

	if err := readBody(res, &ret); err != nil {
		return ret, err
	}

	return ret, nil
}

// RequestPasswordReset asks the backend to email a recovery link. Password
// changes are completed on the web, not in the CLI, because a new password
// re-derives the account keys.
func (c *Client) RequestPasswordReset(email string) error {
	payload, err := json.Marshal(map[string]string{
		"email": email,
	})
	if err != nil {
		return errors.Wrap(err, "marshalling email")
	}

	res, err := c.doReq("POST", "/auth/v1/recover", string(payload))
	if err != nil {
		return errors.Wrap(err, "requesting password reset")
	}
	res.Body.Close()

	return nil
}
