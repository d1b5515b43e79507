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

// Package client provides interfaces for interacting with the backend
// and the data structures for responses
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/g1mliii/urlnotes/pkg/cli/session"
	"github.com/g1mliii/urlnotes/pkg/clock"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrInvalidLogin is an error for invalid credentials for login
var ErrInvalidLogin = errors.New("wrong credentials")

// ErrSessionExpired is returned when the session could not be refreshed
var ErrSessionExpired = errors.New("session expired")

// HTTPError represents an HTTP error response from the server
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(`response %d "%s"`, e.StatusCode, e.Message)
}

// IsConflict returns true if the error is a 409 Conflict error
func (e *HTTPError) IsConflict() bool {
	return e.StatusCode == 409
}

const (
	// requestTimeout bounds each request attempt
	requestTimeout = 10 * time.Second

	// maxAttempts is the total number of tries for a retryable request
	maxAttempts = 4
	// backoffBase is the delay before the first retry
	backoffBase = 2 * time.Second
	// backoffCap bounds the delay between retries
	backoffCap = 30 * time.Second

	// refreshWindow is how close to expiry the access token is refreshed
	// ahead of a request
	refreshWindow = time.Minute

	// clientRateLimitPerSecond is the max requests per second the client will make
	clientRateLimitPerSecond = 50
	// clientRateLimitBurst is the burst capacity for rate limiting
	clientRateLimitBurst = 100
)

// rateLimitedTransport wraps an http.RoundTripper with rate limiting
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// NewRateLimitedHTTPClient creates an HTTP client with rate limiting
func NewRateLimitedHTTPClient() *http.Client {
	interval := time.Second / time.Duration(clientRateLimitPerSecond)

	transport := &rateLimitedTransport{
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(rate.Every(interval), clientRateLimitBurst),
	}
	return &http.Client{
		Transport: transport,
	}
}

// Client talks to the backend on behalf of the signed-in user. It refreshes
// the access token when it is about to expire and retries transient failures.
type Client struct {
	apiEndpoint string
	version     string
	hc          *http.Client
	db          *database.DB
	clock       clock.Clock

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

// New returns a client against the given API endpoint. The database holds
// the persisted session.
func New(apiEndpoint, version string, db *database.DB, c clock.Clock) *Client {
	return &Client{
		apiEndpoint: apiEndpoint,
		version:     version,
		hc:          NewRateLimitedHTTPClient(),
		db:          db,
		clock:       c,
		sleep:       time.Sleep,
	}
}

// SetHTTPClient overrides the underlying http client. Used in tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.hc = hc
}

// SetSleep overrides the retry delay function. Used in tests.
func (c *Client) SetSleep(fn func(time.Duration)) {
	c.sleep = fn
}

func (c *Client) newReq(method, path, body, accessToken string) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s%s", c.apiEndpoint, path)
	req, err := http.NewRequest(method, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}

	req.Header.Set("CLI-Version", c.version)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))
	}

	return req, nil
}

// checkRespErr checks if the given http response indicates an error. The
// response body is consumed on error.
func checkRespErr(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "server responded with %d but client could not read the response body", res.StatusCode)
	}

	return &HTTPError{
		StatusCode: res.StatusCode,
		Message:    strings.TrimRight(string(body), "\n"),
	}
}

// retryable reports whether the request should be tried again.
// 429 and 5xx responses and transport errors are transient.
func retryable(res *http.Response, err error) bool {
	if err != nil {
		return true
	}

	return res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500
}

// backoffDelay returns the delay before the given retry, doubling each time
// up to the cap. attempt is zero-based.
func backoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}

	return d
}

// doOnce makes a single attempt, bounded by the request timeout
func (c *Client) doOnce(method, path, body, accessToken string) (*http.Response, error) {
	req, err := c.newReq(method, path, body, accessToken)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	req = req.WithContext(ctx)

	log.Debug("HTTP %s %s\n", method, path)

	res, err := c.hc.Do(req)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "making http request")
	}

	// tie the body's lifetime to the timeout context
	res.Body = &cancelReadCloser{ReadCloser: res.Body, cancel: cancel}

	log.Debug("HTTP %d %s\n", res.StatusCode, res.Status)

	return res, nil
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// doReq makes an unauthenticated request to the given path with retry on
// transient failures
func (c *Client) doReq(method, path, body string) (*http.Response, error) {
	var res *http.Response
	var err error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(backoffDelay(attempt - 1))
		}

		res, err = c.doOnce(method, path, body, "")
		if !retryable(res, err) {
			break
		}
		if res != nil {
			res.Body.Close()
		}
	}
	if err != nil {
		return nil, err
	}

	if err := checkRespErr(res); err != nil {
		res.Body.Close()
		return nil, errors.Wrap(err, "server responded with an error")
	}

	return res, nil
}

// doAuthorizedReq makes a request as the signed-in user. The access token is
// refreshed ahead of the request if it is about to expire, and refreshed and
// replayed exactly once on a 401.
func (c *Client) doAuthorizedReq(method, path, body string) (*http.Response, error) {
	s, err := session.Load(c.db)
	if err != nil {
		return nil, errors.Wrap(err, "loading session")
	}
	if !s.Valid() {
		return nil, errors.New("not logged in")
	}

	if s.ExpiresWithin(c.clock.Now(), refreshWindow) {
		if s, err = c.refreshSession(s); err != nil {
			return nil, err
		}
	}

	res, err := c.attemptAuthorized(method, path, body, s.AccessToken)
	if err != nil {
		return nil, err
	}

	if res.StatusCode == http.StatusUnauthorized {
		res.Body.Close()

		if s, err = c.refreshSession(s); err != nil {
			return nil, err
		}

		res, err = c.attemptAuthorized(method, path, body, s.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	if err := checkRespErr(res); err != nil {
		res.Body.Close()
		return nil, errors.Wrap(err, "server responded with an error")
	}

	return res, nil
}

// attemptAuthorized retries transient failures but leaves 401 handling to
// the caller
func (c *Client) attemptAuthorized(method, path, body, accessToken string) (*http.Response, error) {
	var res *http.Response
	var err error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(backoffDelay(attempt - 1))
		}

		res, err = c.doOnce(method, path, body, accessToken)
		if !retryable(res, err) {
			break
		}
		if res != nil {
			res.Body.Close()
		}
	}
	if err != nil {
		return nil, err
	}

	return res, nil
}

// refreshSession exchanges the refresh token for a new token pair and
// persists it. A failed refresh invalidates the session.
func (c *Client) refreshSession(s session.Session) (session.Session, error) {
	refreshed, err := c.refresh(s.RefreshToken)
	if err != nil {
		return session.Session{}, errors.Wrap(ErrSessionExpired, err.Error())
	}

	if err := session.Save(c.db, refreshed); err != nil {
		return session.Session{}, errors.Wrap(err, "saving refreshed session")
	}

	return refreshed, nil
}

func readBody(res *http.Response, dest interface{}) error {
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "reading the response body")
	}

	if err = json.Unmarshal(body, dest); err != nil {
		return errors.Wrap(err, "unmarshalling the payload")
	}

	return nil
}
