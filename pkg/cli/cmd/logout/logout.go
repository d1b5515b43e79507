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

package logout

import (
	"github.com/g1mliii/urlnotes/pkg/cli/infra"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/g1mliii/urlnotes/pkg/cli/session"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// ErrNotLoggedIn is an error for logging out when not logged in
var ErrNotLoggedIn = errors.New("not logged in")

var example = `
  urlnotes logout`

// NewCmd returns a new logout command
func NewCmd(app *infra.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "logout",
		Short:   "Logout and drop the cached key material",
		Example: example,
		RunE:    newRun(app),
	}

	return cmd
}

// Do performs logout. Notes stay on disk; the session and the cached
// encryption key are removed.
func Do(app *infra.App) error {
	s, err := session.Load(app.DB)
	if err != nil {
		return errors.Wrap(err, "loading session")
	}
	if !s.Valid() {
		return ErrNotLoggedIn
	}

	return session.Clear(app.DB)
}

func newRun(app *infra.App) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		err := Do(app)
		if errors.Cause(err) == ErrNotLoggedIn {
			log.Error("not logged in\n")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "logging out")
		}

		log.Success("logged out\n")
		return nil
	}
}
