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

package status

import (
	"time"

	"github.com/g1mliii/urlnotes/pkg/cli/infra"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/g1mliii/urlnotes/pkg/cli/session"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  urlnotes status`

// NewCmd returns a new status command
func NewCmd(app *infra.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show the login and sync state",
		Example: example,
		RunE:    newRun(app),
	}

	return cmd
}

func newRun(app *infra.App) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		s, err := session.Load(app.DB)
		if err != nil {
			return errors.Wrap(err, "loading session")
		}

		if s.Valid() {
			log.Infof("logged in as %s\n", s.Email)
		} else {
			log.Info("not logged in\n")
		}

		st, err := app.Engine.Status()
		if err != nil {
			return errors.Wrap(err, "reading sync status")
		}

		if st.Syncing {
			log.Info("sync pass in progress\n")
		}
		if st.LastSyncAt.IsZero() {
			log.Info("never synced\n")
		} else {
			log.Infof("last synced %s\n", st.LastSyncAt.Format(time.RFC1123))
		}
		if st.ConsecutiveFailures > 0 {
			log.Warnf("%d consecutive sync failures, next attempt after %s\n",
				st.ConsecutiveFailures, st.NextAttemptAt.Format(time.RFC1123))
		}

		if ok, reason := app.Engine.CanSync(); !ok {
			log.Infof("sync unavailable: %s\n", reason)
		}

		return nil
	}
}
