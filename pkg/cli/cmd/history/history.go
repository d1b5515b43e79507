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

package history

import (
	"time"

	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/g1mliii/urlnotes/pkg/cli/infra"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/g1mliii/urlnotes/pkg/cli/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var limitFlag int
var contentFlag bool

var example = `
 * Count the stored versions of a note
 urlnotes history 8f4f23b3-54a4-4d67-9e1b-6a2bb17fbe01

 * Show the stored contents (premium)
 urlnotes history 8f4f23b3-54a4-4d67-9e1b-6a2bb17fbe01 --content`

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("Incorrect number of argument")
	}
	if !utils.IsUUID(args[0]) {
		return errors.New("invalid note id")
	}

	return nil
}

// NewCmd returns a new history command
func NewCmd(app *infra.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history <note-id>",
		Short:   "Show the version history of a note",
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(app),
	}

	f := cmd.Flags()
	f.IntVar(&limitFlag, "limit", 0, "max number of versions to show")
	f.BoolVar(&contentFlag, "content", false, "show snapshot contents")

	return cmd
}

func newRun(app *infra.App) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		noteID := args[0]

		count, err := app.Store.CountVersions(noteID)
		if err != nil {
			return errors.Wrap(err, "counting versions")
		}
		log.Infof("%d stored versions\n", count)

		if !contentFlag {
			return nil
		}

		versions, err := app.Store.GetVersionHistory(noteID, limitFlag)
		if errors.Cause(err) == database.ErrPremiumRequired {
			log.Error("version contents require a premium subscription\n")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "getting version history")
		}

		for _, v := range versions {
			log.Plainf("%s v%d (%s)\n", log.ColorYellow.Sprint(v.NoteUUID), v.Version, time.Unix(0, v.CreatedAt).Format(time.RFC1123))
			if v.Title != "" {
				log.Plainf("title: %s\n", v.Title)
			}
			log.Plainf("%s\n\n", v.Content)
		}

		return nil
	}
}
