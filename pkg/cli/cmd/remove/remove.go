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

package remove

import (
	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/g1mliii/urlnotes/pkg/cli/infra"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/g1mliii/urlnotes/pkg/cli/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  urlnotes remove 8f4f23b3-54a4-4d67-9e1b-6a2bb17fbe01`

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("Incorrect number of argument")
	}
	if !utils.IsUUID(args[0]) {
		return errors.New("invalid note id")
	}

	return nil
}

// NewCmd returns a new remove command
func NewCmd(app *infra.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <note-id>",
		Short:   "Remove a note",
		Aliases: []string{"rm", "d", "delete"},
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(app),
	}

	return cmd
}

func newRun(app *infra.App) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		err := app.Store.DeleteNote(args[0])
		if errors.Cause(err) == database.ErrNotFound {
			log.Error("note not found\n")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "removing note")
		}

		app.Engine.NoteActivity()

		log.Successf("removed note %s\n", args[0])
		return nil
	}
}
