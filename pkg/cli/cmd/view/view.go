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

package view

import (
	"strings"
	"time"

	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/g1mliii/urlnotes/pkg/cli/infra"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/g1mliii/urlnotes/pkg/cli/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var domainFlag string
var searchFlag string

var example = `
 * View the notes on a page
 urlnotes view https://example.com/docs

 * View a single note
 urlnotes view 8f4f23b3-54a4-4d67-9e1b-6a2bb17fbe01

 * View all notes on a domain
 urlnotes view --domain example.com

 * Full-text search
 urlnotes view --search pagination`

// NewCmd returns a new view command
func NewCmd(app *infra.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "view [url|note-id]",
		Short:   "View notes",
		Aliases: []string{"v", "ls"},
		Example: example,
		RunE:    newRun(app),
	}

	f := cmd.Flags()
	f.StringVar(&domainFlag, "domain", "", "list notes across a domain")
	f.StringVar(&searchFlag, "search", "", "full-text search over titles and contents")

	return cmd
}

func printNote(n database.Note) {
	log.Plainf("%s\n", log.ColorYellow.Sprint(n.UUID))
	if n.Title != "" {
		log.Plainf("title: %s\n", n.Title)
	}
	log.Plainf("url: %s\n", n.URL)
	if len(n.Tags) > 0 {
		log.Plainf("tags: %s\n", strings.Join(n.Tags, ", "))
	}
	log.Plainf("updated: %s\n", time.Unix(0, n.UpdatedAt).Format(time.RFC1123))
	log.Plainf("\n%s\n", n.Content)
}

func printList(notes []database.Note) {
	if len(notes) == 0 {
		log.Info("no notes found\n")
		return
	}

	for _, n := range notes {
		title := n.Title
		if title == "" {
			title = "(untitled)"
		}
		log.Plainf("%s %s %s\n", log.ColorYellow.Sprint(n.UUID), title, log.ColorGray.Sprint(n.URL))
	}
}

func newRun(app *infra.App) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if domainFlag != "" {
			notes, err := app.Store.GetNotesByDomain(domainFlag)
			if err != nil {
				return errors.Wrap(err, "listing notes by domain")
			}
			printList(notes)
			return nil
		}

		if searchFlag != "" {
			notes, err := app.Store.SearchNotes(searchFlag)
			if err != nil {
				return errors.Wrap(err, "searching notes")
			}
			printList(notes)
			return nil
		}

		if len(args) != 1 {
			return errors.New("Incorrect number of argument")
		}

		if utils.IsUUID(args[0]) {
			n, err := app.Store.GetNote(args[0])
			if errors.Cause(err) == database.ErrNotFound {
				log.Error("note not found\n")
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "getting note")
			}
			if n.Deleted {
				log.Error("note not found\n")
				return nil
			}

			printNote(n)
			return nil
		}

		notes, err := app.Store.GetNotesByURL(args[0])
		if err != nil {
			return errors.Wrap(err, "listing notes by url")
		}
		printList(notes)
		return nil
	}
}
