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

package add

import (
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/g1mliii/urlnotes/pkg/cli/infra"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var titleFlag string
var contentFlag string
var tagsFlag []string

var example = `
 * Attach a note to a page
 urlnotes add https://example.com/docs -t "API quirks" -c "pagination is 1-based"

 * Send stdin content to a note
 cat findings.txt | urlnotes add https://example.com/docs -t "findings"`

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("Incorrect number of argument")
	}

	return nil
}

// NewCmd returns a new add command
func NewCmd(app *infra.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add <url>",
		Short:   "Add a new note to a URL",
		Aliases: []string{"a", "n", "new"},
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(app),
	}

	f := cmd.Flags()
	f.StringVarP(&titleFlag, "title", "t", "", "The title of the note")
	f.StringVarP(&contentFlag, "content", "c", "", "The content of the note")
	f.StringSliceVar(&tagsFlag, "tags", nil, "Comma separated tags")

	return cmd
}

func getContent() (string, error) {
	if contentFlag != "" {
		return contentFlag, nil
	}

	// check for piped content
	fInfo, _ := os.Stdin.Stat()
	if fInfo.Mode()&os.ModeCharDevice == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", errors.Wrap(err, "reading piped input")
		}
		return strings.TrimSpace(string(b)), nil
	}

	return "", nil
}

func domainOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "parsing url")
	}
	if u.Host == "" {
		return "", errors.New("url carries no host")
	}

	return strings.TrimPrefix(u.Hostname(), "www."), nil
}

func newRun(app *infra.App) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		noteURL := args[0]

		domain, err := domainOf(noteURL)
		if err != nil {
			return errors.Wrap(err, "invalid url")
		}

		content, err := getContent()
		if err != nil {
			return err
		}

		saved, err := app.Store.SaveNote(database.Note{
			Title:   titleFlag,
			Content: content,
			URL:     noteURL,
			Domain:  domain,
			Tags:    tagsFlag,
		})
		if err != nil {
			return errors.Wrap(err, "saving note")
		}

		app.Engine.NoteActivity()

		log.Successf("added a note to %s (%s)\n", domain, saved.UUID)
		return nil
	}
}
