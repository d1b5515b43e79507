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

// Package validate checks notes against structural constraints before they
// are stored or pushed.
package validate

import (
	"fmt"

	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// ErrInvalidNote is returned when a note fails structural validation
var ErrInvalidNote = errors.New("invalid note")

const (
	// MaxTitleLen is the maximum length of a note title
	MaxTitleLen = 500
	// MaxURLLen is the maximum length of a note url
	MaxURLLen = 2048
	// MaxTags is the maximum number of tags on a note
	MaxTags = 32
	// MaxTagLen is the maximum length of a single tag
	MaxTagLen = 100
)

// rules are derived from the exported limits. The id rule accepts any uuid
// version since remote devices may mint ids this client did not.
var (
	idRule    = "required,uuid"
	titleRule = fmt.Sprintf("max=%d", MaxTitleLen)
	urlRule   = fmt.Sprintf("omitempty,max=%d", MaxURLLen)
	tagsRule  = fmt.Sprintf("max=%d,dive,max=%d", MaxTags, MaxTagLen)
)

var v = validator.New()

// CheckNote validates the structural constraints of a note. The returned
// error wraps ErrInvalidNote with the specific violation.
func CheckNote(n database.Note) error {
	checks := []struct {
		name  string
		value interface{}
		rule  string
	}{
		{"id", n.UUID, idRule},
		{"title", n.Title, titleRule},
		{"url", n.URL, urlRule},
		{"tags", n.Tags, tagsRule},
	}

	for _, c := range checks {
		if err := v.Var(c.value, c.rule); err != nil {
			return errors.Wrapf(ErrInvalidNote, "%s: %s", c.name, err.Error())
		}
	}

	return nil
}
