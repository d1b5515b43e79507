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

package validate

import (
	"strings"
	"testing"

	"github.com/g1mliii/urlnotes/pkg/assert"
	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/pkg/errors"
)

func TestCheckNote(t *testing.T) {
	validID := "6b7e9a40-3f6e-4f0b-a2cb-9b1640a2efaf"

	testCases := []struct {
		name  string
		note  database.Note
		valid bool
	}{
		{
			name:  "valid",
			note:  database.Note{UUID: validID, Title: "a title", URL: "https://example.com", Tags: []string{"work"}},
			valid: true,
		},
		{
			name:  "non-v4 uuid id",
			note:  database.Note{UUID: "a8098c1a-f86e-11da-bd1a-00112444be1e", Title: "a title"},
			valid: true,
		},
		{
			name:  "missing id",
			note:  database.Note{Title: "a title"},
			valid: false,
		},
		{
			name:  "non-uuid id",
			note:  database.Note{UUID: "note_12345", Title: "a title"},
			valid: false,
		},
		{
			name:  "title too long",
			note:  database.Note{UUID: validID, Title: strings.Repeat("x", MaxTitleLen+1)},
			valid: false,
		},
		{
			name:  "url too long",
			note:  database.Note{UUID: validID, URL: "https://example.com/" + strings.Repeat("x", MaxURLLen)},
			valid: false,
		},
		{
			name:  "too many tags",
			note:  database.Note{UUID: validID, Tags: make([]string, MaxTags+1)},
			valid: false,
		},
		{
			name:  "tag too long",
			note:  database.Note{UUID: validID, Tags: []string{strings.Repeat("x", MaxTagLen+1)}},
			valid: false,
		},
		{
			name:  "empty url ok",
			note:  database.Note{UUID: validID, Title: "a title"},
			valid: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckNote(tc.note)

			if tc.valid {
				assert.Equal(t, err, nil, "expected note to be valid")
			} else {
				assert.Equal(t, errors.Cause(err), ErrInvalidNote, "expected ErrInvalidNote")
			}
		})
	}
}
