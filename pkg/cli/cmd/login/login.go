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

package login

import (
	"bufio"
	"encoding/base64"
	"os"
	"strings"

	"github.com/g1mliii/urlnotes/pkg/cli/client"
	"github.com/g1mliii/urlnotes/pkg/cli/crypt"
	"github.com/g1mliii/urlnotes/pkg/cli/infra"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/g1mliii/urlnotes/pkg/cli/session"
	"github.com/g1mliii/urlnotes/pkg/cli/sync"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  urlnotes login
  urlnotes login --email alice@example.com
  urlnotes login --code <authorization-code> --verifier <pkce-verifier>
  urlnotes login --reset --email alice@example.com`

var emailFlag string
var passwordFlag string
var codeFlag string
var verifierFlag string
var resetFlag bool

// NewCmd returns a new login command
func NewCmd(app *infra.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Login to the backend",
		Example: example,
		RunE:    newRun(app),
	}

	f := cmd.Flags()
	f.StringVar(&emailFlag, "email", "", "account email")
	f.StringVar(&passwordFlag, "password", "", "account password (prompted when omitted)")
	f.StringVar(&codeFlag, "code", "", "authorization code from a browser sign-in")
	f.StringVar(&verifierFlag, "verifier", "", "code verifier matching the authorization code")
	f.BoolVar(&resetFlag, "reset", false, "email a password recovery link instead of signing in")

	return cmd
}

func prompt(msg string, masked bool) (string, error) {
	log.Askf(msg, masked)

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "reading input")
	}

	return strings.TrimSpace(input), nil
}

// ensureSalt returns the account's key derivation salt, generating and
// storing one on the profile when this is the first device to sign in
func ensureSalt(app *infra.App, userID string) ([]byte, error) {
	profile, err := app.Client.GetProfile(userID)
	if err != nil {
		return nil, errors.Wrap(err, "fetching profile")
	}

	if profile.Salt != "" {
		salt, err := base64.StdEncoding.DecodeString(profile.Salt)
		if err != nil {
			return nil, errors.Wrap(err, "decoding profile salt")
		}
		return salt, nil
	}

	salt, err := crypt.GenerateSalt()
	if err != nil {
		return nil, errors.Wrap(err, "generating salt")
	}
	if err := app.Client.UpdateProfileSalt(userID, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return nil, errors.Wrap(err, "storing salt on profile")
	}

	return salt, nil
}

// finishLogin stores the session, fetches the salt and primes the key cache
func finishLogin(app *infra.App, s session.Session) error {
	if err := session.Save(app.DB, s); err != nil {
		return errors.Wrap(err, "saving session")
	}

	salt, err := ensureSalt(app, s.UserID)
	if err != nil {
		return err
	}
	if err := sync.StoreSalt(app.DB, salt); err != nil {
		return err
	}

	return sync.PrimeKeyCache(app.DB, s, app.Clock)
}

// Do performs login with the password grant
func Do(app *infra.App, email, password string) error {
	s, err := app.Client.Signin(email, password)
	if err != nil {
		return err
	}

	return finishLogin(app, s)
}

// DoCode completes a browser-initiated PKCE sign-in
func DoCode(app *infra.App, code, verifier string) error {
	s, err := app.Client.ExchangeCode(code, verifier)
	if err != nil {
		return err
	}

	return finishLogin(app, s)
}

func newRun(app *infra.App) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		email := emailFlag
		password := passwordFlag

		var err error
		if resetFlag {
			if email == "" {
				if email, err = prompt("email", false); err != nil {
					return err
				}
			}
			if err := app.Client.RequestPasswordReset(email); err != nil {
				return errors.Wrap(err, "requesting password reset")
			}

			log.Info("recovery email sent. Complete the reset on the web, then log in again.\n")
			return nil
		}

		if codeFlag != "" {
			if verifierFlag == "" {
				return errors.New("--code requires --verifier")
			}

			if err := DoCode(app, codeFlag, verifierFlag); err != nil {
				return errors.Wrap(err, "logging in")
			}

			log.Success("logged in\n")
			return nil
		}

		if email == "" {
			if email, err = prompt("email", false); err != nil {
				return err
			}
		}
		if password == "" {
			if password, err = prompt("password", true); err != nil {
				return err
			}
		}

		err = Do(app, email, password)
		if errors.Cause(err) == client.ErrInvalidLogin {
			log.Error("wrong login\n")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "logging in")
		}

		log.Success("logged in\n")
		return nil
	}
}
