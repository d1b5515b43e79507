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

package main

import (
	"os"
	"strings"

	"github.com/g1mliii/urlnotes/pkg/cli/infra"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	// commands
	"github.com/g1mliii/urlnotes/pkg/cli/cmd/add"
	"github.com/g1mliii/urlnotes/pkg/cli/cmd/history"
	"github.com/g1mliii/urlnotes/pkg/cli/cmd/login"
	"github.com/g1mliii/urlnotes/pkg/cli/cmd/logout"
	"github.com/g1mliii/urlnotes/pkg/cli/cmd/remove"
	"github.com/g1mliii/urlnotes/pkg/cli/cmd/root"
	"github.com/g1mliii/urlnotes/pkg/cli/cmd/status"
	syncCmd "github.com/g1mliii/urlnotes/pkg/cli/cmd/sync"
	"github.com/g1mliii/urlnotes/pkg/cli/cmd/version"
	"github.com/g1mliii/urlnotes/pkg/cli/cmd/view"
)

// apiEndpoint and versionTag are populated during link time
var apiEndpoint string
var versionTag = "master"

// parseDBPath extracts the --dbPath flag value from command line arguments
// regardless of where it appears, because it is needed before cobra parses
// anything
func parseDBPath(args []string) string {
	for i, arg := range args {
		if strings.HasPrefix(arg, "--dbPath=") {
			return strings.TrimPrefix(arg, "--dbPath=")
		}
		if arg == "--dbPath" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func main() {
	// optional overrides for development
	godotenv.Load()

	dbPath := parseDBPath(os.Args[1:])

	app, err := infra.Init(versionTag, apiEndpoint, dbPath)
	if err != nil {
		panic(errors.Wrap(err, "initializing app"))
	}
	defer app.DB.Close()

	root.Register(login.NewCmd(app))
	root.Register(logout.NewCmd(app))
	root.Register(add.NewCmd(app))
	root.Register(view.NewCmd(app))
	root.Register(remove.NewCmd(app))
	root.Register(history.NewCmd(app))
	root.Register(syncCmd.NewCmd(app))
	root.Register(status.NewCmd(app))
	root.Register(version.NewCmd(app))

	if err := root.Execute(); err != nil {
		log.Error(err.Error() + "\n")
		os.Exit(1)
	}
}
