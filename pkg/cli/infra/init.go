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

// Package infra wires up the local infrastructure: paths, database, config,
// client and the sync engine
package infra

import (
	"os"
	"path/filepath"

	"github.com/g1mliii/urlnotes/pkg/cli/client"
	"github.com/g1mliii/urlnotes/pkg/cli/config"
	"github.com/g1mliii/urlnotes/pkg/cli/consts"
	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/g1mliii/urlnotes/pkg/cli/event"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/g1mliii/urlnotes/pkg/cli/sync"
	"github.com/g1mliii/urlnotes/pkg/cli/utils"
	"github.com/g1mliii/urlnotes/pkg/clock"
	"github.com/g1mliii/urlnotes/pkg/dirs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	// DefaultAPIEndpoint is the default API endpoint used when none is configured
	DefaultAPIEndpoint = "http://localhost:54321"
)

// RunEFunc is a function type of urlnotes commands
type RunEFunc func(*cobra.Command, []string) error

// Paths holds the local directories used by urlnotes
type Paths struct {
	Home   string
	Config string
	Data   string
	Cache  string
}

// App holds the wired-up application state shared by commands
type App struct {
	Paths   Paths
	Version string
	Config  config.Config

	DB     *database.DB
	Store  *database.Store
	Client *client.Client
	Engine *sync.Engine
	Bus    *event.Bus
	Clock  clock.Clock
}

func getDBPath(paths Paths, customPath string) string {
	if customPath != "" {
		return customPath
	}

	return filepath.Join(paths.Data, consts.DirName, consts.DBFileName)
}

// initFiles creates the app directories and a default config file when none
// exists
func initFiles(paths Paths, apiEndpoint string) error {
	for _, dir := range []string{
		filepath.Join(paths.Config, consts.DirName),
		filepath.Join(paths.Data, consts.DirName),
		filepath.Join(paths.Cache, consts.DirName),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "creating directory %s", dir)
		}
	}

	configPath := config.GetPath(paths.Config)
	ok, err := utils.FileExists(configPath)
	if err != nil {
		return errors.Wrap(err, "checking config file")
	}
	if !ok {
		if apiEndpoint == "" {
			apiEndpoint = DefaultAPIEndpoint
		}
		if err := config.Write(paths.Config, config.Default(apiEndpoint)); err != nil {
			return errors.Wrap(err, "writing default config")
		}
	}

	return nil
}

// Init initializes the urlnotes environment and returns the wired app.
// apiEndpoint is used when creating a new config file.
func Init(versionTag, apiEndpoint, dbPath string) (*App, error) {
	paths := Paths{
		Home:   dirs.Home,
		Config: dirs.ConfigHome,
		Data:   dirs.DataHome,
		Cache:  dirs.CacheHome,
	}

	if err := initFiles(paths, apiEndpoint); err != nil {
		return nil, errors.Wrap(err, "initializing files")
	}

	db, err := database.Open(getDBPath(paths, dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to db")
	}

	if err := db.InitSchema(); err != nil {
		return nil, errors.Wrap(err, "initializing database")
	}
	if err := database.Migrate(db); err != nil {
		return nil, errors.Wrap(err, "running migrations")
	}

	cf, err := config.Read(paths.Config)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	c := clock.New()
	bus := event.NewBus()
	store := database.NewStore(db, c, bus, cf.MaxVersionSnapshots)
	cl := client.New(cf.APIEndpoint, versionTag, db, c)
	engine := sync.NewEngine(store, cl, bus, c)

	log.Debug("initialized app at %s\n", getDBPath(paths, dbPath))

	return &App{
		Paths:   paths,
		Version: versionTag,
		Config:  cf,
		DB:      db,
		Store:   store,
		Client:  cl,
		Engine:  engine,
		Bus:     bus,
		Clock:   c,
	}, nil
}
