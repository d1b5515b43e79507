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

package sync

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/g1mliii/urlnotes/pkg/cli/event"
	"github.com/g1mliii/urlnotes/pkg/cli/infra"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	synclib "github.com/g1mliii/urlnotes/pkg/cli/sync"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var daemonFlag bool

var example = `
 * Run a sync pass now
 urlnotes sync

 * Keep syncing on a schedule in the foreground
 urlnotes sync --daemon`

// NewCmd returns a new sync command
func NewCmd(app *infra.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sync",
		Short:   "Sync notes with the backend",
		Aliases: []string{"s"},
		Example: example,
		RunE:    newRun(app),
	}

	f := cmd.Flags()
	f.BoolVarP(&daemonFlag, "daemon", "d", false, "keep syncing on a schedule in the foreground")

	return cmd
}

func runOnce(app *infra.App) error {
	if ok, reason := app.Engine.CanSync(); !ok {
		log.Error(reason + "\n")
		return nil
	}

	ch, cancel := app.Bus.Subscribe(64)
	defer cancel()

	if err := app.Engine.ManualSync(); err != nil {
		return errors.Wrap(err, "syncing")
	}

	for len(ch) > 0 {
		switch e := (<-ch).(type) {
		case event.SyncSucceeded:
			log.Successf("done: pushed %d, merged %d, deletions %d\n", e.Pushed, e.Merged, e.Deletions)
		case event.ConflictDetected:
			log.Warnf("note %s conflicted, kept the %s copy\n", e.NoteUUID, e.Winner)
			log.Plainf("%s", e.Diff)
		}
	}

	return nil
}

func runDaemon(app *infra.App) error {
	scheduler, err := synclib.NewScheduler(app.Engine, app.Store, app.Config.SyncIntervalMinutes)
	if err != nil {
		return errors.Wrap(err, "building scheduler")
	}

	// run a pass right away instead of waiting out the first interval
	if err := app.Engine.Sync(); err != nil {
		log.Errorf("sync failed: %v\n", err)
	}

	scheduler.Start()
	defer scheduler.Stop()
	log.Infof("syncing every %d minutes\n", app.Config.SyncIntervalMinutes)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("stopping\n")
	return nil
}

func newRun(app *infra.App) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if daemonFlag {
			return runDaemon(app)
		}

		return runOnce(app)
	}
}
