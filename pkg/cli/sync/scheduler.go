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
	"fmt"

	"github.com/g1mliii/urlnotes/pkg/cli/database"
	"github.com/g1mliii/urlnotes/pkg/cli/log"
	"github.com/pkg/errors"
	"github.com/robfig/cron"
)

// Scheduler drives periodic sync passes and tombstone cleanup
type Scheduler struct {
	c *cron.Cron
}

// NewScheduler schedules a sync pass every intervalMinutes and a tombstone
// cleanup run hourly. The engine itself declines passes it cannot run, so
// the timer just fires unconditionally.
func NewScheduler(engine *Engine, store *database.Store, intervalMinutes int) (*Scheduler, error) {
	c := cron.New()

	err := c.AddFunc(fmt.Sprintf("@every %dm", intervalMinutes), func() {
		if err := engine.Sync(); err != nil {
			log.Errorf("scheduled sync failed: %v\n", err)
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "scheduling sync pass")
	}

	err = c.AddFunc("@every 1h", func() {
		purged, err := store.CleanupSyncedDeletedNotes()
		if err != nil {
			log.Errorf("tombstone cleanup failed: %v\n", err)
			return
		}
		if purged > 0 {
			log.Debug("purged %d settled tombstones\n", purged)
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "scheduling tombstone cleanup")
	}

	return &Scheduler{c: c}, nil
}

// Start begins firing the schedules. It does not block.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the schedules. A running pass is not interrupted.
func (s *Scheduler) Stop() {
	s.c.Stop()
}
