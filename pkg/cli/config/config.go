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

// Package config provides the read and write access to the user configuration
package config

import (
	"os"
	"path/filepath"

	"github.com/g1mliii/urlnotes/pkg/cli/consts"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultSyncIntervalMinutes is the default interval of the periodic sync
	DefaultSyncIntervalMinutes = 5
	// DefaultMaxVersionSnapshots is the default cap of version snapshots kept per note
	DefaultMaxVersionSnapshots = 10

	minVersionSnapshots = 5
	maxVersionSnapshots = 10
)

// Config holds urlnotes configuration
type Config struct {
	APIEndpoint         string `yaml:"apiEndpoint"`
	SyncIntervalMinutes int    `yaml:"syncIntervalMinutes"`
	MaxVersionSnapshots int    `yaml:"maxVersionSnapshots"`
	Editor              string `yaml:"editor"`
}

// GetPath returns the path to the urlnotes config file
func GetPath(configHome string) string {
	return filepath.Join(configHome, consts.DirName, consts.ConfigFilename)
}

// Default returns a config populated with default values
func Default(apiEndpoint string) Config {
	return Config{
		APIEndpoint:         apiEndpoint,
		SyncIntervalMinutes: DefaultSyncIntervalMinutes,
		MaxVersionSnapshots: DefaultMaxVersionSnapshots,
		Editor:              os.Getenv("EDITOR"),
	}
}

// Read reads the config file under the given config home directory
func Read(configHome string) (Config, error) {
	var ret Config

	b, err := os.ReadFile(GetPath(configHome))
	if err != nil {
		return ret, errors.Wrap(err, "reading config file")
	}

	if err = yaml.Unmarshal(b, &ret); err != nil {
		return ret, errors.Wrap(err, "unmarshalling config")
	}

	return normalize(ret), nil
}

// Write writes the config to the config file under the given config home directory
func Write(configHome string, cf Config) error {
	path := GetPath(configHome)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating the config directory")
	}

	b, err := yaml.Marshal(cf)
	if err != nil {
		return errors.Wrap(err, "marshalling config into YAML")
	}

	if err := os.WriteFile(path, b, 0644); err != nil {
		return errors.Wrap(err, "writing the config file")
	}

	return nil
}

// normalize clamps config values into their supported ranges
func normalize(cf Config) Config {
	if cf.SyncIntervalMinutes <= 0 {
		cf.SyncIntervalMinutes = DefaultSyncIntervalMinutes
	}
	if cf.MaxVersionSnapshots == 0 {
		cf.MaxVersionSnapshots = DefaultMaxVersionSnapshots
	}
	if cf.MaxVersionSnapshots < minVersionSnapshots {
		cf.MaxVersionSnapshots = minVersionSnapshots
	}
	if cf.MaxVersionSnapshots > maxVersionSnapshots {
		cf.MaxVersionSnapshots = maxVersionSnapshots
	}

	return cf
}
