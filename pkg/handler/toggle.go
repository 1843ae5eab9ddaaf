// Copyright (c) 2026 Tigera, Inc. All rights reserved.

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package handler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/projectcalico/breadcrumbs/pkg/breadcrumbs"
	"github.com/projectcalico/breadcrumbs/pkg/codec"
)

type toggleFile struct {
	Enabled bool `json:"enabled"`
}

// Toggle forwards breadcrumbs to a handler only while a control file says so. The file holds
// {"enabled": true} or {"enabled": false}. A missing or unreadable file disables forwarding.
//
// The file's directory is watched rather than the file itself, so the toggle keeps working when
// the file is created late or replaced.
type Toggle struct {
	path    string
	handler breadcrumbs.Handler
	noop    breadcrumbs.Handler
	enabled atomic.Bool
	watcher *fsnotify.Watcher
}

func NewToggle(path string, h breadcrumbs.Handler) (*Toggle, error) {
	path = filepath.Clean(path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("error watching %s: %w", filepath.Dir(path), err)
	}

	t := &Toggle{
		path:    path,
		handler: h,
		noop:    breadcrumbs.NewNoopHandler(),
		watcher: w,
	}
	t.reload()
	return t, nil
}

func (t *Toggle) Handle(b breadcrumbs.Breadcrumb) error {
	if t.enabled.Load() {
		return t.handler.Handle(b)
	}
	return t.noop.Handle(b)
}

func (t *Toggle) Enabled() bool {
	return t.enabled.Load()
}

// Run applies changes to the control file until ctx is done, then releases the watcher.
func (t *Toggle) Run(ctx context.Context) {
	defer t.watcher.Close()
	defer logrus.WithField("file", t.path).Info("Toggle file watcher closed")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != t.path {
				continue
			}
			logrus.WithFields(logrus.Fields{"file": event.Name, "op": event.Op.String()}).Debug("Toggle file changed")
			t.reload()
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			logrus.WithError(err).Error("Error watching toggle file")
		}
	}
}

func (t *Toggle) reload() {
	enabled := readToggle(t.path)
	if t.enabled.Swap(enabled) != enabled {
		if enabled {
			logrus.WithField("file", t.path).Info("Enabling breadcrumb handler")
		} else {
			logrus.WithField("file", t.path).Info("Disabling breadcrumb handler")
		}
	}
}

func readToggle(path string) bool {
	contents, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).Warn("Error reading toggle file")
		}
		return false
	}
	var f toggleFile
	if err := codec.JSON().Unmarshal(contents, &f); err != nil {
		logrus.WithError(err).Warn("Error parsing toggle file")
		return false
	}
	return f.Enabled
}
