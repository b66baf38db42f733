// Copyright 2025 Tom Barlow
//
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

package run

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tombee/apiscenario/internal/commands/shared"
)

// debounceDelay collapses the burst of events editors produce on save.
const debounceDelay = 200 * time.Millisecond

// watch runs the scenarios, then again after every change to a scenario
// or test data file, until ctx is done. Failures are reported and the
// loop continues.
func (s *session) watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	roots := append(append([]string{}, s.opts.Paths...), s.cfg.Data.Dirs...)
	if err := addWatches(fsw, roots); err != nil {
		return shared.NewUsageError("cannot watch files", err)
	}

	for {
		err := s.once(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			shared.PrintError(s.stdout, err)
		}
		fmt.Fprintln(s.stdout, shared.Muted.Render("Watching for changes. Press Ctrl+C to stop."))

		changed, err := waitForChange(ctx, fsw)
		if err != nil {
			return err
		}
		if changed == "" {
			return nil
		}
		s.logger.Info("change detected, re-running", "path", changed)
	}
}

// addWatches registers every directory below roots. For a root naming a
// file its directory is watched.
func addWatches(fsw *fsnotify.Watcher, roots []string) error {
	seen := make(map[string]bool)
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			root = filepath.Dir(root)
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if seen[path] {
				return nil
			}
			seen[path] = true
			return fsw.Add(path)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// waitForChange blocks until a relevant file changes and the burst of
// events has settled. It returns "" when ctx is done.
func waitForChange(ctx context.Context, fsw *fsnotify.Watcher) (string, error) {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		changed string
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return "", nil
		case event, ok := <-fsw.Events:
			if !ok {
				return "", errors.New("file watcher closed")
			}
			if !relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = fsw.Add(event.Name)
				}
			}
			changed = event.Name
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				fire = timer.C
			} else {
				timer.Reset(debounceDelay)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return "", errors.New("file watcher closed")
			}
			return "", fmt.Errorf("file watcher error: %w", err)
		case <-fire:
			return changed, nil
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return true
}
