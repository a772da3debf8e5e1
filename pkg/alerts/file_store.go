/*
 * Copyright 2025 Carver Automation Corporation.
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

package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
)

// ruleFile is the on-disk layout of a rules file.
type ruleFile struct {
	Rules []models.AlertRule `json:"rules" yaml:"rules"`
}

// FileStore serves rules from a YAML or JSON file and reloads them when the
// file changes. Edits through the RuleManager methods are written back.
type FileStore struct {
	*MemoryStore

	path    string
	logger  logger.Logger
	writeMu sync.Mutex
}

// NewFileStore loads rules from path. A missing file is created with the
// default rules.
func NewFileStore(path string, log logger.Logger) (*FileStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve rules path: %w", err)
	}

	fs := &FileStore{
		MemoryStore: NewMemoryStore(),
		path:        abs,
		logger:      log,
	}

	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		fs.MemoryStore.replace(DefaultRules())

		if err := fs.save(); err != nil {
			return nil, err
		}

		return fs, nil
	}

	if err := fs.Reload(); err != nil {
		return nil, err
	}

	return fs, nil
}

// Path returns the absolute path of the rules file.
func (fs *FileStore) Path() string {
	return fs.path
}

// Reload re-reads the rules file.
func (fs *FileStore) Reload() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}

	rules, err := decodeRules(fs.path, data)
	if err != nil {
		return err
	}

	fs.MemoryStore.replace(rules)

	fs.logger.Info().Str("path", fs.path).Int("rules", len(rules)).Msg("Loaded alert rules")

	return nil
}

func (fs *FileStore) Upsert(ctx context.Context, rule *models.AlertRule) error {
	if err := fs.MemoryStore.Upsert(ctx, rule); err != nil {
		return err
	}

	return fs.save()
}

func (fs *FileStore) Remove(ctx context.Context, id string) error {
	if err := fs.MemoryStore.Remove(ctx, id); err != nil {
		return err
	}

	return fs.save()
}

func (fs *FileStore) save() error {
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()

	rules, _ := fs.MemoryStore.ListRules(context.Background())

	data, err := encodeRules(fs.path, rules)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("create rules directory: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write rules file: %w", err)
	}

	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("replace rules file: %w", err)
	}

	return nil
}

// Watch reloads the rules whenever the file is written or recreated. It
// blocks until ctx is done.
func (fs *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// editors and save() replace the file, so watch the directory
	if err := watcher.Add(filepath.Dir(fs.path)); err != nil {
		return fmt.Errorf("watch rules directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			eventPath, _ := filepath.Abs(event.Name)
			if eventPath != fs.path {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if err := fs.Reload(); err != nil {
				fs.logger.Warn().Err(err).Str("path", fs.path).Msg("Failed to reload alert rules")
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			fs.logger.Warn().Err(werr).Msg("Rules watcher error")
		}
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))

	return ext == ".yaml" || ext == ".yml"
}

func decodeRules(path string, data []byte) ([]models.AlertRule, error) {
	var f ruleFile

	var err error
	if isYAML(path) {
		err = yaml.Unmarshal(data, &f)
	} else {
		err = json.Unmarshal(data, &f)
	}

	if err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	for i := range f.Rules {
		if verr := f.Rules[i].Validate(); verr != nil {
			return nil, fmt.Errorf("rule %d: %w", i, verr)
		}
	}

	return f.Rules, nil
}

func encodeRules(path string, rules []models.AlertRule) ([]byte, error) {
	f := ruleFile{Rules: rules}

	if isYAML(path) {
		return yaml.Marshal(&f)
	}

	return json.MarshalIndent(&f, "", "  ")
}
