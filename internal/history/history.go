// Package history persists completed session records per project in a single
// bounded JSON file.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/devpilot-ai/devpilot/internal/proto"
)

const FileName = "history.json"

type Store struct {
	path  string
	limit int
	mu    sync.Mutex
}

// NewStore returns a store backed by <dataDir>/history.json keeping at most
// limit records per project.
func NewStore(dataDir string, limit int) *Store {
	return &Store{
		path:  filepath.Join(dataDir, FileName),
		limit: max(limit, 1),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Append adds rec to project, evicting the oldest records past the limit.
func (s *Store) Append(project string, rec proto.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	records := append(all[project], rec)
	if over := len(records) - s.limit; over > 0 {
		records = slices.Clone(records[over:])
	}
	all[project] = records
	return s.save(all)
}

// List returns up to limit records for project, newest first. A limit <= 0
// returns all of them.
func (s *Store) List(project string, limit int) []proto.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := slices.Clone(s.read()[project])
	slices.Reverse(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// Get returns the latest record of session id. A resumed session has one
// record per turn.
func (s *Store) Get(project, id string) (proto.HistoryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.read()[project]
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].ID == id {
			return records[i], true
		}
	}
	return proto.HistoryRecord{}, false
}

func (s *Store) Clear(project string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := all[project]; !ok {
		return nil
	}
	delete(all, project)
	return s.save(all)
}

// Projects returns the project names that have history, sorted.
func (s *Store) Projects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.read()))
}

// load reads the file. A missing or corrupt file is an empty history; any
// other read error is returned so writers never replace a file they could not
// read.
func (s *Store) load() (map[string][]proto.HistoryRecord, error) {
	all := make(map[string][]proto.HistoryRecord)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if err := json.Unmarshal(data, &all); err != nil {
		slog.Warn("Ignoring corrupt history file", "path", s.path, "error", err)
		return make(map[string][]proto.HistoryRecord), nil
	}
	return all, nil
}

// read is load for readers, which report an unreadable file as empty.
func (s *Store) read() map[string][]proto.HistoryRecord {
	all, err := s.load()
	if err != nil {
		slog.Warn("Failed to read history file", "path", s.path, "error", err)
		return make(map[string][]proto.HistoryRecord)
	}
	return all
}

func (s *Store) save(all map[string][]proto.HistoryRecord) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}
