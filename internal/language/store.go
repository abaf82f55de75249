// Package language persists the display language each user picked.
package language

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Option is a selectable language.
type Option struct {
	Code  string
	Label string
}

// Languages lists the options offered in the language prompt, in display order.
var Languages = []Option{
	{Code: "EN", Label: "English"},
	{Code: "BN", Label: "Bangla"},
	{Code: "HI", Label: "Hindi"},
	{Code: "UR", Label: "Urdu"},
}

// Valid reports whether code is one of Languages.
func Valid(code string) bool {
	for _, o := range Languages {
		if o.Code == code {
			return true
		}
	}
	return false
}

// Store maps user ids to language codes and mirrors every change to a flat
// JSON file.
type Store struct {
	path string

	mu    sync.RWMutex
	prefs map[string]string
}

// Load reads the store from path. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, prefs: make(map[string]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read language file: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.prefs); err != nil {
		return nil, fmt.Errorf("decode language file %s: %w", path, err)
	}
	if s.prefs == nil {
		s.prefs = make(map[string]string)
	}

	return s, nil
}

// Get returns the language stored for userID.
func (s *Store) Get(userID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tag, ok := s.prefs[key(userID)]
	return tag, ok
}

// Set stores tag for userID and rewrites the file. The latest write wins.
func (s *Store) Set(userID int64, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs[key(userID)] = tag
	return s.save()
}

// Len returns the number of stored preferences.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prefs)
}

// save must be called with mu held.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode languages: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create language dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".languages-*.json")
	if err != nil {
		return fmt.Errorf("create temp language file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write language file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close language file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace language file: %w", err)
	}

	return nil
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
