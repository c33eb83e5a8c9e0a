package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// Store persists results to a JSON file.
type Store struct {
	path    string
	results []*Result
	mu      sync.RWMutex
}

// NewStore loads the results already saved at path. A missing file is an
// empty store.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Add saves a new result, replacing the one for the same kind and pair of
// addresses.
func (s *Store) Add(r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.results {
		if existing.Kind == r.Kind && existing.BSSID == r.BSSID && existing.Client == r.Client {
			s.results[i] = r
			return s.save()
		}
	}

	s.results = append(s.results, r)
	return s.save()
}

// All returns all stored results.
func (s *Store) All() []*Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Result, len(s.results))
	copy(out, s.results)
	return out
}

// Succeeded returns only the results that established keys or matched.
func (s *Store) Succeeded() []*Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ok []*Result
	for _, r := range s.results {
		if r.OK() {
			ok = append(ok, r)
		}
	}
	return ok
}

// Find looks up a result by kind and BSSID.
func (s *Store) Find(kind, bssid string) *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.results {
		if r.Kind == kind && r.BSSID == bssid {
			return r
		}
	}
	return nil
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Format returns a table of all results.
func (s *Store) Format() string {
	results := s.All()
	if len(results) == 0 {
		return "No results.\n"
	}

	var b strings.Builder
	row := "  %-9s %-16s %-19s %-19s %-11s %-6s %-8s %s\n"
	fmt.Fprintf(&b, row, "KIND", "SSID", "BSSID", "CLIENT", "AKM", "TRIES", "RESULT", "TOOK")
	fmt.Fprintf(&b, row, "────", "────", "─────", "──────", "───", "─────", "──────", "────")

	for _, r := range results {
		ssid := r.SSID
		if len(ssid) > 14 {
			ssid = ssid[:14] + ".."
		}
		status := "ok"
		if !r.OK() {
			status = "failed"
		}
		fmt.Fprintf(&b, row, r.Kind, ssid, r.BSSID, r.Client, r.AKM, fmt.Sprint(r.Attempts), status, r.Duration.String())
	}
	return b.String()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read results: %w", err)
	}

	var results []*Result
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("parse results %s: %w", s.path, err)
	}
	s.results = results
	return nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
