// Package snapshot persists library captures as one JSON file per capture.
// Files are append-only and ordered by the timestamp embedded in their name.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mcao2/readwise-ankify/internal/library"
)

const (
	filePrefix = "books"
	fileExt    = ".json"

	// TimeFormat matches JavaScript's Date.toISOString so names sort
	// lexicographically alongside earlier captures.
	TimeFormat = "2006-01-02T15:04:05.000Z"
)

// ErrInsufficientHistory is returned when fewer than two snapshots exist
var ErrInsufficientHistory = errors.New("insufficient snapshot history: need at least two snapshots")

// ErrSnapshotExists is returned when a capture would overwrite an existing file
var ErrSnapshotExists = errors.New("snapshot already exists")

// Entry is a loaded snapshot together with its file name
type Entry struct {
	Name     string
	Snapshot *library.Snapshot
}

// Store reads and writes snapshot files in a data directory
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating the directory if needed
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot data directory not set")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store reads from
func (s *Store) Dir() string {
	return s.dir
}

// FileName returns the file name used for a snapshot taken at t
func FileName(t time.Time) string {
	return filePrefix + "-" + t.UTC().Format(TimeFormat) + fileExt
}

// Save writes snap to a new file named after its SnapshotDate. Existing
// snapshots are never overwritten.
func (s *Store) Save(snap *library.Snapshot) (string, error) {
	if snap == nil {
		return "", fmt.Errorf("nil snapshot")
	}
	if snap.SnapshotDate.IsZero() {
		snap.SnapshotDate = time.Now().UTC()
	}
	if snap.Books == nil {
		snap.Books = make(map[string]library.Book)
	}

	name := FileName(snap.SnapshotDate)
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s: %w", name, ErrSnapshotExists)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Write to a temp file first so readers never see a partial snapshot.
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+filePrefix+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return name, nil
}

// List returns snapshot file names in ascending (chronological) order
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Load reads a snapshot by file name
func (s *Store) Load(name string) (*library.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", name, err)
	}

	var snap library.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", name, err)
	}
	if snap.Books == nil {
		snap.Books = make(map[string]library.Book)
	}
	return &snap, nil
}

// Latest returns the most recent snapshot
func (s *Store) Latest() (Entry, error) {
	names, err := s.List()
	if err != nil {
		return Entry{}, err
	}
	if len(names) == 0 {
		return Entry{}, ErrInsufficientHistory
	}
	return s.entry(names[len(names)-1])
}

// LatestPair returns the two most recent snapshots as current and previous
func (s *Store) LatestPair() (curr, prev Entry, err error) {
	names, err := s.List()
	if err != nil {
		return Entry{}, Entry{}, err
	}
	if len(names) < 2 {
		return Entry{}, Entry{}, fmt.Errorf("found %d snapshot(s) in %s: %w", len(names), s.dir, ErrInsufficientHistory)
	}

	curr, err = s.entry(names[len(names)-1])
	if err != nil {
		return Entry{}, Entry{}, err
	}
	prev, err = s.entry(names[len(names)-2])
	if err != nil {
		return Entry{}, Entry{}, err
	}
	return curr, prev, nil
}

func (s *Store) entry(name string) (Entry, error) {
	snap, err := s.Load(name)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Name: name, Snapshot: snap}, nil
}
