// Package persist stores session snapshots and completed-ride records as
// JSON files under the application data directory.
package persist

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/lowaak/ride-pilot/internal/engine"
)

const (
	snapshotFile = "session.json"
	ridesSubdir  = "rides"
)

// DefaultDir returns the application data directory, ~/.ride-pilot.
func DefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".ride-pilot")
}

// FileStore implements engine.Store on top of a directory of JSON files.
// Snapshot writes go through a temp file and rename, so a crash mid-write
// leaves the previous snapshot intact rather than a torn one.
type FileStore struct {
	dir    string
	logger *log.Logger
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string, logger *log.Logger) *FileStore {
	if logger == nil {
		panic("FileStore: logger cannot be nil")
	}
	return &FileStore{dir: dir, logger: logger}
}

// SaveSessionSnapshot writes the snapshot, replacing any previous one.
func (s *FileStore) SaveSessionSnapshot(snap engine.Snapshot) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	path := filepath.Join(s.dir, snapshotFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// LoadSessionSnapshot reads the persisted snapshot. Returns (nil, nil) when
// none exists. Missing fields come back as zero values; the engine defaults
// them individually on restore.
func (s *FileStore) LoadSessionSnapshot() (*engine.Snapshot, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, snapshotFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

// ClearSessionSnapshot removes the persisted snapshot if present.
func (s *FileStore) ClearSessionSnapshot() error {
	err := os.Remove(filepath.Join(s.dir, snapshotFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// SaveRideRecord writes a completed ride to its own timestamped file under
// the rides subdirectory.
func (s *FileStore) SaveRideRecord(r engine.RideRecord) error {
	dir := filepath.Join(s.dir, ridesSubdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create rides dir: %w", err)
	}
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ride record: %w", err)
	}

	name := fmt.Sprintf("ride-%s.json", r.StartedAt.Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("write ride record: %w", err)
	}
	s.logger.Printf("FileStore: ride record written to %s", path)
	return nil
}
