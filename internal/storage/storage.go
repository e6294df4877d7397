package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Snapshot is one archived command result
type Snapshot struct {
	Command   string          `json:"command"`
	UpdatedAt string          `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// Storage writes command results to a directory
type Storage struct {
	dataDir string
	now     func() time.Time
}

// New creates a new Storage instance
func New(dataDir string) (*Storage, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	// Expand ~ to home directory
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
		now:     time.Now,
	}, nil
}

// Dir returns the archive directory
func (s *Storage) Dir() string {
	return s.dataDir
}

// snapshotPath returns the path of the snapshot for a command on a given day
func (s *Storage) snapshotPath(command string, day time.Time) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", command, day.Format(dateLayout)))
}

// Save archives a command result under today's date, replacing any earlier result
// from the same day. Returns the path written.
func (s *Storage) Save(command string, result interface{}) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}

	now := s.now().UTC()
	snapshot := Snapshot{
		Command:   command,
		UpdatedAt: now.Format(time.RFC3339),
		Data:      data,
	}

	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	path := s.snapshotPath(command, now)
	if err := os.WriteFile(path, out, 0644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	return path, nil
}

// Load reads the snapshot saved for a command on the given day
func (s *Storage) Load(command string, day time.Time) (*Snapshot, error) {
	data, err := os.ReadFile(s.snapshotPath(command, day.UTC()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no snapshot for %s on %s", command, day.UTC().Format(dateLayout))
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}

	return &snapshot, nil
}
