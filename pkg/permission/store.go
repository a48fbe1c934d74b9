package permission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Store holds the persisted permission records. All mutation goes through
// a single-writer lock; reads may be concurrent.
type Store struct {
	filePath string
	records  []Record
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// OpenStore loads the record file at filePath, defaulting to
// ~/.coda/permissions.json. A missing file yields an empty store.
func OpenStore(filePath string, logger zerolog.Logger) (*Store, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, ".coda", "permissions.json")
	}

	s := &Store{
		filePath: filePath,
		logger:   logger,
	}

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load permission store: %w", err)
		}
		logger.Info().Str("path", filePath).Msg("Permission store does not exist, will create on first save")
	}

	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse permission store: %w", err)
	}

	s.records = records

	s.logger.Info().
		Str("path", s.filePath).
		Int("count", len(records)).
		Msg("Permission store loaded")

	return nil
}

// Records returns a copy of the stored records.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, len(s.records))
	copy(records, s.records)
	return records
}

// Append adds a record (if not already present) and writes the store
// through to disk.
func (s *Store) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.Category == rec.Category &&
			existing.Scope == rec.Scope &&
			existing.Decision == rec.Decision {
			return nil
		}
	}

	s.records = append(s.records, rec)
	return s.saveLocked()
}

// Save writes the current records to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes atomically via temp file and rename. Callers hold mu.
func (s *Store) saveLocked() error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal permission store: %w", err)
	}

	tempPath := s.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write permission store: %w", err)
	}

	if err := os.Rename(tempPath, s.filePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename permission store: %w", err)
	}

	s.logger.Debug().Int("count", len(s.records)).Msg("Permission store saved")
	return nil
}

// Count returns the number of persisted records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
