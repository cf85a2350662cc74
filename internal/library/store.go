package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound reports a lookup or mutation targeting a record ID that is
// not in the library.
var ErrNotFound = errors.New("record not found")

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Store persists the whole library as one JSON array. Every mutation
// rewrites the file through a temp-file rename so no reader ever observes
// a partial write. There is exactly one writer at a time; concurrent
// writer processes are out of scope (last writer wins).
type Store struct {
	path         string
	maxTextRunes int
	clock        Clock
	idGen        IDGenerator
	logger       *zap.Logger
}

// NewStore creates a Store rooted at path, creating parent directories.
func NewStore(path string, maxTextRunes int, clock Clock, idGen IDGenerator, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("library path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create library dir: %w", err)
	}
	return &Store{
		path:         path,
		maxTextRunes: maxTextRunes,
		clock:        clock,
		idGen:        idGen,
		logger:       logger,
	}, nil
}

// Load reads the full collection into memory. A missing file is an empty
// library, not an error.
func (s *Store) Load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read library %s: %w", s.path, err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode library %s: %w", s.path, err)
	}
	return records, nil
}

// Save atomically replaces the library file with the given records.
func (s *Store) Save(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode library: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".articles-*.json")
	if err != nil {
		return fmt.Errorf("create temp library file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp library file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp library file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace library file: %w", err)
	}
	return nil
}

// Add creates a manual record and appends it to the library.
func (s *Store) Add(title string, authors []string, abstract, url, text string) (Record, error) {
	id, err := s.idGen.NewID()
	if err != nil {
		return Record{}, fmt.Errorf("generate record id: %w", err)
	}
	record := NewManual(id, title, authors, abstract, url, text, s.clock.Now(), s.maxTextRunes)
	records, err := s.Load()
	if err != nil {
		return Record{}, err
	}
	records = append(records, record)
	if err := s.Save(records); err != nil {
		return Record{}, err
	}
	s.logger.Info("article added",
		zap.String("id", record.ID),
		zap.String("title", record.Title),
	)
	return record, nil
}

// Append adds already-built records (e.g. import results) to the library.
func (s *Store) Append(newRecords []Record) error {
	if len(newRecords) == 0 {
		return nil
	}
	records, err := s.Load()
	if err != nil {
		return err
	}
	records = append(records, newRecords...)
	return s.Save(records)
}

// Update replaces the record with the same ID in place.
func (s *Store) Update(updated Record) error {
	records, err := s.Load()
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == updated.ID {
			records[i] = updated
			return s.Save(records)
		}
	}
	return fmt.Errorf("record %s: %w", updated.ID, ErrNotFound)
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (Record, error) {
	records, err := s.Load()
	if err != nil {
		return Record{}, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("record %s: %w", id, ErrNotFound)
}

// Delete removes the record with the given ID, reporting ErrNotFound when
// no record carries it.
func (s *Store) Delete(id string) error {
	records, err := s.Load()
	if err != nil {
		return err
	}
	for i, r := range records {
		if r.ID == id {
			s.logger.Info("record removed", zap.String("id", id))
			return s.Save(append(records[:i], records[i+1:]...))
		}
	}
	return fmt.Errorf("record %s: %w", id, ErrNotFound)
}

// DeleteFailed removes every record with a failed import status.
func (s *Store) DeleteFailed() error {
	return s.DeleteWhere(func(r Record) bool { return r.ImportStatus == StatusFailed })
}

// DeleteEmpty removes records that carry neither text nor an abstract.
func (s *Store) DeleteEmpty() error {
	return s.DeleteWhere(func(r Record) bool { return r.Text == "" && r.Abstract == "" })
}

// DeleteAll empties the library.
func (s *Store) DeleteAll() error {
	return s.Save(nil)
}

// DeleteWhere removes records matching the predicate, preserving order of
// the remainder.
func (s *Store) DeleteWhere(match func(Record) bool) error {
	records, err := s.Load()
	if err != nil {
		return err
	}
	kept := records[:0]
	removed := 0
	for _, r := range records {
		if match(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return nil
	}
	s.logger.Info("records removed", zap.Int("count", removed))
	return s.Save(kept)
}

// SeenURLs returns the set of source URLs already present in the library,
// used by the batch importer for deduplication.
func (s *Store) SeenURLs() (map[string]struct{}, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.URL != "" {
			seen[r.URL] = struct{}{}
		}
	}
	return seen, nil
}

// NewRecordID exposes ID generation for callers building records directly.
func (s *Store) NewRecordID() (string, error) {
	return s.idGen.NewID()
}

// Now exposes the store clock for callers building records directly.
func (s *Store) Now() time.Time {
	return s.clock.Now()
}

// MaxTextRunes returns the configured stored-text cap.
func (s *Store) MaxTextRunes() int {
	return s.maxTextRunes
}
