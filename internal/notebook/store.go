// Package notebook persists the user's saved vocabulary list.
//
// The whole collection lives in one JSON slot file that is fully rewritten
// on every mutation. A missing or malformed file reads as an empty
// notebook, never as a startup failure.
package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wortschatz/internal/tutor"
)

// ErrDuplicateWord is returned by Add when the word is already saved,
// compared case-insensitively. The stored collection is left untouched.
var ErrDuplicateWord = errors.New("word already saved")

const slotFileName = "notebook.json"

// SavedWord is a word analysis the user chose to keep.
type SavedWord struct {
	tutor.WordEntry
	ID      string    `json:"id"`
	SavedAt time.Time `json:"saved_at"`
}

// Store owns the saved-word collection and is the sole writer to its slot
// file. All operations are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	filePath string
	words    []SavedWord
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewStore creates a store rooted at dataDir and loads any existing
// collection.
func NewStore(dataDir string, logger *zap.Logger) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	s := &Store{
		filePath: filepath.Join(dataDir, slotFileName),
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	s.words = s.load()
	return s, nil
}

// Load returns the saved collection, most recent first.
func (s *Store) Load() []SavedWord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Count returns the number of saved words.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.words)
}

// Get returns the saved word with the given id.
func (s *Store) Get(id string) (SavedWord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.words {
		if w.ID == id {
			return w, true
		}
	}
	return SavedWord{}, false
}

// SaveAll atomically replaces the entire stored collection. The store does
// no merging; the caller computes the new sequence.
func (s *Store) SaveAll(words []SavedWord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.words = append([]SavedWord(nil), words...)
	return s.save()
}

// Add saves a new word entry at the front of the collection. A word that is
// already saved (case-insensitive) is rejected with ErrDuplicateWord and
// nothing is persisted. A persist failure is returned to the caller; the
// in-memory collection keeps the entry for the current session.
func (s *Store) Add(entry tutor.WordEntry) (SavedWord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.words {
		if strings.EqualFold(w.Word, entry.Word) {
			return SavedWord{}, fmt.Errorf("%w: %s", ErrDuplicateWord, w.Word)
		}
	}

	saved := SavedWord{
		WordEntry: entry,
		ID:        s.newID(),
		SavedAt:   s.now(),
	}
	s.words = append([]SavedWord{saved}, s.words...)

	if err := s.save(); err != nil {
		return saved, err
	}
	return saved, nil
}

// Remove deletes the word with the given id and persists the collection.
// An unknown id is a no-op, not an error.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.words[:0:0]
	for _, w := range s.words {
		if w.ID != id {
			kept = append(kept, w)
		}
	}
	if len(kept) == len(s.words) {
		return nil
	}
	s.words = kept
	return s.save()
}

func (s *Store) snapshot() []SavedWord {
	out := make([]SavedWord, len(s.words))
	copy(out, s.words)
	return out
}

// load reads the slot file. Any read or decode failure is logged and
// treated as an empty notebook.
func (s *Store) load() []SavedWord {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read notebook, starting empty",
				zap.String("path", s.filePath), zap.Error(err))
		}
		return nil
	}

	var words []SavedWord
	if err := json.Unmarshal(data, &words); err != nil {
		s.logger.Warn("notebook file is malformed, starting empty",
			zap.String("path", s.filePath), zap.Error(err))
		return nil
	}
	return words
}

// save rewrites the slot file atomically via a temp file and rename.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.words, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal notebook: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write notebook: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename notebook: %w", err)
	}
	return nil
}
