package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"agentbacktest/internal/buffer"
	"agentbacktest/internal/domain"

	"go.uber.org/zap"
)

const FileName = "memories.json"

func OutcomeKey(symbol string) string  { return "outcomes:" + symbol }
func DecisionKey(symbol string) string { return "decisions:" + symbol }

type Entry struct {
	Timestamp      time.Time              `json:"timestamp"`
	Situation      string                 `json:"situation"`
	Recommendation string                 `json:"recommendation,omitempty"`
	Outcome        *domain.TradingOutcome `json:"outcome,omitempty"`
	Metadata       map[string]string      `json:"metadata,omitempty"`
}

func (e Entry) DeepCopy() Entry {
	out := e
	if e.Outcome != nil {
		o := *e.Outcome
		out.Outcome = &o
	}
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

type persisted struct {
	SavedAt time.Time          `json:"savedAt"`
	Entries map[string][]Entry `json:"entries"`
}

// Store is keyed, bounded history that the decision maker can consult.
// Each key holds at most capacity entries.
type Store struct {
	mu       sync.RWMutex
	capacity int
	path     string
	buffers  map[string]*buffer.CircularBuffer[Entry]
	log      *zap.SugaredLogger
}

func NewStore(dir string, capacity int, log *zap.SugaredLogger) (*Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("memory capacity must be positive, got %d", capacity)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{
		capacity: capacity,
		path:     filepath.Join(dir, FileName),
		buffers:  map[string]*buffer.CircularBuffer[Entry]{},
		log:      log,
	}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Add(key string, entry Entry) {
	s.mu.Lock()
	b, ok := s.buffers[key]
	if !ok {
		// capacity was checked in NewStore
		b, _ = buffer.NewCircularBufferWithCopy(s.capacity, Entry.DeepCopy)
		s.buffers[key] = b
	}
	s.mu.Unlock()

	b.Append(entry)
}

// Get returns up to n of the newest entries for key, oldest first.
func (s *Store) Get(key string, n int) []Entry {
	s.mu.RLock()
	b, ok := s.buffers[key]
	s.mu.RUnlock()
	if !ok {
		return []Entry{}
	}
	return b.GetLast(n)
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.buffers))
	for k := range s.buffers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, b := range s.buffers {
		total += b.Len()
	}
	return total
}

// Save writes every entry to the memory file. The write goes through a temp
// file so a crash never leaves a truncated file behind.
func (s *Store) Save() error {
	s.mu.RLock()
	out := persisted{
		SavedAt: time.Now().UTC(),
		Entries: make(map[string][]Entry, len(s.buffers)),
	}
	for k, b := range s.buffers {
		out.Entries[k] = b.GetAll()
	}
	s.mu.RUnlock()

	bytes, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal memories: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create memory dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp memory file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(bytes); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write memories: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp memory file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to move memory file into place: %w", err)
	}

	s.log.Debugf("saved %d memory keys to %s", len(out.Entries), s.path)
	return nil
}

// Load merges entries from the memory file. A missing file is not an error.
func (s *Store) Load() error {
	bytes, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read memories: %w", err)
	}

	in := persisted{}
	if err := json.Unmarshal(bytes, &in); err != nil {
		return fmt.Errorf("failed to parse %s: %w", s.path, err)
	}

	keys := make([]string, 0, len(in.Entries))
	for k := range in.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, e := range in.Entries[k] {
			s.Add(k, e)
		}
	}

	s.log.Infof("loaded %d memory keys from %s", len(keys), s.path)
	return nil
}
