package logs

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

type Entry struct {
	ID          string
	Seq         uint64
	BlockHeight uint64
	Timestamp   time.Time
	Content     string
	Level       LogLevel
}

// Store buffers the log lines of the current block. New websocket sessions
// get the full buffer replayed before receiving live lines; the buffer is
// cleared when the miner moves to the next block.
type Store struct {
	entries     []Entry
	blockHeight uint64
	maxEntries  int
	seq         uint64 // monotonic across blocks, never reset
	mu          sync.RWMutex
}

func NewStore(maxEntries int) *Store {
	return &Store{
		entries:    make([]Entry, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

func (s *Store) Add(content string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	entry := Entry{
		ID:          fmt.Sprintf("%d-%d", s.blockHeight, s.seq),
		Seq:         s.seq,
		BlockHeight: s.blockHeight,
		Timestamp:   time.Now(),
		Content:     content,
		Level:       detectLogLevel(content),
	}

	if len(s.entries) >= s.maxEntries {
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, entry)

	return entry
}

func detectLogLevel(content string) LogLevel {
	lower := strings.ToLower(content)

	if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
		return LevelError
	}
	if strings.Contains(lower, "warn") {
		return LevelWarn
	}
	if strings.Contains(lower, "debug") {
		return LevelDebug
	}
	return LevelInfo
}

func (s *Store) GetAll() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Entry, len(s.entries))
	copy(result, s.entries)
	return result
}

// Lines returns the buffered log contents in insertion order.
func (s *Store) Lines() []string {
	lines, _ := s.LinesWithSeq()
	return lines
}

// LinesWithSeq returns the buffered log contents together with the sequence
// number of the newest line ever added, taken in one atomic snapshot. A
// consumer replaying the buffer can skip later deliveries at or below the
// returned sequence.
func (s *Store) LinesWithSeq() ([]string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]string, len(s.entries))
	for i, entry := range s.entries {
		lines[i] = entry.Content
	}
	return lines, s.seq
}

func (s *Store) BlockHeight() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blockHeight
}

// NewBlock clears the buffer and starts collecting lines for the given block.
func (s *Store) NewBlock(height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blockHeight = height
	s.entries = make([]Entry, 0, s.maxEntries)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
