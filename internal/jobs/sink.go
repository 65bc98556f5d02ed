package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/vigil/internal/models"
)

// ProgressSink is an append-only log of progress chunks written by one job
// goroutine and drained by any number of pollers, each holding its own cursor.
//
// A cursor is the sequence number of the next chunk the caller has not seen.
// Retained text is capped at ceiling bytes; once exceeded the oldest chunks are
// evicted. Evicted chunks are gone for good: a cursor pointing before the
// oldest retained chunk simply resumes at the oldest retained one.
type ProgressSink struct {
	mu      sync.Mutex
	chunks  []models.ProgressChunk
	first   uint64 // seq of chunks[0]
	next    uint64 // seq assigned to the next append
	bytes   int
	ceiling int

	evictedChunks uint64
	evictedBytes  int64
}

// SinkStats is a point-in-time view of a sink's counters
type SinkStats struct {
	Written       uint64 `json:"written"`
	Retained      int    `json:"retained"`
	RetainedBytes int    `json:"retained_bytes"`
	EvictedChunks uint64 `json:"evicted_chunks"`
	EvictedBytes  int64  `json:"evicted_bytes"`
}

// NewProgressSink creates a sink. A ceiling <= 0 disables eviction.
func NewProgressSink(ceiling int) *ProgressSink {
	return &ProgressSink{
		chunks:  make([]models.ProgressChunk, 0, 32),
		ceiling: ceiling,
	}
}

// Append adds a plain text chunk
func (s *ProgressSink) Append(text string) uint64 {
	return s.AppendFormatted(models.FormatDefault, text)
}

// AppendFormatted adds a chunk with a display format and returns its sequence number
func (s *ProgressSink) AppendFormatted(format models.ReportFormat, text string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.next
	s.chunks = append(s.chunks, models.ProgressChunk{
		Seq:       seq,
		Text:      text,
		Format:    format,
		Timestamp: time.Now(),
	})
	s.next++
	s.bytes += len(text)

	s.evictLocked()

	return seq
}

// evictLocked drops oldest chunks until retained bytes fit the ceiling.
// The newest chunk is always retained.
func (s *ProgressSink) evictLocked() {
	if s.ceiling <= 0 {
		return
	}
	for s.bytes > s.ceiling && len(s.chunks) > 1 {
		oldest := s.chunks[0]
		s.chunks[0] = models.ProgressChunk{}
		s.chunks = s.chunks[1:]
		s.first++
		s.bytes -= len(oldest.Text)
		s.evictedChunks++
		s.evictedBytes += int64(len(oldest.Text))
	}
}

// ReadSince returns the chunks appended at or after cursor, in append order,
// and the cursor to use for the next read. A cursor past the end of the sink
// was never issued by it and yields ErrInvalidState.
func (s *ProgressSink) ReadSince(cursor uint64) ([]models.ProgressChunk, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cursor > s.next {
		return nil, s.next, fmt.Errorf("%w: cursor %d is beyond sink end %d", ErrInvalidState, cursor, s.next)
	}

	start := cursor
	if start < s.first {
		start = s.first
	}

	idx := int(start - s.first)
	out := make([]models.ProgressChunk, len(s.chunks)-idx)
	copy(out, s.chunks[idx:])

	return out, s.next, nil
}

// Stats returns the sink's counters
func (s *ProgressSink) Stats() SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SinkStats{
		Written:       s.next,
		Retained:      len(s.chunks),
		RetainedBytes: s.bytes,
		EvictedChunks: s.evictedChunks,
		EvictedBytes:  s.evictedBytes,
	}
}
