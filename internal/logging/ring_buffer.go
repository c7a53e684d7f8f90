package logging

import (
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultBufferSize is the default capacity of the ring buffer.
const DefaultBufferSize = 1000

// LogEntry is a single captured log record, in the shape the -logs command
// renders.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
	Source    string                 // source file:line if available
	Fields    map[string]interface{} // additional structured fields
}

// RingBuffer is a thread-safe circular buffer of recent log entries. It
// implements logrus.Hook so it can be attached to the global logger.
type RingBuffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
	full     bool
}

// NewRingBuffer creates a ring buffer with the given capacity.
// Non-positive capacities fall back to DefaultBufferSize.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &RingBuffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Levels reports the levels this hook fires for. All of them: the buffer is
// the only place logs can be read back from after the fact.
func (rb *RingBuffer) Levels() []log.Level {
	return log.AllLevels
}

// Fire implements logrus.Hook.
func (rb *RingBuffer) Fire(entry *log.Entry) error {
	source := ""
	if entry.Caller != nil {
		source = formatSource(entry.Caller.File, entry.Caller.Line)
	}

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	// Copy fields so later mutation by logrus does not race with readers.
	fields := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		fields[k] = v
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = LogEntry{
		Timestamp: entry.Time,
		Level:     level,
		Message:   entry.Message,
		Source:    source,
		Fields:    fields,
	}
	rb.head = (rb.head + 1) % rb.capacity

	if rb.count < rb.capacity {
		rb.count++
	} else {
		rb.full = true
	}

	return nil
}

// formatSource shortens caller file paths to filename:line.
func formatSource(file string, line int) string {
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' || file[i] == '\\' {
			short = file[i+1:]
			break
		}
	}
	return short + ":" + strconv.Itoa(line)
}

// GetEntries returns a copy of all buffered entries, oldest first. The
// returned slice and its field maps are safe to modify.
func (rb *RingBuffer) GetEntries() []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return []LogEntry{}
	}

	result := make([]LogEntry, rb.count)
	if rb.full {
		// Buffer has wrapped; the oldest entry sits at head.
		copied := copy(result, rb.entries[rb.head:])
		copy(result[copied:], rb.entries[:rb.head])
	} else {
		copy(result, rb.entries[:rb.count])
	}

	for i := range result {
		if result[i].Fields != nil {
			fieldsCopy := make(map[string]interface{}, len(result[i].Fields))
			for k, v := range result[i].Fields {
				fieldsCopy[k] = v
			}
			result[i].Fields = fieldsCopy
		}
	}

	return result
}

// GetRecentEntries returns a copy of the n most recent entries, oldest first.
// If n exceeds the number of entries, all entries are returned.
func (rb *RingBuffer) GetRecentEntries(n int) []LogEntry {
	entries := rb.GetEntries()
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}

// Len returns the current number of entries in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return rb.capacity
}

// Clear removes all entries from the buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.head = 0
	rb.count = 0
	rb.full = false
	for i := range rb.entries {
		rb.entries[i] = LogEntry{}
	}
}

// GlobalBuffer captures every log line emitted through the shared logger.
// SetupBaseLogger attaches it as a hook.
var GlobalBuffer = NewRingBuffer(DefaultBufferSize)
