package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Store mediates all access to the identity records. Logical operations are
// serialized under one mutex so a self-healing read cannot interleave with a
// save; cross-process writers remain last-write-wins.
type Store struct {
	mu      sync.Mutex
	backend Backend
}

// NewStore returns a Store over the given backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Save serializes and persists the session. A fresh session retires the
// anonymous usage counter, so the two never both apply to the same visitor.
func (s *Store) Save(sess *Session) error {
	if sess == nil {
		return fmt.Errorf("session must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err = s.backend.Write(SessionRecord, data); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	if err = s.backend.Delete(UsageRecord); err != nil {
		log.WithField("error", err).Warn("failed to clear usage counter after login")
	}
	return nil
}

// Load returns the stored session. A record that cannot be decoded is deleted
// and reported absent, so one corrupt write cannot wedge the client: the next
// Load starts from a clean slate.
func (s *Store) Load() (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.backend.Read(SessionRecord)
	if err != nil {
		return nil, false
	}

	var sess Session
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		s.dropCorruptSession(data)
		return nil, false
	}
	if err = json.Unmarshal(data, &sess); err != nil {
		s.dropCorruptSession(data)
		return nil, false
	}
	return &sess, true
}

func (s *Store) dropCorruptSession(data []byte) {
	log.WithField("bytes", len(data)).Warn("deleting undecodable session record")
	if err := s.backend.Delete(SessionRecord); err != nil {
		log.WithField("error", err).Error("failed to delete corrupt session record")
	}
}

// Clear deletes the session record. The usage counter is left alone.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Delete(SessionRecord)
}

// IsAuthenticated reports whether a session record is present and looks like
// one, without paying full deserialization on the hot path. The check is a
// JSON-object probe over the raw bytes; Load remains the authority.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.backend.Read(SessionRecord)
	if err != nil {
		return false
	}
	return gjson.ValidBytes(data) && gjson.ParseBytes(data).IsObject()
}

// UsageCount returns the anonymous usage counter. An absent or unreadable
// record counts as zero.
func (s *Store) UsageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.backend.Read(UsageRecord)
	if err != nil || !gjson.ValidBytes(data) {
		return 0
	}
	count := gjson.GetBytes(data, "count")
	if !count.Exists() || count.Int() < 0 {
		return 0
	}
	return int(count.Int())
}

// SetUsageCount persists the anonymous usage counter. Fields other than the
// count survive the update.
func (s *Store) SetUsageCount(count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.backend.Read(UsageRecord)
	if err != nil || !gjson.ValidBytes(current) {
		current = []byte("{}")
	}
	updated, err := sjson.SetBytes(current, "count", count)
	if err != nil {
		return fmt.Errorf("failed to encode usage counter: %w", err)
	}
	return s.backend.Write(UsageRecord, updated)
}

// PromptStamp returns the time the usage prompt was last shown. An absent or
// unreadable stamp reports false, which makes the prompt eligible again.
func (s *Store) PromptStamp() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.backend.Read(PromptRecord)
	if err != nil || !gjson.ValidBytes(data) {
		return time.Time{}, false
	}
	raw := gjson.GetBytes(data, "lastShownAt").String()
	if raw == "" {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// SetPromptStamp records when the usage prompt was shown.
func (s *Store) SetPromptStamp(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.backend.Read(PromptRecord)
	if err != nil || !gjson.ValidBytes(current) {
		current = []byte("{}")
	}
	updated, err := sjson.SetBytes(current, "lastShownAt", at.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to encode prompt stamp: %w", err)
	}
	return s.backend.Write(PromptRecord, updated)
}
