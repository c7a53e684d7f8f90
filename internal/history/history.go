// Package history keeps a local cache of past interpretations in a SQLite
// database under the state directory. It mirrors the hosted backend's history
// semantics: entries hold a truncated dream text and the top interpretations,
// the cache keeps the newest 1000 entries, and listing is paginated oldest
// first.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite"

	"github.com/lz-215/Dream-Dictionary/internal/interpret"
)

const (
	// maxEntries caps the cache; older entries are pruned past it.
	maxEntries = 1000

	// maxDreamTextLen bounds the stored dream text. Longer texts are cut at
	// 197 characters and marked with an ellipsis.
	maxDreamTextLen = 200

	// dateLayout is the entry timestamp format, matching the backend's.
	dateLayout = "2006-01-02 15:04:05"

	// keywordLimit is how many keywords Stats reports.
	keywordLimit = 10
)

// Entry is one recorded interpretation.
type Entry struct {
	ID              int64                      `json:"id"`
	UserID          string                     `json:"user_id"`
	Date            string                     `json:"date"`
	DreamText       string                     `json:"dream_text"`
	Interpretations []interpret.Interpretation `json:"interpretations"`
}

// Page is one page of history entries.
type Page struct {
	Items       []Entry `json:"items"`
	TotalItems  int     `json:"total_items"`
	TotalPages  int     `json:"total_pages"`
	CurrentPage int     `json:"current_page"`
}

// KeywordCount is one keyword and how often it appeared.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// Stats summarizes the cache.
type Stats struct {
	TotalDreams    int            `json:"total_dreams"`
	CommonKeywords []KeywordCount `json:"common_keywords"`
	LastWeekCount  int            `json:"last_week_count"`
}

// Store is the SQLite-backed history cache.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", path, err)
	}
	// The cache is written by one process at a time; a single connection
	// sidesteps SQLITE_BUSY between the insert and the prune.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS dreams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		dream_text TEXT NOT NULL,
		interpretations TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one interpretation to the cache. The dream text is truncated,
// only the top three interpretations are kept, and entries past the cap are
// pruned oldest first. A failed prune is logged, not surfaced: the cache being
// slightly over its cap never blocks the interpretation that triggered it.
func (s *Store) Record(userID, dreamText string, interps []interpret.Interpretation) error {
	if userID == "" {
		userID = interpret.AnonymousUserID
	}
	if len(interps) > 3 {
		interps = interps[:3]
	}
	if interps == nil {
		interps = []interpret.Interpretation{}
	}
	encoded, err := json.Marshal(interps)
	if err != nil {
		return fmt.Errorf("failed to encode interpretations: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO dreams (user_id, date, dream_text, interpretations) VALUES (?, ?, ?, ?)`,
		userID, s.now().Format(dateLayout), truncateDream(dreamText), string(encoded),
	)
	if err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}

	if _, err = s.db.Exec(
		`DELETE FROM dreams WHERE id NOT IN (SELECT id FROM dreams ORDER BY id DESC LIMIT ?)`,
		maxEntries,
	); err != nil {
		log.WithField("error", err).Warn("failed to prune history cache")
	}
	return nil
}

// List returns one page of entries, oldest first. page starts at 1; userID
// filters to one user when non-empty. Out-of-range pages return an empty item
// list with the totals intact.
func (s *Store) List(page, perPage int, userID string) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var total int
	var err error
	if userID != "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM dreams WHERE user_id = ?`, userID).Scan(&total)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM dreams`).Scan(&total)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to count history entries: %w", err)
	}

	result := &Page{
		Items:       []Entry{},
		TotalItems:  total,
		TotalPages:  (total + perPage - 1) / perPage,
		CurrentPage: page,
	}

	offset := (page - 1) * perPage
	var rows *sql.Rows
	if userID != "" {
		rows, err = s.db.Query(
			`SELECT id, user_id, date, dream_text, interpretations FROM dreams WHERE user_id = ? ORDER BY id ASC LIMIT ? OFFSET ?`,
			userID, perPage, offset,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT id, user_id, date, dream_text, interpretations FROM dreams ORDER BY id ASC LIMIT ? OFFSET ?`,
			perPage, offset,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list history entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry Entry
		var rawInterps string
		if err = rows.Scan(&entry.ID, &entry.UserID, &entry.Date, &entry.DreamText, &rawInterps); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.Interpretations = decodeInterpretations(rawInterps)
		result.Items = append(result.Items, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history entries: %w", err)
	}
	return result, nil
}

// Stats reports the cache totals: entry count, the ten most common keywords
// (the generic "General" match is excluded), and how many entries landed in
// the last seven days.
func (s *Store) Stats() (*Stats, error) {
	rows, err := s.db.Query(`SELECT date, interpretations FROM dreams`)
	if err != nil {
		return nil, fmt.Errorf("failed to read history for stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{CommonKeywords: []KeywordCount{}}
	counts := make(map[string]int)
	now := s.now()

	for rows.Next() {
		var date, rawInterps string
		if err = rows.Scan(&date, &rawInterps); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		stats.TotalDreams++

		for _, item := range gjson.Parse(rawInterps).Array() {
			keyword := item.Get("keyword").String()
			if keyword != "" && keyword != "General" {
				counts[keyword]++
			}
		}

		if at, errParse := time.ParseInLocation(dateLayout, date, time.Local); errParse == nil {
			if now.Sub(at) < 8*24*time.Hour {
				stats.LastWeekCount++
			}
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history for stats: %w", err)
	}

	for keyword, count := range counts {
		stats.CommonKeywords = append(stats.CommonKeywords, KeywordCount{Keyword: keyword, Count: count})
	}
	sort.Slice(stats.CommonKeywords, func(i, j int) bool {
		if stats.CommonKeywords[i].Count != stats.CommonKeywords[j].Count {
			return stats.CommonKeywords[i].Count > stats.CommonKeywords[j].Count
		}
		return stats.CommonKeywords[i].Keyword < stats.CommonKeywords[j].Keyword
	})
	if len(stats.CommonKeywords) > keywordLimit {
		stats.CommonKeywords = stats.CommonKeywords[:keywordLimit]
	}
	return stats, nil
}

// truncateDream cuts dream text at 197 characters with an ellipsis marker.
// The bound counts characters, not bytes, so multibyte dreams are not split
// mid-rune.
func truncateDream(text string) string {
	runes := []rune(text)
	if len(runes) < maxDreamTextLen {
		return text
	}
	return string(runes[:197]) + "..."
}

func decodeInterpretations(raw string) []interpret.Interpretation {
	var interps []interpret.Interpretation
	if err := json.Unmarshal([]byte(raw), &interps); err != nil {
		log.WithField("error", err).Warn("dropping undecodable interpretations column")
		return []interpret.Interpretation{}
	}
	if interps == nil {
		return []interpret.Interpretation{}
	}
	return interps
}
