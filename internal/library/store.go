// Package library implements the three-level catalog search cascade
// described in spec §4.3: full-text, then token-AND substring, then fuzzy
// token-set scoring. It is grounded on the teacher's db/db.go — a thin
// *sql.DB wrapper with hand-written SQL and idempotent schema setup — widened
// to an FTS5-backed catalog.
package library

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wxyc/library-lookup/internal/errs"
	"github.com/wxyc/library-lookup/internal/fuzzy"
	"github.com/wxyc/library-lookup/internal/normalize"
)

// Item is the catalog entry returned by Search (spec §3 LibraryItem).
type Item struct {
	ID                int64  `json:"id"`
	Artist            string `json:"artist"`
	Title             string `json:"title"`
	CallLetters       string `json:"call_letters"`
	ArtistCallNumber  string `json:"artist_call_number"`
	ReleaseCallNumber string `json:"release_call_number"`
	Genre             string `json:"genre"`
	Format            string `json:"format"`
}

// Options mirror spec §4.3's `opts`.
type Options struct {
	FallbackToLike  bool
	FallbackToFuzzy bool
	Limit           int
	ArtistFilter    string
}

// DefaultOptions enables both fallback tiers, matching spec's stated default.
func DefaultOptions() Options {
	return Options{FallbackToLike: true, FallbackToFuzzy: true, Limit: 50}
}

const fuzzyCandidateCap = 500

// Store wraps the catalog's embedded sqlite3 database.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open connects to the catalog file at path. A missing file is reported as
// ErrStoreUnavailable before sqlite3 gets a chance to create an empty one,
// and a failed open or ping is reported the same way. An existing catalog
// with zero rows opens normally; an empty catalog is a valid state.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	logger := log.New(os.Stdout, "library: ", log.LstdFlags|log.Lmsgprefix)
	return &Store{db: db, logger: logger}, nil
}

// OpenInMemory creates a fresh, empty catalog for tests.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	logger := log.New(os.Stdout, "library: ", log.LstdFlags|log.Lmsgprefix)
	s := &Store{db: db, logger: logger}
	if err := s.Initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

// Initialize creates the catalog schema if absent, grounded on the
// teacher's idempotent CREATE TABLE IF NOT EXISTS pattern.
func (s *Store) Initialize() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS library (
		id INTEGER PRIMARY KEY,
		artist TEXT NOT NULL,
		title TEXT NOT NULL,
		call_letters TEXT,
		artist_call_number TEXT,
		release_call_number TEXT,
		genre TEXT,
		format TEXT
	)`)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(`ALTER TABLE library ADD COLUMN normalized_artist TEXT`); err != nil && !isDuplicateColumn(err) {
		return err
	}
	if _, err := s.db.Exec(`ALTER TABLE library ADD COLUMN normalized_title TEXT`); err != nil && !isDuplicateColumn(err) {
		return err
	}

	_, err = s.db.Exec(`
	CREATE VIRTUAL TABLE IF NOT EXISTS library_fts USING fts5(
		artist, title, content='library', content_rowid='id',
		tokenize = 'unicode61 remove_diacritics 2'
	)`)
	return err
}

func isDuplicateColumn(err error) bool {
	return strings.Contains(err.Error(), "duplicate column name")
}

// Insert is a test/seed helper; production catalog replacement happens out
// of process (spec §1, out of scope).
func (s *Store) Insert(ctx context.Context, item Item) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO library (id, artist, title, call_letters, artist_call_number, release_call_number, genre, format, normalized_artist, normalized_title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Artist, item.Title, item.CallLetters, item.ArtistCallNumber, item.ReleaseCallNumber, item.Genre, item.Format,
		normalize.Normalize(item.Artist), normalize.Normalize(item.Title))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO library_fts(rowid, artist, title) VALUES (?, ?, ?)`, id, item.Artist, item.Title)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Search runs the three-level cascade of spec §4.3. A genuine DB-level
// failure (connection lost, disk error, malformed database) at any tier is
// propagated as ErrStoreUnavailable rather than silently falling through —
// only an FTS5 query-syntax error and an empty result count as "try the next
// tier," since those are the two outcomes spec §4.3 level 1 actually
// describes as non-fatal.
func (s *Store) Search(ctx context.Context, query string, opts Options) ([]Item, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	items, err := s.searchFullText(ctx, query, opts)
	if err != nil && !isFTSSyntaxError(err) {
		return nil, fmt.Errorf("%w: full-text query: %v", errs.ErrStoreUnavailable, err)
	}
	if len(items) > 0 {
		return items, nil
	}

	if !opts.FallbackToLike {
		return nil, nil
	}
	items, err = s.searchTokenAnd(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: token-and query: %v", errs.ErrStoreUnavailable, err)
	}
	if len(items) > 0 {
		return items, nil
	}

	if !opts.FallbackToFuzzy {
		return nil, nil
	}
	return s.searchFuzzy(ctx, query, opts)
}

// isFTSSyntaxError reports whether err is the FTS5 query-parser rejecting
// the MATCH argument (e.g. a bare "-" or unbalanced quote), the one failure
// mode spec §4.3 level 1 explicitly treats as a fall-through rather than a
// store failure. Any other error (lost connection, corrupt database, I/O
// failure) is a real fault and must not be swallowed.
func isFTSSyntaxError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "fts5: syntax error") || strings.Contains(msg, "unterminated string")
}

// searchFullText submits query to the FTS5 index.
func (s *Store) searchFullText(ctx context.Context, query string, opts Options) ([]Item, error) {
	normalized := normalize.Normalize(query)
	if normalized == "" {
		return nil, nil
	}
	sqlQuery := `
		SELECT l.id, l.artist, l.title, l.call_letters, l.artist_call_number, l.release_call_number, l.genre, l.format
		FROM library_fts f
		JOIN library l ON l.id = f.rowid
		WHERE library_fts MATCH ?`
	args := []any{normalized}
	if opts.ArtistFilter != "" {
		sqlQuery += ` AND l.normalized_artist LIKE ?`
		args = append(args, "%"+normalize.Normalize(opts.ArtistFilter)+"%")
	}
	sqlQuery += ` ORDER BY rank LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// searchTokenAnd requires every remaining token (after stopword/length
// filtering) to match artist or title, case-insensitively and
// diacritics-folded. No ranking; insertion order is preserved.
func (s *Store) searchTokenAnd(ctx context.Context, query string, opts Options) ([]Item, error) {
	tokens := normalize.Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	candidates, err := s.candidatesByToken(ctx, longestToken(tokens), opts.ArtistFilter, opts.Limit*10)
	if err != nil {
		return nil, err
	}
	var matched []Item
	for _, item := range candidates {
		haystack := normalize.Normalize(item.Artist + " " + item.Title)
		allPresent := true
		for _, tok := range tokens {
			if !strings.Contains(haystack, tok) {
				allPresent = false
				break
			}
		}
		if allPresent {
			matched = append(matched, item)
			if len(matched) >= opts.Limit {
				break
			}
		}
	}
	return matched, nil
}

// searchFuzzy scores up to fuzzyCandidateCap candidates (selected by a
// 3-character prefix of the longest remaining token) against the full query
// via the token-set scorer, keeping scores >= LibraryMatchThreshold.
func (s *Store) searchFuzzy(ctx context.Context, query string, opts Options) ([]Item, error) {
	tokens := normalize.Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	longest := longestToken(tokens)
	candidates, err := s.candidatesByPrefix(ctx, longest, opts.ArtistFilter, fuzzyCandidateCap)
	if err != nil {
		return nil, fmt.Errorf("%w: fuzzy candidate query: %v", errs.ErrStoreUnavailable, err)
	}

	type scored struct {
		item  Item
		score int
	}
	var results []scored
	for _, c := range candidates {
		score := fuzzy.TokenSetRatio(query, c.Artist+" "+c.Title)
		if score >= fuzzy.LibraryMatchThreshold {
			results = append(results, scored{c, score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].item.ID < results[j].item.ID
	})

	limit := opts.Limit
	if limit > len(results) {
		limit = len(results)
	}
	items := make([]Item, limit)
	for i := 0; i < limit; i++ {
		items[i] = results[i].item
	}
	return items, nil
}

// FindSimilarArtist fetches up to fuzzyCandidateCap candidates by the
// 3-character prefix of the first non-stopword word of artist, scores each
// catalog artist, and returns the best match iff score >= ArtistCorrectionThreshold.
func (s *Store) FindSimilarArtist(ctx context.Context, artist string) (string, bool) {
	tokens := normalize.Tokenize(artist)
	if len(tokens) == 0 {
		return "", false
	}
	candidates, err := s.candidatesByPrefix(ctx, tokens[0], "", fuzzyCandidateCap)
	if err != nil {
		s.logger.Printf("find_similar_artist candidate query failed: %v", err)
		return "", false
	}

	best := ""
	bestScore := -1
	seen := map[string]bool{}
	for _, c := range candidates {
		if seen[c.Artist] {
			continue
		}
		seen[c.Artist] = true
		score := fuzzy.TokenSetRatio(artist, c.Artist)
		if score > bestScore {
			bestScore = score
			best = c.Artist
		}
	}
	if bestScore >= fuzzy.ArtistCorrectionThreshold {
		return best, true
	}
	return "", false
}

// candidatesByToken always runs as a plain bound LIKE query, so any error it
// returns is a genuine DB-level failure, never a malformed-input syntax
// error — callers must propagate it rather than treat it as "no candidates."
func (s *Store) candidatesByToken(ctx context.Context, token, artistFilter string, limit int) ([]Item, error) {
	pattern := "%" + token + "%"
	q := `SELECT id, artist, title, call_letters, artist_call_number, release_call_number, genre, format
		FROM library WHERE (normalized_artist LIKE ? OR normalized_title LIKE ?)`
	args := []any{pattern, pattern}
	if artistFilter != "" {
		q += ` AND normalized_artist LIKE ?`
		args = append(args, "%"+normalize.Normalize(artistFilter)+"%")
	}
	q += ` LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// candidatesByPrefix has the same error-propagation contract as
// candidatesByToken.
func (s *Store) candidatesByPrefix(ctx context.Context, token, artistFilter string, limit int) ([]Item, error) {
	prefix := token
	if len([]rune(prefix)) > 3 {
		prefix = string([]rune(prefix)[:3])
	}
	pattern := prefix + "%"
	q := `SELECT id, artist, title, call_letters, artist_call_number, release_call_number, genre, format
		FROM library WHERE (normalized_artist LIKE ? OR normalized_title LIKE ?)`
	args := []any{pattern, pattern}
	if artistFilter != "" {
		q += ` AND normalized_artist LIKE ?`
		args = append(args, "%"+normalize.Normalize(artistFilter)+"%")
	}
	q += ` LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func longestToken(tokens []string) string {
	longest := tokens[0]
	for _, t := range tokens[1:] {
		if len(t) > len(longest) {
			longest = t
		}
	}
	return longest
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		var it Item
		var callLetters, artistCallNumber, releaseCallNumber, genre, format sql.NullString
		if err := rows.Scan(&it.ID, &it.Artist, &it.Title, &callLetters, &artistCallNumber, &releaseCallNumber, &genre, &format); err != nil {
			return items, err
		}
		it.CallLetters = callLetters.String
		it.ArtistCallNumber = artistCallNumber.String
		it.ReleaseCallNumber = releaseCallNumber.String
		it.Genre = genre.String
		it.Format = format.String
		items = append(items, it)
	}
	return items, rows.Err()
}
