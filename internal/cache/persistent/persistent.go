// Package persistent wraps the shared trigram-indexed cache of previously
// observed external releases (spec §4.5). The production deployment target
// implied by spec §6 (GIN index, pg_trgm operator) is Postgres; this
// workspace's only configured relational driver is the teacher's
// mattn/go-sqlite3, so trigram similarity is approximated the same way the
// library store's own fuzzy tier already does: a prefix-bounded candidate
// fetch followed by Go-side token-set scoring (see DESIGN.md Open
// Questions).
package persistent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wxyc/library-lookup/internal/fuzzy"
	"github.com/wxyc/library-lookup/internal/normalize"
	"github.com/wxyc/library-lookup/internal/releaseapi"
	"github.com/wxyc/library-lookup/internal/telemetry"
)

const candidateCap = 200

// similarityThreshold is the minimum token-set score for a fuzzy cache
// lookup to count as a match, matching the library store's fuzzy tier
// threshold since both approximate the same "loose substring" intent.
const similarityThreshold = fuzzy.LibraryMatchThreshold

// Cache is the persistent metadata cache. A nil-DSN Cache is a valid,
// always-miss instance (spec: "when the persistent store is unconfigured or
// unreachable, all operations report miss; the component never fails the
// request").
type Cache struct {
	db     *sql.DB
	logger *log.Logger
}

// Open connects to dsn. An empty dsn yields a disabled cache that always
// misses without touching the filesystem or network.
func Open(dsn string) (*Cache, error) {
	logger := log.New(os.Stdout, "metacache: ", log.LstdFlags|log.Lmsgprefix)
	if dsn == "" {
		return &Cache{logger: logger}, nil
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		logger.Printf("disabling persistent cache: %v", err)
		return &Cache{logger: logger}, nil
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		logger.Printf("disabling persistent cache: %v", err)
		return &Cache{logger: logger}, nil
	}
	c := &Cache{db: db, logger: logger}
	if err := c.initialize(); err != nil {
		logger.Printf("disabling persistent cache: %v", err)
		return &Cache{logger: logger}, nil
	}
	return c, nil
}

func (c *Cache) initialize() error {
	_, err := c.db.Exec(`
	CREATE TABLE IF NOT EXISTS releases (
		release_id INTEGER PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`
	CREATE TABLE IF NOT EXISTS release_tracks (
		release_id INTEGER NOT NULL,
		track_title TEXT NOT NULL,
		normalized_track_title TEXT NOT NULL,
		normalized_artist TEXT NOT NULL
	)`)
	return err
}

func (c *Cache) enabled() bool { return c.db != nil }

func (c *Cache) Close() error {
	if !c.enabled() {
		return nil
	}
	return c.db.Close()
}

// Ping reports whether the persistent tier is reachable, for the /health
// endpoint's parallel probes. A disabled (unconfigured) cache always
// reports healthy, since it is an optional tier by spec §4.5.
func (c *Cache) Ping(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.db.PingContext(ctx)
}

// LookupRelease fetches a cached release by id.
func (c *Cache) LookupRelease(ctx context.Context, id int) (*releaseapi.Release, bool) {
	counters := telemetry.FromContext(ctx)
	if !c.enabled() {
		counters.AddPgMiss(0)
		return nil, false
	}
	start := time.Now()
	var data string
	err := c.db.QueryRowContext(ctx, `SELECT data FROM releases WHERE release_id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		counters.AddPgMiss(time.Since(start))
		return nil, false
	}
	if err != nil {
		c.logger.Printf("lookup_release error: %v", err)
		counters.AddPgMiss(time.Since(start))
		return nil, false
	}
	var rel releaseapi.Release
	if err := json.Unmarshal([]byte(data), &rel); err != nil {
		counters.AddPgMiss(time.Since(start))
		return nil, false
	}
	counters.AddPgHit(time.Since(start))
	return &rel, true
}

// LookupReleasesByTrack fuzzy-matches artist/track against the
// release_tracks index, returning matches in similarity order (spec §4.5).
func (c *Cache) LookupReleasesByTrack(ctx context.Context, artist, track string) []releaseapi.Release {
	counters := telemetry.FromContext(ctx)
	if !c.enabled() {
		counters.AddPgMiss(0)
		return nil
	}
	start := time.Now()

	tokens := normalize.Tokenize(track)
	if len(tokens) == 0 {
		counters.AddPgMiss(time.Since(start))
		return nil
	}
	prefix := tokens[0]
	if len([]rune(prefix)) > 3 {
		prefix = string([]rune(prefix)[:3])
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT release_id, normalized_artist, normalized_track_title
		FROM release_tracks
		WHERE normalized_track_title LIKE ?
		LIMIT ?`, prefix+"%", candidateCap)
	if err != nil {
		c.logger.Printf("lookup_releases_by_track error: %v", err)
		counters.AddPgMiss(time.Since(start))
		return nil
	}
	defer rows.Close()

	type scored struct {
		id    int
		score int
	}
	var scoredIDs []scored
	for rows.Next() {
		var id int
		var normArtist, normTrack string
		if err := rows.Scan(&id, &normArtist, &normTrack); err != nil {
			continue
		}
		score := fuzzy.TokenSetRatio(artist+" "+track, normArtist+" "+normTrack)
		if score >= similarityThreshold {
			scoredIDs = append(scoredIDs, scored{id, score})
		}
	}
	if len(scoredIDs) == 0 {
		counters.AddPgMiss(time.Since(start))
		return nil
	}
	sort.SliceStable(scoredIDs, func(i, j int) bool { return scoredIDs[i].score > scoredIDs[j].score })

	releases := make([]releaseapi.Release, 0, len(scoredIDs))
	for _, s := range scoredIDs {
		if rel, ok := c.fetchByID(ctx, s.id); ok {
			releases = append(releases, *rel)
		}
	}
	counters.AddPgHit(time.Since(start))
	return releases
}

// SearchReleases fuzzy-matches a free-text query against cached release
// titles/artists.
func (c *Cache) SearchReleases(ctx context.Context, query string) []releaseapi.Release {
	counters := telemetry.FromContext(ctx)
	if !c.enabled() {
		counters.AddPgMiss(0)
		return nil
	}
	start := time.Now()

	tokens := normalize.Tokenize(query)
	if len(tokens) == 0 {
		counters.AddPgMiss(time.Since(start))
		return nil
	}
	prefix := tokens[0]
	if len([]rune(prefix)) > 3 {
		prefix = string([]rune(prefix)[:3])
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT release_id, data FROM releases
		WHERE data LIKE ?
		LIMIT ?`, "%"+prefix+"%", candidateCap)
	if err != nil {
		c.logger.Printf("search_releases error: %v", err)
		counters.AddPgMiss(time.Since(start))
		return nil
	}
	defer rows.Close()

	type scored struct {
		rel   releaseapi.Release
		score int
	}
	var results []scored
	for rows.Next() {
		var id int
		var data string
		if err := rows.Scan(&id, &data); err != nil {
			continue
		}
		var rel releaseapi.Release
		if err := json.Unmarshal([]byte(data), &rel); err != nil {
			continue
		}
		score := fuzzy.TokenSetRatio(query, rel.Artist+" "+rel.Title)
		if score >= similarityThreshold {
			results = append(results, scored{rel, score})
		}
	}
	if len(results) == 0 {
		counters.AddPgMiss(time.Since(start))
		return nil
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	out := make([]releaseapi.Release, len(results))
	for i, r := range results {
		out[i] = r.rel
	}
	counters.AddPgHit(time.Since(start))
	return out
}

func (c *Cache) fetchByID(ctx context.Context, id int) (*releaseapi.Release, bool) {
	var data string
	err := c.db.QueryRowContext(ctx, `SELECT data FROM releases WHERE release_id = ?`, id).Scan(&data)
	if err != nil {
		return nil, false
	}
	var rel releaseapi.Release
	if err := json.Unmarshal([]byte(data), &rel); err != nil {
		return nil, false
	}
	return &rel, true
}

// Upsert writes back a release keyed by release_id (spec §4.5 write-back).
func (c *Cache) Upsert(ctx context.Context, rel releaseapi.Release) error {
	if !c.enabled() {
		return nil
	}
	data, err := json.Marshal(rel)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO releases (release_id, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(release_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		rel.ReleaseID, string(data))
	if err != nil {
		return fmt.Errorf("upsert release: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, `DELETE FROM release_tracks WHERE release_id = ?`, rel.ReleaseID); err != nil {
		return fmt.Errorf("clear release_tracks: %w", err)
	}
	for _, tr := range rel.Tracklist {
		_, err := c.db.ExecContext(ctx, `
			INSERT INTO release_tracks (release_id, track_title, normalized_track_title, normalized_artist)
			VALUES (?, ?, ?, ?)`,
			rel.ReleaseID, tr.Title, normalize.Normalize(tr.Title), normalize.Normalize(rel.Artist))
		if err != nil {
			return fmt.Errorf("insert release_track: %w", err)
		}
	}
	return nil
}
