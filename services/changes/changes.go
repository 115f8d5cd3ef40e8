// Package changes keeps per-host page fingerprints in sqlite and reports
// what changed between visits.
package changes

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"sjsage522/metricworker/logger"
	"sjsage522/metricworker/pkg/errors"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const timeLayout = "2006-01-02 15:04:05"

// Status classifies a page visit
type Status string

const (
	StatusNew       Status = "new"
	StatusChanged   Status = "changed"
	StatusUnchanged Status = "unchanged"
)

// Change is the outcome of observing a page
type Change struct {
	URL     string
	Status  Status
	OldHash string
	NewHash string
	Diff    string
}

// Store is the state database of one host
type Store struct {
	db           *sql.DB
	path         string
	maxDiffLines int
}

// Open opens or creates the database at path
func Open(ctx context.Context, path string, maxDiffLines int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewStorage("changes", "create state directory", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewStorage("changes", "open "+path, err)
	}
	// one connection keeps writes serialized
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.NewStorage("changes", "apply schema", err)
	}
	return &Store{db: db, path: path, maxDiffLines: maxDiffLines}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file
func (s *Store) Path() string {
	return s.path
}

// Fingerprint returns the sha256 hex digest of text
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Normalize trims every line and drops empty ones
func Normalize(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// Diff returns a unified diff of before and after, cut after maxLines lines
func Diff(before, after string, maxLines int) (string, error) {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "old",
		ToFile:   "new",
		Context:  3,
	})
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return "", nil
	}
	if maxLines > 0 && len(lines) > maxLines {
		total := len(lines)
		lines = append(lines[:maxLines], fmt.Sprintf("... (truncated, %d diff lines in total)", total))
	}
	return strings.Join(lines, "\n"), nil
}

// Observe records a visit of url with its visible text. modified is the
// sitemap lastmod date, if any.
func (s *Store) Observe(ctx context.Context, url, text, modified string, now time.Time) (Change, error) {
	content := Normalize(text)
	change := Change{URL: url, NewHash: Fingerprint(content)}

	var oldContent string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_hash, last_content FROM pages WHERE url = ?`, url,
	).Scan(&change.OldHash, &oldContent)
	switch {
	case err == sql.ErrNoRows:
		change.Status = StatusNew
	case err != nil:
		return Change{}, errors.NewStorage("changes", "read page "+url, err)
	case change.OldHash == change.NewHash:
		change.Status = StatusUnchanged
	default:
		change.Status = StatusChanged
		if change.Diff, err = Diff(oldContent, content, s.maxDiffLines); err != nil {
			return Change{}, fmt.Errorf("diff %s: %w", url, err)
		}
	}

	stamp := now.UTC().Format(timeLayout)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Change{}, errors.NewStorage("changes", "begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pages (url, last_hash, last_content, last_fetched, last_modified)
		VALUES (?, ?, ?, ?, NULLIF(?, ''))
		ON CONFLICT (url) DO UPDATE SET
			last_hash = excluded.last_hash,
			last_content = excluded.last_content,
			last_fetched = excluded.last_fetched,
			last_modified = COALESCE(excluded.last_modified, pages.last_modified)`,
		url, change.NewHash, content, stamp, modified)
	if err != nil {
		return Change{}, errors.NewStorage("changes", "write page "+url, err)
	}

	if change.Status != StatusUnchanged {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO changes (url, fetched_at, status, old_hash, new_hash, diff)
			VALUES (?, ?, ?, NULLIF(?, ''), ?, ?)`,
			url, stamp, string(change.Status), change.OldHash, change.NewHash, change.Diff)
		if err != nil {
			return Change{}, errors.NewStorage("changes", "write change "+url, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Change{}, errors.NewStorage("changes", "commit", err)
	}
	return change, nil
}

// History returns the recorded changes of url, oldest first
func (s *Store) History(ctx context.Context, url string) ([]Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COALESCE(old_hash, ''), new_hash, diff
		FROM changes WHERE url = ? ORDER BY id`, url)
	if err != nil {
		return nil, errors.NewStorage("changes", "read history "+url, err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		c := Change{URL: url}
		var status string
		if err := rows.Scan(&status, &c.OldHash, &c.NewHash, &c.Diff); err != nil {
			return nil, errors.NewStorage("changes", "scan history", err)
		}
		c.Status = Status(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

// LastFetch returns the day a sitemap was last processed, "" if never
func (s *Store) LastFetch(ctx context.Context, sitemapURL string) (string, error) {
	var day string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_fetch_date FROM sitemaps WHERE sitemap_url = ?`, sitemapURL,
	).Scan(&day)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.NewStorage("changes", "read sitemap "+sitemapURL, err)
	}
	return day, nil
}

// MarkFetched records that sitemapURL was processed on day
func (s *Store) MarkFetched(ctx context.Context, sitemapURL, day, hash string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sitemaps (sitemap_url, last_fetch_date, sitemap_hash, last_checked)
		VALUES (?, ?, NULLIF(?, ''), ?)
		ON CONFLICT (sitemap_url) DO UPDATE SET
			last_fetch_date = excluded.last_fetch_date,
			sitemap_hash = COALESCE(excluded.sitemap_hash, sitemaps.sitemap_hash),
			last_checked = excluded.last_checked`,
		sitemapURL, day, hash, now.UTC().Format(timeLayout))
	if err != nil {
		return errors.NewStorage("changes", "write sitemap "+sitemapURL, err)
	}
	return nil
}

// Registry opens one Store per host below a directory
type Registry struct {
	dir          string
	maxDiffLines int

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates a registry rooted at dir
func NewRegistry(dir string, maxDiffLines int) *Registry {
	return &Registry{dir: dir, maxDiffLines: maxDiffLines, stores: make(map[string]*Store)}
}

// For returns the store of host, opening it on first use
func (r *Registry) For(ctx context.Context, host string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[host]; ok {
		return s, nil
	}
	name := strings.NewReplacer(":", "_", "/", "_").Replace(host) + ".sqlite"
	s, err := Open(ctx, filepath.Join(r.dir, name), r.maxDiffLines)
	if err != nil {
		return nil, err
	}
	r.stores[host] = s
	logger.Debug("Opened state store %s", s.Path())
	return s, nil
}

// Close closes every opened store
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for host, s := range r.stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.stores, host)
	}
	return first
}
