package changes

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "www.example.se.sqlite"), 80)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestObserve(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	url := "https://www.example.se/om-oss"

	first, err := s.Observe(ctx, url, "  Om oss \n\nVi säljer mattor\n", "2025-02-28", now)
	require.NoError(t, err)
	assert.Equal(t, StatusNew, first.Status)
	assert.Empty(t, first.OldHash)
	assert.Equal(t, Fingerprint("Om oss\nVi säljer mattor"), first.NewHash)

	same, err := s.Observe(ctx, url, "Om oss\nVi säljer mattor", "", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, same.Status)

	changed, err := s.Observe(ctx, url, "Om oss\nVi säljer mattor och lampor", "2025-03-01", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusChanged, changed.Status)
	assert.Equal(t, first.NewHash, changed.OldHash)
	assert.Contains(t, changed.Diff, "-Vi säljer mattor\n+Vi säljer mattor och lampor")

	history, err := s.History(ctx, url)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, StatusNew, history[0].Status)
	assert.Equal(t, StatusChanged, history[1].Status)
	assert.Equal(t, changed.Diff, history[1].Diff)
}

func TestDiffTruncates(t *testing.T) {
	var before, after []string
	for i := 0; i < 100; i++ {
		before = append(before, fmt.Sprintf("rad %d", i))
		after = append(after, fmt.Sprintf("ny rad %d", i))
	}
	diff, err := Diff(strings.Join(before, "\n"), strings.Join(after, "\n"), 80)
	require.NoError(t, err)

	lines := strings.Split(diff, "\n")
	assert.Len(t, lines, 81)
	assert.Equal(t, "--- old", lines[0])
	assert.Equal(t, "+++ new", lines[1])
	assert.True(t, strings.HasPrefix(lines[80], "... (truncated, "))

	same, err := Diff("a\nb", "a\nb", 80)
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestSitemapFetchDate(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	sm := "https://www.example.se/sitemap.xml"

	day, err := s.LastFetch(ctx, sm)
	require.NoError(t, err)
	assert.Empty(t, day)

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkFetched(ctx, sm, "2025-03-01", "abc", now))
	require.NoError(t, s.MarkFetched(ctx, sm, "2025-03-02", "", now.Add(24*time.Hour)))

	day, err = s.LastFetch(ctx, sm)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-02", day)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := NewRegistry(dir, 80)

	a, err := r.For(ctx, "www.example.se:8080")
	require.NoError(t, err)
	b, err := r.For(ctx, "www.example.se:8080")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, filepath.Join(dir, "www.example.se_8080.sqlite"), a.Path())

	require.NoError(t, r.Close())
}
