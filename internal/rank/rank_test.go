package rank

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPattern(t *testing.T, name string, anchors []string, variant string) Pattern {
	t.Helper()
	p, err := NewPattern(name, anchors, variant)
	require.NoError(t, err)
	return p
}

func TestMatchSkipsSponsored(t *testing.T) {
	dark := mustPattern(t, "Scape Dark", []string{"fractal", "scape"}, `dark`)
	items := []string{"Acme Widget", "Sponsored: Fractal Scape Dark X1", "Fractal Scape Dark X1", "Other"}

	got := Match(items, dark)
	assert.Equal(t, Result{Position: 2, Found: true}, got["Scape Dark"])
}

func TestMatchRequiresAnchors(t *testing.T) {
	dark := mustPattern(t, "Refine Mesh Dark", []string{"fractal", "refine"}, `mesh.*?(dark|black)`)
	items := []string{
		"Corsair Mesh Black Chair",
		"Fractal Design Refine Mesh Black",
	}

	got := Match(items, dark)
	assert.Equal(t, Result{Position: 2, Found: true}, got["Refine Mesh Dark"])
}

func TestMatchNotFound(t *testing.T) {
	light := mustPattern(t, "Scape Light", []string{"fractal", "scape"}, `light|white`)
	got := Match([]string{"Fractal Scape Dark"}, light)

	assert.False(t, got["Scape Light"].Found)
	assert.Equal(t, "-", got["Scape Light"].String())
	assert.Equal(t, "-", got["Scape Light"].Value())
}

func TestMatchStripsTrademarks(t *testing.T) {
	p := mustPattern(t, "Alcantara", []string{"fractal", "refine"}, `alcantara`)
	got := Match([]string{"Fractal® Refine™ Alcantara"}, p)
	assert.Equal(t, "1", got["Alcantara"].String())
	assert.Equal(t, 1, got["Alcantara"].Value())
}

func TestNewPatternInvalidRegex(t *testing.T) {
	_, err := NewPattern("bad", nil, `(`)
	assert.Error(t, err)
}

func TestScanGlobalPositionsAcrossPages(t *testing.T) {
	pages := map[int][]string{
		1: {"A", "Advertisement Fractal Scape Light", "B", "C"},
		2: {"D", "Fractal Scape Light", "E", "Fractal Scape Dark"},
		3: {"should not be fetched"},
	}
	var fetched []int
	next := func(ctx context.Context, page int) ([]string, error) {
		fetched = append(fetched, page)
		return pages[page], nil
	}

	dark := mustPattern(t, "dark", []string{"fractal", "scape"}, `dark`)
	light := mustPattern(t, "light", []string{"fractal", "scape"}, `light`)

	got, err := Scan(context.Background(), next, Budget{MaxPages: 10}, dark, light)
	require.NoError(t, err)
	assert.Equal(t, Result{Position: 5, Found: true}, got["light"])
	assert.Equal(t, Result{Position: 7, Found: true}, got["dark"])
	assert.Equal(t, []int{1, 2}, fetched)
}

func TestScanStopsOnShortPage(t *testing.T) {
	var fetched []int
	next := func(ctx context.Context, page int) ([]string, error) {
		fetched = append(fetched, page)
		if page == 1 {
			return []string{"a", "b", "c"}, nil
		}
		return []string{"x"}, nil
	}

	p := mustPattern(t, "p", []string{"fractal"}, "")
	got, err := Scan(context.Background(), next, Budget{MaxPages: 10, MinPageItems: 3}, p)
	require.NoError(t, err)
	assert.False(t, got["p"].Found)
	assert.Equal(t, []int{1, 2}, fetched)
}

func TestScanItemBudget(t *testing.T) {
	next := func(ctx context.Context, page int) ([]string, error) {
		return []string{"a", "b", "c", "Fractal"}, nil
	}

	p := mustPattern(t, "p", []string{"fractal"}, "")
	got, err := Scan(context.Background(), next, Budget{MaxPages: 5, MaxItems: 3}, p)
	require.NoError(t, err)
	assert.False(t, got["p"].Found)
}

func TestScanFirstPageError(t *testing.T) {
	boom := errors.New("timeout")
	next := func(ctx context.Context, page int) ([]string, error) {
		if page == 1 {
			return nil, boom
		}
		return nil, nil
	}

	p := mustPattern(t, "p", []string{"fractal"}, "")
	_, err := Scan(context.Background(), next, Budget{MaxPages: 2}, p)
	assert.ErrorIs(t, err, boom)
}

func TestScanLaterPageErrorKeepsResults(t *testing.T) {
	next := func(ctx context.Context, page int) ([]string, error) {
		if page == 1 {
			return []string{"Fractal Scape Dark"}, nil
		}
		return nil, errors.New("timeout")
	}

	dark := mustPattern(t, "dark", []string{"fractal"}, "dark")
	light := mustPattern(t, "light", []string{"fractal"}, "light")
	got, err := Scan(context.Background(), next, Budget{MaxPages: 3}, dark, light)
	require.NoError(t, err)
	assert.Equal(t, 1, got["dark"].Position)
	assert.False(t, got["light"].Found)
}

func TestPlace(t *testing.T) {
	canon := func(brand string) (string, bool) {
		switch brand {
		case "VATN":
			return "VATN", true
		case "Söder Tackle":
			return "Söder Tackle", true
		}
		return "", false
	}
	items := []Listed{
		{Brand: "VATN", Title: "Spinnare"},
		{Brand: "Abu", Title: "Rulle"},
		{Brand: "Abu", Title: "Sponsored rulle"},
		{Brand: "Söder Tackle", Title: "Jigg"},
		{Brand: "Rapala", Title: "Wobbler"},
	}

	p := Place(items, canon)
	assert.Equal(t, 4, p.Total)
	assert.Equal(t, []int{1, 3}, p.Positions)
	assert.Equal(t, 2, p.Count())
	assert.Equal(t, 0.5, p.Share())
	assert.Equal(t, (4+1-1)+(4+1-3), p.Score())
	assert.Equal(t, "1,3", p.Joined())
	assert.Equal(t, []int{3}, p.PerBrand["Söder Tackle"])

	empty := Place(nil, canon)
	assert.Zero(t, empty.Share())
}
