package crawler

import (
	"context"
	"io"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Item is one entry of a listing, in display order
type Item struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Price string `json:"price,omitempty"`
	Brand string `json:"brand,omitempty"`
}

// FullText returns the title followed by the item text
func (i Item) FullText() string {
	if i.Title == "" {
		return i.Text
	}
	return i.Title + " " + i.Text
}

// Fetcher interface defines how raw page text is obtained for a URL
type Fetcher interface {
	// Fetch retrieves the page and returns its UTF-8 body
	Fetch(ctx context.Context, url string) (io.Reader, error)
}

// Locator interface turns raw page text into ordered items
type Locator interface {
	// Locate returns the items found in the page, in display order
	Locate(r io.Reader) ([]Item, error)
}

// Browser interface defines the interactive operations a headless browser
// offers on top of plain fetching
type Browser interface {
	// Open navigates to url, applies nav and returns the rendered HTML
	Open(ctx context.Context, url string, nav Navigation) (string, error)

	// Paginate opens url and clicks through next-page controls, returning
	// the rendered HTML of every visited page
	Paginate(ctx context.Context, url string, nav Navigation, next NextPage) ([]string, error)

	// Login signs in and keeps the session for later calls
	Login(ctx context.Context, login Login, username, password string) error

	// Close releases the browser
	Close()
}

// ElementHandlerFunc defines a function to customize extraction logic for elements
type ElementHandlerFunc func(*goquery.Selection) string

// Selectors contains CSS selectors for the elements of a listing
type Selectors struct {
	ItemList string `yaml:"item_list"`
	// Fallback selects the items when ItemList matches nothing
	Fallback string `yaml:"fallback"`
	Title    string `yaml:"title"`
	Price    string `yaml:"price"`
	// PriceAttrs are tried in order on the price element before its text
	PriceAttrs []string `yaml:"price_attrs"`
	Brand      string   `yaml:"brand"`
	BrandAttr  string   `yaml:"brand_attr"`
	TitleAttr  string   `yaml:"title_attr"`
	// Remove lists elements dropped from an item before its text is read
	Remove []string `yaml:"remove"`
}

// Navigation describes what to do with a page after it has loaded
type Navigation struct {
	WaitSelector string `yaml:"wait_selector"`
	// Dismiss holds button texts of cookie banners and popups to click away
	Dismiss []string `yaml:"dismiss"`
	Scrolls int      `yaml:"scrolls"`
	// LoadMore is the text of a "load more" button
	LoadMore       string `yaml:"load_more"`
	LoadMoreClicks int    `yaml:"load_more_clicks"`
	// CountSelector and Until stop load-more clicking once enough items show
	CountSelector string        `yaml:"count_selector"`
	Until         int           `yaml:"until"`
	Timeout       time.Duration `yaml:"timeout"`
}

// NextPage describes click-driven pagination
type NextPage struct {
	Selector     string `yaml:"selector"`
	WaitSelector string `yaml:"wait_selector"`
	MaxPages     int    `yaml:"max_pages"`
}

// Login describes a login form
type Login struct {
	URL          string `yaml:"url"`
	UserSelector string `yaml:"user_selector"`
	PassSelector string `yaml:"pass_selector"`
	Submit       string `yaml:"submit"`
	// SuccessURL is a regular expression the location must match afterwards
	SuccessURL string `yaml:"success_url"`
}
