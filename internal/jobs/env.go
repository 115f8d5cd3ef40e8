// Package jobs runs the measurement pipelines. A job is a Spec naming one of
// the pipeline kinds plus its site parameters; Run turns it into sheet
// records and a one-line summary.
package jobs

import (
	"context"
	"io"
	"strings"
	"time"

	"sjsage522/metricworker/internal/crawler"
	"sjsage522/metricworker/internal/currency"
	"sjsage522/metricworker/internal/sheet"
	"sjsage522/metricworker/logger"
	"sjsage522/metricworker/pkg/errors"
	"sjsage522/metricworker/services/changes"
)

// Credentials is a username and password pair
type Credentials struct {
	Username string
	Password string
}

// Env holds the services jobs run against
type Env struct {
	// HTTP fetches static pages
	HTTP crawler.Fetcher
	// OpenBrowser starts a browser; it is called at most once per job
	OpenBrowser func(ctx context.Context) (crawler.Browser, error)
	Rates       currency.Provider
	// Sheets is read by jobs that compare with earlier rows
	Sheets      sheet.Store
	Changes     *changes.Registry
	Credentials map[string]Credentials
	Location    *time.Location
	Country     string
	Now         func() time.Time
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Stamp returns the measurement key for the current time
func (e Env) Stamp() string {
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	return e.now().In(loc).Format(sheet.StampLayout)
}

// Output is a record destined for a sheet
type Output struct {
	Sheet  string
	Record sheet.Record
}

// Result is what a job produced
type Result struct {
	Job     string
	Kind    Kind
	Outputs []Output
	Summary string
	Stamp   string
}

func (r *Result) add(sheetName string, rec sheet.Record) {
	r.Outputs = append(r.Outputs, Output{Sheet: sheetName, Record: rec})
}

// session is the per-run state of one job
type session struct {
	spec    Spec
	env     Env
	stamp   string
	country string
	log     *logger.Logger
	browser crawler.Browser
}

func newSession(spec Spec, env Env) *session {
	country := spec.Country
	if country == "" {
		country = env.Country
	}
	return &session{
		spec:    spec,
		env:     env,
		stamp:   env.Stamp(),
		country: strings.ToUpper(country),
		log:     logger.ForJob(spec.Name),
	}
}

// Browser returns the job's browser, starting it on first use
func (s *session) Browser(ctx context.Context) (crawler.Browser, error) {
	if s.browser != nil {
		return s.browser, nil
	}
	if s.env.OpenBrowser == nil {
		return nil, errors.NewConfiguration("job "+s.spec.Name+" needs a browser but none is configured", nil)
	}
	b, err := s.env.OpenBrowser(ctx)
	if err != nil {
		return nil, err
	}
	s.browser = b
	return b, nil
}

// fetcher returns the fetcher matching the job's Browser flag
func (s *session) fetcher(ctx context.Context) (crawler.Fetcher, error) {
	if !s.spec.Browser {
		if s.env.HTTP == nil {
			return nil, errors.NewConfiguration("no HTTP fetcher configured", nil)
		}
		return s.env.HTTP, nil
	}
	b, err := s.Browser(ctx)
	if err != nil {
		return nil, err
	}
	return crawler.BrowserFetcher{Browser: b, Navigation: s.spec.Navigation}, nil
}

func (s *session) record(fields ...sheet.Field) sheet.Record {
	return sheet.Record{
		KeyColumn: sheet.DateColumn,
		Key:       s.stamp,
		Match:     sheet.SameDay,
		Fields:    fields,
	}
}

func (s *session) close() {
	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
}

// skippable reports whether err only costs the current unit of work
func skippable(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() == nil && !errors.IsFatal(err)
}

// readAll drains a fetched body
func readAll(r io.Reader) ([]byte, error) {
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	return io.ReadAll(r)
}
