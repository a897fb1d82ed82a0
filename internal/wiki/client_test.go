package wiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeWiki serves list=search and prop=extracts like the MediaWiki Action API.
type fakeWiki struct {
	searchBody  string
	extractBody string
	status      int
	delay       time.Duration

	searches  atomic.Int32
	extracts  atomic.Int32
	lastQuery atomic.Value
	userAgent atomic.Value
}

func (f *fakeWiki) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.userAgent.Store(r.Header.Get("User-Agent"))
	f.lastQuery.Store(r.URL.Query())
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		fmt.Fprint(w, "upstream unavailable")
		return
	}
	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case q.Get("list") == "search":
		f.searches.Add(1)
		fmt.Fprint(w, f.searchBody)
	case q.Get("prop") == "extracts":
		f.extracts.Add(1)
		fmt.Fprint(w, f.extractBody)
	default:
		http.Error(w, "bad request", http.StatusBadRequest)
	}
}

func newFake(t *testing.T, f *fakeWiki, format ExtractFormat) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(Options{APIURL: srv.URL, Format: format, Timeout: 2 * time.Second})
}

const osmosisSearch = `{"batchcomplete":"","query":{"searchinfo":{"totalhits":2},"search":[
	{"ns":0,"title":"Osmosis","pageid":42,"size":100},
	{"ns":0,"title":"Reverse osmosis","pageid":7,"size":50}]}}`

func TestSearch(t *testing.T) {
	f := &fakeWiki{searchBody: osmosisSearch}
	c := newFake(t, f, FormatText)

	hits, err := c.Search(context.Background(), "What is osmosis")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []SearchHit{{PageID: 42, Title: "Osmosis", Rank: 0}, {PageID: 7, Title: "Reverse osmosis", Rank: 1}}
	if len(hits) != len(want) {
		t.Fatalf("hits = %+v", hits)
	}
	for i := range want {
		if hits[i] != want[i] {
			t.Errorf("hits[%d] = %+v, want %+v", i, hits[i], want[i])
		}
	}

	q := f.lastQuery.Load().(url.Values)
	if got := q["srsearch"]; len(got) != 1 || got[0] != "What is osmosis" {
		t.Errorf("srsearch = %v", got)
	}
	if ua := f.userAgent.Load().(string); ua != DefaultUserAgent {
		t.Errorf("User-Agent = %q", ua)
	}
}

func TestFetchSummary(t *testing.T) {
	f := &fakeWiki{extractBody: `{"query":{"pages":{"42":{"pageid":42,"title":"Osmosis","extract":"Osmosis is..."}}}}`}
	c := newFake(t, f, FormatText)

	got, err := c.FetchSummary(context.Background(), 42)
	if err != nil {
		t.Fatalf("FetchSummary: %v", err)
	}
	if got != "Osmosis is..." {
		t.Errorf("extract = %q", got)
	}
	q := f.lastQuery.Load().(url.Values)
	for _, key := range []string{"exintro", "explaintext"} {
		if len(q[key]) == 0 {
			t.Errorf("missing %s parameter", key)
		}
	}
	if q["pageids"][0] != "42" {
		t.Errorf("pageids = %v", q["pageids"])
	}
}

func TestFetchSummary_MissingPage(t *testing.T) {
	f := &fakeWiki{extractBody: `{"query":{"pages":{"-1":{"missing":""}}}}`}
	c := newFake(t, f, FormatText)

	got, err := c.FetchSummary(context.Background(), 42)
	if err != nil {
		t.Fatalf("FetchSummary: %v", err)
	}
	if got != "" {
		t.Errorf("extract = %q, want empty", got)
	}
}

func TestFetchSummary_Markdown(t *testing.T) {
	f := &fakeWiki{extractBody: `{"query":{"pages":{"42":{"extract":"<p><b>Osmosis</b> is the movement of <i>solvent</i>.</p>"}}}}`}
	c := newFake(t, f, FormatMarkdown)

	got, err := c.FetchSummary(context.Background(), 42)
	if err != nil {
		t.Fatalf("FetchSummary: %v", err)
	}
	if !strings.Contains(got, "**Osmosis**") {
		t.Errorf("markdown extract = %q, want bold title", got)
	}
	if strings.Contains(got, "<p>") {
		t.Errorf("markdown extract still has HTML: %q", got)
	}
	q := f.lastQuery.Load().(url.Values)
	if _, ok := q["explaintext"]; ok {
		t.Error("markdown mode must request HTML extracts")
	}
}

func TestRetrieve(t *testing.T) {
	f := &fakeWiki{
		searchBody:  osmosisSearch,
		extractBody: `{"query":{"pages":{"42":{"extract":"Osmosis is..."}}}}`,
	}
	c := newFake(t, f, FormatText)

	r := c.Retrieve(context.Background(), "What is osmosis")
	if r.SearchErr != nil || r.ExtractErr != nil {
		t.Fatalf("unexpected errors: %v / %v", r.SearchErr, r.ExtractErr)
	}
	if r.Context != "Osmosis is..." {
		t.Errorf("Context = %q", r.Context)
	}
	if r.Hit == nil || r.Hit.PageID != 42 {
		t.Errorf("Hit = %+v, want page 42", r.Hit)
	}
}

func TestRetrieve_NoHitsSkipsFetch(t *testing.T) {
	f := &fakeWiki{searchBody: `{"query":{"search":[]}}`}
	c := newFake(t, f, FormatText)

	r := c.Retrieve(context.Background(), "xyzzy plugh")
	if r.Context != "" || r.Hit != nil || r.SearchErr != nil {
		t.Errorf("Retrieval = %+v, want empty", r)
	}
	if n := f.extracts.Load(); n != 0 {
		t.Errorf("extract endpoint called %d times, want 0", n)
	}
}

func TestRetrieve_HTTPError(t *testing.T) {
	f := &fakeWiki{status: http.StatusInternalServerError}
	c := newFake(t, f, FormatText)

	r := c.Retrieve(context.Background(), "osmosis")
	var se *StatusError
	if !errors.As(r.SearchErr, &se) || se.StatusCode != 500 {
		t.Fatalf("SearchErr = %v, want StatusError 500", r.SearchErr)
	}
	if r.Context != "" {
		t.Errorf("Context = %q, want empty", r.Context)
	}
}

func TestRetrieve_ExtractFailure(t *testing.T) {
	f := &fakeWiki{searchBody: osmosisSearch, extractBody: `not json`}
	c := newFake(t, f, FormatText)

	r := c.Retrieve(context.Background(), "osmosis")
	if r.SearchErr != nil {
		t.Fatalf("SearchErr = %v", r.SearchErr)
	}
	if r.ExtractErr == nil {
		t.Fatal("expected ExtractErr for undecodable body")
	}
	if r.Hit == nil || r.Context != "" {
		t.Errorf("Retrieval = %+v", r)
	}
}

func TestSearch_Timeout(t *testing.T) {
	f := &fakeWiki{searchBody: osmosisSearch, delay: time.Second}
	srv := httptest.NewServer(f)
	defer srv.Close()
	c := New(Options{APIURL: srv.URL, Timeout: 50 * time.Millisecond})

	_, err := c.Search(context.Background(), "osmosis")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestSearch_CallerCancel(t *testing.T) {
	f := &fakeWiki{searchBody: osmosisSearch, delay: time.Second}
	c := newFake(t, f, FormatText)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Search(ctx, "osmosis"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNewDefaults(t *testing.T) {
	c := New(Options{})
	if c.apiURL != DefaultAPIURL || c.userAgent != DefaultUserAgent || c.timeout != DefaultTimeout || c.format != FormatText {
		t.Errorf("defaults = %+v", c)
	}
}

func TestSearch_APIErrorInBody(t *testing.T) {
	f := &fakeWiki{searchBody: `{"error":{"code":"nosrsearch","info":"The \"srsearch\" parameter must be set."}}`}
	c := newFake(t, f, FormatText)

	_, err := c.Search(context.Background(), "osmosis")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Code != "nosrsearch" || apiErr.Op != "search" {
		t.Errorf("APIError = %+v", apiErr)
	}

	r := c.Retrieve(context.Background(), "osmosis")
	if r.SearchErr == nil {
		t.Error("Retrieve should report the API error as SearchErr")
	}
	if f.extracts.Load() != 0 {
		t.Errorf("extract called %d times after a failed search", f.extracts.Load())
	}
}

func TestFetchSummary_APIErrorInBody(t *testing.T) {
	f := &fakeWiki{extractBody: `{"error":{"code":"internal_api_error","info":"boom"}}`}
	c := newFake(t, f, FormatText)

	_, err := c.FetchSummary(context.Background(), 42)
	if err == nil || !strings.Contains(err.Error(), "internal_api_error") {
		t.Errorf("err = %v, want mediawiki error", err)
	}
}
