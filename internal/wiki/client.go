// Package wiki retrieves background text for a topic from the MediaWiki
// Action API: a full-text search, then the intro extract of the top hit.
package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultAPIURL    = "https://en.wikipedia.org/w/api.php"
	DefaultUserAgent = "wikichat/1.0 (Wikipedia question answering CLI)"
	DefaultTimeout   = 30 * time.Second

	maxBodySize = 5 * 1024 * 1024 // 5MB
)

// ExtractFormat selects how page extracts are returned.
type ExtractFormat string

const (
	FormatText     ExtractFormat = "text"
	FormatMarkdown ExtractFormat = "markdown"
)

// Options configures a Client. Zero values use the defaults above.
type Options struct {
	APIURL     string
	UserAgent  string
	Format     ExtractFormat
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to a MediaWiki Action API endpoint.
type Client struct {
	apiURL    string
	userAgent string
	format    ExtractFormat
	timeout   time.Duration
	http      *http.Client
	log       zerolog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	c := &Client{
		apiURL:    opts.APIURL,
		userAgent: opts.UserAgent,
		format:    opts.Format,
		timeout:   opts.Timeout,
		http:      opts.HTTPClient,
		log:       opts.Logger,
	}
	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.format == "" {
		c.format = FormatText
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c
}

// SearchHit is one search result, in service ranking order.
type SearchHit struct {
	PageID int    `json:"pageid"`
	Title  string `json:"title"`
	Rank   int    `json:"rank"`
}

// Retrieval is the outcome of Retrieve. Context is empty when nothing was
// found or a call failed; the failure is recorded in SearchErr or ExtractErr.
type Retrieval struct {
	Context    string
	Hit        *SearchHit
	SearchErr  error
	ExtractErr error
}

// Search runs a full-text search for topic.
func (c *Client) Search(ctx context.Context, topic string) ([]SearchHit, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"format":   {"json"},
		"srsearch": {topic},
	}

	var result struct {
		Error *APIError `json:"error"`
		Query struct {
			Search []struct {
				PageID int    `json:"pageid"`
				Title  string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := c.get(ctx, "search", params, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		result.Error.Op = "search"
		return nil, result.Error
	}

	hits := make([]SearchHit, 0, len(result.Query.Search))
	for i, r := range result.Query.Search {
		hits = append(hits, SearchHit{PageID: r.PageID, Title: r.Title, Rank: i})
	}
	return hits, nil
}

// FetchSummary returns the intro extract of a page. A missing page yields "".
func (c *Client) FetchSummary(ctx context.Context, pageID int) (string, error) {
	id := strconv.Itoa(pageID)
	params := url.Values{
		"action":  {"query"},
		"prop":    {"extracts"},
		"exintro": {"1"},
		"format":  {"json"},
		"pageids": {id},
	}
	if c.format != FormatMarkdown {
		params.Set("explaintext", "1")
	}

	var result struct {
		Error *APIError `json:"error"`
		Query struct {
			Pages map[string]struct {
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.get(ctx, "extract", params, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		result.Error.Op = "extract"
		return "", result.Error
	}

	extract := result.Query.Pages[id].Extract
	if c.format == FormatMarkdown && strings.TrimSpace(extract) != "" {
		md, err := htmltomarkdown.ConvertString(extract)
		if err != nil {
			return "", fmt.Errorf("convert extract to markdown: %w", err)
		}
		extract = strings.TrimSpace(md)
	}
	return extract, nil
}

// Retrieve searches for topic and fetches the top hit's extract. It never
// fails; errors are reported in the Retrieval.
func (c *Client) Retrieve(ctx context.Context, topic string) Retrieval {
	var r Retrieval

	hits, err := c.Search(ctx, topic)
	if err != nil {
		r.SearchErr = err
		return r
	}
	if len(hits) == 0 {
		c.log.Debug().Str("topic", topic).Msg("no search hits")
		return r
	}

	top := hits[0]
	r.Hit = &top
	extract, err := c.FetchSummary(ctx, top.PageID)
	if err != nil {
		r.ExtractErr = err
		return r
	}
	r.Context = extract
	return r
}

// get issues one bounded GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, op string, params url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL := c.apiURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: timed out after %s: %w", op, c.timeout, err)
		}
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("mediawiki request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// APIError is a MediaWiki error reported inside a 200 response body.
type APIError struct {
	Op   string `json:"-"`
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: mediawiki error %s: %s", e.Op, e.Code, e.Info)
}
