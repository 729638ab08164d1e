// Package reddit talks to Reddit's public JSON and RSS endpoints under a shared request budget.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/ports/adapter"
	"reddit-insights/internal/infra/metrics"
)

const (
	permalinkHost = "https://www.reddit.com"
	maxPageSize   = 100
	deletedAuthor = "[deleted]"
)

var _ adapter.PostSource = (*Client)(nil)

// Options configures a Client. Zero values fall back to sane defaults.
type Options struct {
	BaseURL     string
	UserAgent   string
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Timeout     time.Duration
}

// StatusError is a non-retryable or exhausted HTTP response from the source.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reddit %s: http %d", e.Endpoint, e.Code)
}

func (e *StatusError) Unwrap() error { return domain.ErrSourceUnavailable }

// Client reads Reddit's JSON API.
type Client struct {
	http        *http.Client
	base        string
	userAgent   string
	limiter     *Limiter
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
	log         *zerolog.Logger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(opts Options, limiter *Limiter, logger *zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = permalinkHost
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "reddit-insights/1.0"
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 10 * time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if limiter == nil {
		limiter = NewLimiter(2*time.Second, 1)
	}
	l := logger.With().Str("component", "RedditClient").Logger()
	return &Client{
		http:        &http.Client{Timeout: opts.Timeout},
		base:        strings.TrimRight(opts.BaseURL, "/"),
		userAgent:   opts.UserAgent,
		limiter:     limiter,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
		log:         &l,
		sleep:       sleepCtx,
	}
}

// --- wire types ---

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type linkData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Body        string  `json:"body"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

func (d linkData) raw() adapter.RawPost {
	author := d.Author
	if author == "" {
		author = deletedAuthor
	}
	body := d.Selftext
	if body == "" {
		body = d.Body
	}
	return adapter.RawPost{
		SourceID:    d.ID,
		Title:       d.Title,
		Body:        body,
		Author:      author,
		Subreddit:   d.Subreddit,
		Permalink:   permalinkHost + d.Permalink,
		Score:       d.Score,
		NumComments: d.NumComments,
		CreatedAt:   time.Unix(int64(d.CreatedUTC), 0).UTC(),
	}
}

// Search pages through /search.json with the "after" cursor until q.Limit items were yielded.
func (c *Client) Search(ctx context.Context, q adapter.SearchQuery) iter.Seq2[adapter.RawPost, error] {
	return func(yield func(adapter.RawPost, error) bool) {
		remaining := q.Limit
		after := ""
		for remaining > 0 {
			params := url.Values{}
			params.Set("q", q.Keyword+" subreddit:"+q.Subreddit)
			params.Set("sort", string(q.Sort))
			params.Set("t", string(q.TimeFilter))
			params.Set("limit", strconv.Itoa(min(remaining, maxPageSize)))
			params.Set("type", "link")
			params.Set("raw_json", "1")
			if after != "" {
				params.Set("after", after)
			}

			var page listing
			if err := c.getJSON(ctx, "search", "/search.json", params, &page); err != nil {
				yield(adapter.RawPost{}, err)
				return
			}
			for _, child := range page.Data.Children {
				if child.Kind != "" && child.Kind != "t3" {
					continue
				}
				var d linkData
				if err := json.Unmarshal(child.Data, &d); err != nil || d.ID == "" {
					continue
				}
				if !yield(d.raw(), nil) {
					return
				}
				remaining--
				if remaining == 0 {
					return
				}
			}
			after = page.Data.After
			if after == "" || len(page.Data.Children) == 0 {
				return
			}
		}
	}
}

// SubredditExists probes /r/<name>/about.json. 404 and 403 mean "no".
func (c *Client) SubredditExists(ctx context.Context, name string) (bool, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "r/")
	if name == "" {
		return false, domain.ErrInvalidArgument
	}
	var about struct {
		Data struct {
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	err := c.getJSON(ctx, "about", "/r/"+url.PathEscape(name)+"/about.json", nil, &about)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusNotFound || se.Code == http.StatusForbidden) {
			return false, nil
		}
		return false, err
	}
	return about.Data.DisplayName != "", nil
}

// Comments returns the top-level comments (kind t1) of a post.
func (c *Client) Comments(ctx context.Context, subreddit, postID string, limit int) ([]adapter.RawPost, error) {
	if limit <= 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(min(limit, maxPageSize)))
	params.Set("sort", "best")
	params.Set("raw_json", "1")

	var listings []listing
	path := "/r/" + url.PathEscape(subreddit) + "/comments/" + url.PathEscape(postID) + ".json"
	if err := c.getJSON(ctx, "comments", path, params, &listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, nil
	}
	out := make([]adapter.RawPost, 0, limit)
	for _, child := range listings[1].Data.Children {
		if child.Kind != "t1" {
			continue
		}
		var d linkData
		if err := json.Unmarshal(child.Data, &d); err != nil || d.ID == "" || d.Body == "" {
			continue
		}
		if d.Subreddit == "" {
			d.Subreddit = subreddit
		}
		out = append(out, d.raw())
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	body, err := c.getBody(ctx, endpoint, path, params, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrSourceUnavailable, endpoint, err)
	}
	return nil
}

// getBody performs a rate-limited GET with bounded retries.
func (c *Client) getBody(ctx context.Context, endpoint, path string, params url.Values, accept string) ([]byte, error) {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", accept)

		wait := CalculateBackoff(attempt, c.backoffBase, c.backoffMax)
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		} else {
			metrics.IncSourceRequest(endpoint, resp.StatusCode)
			switch ClassifyHTTPStatus(resp.StatusCode) {
			case StatusOK:
				b, err := io.ReadAll(resp.Body)
				resp.Body.Close()
				if err != nil {
					return nil, fmt.Errorf("%w: read %s: %v", domain.ErrSourceUnavailable, endpoint, err)
				}
				return b, nil
			case StatusBackoff:
				if d, ok := retryAfter(resp.Header); ok {
					wait = min(d, c.backoffMax)
				}
				drain(resp)
				lastErr = &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
				if resp.StatusCode == http.StatusTooManyRequests {
					// quota is per client, so everybody waits
					c.limiter.Backoff(wait)
					wait = 0
				}
			default:
				drain(resp)
				return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
			}
		}

		if attempt == c.maxRetries {
			break
		}
		c.log.Warn().Err(lastErr).Str("endpoint", endpoint).Int("attempt", attempt+1).Dur("backoff", wait).Msg("retrying source request")
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s failed after %d attempts: %v", domain.ErrSourceUnavailable, endpoint, c.maxRetries+1, lastErr)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
