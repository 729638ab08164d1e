package reddit

import (
	"bytes"
	"context"
	"html"
	"iter"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/ports/adapter"
)

var _ adapter.PostSource = (*FeedClient)(nil)

var (
	spaceRe       = regexp.MustCompile(`\s+`)
	submittedByRe = regexp.MustCompile(`(?i)\s*submitted by\s+/u/.*$`)
)

// FeedClient searches through the subreddit RSS endpoint. It carries no scores or
// comment counts, so it is the low-fidelity mode used when the JSON API refuses us.
// Existence probes and comments still go through the JSON client.
type FeedClient struct {
	*Client

	parser *gofeed.Parser
	policy *bluemonday.Policy
	flog   *zerolog.Logger
}

func NewFeedClient(c *Client, logger *zerolog.Logger) *FeedClient {
	l := logger.With().Str("component", "RedditFeed").Logger()
	return &FeedClient{
		Client: c,
		parser: gofeed.NewParser(),
		policy: bluemonday.StrictPolicy(),
		flog:   &l,
	}
}

// Search reads a single feed page; RSS has no cursor.
func (f *FeedClient) Search(ctx context.Context, q adapter.SearchQuery) iter.Seq2[adapter.RawPost, error] {
	return func(yield func(adapter.RawPost, error) bool) {
		if q.Limit <= 0 {
			return
		}
		params := url.Values{}
		params.Set("q", q.Keyword)
		params.Set("restrict_sr", "on")
		params.Set("sort", string(q.Sort))
		params.Set("t", string(q.TimeFilter))
		params.Set("limit", strconv.Itoa(min(q.Limit, maxPageSize)))

		body, err := f.getBody(ctx, "rss", "/r/"+url.PathEscape(q.Subreddit)+"/search.rss", params, "application/atom+xml")
		if err != nil {
			yield(adapter.RawPost{}, err)
			return
		}
		feed, err := f.parser.Parse(bytes.NewReader(body))
		if err != nil {
			f.flog.Warn().Err(err).Str("subreddit", q.Subreddit).Msg("unparseable feed")
			yield(adapter.RawPost{}, domain.ErrSourceUnavailable)
			return
		}

		n := 0
		for _, item := range feed.Items {
			raw, ok := f.toRaw(item, q.Subreddit)
			if !ok {
				continue
			}
			if !yield(raw, nil) {
				return
			}
			n++
			if n == q.Limit {
				return
			}
		}
	}
}

func (f *FeedClient) toRaw(item *gofeed.Item, subreddit string) (adapter.RawPost, bool) {
	id := item.GUID
	if i := strings.LastIndex(id, "t3_"); i >= 0 {
		id = id[i+3:]
	}
	if id == "" || item.Title == "" {
		return adapter.RawPost{}, false
	}

	author := deletedAuthor
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			author = strings.TrimPrefix(a.Name, "/u/")
			break
		}
	}
	created := time.Now().UTC()
	if item.PublishedParsed != nil {
		created = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		created = item.UpdatedParsed.UTC()
	}
	content := item.Content
	if content == "" {
		content = item.Description
	}

	return adapter.RawPost{
		SourceID:  id,
		Title:     html.UnescapeString(item.Title),
		Body:      f.plainText(content),
		Author:    author,
		Subreddit: subreddit,
		Permalink: item.Link,
		CreatedAt: created,
	}, true
}

// plainText strips markup and the trailing "submitted by" boilerplate.
func (f *FeedClient) plainText(s string) string {
	s = html.UnescapeString(f.policy.Sanitize(s))
	s = spaceRe.ReplaceAllString(s, " ")
	s = submittedByRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
