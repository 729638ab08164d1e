package model

import (
	"errors"
	"fmt"
	"strings"

	"reddit-insights/internal/domain"
)

type TimeFilter string

const (
	TimeFilterHour  TimeFilter = "hour"
	TimeFilterDay   TimeFilter = "day"
	TimeFilterWeek  TimeFilter = "week"
	TimeFilterMonth TimeFilter = "month"
	TimeFilterYear  TimeFilter = "year"
	TimeFilterAll   TimeFilter = "all"
)

type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortHot       SortOrder = "hot"
	SortTop       SortOrder = "top"
	SortNew       SortOrder = "new"
	SortComments  SortOrder = "comments"
)

const (
	MaxSubreddits    = 10
	MaxKeywords      = 10
	MinPostLimit     = 10
	MaxPostLimit     = 100
	DefaultPostLimit = 50
)

// JobConfig is immutable once the job is created.
type JobConfig struct {
	Subreddits      []string   `json:"subreddits"`
	Keywords        []string   `json:"keywords"`
	TimeFilter      TimeFilter `json:"time_filter"`
	Sort            SortOrder  `json:"sort_by"`
	PostLimit       int        `json:"post_limit"`
	IncludeComments bool       `json:"include_comments"`
}

// ValidationError names the offending field. It matches domain.ErrInvalidConfig.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return domain.ErrInvalidConfig }

// AsValidationError extracts the field-level detail from err, if any.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// Normalize applies defaults, cleans names and validates bounds.
func (c JobConfig) Normalize() (JobConfig, error) {
	out := c
	out.Subreddits = cleanList(c.Subreddits, NormalizeSubreddit)
	out.Keywords = cleanList(c.Keywords, strings.TrimSpace)

	if len(out.Subreddits) == 0 {
		return JobConfig{}, &ValidationError{Field: "subreddits", Reason: "at least one subreddit is required"}
	}
	if len(out.Subreddits) > MaxSubreddits {
		return JobConfig{}, &ValidationError{Field: "subreddits", Reason: fmt.Sprintf("at most %d subreddits", MaxSubreddits)}
	}
	if len(out.Keywords) == 0 {
		return JobConfig{}, &ValidationError{Field: "keywords", Reason: "at least one keyword is required"}
	}
	if len(out.Keywords) > MaxKeywords {
		return JobConfig{}, &ValidationError{Field: "keywords", Reason: fmt.Sprintf("at most %d keywords", MaxKeywords)}
	}

	if out.TimeFilter == "" {
		out.TimeFilter = TimeFilterYear
	}
	switch out.TimeFilter {
	case TimeFilterHour, TimeFilterDay, TimeFilterWeek, TimeFilterMonth, TimeFilterYear, TimeFilterAll:
	default:
		return JobConfig{}, &ValidationError{Field: "time_filter", Reason: fmt.Sprintf("unknown value %q", out.TimeFilter)}
	}

	if out.Sort == "" {
		out.Sort = SortRelevance
	}
	switch out.Sort {
	case SortRelevance, SortHot, SortTop, SortNew, SortComments:
	default:
		return JobConfig{}, &ValidationError{Field: "sort_by", Reason: fmt.Sprintf("unknown value %q", out.Sort)}
	}

	if out.PostLimit == 0 {
		out.PostLimit = DefaultPostLimit
	}
	if out.PostLimit < MinPostLimit || out.PostLimit > MaxPostLimit {
		return JobConfig{}, &ValidationError{Field: "post_limit", Reason: fmt.Sprintf("must be between %d and %d", MinPostLimit, MaxPostLimit)}
	}
	return out, nil
}

func (c JobConfig) Combinations() []Combination {
	out := make([]Combination, 0, len(c.Subreddits)*len(c.Keywords))
	for _, s := range c.Subreddits {
		for _, k := range c.Keywords {
			out = append(out, Combination{Subreddit: s, Keyword: k})
		}
	}
	return out
}

// EstimateSeconds is a rough wall-clock estimate shown to the submitter.
func (c JobConfig) EstimateSeconds() int {
	searches := len(c.Subreddits) * len(c.Keywords)
	posts := searches * c.PostLimit / 2
	return searches*3 + posts*2
}

// NormalizeSubreddit strips an "r/" prefix and surrounding slashes/space.
func NormalizeSubreddit(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/")
	if len(s) > 2 && strings.EqualFold(s[:2], "r/") {
		s = s[2:]
	}
	return strings.Trim(s, "/ ")
}

func cleanList(in []string, clean func(string) string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = clean(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
