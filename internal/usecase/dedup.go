package usecase

import (
	"context"
	"strings"
	"time"

	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/adapter"
	"reddit-insights/internal/domain/ports/repository"
)

// commentPrefix marks comment ids so they never collide with link ids.
const commentPrefix = "t1_"

// Deduplicator merges the fetch results of one job into unique posts keyed by source id.
// Combinations are fed in declaration order, so the first keyword to surface an item
// is the one recorded on it. The store enforces the same rule across resumes.
type Deduplicator struct {
	jobID string
	posts repository.PostRepository
	seen  map[string]struct{}
}

func NewDeduplicator(jobID string, posts repository.PostRepository) *Deduplicator {
	return &Deduplicator{
		jobID: jobID,
		posts: posts,
		seen:  make(map[string]struct{}),
	}
}

// Admit persists raw as a post of the job unless its source id was already taken.
// It returns the stored post and whether it was new.
func (d *Deduplicator) Admit(ctx context.Context, tx repository.Tx, raw adapter.RawPost, keyword string, parent *model.Post) (*model.Post, bool, error) {
	p := newPostFromRaw(d.jobID, raw, keyword, parent)
	if _, dup := d.seen[p.SourceID]; dup {
		return nil, false, nil
	}
	inserted, err := d.posts.InsertIfAbsent(ctx, tx, p)
	if err != nil {
		return nil, false, err
	}
	d.seen[p.SourceID] = struct{}{}
	if !inserted {
		return nil, false, nil
	}
	return p, true, nil
}

func newPostFromRaw(jobID string, raw adapter.RawPost, keyword string, parent *model.Post) *model.Post {
	p := &model.Post{
		JobID:          jobID,
		SourceID:       raw.SourceID,
		Title:          strings.TrimSpace(raw.Title),
		Body:           optional(strings.TrimSpace(raw.Body)),
		Author:         optional(raw.Author),
		Subreddit:      raw.Subreddit,
		URL:            raw.Permalink,
		Score:          raw.Score,
		NumComments:    raw.NumComments,
		SourceCreated:  raw.CreatedAt,
		MatchedKeyword: keyword,
		State:          model.AnalysisPending,
		CreatedAt:      time.Now().UTC(),
	}
	if parent != nil {
		if !strings.HasPrefix(p.SourceID, commentPrefix) {
			p.SourceID = commentPrefix + p.SourceID
		}
		pid := parent.ID
		p.ParentID = &pid
		if p.Title == "" {
			p.Title = "Re: " + parent.Title
		}
		if p.Subreddit == "" {
			p.Subreddit = parent.Subreddit
		}
	}
	return p
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

