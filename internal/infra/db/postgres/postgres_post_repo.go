package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/repository"
)

var _ repository.PostRepository = (*postRepo)(nil)

type postRepo struct {
	pool *pgxpool.Pool
}

func NewPostRepo(pool *pgxpool.Pool) *postRepo {
	return &postRepo{pool: pool}
}

const postColumns = `id, job_id, seq, source_id, parent_id, title, body, author, subreddit, url, score,
num_comments, source_created_at, matched_keyword, analysis_state, sentiment, sentiment_score,
pain_points, feature_requests, brands, user_type, summary, analyzed_at, created_at`

// sortable columns exposed by the listing endpoint
var postSortColumns = map[string]string{
	"":                  "seq",
	"seq":               "seq",
	"score":             "score",
	"num_comments":      "num_comments",
	"sentiment_score":   "sentiment_score",
	"reddit_created_at": "source_created_at",
	"created_at":        "created_at",
}

func (r *postRepo) InsertIfAbsent(ctx context.Context, tx repository.Tx, p *model.Post) (bool, error) {
	if p.ID == "" {
		p.ID = ulid.Make().String()
	}
	if p.State == "" {
		p.State = model.AnalysisPending
	}
	const q = `
INSERT INTO posts (id, job_id, seq, source_id, parent_id, title, body, author, subreddit, url, score,
                   num_comments, source_created_at, matched_keyword, analysis_state)
VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM posts WHERE job_id = $2),
        $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (job_id, source_id) DO NOTHING
RETURNING seq, created_at;`
	row, err := pickRow(ctx, r.pool, tx, q,
		p.ID, p.JobID, p.SourceID, p.ParentID, p.Title, p.Body, p.Author, p.Subreddit, p.URL, p.Score,
		p.NumComments, p.SourceCreated, p.MatchedKeyword, string(p.State))
	if err != nil {
		return false, err
	}
	if err := row.Scan(&p.Seq, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert post: %w", err)
	}
	return true, nil
}

func (r *postRepo) SaveAnalysis(ctx context.Context, tx repository.Tx, p *model.Post) error {
	a := p.Analysis
	if a == nil {
		na := model.NeutralAnalysis()
		a = &na
	}
	var sentiment *string
	var score *float64
	if p.State.Usable() {
		s := string(a.Sentiment)
		sentiment, score = &s, &a.Score
	}
	const q = `
UPDATE posts SET
  analysis_state = $3,
  sentiment = $4,
  sentiment_score = $5,
  pain_points = $6,
  feature_requests = $7,
  brands = $8,
  user_type = $9,
  summary = $10,
  analyzed_at = $11
WHERE job_id = $1 AND id = $2;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		p.JobID, p.ID, string(p.State), sentiment, score, nonNil(a.PainPoints), nonNil(a.FeatureRequests),
		nonNil(a.Brands), nullString(a.UserType), nullString(a.Summary), p.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postRepo) FindByID(ctx context.Context, tx repository.Tx, jobID, id string) (*model.Post, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+postColumns+` FROM posts WHERE job_id = $1 AND id = $2;`, jobID, id)
	if err != nil {
		return nil, err
	}
	return scanPost(row)
}

func (r *postRepo) FindByIDs(ctx context.Context, tx repository.Tx, jobID string, ids []string) ([]*model.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, tx, `SELECT `+postColumns+` FROM posts WHERE job_id = $1 AND id = ANY($2) ORDER BY seq;`, jobID, ids)
}

func (r *postRepo) ListPending(ctx context.Context, tx repository.Tx, jobID string, limit int) ([]*model.Post, error) {
	return r.list(ctx, tx, `SELECT `+postColumns+` FROM posts WHERE job_id = $1 AND analysis_state = 'pending' ORDER BY seq LIMIT $2;`, jobID, limit)
}

func (r *postRepo) ListUsable(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Post, error) {
	return r.list(ctx, tx, `SELECT `+postColumns+` FROM posts WHERE job_id = $1 AND analysis_state IN ('analyzed', 'degraded') ORDER BY seq;`, jobID)
}

func (r *postRepo) ListTopLevel(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Post, error) {
	return r.list(ctx, tx, `SELECT `+postColumns+` FROM posts WHERE job_id = $1 AND parent_id IS NULL ORDER BY seq;`, jobID)
}

func (r *postRepo) List(ctx context.Context, tx repository.Tx, f model.PostFilter) ([]*model.Post, int, error) {
	where, args := postWhere(f)

	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM posts WHERE `+where+`;`, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, scanErr(err)
	}

	col, ok := postSortColumns[f.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown sort %q", domain.ErrInvalidArgument, f.SortBy)
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC NULLS LAST"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, f.Offset, limit)
	q := fmt.Sprintf(`SELECT %s FROM posts WHERE %s ORDER BY %s %s, seq OFFSET $%d LIMIT $%d;`,
		postColumns, where, col, dir, len(args)-1, len(args))

	posts, err := r.list(ctx, tx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func postWhere(f model.PostFilter) (string, []interface{}) {
	clauses := []string{"job_id = $1"}
	args := []interface{}{f.JobID}
	next := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if len(f.Sentiments) > 0 {
		ss := make([]string, len(f.Sentiments))
		for i, s := range f.Sentiments {
			ss[i] = string(s)
		}
		clauses = append(clauses, "sentiment = ANY("+next(ss)+")")
	}
	if len(f.Subreddits) > 0 {
		lower := make([]string, len(f.Subreddits))
		for i, s := range f.Subreddits {
			lower[i] = strings.ToLower(s)
		}
		clauses = append(clauses, "LOWER(subreddit) = ANY("+next(lower)+")")
	}
	if f.HasPainPoints != nil {
		clauses = append(clauses, cardinalityClause("pain_points", *f.HasPainPoints))
	}
	if f.HasFeatureRequests != nil {
		clauses = append(clauses, cardinalityClause("feature_requests", *f.HasFeatureRequests))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := next("%" + s + "%")
		clauses = append(clauses, "(title ILIKE "+p+" OR body ILIKE "+p+")")
	}
	return strings.Join(clauses, " AND "), args
}

func cardinalityClause(col string, has bool) string {
	if has {
		return "cardinality(" + col + ") > 0"
	}
	return "cardinality(" + col + ") = 0"
}

func (r *postRepo) SubredditCounts(ctx context.Context, tx repository.Tx, jobID string) (map[string]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT subreddit, COUNT(*) FROM posts WHERE job_id = $1 GROUP BY subreddit;`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var sub string
		var n int
		if err := rows.Scan(&sub, &n); err != nil {
			return nil, scanErr(err)
		}
		out[sub] = n
	}
	return out, rows.Err()
}

func (r *postRepo) StateCounts(ctx context.Context, tx repository.Tx, jobID string) (map[model.AnalysisState]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT analysis_state, COUNT(*) FROM posts WHERE job_id = $1 GROUP BY analysis_state;`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.AnalysisState]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, scanErr(err)
		}
		out[model.AnalysisState(st)] = n
	}
	return out, rows.Err()
}

func (r *postRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Post, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPost(row pgx.Row) (*model.Post, error) {
	var (
		p         model.Post
		state     string
		sentiment *string
		score     *float64
		userType  *string
		summary   *string
		pains     []string
		features  []string
		brands    []string
	)
	err := row.Scan(&p.ID, &p.JobID, &p.Seq, &p.SourceID, &p.ParentID, &p.Title, &p.Body, &p.Author,
		&p.Subreddit, &p.URL, &p.Score, &p.NumComments, &p.SourceCreated, &p.MatchedKeyword, &state,
		&sentiment, &score, &pains, &features, &brands, &userType, &summary, &p.AnalyzedAt, &p.CreatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	p.State = model.AnalysisState(state)
	if p.State != model.AnalysisPending {
		a := model.Analysis{
			PainPoints:      nonNil(pains),
			FeatureRequests: nonNil(features),
			Brands:          nonNil(brands),
		}
		if sentiment != nil {
			a.Sentiment = model.Sentiment(*sentiment)
		}
		if score != nil {
			a.Score = *score
		}
		if userType != nil {
			a.UserType = *userType
		}
		if summary != nil {
			a.Summary = *summary
		}
		p.Analysis = &a
	}
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
