package model

// TermCount is one normalized phrase and how many posts mention it.
type TermCount struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// Stats summarizes the usable posts of a job.
type Stats struct {
	TotalPosts         int               `json:"total_posts"`
	AnalyzedPosts      int               `json:"analyzed_posts"`
	DegradedPosts      int               `json:"degraded_posts"`
	FailedPosts        int               `json:"failed_posts"`
	SentimentBreakdown map[Sentiment]int `json:"sentiment_breakdown"`
	AvgSentimentScore  float64           `json:"avg_sentiment_score"`
	SubredditCounts    map[string]int    `json:"subreddit_counts"`
	TopPainPoints      []TermCount       `json:"top_pain_points"`
	TopFeatureRequests []TermCount       `json:"top_feature_requests"`
	TopBrands          []TermCount       `json:"top_brands"`
	UserTypes          map[string]int    `json:"user_types"`
}

// PostFilter scopes a post listing to one job.
type PostFilter struct {
	JobID              string
	Sentiments         []Sentiment
	Subreddits         []string
	HasPainPoints      *bool
	HasFeatureRequests *bool
	Search             string
	SortBy             string
	SortDesc           bool
	Limit              int
	Offset             int
}

// ActionItemFilter scopes an action item listing to one job.
type ActionItemFilter struct {
	JobID    string
	Category Category
	Priority Priority
	SortBy   string
}

// ExecutiveSummary is the one-screen digest of a job.
type ExecutiveSummary struct {
	JobID              string            `json:"job_id"`
	TotalPosts         int               `json:"total_posts"`
	SentimentBreakdown map[Sentiment]int `json:"sentiment_breakdown"`
	PositivePercentage float64           `json:"positive_percentage"`
	NegativePercentage float64           `json:"negative_percentage"`
	ItemsByPriority    map[Priority]int  `json:"action_items_by_priority"`
	CriticalItems      int               `json:"critical_items"`
	HighPriorityItems  int               `json:"high_priority_items"`
	CompletedAt        *string           `json:"completed_at"`
	Subreddits         []string          `json:"subreddits_analyzed"`
	Keywords           []string          `json:"keywords_used"`
}

// ActionItemSummary aggregates a job's action items.
type ActionItemSummary struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"by_category"`
	ByPriority map[Priority]int `json:"by_priority"`
	AvgImpact  float64          `json:"avg_impact"`
}
