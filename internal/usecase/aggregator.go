package usecase

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"reddit-insights/internal/domain/model"
)

const (
	topPainPointItems = 5
	topFeatureItems   = 5
	topBrandItems     = 3
	minBrandMentions  = 2
	minItems          = 3
	segmentShare      = 0.30

	statsPainPoints = 15
	statsFeatures   = 10
	statsBrands     = 10

	recencyHalfLifeDays = 30.0
)

// ImpactScore is round(100*(0.5F + 0.3S + 0.2R)) where F = 1-e^(-freq/3) saturates with
// frequency, S is mean negative severity in [0,1] and R is mean recency in [0,1].
// It is non-decreasing in every argument and bounded to [0,100].
func ImpactScore(freq int, severity, recency float64) int {
	f := 1 - math.Exp(-float64(max(freq, 0))/3)
	v := math.Round(100 * (0.5*f + 0.3*clamp01(severity) + 0.2*clamp01(recency)))
	return int(min(max(v, 0), 100))
}

// Severity is the mean of max(0, -score) over posts.
func Severity(posts []*model.Post) float64 {
	if len(posts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range posts {
		sum += max(0, -p.SentimentScore())
	}
	return sum / float64(len(posts))
}

// Recency is the mean of 0.5^(age_days/30) over posts.
func Recency(posts []*model.Post, now time.Time) float64 {
	if len(posts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range posts {
		days := max(0, now.Sub(p.SourceCreated).Hours()/24)
		sum += math.Pow(0.5, days/recencyHalfLifeDays)
	}
	return sum / float64(len(posts))
}

func clamp01(v float64) float64 { return min(max(v, 0), 1) }

// normalizeTerm lowercases and collapses whitespace so phrases group together.
func normalizeTerm(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

type termGroup struct {
	key     string
	display string
	posts   []*model.Post
}

// groupTerms counts each normalized phrase once per post. Groups come back by
// frequency, ties broken by first appearance.
func groupTerms(posts []*model.Post, extract func(*model.Analysis) []string) []*termGroup {
	idx := map[string]*termGroup{}
	var order []*termGroup
	for _, p := range posts {
		if p.Analysis == nil {
			continue
		}
		seen := map[string]bool{}
		for _, raw := range extract(p.Analysis) {
			k := normalizeTerm(raw)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			g, ok := idx[k]
			if !ok {
				g = &termGroup{key: k, display: strings.Join(strings.Fields(raw), " ")}
				idx[k] = g
				order = append(order, g)
			}
			g.posts = append(g.posts, p)
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return len(order[i].posts) > len(order[j].posts) })
	return order
}

func painPointsOf(a *model.Analysis) []string { return a.PainPoints }
func featuresOf(a *model.Analysis) []string   { return a.FeatureRequests }
func brandsOf(a *model.Analysis) []string     { return a.Brands }

// RankPosts orders posts by relevance to phrase: a text match counts 1, plus the
// sentiment extremity |score|. Ties keep discovery order.
func RankPosts(posts []*model.Post, phrase string) []*model.Post {
	phrase = normalizeTerm(phrase)
	type scored struct {
		p *model.Post
		r float64
	}
	ss := make([]scored, len(posts))
	for i, p := range posts {
		r := math.Abs(p.SentimentScore())
		text := normalizeTerm(p.Text())
		switch {
		case phrase != "" && strings.Contains(text, phrase):
			r++
		case phrase == "" && p.MatchedKeyword != "" && strings.Contains(text, normalizeTerm(p.MatchedKeyword)):
			r++
		}
		ss[i] = scored{p, r}
	}
	sort.SliceStable(ss, func(i, j int) bool {
		if ss[i].r != ss[j].r {
			return ss[i].r > ss[j].r
		}
		return ss[i].p.Seq < ss[j].p.Seq
	})
	out := make([]*model.Post, len(ss))
	for i, s := range ss {
		out[i] = s.p
	}
	return out
}

// Aggregator turns a job's usable posts into ranked action items and statistics.
type Aggregator struct {
	now func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

type itemSpec struct {
	title, description string
	category           model.Category
	recommendations    []string
	posts              []*model.Post
	phrase             string
	feature            bool
}

// Aggregate builds the action items of a job, sorted by impact then title. Posts that
// are not usable are ignored; with none left there are no items.
func (a *Aggregator) Aggregate(jobID string, posts []*model.Post) []*model.ActionItem {
	usable := make([]*model.Post, 0, len(posts))
	for _, p := range posts {
		if p.State.Usable() && p.Analysis != nil {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return []*model.ActionItem{}
	}
	now := a.now().UTC()
	total := len(usable)
	var specs []itemSpec

	for _, g := range headGroups(groupTerms(usable, painPointsOf), topPainPointItems, 1) {
		specs = append(specs, itemSpec{
			title:       "Address Customer Pain Point: " + g.display,
			description: fmt.Sprintf("%d posts (%.0f%%) report %q as a problem.", len(g.posts), pct(len(g.posts), total), g.display),
			category:    model.CategoryProduct,
			recommendations: []string{
				fmt.Sprintf("Investigate the root cause of %q with product engineering", g.display),
				fmt.Sprintf("Publish guidance or a fix timeline addressing %q", g.display),
				fmt.Sprintf("Track mentions of %q after changes ship", g.display),
			},
			posts:  g.posts,
			phrase: g.key,
		})
	}

	for _, g := range headGroups(groupTerms(usable, featuresOf), topFeatureItems, 1) {
		specs = append(specs, itemSpec{
			title:       "Feature Request: " + g.display,
			description: fmt.Sprintf("%d posts ask for %q.", len(g.posts), g.display),
			category:    model.CategoryProduct,
			recommendations: []string{
				fmt.Sprintf("Evaluate feasibility of %q for the product roadmap", g.display),
				fmt.Sprintf("Validate demand for %q with existing customers", g.display),
				"Share roadmap decisions with the community",
			},
			posts:   g.posts,
			phrase:  g.key,
			feature: true,
		})
	}

	for _, g := range headGroups(groupTerms(usable, brandsOf), topBrandItems, minBrandMentions) {
		specs = append(specs, itemSpec{
			title: "Competitive Analysis: " + g.display,
			description: fmt.Sprintf("%s is mentioned in %d posts with an average sentiment of %.2f.",
				g.display, len(g.posts), avgScore(g.posts)),
			category: model.CategoryMarketing,
			recommendations: []string{
				fmt.Sprintf("Compare positioning against %s on the most discussed attributes", g.display),
				fmt.Sprintf("Monitor sentiment toward %s for shifts", g.display),
				fmt.Sprintf("Highlight differentiators in campaigns aimed at %s owners", g.display),
			},
			posts:  g.posts,
			phrase: g.key,
		})
	}

	negative := filterPosts(usable, func(p *model.Post) bool { return p.Analysis.Sentiment.IsNegative() })
	if len(negative) > 0 {
		specs = append(specs, itemSpec{
			title:       "Improve Customer Satisfaction",
			description: fmt.Sprintf("%d posts (%.0f%%) express negative sentiment.", len(negative), pct(len(negative), total)),
			category:    model.CategoryService,
			recommendations: []string{
				"Respond to negative threads with support resources",
				"Route recurring complaints to the service team",
				"Follow up publicly when issues are resolved",
			},
			posts: negative,
		})
	}

	positive := filterPosts(usable, func(p *model.Post) bool { return p.Analysis.Sentiment.IsPositive() })
	if share(len(positive), total) >= segmentShare {
		specs = append(specs, itemSpec{
			title:       "Leverage Positive Brand Advocacy",
			description: fmt.Sprintf("%.0f%% of posts are positive; satisfied users are a marketing asset.", pct(len(positive), total)),
			category:    model.CategoryMarketing,
			recommendations: []string{
				"Feature satisfied users in testimonials and case studies",
				"Launch a referral program for advocates",
				"Engage advocates in community threads",
			},
			posts: positive,
		})
	}

	pros := filterPosts(usable, func(p *model.Post) bool { return isProfessional(p.Analysis.UserType) })
	if share(len(pros), total) >= segmentShare {
		specs = append(specs, itemSpec{
			title:       "Target Professional Segment",
			description: fmt.Sprintf("%.0f%% of authors identify as professionals or contractors.", pct(len(pros), total)),
			category:    model.CategoryMarketing,
			recommendations: []string{
				"Develop fleet and volume pricing",
				"Publish total cost of ownership material",
				"Sponsor trade communities and events",
			},
			posts: pros,
		})
	}

	for _, f := range fillerSpecs(usable) {
		if len(specs) >= minItems {
			break
		}
		specs = append(specs, f)
	}

	items := make([]*model.ActionItem, 0, len(specs))
	for _, s := range specs {
		items = append(items, a.build(jobID, s, total, now))
	}
	SortActionItems(items)
	return items
}

func (a *Aggregator) build(jobID string, s itemSpec, total int, now time.Time) *model.ActionItem {
	freq := len(s.posts)
	sev := Severity(s.posts)
	rec := Recency(s.posts, now)
	impact := ImpactScore(freq, sev, rec)
	prio := model.PriorityFor(impact)
	effort := effortFor(s.category, freq, s.feature)
	timeline := timelineFor(prio, now)

	ranked := RankPosts(s.posts, s.phrase)
	ids := make([]string, 0, min(len(ranked), model.MaxRelatedPosts))
	for _, p := range ranked[:min(len(ranked), model.MaxRelatedPosts)] {
		ids = append(ids, p.ID)
	}

	return &model.ActionItem{
		JobID:           jobID,
		Title:           s.title,
		Description:     s.description,
		Category:        s.category,
		Priority:        prio,
		ImpactScore:     &impact,
		Effort:          &effort,
		Timeline:        &timeline,
		Recommendations: s.recommendations,
		RelatedPostIDs:  ids,
		Metrics: map[string]float64{
			"frequency":     float64(freq),
			"percentage":    math.Round(pct(freq, total)*10) / 10,
			"avg_sentiment": math.Round(avgScore(s.posts)*1000) / 1000,
			"severity":      math.Round(sev*1000) / 1000,
			"recency":       math.Round(rec*1000) / 1000,
		},
		CreatedAt: now,
	}
}

func fillerSpecs(posts []*model.Post) []itemSpec {
	one := posts[:1]
	return []itemSpec{
		{
			title:       "Monitor Community Sentiment",
			description: "Set up recurring runs to track how sentiment evolves over time.",
			category:    model.CategoryService,
			recommendations: []string{
				"Schedule this analysis monthly",
				"Alert the team when negative share rises",
			},
			posts: one,
		},
		{
			title:       "Expand Keyword Coverage",
			description: "Broaden keywords and communities to capture more of the conversation.",
			category:    model.CategoryMarketing,
			recommendations: []string{
				"Add competitor and product-line keywords",
				"Include adjacent trade communities",
			},
			posts: one,
		},
		{
			title:       "Engage in Community Discussions",
			description: "Participate in the communities where customers already talk about the product.",
			category:    model.CategoryMarketing,
			recommendations: []string{
				"Answer technical questions from an official account",
				"Share maintenance tips and how-to content",
			},
			posts: one,
		},
	}
}

// SortActionItems orders by impact descending, then title.
func SortActionItems(items []*model.ActionItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Impact() != items[j].Impact() {
			return items[i].Impact() > items[j].Impact()
		}
		return items[i].Title < items[j].Title
	})
}

func effortFor(cat model.Category, freq int, feature bool) model.Effort {
	switch {
	case cat == model.CategoryMarketing:
		return model.EffortLow
	case cat == model.CategoryProduct && freq >= 10:
		return model.EffortVeryHigh
	case feature || freq >= 5:
		return model.EffortHigh
	default:
		return model.EffortMedium
	}
}

// timelineFor names a calendar quarter relative to now: the next one for critical and
// high items, one later for medium, two later for low.
func timelineFor(p model.Priority, now time.Time) string {
	offset := 3
	switch p {
	case model.PriorityCritical, model.PriorityHigh:
		offset = 1
	case model.PriorityMedium:
		offset = 2
	}
	q := (int(now.Month())-1)/3 + offset
	return fmt.Sprintf("Q%d %d", q%4+1, now.Year()+q/4)
}

func headGroups(groups []*termGroup, n, minFreq int) []*termGroup {
	out := make([]*termGroup, 0, n)
	for _, g := range groups {
		if len(out) == n {
			break
		}
		if len(g.posts) >= minFreq {
			out = append(out, g)
		}
	}
	return out
}

func filterPosts(posts []*model.Post, keep func(*model.Post) bool) []*model.Post {
	var out []*model.Post
	for _, p := range posts {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func isProfessional(userType string) bool {
	ut := strings.ToLower(userType)
	return strings.Contains(ut, "professional") || strings.Contains(ut, "contractor") || strings.Contains(ut, "business")
}

func avgScore(posts []*model.Post) float64 {
	if len(posts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range posts {
		sum += p.SentimentScore()
	}
	return sum / float64(len(posts))
}

func share(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func pct(n, total int) float64 { return share(n, total) * 100 }

// BuildStats summarizes a job from its usable posts plus per-state and per-subreddit
// counts taken over all posts.
func BuildStats(usable []*model.Post, states map[model.AnalysisState]int, subreddits map[string]int) *model.Stats {
	st := &model.Stats{
		SentimentBreakdown: make(map[model.Sentiment]int, len(model.Sentiments)),
		SubredditCounts:    subreddits,
		UserTypes:          map[string]int{},
	}
	if st.SubredditCounts == nil {
		st.SubredditCounts = map[string]int{}
	}
	for _, s := range model.Sentiments {
		st.SentimentBreakdown[s] = 0
	}
	for state, n := range states {
		st.TotalPosts += n
		switch state {
		case model.AnalysisDone:
			st.AnalyzedPosts = n
		case model.AnalysisDegraded:
			st.DegradedPosts = n
		case model.AnalysisFailed:
			st.FailedPosts = n
		}
	}

	var sum float64
	var scored int
	for _, p := range usable {
		if p.Analysis == nil {
			continue
		}
		st.SentimentBreakdown[p.Analysis.Sentiment]++
		sum += p.Analysis.Score
		scored++
		if p.Analysis.UserType != "" {
			st.UserTypes[p.Analysis.UserType]++
		}
	}
	if scored > 0 {
		st.AvgSentimentScore = math.Round(sum/float64(scored)*1000) / 1000
	}
	st.TopPainPoints = termCounts(groupTerms(usable, painPointsOf), statsPainPoints)
	st.TopFeatureRequests = termCounts(groupTerms(usable, featuresOf), statsFeatures)
	st.TopBrands = termCounts(groupTerms(usable, brandsOf), statsBrands)
	return st
}

func termCounts(groups []*termGroup, n int) []model.TermCount {
	out := make([]model.TermCount, 0, min(n, len(groups)))
	for _, g := range groups[:min(n, len(groups))] {
		out = append(out, model.TermCount{Text: g.key, Count: len(g.posts)})
	}
	return out
}
