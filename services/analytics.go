package services

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/analyticbot/apiclient/httpclient"
)

// DefaultTopPostsLimit is used when TopPosts is called with limit <= 0.
const DefaultTopPostsLimit = 10

// AnalyticsService reads channel analytics reports.
type AnalyticsService struct {
	*base
}

// Overview returns the channel summary for the period.
func (s *AnalyticsService) Overview(ctx context.Context, q AnalyticsQuery) (*Overview, error) {
	return report[Overview](ctx, s, "analytics.overview", ReportOverview, q, nil)
}

// PostDynamics returns the activity time series for the period.
func (s *AnalyticsService) PostDynamics(ctx context.Context, q AnalyticsQuery) (*PostDynamics, error) {
	return report[PostDynamics](ctx, s, "analytics.post_dynamics", ReportPostDynamics, q, nil)
}

// TopPosts returns the best performing posts for the period.
func (s *AnalyticsService) TopPosts(ctx context.Context, q AnalyticsQuery, limit int) ([]TopPost, error) {
	if limit <= 0 {
		limit = DefaultTopPostsLimit
	}
	posts, err := report[[]TopPost](ctx, s, "analytics.top_posts", ReportTopPosts, q,
		url.Values{"limit": {strconv.Itoa(limit)}})
	if err != nil {
		return nil, err
	}
	return *posts, nil
}

// BestTime returns posting slots ranked by expected engagement.
func (s *AnalyticsService) BestTime(ctx context.Context, q AnalyticsQuery) ([]BestTimeSlot, error) {
	slots, err := report[[]BestTimeSlot](ctx, s, "analytics.best_time", ReportBestTime, q, nil)
	if err != nil {
		return nil, err
	}
	return *slots, nil
}

// Engagement returns the interaction breakdown for the period.
func (s *AnalyticsService) Engagement(ctx context.Context, q AnalyticsQuery) (*Engagement, error) {
	return report[Engagement](ctx, s, "analytics.engagement", ReportEngagement, q, nil)
}

func report[T any](ctx context.Context, s *AnalyticsService, op, name string, q AnalyticsQuery, extra url.Values) (*T, error) {
	return call(ctx, s.base, op, func(ctx context.Context) (*T, error) {
		if err := s.check(q); err != nil {
			return nil, err
		}
		from, to, err := PeriodRange(q.Period, s.now())
		if err != nil {
			return nil, err
		}

		query := url.Values{
			"period": {q.Period},
			"from":   {from.Format(time.RFC3339)},
			"to":     {to.Format(time.RFC3339)},
		}
		for k, vs := range extra {
			query[k] = vs
		}

		out, err := httpclient.GetJSON[T](ctx, s.client, AnalyticsPath(q.ChannelID, name), &httpclient.Request{Query: query})
		if err != nil {
			return nil, err
		}
		return &out, nil
	})
}
