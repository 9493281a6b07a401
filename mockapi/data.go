package mockapi

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/analyticbot/apiclient/services"
)

// seeded returns a generator whose output depends only on the id and salt,
// so the same channel and period always yield the same report.
func seeded(id int64, salt string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(salt))
	return rand.New(rand.NewPCG(uint64(id), h.Sum64()))
}

func periodDays(period string) int {
	switch period {
	case "24h":
		return 1
	case "7d":
		return 7
	case "90d":
		return 90
	default:
		return 30
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func overview(ch services.Channel, period string) services.Overview {
	rng := seeded(ch.ID, "overview:"+period)
	days := int64(periodDays(period))
	posts := days * (1 + rng.Int64N(4))
	views := posts * (ch.SubscriberCount/5 + rng.Int64N(ch.SubscriberCount/3+1))
	reach := float64(views) / float64(max(posts, 1))
	return services.Overview{
		ChannelID:        ch.ID,
		Period:           period,
		Subscribers:      ch.SubscriberCount,
		SubscriberGrowth: rng.Int64N(ch.SubscriberCount/20+1) - ch.SubscriberCount/100,
		Posts:            posts,
		Views:            views,
		AvgReach:         round2(reach),
		EngagementRate:   round2(1 + rng.Float64()*9),
	}
}

func postDynamics(ch services.Channel, period string, to time.Time) services.PostDynamics {
	rng := seeded(ch.ID, "dynamics:"+period)
	step := 24 * time.Hour
	buckets := periodDays(period)
	if period == "24h" {
		step = time.Hour
		buckets = 24
	}
	end := to.UTC().Truncate(step)
	points := make([]services.DynamicsPoint, buckets)
	for i := range points {
		views := ch.SubscriberCount/10 + rng.Int64N(ch.SubscriberCount/4+1)
		points[i] = services.DynamicsPoint{
			Timestamp: end.Add(-time.Duration(buckets-1-i) * step),
			Views:     views,
			Reactions: views / (20 + rng.Int64N(30)),
			Forwards:  views / (80 + rng.Int64N(120)),
		}
	}
	return services.PostDynamics{ChannelID: ch.ID, Period: period, Points: points}
}

var postTexts = []string{
	"Weekly digest",
	"Release notes",
	"Behind the scenes",
	"Community poll results",
	"Tips and tricks",
	"Announcement",
	"Monthly report",
	"Q&A recap",
}

func topPosts(ch services.Channel, period string, to time.Time, limit int) []services.TopPost {
	rng := seeded(ch.ID, "top:"+period)
	days := periodDays(period)
	n := min(limit, days*2+3)
	posts := make([]services.TopPost, n)
	for i := range posts {
		views := ch.SubscriberCount/3 + rng.Int64N(ch.SubscriberCount+1)
		posts[i] = services.TopPost{
			ID:          ch.ID*10_000 + int64(i) + 1,
			Text:        postTexts[rng.IntN(len(postTexts))],
			Views:       views,
			Reactions:   views / (10 + rng.Int64N(20)),
			Forwards:    views / (40 + rng.Int64N(60)),
			PublishedAt: to.UTC().Add(-time.Duration(rng.IntN(days*24)) * time.Hour).Truncate(time.Minute),
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].Views > posts[j].Views })
	return posts
}

func bestTime(ch services.Channel, period string) []services.BestTimeSlot {
	rng := seeded(ch.ID, "best:"+period)
	slots := make([]services.BestTimeSlot, 0, 7)
	for day := range 7 {
		slots = append(slots, services.BestTimeSlot{
			Weekday: day,
			Hour:    8 + rng.IntN(14),
			Score:   round2(rng.Float64() * 100),
		})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Score > slots[j].Score })
	return slots
}

func engagement(ch services.Channel, period string) services.Engagement {
	ov := overview(ch, period)
	rng := seeded(ch.ID, "engagement:"+period)
	reactions := ov.Views / (15 + rng.Int64N(20))
	return services.Engagement{
		ChannelID:      ch.ID,
		Period:         period,
		Rate:           ov.EngagementRate,
		Reactions:      reactions,
		Comments:       reactions / (3 + rng.Int64N(5)),
		Forwards:       ov.Views / (60 + rng.Int64N(60)),
		ViewsPerPost:   ov.AvgReach,
		ERRByFollowers: round2(ov.AvgReach / float64(max(ch.SubscriberCount, 1)) * 100),
	}
}
