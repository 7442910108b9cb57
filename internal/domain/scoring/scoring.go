// Package scoring defines points, badges and leaderboard ordering.
package scoring

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/okian/civicflow/internal/domain/model"
)

// Reward sizes credited on resolution, to both lifetime and monthly points.
const (
	SubmitterReward = 20
	UpvoterReward   = 5
)

// Badge is a tier label derived from lifetime points.
type Badge string

// Badge tiers.
const (
	BadgeBronze   Badge = "Bronze"
	BadgeSilver   Badge = "Silver"
	BadgeGold     Badge = "Gold"
	BadgePlatinum Badge = "Platinum"
)

type threshold struct {
	min   int64
	badge Badge
}

// Descending so the first match wins.
var thresholds = []threshold{ //nolint:gochecknoglobals // fixed tiers
	{1000, BadgePlatinum},
	{500, BadgeGold},
	{100, BadgeSilver},
	{0, BadgeBronze},
}

// BadgeFor maps lifetime points to a badge. It is monotonic in points.
func BadgeFor(lifetimePoints int64) Badge {
	for _, t := range thresholds {
		if lifetimePoints >= t.min {
			return t.badge
		}
	}
	return BadgeBronze
}

// ResolutionRewards returns the credits owed when r is resolved: the submitter
// once, and every distinct upvoter once. A submitter who also upvoted is
// credited for both roles.
func ResolutionRewards(r *model.Report) []model.PointsDelta {
	out := make([]model.PointsDelta, 0, 1+len(r.UpvotedBy))
	if r.SubmittedBy != "" {
		out = append(out, model.PointsDelta{UserID: r.SubmittedBy, Lifetime: SubmitterReward, Monthly: SubmitterReward})
	}
	seen := make(map[string]struct{}, len(r.UpvotedBy))
	for _, u := range r.UpvotedBy {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, model.PointsDelta{UserID: u, Lifetime: UpvoterReward, Monthly: UpvoterReward})
	}
	return out
}

// PeriodStart returns the first instant of t's UTC calendar month.
func PeriodStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Standing is one leaderboard row.
type Standing struct {
	UserID        string
	MonthlyPoints int64
	Badge         Badge
}

// MonthlyStandings ranks users by monthly points derived from resolved-report
// counts (SubmitterReward each). Users without resolutions appear with zero.
// Ties break by ascending user id. limit <= 0 returns every row.
func MonthlyStandings(users []model.User, resolvedCounts map[string]int64, limit int) []Standing {
	rows := make([]Standing, 0, len(users))
	known := make(map[string]struct{}, len(users))
	for _, u := range users {
		known[u.ID] = struct{}{}
		rows = append(rows, Standing{
			UserID:        u.ID,
			MonthlyPoints: resolvedCounts[u.ID] * SubmitterReward,
			Badge:         BadgeFor(u.LifetimePoints),
		})
	}
	for id, n := range resolvedCounts {
		if _, ok := known[id]; ok {
			continue
		}
		rows = append(rows, Standing{UserID: id, MonthlyPoints: n * SubmitterReward, Badge: BadgeFor(0)})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].MonthlyPoints != rows[j].MonthlyPoints {
			return rows[i].MonthlyPoints > rows[j].MonthlyPoints
		}
		return strings.Compare(rows[i].UserID, rows[j].UserID) < 0
	})
	if limit > 0 && len(rows) > limit {
		rows = slices.Clip(rows[:limit])
	}
	return rows
}
