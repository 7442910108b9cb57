package loadgen

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/civicflow/internal/domain/scoring"
	"github.com/okian/civicflow/internal/domain/types"
)

// Generated reports cluster around this point.
const (
	centerLat = 40.7128
	centerLng = -74.0060
	spreadDeg = 0.05
)

var issues = []string{ //nolint:gochecknoglobals // sample corpus
	"Overflowing garbage bin",
	"Pothole in the right lane",
	"Streetlight out since last week",
	"Water main leak on the sidewalk",
	"Blocked storm drain",
	"Fallen tree across the path",
}

// plannedReport is one report and what the run will do with it.
type plannedReport struct {
	Submit   types.SubmitReport
	Owner    string
	Upvoters []string
	Resolve  bool

	// Filled in as steps succeed.
	id       string
	upvoted  []string
	resolved bool
}

// plan is the full run: who submits what and which reports get resolved.
type plan struct {
	users   []string
	reports []*plannedReport
}

func newPlan(cfg Config, rng *rand.Rand) *plan {
	p := &plan{users: make([]string, cfg.Users)}
	run := uuid.NewString()[:8]
	for i := range p.users {
		p.users[i] = fmt.Sprintf("loadgen-%s-%03d", run, i)
	}

	resolveCount := int(float64(cfg.Reports) * cfg.ResolveRatio)
	p.reports = make([]*plannedReport, cfg.Reports)
	for i := range p.reports {
		owner := p.users[rng.IntN(len(p.users))]
		pr := &plannedReport{
			Owner: owner,
			Submit: types.SubmitReport{
				Description: fmt.Sprintf("%s (#%d)", issues[rng.IntN(len(issues))], i),
				Latitude:    centerLat + (rng.Float64()*2-1)*spreadDeg,
				Longitude:   centerLng + (rng.Float64()*2-1)*spreadDeg,
				Address:     fmt.Sprintf("%d Loadgen Ave", 1+rng.IntN(999)),
			},
			Resolve: i < resolveCount,
		}
		// Up to two upvoters, never the owner.
		for range rng.IntN(3) {
			u := p.users[rng.IntN(len(p.users))]
			if u != owner && !contains(pr.Upvoters, u) {
				pr.Upvoters = append(pr.Upvoters, u)
			}
		}
		p.reports[i] = pr
	}
	return p
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// expected holds the points each user should end with, counting only steps
// the service accepted.
type expected struct {
	lifetime map[string]int64
	board    map[string]int64
}

func (p *plan) expectations() expected {
	e := expected{lifetime: map[string]int64{}, board: map[string]int64{}}
	for _, r := range p.reports {
		if !r.resolved {
			continue
		}
		e.lifetime[r.Owner] += scoring.SubmitterReward
		e.board[r.Owner] += scoring.SubmitterReward
		for _, u := range r.upvoted {
			e.lifetime[u] += scoring.UpvoterReward
		}
	}
	return e
}
