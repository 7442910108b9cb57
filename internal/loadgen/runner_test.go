package loadgen

import (
	"context"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/civicflow/internal/adapters/http/api"
	service "github.com/okian/civicflow/internal/app"
	"github.com/okian/civicflow/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPlan(t *testing.T) {
	Convey("Given a plan", t, func() {
		cfg := Config{Reports: 40, Users: 5, ResolveRatio: 0.25}
		cfg.normalize()
		p := newPlan(cfg, rand.New(rand.NewPCG(1, 2)))

		So(p.users, ShouldHaveLength, 5)
		So(p.reports, ShouldHaveLength, 40)

		Convey("a quarter of the reports are marked for resolution", func() {
			n := 0
			for _, r := range p.reports {
				if r.Resolve {
					n++
				}
			}
			So(n, ShouldEqual, 10)
		})

		Convey("owners never upvote their own report", func() {
			for _, r := range p.reports {
				So(r.Upvoters, ShouldNotContain, r.Owner)
			}
		})

		Convey("expectations only count accepted steps", func() {
			r := p.reports[0]
			r.id = "r0"
			r.upvoted = []string{"x"}
			So(p.expectations().lifetime, ShouldBeEmpty)

			r.resolved = true
			e := p.expectations()
			So(e.lifetime[r.Owner], ShouldEqual, scoring.SubmitterReward)
			So(e.lifetime["x"], ShouldEqual, scoring.UpvoterReward)
			So(e.board[r.Owner], ShouldEqual, scoring.SubmitterReward)
			So(e.board["x"], ShouldEqual, 0)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a live service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(4))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()
		srv := httptest.NewServer(api.NewServer(svc).Handler())
		defer srv.Close()

		Convey("a run submits, resolves and verifies points", func() {
			stats, err := Run(ctx, Config{
				BaseURL:      srv.URL,
				Reports:      30,
				Users:        6,
				Workers:      4,
				ResolveRatio: 0.5,
				Timeout:      2 * time.Second,
				Settle:       5 * time.Second,
			}, nil)
			So(err, ShouldBeNil)
			So(stats.Submitted, ShouldEqual, 30)
			So(stats.Acknowledged, ShouldEqual, 15)
			So(stats.Resolved, ShouldEqual, 15)
			So(stats.Failed, ShouldEqual, 0)
			So(stats.Verified, ShouldEqual, 6)
		})
	})

	Convey("Given a server that never gets healthy", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := Run(context.Background(), Config{BaseURL: srv.URL, Timeout: 300 * time.Millisecond}, nil)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "health check")
	})
}
