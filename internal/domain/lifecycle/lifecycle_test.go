package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/civicflow/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func report(status model.Status, owner string) *model.Report {
	r := model.NewReport("r1", "broken light", "Elm St", owner, model.Location{Type: "Point", Coordinates: []float64{0, 0}}, nil, time.Now())
	r.Status = status
	return r
}

func TestAcknowledge(t *testing.T) {
	Convey("Given a policy", t, func() {
		p := New()
		now := time.Now()

		Convey("When acknowledging a submitted report", func() {
			r := report(model.StatusSubmitted, "u1")
			tr := p.Acknowledge("admin", now)

			Convey("Then it matches and stamps acknowledgedAt", func() {
				So(tr.Matches(r), ShouldBeTrue)
				tr.Apply(r)
				So(r.Status, ShouldEqual, model.StatusAcknowledged)
				So(*r.AcknowledgedAt, ShouldEqual, now)
				So(r.AcknowledgedBy, ShouldEqual, "admin")
			})
		})

		Convey("When acknowledging anything but a submitted report", func() {
			for _, s := range []model.Status{model.StatusAcknowledged, model.StatusResolved, model.StatusDeleted} {
				err := p.Explain(p.Acknowledge("admin", now), report(s, "u1"))
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
			}
		})
	})
}

func TestResolve(t *testing.T) {
	Convey("Given a policy", t, func() {
		p := New()
		now := time.Now()

		Convey("Self-service resolution", func() {
			Convey("is allowed for the owner after acknowledgement", func() {
				So(p.Resolve("u1", false, now).Matches(report(model.StatusAcknowledged, "u1")), ShouldBeTrue)
			})

			Convey("is forbidden for anyone else", func() {
				err := p.Explain(p.Resolve("u2", false, now), report(model.StatusAcknowledged, "u1"))
				So(errors.Is(err, model.ErrForbidden), ShouldBeTrue)
			})

			Convey("needs a prior acknowledgement", func() {
				err := p.Explain(p.Resolve("u1", false, now), report(model.StatusSubmitted, "u1"))
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("Admin resolution from SUBMITTED", func() {
			r := report(model.StatusSubmitted, "u1")
			tr := p.Resolve("admin", true, now)
			So(tr.Matches(r), ShouldBeTrue)
			tr.Apply(r)

			Convey("Then acknowledgedAt is filled in as well", func() {
				So(r.Status, ShouldEqual, model.StatusResolved)
				So(r.AcknowledgedAt, ShouldNotBeNil)
				So(r.ResolvedAt, ShouldNotBeNil)
				So(r.ResolvedBy, ShouldEqual, "admin")
			})
		})

		Convey("Resolving a resolved report is a conflict for everyone", func() {
			So(errors.Is(p.Explain(p.Resolve("admin", true, now), report(model.StatusResolved, "u1")), model.ErrConflict), ShouldBeTrue)
			So(errors.Is(p.Explain(p.Resolve("u1", false, now), report(model.StatusResolved, "u1")), model.ErrConflict), ShouldBeTrue)
		})

		Convey("Resolving a deleted report is an invalid transition", func() {
			So(errors.Is(p.Explain(p.Resolve("admin", true, now), report(model.StatusDeleted, "u1")), model.ErrInvalidTransition), ShouldBeTrue)
		})
	})
}

func TestDelete(t *testing.T) {
	Convey("Given a policy with a one hour dwell", t, func() {
		p := New(WithMinDwell(time.Hour))
		now := time.Now()

		Convey("An unacknowledged report can be deleted at once", func() {
			So(p.Delete("u1", now).Matches(report(model.StatusSubmitted, "u1")), ShouldBeTrue)
		})

		Convey("A freshly acknowledged report cannot", func() {
			r := report(model.StatusAcknowledged, "u1")
			ack := now.Add(-10 * time.Minute)
			r.AcknowledgedAt = &ack
			err := p.Explain(p.Delete("u1", now), r)
			So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
		})

		Convey("An acknowledgement older than the dwell can", func() {
			r := report(model.StatusResolved, "u1")
			ack := now.Add(-2 * time.Hour)
			r.AcknowledgedAt = &ack
			So(p.Delete("u1", now).Matches(r), ShouldBeTrue)
		})

		Convey("A deleted report cannot be deleted again", func() {
			err := p.Explain(p.Delete("u1", now), report(model.StatusDeleted, "u1"))
			So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
		})
	})
}
