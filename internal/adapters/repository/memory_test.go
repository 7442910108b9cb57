package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/civicflow/internal/domain/lifecycle"
	"github.com/okian/civicflow/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func seedReport(t *testing.T, s *MemoryReports, id, owner string, lat, lng float64, created time.Time) {
	t.Helper()
	loc, err := model.NewPoint(lat, lng)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Create(context.Background(), model.NewReport(id, "desc "+id, "addr", owner, loc, nil, created)); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryReportsTransition(t *testing.T) {
	Convey("Given a submitted report", t, func() {
		ctx := context.Background()
		s := NewMemoryReports()
		seedReport(t, s, "r1", "u1", 10, 10, time.Now())
		policy := lifecycle.New()

		Convey("When many acknowledges race", func() {
			var wins, losses atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := s.Transition(ctx, "r1", policy.Acknowledge(fmt.Sprintf("admin%d", i), time.Now()))
					if err == nil {
						wins.Add(1)
					} else if errors.Is(err, ErrConditionFailed) {
						losses.Add(1)
					}
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one applies", func() {
				So(wins.Load(), ShouldEqual, 1)
				So(losses.Load(), ShouldEqual, 19)
			})
		})

		Convey("When the condition fails", func() {
			cur, err := s.Transition(ctx, "r1", policy.Resolve("u1", false, time.Now()))

			Convey("Then the current record comes back with the error", func() {
				So(errors.Is(err, ErrConditionFailed), ShouldBeTrue)
				So(cur.Status, ShouldEqual, model.StatusSubmitted)
			})
		})

		Convey("When the report is unknown", func() {
			_, err := s.Transition(ctx, "nope", policy.Acknowledge("a", time.Now()))
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestMemoryReportsUpvote(t *testing.T) {
	Convey("Given a report", t, func() {
		ctx := context.Background()
		s := NewMemoryReports()
		seedReport(t, s, "r1", "u1", 0, 0, time.Now())

		Convey("Toggling twice restores the original state", func() {
			r, up, err := s.ToggleUpvote(ctx, "r1", "u2", time.Now())
			So(err, ShouldBeNil)
			So(up, ShouldBeTrue)
			So(r.Upvotes, ShouldEqual, 1)
			So(r.HasUpvoted("u2"), ShouldBeTrue)

			r, up, err = s.ToggleUpvote(ctx, "r1", "u2", time.Now())
			So(err, ShouldBeNil)
			So(up, ShouldBeFalse)
			So(r.Upvotes, ShouldEqual, 0)
			So(r.HasUpvoted("u2"), ShouldBeFalse)
		})

		Convey("Deleted reports refuse upvotes", func() {
			_, err := s.Transition(ctx, "r1", lifecycle.New().Delete("u1", time.Now()))
			So(err, ShouldBeNil)
			_, _, err = s.ToggleUpvote(ctx, "r1", "u2", time.Now())
			So(errors.Is(err, model.ErrInvalidState), ShouldBeTrue)
		})
	})
}

func TestMemoryReportsQueries(t *testing.T) {
	Convey("Given reports around a city", t, func() {
		ctx := context.Background()
		s := NewMemoryReports()
		base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		seedReport(t, s, "near", "u1", 12.9716, 77.5946, base)
		seedReport(t, s, "close", "u2", 12.9740, 77.5946, base.Add(time.Minute)) // ~270m north
		seedReport(t, s, "far", "u1", 13.0500, 77.5946, base.Add(2*time.Minute))

		Convey("Near returns hits within the radius, nearest first", func() {
			got, err := s.Near(ctx, 12.9716, 77.5946, 500, "", 50)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 2)
			So(got[0].ID, ShouldEqual, "near")
			So(got[1].ID, ShouldEqual, "close")
		})

		Convey("WithinBounds uses the box", func() {
			sw, _ := model.NewPoint(12.9, 77.5)
			ne, _ := model.NewPoint(13.0, 77.7)
			got, err := s.WithinBounds(ctx, sw, ne, 100)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 2)
		})

		Convey("List pages newest first and hides deleted", func() {
			_, err := s.Transition(ctx, "far", lifecycle.New().Delete("u1", time.Now()))
			So(err, ShouldBeNil)

			items, total, err := s.List(ctx, model.ReportFilter{}, 1, 1)
			So(err, ShouldBeNil)
			So(total, ShouldEqual, 2)
			So(items[0].ID, ShouldEqual, "close")

			items, total, _ = s.List(ctx, model.ReportFilter{Status: model.StatusDeleted}, 1, 10)
			So(total, ShouldEqual, 1)
			So(items[0].ID, ShouldEqual, "far")
		})

		Convey("Stats and resolved counts follow status", func() {
			now := time.Now()
			_, err := s.Transition(ctx, "near", lifecycle.New().Resolve("admin", true, now))
			So(err, ShouldBeNil)

			st, _ := s.Stats(ctx)
			So(st, ShouldResemble, model.ReportStats{Total: 3, Active: 2, Resolved: 1})

			counts, _ := s.ResolvedCountsSince(ctx, now.Add(-time.Hour))
			So(counts, ShouldResemble, map[string]int64{"u1": 1})
		})

		Convey("A classification merge leaves status alone", func() {
			_, err := s.Transition(ctx, "near", lifecycle.New().Resolve("admin", true, time.Now()))
			So(err, ShouldBeNil)
			r, err := s.MergeClassification(ctx, "near", model.ClassificationResult{Department: "Environment", Severity: "LOW"}, time.Now())
			So(err, ShouldBeNil)
			So(r.Status, ShouldEqual, model.StatusResolved)
			So(r.Department, ShouldEqual, "Environment")
		})
	})
}

func TestMemoryUsers(t *testing.T) {
	Convey("Given a points ledger", t, func() {
		ctx := context.Background()
		s := NewMemoryUsers()
		april := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		may := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

		_, err := s.AddPoints(ctx, model.PointsDelta{UserID: "u1", Lifetime: 20, Monthly: 20}, april, april.Add(time.Hour))
		So(err, ShouldBeNil)

		Convey("A credit in a new period lazily zeroes monthly points first", func() {
			u, err := s.AddPoints(ctx, model.PointsDelta{UserID: "u1", Lifetime: 5, Monthly: 5}, may, may.Add(time.Hour))
			So(err, ShouldBeNil)
			So(u.LifetimePoints, ShouldEqual, 25)
			So(u.MonthlyPoints, ShouldEqual, 5)
		})

		Convey("ResetMonthly is idempotent per period", func() {
			n, _ := s.ResetMonthly(ctx, may, may)
			So(n, ShouldEqual, 1)
			n, _ = s.ResetMonthly(ctx, may, may)
			So(n, ShouldEqual, 0)

			u, _ := s.Get(ctx, "u1")
			So(u.MonthlyPoints, ShouldEqual, 0)
			So(u.LifetimePoints, ShouldEqual, 20)
		})

		Convey("Device tokens need a known user", func() {
			So(s.SetDeviceToken(ctx, "u1", "tok", may), ShouldBeNil)
			So(errors.Is(s.SetDeviceToken(ctx, "ghost", "tok", may), model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestMemoryNotifications(t *testing.T) {
	Convey("Given an inbox with three rows", t, func() {
		ctx := context.Background()
		s := NewMemoryNotifications()
		base := time.Now()
		for i := 0; i < 3; i++ {
			So(s.Insert(ctx, &model.Notification{
				ID: fmt.Sprintf("n%d", i), RecipientID: "u1", ReportID: "r1", CreatedAt: base.Add(time.Duration(i) * time.Second),
			}), ShouldBeNil)
		}

		Convey("Pages come newest first", func() {
			items, _ := s.ListByRecipient(ctx, "u1", 1, 2)
			So(len(items), ShouldEqual, 2)
			So(items[0].ID, ShouldEqual, "n2")
			items, _ = s.ListByRecipient(ctx, "u1", 2, 2)
			So(items[0].ID, ShouldEqual, "n0")
		})

		Convey("MarkRead is idempotent and recipient-scoped", func() {
			So(s.MarkRead(ctx, "n0", "u1"), ShouldBeNil)
			So(s.MarkRead(ctx, "n0", "u1"), ShouldBeNil)
			So(errors.Is(s.MarkRead(ctx, "n1", "u2"), model.ErrNotFound), ShouldBeTrue)

			unread, _ := s.UnreadCount(ctx, "u1")
			So(unread, ShouldEqual, 2)

			n, _ := s.MarkAllRead(ctx, "u1")
			So(n, ShouldEqual, 2)
			n, _ = s.MarkAllRead(ctx, "u1")
			So(n, ShouldEqual, 0)
		})
	})
}
