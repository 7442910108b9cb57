package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/civicflow/internal/adapters/ledger"
	"github.com/okian/civicflow/internal/adapters/repository"
	service "github.com/okian/civicflow/internal/app"
	"github.com/okian/civicflow/internal/domain/model"
)

// hangingLedger never confirms until its context ends.
type hangingLedger struct{}

func (hangingLedger) Call(ctx context.Context, _ string, _ ...string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestServiceConcurrency(t *testing.T) {
	Convey("Given one submitted report", t, func() {
		f := newFixture()
		ctx := context.Background()
		So(f.svc.Start(ctx), ShouldBeNil)
		defer f.stop()
		r, err := f.svc.Submit(ctx, submitReq("citizen-1"))
		So(err, ShouldBeNil)

		Convey("When twenty admins acknowledge it at once", func() {
			const callers = 20
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				wins    int
				invalid int
			)
			start := make(chan struct{})
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := f.svc.Acknowledge(ctx, r.ID, "admin")
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case errors.Is(err, model.ErrInvalidTransition):
						invalid++
					}
				}()
			}
			close(start)
			wg.Wait()

			Convey("Then exactly one wins and the rest are invalid transitions", func() {
				So(wins, ShouldEqual, 1)
				So(invalid, ShouldEqual, callers-1)
				So(f.idle(), ShouldBeNil)
				inbox, _ := f.svc.Inbox(ctx, "citizen-1", 1, 50)
				So(inbox.Items, ShouldHaveLength, 1)
			})
		})

		Convey("When resolves race with classification merges", func() {
			_, err := f.svc.Acknowledge(ctx, r.ID, "admin")
			So(err, ShouldBeNil)

			var wg sync.WaitGroup
			var resolved, conflicts int
			var mu sync.Mutex
			for i := 0; i < 10; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, err := f.svc.Resolve(ctx, r.ID, "admin", true)
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						resolved++
					} else if errors.Is(err, model.ErrConflict) {
						conflicts++
					}
				}()
				go func() {
					defer wg.Done()
					_, _ = f.svc.MergeClassification(ctx, r.ID, model.ClassificationResult{
						Department: "Public Health", Severity: "HIGH", Confidence: 0.8,
					})
				}()
			}
			wg.Wait()
			So(f.idle(), ShouldBeNil)

			Convey("Then one resolve wins, scoring runs once and both writers land", func() {
				So(resolved, ShouldEqual, 1)
				So(conflicts, ShouldEqual, 9)
				got, _ := f.svc.GetReport(ctx, r.ID)
				So(got.Status, ShouldEqual, model.StatusResolved)
				So(got.Department, ShouldEqual, "Public Health")
				u, _ := f.users.Get(ctx, "citizen-1")
				So(u.LifetimePoints, ShouldEqual, 20)
			})
		})
	})
}

func TestServiceLedgerIsolation(t *testing.T) {
	Convey("Given a ledger that always times out", t, func() {
		audit := repository.NewMemoryAudit()
		rec := ledger.NewRecorder(hangingLedger{}, audit, ledger.WithTimeout(2*time.Second))
		f := newFixture(service.WithAuditStore(audit), service.WithRecorder(rec))
		ctx := context.Background()
		So(f.svc.Start(ctx), ShouldBeNil)
		defer f.stop()

		Convey("When a report goes through its whole lifecycle", func() {
			began := time.Now()
			r, err := f.svc.Submit(ctx, submitReq("citizen-1"))
			So(err, ShouldBeNil)
			_, err = f.svc.Acknowledge(ctx, r.ID, "admin-1")
			So(err, ShouldBeNil)
			_, err = f.svc.Resolve(ctx, r.ID, "citizen-1", false)
			So(err, ShouldBeNil)
			elapsed := time.Since(began)

			Convey("Then the actions return without waiting on the ledger", func() {
				So(elapsed, ShouldBeLessThan, 500*time.Millisecond)
			})

			Convey("And every milestone falls back to a synthetic ref", func() {
				So(f.idle(), ShouldBeNil)
				trail, err := f.svc.AuditTrail(ctx, r.ID)
				So(err, ShouldBeNil)
				So(trail, ShouldHaveLength, 3)
				for _, e := range trail {
					So(e.Synthetic, ShouldBeTrue)
					So(e.TxHash, ShouldStartWith, "local_tx_")
					So(e.Error, ShouldNotBeEmpty)
				}
				u, _ := f.users.Get(ctx, "citizen-1")
				So(u.LifetimePoints, ShouldEqual, 20)
			})
		})
	})
}

func TestServiceCancelledCaller(t *testing.T) {
	Convey("Given callers whose contexts are already cancelled", t, func() {
		f := newFixture()
		So(f.svc.Start(context.Background()), ShouldBeNil)
		defer f.stop()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("When forty reports are submitted, acknowledged and resolved", func() {
			const reports = 40
			var ids []string
			for i := 0; i < reports; i++ {
				r, err := f.svc.Submit(ctx, submitReq(fmt.Sprintf("citizen-%d", i)))
				So(err, ShouldBeNil)
				_, err = f.svc.Acknowledge(ctx, r.ID, "admin-1")
				So(err, ShouldBeNil)
				_, err = f.svc.Resolve(ctx, r.ID, "admin-1", true)
				So(err, ShouldBeNil)
				ids = append(ids, r.ID)
			}
			So(f.idle(), ShouldBeNil)

			Convey("Then every detached side effect still lands", func() {
				bg := context.Background()
				So(f.classify.Jobs(), ShouldHaveLength, reports)
				total := 0
				for i, id := range ids {
					citizen := fmt.Sprintf("citizen-%d", i)
					u, err := f.users.Get(bg, citizen)
					So(err, ShouldBeNil)
					So(u.LifetimePoints, ShouldEqual, 20)
					total += int(u.LifetimePoints)

					inbox, err := f.svc.Inbox(bg, citizen, 1, 10)
					So(err, ShouldBeNil)
					acks := 0
					for _, n := range inbox.Items {
						if n.Type == model.NotificationAcknowledgment {
							acks++
						}
					}
					So(acks, ShouldEqual, 1)

					trail, err := f.svc.AuditTrail(bg, id)
					So(err, ShouldBeNil)
					So(trail, ShouldHaveLength, 3)
				}
				So(total, ShouldEqual, 20*reports)
			})
		})
	})
}

func TestServiceRestart(t *testing.T) {
	Convey("Given a service with a running monthly reset loop", t, func() {
		f := newFixture(service.WithMonthlyResetInterval(10 * time.Millisecond))
		ctx := context.Background()
		So(f.svc.Start(ctx), ShouldBeNil)

		r, err := f.svc.Submit(ctx, submitReq("citizen-1"))
		So(err, ShouldBeNil)
		_, err = f.svc.Resolve(ctx, r.ID, "admin-1", true)
		So(err, ShouldBeNil)
		So(f.idle(), ShouldBeNil)

		Convey("When it is stopped and started again", func() {
			f.stop()
			So(f.svc.Start(ctx), ShouldBeNil)
			defer f.stop()

			Convey("Then side effects are accepted and run", func() {
				r2, err := f.svc.Submit(ctx, submitReq("citizen-2"))
				So(err, ShouldBeNil)
				_, err = f.svc.Resolve(ctx, r2.ID, "admin-1", true)
				So(err, ShouldBeNil)
				So(f.idle(), ShouldBeNil)
				u, err := f.users.Get(ctx, "citizen-2")
				So(err, ShouldBeNil)
				So(u.LifetimePoints, ShouldEqual, 20)
			})

			Convey("Then the reset loop keeps ticking across a month rollover", func() {
				f.clock.Advance(31 * 24 * time.Hour)

				deadline := time.Now().Add(2 * time.Second)
				var monthly int64 = -1
				for time.Now().Before(deadline) {
					u, _ := f.users.Get(ctx, "citizen-1")
					if monthly = u.MonthlyPoints; monthly == 0 {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				So(monthly, ShouldEqual, 0)
				u, _ := f.users.Get(ctx, "citizen-1")
				So(u.LifetimePoints, ShouldEqual, 20)
			})
		})
	})
}

func TestServiceBackpressure(t *testing.T) {
	Convey("Given a service whose side-effect queue is full", t, func() {
		// Not started: nothing drains the queue.
		f := newFixture(service.WithQueueSize(1))
		ctx := context.Background()

		Convey("When several reports are submitted", func() {
			var ids []string
			for i := 0; i < 3; i++ {
				r, err := f.svc.Submit(ctx, submitReq("citizen-1"))
				So(err, ShouldBeNil)
				ids = append(ids, r.ID)
			}

			Convey("Then every primary mutation still commits", func() {
				for _, id := range ids {
					got, err := f.svc.GetReport(ctx, id)
					So(err, ShouldBeNil)
					So(got.Status, ShouldEqual, model.StatusSubmitted)
				}
			})
		})
	})
}
