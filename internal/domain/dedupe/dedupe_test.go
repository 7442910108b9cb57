package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/civicflow/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When a task key is recorded twice", func() {
			d := dedupe.NewInMemoryDeduper()
			key := dedupe.Key("chain", "acknowledged", "r1")

			first := d.SeenAndRecord(ctx, key)
			second := d.SeenAndRecord(ctx, key)

			Convey("Then only the first call is new", func() {
				So(key, ShouldEqual, "chain:acknowledged:r1")
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a key is unrecorded", func() {
			d := dedupe.NewInMemoryDeduper()
			d.SeenAndRecord(ctx, "reward:r1")
			d.Unrecord(ctx, "reward:r1")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "reward:r1"), ShouldBeFalse)
			})
		})

		Convey("When the bound is exceeded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for i := 0; i < 4; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i))
			}

			Convey("Then the oldest key is forgotten first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "k3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "k0"), ShouldBeFalse)
			})
		})

		Convey("When an unrecorded key's slot is recycled", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
			d.SeenAndRecord(ctx, "a")
			d.Unrecord(ctx, "a")
			d.SeenAndRecord(ctx, "b")
			d.SeenAndRecord(ctx, "a") // re-recorded in a new slot

			d.SeenAndRecord(ctx, "c") // evicts b

			Convey("Then the re-recorded key survives", func() {
				So(d.SeenAndRecord(ctx, "a"), ShouldBeTrue)
			})
		})

		Convey("When unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i))
			}
			So(d.Size(), ShouldEqual, 1000)
		})

		Convey("When many goroutines race on one key", func() {
			d := dedupe.NewInMemoryDeduper()
			var fresh atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if !d.SeenAndRecord(ctx, "notify:resolved:r9") {
						fresh.Add(1)
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one wins", func() {
				So(fresh.Load(), ShouldEqual, 1)
			})
		})
	})
}
