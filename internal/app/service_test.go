package service_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	service "github.com/okian/circle/internal/app"
	"github.com/okian/circle/internal/domain/ledger"
	"github.com/okian/circle/internal/domain/model"
	"github.com/okian/circle/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ring returns n points on a circle around center.
func ring(center model.Point, radius float64, n int) model.Path {
	path := make(model.Path, n)
	for i := range path {
		a := 2 * math.Pi * float64(i) / float64(n)
		path[i] = model.Point{X: center.X + radius*math.Cos(a), Y: center.Y + radius*math.Sin(a)}
	}
	return path
}

// line returns n points on a horizontal line through center, from center
// to the right, spaced by step.
func line(center model.Point, step float64, n int) model.Path {
	path := make(model.Path, n)
	for i := range path {
		path[i] = model.Point{X: center.X + step*float64(i), Y: center.Y}
	}
	return path
}

func startedService(opts ...service.Option) *service.Service {
	svc := service.New(opts...)
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	return svc
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new service", t, func() {
		svc := service.New()

		Convey("When it has not been started", func() {
			Convey("Then operations report ErrNotStarted", func() {
				_, err := svc.Submit(ctx, "s", "", nil)
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				_, _, err = svc.EndGesture(ctx, "s")
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(errors.Is(svc.BeginGesture(ctx, "s", model.Point{}), service.ErrNotStarted), ShouldBeTrue)
				So(svc.SampleGesture(ctx, "s", model.Point{}), ShouldBeFalse)
			})

			Convey("And reads fall back to empty state", func() {
				So(svc.History(ctx, "s"), ShouldBeEmpty)
				So(svc.Center(ctx, "s"), ShouldResemble, model.Point{X: 640, Y: 360})
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When starting and stopping", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then stats reflect the running state", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["activeSessions"], ShouldEqual, 0)
				So(stats["liveGestures"], ShouldEqual, int64(0))
			})

			Convey("And stopping is idempotent", func() {
				svc.Stop()
				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_NewSession(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := service.New()

		Convey("Then every session id is distinct", func() {
			a := svc.NewSession(context.Background())
			b := svc.NewSession(context.Background())
			So(a, ShouldNotBeEmpty)
			So(a, ShouldNotEqual, b)
		})
	})
}

func TestService_Surface(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := startedService(service.WithDefaultSurface(model.Surface{Width: 800, Height: 600}))
		defer svc.Stop()

		Convey("When no surface was reported", func() {
			Convey("Then the default surface center is used", func() {
				So(svc.Center(ctx, "s1"), ShouldResemble, model.Point{X: 400, Y: 300})
			})
		})

		Convey("When the client resizes", func() {
			c, err := svc.Resize(ctx, "s1", model.Surface{Width: 1024, Height: 768})

			Convey("Then the new center is returned and kept", func() {
				So(err, ShouldBeNil)
				So(c, ShouldResemble, model.Point{X: 512, Y: 384})
				So(svc.Center(ctx, "s1"), ShouldResemble, c)
			})

			Convey("And other sessions are unaffected", func() {
				So(svc.Center(ctx, "s2"), ShouldResemble, model.Point{X: 400, Y: 300})
			})
		})

		Convey("When the surface is invalid", func() {
			_, err := svc.Resize(ctx, "s1", model.Surface{Width: 0, Height: 768})

			Convey("Then ErrInvalidSurface is returned and nothing changes", func() {
				So(errors.Is(err, service.ErrInvalidSurface), ShouldBeTrue)
				So(svc.Center(ctx, "s1"), ShouldResemble, model.Point{X: 400, Y: 300})
			})
		})
	})
}

func TestService_Gesture(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service and a session with a known surface", t, func() {
		svc := startedService()
		defer svc.Stop()
		center, err := svc.Resize(ctx, "s1", model.Surface{Width: 400, Height: 400})
		So(err, ShouldBeNil)

		Convey("When a circle is drawn around the center", func() {
			So(svc.BeginGesture(ctx, "s1", model.Point{X: 300, Y: 200}), ShouldBeNil)
			for _, p := range ring(center, 100, 60) {
				So(svc.SampleGesture(ctx, "s1", p), ShouldBeTrue)
			}
			So(svc.GetStats()["liveGestures"], ShouldEqual, int64(1))
			out, ok, err := svc.EndGesture(ctx, "s1")

			Convey("Then it scores 100 and heads the history", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(out.Score, ShouldEqual, 100)
				So(out.History, ShouldResemble, ledger.History{100})
				So(svc.History(ctx, "s1"), ShouldResemble, ledger.History{100})
				So(svc.GetStats()["liveGestures"], ShouldEqual, int64(0))
			})
		})

		Convey("When a straight line is drawn", func() {
			So(svc.BeginGesture(ctx, "s1", center), ShouldBeNil)
			for _, p := range line(center, 50, 5) {
				svc.SampleGesture(ctx, "s1", p)
			}
			out, ok, err := svc.EndGesture(ctx, "s1")

			Convey("Then the deviation lowers the score", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				// distances 0,50,100,150,200: mean 100, deviation 60
				So(out.Score, ShouldEqual, 40)
			})
		})

		Convey("When a click ends with fewer than five samples", func() {
			So(svc.BeginGesture(ctx, "s1", center), ShouldBeNil)
			svc.SampleGesture(ctx, "s1", center)
			out, ok, err := svc.EndGesture(ctx, "s1")

			Convey("Then a zero is recorded", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(out.Score, ShouldEqual, 0)
				So(svc.History(ctx, "s1"), ShouldResemble, ledger.History{0})
			})
		})

		Convey("When moves and an end arrive without a start", func() {
			moved := svc.SampleGesture(ctx, "s1", center)
			_, ok, err := svc.EndGesture(ctx, "s1")

			Convey("Then nothing is sampled or recorded", func() {
				So(moved, ShouldBeFalse)
				So(ok, ShouldBeFalse)
				So(err, ShouldBeNil)
				So(svc.History(ctx, "s1"), ShouldBeEmpty)
			})
		})

		Convey("When a gesture is restarted mid-drag", func() {
			So(svc.BeginGesture(ctx, "s1", center), ShouldBeNil)
			for _, p := range line(center, 50, 10) {
				svc.SampleGesture(ctx, "s1", p)
			}
			So(svc.BeginGesture(ctx, "s1", center), ShouldBeNil)
			for _, p := range ring(center, 80, 40) {
				svc.SampleGesture(ctx, "s1", p)
			}
			out, _, _ := svc.EndGesture(ctx, "s1")

			Convey("Then only the second path is scored", func() {
				So(out.Score, ShouldEqual, 100)
				So(svc.GetStats()["liveGestures"], ShouldEqual, int64(0))
			})
		})

		Convey("When six gestures are played", func() {
			for i := 0; i < 6; i++ {
				So(svc.BeginGesture(ctx, "s1", center), ShouldBeNil)
				if i%2 == 0 {
					for _, p := range ring(center, 100, 30) {
						svc.SampleGesture(ctx, "s1", p)
					}
				}
				_, _, err := svc.EndGesture(ctx, "s1")
				So(err, ShouldBeNil)
			}

			Convey("Then only the five most recent scores remain", func() {
				So(svc.History(ctx, "s1"), ShouldResemble, ledger.History{0, 100, 0, 100, 0})
			})
		})
	})

	Convey("Given a service with a small path cap", t, func() {
		svc := startedService(service.WithMaxPathPoints(8))
		defer svc.Stop()

		Convey("When a gesture exceeds the cap", func() {
			So(svc.BeginGesture(ctx, "s1", model.Point{}), ShouldBeNil)
			accepted := 0
			for i := 0; i < 20; i++ {
				if svc.SampleGesture(ctx, "s1", model.Point{X: float64(i)}) {
					accepted++
				}
			}

			Convey("Then samples beyond the cap are dropped", func() {
				So(accepted, ShouldEqual, 8)
			})
		})
	})
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := startedService(service.WithMaxPathPoints(100))
		defer svc.Stop()
		center := svc.Center(ctx, "s1")

		Convey("When a whole path is submitted", func() {
			out, err := svc.Submit(ctx, "s1", "g-1", ring(center, 120, 50))

			Convey("Then it is scored and recorded", func() {
				So(err, ShouldBeNil)
				So(out.Score, ShouldEqual, 100)
				So(out.Duplicate, ShouldBeFalse)
				So(out.History, ShouldResemble, ledger.History{100})
			})

			Convey("And a retry with the same gesture id is not recorded again", func() {
				again, err := svc.Submit(ctx, "s1", "g-1", line(center, 10, 20))
				So(err, ShouldBeNil)
				So(again.Duplicate, ShouldBeTrue)
				So(again.History, ShouldResemble, ledger.History{100})
				So(svc.History(ctx, "s1"), ShouldResemble, ledger.History{100})
			})

			Convey("And the same gesture id in another session is independent", func() {
				other, err := svc.Submit(ctx, "s2", "g-1", ring(center, 120, 50))
				So(err, ShouldBeNil)
				So(other.Duplicate, ShouldBeFalse)
			})
		})

		Convey("When submissions carry no gesture id", func() {
			_, err := svc.Submit(ctx, "s1", "", nil)
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, "s1", "", nil)
			So(err, ShouldBeNil)

			Convey("Then each is recorded", func() {
				So(svc.History(ctx, "s1"), ShouldResemble, ledger.History{0, 0})
			})
		})

		Convey("When the path is too long", func() {
			_, err := svc.Submit(ctx, "s1", "g-2", make(model.Path, 101))

			Convey("Then ErrPathTooLong is returned and nothing is recorded", func() {
				So(errors.Is(err, service.ErrPathTooLong), ShouldBeTrue)
				So(svc.History(ctx, "s1"), ShouldBeEmpty)
				again, err := svc.Submit(ctx, "s1", "g-2", nil)
				So(err, ShouldBeNil)
				So(again.Duplicate, ShouldBeFalse)
			})
		})
	})
}

func TestService_SessionExpiry(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service on a fake clock", t, func() {
		clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		svc := startedService(
			service.WithSessionTTL(10*time.Minute),
			service.WithClock(clock.Now),
		)
		defer svc.Stop()

		_, err := svc.Submit(ctx, "s1", "", ring(model.Point{X: 640, Y: 360}, 50, 20))
		So(err, ShouldBeNil)
		_, err = svc.Resize(ctx, "s1", model.Surface{Width: 100, Height: 100})
		So(err, ShouldBeNil)

		Convey("When the session idles past its TTL", func() {
			clock.Advance(11 * time.Minute)

			Convey("Then its history and surface are gone", func() {
				So(svc.History(ctx, "s1"), ShouldBeEmpty)
				So(svc.Center(ctx, "s1"), ShouldResemble, model.Point{X: 640, Y: 360})
				So(svc.GetStats()["activeSessions"], ShouldEqual, 0)
			})
		})

		Convey("When the session expires mid-drag", func() {
			So(svc.BeginGesture(ctx, "s1", model.Point{}), ShouldBeNil)
			So(svc.GetStats()["liveGestures"], ShouldEqual, int64(1))
			clock.Advance(11 * time.Minute)
			So(svc.History(ctx, "s1"), ShouldBeEmpty)

			Convey("Then the gesture is dropped with it", func() {
				So(svc.GetStats()["liveGestures"], ShouldEqual, int64(0))
				_, ok, err := svc.EndGesture(ctx, "s1")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a fresh session starts a gesture and goes quiet", func() {
			So(svc.BeginGesture(ctx, "s2", model.Point{X: 1, Y: 1}), ShouldBeNil)
			So(svc.SampleGesture(ctx, "s2", model.Point{X: 2, Y: 2}), ShouldBeTrue)
			So(svc.GetStats()["activeSessions"], ShouldEqual, 2)
			So(svc.GetStats()["liveGestures"], ShouldEqual, int64(1))
			clock.Advance(11 * time.Minute)
			So(svc.History(ctx, "s2"), ShouldBeEmpty)

			Convey("Then its tracker expires with the session", func() {
				So(svc.GetStats()["liveGestures"], ShouldEqual, int64(0))
				So(svc.SampleGesture(ctx, "s2", model.Point{X: 3, Y: 3}), ShouldBeFalse)
				_, ok, err := svc.EndGesture(ctx, "s2")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a long drag keeps sampling", func() {
			So(svc.BeginGesture(ctx, "s2", model.Point{}), ShouldBeNil)
			for i := 0; i < 4; i++ {
				clock.Advance(6 * time.Minute)
				So(svc.SampleGesture(ctx, "s2", model.Point{X: float64(i)}), ShouldBeTrue)
			}

			Convey("Then the session stays alive", func() {
				So(svc.GetStats()["liveGestures"], ShouldEqual, int64(1))
			})
		})

		Convey("When the session is used within its TTL", func() {
			clock.Advance(9 * time.Minute)
			So(svc.History(ctx, "s1"), ShouldResemble, ledger.History{100})
			clock.Advance(9 * time.Minute)

			Convey("Then it stays alive", func() {
				So(svc.History(ctx, "s1"), ShouldResemble, ledger.History{100})
			})
		})
	})
}

func TestService_SweepsAbandonedGestures(t *testing.T) {
	ctx := context.Background()

	Convey("Given many sessions that start a gesture and never end it", t, func() {
		clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		svc := startedService(
			service.WithSessionTTL(10*time.Minute),
			service.WithSweepInterval(5*time.Millisecond),
			service.WithClock(clock.Now),
		)
		defer svc.Stop()

		const sessions = 1000
		for i := 0; i < sessions; i++ {
			So(svc.BeginGesture(ctx, svc.NewSession(ctx), model.Point{}), ShouldBeNil)
		}
		So(svc.GetStats()["liveGestures"], ShouldEqual, int64(sessions))

		Convey("When the clock passes the TTL", func() {
			clock.Advance(11 * time.Minute)

			Convey("Then the sweeper drops every tracker", func() {
				deadline := time.Now().Add(2 * time.Second)
				for svc.GetStats()["liveGestures"] != int64(0) && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				stats := svc.GetStats()
				So(stats["liveGestures"], ShouldEqual, int64(0))
				So(stats["activeSessions"], ShouldEqual, 0)
			})
		})
	})
}

func TestService_AbandonGesture(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := startedService()
		defer svc.Stop()

		Convey("When a drag is abandoned", func() {
			So(svc.BeginGesture(ctx, "s1", model.Point{}), ShouldBeNil)
			So(svc.SampleGesture(ctx, "s1", model.Point{X: 5}), ShouldBeTrue)
			So(svc.AbandonGesture(ctx, "s1"), ShouldBeTrue)

			Convey("Then nothing is recorded and the gesture is closed", func() {
				So(svc.GetStats()["liveGestures"], ShouldEqual, int64(0))
				So(svc.History(ctx, "s1"), ShouldBeEmpty)
				_, ok, err := svc.EndGesture(ctx, "s1")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When no drag is in progress", func() {
			Convey("Then abandoning is a no-op", func() {
				So(svc.AbandonGesture(ctx, "nobody"), ShouldBeFalse)
				So(svc.GetStats()["liveGestures"], ShouldEqual, int64(0))
			})
		})
	})
}

func TestService_ConcurrentSessions(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := startedService()
		defer svc.Stop()
		center := svc.Center(ctx, "any")

		Convey("When many sessions play at once", func() {
			const sessions = 20
			const rounds = 7
			var wg sync.WaitGroup
			for i := 0; i < sessions; i++ {
				wg.Add(1)
				go func(sid string) {
					defer wg.Done()
					for r := 0; r < rounds; r++ {
						_ = svc.BeginGesture(ctx, sid, center)
						for _, p := range ring(center, 90, 24) {
							svc.SampleGesture(ctx, sid, p)
						}
						_, _, _ = svc.EndGesture(ctx, sid)
					}
				}(svc.NewSession(ctx))
			}
			wg.Wait()

			Convey("Then every session is live and no gesture is left open", func() {
				stats := svc.GetStats()
				So(stats["activeSessions"], ShouldEqual, sessions)
				So(stats["liveGestures"], ShouldEqual, int64(0))
			})
		})

		Convey("When one session receives racing submissions", func() {
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = svc.Submit(ctx, "shared", "same-gesture", ring(center, 90, 24))
				}()
			}
			wg.Wait()

			Convey("Then only one score is recorded", func() {
				So(svc.History(ctx, "shared"), ShouldResemble, ledger.History{100})
			})
		})
	})
}
