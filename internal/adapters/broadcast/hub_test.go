package broadcast

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

func dial(srv *httptest.Server) (*websocket.Conn, error) {
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestHub(t *testing.T) {
	Convey("Given a hub behind a test server", t, func() {
		hub := NewHub()
		srv := httptest.NewServer(hub)
		defer srv.Close()
		defer hub.Close()

		conn, err := dial(srv)
		So(err, ShouldBeNil)
		defer conn.Close()
		So(waitFor(func() bool { return hub.Subscribers() == 1 }), ShouldBeTrue)

		Convey("When an event is emitted", func() {
			hub.Emit(TopicNewReport, map[string]string{"id": "r-1"})

			Convey("Then the subscriber receives the framed event", func() {
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, data, err := conn.ReadMessage()
				So(err, ShouldBeNil)
				var ev struct {
					Event string            `json:"event"`
					Data  map[string]string `json:"data"`
				}
				So(sonic.Unmarshal(data, &ev), ShouldBeNil)
				So(ev.Event, ShouldEqual, "newReport")
				So(ev.Data["id"], ShouldEqual, "r-1")
			})
		})

		Convey("When the subscriber disconnects", func() {
			_ = conn.Close()

			Convey("Then it is removed and emits do not block", func() {
				So(waitFor(func() bool { return hub.Subscribers() == 0 }), ShouldBeTrue)
				hub.Emit(TopicReportStatus, "ignored")
			})
		})
	})

	Convey("Given a subscriber that never reads", t, func() {
		hub := NewHub(WithSendBuffer(1))
		s := &subscriber{send: make(chan []byte, 1)}
		hub.subs[s] = struct{}{}

		Convey("Extra frames are dropped instead of blocking", func() {
			done := make(chan struct{})
			go func() {
				for i := 0; i < 10; i++ {
					hub.Emit(TopicReportClassified, i)
				}
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("emit blocked on a slow subscriber")
			}
			So(len(s.send), ShouldEqual, 1)
		})
	})

	Convey("The nop emitter accepts anything", t, func() {
		So(func() { Nop{}.Emit("x", nil) }, ShouldNotPanic)
	})
}
