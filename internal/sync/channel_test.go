package sync

import (
	"net/http"
	"net/http/httptest"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"scenarioflow/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pushServer is a scripted websocket endpoint for channel tests
type pushServer struct {
	t *testing.T

	mu       stdsync.Mutex
	dials    int
	lastAuth string

	// onConnect runs per accepted connection with the open conn
	onConnect func(conn *websocket.Conn)
}

func (ps *pushServer) handler(w http.ResponseWriter, r *http.Request) {
	ps.mu.Lock()
	ps.dials++
	ps.lastAuth = r.Header.Get("Authorization")
	ps.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ps.t.Errorf("upgrade failed: %v", err)
		return
	}
	if ps.onConnect != nil {
		ps.onConnect(conn)
	}
}

func (ps *pushServer) dialCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.dials
}

func (ps *pushServer) authHeader() string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.lastAuth
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestChannel_ConnectAndReceive(t *testing.T) {
	ps := &pushServer{t: t}
	ps.onConnect = func(conn *websocket.Conn) {
		event, _ := models.NewPushEvent("evt-1", models.EventNewNotification, models.NotificationPayload{})
		if err := conn.WriteJSON(event); err != nil {
			t.Errorf("WriteJSON failed: %v", err)
		}
		// Keep the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(ps.handler))
	defer srv.Close()

	ch := Dial(wsURL(srv), "token-1", WithLogger(quietLogger()))
	defer ch.Disconnect()

	waitFor(t, func() bool { return ch.State() == StateOpen }, "channel never opened")

	select {
	case event := <-ch.Events():
		if event.ID != "evt-1" || event.Type != models.EventNewNotification {
			t.Errorf("Unexpected event %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}

	if got := ps.authHeader(); got != "Bearer token-1" {
		t.Errorf("Expected bearer credential on dial, got %q", got)
	}
}

func TestChannel_UnexpectedCloseSchedulesOneReconnect(t *testing.T) {
	ps := &pushServer{t: t}
	ps.onConnect = func(conn *websocket.Conn) {
		// Drop the connection immediately: an unexpected close
		_ = conn.Close()
	}
	srv := httptest.NewServer(http.HandlerFunc(ps.handler))
	defer srv.Close()

	// Long interval so the scheduled attempt cannot fire during the test
	ch := Dial(wsURL(srv), "token-1", WithReconnectInterval(time.Minute), WithLogger(quietLogger()))
	defer ch.Disconnect()

	waitFor(t, func() bool { return ch.ReconnectPending() }, "no reconnect scheduled after unexpected close")

	if got := ch.State(); got != StateReconnecting {
		t.Errorf("Expected state reconnecting, got %s", got)
	}
	if got := ps.dialCount(); got != 1 {
		t.Errorf("Expected exactly one dial so far, got %d", got)
	}
}

func TestChannel_DisconnectCancelsPendingReconnect(t *testing.T) {
	ps := &pushServer{t: t}
	ps.onConnect = func(conn *websocket.Conn) { _ = conn.Close() }
	srv := httptest.NewServer(http.HandlerFunc(ps.handler))
	defer srv.Close()

	ch := Dial(wsURL(srv), "token-1", WithReconnectInterval(50*time.Millisecond), WithLogger(quietLogger()))

	waitFor(t, func() bool { return ch.ReconnectPending() }, "no reconnect scheduled")

	ch.Disconnect()

	if ch.ReconnectPending() {
		t.Error("Expected pending reconnect to be cancelled by Disconnect")
	}
	if got := ch.State(); got != StateClosed {
		t.Errorf("Expected state closed, got %s", got)
	}

	// Give a cancelled timer room to misfire, then check nothing dialed
	dials := ps.dialCount()
	time.Sleep(150 * time.Millisecond)
	if got := ps.dialCount(); got != dials {
		t.Errorf("Expected no further dials after Disconnect, got %d -> %d", dials, got)
	}
}

func TestChannel_ReconnectsAfterInterval(t *testing.T) {
	ps := &pushServer{t: t}
	var once stdsync.Once
	ps.onConnect = func(conn *websocket.Conn) {
		closed := false
		once.Do(func() {
			_ = conn.Close()
			closed = true
		})
		if closed {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(ps.handler))
	defer srv.Close()

	ch := Dial(wsURL(srv), "token-1", WithReconnectInterval(30*time.Millisecond), WithLogger(quietLogger()))
	defer ch.Disconnect()

	waitFor(t, func() bool { return ps.dialCount() >= 2 }, "channel never re-dialed")
	waitFor(t, func() bool { return ch.State() == StateOpen }, "channel never reopened")
}

func TestChannel_DisconnectUnblocksFullEventBuffer(t *testing.T) {
	ps := &pushServer{t: t}
	ps.onConnect = func(conn *websocket.Conn) {
		// Three events for a two-slot buffer with no consumer: the third
		// delivery has nowhere to go.
		for i := 0; i < 3; i++ {
			event, _ := models.NewPushEvent("evt", models.EventNewNotification, models.NotificationPayload{})
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(ps.handler))
	defer srv.Close()

	ch := Dial(wsURL(srv), "token-1", WithEventBuffer(2), WithLogger(quietLogger()))

	waitFor(t, func() bool { return len(ch.events) == 2 }, "event buffer never filled")
	// Let the reader reach the blocked third delivery
	time.Sleep(20 * time.Millisecond)

	ch.Disconnect()

	// The stuck delivery must be abandoned, not completed by a late drain
	got := 0
drain:
	for {
		select {
		case <-ch.Events():
			got++
		case <-time.After(100 * time.Millisecond):
			break drain
		}
	}
	if got != 2 {
		t.Errorf("Expected the buffered 2 events only, got %d", got)
	}
}

func TestChannel_DisconnectIsIdempotent(t *testing.T) {
	ps := &pushServer{t: t}
	ps.onConnect = func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(ps.handler))
	defer srv.Close()

	ch := Dial(wsURL(srv), "token-1", WithLogger(quietLogger()))
	waitFor(t, func() bool { return ch.State() == StateOpen }, "channel never opened")

	ch.Disconnect()
	ch.Disconnect()

	if got := ch.State(); got != StateClosed {
		t.Errorf("Expected state closed, got %s", got)
	}
}
