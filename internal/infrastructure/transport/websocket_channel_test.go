package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stressmon/internal/core/domain"
	"stressmon/internal/core/ports"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testService is a scripted remote endpoint. Each accepted connection runs
// onConn; connections are tracked so tests can close them server-side.
type testService struct {
	t      *testing.T
	server *httptest.Server
	onConn func(conn *websocket.Conn, connNum int)

	mu    sync.Mutex
	conns []*websocket.Conn
	dials int32
}

func newTestService(t *testing.T, onConn func(conn *websocket.Conn, connNum int)) *testService {
	s := &testService{t: t, onConn: onConn}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt32(&s.dials, 1)
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		s.onConn(conn, int(n))
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *testService) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *testService) dialCount() int {
	return int(atomic.LoadInt32(&s.dials))
}

func (s *testService) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, event ports.EventType, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Payload: raw}))
}

func ackConnection(t *testing.T, conn *websocket.Conn, sid domain.SessionID) {
	sendEnvelope(t, conn, ports.EventSessionCreated, domain.SessionCreatedPayload{
		SessionID: sid,
		Message:   "Session started",
	})
}

// drain keeps the server side reading so client writes are not buffered away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func testChannelConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.ConnectTimeout = 500 * time.Millisecond
	cfg.Reconnect = false
	return cfg
}

func TestWebSocketChannelConnect(t *testing.T) {
	t.Run("AckCachesSessionID", func(t *testing.T) {
		// Setup
		service := newTestService(t, func(conn *websocket.Conn, _ int) {
			ackConnection(t, conn, "sess-42")
			drain(conn)
		})
		channel := NewWebSocketChannel(testChannelConfig(service.url()), nil, nil)

		// Execution
		err := channel.Connect(context.Background())
		defer channel.Disconnect()

		// Assertions
		require.NoError(t, err)
		assert.True(t, channel.Connected())
		assert.Equal(t, domain.SessionID("sess-42"), channel.SessionID())
	})

	t.Run("NoAckWithinBudgetTimesOut", func(t *testing.T) {
		// Setup: the service accepts but never acknowledges.
		service := newTestService(t, func(conn *websocket.Conn, _ int) {
			drain(conn)
		})
		channel := NewWebSocketChannel(testChannelConfig(service.url()), nil, nil)

		// Execution
		start := time.Now()
		err := channel.Connect(context.Background())

		// Assertions
		assert.ErrorIs(t, err, domain.ErrConnectionTimeout)
		assert.False(t, channel.Connected())
		assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("PeerCloseBeforeAckFailsFast", func(t *testing.T) {
		// Setup: the service accepts and hangs up without acknowledging.
		service := newTestService(t, func(conn *websocket.Conn, _ int) {
			conn.Close()
		})
		channel := NewWebSocketChannel(testChannelConfig(service.url()), nil, nil)

		// Execution
		start := time.Now()
		err := channel.Connect(context.Background())

		// Assertions: the read failure surfaces immediately instead of
		// burning the full acknowledgment budget.
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrConnectionTimeout)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.False(t, channel.Connected())
	})

	t.Run("ConnectingTwiceIsAnError", func(t *testing.T) {
		// Setup
		service := newTestService(t, func(conn *websocket.Conn, _ int) {
			ackConnection(t, conn, "sess-1")
			drain(conn)
		})
		channel := NewWebSocketChannel(testChannelConfig(service.url()), nil, nil)
		require.NoError(t, channel.Connect(context.Background()))
		defer channel.Disconnect()

		// Execution
		err := channel.Connect(context.Background())

		// Assertions
		assert.Error(t, err)
	})

	t.Run("DialFailure", func(t *testing.T) {
		channel := NewWebSocketChannel(testChannelConfig("ws://127.0.0.1:1/ws"), nil, nil)

		err := channel.Connect(context.Background())

		assert.Error(t, err)
		assert.False(t, channel.Connected())
	})
}

func TestWebSocketChannelPublish(t *testing.T) {
	t.Run("PublishedEnvelopeCarriesSessionID", func(t *testing.T) {
		// Setup
		received := make(chan Envelope, 1)
		service := newTestService(t, func(conn *websocket.Conn, _ int) {
			ackConnection(t, conn, "sess-7")
			var env Envelope
			if err := conn.ReadJSON(&env); err == nil {
				received <- env
			}
			drain(conn)
		})
		channel := NewWebSocketChannel(testChannelConfig(service.url()), nil, nil)
		require.NoError(t, channel.Connect(context.Background()))
		defer channel.Disconnect()

		// Execution
		err := channel.Publish(ports.EventAudioChunk, domain.AudioChunkPayload{
			SessionID: channel.SessionID(),
			AudioData: "AAAA",
		})

		// Assertions
		require.NoError(t, err)
		select {
		case env := <-received:
			assert.Equal(t, ports.EventAudioChunk, env.Event)
			assert.Equal(t, domain.SessionID("sess-7"), env.SessionID)
		case <-time.After(time.Second):
			t.Fatal("service never received the published envelope")
		}
	})

	t.Run("PublishWhileDisconnectedIsSilentNoOp", func(t *testing.T) {
		// Setup
		channel := NewWebSocketChannel(testChannelConfig("ws://127.0.0.1:1/ws"), nil, nil)

		// Execution
		err := channel.Publish(ports.EventAudioChunk, domain.AudioChunkPayload{AudioData: "AAAA"})

		// Assertions: dropped, not an error and not queued.
		assert.NoError(t, err)
	})
}

func TestWebSocketChannelSubscriptions(t *testing.T) {
	t.Run("HandlersRunInRegistrationOrder", func(t *testing.T) {
		// Setup
		var serverConn *websocket.Conn
		ready := make(chan struct{})
		service := newTestService(t, func(conn *websocket.Conn, _ int) {
			serverConn = conn
			ackConnection(t, conn, "sess-1")
			close(ready)
			drain(conn)
		})
		channel := NewWebSocketChannel(testChannelConfig(service.url()), nil, nil)

		var mu sync.Mutex
		var order []string
		done := make(chan struct{})
		channel.Subscribe(ports.EventStressUpdate, func(json.RawMessage) {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
		})
		channel.Subscribe(ports.EventStressUpdate, func(json.RawMessage) {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			close(done)
		})

		require.NoError(t, channel.Connect(context.Background()))
		defer channel.Disconnect()
		<-ready

		// Execution
		sendEnvelope(t, serverConn, ports.EventStressUpdate, domain.StressUpdate{StressScore: 0.5})

		// Assertions
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("handlers never ran")
		}
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("UnsubscribeStopsDelivery", func(t *testing.T) {
		// Setup
		var serverConn *websocket.Conn
		ready := make(chan struct{})
		service := newTestService(t, func(conn *websocket.Conn, _ int) {
			serverConn = conn
			ackConnection(t, conn, "sess-1")
			close(ready)
			drain(conn)
		})
		channel := NewWebSocketChannel(testChannelConfig(service.url()), nil, nil)

		var removedCalls int32
		keptCh := make(chan struct{}, 4)
		sub := channel.Subscribe(ports.EventAlert, func(json.RawMessage) {
			atomic.AddInt32(&removedCalls, 1)
		})
		channel.Subscribe(ports.EventAlert, func(json.RawMessage) {
			keptCh <- struct{}{}
		})
		channel.Unsubscribe(ports.EventAlert, sub)

		require.NoError(t, channel.Connect(context.Background()))
		defer channel.Disconnect()
		<-ready

		// Execution
		sendEnvelope(t, serverConn, ports.EventAlert, domain.Alert{Severity: "high"})

		// Assertions: the kept handler fires, the removed one never does.
		select {
		case <-keptCh:
		case <-time.After(time.Second):
			t.Fatal("kept handler never ran")
		}
		assert.Equal(t, int32(0), atomic.LoadInt32(&removedCalls))
	})
}

func TestWebSocketChannelReconnect(t *testing.T) {
	t.Run("ReconnectsAfterConnectionDrop", func(t *testing.T) {
		// Setup: the service drops the first connection right after the ack.
		service := newTestService(t, func(conn *websocket.Conn, connNum int) {
			ackConnection(t, conn, domain.SessionID("sess-"+string(rune('0'+connNum))))
			if connNum == 1 {
				conn.Close()
				return
			}
			drain(conn)
		})

		cfg := testChannelConfig(service.url())
		cfg.Reconnect = true
		cfg.ReconnectInterval = 20 * time.Millisecond
		cfg.MaxReconnectAttempts = 5
		channel := NewWebSocketChannel(cfg, nil, nil)

		require.NoError(t, channel.Connect(context.Background()))
		defer channel.Disconnect()

		// Assertions
		assert.Eventually(t, func() bool {
			return channel.Connected() && service.dialCount() == 2
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, domain.SessionID("sess-2"), channel.SessionID())
	})

	t.Run("ExhaustedBudgetIsTerminal", func(t *testing.T) {
		// Setup
		service := newTestService(t, func(conn *websocket.Conn, _ int) {
			ackConnection(t, conn, "sess-1")
			drain(conn)
		})

		cfg := testChannelConfig(service.url())
		cfg.Reconnect = true
		cfg.ReconnectInterval = 20 * time.Millisecond
		cfg.MaxReconnectAttempts = 3
		channel := NewWebSocketChannel(cfg, nil, nil)

		lostCh := make(chan error, 1)
		channel.OnDisconnect(func(err error) { lostCh <- err })

		var errorEvents int32
		channel.Subscribe(ports.EventError, func(json.RawMessage) {
			atomic.AddInt32(&errorEvents, 1)
		})

		require.NoError(t, channel.Connect(context.Background()))

		// Execution: take the whole service down so every redial fails. The
		// listener is closed directly so the shutdown does not wait on the
		// still-open websocket connections.
		service.server.Listener.Close()
		service.closeAll()

		// Assertions: the lifecycle callback fires once with the terminal
		// error, and an error event is surfaced to subscribers.
		select {
		case err := <-lostCh:
			assert.ErrorIs(t, err, domain.ErrConnectionLost)
		case <-time.After(5 * time.Second):
			t.Fatal("terminal disconnect never reported")
		}
		assert.False(t, channel.Connected())
		assert.Equal(t, domain.SessionID(""), channel.SessionID())
		assert.Equal(t, int32(1), atomic.LoadInt32(&errorEvents))
	})

	t.Run("ZeroAttemptBudgetStillTerminates", func(t *testing.T) {
		// Setup
		service := newTestService(t, func(conn *websocket.Conn, _ int) {
			ackConnection(t, conn, "sess-1")
			drain(conn)
		})

		cfg := testChannelConfig(service.url())
		cfg.Reconnect = true
		cfg.ReconnectInterval = 20 * time.Millisecond
		cfg.MaxReconnectAttempts = 0
		channel := NewWebSocketChannel(cfg, nil, nil)

		lostCh := make(chan error, 1)
		channel.OnDisconnect(func(err error) { lostCh <- err })

		require.NoError(t, channel.Connect(context.Background()))

		// Execution: take the service down so the single redial fails.
		service.server.Listener.Close()
		service.closeAll()

		// Assertions: a zero budget means one attempt, not an unbounded
		// retry loop, and the loss is reported promptly.
		select {
		case err := <-lostCh:
			assert.ErrorIs(t, err, domain.ErrConnectionLost)
		case <-time.After(2 * time.Second):
			t.Fatal("terminal disconnect never reported")
		}
		assert.False(t, channel.Connected())
		assert.Equal(t, 1, service.dialCount())
	})

	t.Run("ExplicitDisconnectSuppressesReconnect", func(t *testing.T) {
		// Setup
		service := newTestService(t, func(conn *websocket.Conn, _ int) {
			ackConnection(t, conn, "sess-1")
			drain(conn)
		})

		cfg := testChannelConfig(service.url())
		cfg.Reconnect = true
		cfg.ReconnectInterval = 20 * time.Millisecond
		channel := NewWebSocketChannel(cfg, nil, nil)

		lost := make(chan error, 1)
		channel.OnDisconnect(func(err error) { lost <- err })

		require.NoError(t, channel.Connect(context.Background()))

		// Execution
		require.NoError(t, channel.Disconnect())

		// Assertions: no redial, no terminal callback.
		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, 1, service.dialCount())
		select {
		case err := <-lost:
			t.Fatalf("unexpected disconnect callback: %v", err)
		default:
		}
	})

	t.Run("DisconnectIsIdempotent", func(t *testing.T) {
		channel := NewWebSocketChannel(testChannelConfig("ws://127.0.0.1:1/ws"), nil, nil)

		assert.NoError(t, channel.Disconnect())
		assert.NoError(t, channel.Disconnect())
	})
}
