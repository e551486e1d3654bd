package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/extracto/internal/config"
	"github.com/OCAP2/extracto/internal/storage"
	"github.com/OCAP2/extracto/pkg/core"
	"github.com/OCAP2/extracto/pkg/streaming"
)

// Compile-time interface check.
var _ storage.Backend = (*Backend)(nil)

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *messageLog) count(msgType string) int {
	n := 0
	for _, env := range m.all() {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

// serve reads envelopes from c, records them and acks hello and end_run.
// It returns after stopAfter messages when stopAfter > 0.
func serve(c *ws.Conn, ml *messageLog, stopAfter int) {
	seen := 0
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var env streaming.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		ml.add(env)
		seen++

		if env.Type == streaming.TypeHello || env.Type == streaming.TypeEndRun {
			data, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
			if err := c.WriteMessage(ws.TextMessage, data); err != nil {
				return
			}
		}
		if stopAfter > 0 && seen >= stopAfter {
			return
		}
	}
}

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and acks hello and end_run.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()
		serve(c, ml, 0)
	}))
	t.Cleanup(srv.Close)
	return srv, ml
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newBackend(t *testing.T, srv *httptest.Server) *Backend {
	t.Helper()
	b := New(config.WebSocketConfig{URL: wsURL(srv), Secret: "s"}, config.MemoryConfig{}, nil)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

var alice = core.OwnerFromName("alice")

func TestInitSendsHello(t *testing.T) {
	srv, ml := testServer(t)
	newBackend(t, srv)

	msgs := ml.all()
	require.NotEmpty(t, msgs)
	assert.Equal(t, streaming.TypeHello, msgs[0].Type)

	var hello streaming.HelloPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &hello))
	assert.Equal(t, "extracto", hello.Service)
}

func TestInitFailsWithoutServer(t *testing.T) {
	b := New(config.WebSocketConfig{URL: "ws://127.0.0.1:1/live"}, config.MemoryConfig{}, nil)
	assert.Error(t, b.Init())
}

func TestStreamsWritesAndKeepsState(t *testing.T) {
	srv, ml := testServer(t)
	b := newBackend(t, srv)

	p := &core.Player{Owner: alice, Name: "alice", InRun: true}
	r := &core.Run{Owner: alice, Score: 7}
	require.NoError(t, b.Commit(p, r))
	require.NoError(t, b.Commit(p, nil))
	require.NoError(t, b.RecordTick(&core.TickRecord{Owner: alice.String(), Score: 7}))
	require.NoError(t, b.EndRun(&core.RunSummary{Owner: alice.String(), FinalScore: 7}))

	// end_run is acknowledged, so everything queued before it has arrived
	assert.Equal(t, 1, ml.count(streaming.TypeRun))
	assert.Equal(t, 1, ml.count(streaming.TypePlayer))
	assert.Equal(t, 1, ml.count(streaming.TypeTick))
	assert.Equal(t, 1, ml.count(streaming.TypeEndRun))

	got, err := b.LoadRun(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Score)
	assert.Zero(t, b.LiveRuns(), "finished run is no longer replayed")
	assert.Len(t, b.Summaries(), 1)
}

func TestRunPayloadCarriesSnapshot(t *testing.T) {
	srv, ml := testServer(t)
	b := newBackend(t, srv)

	r := &core.Run{Owner: alice, Score: 3, Experience: 2}
	r.Slots[3] = core.Occupy(core.Combatant{ID: 1, Health: 5, MaxHealth: 5})
	require.NoError(t, b.Commit(nil, r))

	require.Eventually(t, func() bool { return ml.count(streaming.TypeRun) == 1 }, time.Second, 5*time.Millisecond)

	var payload streaming.RunPayload
	for _, env := range ml.all() {
		if env.Type == streaming.TypeRun {
			require.NoError(t, json.Unmarshal(env.Payload, &payload))
		}
	}
	assert.Nil(t, payload.Player)
	require.NotNil(t, payload.Run)
	assert.Equal(t, alice, payload.Run.Owner)
	assert.True(t, payload.Run.Slots[3].Occupied)
	assert.Equal(t, 1, b.LiveRuns())
}

func TestReconnectReplaysLiveRuns(t *testing.T) {
	ml := &messageLog{}
	var conns atomic.Int32

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		if conns.Add(1) == 1 {
			// hello then one run snapshot, then drop the client
			serve(c, &messageLog{}, 2)
			return
		}
		serve(c, ml, 0)
	}))
	t.Cleanup(srv.Close)

	b := newBackend(t, srv)
	require.NoError(t, b.Commit(nil, &core.Run{Owner: alice, Score: 1}))

	require.Eventually(t, func() bool {
		return ml.count(streaming.TypeHello) == 1 && ml.count(streaming.TypeRun) == 1
	}, 5*time.Second, 20*time.Millisecond)

	msgs := ml.all()
	assert.Equal(t, streaming.TypeHello, msgs[0].Type)
	assert.Equal(t, streaming.TypeRun, msgs[1].Type)
}

func TestMarshalEnvelope(t *testing.T) {
	data, err := marshalEnvelope(streaming.TypeTick, core.TickRecord{Owner: "ab", Kills: 2})
	require.NoError(t, err)

	var decoded streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, streaming.TypeTick, decoded.Type)

	var rec core.TickRecord
	require.NoError(t, json.Unmarshal(decoded.Payload, &rec))
	assert.Equal(t, 2, rec.Kills)
}
