// Package websocket streams game state to a spectator server while keeping
// the authoritative copy in memory.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/OCAP2/extracto/internal/config"
	"github.com/OCAP2/extracto/internal/storage/memory"
	"github.com/OCAP2/extracto/pkg/core"
	"github.com/OCAP2/extracto/pkg/streaming"
)

// Version is reported in the hello message.
const Version = "1"

// Backend streams every write over WebSocket. Reads are served from the
// embedded memory backend, so a dropped connection never loses state.
type Backend struct {
	*memory.Backend

	conn *connection
	cfg  config.WebSocketConfig

	mu   sync.Mutex
	live map[core.Owner][]byte // latest run message per owner, replayed on reconnect
}

// New creates a new WebSocket storage backend. Finished runs are exported
// through mem the same way the memory backend does.
func New(cfg config.WebSocketConfig, mem config.MemoryConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		Backend: memory.New(mem),
		cfg:     cfg,
		live:    make(map[core.Owner][]byte),
	}
	b.conn = newConnection(logger.With("backend", "websocket"), b.replay)
	return b
}

// Init connects to the WebSocket server and announces the stream.
func (b *Backend) Init() error {
	if err := b.conn.dial(b.cfg.URL, b.cfg.Secret); err != nil {
		return err
	}
	hello, err := marshalEnvelope(streaming.TypeHello, b.hello())
	if err != nil {
		return err
	}
	return b.conn.sendAndWait(hello, streaming.TypeHello, ackTimeout)
}

// Close says goodbye and disconnects from the WebSocket server.
func (b *Backend) Close() error {
	if data, err := marshalEnvelope(streaming.TypeGoodbye, struct{}{}); err == nil {
		b.conn.send(data)
	}
	return b.conn.close()
}

func (b *Backend) hello() streaming.HelloPayload {
	return streaming.HelloPayload{Service: "extracto", Version: Version}
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// Commit stores the records in memory and streams them. A run snapshot is
// cached so that a reconnecting server sees every live run again.
func (b *Backend) Commit(p *core.Player, r *core.Run) error {
	if err := b.Backend.Commit(p, r); err != nil {
		return err
	}

	if r == nil {
		if p == nil {
			return nil
		}
		return b.sendEnvelope(streaming.TypePlayer, p)
	}

	data, err := marshalEnvelope(streaming.TypeRun, streaming.RunPayload{Player: p, Run: r})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.live[r.Owner] = data
	b.mu.Unlock()

	b.conn.send(data)
	return nil
}

func (b *Backend) RecordTick(rec *core.TickRecord) error {
	if err := b.Backend.RecordTick(rec); err != nil {
		return err
	}
	return b.sendEnvelope(streaming.TypeTick, rec)
}

// EndRun stores the summary and waits for the server to acknowledge it.
func (b *Backend) EndRun(s *core.RunSummary) error {
	if err := b.Backend.EndRun(s); err != nil {
		return err
	}

	if owner, err := core.ParseOwner(s.Owner); err == nil {
		b.mu.Lock()
		delete(b.live, owner)
		b.mu.Unlock()
	}

	data, err := marshalEnvelope(streaming.TypeEndRun, s)
	if err != nil {
		return err
	}
	return b.conn.sendAndWait(data, streaming.TypeEndRun, ackTimeout)
}

// replay returns the hello followed by the cached run snapshots in owner order.
func (b *Backend) replay() [][]byte {
	out := make([][]byte, 0, 1)
	if hello, err := marshalEnvelope(streaming.TypeHello, b.hello()); err == nil {
		out = append(out, hello)
	}

	b.mu.Lock()
	owners := make([]core.Owner, 0, len(b.live))
	for o := range b.live {
		owners = append(owners, o)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].String() < owners[j].String() })
	for _, o := range owners {
		out = append(out, b.live[o])
	}
	b.mu.Unlock()

	return out
}

// LiveRuns returns the number of runs whose snapshot is replayed on reconnect.
func (b *Backend) LiveRuns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// Dropped returns the number of messages dropped because the send queue was full.
func (b *Backend) Dropped() uint64 {
	return b.conn.droppedCount()
}
