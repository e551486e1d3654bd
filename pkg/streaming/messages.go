// Package streaming defines the messages sent to a spectator server over a
// WebSocket. Every message is an Envelope; the server answers selected types
// with an AckMessage.
package streaming

import (
	"encoding/json"

	"github.com/OCAP2/extracto/pkg/core"
)

const (
	TypeHello   = "hello"
	TypePlayer  = "player"
	TypeRun     = "run"
	TypeTick    = "tick"
	TypeEndRun  = "end_run"
	TypeGoodbye = "goodbye"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`
}

// HelloPayload opens a stream.
type HelloPayload struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// RunPayload carries a full run snapshot together with the profile it
// belongs to, when the profile changed in the same commit.
type RunPayload struct {
	Player *core.Player `json:"player,omitempty"`
	Run    *core.Run    `json:"run"`
}
