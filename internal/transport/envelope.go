// Package transport defines the wire envelope and message-type constants
// from spec §6, plus the typed inbound/outbound payloads carried inside it.
package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Inbound message type constants (spec §6, "Inbound to Session").
const (
	TypeHostStart          = "HOST_START"
	TypeHostLock           = "HOST_LOCK"
	TypeHostReveal         = "HOST_REVEAL"
	TypeHostShowScoreboard = "HOST_SHOW_SCOREBOARD"
	TypeHostNext           = "HOST_NEXT"
	TypeHostCancelItem     = "HOST_CANCEL_ITEM"
	TypeHostPause          = "HOST_PAUSE"
	TypeHostResume         = "HOST_RESUME"
	TypeHostEnd            = "HOST_END"
	TypeHostStartMinigame  = "HOST_START_MINIGAME"
	TypePlayerJoin         = "PLAYER_JOIN"
	TypePlayerAnswer       = "PLAYER_ANSWER"
	TypePlayerLeave        = "PLAYER_LEAVE"
	TypePlayerMinigameInput = "PLAYER_MINIGAME_INPUT"
	TypeGetSessionState    = "GET_SESSION_STATE"
)

// Outbound broadcast type constants (spec §6, "Outbound broadcasts").
const (
	TypeSessionState       = "SESSION_STATE"
	TypePlayerJoined       = "PLAYER_JOINED"
	TypePlayerLeft         = "PLAYER_LEFT"
	TypeItemStarted        = "ITEM_STARTED"
	TypeItemLocked         = "ITEM_LOCKED"
	TypeItemCancelled      = "ITEM_CANCELLED"
	TypeRevealAnswers      = "REVEAL_ANSWERS"
	TypeAnswerReceived     = "ANSWER_RECEIVED"
	TypeAnswerCountUpdated = "ANSWER_COUNT_UPDATED"
	TypeLeaderboardUpdate  = "LEADERBOARD_UPDATE"
	TypeShowScoreboard     = "SHOW_SCOREBOARD"
	TypeHideScoreboard     = "HIDE_SCOREBOARD"
	TypeSessionPaused      = "SESSION_PAUSED"
	TypeSessionResumed     = "SESSION_RESUMED"
	TypeSessionEnded       = "SESSION_ENDED"
	TypeSpeedPodiumResults = "SPEED_PODIUM_RESULTS"
	TypeSwanChaseStarted   = "SWAN_CHASE_STARTED"
	TypeSwanChaseState     = "SWAN_CHASE_STATE"

	// TypeSessionDegraded/TypeSessionRecovered report the §4.8 failure
	// state: a Store write exhausted its retry budget (session keeps
	// running on in-memory state) and, later, the background reconciler
	// caught persistence back up.
	TypeSessionDegraded  = "SESSION_DEGRADED"
	TypeSessionRecovered = "SESSION_RECOVERED"

	// TypePlayerJoinAck is sent only to the joining connection itself, never
	// broadcast to the room: it carries the bearer token spec §4.6 says a
	// fresh join produces, which the player needs for future reconnects.
	TypePlayerJoinAck = "PLAYER_JOIN_ACK"

	// TypeError reports a rejected inbound message to its sender only,
	// per the §7 policy table's "to caller" / "to caller, close" rows.
	TypeError = "ERROR"
)

// Envelope is the wire shape for every message in both directions:
// { "type", "id", "ts", "payload" }.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Ts      int64           `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// IDGenerator produces monotonic ULIDs for the envelope's id field, so
// receivers get a sortable, collision-free key for at-least-once broadcast
// idempotency (spec §4.5).
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewIDGenerator seeds a monotonic ULID source from a process-local random
// reader. One generator is shared per Hub/Session to preserve monotonicity.
func NewIDGenerator(seed uint64) *IDGenerator {
	src := ulid.Monotonic(newSeededReader(seed), 0)
	return &IDGenerator{entropy: src}
}

func (g *IDGenerator) Next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(now), g.entropy)
	return id.String()
}

// NewEnvelope builds an outbound envelope with a fresh id and the given
// payload marshaled to JSON.
func NewEnvelope(gen *IDGenerator, now time.Time, msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:    msgType,
		ID:      gen.Next(now),
		Ts:      now.UnixMilli(),
		Payload: raw,
	}, nil
}
