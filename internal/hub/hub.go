// Package hub implements the realtime message bus from spec §4.5: rooms
// keyed by session code, per-connection roles, ordered fan-out, a bounded
// reconnect tail, and backpressure-driven disconnects. Hub owns connection
// membership only — never game state (spec §3.2 Ownership).
package hub

import (
	"sync"

	"github.com/Seednode/quizhost/internal/transport"
)

// Role tags a connection the way spec §4.5 describes: host, player:{id}, or
// display.
type Role struct {
	Kind     string // "host" | "player" | "display"
	PlayerID string // set iff Kind == "player"
}

func HostRole() Role                { return Role{Kind: "host"} }
func DisplayRole() Role             { return Role{Kind: "display"} }
func PlayerRoleOf(id string) Role   { return Role{Kind: "player", PlayerID: id} }

// outboundQueueSize is the per-connection bounded queue from §4.5; overflow
// closes the connection and the client reconnects to catch up.
const outboundQueueSize = 256

// tailSize is N from §4.5: "replays a bounded tail (last N=50 broadcasts)".
const tailSize = 50

// Conn is what Hub needs from a transport connection: a way to push an
// outbound envelope and a way to know it died (checked via the closed
// channel from Send returning false).
type Conn struct {
	Role Role
	send chan transport.Envelope
	room *room
	once sync.Once
}

// Send enqueues an envelope for this connection. Returns false if the
// queue overflowed (caller must then close the connection per §4.5).
func (c *Conn) Send(env transport.Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Outbound is the channel the Orchestrator's write pump drains.
func (c *Conn) Outbound() <-chan transport.Envelope { return c.send }

// SetRole updates the role a connection is tagged with, under the room's
// lock — used by Orchestrator once a pending player connection completes
// PLAYER_JOIN and is assigned a player id, so a later disconnect fires the
// presence hook with the right PlayerID instead of the placeholder it
// registered under.
func (c *Conn) SetRole(r Role) {
	c.room.mu.Lock()
	c.Role = r
	c.room.mu.Unlock()
}

// Close is idempotent; safe to call from both the read and write pumps.
func (c *Conn) Close() { c.once.Do(func() { close(c.send) }) }

type room struct {
	mu    sync.Mutex
	conns map[*Conn]bool
	tail  []transport.Envelope

	onConnect    func(Role)
	onDisconnect func(Role)
}

func newRoom() *room {
	return &room{conns: make(map[*Conn]bool)}
}

func (r *room) broadcast(env transport.Envelope) (overflowed []*Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tail = append(r.tail, env)
	if len(r.tail) > tailSize {
		r.tail = r.tail[len(r.tail)-tailSize:]
	}

	for c := range r.conns {
		if !c.Send(env) {
			overflowed = append(overflowed, c)
		}
	}
	return overflowed
}

// broadcastFiltered is broadcast's per-client-filtered-view variant: conns
// selected by the caller's predicate get fullEnv, everyone else gets
// restrictedEnv. The tail replayed to a newly-registering connection always
// stores restrictedEnv — the bounded tail goes to whoever connects next
// regardless of role, so it must never carry the privileged variant.
func (r *room) broadcastFiltered(selects func(Role) bool, fullEnv, restrictedEnv transport.Envelope) (overflowed []*Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tail = append(r.tail, restrictedEnv)
	if len(r.tail) > tailSize {
		r.tail = r.tail[len(r.tail)-tailSize:]
	}

	for c := range r.conns {
		env := restrictedEnv
		if selects(c.Role) {
			env = fullEnv
		}
		if !c.Send(env) {
			overflowed = append(overflowed, c)
		}
	}
	return overflowed
}

func (r *room) register(c *Conn) []transport.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = true
	return append([]transport.Envelope(nil), r.tail...)
}

func (r *room) unregister(c *Conn) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
}

func (r *room) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Hub is the process-wide room registry (spec §5: one of the three
// process-wide singletons, alongside the session-code -> Session map and
// the Clock).
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func New() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

func (h *Hub) roomFor(code string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[code]
	if !ok {
		r = newRoom()
		h.rooms[code] = r
	}
	return r
}

// Register attaches a new connection to a session's room and returns the
// bounded tail replay (§4.5) it should be sent immediately — the caller is
// additionally responsible for having Session synthesize a fresh
// SESSION_STATE snapshot, since tail replay alone is not the catch-up
// contract (spec §9, Design notes "Reconnect / resume").
func (h *Hub) Register(code string, role Role) (*Conn, []transport.Envelope) {
	r := h.roomFor(code)
	c := &Conn{Role: role, send: make(chan transport.Envelope, outboundQueueSize), room: r}
	tail := r.register(c)

	r.mu.Lock()
	onConnect := r.onConnect
	r.mu.Unlock()
	if onConnect != nil {
		onConnect(role)
	}
	return c, tail
}

// Unregister detaches a connection. Safe to call more than once.
func (h *Hub) Unregister(code string, c *Conn) {
	r := h.roomFor(code)
	r.unregister(c)
	c.Close()

	r.mu.Lock()
	onDisconnect := r.onDisconnect
	r.mu.Unlock()
	if onDisconnect != nil {
		onDisconnect(c.Role)
	}
}

// SetPresenceHooks wires Session's PlayerJoined/PlayerLeft notification
// path (spec §4.5 Presence: "Hub notifies the Session on connect/disconnect").
// Hub never imports internal/session to avoid a cycle; the Orchestrator
// supplies these closures when it creates a session's room.
func (h *Hub) SetPresenceHooks(code string, onConnect, onDisconnect func(Role)) {
	r := h.roomFor(code)
	r.mu.Lock()
	r.onConnect = onConnect
	r.onDisconnect = onDisconnect
	r.mu.Unlock()
}

// Broadcast fans out env to every connection in the room, in the order
// Broadcast is called — the single-writer discipline that gives spec §4.5's
// "Fan-out ordering" guarantee, since all of one Session's broadcasts flow
// through this one call path serialized by the Session actor itself.
// Connections whose queue overflowed are force-closed and returned so the
// caller can notify Session of the resulting disconnect.
func (h *Hub) Broadcast(code string, env transport.Envelope) []*Conn {
	r := h.roomFor(code)
	overflowed := r.broadcast(env)

	r.mu.Lock()
	onDisconnect := r.onDisconnect
	r.mu.Unlock()

	for _, c := range overflowed {
		r.unregister(c)
		c.Close()
		if onDisconnect != nil {
			onDisconnect(c.Role)
		}
	}
	return overflowed
}

// BroadcastFiltered is Broadcast's role-filtered-view counterpart (spec
// SPEC_FULL's "per-client filtered views"): connections for which selects
// returns true receive fullEnv, every other connection receives
// restrictedEnv. Used for REVEAL_ANSWERS, where host/display connections
// see a grader's normalized answer text and player connections do not.
func (h *Hub) BroadcastFiltered(code string, selects func(Role) bool, fullEnv, restrictedEnv transport.Envelope) []*Conn {
	r := h.roomFor(code)
	overflowed := r.broadcastFiltered(selects, fullEnv, restrictedEnv)

	r.mu.Lock()
	onDisconnect := r.onDisconnect
	r.mu.Unlock()

	for _, c := range overflowed {
		r.unregister(c)
		c.Close()
		if onDisconnect != nil {
			onDisconnect(c.Role)
		}
	}
	return overflowed
}

// RoomSize reports the number of live connections in a room (any role).
func (h *Hub) RoomSize(code string) int {
	return h.roomFor(code).count()
}

// DropRoom removes a room entirely (session ended/archived); any still-open
// connections are closed.
func (h *Hub) DropRoom(code string) {
	h.mu.Lock()
	r, ok := h.rooms[code]
	if ok {
		delete(h.rooms, code)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[*Conn]bool)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
