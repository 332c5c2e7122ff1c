package session

import (
	"github.com/Seednode/quizhost/internal/grader"
	"github.com/Seednode/quizhost/internal/transport"
)

// Command is the serialized unit of mutation a Session processes. Every
// host action, player action, timer fire, and reconnect request becomes one
// of these and flows through the single queue described in spec §9's
// Design note: centralize all mutation behind one serial command queue per
// session, with a timer fire treated as a first-class command identical in
// kind to a host action.
type Command interface{ isCommand() }

// PlayerJoinResult is delivered on CmdPlayerJoin.Reply; Token is the
// player's bearer credential for subsequent reconnects (spec §4.5 auth).
type PlayerJoinResult struct {
	PlayerID string
	Token    string
	Err      error
}

type CmdPlayerJoin struct {
	Name   string
	Avatar string
	Reply  chan PlayerJoinResult
}

type CmdPlayerLeave struct {
	PlayerID string
	Done     chan error
}

type CmdPlayerAnswer struct {
	PlayerID string
	ItemID   string
	Raw      grader.RawAnswer
	Done     chan error
}

// CmdMinigameInput updates a player's latest steering input; it is applied
// at the next tick and carries no reply, matching the client's fire-and-
// forget send rate (spec §4.7).
type CmdMinigameInput struct {
	PlayerID string
	Thrust   float64
	Turn     float64
	Sprint   bool
	Dash     bool
}

type CmdHostStart struct{ Done chan error }
type CmdHostLock struct{ Done chan error }
type CmdHostReveal struct{ Done chan error }
type CmdHostShowScoreboard struct {
	Scope string
	Done  chan error
}
type CmdHostHideScoreboard struct{ Done chan error }
type CmdHostNext struct{ Done chan error }
type CmdHostCancelItem struct{ Done chan error }
type CmdHostPause struct{ Done chan error }
type CmdHostResume struct{ Done chan error }
type CmdHostEnd struct{ Done chan error }
type CmdHostStartMinigame struct {
	Kind string
	Done chan error
}

// CmdConnChanged is a presence notification fired by the Hub's connect/
// disconnect hooks (spec §4.5 Presence); nothing waits on it.
type CmdConnChanged struct {
	PlayerID string // empty for host/display connections
	Online   bool
}

// CmdGetState asks the Session to synthesize a fresh SESSION_STATE snapshot
// for one connection — the reconnect/catch-up path from spec §9's Design
// note "treat reconnect as a first-class command".
type CmdGetState struct {
	PlayerID string // empty for host/display
	Reply    chan transport.SessionStatePayload
}

// AuthResult answers CmdAuthPlayer: whether token still belongs to a player
// of this session, and if so, their id.
type AuthResult struct {
	PlayerID string
	Ok       bool
}

// CmdAuthPlayer lets the Orchestrator verify a reconnecting player's bearer
// token against the live actor's player map, rather than caching player
// identity outside the single-writer boundary.
type CmdAuthPlayer struct {
	Token string
	Reply chan AuthResult
}

// cmdTimerFired and cmdMinigameTick are internal-only commands injected by
// the Session's own run loop select, never constructed by callers.
type cmdTimerFired struct{ generation int }
type cmdMinigameTick struct{}

// cmdReconcileDone is submitted by a background reconciler goroutine (spec
// §4.8) once its retried write finally succeeds. Folding it through the
// actor's own command queue, instead of mutating Session.degraded directly
// from the reconciler goroutine, keeps the single-writer discipline intact.
type cmdReconcileDone struct{}

func (CmdPlayerJoin) isCommand()         {}
func (CmdPlayerLeave) isCommand()        {}
func (CmdPlayerAnswer) isCommand()       {}
func (CmdMinigameInput) isCommand()      {}
func (CmdHostStart) isCommand()          {}
func (CmdHostLock) isCommand()           {}
func (CmdHostReveal) isCommand()         {}
func (CmdHostShowScoreboard) isCommand() {}
func (CmdHostHideScoreboard) isCommand() {}
func (CmdHostNext) isCommand()           {}
func (CmdHostCancelItem) isCommand()     {}
func (CmdHostPause) isCommand()          {}
func (CmdHostResume) isCommand()         {}
func (CmdHostEnd) isCommand()            {}
func (CmdHostStartMinigame) isCommand()  {}
func (CmdConnChanged) isCommand()        {}
func (CmdGetState) isCommand()           {}
func (CmdAuthPlayer) isCommand()         {}
func (cmdTimerFired) isCommand()         {}
func (cmdMinigameTick) isCommand()       {}
func (cmdReconcileDone) isCommand()      {}
