package session

// State is one of the primary states from the state machine in spec §4.1:
//
//	LOBBY -> ITEM_OPEN -> ITEM_LOCKED -> ITEM_REVEALED -> (next item or SCOREBOARD) -> ... -> ENDED
//
// PAUSED, DEGRADED, and MINIGAME_ACTIVE are orthogonal to this axis in the
// spec text; PAUSED and DEGRADED are modeled as session.paused/session.
// degraded flags layered over whatever primary state the session was in
// (neither changes "where" the session is — paused suspends timers/input,
// degraded just means a Store write is being retried in the background),
// while MINIGAME_ACTIVE is modeled as a primary state since spec §4.7
// describes it as something the session transitions into and back out of
// around a minigame item.
type State string

const (
	StateLobby         State = "LOBBY"
	StateItemOpen      State = "ITEM_OPEN"
	StateItemLocked    State = "ITEM_LOCKED"
	StateItemRevealed  State = "ITEM_REVEALED"
	StateScoreboard    State = "SCOREBOARD"
	StateMinigameLive  State = "MINIGAME_ACTIVE"
	StateEnded         State = "ENDED"
)

// canOpenItemFrom is the §4.1 guard on OpenItem: "only from ITEM_REVEALED /
// LOBBY / SCOREBOARD".
func canOpenItemFrom(s State) bool {
	return s == StateItemRevealed || s == StateLobby || s == StateScoreboard
}

// LockReason is one of the four reasons an item can lock (spec §3, §4.1).
type LockReason string

const (
	LockTimer       LockReason = "timer"
	LockHost        LockReason = "host"
	LockAllAnswered LockReason = "all-answered"
	LockCancelled   LockReason = "cancelled"
)
