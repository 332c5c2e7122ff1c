package session

import (
	"strings"
	"time"

	"github.com/Seednode/quizhost/internal/grader"
	"github.com/Seednode/quizhost/internal/transport"
)

// Player is a session-scoped participant. Score/Streak are the Session
// actor's authoritative in-memory copy; Store mirrors them on every change
// so a crash can rehydrate (§4.8).
type Player struct {
	ID            string
	Name          string
	Avatar        string
	Token         string
	Online        bool
	Score         int
	Streak        int
	JoinedAtIndex int // currentIndex at join time; gates late-join non-retroactivity
	JoinedAt      time.Time
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (p *Player) view() transport.PlayerView {
	return transport.PlayerView{
		PlayerID: p.ID,
		Name:     p.Name,
		Avatar:   p.Avatar,
		Online:   p.Online,
		Score:    p.Score,
		Streak:   p.Streak,
	}
}

// answerRecord is one in-memory submission for the item currently open or
// locked. It is persisted to Store only at RevealItem time (see session.go),
// so a CancelItem before reveal discards it without ever touching Store —
// the cleanest reading of spec §4.1's "answers discarded" rule.
type answerRecord struct {
	Raw          grader.RawAnswer
	TimeToAnswer float64 // seconds since item open, clamped to [0, T]
}
