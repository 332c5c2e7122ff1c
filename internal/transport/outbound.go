package transport

// Outbound broadcast payloads (spec §6). Types mirror the message-type
// constants above 1:1.

type PlayerView struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Online   bool   `json:"online"`
	Score    int    `json:"score"`
	Streak   int    `json:"streak"`
}

// SessionStatePayload is the full catch-up snapshot a reconnecting or
// newly-registered connection receives (spec §4.5, §9 "Reconnect / resume").
type SessionStatePayload struct {
	Code          string       `json:"code"`
	State         string       `json:"state"`
	RoundTitle    string       `json:"roundTitle,omitempty"`
	ItemIndex     int          `json:"itemIndex"`
	ItemID        string       `json:"itemId,omitempty"`
	DeadlineMs    int64        `json:"deadlineMs,omitempty"`
	Players       []PlayerView `json:"players"`
	YourAnswered  bool         `json:"yourAnswered,omitempty"`
	Paused        bool         `json:"paused"`
	MinigameLive  bool         `json:"minigameLive"`
	Degraded      bool         `json:"degraded"`
	Archived      bool         `json:"archived"`
}

type PlayerJoinedPayload struct {
	Player PlayerView `json:"player"`
}

// PlayerJoinAckPayload is delivered only to the connection that just joined
// (see TypePlayerJoinAck).
type PlayerJoinAckPayload struct {
	PlayerID string `json:"playerId"`
	Token    string `json:"token"`
}

type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
}

type ItemStartedPayload struct {
	ItemID       string `json:"itemId"`
	ItemIndex    int    `json:"itemIndex"`
	Kind         string `json:"kind"`
	Prompt       string `json:"prompt,omitempty"`
	TimerSeconds int    `json:"timerSeconds"`
	DeadlineMs   int64  `json:"deadlineMs"`
}

type ItemLockedPayload struct {
	ItemID string `json:"itemId"`
	Reason string `json:"reason"` // timer | host | all-answered | cancelled
}

type ItemCancelledPayload struct {
	ItemID string `json:"itemId"`
}

type RevealAnswerOption struct {
	OptionID  int    `json:"optionId"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// PlayerResult is one player's graded outcome on a revealed item.
// Normalized carries the grader's canonicalized submission text (spec §4.3)
// for host/display review; it is stripped from the variant broadcast to
// player connections (see Session.revealCurrent / hub.BroadcastFiltered) so
// a player's view of REVEAL_ANSWERS never surfaces another player's answer
// text, per SPEC_FULL's per-client filtered views.
type PlayerResult struct {
	Correctness string `json:"correctness"`
	Points      int    `json:"points"`
	Normalized  string `json:"normalized,omitempty"`
}

// RevealAnswersPayload is deliberately type-agnostic: fields are populated
// per question type and left zero otherwise.
type RevealAnswersPayload struct {
	ItemID         string                  `json:"itemId"`
	CorrectOptions []RevealAnswerOption    `json:"correctOptions,omitempty"`
	CanonicalText  string                  `json:"canonicalText,omitempty"`
	CanonicalOrder []string                `json:"canonicalOrder,omitempty"`
	Explanation    string                  `json:"explanation,omitempty"`
	Results        map[string]PlayerResult `json:"results"`
}

type AnswerReceivedPayload struct {
	ItemID string `json:"itemId"`
}

type AnswerCountUpdatedPayload struct {
	ItemID        string `json:"itemId"`
	AnsweredCount int    `json:"answeredCount"`
	OnlineCount   int    `json:"onlineCount"`
}

type LeaderboardEntryView struct {
	PlayerID   string `json:"playerId"`
	Name       string `json:"name"`
	Score      int    `json:"score"`
	Rank       int    `json:"rank"`
	RankChange int    `json:"rankChange"`
}

type LeaderboardUpdatePayload struct {
	Entries []LeaderboardEntryView `json:"entries"`
}

type ShowScoreboardPayload struct {
	Scope   string                 `json:"scope"`
	Entries []LeaderboardEntryView `json:"entries"`
}

type HideScoreboardPayload struct{}

type SessionPausedPayload struct {
	RemainingMs int64 `json:"remainingMs,omitempty"`
}

type SessionResumedPayload struct {
	DeadlineMs int64 `json:"deadlineMs,omitempty"`
}

type SessionEndedPayload struct {
	FinalLeaderboard []LeaderboardEntryView `json:"finalLeaderboard"`
}

type SpeedPodiumEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Rank     int    `json:"rank"`
	Bonus    int    `json:"bonus"`
}

type SpeedPodiumResultsPayload struct {
	ItemID  string             `json:"itemId"`
	Podium  []SpeedPodiumEntry `json:"podium"`
}

type SwanChaseStartedPayload struct {
	Mode string `json:"mode"`
	Seed string `json:"seed"`
}

// SwanChaseStatePayload is the 15 Hz compact state diff (spec §4.7).
type SwanChaseStatePayload struct {
	Tick  uint64           `json:"tick"`
	Boats []SwanChaseBoat  `json:"boats"`
	Swans []SwanChaseSwan  `json:"swans"`
}

type SwanChaseBoat struct {
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Heading  float64 `json:"heading"`
	Ghosted  bool    `json:"ghosted"`
	IsKing   bool    `json:"isKing,omitempty"`
}

// SessionDegradedPayload announces entry into the §4.8 failure state. Reason
// is a short human-readable description of the write that exhausted its
// retry budget (e.g. "score for <playerID>"), not the underlying error text.
type SessionDegradedPayload struct {
	Reason string `json:"reason"`
}

// SessionRecoveredPayload announces that the background reconciler caught
// every pending write back up and the session has left the degraded state.
type SessionRecoveredPayload struct{}

type SwanChaseSwan struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}
