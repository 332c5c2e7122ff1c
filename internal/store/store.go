// Package store defines the durable-persistence boundary from spec §6: a
// read interface for quiz definitions and a write interface for sessions,
// players, answers, and scores. Session (internal/session) makes the
// gameplay writes; Orchestrator also creates session rows and reads quizzes
// and active sessions, and Registry asks the quiz-lock predicate. Store
// never mutates game state on its own.
package store

import (
	"context"
	"time"

	"github.com/Seednode/quizhost/internal/quiz"
)

// SessionRow mirrors the Sessions table layout in spec §6.
type SessionRow struct {
	ID               string
	Code             string
	QuizID           string
	State            string
	CurrentIndex     int
	ScoringSettingsJ string // JSON-encoded quiz.ScoringSettings
	StartedAt        time.Time
	EndedAt          time.Time
	Archived         bool
}

// PlayerRow mirrors the Players table layout in spec §6.
type PlayerRow struct {
	ID        string
	SessionID string
	Name      string
	Avatar    string
	Score     int
	Streak    int
	JoinedAt  time.Time
	Token     string
}

// AnswerRow mirrors the Answers table layout in spec §6. The (PlayerID,
// ItemID) pair is unique — enforced by the at-most-one-answer invariant in
// both the Session actor and (for SQL-backed Stores) the schema itself.
type AnswerRow struct {
	ID         string
	PlayerID   string
	ItemID     string
	PayloadJ   string // JSON-encoded grader.RawAnswer; empty when the player did not answer
	Fraction   float64
	Points     int
	ReceivedMs int64
}

// FinalScore is one line of the final leaderboard persisted at session end.
type FinalScore struct {
	PlayerID string
	Score    int
	Rank     int
}

// Store is the implementation-defined persistence boundary (spec §6).
// The Session actor issues its own writes one at a time. While a session is
// DEGRADED, its background reconciler goroutines (internal/session's
// reconcile.go) retry failed writes concurrently with the actor's writes,
// so writes for one session are not serialized in that state.
type Store interface {
	// GetQuiz returns an immutable snapshot of a quiz definition.
	GetQuiz(ctx context.Context, quizID string) (*quiz.Quiz, error)

	// CreateSession persists a new session row and returns its storage id.
	CreateSession(ctx context.Context, row SessionRow) (string, error)

	// UpsertPlayer persists a joining or late-joining player and returns
	// their storage id.
	UpsertPlayer(ctx context.Context, row PlayerRow) (string, error)

	// AppendAnswer persists a graded answer. Implementations MUST reject a
	// second answer for the same (playerID, itemID) with an error whose
	// Kind (via apierr.Of) is AlreadyAnswered.
	AppendAnswer(ctx context.Context, sessionID, playerID, itemID string, row AnswerRow) error

	// UpdatePlayerScore applies a score delta and sets the player's new
	// streak.
	UpdatePlayerScore(ctx context.Context, playerID string, deltaScore, newStreak int) error

	// FinalizeSession marks a session ended. The Memory and SQLite backends
	// do not store finalScores; the per-player scores written through
	// UpdatePlayerScore stand as the final scores.
	FinalizeSession(ctx context.Context, sessionID string, finalScores []FinalScore) error

	// UpdateSessionState persists the session's current state/item index,
	// used on every transition so a crashed process can rehydrate (§4.8).
	UpdateSessionState(ctx context.Context, sessionID, state string, currentIndex int) error

	// ArchiveSessionsForQuiz bulk-archives every non-ended session for a
	// quiz, implementing the host's "archive to unlock" action (§4.2).
	ArchiveSessionsForQuiz(ctx context.Context, quizID string) error

	// HasNonArchivedSession answers the quiz-lock predicate query from §4.2
	// / the Design notes ("enforce at the authoring write path with a
	// predicate query exists(non-archived session for quiz)").
	HasNonArchivedSession(ctx context.Context, quizID string) (bool, error)

	// LoadForRehydration returns everything Orchestrator needs to rebuild a
	// Session after a process crash (§4.8): the session row, its players,
	// and every answer recorded so far.
	LoadForRehydration(ctx context.Context, sessionID string) (SessionRow, []PlayerRow, []AnswerRow, error)

	// ListActiveSessions returns every session row not yet in state ENDED,
	// so Orchestrator can rehydrate a Session actor for each of them at
	// process startup (§4.8).
	ListActiveSessions(ctx context.Context) ([]SessionRow, error)
}
