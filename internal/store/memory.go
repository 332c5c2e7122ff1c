package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Seednode/quizhost/internal/apierr"
	"github.com/Seednode/quizhost/internal/quiz"
	"github.com/google/uuid"
)

// Memory is an in-process Store, used in tests and as the reference
// implementation the Session actor is developed against. It is safe for
// concurrent use, though in practice each Session only ever writes through
// its own session id.
type Memory struct {
	mu        sync.Mutex
	quizzes   map[string]*quiz.Quiz
	sessions  map[string]SessionRow
	players   map[string]PlayerRow
	answers   map[string]AnswerRow
	answerKey map[string]string // "sessionID|playerID|itemID" -> answer id
}

func NewMemory() *Memory {
	return &Memory{
		quizzes:   make(map[string]*quiz.Quiz),
		sessions:  make(map[string]SessionRow),
		players:   make(map[string]PlayerRow),
		answers:   make(map[string]AnswerRow),
		answerKey: make(map[string]string),
	}
}

// SeedQuiz registers a quiz definition so GetQuiz can resolve it; there is
// no authoring write path in this package (out of scope, spec §1).
func (m *Memory) SeedQuiz(q *quiz.Quiz) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
}

func (m *Memory) GetQuiz(_ context.Context, quizID string) (*quiz.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quizzes[quizID]
	if !ok {
		return nil, apierr.New(apierr.BadRequest, fmt.Sprintf("unknown quiz %q", quizID))
	}
	return q, nil
}

func (m *Memory) CreateSession(_ context.Context, row SessionRow) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	m.sessions[row.ID] = row
	return row.ID, nil
}

func (m *Memory) UpsertPlayer(_ context.Context, row PlayerRow) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	m.players[row.ID] = row
	return row.ID, nil
}

func (m *Memory) AppendAnswer(_ context.Context, sessionID, playerID, itemID string, row AnswerRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionID + "|" + playerID + "|" + itemID
	if _, exists := m.answerKey[key]; exists {
		return apierr.New(apierr.AlreadyAnswered, fmt.Sprintf("player %s already answered item %s", playerID, itemID))
	}

	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.PlayerID = playerID
	row.ItemID = itemID
	m.answers[row.ID] = row
	m.answerKey[key] = row.ID
	return nil
}

func (m *Memory) UpdatePlayerScore(_ context.Context, playerID string, deltaScore, newStreak int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[playerID]
	if !ok {
		return apierr.New(apierr.BadRequest, fmt.Sprintf("unknown player %q", playerID))
	}
	p.Score += deltaScore
	p.Streak = newStreak
	m.players[playerID] = p
	return nil
}

func (m *Memory) FinalizeSession(_ context.Context, sessionID string, finalScores []FinalScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.sessions[sessionID]
	if !ok {
		return apierr.New(apierr.BadRequest, fmt.Sprintf("unknown session %q", sessionID))
	}
	row.State = "ENDED"
	row.EndedAt = time.Now()
	m.sessions[sessionID] = row
	_ = finalScores // final scores already live on PlayerRow.Score; kept for Store interface parity with a real backend's results table
	return nil
}

func (m *Memory) UpdateSessionState(_ context.Context, sessionID, state string, currentIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.sessions[sessionID]
	if !ok {
		return apierr.New(apierr.BadRequest, fmt.Sprintf("unknown session %q", sessionID))
	}
	row.State = state
	row.CurrentIndex = currentIndex
	m.sessions[sessionID] = row
	return nil
}

func (m *Memory) ArchiveSessionsForQuiz(_ context.Context, quizID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, row := range m.sessions {
		if row.QuizID == quizID && row.State != "ENDED" {
			row.Archived = true
			m.sessions[id] = row
		}
	}
	return nil
}

func (m *Memory) HasNonArchivedSession(_ context.Context, quizID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.sessions {
		if row.QuizID == quizID && row.State != "ENDED" && !row.Archived {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) LoadForRehydration(_ context.Context, sessionID string) (SessionRow, []PlayerRow, []AnswerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.sessions[sessionID]
	if !ok {
		return SessionRow{}, nil, nil, apierr.New(apierr.SessionUnavailable, fmt.Sprintf("unknown session %q", sessionID))
	}

	var players []PlayerRow
	for _, p := range m.players {
		if p.SessionID == sessionID {
			players = append(players, p)
		}
	}

	var answers []AnswerRow
	for key, answerID := range m.answerKey {
		if len(key) > len(sessionID) && key[:len(sessionID)] == sessionID {
			answers = append(answers, m.answers[answerID])
		}
	}

	return row, players, answers, nil
}

func (m *Memory) ListActiveSessions(_ context.Context) ([]SessionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []SessionRow
	for _, row := range m.sessions {
		if row.State != "ENDED" {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

var _ Store = (*Memory)(nil)
