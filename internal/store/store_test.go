package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Seednode/quizhost/internal/apierr"
	"github.com/Seednode/quizhost/internal/quiz"
	"github.com/stretchr/testify/require"
)

func exerciseStoreContract(t *testing.T, s Store, seedQuiz func(*quiz.Quiz)) {
	t.Helper()
	ctx := context.Background()

	q := &quiz.Quiz{ID: "q1", Rounds: []quiz.Round{{ID: "r1", Items: []quiz.Item{{ID: "i1"}}}}}
	seedQuiz(q)

	got, err := s.GetQuiz(ctx, "q1")
	require.NoError(t, err)
	require.Equal(t, "q1", got.ID)

	_, err = s.GetQuiz(ctx, "missing")
	require.Error(t, err)
	kind, ok := apierr.Of(err)
	require.True(t, ok)
	require.Equal(t, apierr.BadRequest, kind)

	sessionID, err := s.CreateSession(ctx, SessionRow{Code: "ABC123", QuizID: "q1", State: "LOBBY"})
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	active, err := s.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, sessionID, active[0].ID)

	playerID, err := s.UpsertPlayer(ctx, PlayerRow{SessionID: sessionID, Name: "Alice", Token: "tok1"})
	require.NoError(t, err)

	require.NoError(t, s.AppendAnswer(ctx, sessionID, playerID, "i1", AnswerRow{Fraction: 1, Points: 9}))

	err = s.AppendAnswer(ctx, sessionID, playerID, "i1", AnswerRow{Fraction: 1, Points: 9})
	require.Error(t, err)
	kind, ok = apierr.Of(err)
	require.True(t, ok)
	require.Equal(t, apierr.AlreadyAnswered, kind)

	require.NoError(t, s.UpdatePlayerScore(ctx, playerID, 9, 1))
	require.NoError(t, s.UpdateSessionState(ctx, sessionID, "ITEM_REVEALED", 0))

	hasSession, err := s.HasNonArchivedSession(ctx, "q1")
	require.NoError(t, err)
	require.True(t, hasSession)

	require.NoError(t, s.ArchiveSessionsForQuiz(ctx, "q1"))
	hasSession, err = s.HasNonArchivedSession(ctx, "q1")
	require.NoError(t, err)
	require.False(t, hasSession)

	require.NoError(t, s.FinalizeSession(ctx, sessionID, []FinalScore{{PlayerID: playerID, Score: 9, Rank: 1}}))

	active, err = s.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	row, players, answers, err := s.LoadForRehydration(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, sessionID, row.ID)
	require.Len(t, players, 1)
	require.Len(t, answers, 1)
}

func TestMemoryStoreContract(t *testing.T) {
	m := NewMemory()
	exerciseStoreContract(t, m, m.SeedQuiz)
}

func TestSQLiteStoreContract(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "quizhost.db")

	s, err := OpenSQLite(dsn)
	require.NoError(t, err)
	defer s.Close()

	exerciseStoreContract(t, s, func(q *quiz.Quiz) {
		require.NoError(t, s.SeedQuiz(context.Background(), q))
	})
}

func TestCachedQuizStoreHitsCache(t *testing.T) {
	m := NewMemory()
	q := &quiz.Quiz{ID: "q1"}
	m.SeedQuiz(q)

	cached, err := NewCachedQuizStore(m, 8)
	require.NoError(t, err)

	got1, err := cached.GetQuiz(context.Background(), "q1")
	require.NoError(t, err)

	// Mutate the underlying store's map entry directly to a different
	// pointer; a cache hit must still return the originally cached value.
	m.SeedQuiz(&quiz.Quiz{ID: "q1", Rounds: []quiz.Round{{ID: "new"}}})

	got2, err := cached.GetQuiz(context.Background(), "q1")
	require.NoError(t, err)
	require.Same(t, got1, got2)
}
