package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Seednode/quizhost/internal/store"
)

func TestNewCodeAvoidsAmbiguousCharsAndIsUnique(t *testing.T) {
	r := New(store.NewMemory())

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := r.NewCode()
		require.NoError(t, err)
		require.Len(t, code, codeLength)
		for _, c := range code {
			require.NotContains(t, "O0I1L", string(c))
		}
		require.False(t, seen[code])
		seen[code] = true
		r.Put(code, nil)
	}
}

func TestPutGetReleaseLifecycle(t *testing.T) {
	r := New(store.NewMemory())
	r.Put("ABC234", nil)

	_, ok := r.Get("ABC234")
	require.True(t, ok)

	r.Release("ABC234")
	_, ok = r.Get("ABC234")
	require.False(t, ok)
}

func TestQuizLockedDelegatesToStore(t *testing.T) {
	m := store.NewMemory()
	r := New(m)

	locked, err := r.QuizLocked(context.Background(), "q1")
	require.NoError(t, err)
	require.False(t, locked)

	_, err = m.CreateSession(context.Background(), store.SessionRow{Code: "ABC234", QuizID: "q1", State: "LOBBY"})
	require.NoError(t, err)

	locked, err = r.QuizLocked(context.Background(), "q1")
	require.NoError(t, err)
	require.True(t, locked)
}
