package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := Wrap(AlreadyAnswered, "player p1 item it1", errors.New("unique violation"))

	require.True(t, errors.Is(err, New(AlreadyAnswered, "")))
	require.False(t, errors.Is(err, New(NameTaken, "")))

	kind, ok := Of(err)
	require.True(t, ok)
	require.Equal(t, AlreadyAnswered, kind)
}

func TestRetryableAndCloseConnPolicy(t *testing.T) {
	require.True(t, StoreTransient.Retryable())
	require.False(t, BadRequest.Retryable())

	require.True(t, Unauthorized.CloseConn())
	require.True(t, SessionUnavailable.CloseConn())
	require.True(t, QueueOverflow.CloseConn())
	require.False(t, QuizLocked.CloseConn())
	require.False(t, AlreadyAnswered.CloseConn())
}
