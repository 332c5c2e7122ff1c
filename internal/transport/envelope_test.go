package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeRoundTrips(t *testing.T) {
	gen := NewIDGenerator(42)
	now := time.Unix(1700000000, 0)

	env, err := NewEnvelope(gen, now, TypeItemStarted, ItemStartedPayload{
		ItemID: "it1", ItemIndex: 0, Kind: "question", TimerSeconds: 10,
	})
	require.NoError(t, err)
	require.Equal(t, TypeItemStarted, env.Type)
	require.NotEmpty(t, env.ID)
	require.Equal(t, now.UnixMilli(), env.Ts)

	var payload ItemStartedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Equal(t, "it1", payload.ItemID)
}

func TestIDGeneratorIsMonotonic(t *testing.T) {
	gen := NewIDGenerator(1)
	now := time.Unix(1700000000, 0)

	a := gen.Next(now)
	b := gen.Next(now)
	require.NotEqual(t, a, b)
	require.Less(t, a, b)
}

func TestValidateRejectsBadRequest(t *testing.T) {
	err := Validate(PlayerJoinPayload{Name: ""})
	require.Error(t, err)

	err = Validate(PlayerJoinPayload{Name: "Alice"})
	require.NoError(t, err)

	err = Validate(HostShowScoreboardPayload{Scope: "top42"})
	require.Error(t, err)
}
