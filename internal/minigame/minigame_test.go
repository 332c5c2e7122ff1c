package minigame

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSeedIsDeterministicPerSessionAndItem(t *testing.T) {
	require.Equal(t, Seed("ABC123", "i1"), Seed("ABC123", "i1"))
	require.NotEqual(t, Seed("ABC123", "i1"), Seed("ABC123", "i2"))
	require.NotEqual(t, Seed("ABC123", "i1"), Seed("XYZ999", "i1"))
}

func TestNewStateIsReproducibleForIdenticalInputs(t *testing.T) {
	a := NewState(ModeClassic, "ABC123", "i1", []string{"p1", "p2"})
	b := NewState(ModeClassic, "ABC123", "i1", []string{"p1", "p2"})
	require.Equal(t, a.Snapshot(), b.Snapshot())
}

func TestStepAppliesThrustAndStaysInLake(t *testing.T) {
	s := NewState(ModeClassic, "ABC123", "i1", []string{"p1"})
	now := time.Now()
	inputs := map[string]Input{"p1": {Thrust: 1, Turn: 0, ReceivedAt: now}}

	for i := 0; i < 600; i++ {
		s.Step(inputs, now, 33*time.Millisecond)
	}

	b := s.Boats["p1"]
	require.LessOrEqual(t, b.X*b.X+b.Y*b.Y, lakeRadius*lakeRadius+1)
}

func TestStaleInputIsTreatedAsZero(t *testing.T) {
	s := NewState(ModeClassic, "ABC123", "i1", []string{"p1"})
	stale := time.Now().Add(-time.Second)
	inputs := map[string]Input{"p1": {Thrust: 1, ReceivedAt: stale}}

	s.Step(inputs, time.Now(), 33*time.Millisecond)

	b := s.Boats["p1"]
	require.Equal(t, 0.0, b.VX)
	require.Equal(t, 0.0, b.VY)
}

func TestKingOfLakeTagTransfersCrown(t *testing.T) {
	s := NewState(ModeKingOfLake, "ABC123", "i1", []string{"p1", "p2"})
	s.SafeZones = nil // isolate the tag rule from the random safe-zone layout
	require.True(t, s.Boats["p1"].IsKing)

	s.Boats["p2"].X = s.Boats["p1"].X
	s.Boats["p2"].Y = s.Boats["p1"].Y

	events := s.collide()
	require.Len(t, events, 1)
	require.Equal(t, "tag", events[0].Kind)
	require.Equal(t, "p2", events[0].PlayerID)
	require.False(t, s.Boats["p1"].IsKing)
	require.True(t, s.Boats["p2"].IsKing)
}

// TestClassicTagGhostsBoatAndKeepsSwan guards spec §4.7's tag direction: a
// swan overlapping a boat ghosts the boat, it never eliminates the swan.
func TestClassicTagGhostsBoatAndKeepsSwan(t *testing.T) {
	s := NewState(ModeClassic, "ABC123", "i1", []string{"p1"})
	s.SafeZones = nil
	before := len(s.Swans)
	s.Swans[0].X = s.Boats["p1"].X
	s.Swans[0].Y = s.Boats["p1"].Y

	events := s.collide()
	require.Len(t, events, 1)
	require.Equal(t, "tag", events[0].Kind)
	require.Equal(t, "p1", events[0].PlayerID)
	require.Len(t, s.Swans, before)
	require.True(t, s.Boats["p1"].Ghosted)
	require.Greater(t, s.Boats["p1"].GhostRemaining, time.Duration(0))
}

func TestGhostedBoatUnghostsAfterDuration(t *testing.T) {
	s := NewState(ModeClassic, "ABC123", "i1", []string{"p1"})
	b := s.Boats["p1"]
	b.Ghosted = true
	b.GhostRemaining = 2 * time.Second

	now := time.Now()
	for i := 0; i < 100; i++ { // 100 * 33ms > 2s
		s.Step(nil, now, 33*time.Millisecond)
	}

	require.False(t, b.Ghosted)
}

func TestSafeZoneGrantsTagImmunity(t *testing.T) {
	s := NewState(ModeClassic, "ABC123", "i1", []string{"p1"})
	s.SafeZones = []SafeZone{{X: s.Boats["p1"].X, Y: s.Boats["p1"].Y, Radius: 10}}
	s.Swans[0].X = s.Boats["p1"].X
	s.Swans[0].Y = s.Boats["p1"].Y

	events := s.collide()
	require.Empty(t, events)
	require.False(t, s.Boats["p1"].Ghosted)
}

func TestCirclePolygonOverlapPushesCircleOutside(t *testing.T) {
	square := Obstacle{Vertices: []Point{{X: -5, Y: -5}, {X: 5, Y: -5}, {X: 5, Y: 5}, {X: -5, Y: 5}}}

	hit, nx, ny, depth := circlePolygonOverlap(0, 0, 1, square)
	require.True(t, hit)
	require.Greater(t, depth, 0.0)
	require.InDelta(t, 1.0, math.Hypot(nx, ny), 1e-9)

	hit, _, _, _ = circlePolygonOverlap(100, 100, 1, square)
	require.False(t, hit)
}

func TestDashAppliesImpulseThenRespectsCooldown(t *testing.T) {
	s := NewState(ModeClassic, "ABC123", "i1", []string{"p1"})
	b := s.Boats["p1"]
	now := time.Now()

	s.Step(map[string]Input{"p1": {Dash: true, ReceivedAt: now}}, now, 33*time.Millisecond)
	speedAfterDash := math.Hypot(b.VX, b.VY)
	require.Greater(t, speedAfterDash, 0.0)
	require.Greater(t, b.DashCooldown, time.Duration(0))

	speedBefore := speedAfterDash
	s.Step(map[string]Input{"p1": {Dash: true, ReceivedAt: now}}, now, 33*time.Millisecond)
	require.LessOrEqual(t, math.Hypot(b.VX, b.VY), speedBefore+1e-9)
}
