package scorer

import (
	"testing"

	"github.com/Seednode/quizhost/internal/quiz"
	"github.com/stretchr/testify/require"
)

func settingsNoStreak() quiz.ScoringSettings {
	s := quiz.DefaultScoringSettings()
	s.StreakBonusEnabled = false
	return s
}

// Scenario 1 (spec §8): P1 at t=2s of T=10s, base=10, full credit -> 9.
func TestScenarioHappyMCQScoring(t *testing.T) {
	out := Score(Input{
		BasePoints: 10, Fraction: 1.0, ItemDuration: 10, TimeToAnswer: 2,
		Settings: settingsNoStreak(),
	})
	require.Equal(t, 9, out.Points)
}

// Scenario 2 (spec §8): fraction=1.0 (>=0.85 threshold already applied by
// grader), t=4s of T=8s, base=10 -> 8.
func TestScenarioFuzzyOpenTextScoring(t *testing.T) {
	out := Score(Input{
		BasePoints: 10, Fraction: 1.0, ItemDuration: 8, TimeToAnswer: 4,
		Settings: settingsNoStreak(),
	})
	require.Equal(t, 8, out.Points)
}

// Scenario 3 (spec §8): numeric partial credit 0.5, t arbitrary within
// window contributing timeFactor=1 (t=0) -> 5.
func TestScenarioNumericMarginScoring(t *testing.T) {
	out := Score(Input{
		BasePoints: 10, Fraction: 0.5, ItemDuration: 10, TimeToAnswer: 0,
		Settings: settingsNoStreak(),
	})
	require.Equal(t, 5, out.Points)
}

// Scenario 4 (spec §8): ordered list fraction=0.5 at t=T/2 -> round(B*0.375).
func TestScenarioOrderedListScoring(t *testing.T) {
	out := Score(Input{
		BasePoints: 10, Fraction: 0.5, ItemDuration: 10, TimeToAnswer: 5,
		Settings: settingsNoStreak(),
	})
	require.Equal(t, 4, out.Points) // round(10*0.375) = round(3.75) = 4
}

func TestZeroFractionScoresZeroAndResetsStreak(t *testing.T) {
	out := Score(Input{
		BasePoints: 10, Fraction: 0, ItemDuration: 10, TimeToAnswer: 3,
		PriorStreak: 5, Settings: quiz.DefaultScoringSettings(),
	})
	require.Equal(t, 0, out.Points)
	require.Equal(t, 0, out.NewStreak)
}

func TestStreakBonusAppliesOnlyAtFullCredit(t *testing.T) {
	settings := quiz.DefaultScoringSettings()
	settings.StreakBonusPoints = 2

	out := Score(Input{
		BasePoints: 10, Fraction: 1.0, ItemDuration: 10, TimeToAnswer: 0,
		PriorStreak: 2, Settings: settings,
	})
	// base points = round(10*1*(0.5+0.5*1)) = 10, streak bonus = 2*3 = 6
	require.Equal(t, 16, out.Points)
	require.Equal(t, 3, out.NewStreak)

	partial := Score(Input{
		BasePoints: 10, Fraction: 0.9, ItemDuration: 10, TimeToAnswer: 0,
		PriorStreak: 2, Settings: settings,
	})
	require.Equal(t, 0, partial.NewStreak)
}

// Scenario 5 (spec §8): speed podium with tie-break by player id.
func TestScenarioSpeedPodiumTieBreak(t *testing.T) {
	settings := quiz.DefaultScoringSettings()

	bonuses := SpeedPodium([]PodiumCandidate{
		{PlayerID: "p1", TimeToAnswer: 1},
		{PlayerID: "p2", TimeToAnswer: 1},
		{PlayerID: "p3", TimeToAnswer: 2},
		{PlayerID: "p4", TimeToAnswer: 3},
	}, 10, settings)

	require.Equal(t, 3, bonuses["p1"])
	require.Equal(t, 2, bonuses["p2"])
	require.Equal(t, 1, bonuses["p3"])
	_, ok := bonuses["p4"]
	require.False(t, ok)
}

func TestSpeedPodiumFewerThanThreeQualifying(t *testing.T) {
	settings := quiz.DefaultScoringSettings()

	bonuses := SpeedPodium([]PodiumCandidate{
		{PlayerID: "p1", TimeToAnswer: 1},
	}, 10, settings)

	require.Equal(t, 3, bonuses["p1"])
	require.Len(t, bonuses, 1)
}

func TestSpeedPodiumDisabledYieldsNothing(t *testing.T) {
	settings := quiz.DefaultScoringSettings()
	settings.SpeedPodiumEnabled = false

	bonuses := SpeedPodium([]PodiumCandidate{{PlayerID: "p1", TimeToAnswer: 1}}, 10, settings)
	require.Nil(t, bonuses)
}

func TestScoreDeterminism(t *testing.T) {
	in := Input{BasePoints: 17, Fraction: 0.73, ItemDuration: 12, TimeToAnswer: 4.2, PriorStreak: 1, Settings: quiz.DefaultScoringSettings()}
	first := Score(in)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Score(in))
	}
}
