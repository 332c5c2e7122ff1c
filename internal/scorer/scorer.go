// Package scorer implements the pure scoring contract from spec §4.4: point
// totals from correctness, timing, streak, and the speed-podium bonus. Like
// internal/grader, it performs no I/O and never blocks.
package scorer

import (
	"math"
	"sort"

	"github.com/Seednode/quizhost/internal/quiz"
)

// Input is everything Score needs for one player's one-item grade.
type Input struct {
	BasePoints   int
	Fraction     float64 // from grader.Result.Fraction, in [0,1]
	ItemDuration float64 // T, seconds
	TimeToAnswer float64 // t, seconds, clamped to [0,T] by the caller
	PriorStreak  int
	Settings     quiz.ScoringSettings
}

// Outcome is the per-player result of Score: the point delta (before any
// speed-podium bonus, which is evaluated across all players at once — see
// SpeedPodium) and the player's streak after this item.
type Outcome struct {
	Points    int
	NewStreak int
}

// Score implements spec §4.4's base formula:
//
//	points = round(B * f * (0.5 + 0.5*(1 - t/T)))   when f > 0, else 0
//
// plus the streak bonus (streakBonusPoints * newStreak) when f == 1.0 and
// streak bonuses are enabled. The streak resets to 0 whenever f < 1.0.
func Score(in Input) Outcome {
	if in.Fraction <= 0 {
		return Outcome{Points: 0, NewStreak: 0}
	}

	t := in.TimeToAnswer
	if in.ItemDuration > 0 {
		if t < 0 {
			t = 0
		}
		if t > in.ItemDuration {
			t = in.ItemDuration
		}
	} else {
		t = 0
	}

	timeFactor := 0.5
	if in.ItemDuration > 0 {
		timeFactor += 0.5 * (1 - t/in.ItemDuration)
	} else {
		timeFactor = 1.0
	}

	points := roundHalfAwayFromZero(float64(in.BasePoints) * in.Fraction * timeFactor)

	newStreak := 0
	if in.Fraction == 1.0 {
		newStreak = in.PriorStreak + 1
		if in.Settings.StreakBonusEnabled {
			points += in.Settings.StreakBonusPoints * newStreak
		}
	}

	return Outcome{Points: points, NewStreak: newStreak}
}

// PodiumCandidate is one player eligible for the speed-podium bonus: they
// must have achieved full credit (f == 1.0) on the item.
type PodiumCandidate struct {
	PlayerID     string
	TimeToAnswer float64
}

// SpeedPodium implements spec §4.4: evaluated per item, after grading, over
// players with f==1.0 sorted by ascending response time. The top three
// receive round(B * percentage[rank]/100); ties in t are broken by the
// lower player id winning. Returns a map of playerID -> bonus points for
// only the players who placed.
func SpeedPodium(candidates []PodiumCandidate, basePoints int, settings quiz.ScoringSettings) map[string]int {
	if !settings.SpeedPodiumEnabled || len(candidates) == 0 {
		return nil
	}

	sorted := append([]PodiumCandidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TimeToAnswer != sorted[j].TimeToAnswer {
			return sorted[i].TimeToAnswer < sorted[j].TimeToAnswer
		}
		return sorted[i].PlayerID < sorted[j].PlayerID
	})

	bonuses := make(map[string]int)
	for rank := 0; rank < len(sorted) && rank < 3; rank++ {
		pct := settings.SpeedPodiumPercentage[rank]
		bonus := roundHalfAwayFromZero(float64(basePoints) * float64(pct) / 100)
		if bonus != 0 {
			bonuses[sorted[rank].PlayerID] = bonus
		}
	}
	return bonuses
}

// roundHalfAwayFromZero matches the spec's "round(...)" notation, which for
// the non-negative magnitudes scoring produces is equivalent to round-half-up.
func roundHalfAwayFromZero(x float64) int {
	if x >= 0 {
		return int(math.Floor(x + 0.5))
	}
	return -int(math.Floor(-x + 0.5))
}
