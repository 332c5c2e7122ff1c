// Package grader implements the pure, per-question-type grading contract
// from spec §4.3: Grade(question, rawAnswer) -> (correctness, fraction, normalized).
// It performs no I/O and never blocks (spec §5).
package grader

import (
	"fmt"
	"sort"

	"github.com/Seednode/quizhost/internal/quiz"
)

// Correctness is the coarse verdict a grade maps to for UI/leaderboard
// purposes; Fraction carries the precise credit.
type Correctness string

const (
	Correct   Correctness = "correct"
	Partial   Correctness = "partial"
	Incorrect Correctness = "incorrect"
	Unscored  Correctness = "unscored"
)

// linearDecayZone is the K constant from §4.3's numeric-estimation rule:
// fraction decays linearly to zero over 3x the tolerance band.
const linearDecayZone = 3.0

// fuzzyCorrectThreshold and fuzzyPartialThreshold are the §4.3 open-text
// similarity cutoffs. The spec's Open Questions section explicitly allows
// tuning these given empirical data; none was supplied, so the pinned
// defaults are kept.
const (
	fuzzyCorrectThreshold = 0.85
	fuzzyPartialThreshold = 0.70
)

// RawAnswer is the type-erased submission a player sent; only the fields
// relevant to a question's type are read.
type RawAnswer struct {
	SelectedOptionIDs []int   // mc_single / mc_multi / true_false / poll
	OrderedOptionIDs  []int   // ordered_list, in submitted order
	Numeric           float64 // numeric_estimation / year_guess
	Text              string  // open_text / title_guess / artist_guess
}

// Result is the full Grade outcome, including the normalized form of the
// submission worth persisting/displaying (spec §3 Answer.normalized answer
// payload).
type Result struct {
	Correctness Correctness
	Fraction    float64
	Normalized  string
}

// Grade is pure: identical (question, raw) always yields an identical
// Result, which is what the §8 "Score determinism" and "Grader round-trip"
// properties require.
func Grade(q *quiz.Question, raw RawAnswer) (Result, error) {
	variant, err := quiz.ParseOptions(q.Type, q.Options)
	if err != nil {
		return Result{}, err
	}

	switch v := variant.(type) {
	case quiz.MultipleChoice:
		return gradeMultipleChoice(v, raw), nil
	case quiz.Poll:
		return gradePoll(v, raw), nil
	case quiz.OrderedList:
		return gradeOrderedList(v, raw), nil
	case quiz.NumericEstimation:
		return gradeNumericEstimation(v, raw), nil
	case quiz.OpenText:
		return gradeOpenText(v, raw), nil
	default:
		return Result{}, fmt.Errorf("grader: unsupported variant %T", variant)
	}
}

func gradeMultipleChoice(mc quiz.MultipleChoice, raw RawAnswer) Result {
	selected := toSet(raw.SelectedOptionIDs)
	normalized := normalizeSelection(mc, raw.SelectedOptionIDs)

	if !mc.Multi {
		if len(selected) == 1 {
			for id := range selected {
				if mc.Correct[id] {
					return Result{Correctness: Correct, Fraction: 1.0, Normalized: normalized}
				}
			}
		}
		return Result{Correctness: Incorrect, Fraction: 0, Normalized: normalized}
	}

	correctSet := map[int]bool{}
	for id, ok := range mc.Correct {
		if ok {
			correctSet[id] = true
		}
	}

	if setsEqual(selected, correctSet) {
		return Result{Correctness: Correct, Fraction: 1.0, Normalized: normalized}
	}

	intersection := 0
	extra := 0
	for id := range selected {
		if correctSet[id] {
			intersection++
		} else {
			extra++
		}
	}
	denomExtra := len(mc.OptionIDs) - len(correctSet)
	if denomExtra < 1 {
		denomExtra = 1
	}

	fraction := float64(intersection)/float64(max(1, len(correctSet))) - float64(extra)/float64(denomExtra)
	if fraction < 0 {
		fraction = 0
	}

	if fraction > 0 {
		return Result{Correctness: Partial, Fraction: fraction, Normalized: normalized}
	}
	return Result{Correctness: Incorrect, Fraction: 0, Normalized: normalized}
}

func gradePoll(p quiz.Poll, raw RawAnswer) Result {
	normalized := normalizeSelection(quiz.MultipleChoice{Texts: p.Texts}, raw.SelectedOptionIDs)
	return Result{Correctness: Unscored, Fraction: 0, Normalized: normalized}
}

func gradeOrderedList(ol quiz.OrderedList, raw RawAnswer) Result {
	n := len(ol.Canonical)
	if n == 0 {
		return Result{Correctness: Incorrect, Fraction: 0}
	}

	matches := 0
	for i := 0; i < n && i < len(raw.OrderedOptionIDs); i++ {
		if raw.OrderedOptionIDs[i] == ol.Canonical[i] {
			matches++
		}
	}
	fraction := float64(matches) / float64(n)

	normalized := ""
	for i, id := range raw.OrderedOptionIDs {
		if i > 0 {
			normalized += ", "
		}
		normalized += ol.Texts[id]
	}

	if fraction == 1.0 {
		return Result{Correctness: Correct, Fraction: 1.0, Normalized: normalized}
	}
	if fraction > 0 {
		return Result{Correctness: Partial, Fraction: fraction, Normalized: normalized}
	}
	return Result{Correctness: Incorrect, Fraction: 0, Normalized: normalized}
}

func gradeNumericEstimation(ne quiz.NumericEstimation, raw RawAnswer) Result {
	normalized := fmt.Sprintf("%g", raw.Numeric)

	tolerance := ne.Canonical * ne.ToleranceP / 100
	if tolerance < 0 {
		tolerance = -tolerance
	}
	diff := raw.Numeric - ne.Canonical
	if diff < 0 {
		diff = -diff
	}

	if diff <= tolerance {
		return Result{Correctness: Correct, Fraction: 1.0, Normalized: normalized}
	}

	if tolerance == 0 {
		return Result{Correctness: Incorrect, Fraction: 0, Normalized: normalized}
	}

	decayWidth := tolerance * linearDecayZone
	fraction := 1 - diff/decayWidth
	if fraction < 0 {
		fraction = 0
	}

	if fraction > 0 {
		return Result{Correctness: Partial, Fraction: fraction, Normalized: normalized}
	}
	return Result{Correctness: Incorrect, Fraction: 0, Normalized: normalized}
}

func gradeOpenText(ot quiz.OpenText, raw RawAnswer) Result {
	normalized := normalizeText(raw.Text)

	best := 0.0
	for _, accepted := range ot.Accepted {
		s := similarity(normalized, normalizeText(accepted))
		if s > best {
			best = s
		}
	}

	switch {
	case best >= fuzzyCorrectThreshold:
		return Result{Correctness: Correct, Fraction: 1.0, Normalized: normalized}
	case best >= fuzzyPartialThreshold:
		return Result{Correctness: Partial, Fraction: best, Normalized: normalized}
	default:
		return Result{Correctness: Incorrect, Fraction: 0, Normalized: normalized}
	}
}

func normalizeSelection(mc quiz.MultipleChoice, ids []int) string {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	out := ""
	for i, id := range sorted {
		if i > 0 {
			out += ", "
		}
		out += mc.Texts[id]
	}
	return out
}

func toSet(ids []int) map[int]bool {
	m := make(map[int]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func setsEqual(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
