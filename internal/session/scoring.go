package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Seednode/quizhost/internal/apierr"
	"github.com/Seednode/quizhost/internal/grader"
	"github.com/Seednode/quizhost/internal/quiz"
	"github.com/Seednode/quizhost/internal/scorer"
	"github.com/Seednode/quizhost/internal/store"
	"github.com/Seednode/quizhost/internal/transport"
)

// revealCurrent implements spec §4.3/§4.4 together: grade every eligible
// player's raw submission (or the implicit no-answer per §3's "no answer at
// lock -> incorrect, fraction 0"), score it, apply the speed-podium bonus
// across the full set of full-credit answers, persist once, and broadcast.
// This is the only place an Answer's points are written — the "points
// finalized exactly once, at reveal" invariant from spec §3.2.
func (s *Session) revealCurrent(ctx context.Context) error {
	item := s.current.Item
	q := item.Question
	basePoints := item.Overrides.BasePoints
	if basePoints <= 0 {
		basePoints = defaultBasePoints
	}
	duration := s.current.Duration.Seconds()

	ids := make([]string, 0, len(s.players))
	for id, p := range s.players {
		// Late-join non-retroactivity: a player whose JoinedAtIndex is past
		// this item's index is skipped; one who joined while this item was
		// current is graded on it.
		if p.JoinedAtIndex <= s.current.Index {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	results := make(map[string]transport.PlayerResult, len(ids))
	var candidates []scorer.PodiumCandidate

	for _, id := range ids {
		p := s.players[id]
		rec, answered := s.current.Answers[id]

		var gr grader.Result
		t := duration
		switch {
		case answered:
			var err error
			gr, err = grader.Grade(q, rec.Raw)
			if err != nil {
				s.logf("session %s: grade item %s for player %s: %v", s.Code, item.ID, id, err)
				continue
			}
			t = rec.TimeToAnswer
		case q.Type == quiz.TypePoll:
			// Polls have no correct answer regardless of participation; grade
			// the zero-value RawAnswer so a non-voter still reads Unscored.
			var err error
			gr, err = grader.Grade(q, grader.RawAnswer{})
			if err != nil {
				s.logf("session %s: grade item %s for player %s: %v", s.Code, item.ID, id, err)
				continue
			}
		default:
			// spec §4.3: no answer at lock -> incorrect, fraction 0, points 0,
			// streak reset. Never run an unanswered player's zero-value
			// RawAnswer through the grader: for numeric_estimation/year_guess
			// a canonical answer near zero can put 0 inside the tolerance band
			// and grade a non-submission as Correct.
			gr = grader.Result{Correctness: grader.Incorrect, Fraction: 0}
		}

		if gr.Correctness == grader.Unscored {
			results[id] = transport.PlayerResult{Correctness: string(gr.Correctness), Normalized: gr.Normalized}
			continue
		}

		outcome := scorer.Score(scorer.Input{
			BasePoints:   basePoints,
			Fraction:     gr.Fraction,
			ItemDuration: duration,
			TimeToAnswer: t,
			PriorStreak:  p.Streak,
			Settings:     s.settings,
		})

		p.Score += outcome.Points
		p.Streak = outcome.NewStreak
		results[id] = transport.PlayerResult{Correctness: string(gr.Correctness), Points: outcome.Points, Normalized: gr.Normalized}

		if answered && gr.Fraction == 1.0 {
			candidates = append(candidates, scorer.PodiumCandidate{PlayerID: id, TimeToAnswer: t})
		}

		playerID := id
		payloadJ := ""
		if answered {
			if raw, err := json.Marshal(rec.Raw); err == nil {
				payloadJ = string(raw)
			}
		}
		answerRow := store.AnswerRow{
			ID: uuid.NewString(), PayloadJ: payloadJ, Fraction: gr.Fraction, Points: outcome.Points, ReceivedMs: int64(t * 1000),
		}
		if err := s.st.AppendAnswer(ctx, s.ID, playerID, item.ID, answerRow); err != nil {
			s.logf("session %s: persist answer %s/%s: %v", s.Code, playerID, item.ID, err)
			itemID := item.ID
			s.enterDegraded(ctx, reconcileJob{
				describe: fmt.Sprintf("answer %s/%s", playerID, itemID),
				attempt: func(ctx context.Context) error {
					err := s.st.AppendAnswer(ctx, s.ID, playerID, itemID, answerRow)
					// The same (playerID, itemID) row landing on an earlier,
					// only-apparently-failed attempt is success, not failure.
					if kind, ok := apierr.Of(err); ok && kind == apierr.AlreadyAnswered {
						return nil
					}
					return err
				},
			})
		}

		points, streak := outcome.Points, outcome.NewStreak
		if err := s.st.UpdatePlayerScore(ctx, playerID, points, streak); err != nil {
			s.logf("session %s: persist score for %s: %v", s.Code, playerID, err)
			s.enterDegraded(ctx, reconcileJob{
				describe: fmt.Sprintf("score for %s", playerID),
				attempt: func(ctx context.Context) error {
					return s.st.UpdatePlayerScore(ctx, playerID, points, streak)
				},
			})
		}
	}

	podium := s.applySpeedPodium(ctx, candidates, basePoints, results)

	s.state = StateItemRevealed
	_ = s.st.UpdateSessionState(ctx, s.ID, string(s.state), s.currentIndex)

	s.broadcastFiltered(transport.TypeRevealAnswers, revealPayload(item, results), revealPayload(item, stripNormalized(results)))
	if len(podium) > 0 {
		s.broadcast(transport.TypeSpeedPodiumResults, transport.SpeedPodiumResultsPayload{ItemID: item.ID, Podium: podium})
	}
	s.broadcast(transport.TypeLeaderboardUpdate, transport.LeaderboardUpdatePayload{Entries: s.leaderboard("all")})

	return nil
}

// applySpeedPodium evaluates the speed-podium bonus (spec §4.4) across all
// full-credit candidates at once — it must run after every player's base
// score for the item is already settled, since the bonus adds on top.
func (s *Session) applySpeedPodium(ctx context.Context, candidates []scorer.PodiumCandidate, basePoints int, results map[string]transport.PlayerResult) []transport.SpeedPodiumEntry {
	bonuses := scorer.SpeedPodium(candidates, basePoints, s.settings)
	if len(bonuses) == 0 {
		return nil
	}

	ranked := make([]scorer.PodiumCandidate, 0, len(bonuses))
	for _, c := range candidates {
		if _, ok := bonuses[c.PlayerID]; ok {
			ranked = append(ranked, c)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TimeToAnswer != ranked[j].TimeToAnswer {
			return ranked[i].TimeToAnswer < ranked[j].TimeToAnswer
		}
		return ranked[i].PlayerID < ranked[j].PlayerID
	})

	podium := make([]transport.SpeedPodiumEntry, 0, len(ranked))
	for rank, c := range ranked {
		bonus := bonuses[c.PlayerID]
		p := s.players[c.PlayerID]
		p.Score += bonus
		playerID, podiumBonus, streak := c.PlayerID, bonus, p.Streak
		if err := s.st.UpdatePlayerScore(ctx, playerID, podiumBonus, streak); err != nil {
			s.logf("session %s: persist podium bonus for %s: %v", s.Code, playerID, err)
			s.enterDegraded(ctx, reconcileJob{
				describe: fmt.Sprintf("podium bonus for %s", playerID),
				attempt: func(ctx context.Context) error {
					return s.st.UpdatePlayerScore(ctx, playerID, podiumBonus, streak)
				},
			})
		}
		if r, ok := results[c.PlayerID]; ok {
			r.Points += bonus
			results[c.PlayerID] = r
		}
		podium = append(podium, transport.SpeedPodiumEntry{PlayerID: c.PlayerID, Name: p.Name, Rank: rank + 1, Bonus: bonus})
	}
	return podium
}

// stripNormalized copies results with Normalized zeroed — the variant a
// player connection receives, so REVEAL_ANSWERS never surfaces another
// player's submission text to them (host/display get the full variant).
func stripNormalized(results map[string]transport.PlayerResult) map[string]transport.PlayerResult {
	stripped := make(map[string]transport.PlayerResult, len(results))
	for id, r := range results {
		r.Normalized = ""
		stripped[id] = r
	}
	return stripped
}

func revealPayload(item quiz.Item, results map[string]transport.PlayerResult) transport.RevealAnswersPayload {
	payload := transport.RevealAnswersPayload{ItemID: item.ID, Results: results}
	if item.Question == nil {
		return payload
	}
	if item.Overrides.ShowExplanation {
		payload.Explanation = item.Question.Explanation
	}

	variant, err := quiz.ParseOptions(item.Question.Type, item.Question.Options)
	if err != nil {
		return payload
	}
	switch v := variant.(type) {
	case quiz.MultipleChoice:
		for _, id := range v.OptionIDs {
			payload.CorrectOptions = append(payload.CorrectOptions, transport.RevealAnswerOption{
				OptionID: id, Text: v.Texts[id], IsCorrect: v.Correct[id],
			})
		}
	case quiz.OrderedList:
		for _, id := range v.Canonical {
			payload.CanonicalOrder = append(payload.CanonicalOrder, v.Texts[id])
		}
	case quiz.NumericEstimation:
		payload.CanonicalText = fmt.Sprintf("%g", v.Canonical)
	case quiz.OpenText:
		if len(v.Accepted) > 0 {
			payload.CanonicalText = v.Accepted[0]
		}
	}
	return payload
}

// rankedLeaderboard sorts every player by score descending, ties broken by
// player id for a stable order.
func (s *Session) rankedLeaderboard() []transport.LeaderboardEntryView {
	ids := make([]string, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := s.players[ids[i]], s.players[ids[j]]
		if pi.Score != pj.Score {
			return pi.Score > pj.Score
		}
		return pi.ID < pj.ID
	})

	entries := make([]transport.LeaderboardEntryView, 0, len(ids))
	for i, id := range ids {
		p := s.players[id]
		entries = append(entries, transport.LeaderboardEntryView{PlayerID: id, Name: p.Name, Score: p.Score, Rank: i + 1})
	}
	return entries
}

// leaderboard applies a HOST_SHOW_SCOREBOARD scope (top3/top5/top10/all).
func (s *Session) leaderboard(scope string) []transport.LeaderboardEntryView {
	full := s.rankedLeaderboard()
	n := len(full)
	switch scope {
	case "top3":
		if n > 3 {
			n = 3
		}
	case "top5":
		if n > 5 {
			n = 5
		}
	case "top10":
		if n > 10 {
			n = 10
		}
	}
	return full[:n]
}
