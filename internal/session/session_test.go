package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Seednode/quizhost/internal/clock"
	"github.com/Seednode/quizhost/internal/grader"
	"github.com/Seednode/quizhost/internal/hub"
	"github.com/Seednode/quizhost/internal/quiz"
	"github.com/Seednode/quizhost/internal/store"
	"github.com/Seednode/quizhost/internal/transport"
)

func mcQuiz() *quiz.Quiz {
	return &quiz.Quiz{
		ID: "q1",
		Rounds: []quiz.Round{
			{
				ID:    "r1",
				Title: "Round One",
				Items: []quiz.Item{
					{
						ID:   "i1",
						Kind: quiz.ItemQuestion,
						Overrides: quiz.ItemOverrides{
							TimerSeconds: 10,
							BasePoints:   10,
						},
						Question: &quiz.Question{
							ID:   "q-i1",
							Type: quiz.TypeMCSingle,
							Options: []quiz.Option{
								{Text: "Paris", IsCorrect: true},
								{Text: "Lyon", IsCorrect: false},
							},
						},
					},
					{
						ID:   "i2",
						Kind: quiz.ItemQuestion,
						Overrides: quiz.ItemOverrides{
							TimerSeconds: 10,
							BasePoints:   10,
						},
						Question: &quiz.Question{
							ID:   "q-i2",
							Type: quiz.TypeMCSingle,
							Options: []quiz.Option{
								{Text: "Berlin", IsCorrect: true},
								{Text: "Munich", IsCorrect: false},
							},
						},
					},
				},
			},
		},
		Scoring: quiz.DefaultScoringSettings(),
	}
}

type harness struct {
	s     *Session
	h     *hub.Hub
	clk   *clock.Fake
	store store.Store
	ctx    context.Context
	cancel context.CancelFunc
}

func newHarness(t *testing.T, q *quiz.Quiz) *harness {
	t.Helper()
	st := store.NewMemory()
	st.SeedQuiz(q)

	sessionID, err := st.CreateSession(context.Background(), store.SessionRow{Code: "ABC123", QuizID: q.ID, State: "LOBBY"})
	require.NoError(t, err)

	h := hub.New()
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s := New("ABC123", sessionID, q, st, h, clk, transport.NewIDGenerator(1), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	return &harness{s: s, h: h, clk: clk, store: st, ctx: ctx, cancel: cancel}
}

func (hn *harness) join(t *testing.T, name string) string {
	t.Helper()
	reply := make(chan PlayerJoinResult, 1)
	hn.s.Submit(CmdPlayerJoin{Name: name, Reply: reply})
	res := <-reply
	require.NoError(t, res.Err)
	hn.s.Submit(CmdConnChanged{PlayerID: res.PlayerID, Online: true})
	return res.PlayerID
}

func (hn *harness) answer(playerID, itemID string, raw grader.RawAnswer) error {
	done := make(chan error, 1)
	hn.s.Submit(CmdPlayerAnswer{PlayerID: playerID, ItemID: itemID, Raw: raw, Done: done})
	return <-done
}

func (hn *harness) do(cmd Command, done chan error) error {
	hn.s.Submit(cmd)
	return <-done
}

// sync waits for the actor goroutine to process queued commands before the
// test inspects state via a synchronous CmdGetState round trip, which
// doubles as a barrier since it is itself processed in queue order.
func (hn *harness) sync(t *testing.T) transport.SessionStatePayload {
	t.Helper()
	reply := make(chan transport.SessionStatePayload, 1)
	hn.s.Submit(CmdGetState{Reply: reply})
	return <-reply
}

func TestHostStartOpensFirstItem(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	done := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))

	st := hn.sync(t)
	require.Equal(t, string(StateItemOpen), st.State)
	require.Equal(t, "i1", st.ItemID)
}

func TestAtMostOneAnswerPerPlayerPerItem(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	p1 := hn.join(t, "Alice")
	done := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))

	require.NoError(t, hn.answer(p1, "i1", grader.RawAnswer{SelectedOptionIDs: []int{0}}))
	err := hn.answer(p1, "i1", grader.RawAnswer{SelectedOptionIDs: []int{1}})
	require.Error(t, err)
}

func TestMonotoneProgressionNeverGoesBackward(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	done := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))
	require.NoError(t, hn.do(CmdHostLock{Done: done}, done))
	require.NoError(t, hn.do(CmdHostReveal{Done: done}, done))
	st := hn.sync(t)
	require.Equal(t, 0, st.ItemIndex)

	require.NoError(t, hn.do(CmdHostNext{Done: done}, done))
	st = hn.sync(t)
	require.Equal(t, 1, st.ItemIndex)
	require.Equal(t, "i2", st.ItemID)
}

func TestTimerLockTransitionsFromItemOpenToItemLocked(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	done := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))

	hn.clk.Advance(10 * time.Second)

	require.Eventually(t, func() bool {
		return hn.sync(t).State == string(StateItemLocked)
	}, time.Second, time.Millisecond)
}

func TestStaleTimerFireAfterHostLockIsANoOp(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	done := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))

	lockDone := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostLock{Done: lockDone}, lockDone))

	st := hn.sync(t)
	require.Equal(t, string(StateItemLocked), st.State)

	// The original item timer is still pending in the fake clock (HostLock
	// stops it, but advancing here exercises the generation guard even if
	// it had not been stopped). The session must remain ITEM_LOCKED.
	hn.clk.Advance(10 * time.Second)
	st = hn.sync(t)
	require.Equal(t, string(StateItemLocked), st.State)
}

func TestRevealFreezesPointsAndIsIdempotentlyGuarded(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	p1 := hn.join(t, "Alice")
	done := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))
	require.NoError(t, hn.answer(p1, "i1", grader.RawAnswer{SelectedOptionIDs: []int{0}}))
	require.NoError(t, hn.do(CmdHostLock{Done: done}, done))
	require.NoError(t, hn.do(CmdHostReveal{Done: done}, done))

	st := hn.sync(t)
	require.Equal(t, string(StateItemRevealed), st.State)

	// Revealing again (only reachable via HostReveal, guarded to
	// ITEM_LOCKED) must fail — there is no second grading pass.
	err := hn.do(CmdHostReveal{Done: done}, done)
	require.Error(t, err)
}

func TestNoAnswerAtLockGradesIncorrect(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	hn.join(t, "Alice")
	done := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))
	require.NoError(t, hn.do(CmdHostLock{Done: done}, done))
	require.NoError(t, hn.do(CmdHostReveal{Done: done}, done))

	st := hn.sync(t)
	require.Equal(t, string(StateItemRevealed), st.State)
}

func TestLateJoinIsNotGradedRetroactively(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	p1 := hn.join(t, "Alice")
	done := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))
	require.NoError(t, hn.answer(p1, "i1", grader.RawAnswer{SelectedOptionIDs: []int{0}}))
	require.NoError(t, hn.do(CmdHostLock{Done: done}, done))
	require.NoError(t, hn.do(CmdHostReveal{Done: done}, done))

	// Bob joins after i1 has been revealed; i1's points are already frozen,
	// so only i2 (10 points plus the 3-point first-place podium bonus) can
	// add to his score.
	bob := hn.join(t, "Bob")

	require.NoError(t, hn.do(CmdHostNext{Done: done}, done))
	require.NoError(t, hn.answer(bob, "i2", grader.RawAnswer{SelectedOptionIDs: []int{0}}))
	require.NoError(t, hn.do(CmdHostLock{Done: done}, done))
	require.NoError(t, hn.do(CmdHostReveal{Done: done}, done))

	st := hn.sync(t)
	require.Equal(t, string(StateItemRevealed), st.State)
	for _, p := range st.Players {
		if p.PlayerID == bob {
			require.Equal(t, 13, p.Score)
		}
	}
}

func TestNameTakenRejectsDuplicateFoldedName(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	hn.join(t, "Alice")
	reply := make(chan PlayerJoinResult, 1)
	hn.s.Submit(CmdPlayerJoin{Name: "alice", Reply: reply})
	res := <-reply
	require.Error(t, res.Err)
}

func TestPauseSuspendsTimerAndResumeRearmsIt(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	done := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))

	require.NoError(t, hn.do(CmdHostPause{Done: done}, done))
	hn.clk.Advance(30 * time.Second) // well past the 10s item timer; must not fire while paused

	st := hn.sync(t)
	require.Equal(t, string(StateItemOpen), st.State)
	require.True(t, st.Paused)

	require.NoError(t, hn.do(CmdHostResume{Done: done}, done))
	st = hn.sync(t)
	require.False(t, st.Paused)

	hn.clk.Advance(10 * time.Second)
	require.Eventually(t, func() bool {
		return hn.sync(t).State == string(StateItemLocked)
	}, time.Second, time.Millisecond)
}

func TestAllAnsweredLocksItemEarly(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	p1 := hn.join(t, "Alice")
	p2 := hn.join(t, "Bob")
	done := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))

	require.NoError(t, hn.answer(p1, "i1", grader.RawAnswer{SelectedOptionIDs: []int{0}}))
	st := hn.sync(t)
	require.Equal(t, string(StateItemOpen), st.State)

	require.NoError(t, hn.answer(p2, "i1", grader.RawAnswer{SelectedOptionIDs: []int{1}}))
	st = hn.sync(t)
	require.Equal(t, string(StateItemLocked), st.State)
}

func TestCancelItemDiscardsAnswersAndReturnsToLobby(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	p1 := hn.join(t, "Alice")
	done := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))
	require.NoError(t, hn.answer(p1, "i1", grader.RawAnswer{SelectedOptionIDs: []int{0}}))

	require.NoError(t, hn.do(CmdHostCancelItem{Done: done}, done))
	st := hn.sync(t)
	require.Equal(t, string(StateLobby), st.State)
	require.Equal(t, 0, st.ItemIndex)

	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))
	err := hn.answer(p1, "i1", grader.RawAnswer{SelectedOptionIDs: []int{0}})
	require.NoError(t, err) // not AlreadyAnswered: the cancelled attempt was discarded
}

func TestEndSessionPersistsFinalScoresAndBroadcastsEnded(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	p1 := hn.join(t, "Alice")
	done := make(chan error, 1)
	require.NoError(t, hn.do(CmdHostStart{Done: done}, done))
	require.NoError(t, hn.answer(p1, "i1", grader.RawAnswer{SelectedOptionIDs: []int{0}}))
	require.NoError(t, hn.do(CmdHostLock{Done: done}, done))
	require.NoError(t, hn.do(CmdHostReveal{Done: done}, done))
	require.NoError(t, hn.do(CmdHostEnd{Done: done}, done))

	st := hn.sync(t)
	require.Equal(t, string(StateEnded), st.State)

	reply := make(chan PlayerJoinResult, 1)
	hn.s.Submit(CmdPlayerJoin{Name: "Carol", Reply: reply})
	res := <-reply
	require.Error(t, res.Err)
}

func TestAuthPlayerResolvesTokenToPlayerID(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	reply := make(chan PlayerJoinResult, 1)
	hn.s.Submit(CmdPlayerJoin{Name: "Alice", Reply: reply})
	res := <-reply
	require.NoError(t, res.Err)

	authReply := make(chan AuthResult, 1)
	hn.s.Submit(CmdAuthPlayer{Token: res.Token, Reply: authReply})
	auth := <-authReply
	require.True(t, auth.Ok)
	require.Equal(t, res.PlayerID, auth.PlayerID)

	hn.s.Submit(CmdAuthPlayer{Token: "not-a-real-token", Reply: authReply})
	auth = <-authReply
	require.False(t, auth.Ok)
}

func TestRestoreResumesQuestionItemLocked(t *testing.T) {
	q := mcQuiz()
	st := store.NewMemory()
	row := store.SessionRow{ID: "sess1", Code: "ABC123", QuizID: q.ID, State: "ITEM_OPEN", CurrentIndex: 0}
	players := []store.PlayerRow{{ID: "p1", Name: "Alice", Token: "tok1", Score: 10}}

	h := hub.New()
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s := Restore(q, st, h, clk, transport.NewIDGenerator(1), nil, row, players)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	reply := make(chan transport.SessionStatePayload, 1)
	s.Submit(CmdGetState{Reply: reply})
	got := <-reply
	require.Equal(t, string(StateItemLocked), got.State)
	require.Equal(t, "i1", got.ItemID)
	require.Len(t, got.Players, 1)
}

func TestSetTickHzIgnoresNonPositive(t *testing.T) {
	hn := newHarness(t, mcQuiz())
	defer hn.cancel()

	hn.s.SetTickHz(60)
	require.Equal(t, 60, hn.s.tickHz)

	hn.s.SetTickHz(0)
	require.Equal(t, 60, hn.s.tickHz)

	hn.s.SetTickHz(-5)
	require.Equal(t, 60, hn.s.tickHz)
}
