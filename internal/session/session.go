// Package session implements the Session actor: the state machine from
// spec §4.1 and the single serialized command queue that is the sole
// mutator of a running session's state (spec §9, Design notes). Every host
// action, player action, timer fire, and reconnect request is modeled as a
// Command and processed one at a time by Run, so there is never a data race
// over game state and the §8 testable properties (monotone progression,
// at-most-one-answer, reveal freeze) fall out of the structure rather than
// needing locks.
package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Seednode/quizhost/internal/apierr"
	"github.com/Seednode/quizhost/internal/clock"
	"github.com/Seednode/quizhost/internal/hub"
	"github.com/Seednode/quizhost/internal/minigame"
	"github.com/Seednode/quizhost/internal/quiz"
	"github.com/Seednode/quizhost/internal/store"
	"github.com/Seednode/quizhost/internal/transport"
)

const (
	defaultItemTimerSeconds = 20
	defaultBasePoints       = 10
	defaultMinigameTickHz   = 30
	minigameDuration        = 60 * time.Second
)

// itemRuntime is the actor-owned scratch state for the item currently open,
// locked, or just revealed. It is replaced wholesale by openItem and never
// touched by anything but the Run goroutine.
type itemRuntime struct {
	Item     quiz.Item
	Round    quiz.Round
	Index    int
	PrevState State
	PrevIndex int

	StartAt    time.Time
	Duration   time.Duration // 0 for untimed items (break/scoreboard/minigame)
	Timer      clock.Timer
	Generation int
	LockReason LockReason

	Answers map[string]answerRecord
}

type minigameRuntime struct {
	State    *minigame.State
	Tick     clock.Timer
	Inputs   map[string]minigame.Input
	Deadline time.Time
}

// Session is one running quiz instance: a single goroutine (Run) owns every
// field below except Code/ID/quiz/settings/st/hb/clk/idgen/cmds, which are
// fixed at construction.
type Session struct {
	Code string
	ID   string // Store's session row id

	quiz     *quiz.Quiz
	settings quiz.ScoringSettings

	st    store.Store
	hb    *hub.Hub
	clk   clock.Clock
	idgen *transport.IDGenerator
	logf  func(string, ...any)

	cmds chan Command

	state  State
	paused bool
	pausedRemaining time.Duration

	// degraded/pendingReconciles implement spec §4.8's Store-failure policy:
	// a write that exhausted RetryingStore's own backoff puts the session
	// into DEGRADED (reported via Session.broadcast, never aborting the
	// actor) and increments pendingReconciles; each background reconciler
	// goroutine (see reconcile.go) reports back through cmdReconcileDone
	// when its write finally lands, and the session leaves DEGRADED once
	// none remain outstanding.
	degraded          bool
	pendingReconciles int

	currentIndex int
	current      *itemRuntime
	minigame     *minigameRuntime

	players       map[string]*Player
	playersByFold map[string]string

	tickHz         int
	timerTolerance time.Duration
}

// SetTickHz overrides the Swan Chase simulation tick rate (spec §4.7,
// SPEC_FULL's --minigame-tick-hz) before any minigame has started. Zero or
// negative values are ignored and the current rate is kept (30 Hz unless
// set earlier).
func (s *Session) SetTickHz(hz int) {
	if hz > 0 {
		s.tickHz = hz
	}
}

// SetTimerTolerance adds slack to every item timer's actual fire time
// (spec §5: "Item timer: ... with ±100 ms tolerance") so that an answer
// delayed only by network jitter still lands before the lock, even though
// the deadline broadcast to clients stays the strict, untolerated value.
func (s *Session) SetTimerTolerance(d time.Duration) {
	if d >= 0 {
		s.timerTolerance = d
	}
}

// New constructs a Session in LOBBY state and wires its presence hooks into
// the Hub room for code. The caller must have already created the session
// row in Store (CreateSession) and snapshotted q — quiz-edit locking (spec
// §4.2) is the registry/orchestrator's concern, not the Session actor's.
func New(code, sessionID string, q *quiz.Quiz, st store.Store, hb *hub.Hub, clk clock.Clock, idgen *transport.IDGenerator, logf func(string, ...any)) *Session {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	s := &Session{
		Code:          code,
		ID:            sessionID,
		quiz:          q,
		settings:      q.Scoring,
		st:            st,
		hb:            hb,
		clk:           clk,
		idgen:         idgen,
		logf:          logf,
		cmds:          make(chan Command, 64),
		state:         StateLobby,
		players:       make(map[string]*Player),
		playersByFold: make(map[string]string),
		tickHz:        defaultMinigameTickHz,
	}
	hb.SetPresenceHooks(code, s.onConnect, s.onDisconnect)
	return s
}

// Restore rebuilds a Session from persisted rows after a process crash
// (spec §4.8). Per spec's conservative rule, a question item in flight when
// the process died always resumes in ITEM_LOCKED — regardless of its
// pre-crash state — since in-flight (unrevealed) answers were never
// persisted and so cannot be recovered; the host simply reveals again.
// Break/scoreboard/minigame items carry no grading step, so they resume in
// ITEM_REVEALED instead.
func Restore(q *quiz.Quiz, st store.Store, hb *hub.Hub, clk clock.Clock, idgen *transport.IDGenerator, logf func(string, ...any), row store.SessionRow, playerRows []store.PlayerRow) *Session {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	s := &Session{
		Code:          row.Code,
		ID:            row.ID,
		quiz:          q,
		settings:      q.Scoring,
		st:            st,
		hb:            hb,
		clk:           clk,
		idgen:         idgen,
		logf:          logf,
		cmds:          make(chan Command, 64),
		state:         State(row.State),
		currentIndex:  row.CurrentIndex,
		players:       make(map[string]*Player),
		playersByFold: make(map[string]string),
		tickHz:        defaultMinigameTickHz,
	}
	hb.SetPresenceHooks(row.Code, s.onConnect, s.onDisconnect)

	for _, pr := range playerRows {
		p := &Player{
			ID: pr.ID, Name: pr.Name, Avatar: pr.Avatar, Token: pr.Token,
			Score: pr.Score, Streak: pr.Streak, JoinedAt: pr.JoinedAt,
		}
		s.players[pr.ID] = p
		s.playersByFold[foldName(pr.Name)] = pr.ID
	}

	if s.state == StateEnded {
		return s
	}

	round, item, ok := q.ItemAt(row.CurrentIndex)
	if !ok {
		s.state = StateLobby
		s.currentIndex = 0
		return s
	}

	rt := &itemRuntime{Item: item, Round: round, Index: row.CurrentIndex, Answers: make(map[string]answerRecord)}
	s.current = rt
	if item.Kind == quiz.ItemQuestion {
		s.state = StateItemLocked
	} else {
		s.state = StateItemRevealed
	}
	return s
}

// Submit enqueues a command. Safe to call from any goroutine.
func (s *Session) Submit(cmd Command) { s.cmds <- cmd }

func (s *Session) onConnect(r hub.Role) {
	if r.Kind == "player" {
		s.Submit(CmdConnChanged{PlayerID: r.PlayerID, Online: true})
	}
}

func (s *Session) onDisconnect(r hub.Role) {
	if r.Kind == "player" {
		s.Submit(CmdConnChanged{PlayerID: r.PlayerID, Online: false})
	}
}

// Run is the actor loop. A pending Command always wins over a pending timer
// fire that becomes ready in the same instant — the non-blocking pre-check
// before the blocking select gives host actions priority, which is how
// "HostLock and timer-expire arrive in the same serialization step ->
// reason is host" (spec §4.1) is realized without any special-cased race
// detection.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case cmd := <-s.cmds:
			s.dispatch(ctx, cmd)
			continue
		default:
		}

		var timerC <-chan time.Time
		gen := 0
		if s.current != nil && s.current.Timer != nil {
			timerC = s.current.Timer.C()
			gen = s.current.Generation
		}
		var tickC <-chan time.Time
		if s.minigame != nil && s.minigame.Tick != nil {
			tickC = s.minigame.Tick.C()
		}

		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmds:
			s.dispatch(ctx, cmd)
		case <-timerC:
			s.dispatch(ctx, cmdTimerFired{generation: gen})
		case <-tickC:
			s.dispatch(ctx, cmdMinigameTick{})
		}
	}
}

func (s *Session) dispatch(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case CmdPlayerJoin:
		c.Reply <- s.handlePlayerJoin(ctx, c)
	case CmdPlayerLeave:
		c.Done <- s.handlePlayerLeave(c)
	case CmdPlayerAnswer:
		c.Done <- s.handlePlayerAnswer(ctx, c)
	case CmdMinigameInput:
		s.handleMinigameInput(c)
	case CmdHostStart:
		c.Done <- s.handleHostStart(ctx)
	case CmdHostLock:
		c.Done <- s.lockCurrentItem(ctx, LockHost)
	case CmdHostReveal:
		c.Done <- s.handleReveal(ctx)
	case CmdHostShowScoreboard:
		c.Done <- s.handleShowScoreboard(ctx, c.Scope)
	case CmdHostHideScoreboard:
		c.Done <- s.handleHideScoreboard(ctx)
	case CmdHostNext:
		c.Done <- s.handleNext(ctx)
	case CmdHostCancelItem:
		c.Done <- s.handleCancelItem(ctx)
	case CmdHostPause:
		c.Done <- s.handlePause()
	case CmdHostResume:
		c.Done <- s.handleResume()
	case CmdHostEnd:
		c.Done <- s.handleEnd(ctx)
	case CmdHostStartMinigame:
		c.Done <- s.handleStartMinigame(ctx, c.Kind)
	case CmdConnChanged:
		s.handleConnChanged(ctx, c)
	case CmdGetState:
		c.Reply <- s.snapshotFor(c.PlayerID)
	case CmdAuthPlayer:
		c.Reply <- s.handleAuthPlayer(c.Token)
	case cmdTimerFired:
		s.handleTimerFired(ctx, c.generation)
	case cmdMinigameTick:
		s.handleMinigameTick(ctx)
	case cmdReconcileDone:
		s.handleReconcileDone()
	default:
		s.logf("session %s: unknown command %T", s.Code, cmd)
	}
}

func (s *Session) broadcast(msgType string, payload any) {
	env, err := transport.NewEnvelope(s.idgen, s.clk.Now(), msgType, payload)
	if err != nil {
		s.logf("session %s: encode %s: %v", s.Code, msgType, err)
		return
	}
	s.hb.Broadcast(s.Code, env)
}

// isHostOrDisplay is the role predicate for every per-client filtered
// broadcast: host and display connections see the privileged variant,
// player connections see the restricted one.
func isHostOrDisplay(r hub.Role) bool { return r.Kind == "host" || r.Kind == "display" }

// broadcastFiltered is broadcast's per-client-filtered-view counterpart
// (SPEC_FULL's "per-client filtered views"): full is sent to connections
// isHostOrDisplay selects, restricted to every other connection.
func (s *Session) broadcastFiltered(msgType string, full, restricted any) {
	fullEnv, err := transport.NewEnvelope(s.idgen, s.clk.Now(), msgType, full)
	if err != nil {
		s.logf("session %s: encode %s: %v", s.Code, msgType, err)
		return
	}
	restrictedEnv, err := transport.NewEnvelope(s.idgen, s.clk.Now(), msgType, restricted)
	if err != nil {
		s.logf("session %s: encode %s: %v", s.Code, msgType, err)
		return
	}
	s.hb.BroadcastFiltered(s.Code, isHostOrDisplay, fullEnv, restrictedEnv)
}

// --- Player lifecycle -------------------------------------------------

func (s *Session) handlePlayerJoin(ctx context.Context, c CmdPlayerJoin) PlayerJoinResult {
	if s.state == StateEnded {
		return PlayerJoinResult{Err: apierr.New(apierr.SessionUnavailable, "session has ended")}
	}
	folded := foldName(c.Name)
	if folded == "" {
		return PlayerJoinResult{Err: apierr.New(apierr.BadRequest, "name required")}
	}
	if _, taken := s.playersByFold[folded]; taken {
		return PlayerJoinResult{Err: apierr.New(apierr.NameTaken, "name already in use")}
	}

	token := uuid.NewString()
	joinedAt := s.clk.Now()
	id, err := s.st.UpsertPlayer(ctx, store.PlayerRow{
		SessionID: s.ID,
		Name:      c.Name,
		Avatar:    c.Avatar,
		Token:     token,
		JoinedAt:  joinedAt,
	})
	if err != nil {
		return PlayerJoinResult{Err: apierr.Wrap(apierr.StoreTransient, "persist player", err)}
	}

	p := &Player{
		ID:            id,
		Name:          c.Name,
		Avatar:        c.Avatar,
		Token:         token,
		Online:        true,
		JoinedAtIndex: s.currentIndex,
		JoinedAt:      joinedAt,
	}
	s.players[id] = p
	s.playersByFold[folded] = id

	s.broadcast(transport.TypePlayerJoined, transport.PlayerJoinedPayload{Player: p.view()})

	return PlayerJoinResult{PlayerID: id, Token: token}
}

func (s *Session) handlePlayerLeave(c CmdPlayerLeave) error {
	p, ok := s.players[c.PlayerID]
	if !ok {
		return apierr.New(apierr.BadRequest, "unknown player")
	}
	delete(s.players, c.PlayerID)
	delete(s.playersByFold, foldName(p.Name))
	s.broadcast(transport.TypePlayerLeft, transport.PlayerLeftPayload{PlayerID: c.PlayerID})
	return nil
}

func (s *Session) handleConnChanged(ctx context.Context, c CmdConnChanged) {
	if c.PlayerID == "" {
		return
	}
	p, ok := s.players[c.PlayerID]
	if !ok {
		return
	}
	p.Online = c.Online

	if !c.Online && s.state == StateItemOpen {
		answered, online := s.answeredVsOnlineCount()
		if online > 0 && answered >= online {
			_ = s.lockCurrentItem(ctx, LockAllAnswered)
		}
	}
}

func (s *Session) handleAuthPlayer(token string) AuthResult {
	for id, p := range s.players {
		if p.Token == token {
			return AuthResult{PlayerID: id, Ok: true}
		}
	}
	return AuthResult{}
}

func (s *Session) answeredVsOnlineCount() (answered, online int) {
	for id, p := range s.players {
		if !p.Online {
			continue
		}
		online++
		if _, ok := s.current.Answers[id]; ok {
			answered++
		}
	}
	return answered, online
}

// --- Answers ------------------------------------------------------------

func (s *Session) handlePlayerAnswer(ctx context.Context, c CmdPlayerAnswer) error {
	if s.paused {
		return apierr.New(apierr.ItemNotOpen, "session paused")
	}
	if s.state != StateItemOpen || s.current == nil || s.current.Item.ID != c.ItemID {
		return apierr.New(apierr.ItemNotOpen, "item not open")
	}
	if _, ok := s.players[c.PlayerID]; !ok {
		return apierr.New(apierr.BadRequest, "unknown player")
	}
	if _, already := s.current.Answers[c.PlayerID]; already {
		return apierr.New(apierr.AlreadyAnswered, "already answered")
	}

	elapsed := s.clk.Now().Sub(s.current.StartAt).Seconds()
	if s.current.Duration > 0 {
		if elapsed < 0 {
			elapsed = 0
		}
		if d := s.current.Duration.Seconds(); elapsed > d {
			elapsed = d
		}
	} else {
		elapsed = 0
	}
	s.current.Answers[c.PlayerID] = answerRecord{Raw: c.Raw, TimeToAnswer: elapsed}

	s.broadcast(transport.TypeAnswerReceived, transport.AnswerReceivedPayload{ItemID: c.ItemID})

	answered, online := s.answeredVsOnlineCount()
	s.broadcast(transport.TypeAnswerCountUpdated, transport.AnswerCountUpdatedPayload{
		ItemID: c.ItemID, AnsweredCount: answered, OnlineCount: online,
	})

	if online > 0 && answered >= online {
		_ = s.lockCurrentItem(ctx, LockAllAnswered)
	}
	return nil
}

// --- Item lifecycle -------------------------------------------------

func (s *Session) handleHostStart(ctx context.Context) error {
	if s.state != StateLobby {
		return apierr.New(apierr.BadRequest, "session already started")
	}
	return s.openItem(ctx, 0)
}

func (s *Session) handleNext(ctx context.Context) error {
	if !canOpenItemFrom(s.state) {
		return apierr.New(apierr.BadRequest, "cannot advance from current state")
	}
	return s.openItem(ctx, s.currentIndex+1)
}

// openItem is the one place currentIndex moves forward, and it only ever
// moves to 0 (HostStart) or currentIndex+1 (HostNext) — the
// monotone-progression property from spec §8 falls directly out of that.
// HostCancelItem sets currentIndex back to the index that was current
// before the cancelled item opened, and Restore sets it from the stored row.
func (s *Session) openItem(ctx context.Context, index int) error {
	round, item, ok := s.quiz.ItemAt(index)
	if !ok {
		return s.handleEnd(ctx)
	}

	rt := &itemRuntime{
		Item:      item,
		Round:     round,
		Index:     index,
		PrevState: s.state,
		PrevIndex: s.currentIndex,
		StartAt:   s.clk.Now(),
		Generation: func() int {
			if s.current != nil {
				return s.current.Generation + 1
			}
			return 0
		}(),
		Answers: make(map[string]answerRecord),
	}
	s.currentIndex = index

	switch item.Kind {
	case quiz.ItemBreak, quiz.ItemScoreboard:
		s.current = rt
		s.state = StateItemRevealed
		_ = s.st.UpdateSessionState(ctx, s.ID, string(s.state), index)
		s.broadcast(transport.TypeItemStarted, transport.ItemStartedPayload{
			ItemID: item.ID, ItemIndex: index, Kind: string(item.Kind),
		})
		return nil

	case quiz.ItemMinigame:
		s.current = rt
		return s.startMinigame(ctx, "classic")

	default:
		timerSeconds := item.Overrides.TimerSeconds
		if timerSeconds <= 0 {
			timerSeconds = defaultItemTimerSeconds
		}
		rt.Duration = time.Duration(timerSeconds) * time.Second
		rt.Timer = s.clk.After(rt.Duration + s.timerTolerance)
		s.current = rt
		s.state = StateItemOpen
		_ = s.st.UpdateSessionState(ctx, s.ID, string(s.state), index)

		deadline := rt.StartAt.Add(rt.Duration)
		s.broadcast(transport.TypeItemStarted, transport.ItemStartedPayload{
			ItemID: item.ID, ItemIndex: index, Kind: string(item.Kind),
			Prompt: item.Question.Prompt, TimerSeconds: timerSeconds, DeadlineMs: deadline.UnixMilli(),
		})
		return nil
	}
}

func (s *Session) lockCurrentItem(ctx context.Context, reason LockReason) error {
	if s.state != StateItemOpen || s.current == nil {
		return apierr.New(apierr.BadRequest, "item not open")
	}
	if s.current.Timer != nil {
		s.current.Timer.Stop()
	}
	s.current.LockReason = reason
	s.state = StateItemLocked
	_ = s.st.UpdateSessionState(ctx, s.ID, string(s.state), s.currentIndex)
	s.broadcast(transport.TypeItemLocked, transport.ItemLockedPayload{ItemID: s.current.Item.ID, Reason: string(reason)})
	return nil
}

func (s *Session) handleTimerFired(ctx context.Context, generation int) {
	if s.current == nil || s.current.Generation != generation || s.state != StateItemOpen {
		return // stale fire from a cancelled/replaced/paused-and-rearmed timer
	}
	_ = s.lockCurrentItem(ctx, LockTimer)
}

func (s *Session) handleCancelItem(ctx context.Context) error {
	if s.state != StateItemOpen || s.current == nil {
		return apierr.New(apierr.BadRequest, "item not open")
	}
	if s.current.Timer != nil {
		s.current.Timer.Stop()
	}
	itemID := s.current.Item.ID
	s.currentIndex = s.current.PrevIndex
	s.state = s.current.PrevState
	s.current = nil

	_ = s.st.UpdateSessionState(ctx, s.ID, string(s.state), s.currentIndex)
	s.broadcast(transport.TypeItemCancelled, transport.ItemCancelledPayload{ItemID: itemID})
	return nil
}

func (s *Session) handleReveal(ctx context.Context) error {
	if s.state != StateItemLocked || s.current == nil {
		return apierr.New(apierr.BadRequest, "item not locked")
	}
	return s.revealCurrent(ctx)
}

// --- Scoreboard / pause / end ---------------------------------------

func (s *Session) handleShowScoreboard(ctx context.Context, scope string) error {
	if s.state != StateItemRevealed {
		return apierr.New(apierr.BadRequest, "scoreboard only available after a reveal")
	}
	s.state = StateScoreboard
	_ = s.st.UpdateSessionState(ctx, s.ID, string(s.state), s.currentIndex)
	s.broadcast(transport.TypeShowScoreboard, transport.ShowScoreboardPayload{
		Scope: scope, Entries: s.leaderboard(scope),
	})
	return nil
}

func (s *Session) handleHideScoreboard(ctx context.Context) error {
	if s.state != StateScoreboard {
		return apierr.New(apierr.BadRequest, "scoreboard not showing")
	}
	s.state = StateItemRevealed
	_ = s.st.UpdateSessionState(ctx, s.ID, string(s.state), s.currentIndex)
	s.broadcast(transport.TypeHideScoreboard, transport.HideScoreboardPayload{})
	return nil
}

func (s *Session) handlePause() error {
	if s.paused {
		return apierr.New(apierr.BadRequest, "already paused")
	}
	s.paused = true

	var remainingMs int64
	if s.state == StateItemOpen && s.current != nil && s.current.Timer != nil {
		remaining := s.current.StartAt.Add(s.current.Duration).Sub(s.clk.Now())
		if remaining < 0 {
			remaining = 0
		}
		s.current.Timer.Stop()
		s.pausedRemaining = remaining
		remainingMs = remaining.Milliseconds()
	}
	s.broadcast(transport.TypeSessionPaused, transport.SessionPausedPayload{RemainingMs: remainingMs})
	return nil
}

func (s *Session) handleResume() error {
	if !s.paused {
		return apierr.New(apierr.BadRequest, "not paused")
	}
	s.paused = false

	var deadlineMs int64
	if s.state == StateItemOpen && s.current != nil && s.pausedRemaining > 0 {
		s.current.Generation++
		s.current.StartAt = s.clk.Now().Add(s.pausedRemaining - s.current.Duration)
		s.current.Timer = s.clk.After(s.pausedRemaining)
		deadlineMs = s.clk.Now().Add(s.pausedRemaining).UnixMilli()
	}
	s.pausedRemaining = 0
	s.broadcast(transport.TypeSessionResumed, transport.SessionResumedPayload{DeadlineMs: deadlineMs})
	return nil
}

func (s *Session) handleEnd(ctx context.Context) error {
	if s.state == StateEnded {
		return nil
	}
	if s.current != nil && s.current.Timer != nil {
		s.current.Timer.Stop()
	}
	if s.minigame != nil && s.minigame.Tick != nil {
		s.minigame.Tick.Stop()
	}
	s.current = nil
	s.minigame = nil
	s.state = StateEnded

	final := s.rankedLeaderboard()
	scores := make([]store.FinalScore, 0, len(final))
	for _, e := range final {
		scores = append(scores, store.FinalScore{PlayerID: e.PlayerID, Score: e.Score, Rank: e.Rank})
	}
	if err := s.st.FinalizeSession(ctx, s.ID, scores); err != nil {
		s.logf("session %s: finalize: %v", s.Code, err)
		s.enterDegraded(ctx, reconcileJob{
			describe: "finalize session",
			attempt: func(ctx context.Context) error {
				return s.st.FinalizeSession(ctx, s.ID, scores)
			},
		})
	}

	s.broadcast(transport.TypeSessionEnded, transport.SessionEndedPayload{FinalLeaderboard: final})
	return nil
}

// --- Minigame ---------------------------------------------------------

func (s *Session) handleStartMinigame(ctx context.Context, kind string) error {
	if !canOpenItemFrom(s.state) {
		return apierr.New(apierr.BadRequest, "cannot start minigame from current state")
	}
	return s.startMinigame(ctx, kind)
}

func (s *Session) startMinigame(ctx context.Context, kind string) error {
	ids := make([]string, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	itemID := "lobby"
	if s.current != nil {
		itemID = s.current.Item.ID
	}

	st := minigame.NewState(minigame.Mode(kind), s.Code, itemID, ids)
	s.state = StateMinigameLive
	s.minigame = &minigameRuntime{
		State:    st,
		Inputs:   make(map[string]minigame.Input),
		Deadline: s.clk.Now().Add(minigameDuration),
		Tick:     s.clk.After(time.Second / time.Duration(s.tickHz)),
	}

	_ = s.st.UpdateSessionState(ctx, s.ID, string(s.state), s.currentIndex)
	s.broadcast(transport.TypeSwanChaseStarted, transport.SwanChaseStartedPayload{
		Mode: kind, Seed: fmt.Sprintf("%d", minigame.Seed(s.Code, itemID)),
	})
	return nil
}

func (s *Session) handleMinigameInput(c CmdMinigameInput) {
	if s.minigame == nil {
		return
	}
	s.minigame.Inputs[c.PlayerID] = minigame.Input{
		Thrust: c.Thrust, Turn: c.Turn, Sprint: c.Sprint, Dash: c.Dash, ReceivedAt: s.clk.Now(),
	}
}

func (s *Session) handleMinigameTick(ctx context.Context) {
	if s.minigame == nil {
		return
	}
	now := s.clk.Now()
	s.minigame.State.Step(s.minigame.Inputs, now, time.Second/time.Duration(s.tickHz))
	// The state diff goes out on every second tick (15 Hz at the default
	// 30 Hz tick rate).
	if s.minigame.State.Tick%2 == 0 {
		s.broadcast(transport.TypeSwanChaseState, s.minigame.State.Snapshot())
	}

	if now.Before(s.minigame.Deadline) {
		s.minigame.Tick = s.clk.After(time.Second / time.Duration(s.tickHz))
		return
	}
	s.endMinigame(ctx)
}

func (s *Session) endMinigame(ctx context.Context) {
	if s.minigame != nil && s.minigame.Tick != nil {
		s.minigame.Tick.Stop()
	}
	s.minigame = nil
	s.state = StateItemRevealed
	_ = s.st.UpdateSessionState(ctx, s.ID, string(s.state), s.currentIndex)
}

// --- Snapshots ----------------------------------------------------------

func (s *Session) snapshotFor(playerID string) transport.SessionStatePayload {
	players := make([]transport.PlayerView, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p.view())
	}
	sort.Slice(players, func(i, j int) bool { return players[i].PlayerID < players[j].PlayerID })

	payload := transport.SessionStatePayload{
		Code:         s.Code,
		State:        string(s.state),
		ItemIndex:    s.currentIndex,
		Players:      players,
		Paused:       s.paused,
		MinigameLive: s.state == StateMinigameLive,
		Degraded:     s.degraded,
	}
	if s.current != nil {
		payload.RoundTitle = s.current.Round.Title
		payload.ItemID = s.current.Item.ID
		if s.state == StateItemOpen && s.current.Duration > 0 {
			payload.DeadlineMs = s.current.StartAt.Add(s.current.Duration).UnixMilli()
		}
		if playerID != "" {
			_, payload.YourAnswered = s.current.Answers[playerID]
		}
	}
	return payload
}
