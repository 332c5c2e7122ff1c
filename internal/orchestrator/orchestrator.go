// Package orchestrator implements spec §4.6: it accepts transport
// connections, authenticates them, routes to Hub + Session, and handles the
// reconnect/catch-up protocol. It is the only package that terminates HTTP
// and websocket connections — Hub and Session never see a net.Conn.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/quizhost/internal/apierr"
	"github.com/Seednode/quizhost/internal/clock"
	"github.com/Seednode/quizhost/internal/grader"
	"github.com/Seednode/quizhost/internal/hub"
	"github.com/Seednode/quizhost/internal/registry"
	"github.com/Seednode/quizhost/internal/session"
	"github.com/Seednode/quizhost/internal/store"
	"github.com/Seednode/quizhost/internal/transport"
)

// Orchestrator wires Store, Hub and Registry together behind an HTTP+
// websocket surface. One instance lives for the process lifetime (spec §5:
// it is the caller of the two process-wide singletons, not a singleton
// itself).
type Orchestrator struct {
	st  store.Store
	hb  *hub.Hub
	reg *registry.Registry
	clk clock.Clock

	reconnectWindow    time.Duration
	minigameTickHz     int
	itemTimerTolerance time.Duration
	logf               func(string, ...any)

	upgrader websocket.Upgrader

	mu         sync.Mutex
	hostTokens map[string]string // Store session id -> owner bearer token
	cancels    map[string]context.CancelFunc
	lastActive map[string]time.Time
	idSeed     uint64
}

// New constructs an Orchestrator. reconnectWindow is stored on the
// Orchestrator but not consulted anywhere: a player token is accepted on
// reconnect no matter how long ago the player disconnected, and neither
// Orchestrator nor Session expires a Player.
func New(st store.Store, hb *hub.Hub, reg *registry.Registry, clk clock.Clock, reconnectWindow time.Duration, minigameTickHz int, itemTimerTolerance time.Duration, logf func(string, ...any)) *Orchestrator {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Orchestrator{
		st:                 st,
		hb:                 hb,
		reg:                reg,
		clk:                clk,
		reconnectWindow:    reconnectWindow,
		minigameTickHz:     minigameTickHz,
		itemTimerTolerance: itemTimerTolerance,
		logf:               logf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hostTokens: make(map[string]string),
		cancels:    make(map[string]context.CancelFunc),
		lastActive: make(map[string]time.Time),
	}
}

func (o *Orchestrator) nextIDGen() *transport.IDGenerator {
	o.mu.Lock()
	o.idSeed++
	seed := o.idSeed
	o.mu.Unlock()
	return transport.NewIDGenerator(seed)
}

// CreateSession builds a new Session for quizID, registers it with the Hub
// and Registry, and starts its actor goroutine. It is the implementation
// behind POST /sessions (spec §6).
func (o *Orchestrator) CreateSession(ctx context.Context, quizID string) (code, hostToken string, err error) {
	q, err := o.st.GetQuiz(ctx, quizID)
	if err != nil {
		return "", "", err
	}

	code, err = o.reg.NewCode()
	if err != nil {
		return "", "", err
	}

	sessionID, err := o.st.CreateSession(ctx, store.SessionRow{Code: code, QuizID: quizID, State: string(session.StateLobby)})
	if err != nil {
		return "", "", apierr.Wrap(apierr.StoreTransient, "create session row", err)
	}

	s := session.New(code, sessionID, q, o.st, o.hb, o.clk, o.nextIDGen(), o.namedLogf("SESSION"))
	s.SetTickHz(o.minigameTickHz)
	s.SetTimerTolerance(o.itemTimerTolerance)

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.hostTokens[sessionID] = uuid.NewString()
	o.cancels[sessionID] = cancel
	o.lastActive[sessionID] = o.clk.Now()
	hostToken = o.hostTokens[sessionID]
	o.mu.Unlock()

	o.reg.Put(code, s)
	go s.Run(runCtx)

	o.logf("ORCH: created session %s (quiz %s)", code, quizID)
	return code, hostToken, nil
}

// RehydrateAll reloads every non-ended session from Store and restarts its
// actor (spec §4.8 "Session process crash"). Host owner tokens are not part
// of the persisted schema (spec §6), so a fresh one is minted per restored
// session and only surfaced via logf — whoever redeploys must read it from
// the process log and hand it back to the host, a limitation noted in
// DESIGN.md.
func (o *Orchestrator) RehydrateAll(ctx context.Context) error {
	rows, err := o.st.ListActiveSessions(ctx)
	if err != nil {
		return err
	}

	for _, row := range rows {
		q, err := o.st.GetQuiz(ctx, row.QuizID)
		if err != nil {
			o.logf("ORCH: rehydrate %s: load quiz: %v", row.Code, err)
			continue
		}
		_, players, _, err := o.st.LoadForRehydration(ctx, row.ID)
		if err != nil {
			o.logf("ORCH: rehydrate %s: load rows: %v", row.Code, err)
			continue
		}

		s := session.Restore(q, o.st, o.hb, o.clk, o.nextIDGen(), o.namedLogf("SESSION"), row, players)
		s.SetTickHz(o.minigameTickHz)
		s.SetTimerTolerance(o.itemTimerTolerance)

		runCtx, cancel := context.WithCancel(context.Background())
		o.mu.Lock()
		o.hostTokens[row.ID] = uuid.NewString()
		o.cancels[row.ID] = cancel
		o.lastActive[row.ID] = o.clk.Now()
		o.mu.Unlock()

		o.reg.Put(row.Code, s)
		go s.Run(runCtx)

		o.logf("ORCH: rehydrated session %s, new host token issued (see log, not persisted)", row.Code)
	}
	return nil
}

// EndSession cancels a session's actor, drops its Hub room and releases its
// join code; ReapIdle calls it for sessions that have sat idle. It does not
// change the session's stored state or archived flag.
func (o *Orchestrator) EndSession(code, sessionID string) {
	o.mu.Lock()
	cancel, ok := o.cancels[sessionID]
	delete(o.cancels, sessionID)
	delete(o.hostTokens, sessionID)
	delete(o.lastActive, sessionID)
	o.mu.Unlock()
	if ok {
		cancel()
	}
	o.hb.DropRoom(code)
	o.reg.Release(code)
}

func (o *Orchestrator) namedLogf(prefix string) func(string, ...any) {
	return func(format string, args ...any) {
		o.logf(prefix+": "+format, args...)
	}
}

func (o *Orchestrator) touch(sessionID string) {
	o.mu.Lock()
	o.lastActive[sessionID] = o.clk.Now()
	o.mu.Unlock()
}

// ReapIdle ends any session whose Hub room has had zero connections for
// longer than idleTimeout (spec's SUPPLEMENTED "Idle reaping", grounded on
// celebrity.go's reaperLoop/scheduleRemoval pattern). Intended to be called
// periodically by the cmd-level bootstrap, mirroring the teacher's
// ticker-driven GameManager.reaperLoop.
func (o *Orchestrator) ReapIdle(ctx context.Context, idleTimeout time.Duration) {
	o.mu.Lock()
	cutoff := o.clk.Now().Add(-idleTimeout)
	stale := make(map[string]string) // sessionID -> code
	for sessionID := range o.cancels {
		last := o.lastActive[sessionID]
		if last.Before(cutoff) {
			stale[sessionID] = ""
		}
	}
	o.mu.Unlock()

	for sessionID := range stale {
		rows, err := o.st.ListActiveSessions(ctx)
		if err != nil {
			continue
		}
		for _, row := range rows {
			if row.ID == sessionID {
				if o.hb.RoomSize(row.Code) == 0 {
					o.logf("ORCH: reaping idle session %s", row.Code)
					o.EndSession(row.Code, sessionID)
				}
				break
			}
		}
	}
}

// --- REST surface (spec §6) --------------------------------------------

type createSessionRequest struct {
	QuizID string `json:"quizId" validate:"required"`
}

type createSessionResponse struct {
	Code      string `json:"code"`
	HostToken string `json:"hostToken"`
}

// HandleCreateSession implements POST /sessions.
func (o *Orchestrator) HandleCreateSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apierr.New(apierr.BadRequest, "malformed body"))
		return
	}
	if err := transport.Validate(req); err != nil {
		writeErr(w, apierr.Wrap(apierr.BadRequest, "invalid request", err))
		return
	}

	code, hostToken, err := o.CreateSession(r.Context(), req.QuizID)
	if err != nil {
		writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(createSessionResponse{Code: code, HostToken: hostToken})
}

type sessionInfoResponse struct {
	Code       string `json:"code"`
	State      string `json:"state"`
	RoundTitle string `json:"roundTitle,omitempty"`
	PlayerCount int   `json:"playerCount"`
}

// HandleSessionInfo implements GET /sessions/code/:code — 200 with public
// metadata, or 410 Gone if the session is not live (ended/archived/unknown;
// Registry only tracks live sessions, so this package cannot distinguish
// "never existed" from "archived" without a Store round trip Registry does
// not expose — see DESIGN.md).
func (o *Orchestrator) HandleSessionInfo(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	code := p.ByName("code")
	s, ok := o.reg.Get(code)
	if !ok {
		http.Error(w, "session not live", http.StatusGone)
		return
	}

	reply := make(chan transport.SessionStatePayload, 1)
	s.Submit(session.CmdGetState{Reply: reply})
	st := <-reply

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sessionInfoResponse{
		Code: st.Code, State: st.State, RoundTitle: st.RoundTitle, PlayerCount: len(st.Players),
	})
}

// HandleHealthz implements GET /healthz — 200 while Store answers and the
// Registry is constructed, 503 otherwise (spec §6).
func (o *Orchestrator) HandleHealthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := o.st.ListActiveSessions(ctx); err != nil {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Ok\n"))
}

// HandleSessionQR renders a PNG QR code of the join URL for a session,
// adapted from celebrity.go's qrHandler (skip2/go-qrcode). It is served as
// its own GET route; the SESSION_STATE catch-up payload carries no QR.
func (o *Orchestrator) HandleSessionQR(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	code := p.ByName("code")
	if _, ok := o.reg.Get(code); !ok {
		http.Error(w, "session not live", http.StatusGone)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	url := fmt.Sprintf("%s://%s/play/%s", scheme, r.Host, code)

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func writeErr(w http.ResponseWriter, err error) {
	kind, ok := apierr.Of(err)
	if !ok {
		kind = apierr.StoreFatal
	}
	status := http.StatusInternalServerError
	switch kind {
	case apierr.BadRequest:
		status = http.StatusBadRequest
	case apierr.Unauthorized:
		status = http.StatusUnauthorized
	case apierr.SessionUnavailable, apierr.QuizLocked:
		status = http.StatusConflict
	case apierr.NameTaken, apierr.AlreadyAnswered, apierr.ItemNotOpen:
		status = http.StatusConflict
	case apierr.StoreTransient:
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

// --- WebSocket handshake (spec §4.6) ------------------------------------

// HandleWebSocket implements the realtime handshake: accept
// (sessionCode, role, token?), authenticate, register with the Hub, and run
// the read/write pumps for the connection's lifetime.
func (o *Orchestrator) HandleWebSocket(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	code := p.ByName("code")
	s, ok := o.reg.Get(code)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	roleParam := q.Get("role")
	token := q.Get("token")

	var role hub.Role
	switch roleParam {
	case "host":
		if !o.checkHostToken(s.ID, token) {
			http.Error(w, "bad host token", http.StatusUnauthorized)
			return
		}
		role = hub.HostRole()
	case "display":
		role = hub.DisplayRole()
	case "player":
		if token != "" {
			reply := make(chan session.AuthResult, 1)
			s.Submit(session.CmdAuthPlayer{Token: token, Reply: reply})
			auth := <-reply
			if !auth.Ok {
				http.Error(w, "bad player token", http.StatusUnauthorized)
				return
			}
			role = hub.PlayerRoleOf(auth.PlayerID)
		} else {
			role = hub.Role{Kind: "player"} // pending: resolved by an inbound PLAYER_JOIN
		}
	default:
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.logf("ORCH: websocket upgrade: %v", err)
		return
	}

	c, tail := o.hb.Register(code, role)
	o.touch(s.ID)

	for _, env := range tail {
		c.Send(env)
	}
	snapshotPlayerID := role.PlayerID
	reply := make(chan transport.SessionStatePayload, 1)
	s.Submit(session.CmdGetState{PlayerID: snapshotPlayerID, Reply: reply})
	st := <-reply
	if env, err := transport.NewEnvelope(o.nextIDGen(), o.clk.Now(), transport.TypeSessionState, st); err == nil {
		c.Send(env)
	}

	go o.writePump(conn, c)
	o.readPump(conn, c, s, role)
}

func (o *Orchestrator) checkHostToken(sessionID, token string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	want, ok := o.hostTokens[sessionID]
	return ok && token != "" && want == token
}

func (o *Orchestrator) writePump(conn *websocket.Conn, c *hub.Conn) {
	defer conn.Close()
	for env := range c.Outbound() {
		if err := conn.WriteJSON(env); err != nil {
			return
		}
	}
}

// readPump decodes inbound envelopes, validates their payload, and turns
// them into Session commands. role is mutated in place once a pending
// player connection completes PLAYER_JOIN, so later disconnects carry the
// right PlayerID to the presence hook.
func (o *Orchestrator) readPump(conn *websocket.Conn, c *hub.Conn, s *session.Session, role hub.Role) {
	defer func() {
		o.hb.Unregister(s.Code, c)
		conn.Close()
	}()

	for {
		var env transport.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		o.touch(s.ID)

		if err := o.dispatch(env, s, &role, c); err != nil {
			if errEnv, encErr := transport.NewEnvelope(o.nextIDGen(), o.clk.Now(), transport.TypeError, errorPayload(err)); encErr == nil {
				c.Send(errEnv)
			}
			if kind, ok := apierr.Of(err); ok && kind.CloseConn() {
				return
			}
		}
	}
}

type errorMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func errorPayload(err error) errorMessage {
	kind, ok := apierr.Of(err)
	if !ok {
		kind = apierr.StoreFatal
	}
	return errorMessage{Kind: string(kind), Message: err.Error()}
}

func (o *Orchestrator) dispatch(env transport.Envelope, s *session.Session, role *hub.Role, c *hub.Conn) error {
	switch env.Type {
	case transport.TypePlayerJoin:
		if role.Kind != "player" {
			return apierr.New(apierr.BadRequest, "only players may join")
		}
		var payload transport.PlayerJoinPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return apierr.Wrap(apierr.BadRequest, "decode PLAYER_JOIN", err)
		}
		if err := transport.Validate(payload); err != nil {
			return apierr.Wrap(apierr.BadRequest, "invalid PLAYER_JOIN", err)
		}
		reply := make(chan session.PlayerJoinResult, 1)
		s.Submit(session.CmdPlayerJoin{Name: payload.Name, Avatar: payload.Avatar, Reply: reply})
		res := <-reply
		if res.Err != nil {
			return res.Err
		}
		*role = hub.PlayerRoleOf(res.PlayerID)
		c.SetRole(*role)

		env, err := transport.NewEnvelope(o.nextIDGen(), o.clk.Now(), transport.TypePlayerJoinAck, transport.PlayerJoinAckPayload{
			PlayerID: res.PlayerID, Token: res.Token,
		})
		if err == nil {
			c.Send(env)
		}
		return nil

	case transport.TypePlayerAnswer:
		if role.Kind != "player" || role.PlayerID == "" {
			return apierr.New(apierr.BadRequest, "not joined")
		}
		var payload transport.PlayerAnswerPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return apierr.Wrap(apierr.BadRequest, "decode PLAYER_ANSWER", err)
		}
		if err := transport.Validate(payload); err != nil {
			return apierr.Wrap(apierr.BadRequest, "invalid PLAYER_ANSWER", err)
		}
		done := make(chan error, 1)
		s.Submit(session.CmdPlayerAnswer{
			PlayerID: role.PlayerID, ItemID: payload.ItemID, Done: done,
			Raw: grader.RawAnswer{
				SelectedOptionIDs: payload.SelectedOptionIDs,
				OrderedOptionIDs:  payload.OrderedOptionIDs,
				Numeric:           payload.Numeric,
				Text:              payload.Text,
			},
		})
		return <-done

	case transport.TypePlayerLeave:
		if role.Kind != "player" || role.PlayerID == "" {
			return nil
		}
		done := make(chan error, 1)
		s.Submit(session.CmdPlayerLeave{PlayerID: role.PlayerID, Done: done})
		return <-done

	case transport.TypePlayerMinigameInput:
		if role.Kind != "player" || role.PlayerID == "" {
			return nil
		}
		var payload transport.PlayerMinigameInputPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return apierr.Wrap(apierr.BadRequest, "decode PLAYER_MINIGAME_INPUT", err)
		}
		if err := transport.Validate(payload); err != nil {
			return apierr.Wrap(apierr.BadRequest, "invalid PLAYER_MINIGAME_INPUT", err)
		}
		s.Submit(session.CmdMinigameInput{
			PlayerID: role.PlayerID, Thrust: payload.Thrust, Turn: payload.Turn,
			Sprint: payload.Sprint, Dash: payload.Dash,
		})
		return nil

	case transport.TypeGetSessionState:
		reply := make(chan transport.SessionStatePayload, 1)
		s.Submit(session.CmdGetState{PlayerID: role.PlayerID, Reply: reply})
		st := <-reply
		stateEnv, err := transport.NewEnvelope(o.nextIDGen(), o.clk.Now(), transport.TypeSessionState, st)
		if err == nil {
			c.Send(stateEnv)
		}
		return nil

	case transport.TypeHostStart, transport.TypeHostLock, transport.TypeHostReveal,
		transport.TypeHostHideScoreboard, transport.TypeHostNext, transport.TypeHostCancelItem,
		transport.TypeHostPause, transport.TypeHostResume, transport.TypeHostEnd:
		if role.Kind != "host" {
			return apierr.New(apierr.Unauthorized, "host action requires host role")
		}
		return o.dispatchHostAction(env.Type, s)

	case transport.TypeHostShowScoreboard:
		if role.Kind != "host" {
			return apierr.New(apierr.Unauthorized, "host action requires host role")
		}
		var payload transport.HostShowScoreboardPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return apierr.Wrap(apierr.BadRequest, "decode HOST_SHOW_SCOREBOARD", err)
		}
		if err := transport.Validate(payload); err != nil {
			return apierr.Wrap(apierr.BadRequest, "invalid HOST_SHOW_SCOREBOARD", err)
		}
		done := make(chan error, 1)
		s.Submit(session.CmdHostShowScoreboard{Scope: payload.Scope, Done: done})
		return <-done

	case transport.TypeHostStartMinigame:
		if role.Kind != "host" {
			return apierr.New(apierr.Unauthorized, "host action requires host role")
		}
		var payload transport.HostStartMinigamePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return apierr.Wrap(apierr.BadRequest, "decode HOST_START_MINIGAME", err)
		}
		if err := transport.Validate(payload); err != nil {
			return apierr.Wrap(apierr.BadRequest, "invalid HOST_START_MINIGAME", err)
		}
		done := make(chan error, 1)
		s.Submit(session.CmdHostStartMinigame{Kind: payload.Kind, Done: done})
		return <-done

	default:
		return apierr.New(apierr.BadRequest, "unknown message type "+env.Type)
	}
}

func (o *Orchestrator) dispatchHostAction(msgType string, s *session.Session) error {
	done := make(chan error, 1)
	switch msgType {
	case transport.TypeHostStart:
		s.Submit(session.CmdHostStart{Done: done})
	case transport.TypeHostLock:
		s.Submit(session.CmdHostLock{Done: done})
	case transport.TypeHostReveal:
		s.Submit(session.CmdHostReveal{Done: done})
	case transport.TypeHostHideScoreboard:
		s.Submit(session.CmdHostHideScoreboard{Done: done})
	case transport.TypeHostNext:
		s.Submit(session.CmdHostNext{Done: done})
	case transport.TypeHostCancelItem:
		s.Submit(session.CmdHostCancelItem{Done: done})
	case transport.TypeHostPause:
		s.Submit(session.CmdHostPause{Done: done})
	case transport.TypeHostResume:
		s.Submit(session.CmdHostResume{Done: done})
	case transport.TypeHostEnd:
		s.Submit(session.CmdHostEnd{Done: done})
	default:
		return apierr.New(apierr.BadRequest, "unknown host action "+msgType)
	}
	return <-done
}
