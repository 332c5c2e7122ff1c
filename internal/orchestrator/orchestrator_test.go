package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/quizhost/internal/clock"
	"github.com/Seednode/quizhost/internal/hub"
	"github.com/Seednode/quizhost/internal/quiz"
	"github.com/Seednode/quizhost/internal/registry"
	"github.com/Seednode/quizhost/internal/store"
	"github.com/Seednode/quizhost/internal/transport"
)

func testQuiz() *quiz.Quiz {
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
				},
			},
		},
		Scoring: quiz.DefaultScoringSettings(),
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, store.Store) {
	t.Helper()
	st := store.NewMemory()
	st.SeedQuiz(testQuiz())
	hb := hub.New()
	reg := registry.New(st)
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	return New(st, hb, reg, clk, 30*time.Second, 30, 100*time.Millisecond, nil), st
}

func newTestRouter(o *Orchestrator) *httprouter.Router {
	r := httprouter.New()
	r.POST("/sessions", o.HandleCreateSession)
	r.GET("/sessions/code/:code", o.HandleSessionInfo)
	r.GET("/sessions/code/:code/qr", o.HandleSessionQR)
	r.GET("/healthz", o.HandleHealthz)
	r.GET("/ws/:code", o.HandleWebSocket)
	return r
}

func TestCreateSessionAndInfo(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	router := newTestRouter(o)
	srv := httptest.NewServer(router)
	defer srv.Close()

	body, err := json.Marshal(createSessionRequest{QuizID: "q1"})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/sessions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created createSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.Code)
	require.NotEmpty(t, created.HostToken)

	infoResp, err := http.Get(srv.URL + "/sessions/code/" + created.Code)
	require.NoError(t, err)
	defer infoResp.Body.Close()
	require.Equal(t, http.StatusOK, infoResp.StatusCode)

	var info sessionInfoResponse
	require.NoError(t, json.NewDecoder(infoResp.Body).Decode(&info))
	require.Equal(t, created.Code, info.Code)
	require.Equal(t, "LOBBY", info.State)
}

func TestSessionInfoGoneForUnknownCode(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	router := newTestRouter(o)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sessions/code/ZZZZZZ")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	router := newTestRouter(o)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDisplayWebSocketReceivesSessionState(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	router := newTestRouter(o)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx := context.Background()
	code, _, err := o.CreateSession(ctx, "q1")
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + code + "?role=display"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var env transport.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, transport.TypeSessionState, env.Type)
}

func TestHostWebSocketRequiresToken(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	router := newTestRouter(o)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx := context.Background()
	code, _, err := o.CreateSession(ctx, "q1")
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + code + "?role=host&token=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestPlayerJoinOverWebSocket(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	router := newTestRouter(o)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx := context.Background()
	code, _, err := o.CreateSession(ctx, "q1")
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + code + "?role=player"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot transport.Envelope
	require.NoError(t, conn.ReadJSON(&snapshot))
	require.Equal(t, transport.TypeSessionState, snapshot.Type)

	payload, err := json.Marshal(transport.PlayerJoinPayload{Name: "Alice"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(transport.Envelope{Type: transport.TypePlayerJoin, Payload: payload}))

	var ack transport.Envelope
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, transport.TypePlayerJoinAck, ack.Type)

	var ackPayload transport.PlayerJoinAckPayload
	require.NoError(t, json.Unmarshal(ack.Payload, &ackPayload))
	require.NotEmpty(t, ackPayload.PlayerID)
	require.NotEmpty(t, ackPayload.Token)
}

func TestRehydrateAllRestoresActiveSessions(t *testing.T) {
	st := store.NewMemory()
	st.SeedQuiz(testQuiz())
	hb := hub.New()
	reg := registry.New(st)
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	o := New(st, hb, reg, clk, 30*time.Second, 30, 100*time.Millisecond, nil)

	ctx := context.Background()
	code, _, err := o.CreateSession(ctx, "q1")
	require.NoError(t, err)

	reg2 := registry.New(st)
	o2 := New(st, hb, reg2, clk, 30*time.Second, 30, 100*time.Millisecond, nil)
	require.NoError(t, o2.RehydrateAll(ctx))

	_, ok := reg2.Get(code)
	require.True(t, ok)
}
