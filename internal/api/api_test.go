package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubedrop/backend/internal/auth"
	"github.com/cubedrop/backend/internal/domain"
	"github.com/cubedrop/backend/internal/matchmaking"
	"github.com/cubedrop/backend/internal/results"
	"github.com/cubedrop/backend/internal/storage"
)

type fakeEngine struct {
	startErr error
	started  []string
	stopped  []string
}

func (f *fakeEngine) Start(ctx context.Context, ticketID, playerID string, skill float64) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, ticketID)
	return nil
}

func (f *fakeEngine) Stop(ctx context.Context, ticketID string) error {
	f.stopped = append(f.stopped, ticketID)
	return nil
}

type testAPI struct {
	server *httptest.Server
	store  *storage.Store
	auth   *auth.Service
	engine *fakeEngine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := &fakeEngine{}
	gateway := matchmaking.NewGateway(engine, store)
	authService := auth.NewService("test-secret", time.Hour)
	recorder := results.New(store, []int64{10, 100})
	hub := NewHub(func(connectionID string) {
		gateway.Cancel(context.Background(), connectionID)
	})

	router := NewRouter(store, authService, gateway, recorder, hub)
	server := httptest.NewServer(router.Handler())
	t.Cleanup(server.Close)

	return &testAPI{server: server, store: store, auth: authService, engine: engine}
}

func (a *testAPI) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(a.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRegisterLoginProfile(t *testing.T) {
	a := newTestAPI(t)

	resp := a.post(t, "/api/auth/register", RegisterRequest{Username: "alice", Password: "hunter2hunter2"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Duplicate username
	resp = a.post(t, "/api/auth/register", RegisterRequest{Username: "alice", Password: "hunter2hunter2"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = a.post(t, "/api/auth/login", LoginRequest{Username: "alice", Password: "hunter2hunter2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeBody[LoginResponse](t, resp)
	require.NotEmpty(t, login.Token)

	req, err := http.NewRequest(http.MethodGet, a.server.URL+"/api/profile", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	profileResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, profileResp.StatusCode)
	profile := decodeBody[domain.PlayerProfile](t, profileResp)
	assert.Equal(t, "alice", profile.PlayerID)
	assert.Equal(t, int64(0), profile.TotalScore)
	assert.Equal(t, []int64{}, profile.Achievements)
}

func TestRegisterValidation(t *testing.T) {
	a := newTestAPI(t)

	resp := a.post(t, "/api/auth/register", RegisterRequest{Username: "bad name!", Password: "hunter2hunter2"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = a.post(t, "/api/auth/register", RegisterRequest{Username: "alice", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	a := newTestAPI(t)

	resp := a.post(t, "/api/auth/register", RegisterRequest{Username: "alice", Password: "hunter2hunter2"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = a.post(t, "/api/auth/login", LoginRequest{Username: "alice", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestProfileRequiresAuth(t *testing.T) {
	a := newTestAPI(t)

	resp, err := http.Get(a.server.URL + "/api/profile")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestPostMatchResult(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	require.NoError(t, a.store.CreatePlayer(ctx, &domain.Player{PlayerID: "alice", PasswordHash: "h"}))
	require.NoError(t, a.store.CreateMatch(ctx, &domain.MatchRecord{
		TaskID:  "t1",
		MatchID: "m1",
		Status:  domain.MatchStatusRunning,
		Players: []domain.MatchPlayer{{ConnectionID: "c1", TicketID: "6331", PlayerID: "alice"}},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	body := domain.MatchResult{Players: []domain.PlayerResult{{PlayerID: "alice", ScoreDelta: 42}}}

	resp := a.post(t, "/api/matches/t1/result", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[map[string]bool](t, resp)["applied"])

	// Retried submission is accepted but changes nothing
	resp = a.post(t, "/api/matches/t1/result", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeBody[map[string]bool](t, resp)["applied"])

	player, err := a.store.GetPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(42), player.TotalScore)
	assert.Equal(t, int64(1), player.MatchCount)
}

func TestPostMatchResultUnknownMatch(t *testing.T) {
	a := newTestAPI(t)

	resp := a.post(t, "/api/matches/nope/result", domain.MatchResult{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func dialPlay(t *testing.T, a *testAPI, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/ws/play?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func registerAndLogin(t *testing.T, a *testAPI) string {
	t.Helper()
	resp := a.post(t, "/api/auth/register", RegisterRequest{Username: "alice", Password: "hunter2hunter2"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	token, err := a.auth.GenerateToken("alice")
	require.NoError(t, err)
	return token
}

func readPayload(t *testing.T, conn *websocket.Conn) domain.StatusPayload {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var p domain.StatusPayload
	require.NoError(t, json.Unmarshal(data, &p))
	return p
}

func TestPlaySubmitsTicket(t *testing.T) {
	a := newTestAPI(t)
	token := registerAndLogin(t, a)

	conn := dialPlay(t, a, token)
	assert.Equal(t, domain.StatusQueued, readPayload(t, conn).Status)
	assert.Len(t, a.engine.started, 1)
}

func TestPlayRejectsMissingToken(t *testing.T) {
	a := newTestAPI(t)

	url := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/ws/play"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPlayEngineFailureClosesConnection(t *testing.T) {
	a := newTestAPI(t)
	token := registerAndLogin(t, a)
	a.engine.startErr = domain.ErrEngineUnavailable

	conn := dialPlay(t, a, token)
	payload := readPayload(t, conn)
	assert.Equal(t, domain.StatusMatchFailed, payload.Status)

	// Server closes the channel after the failure payload
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestDisconnectCancelsTicket(t *testing.T) {
	a := newTestAPI(t)
	token := registerAndLogin(t, a)

	conn := dialPlay(t, a, token)
	assert.Equal(t, domain.StatusQueued, readPayload(t, conn).Status)
	conn.Close()

	assert.Eventually(t, func() bool {
		return len(a.engine.stopped) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t)

	resp, err := http.Get(a.server.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
