package handler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kainult/price-platform/internal/catalog"
	"github.com/kainult/price-platform/internal/llm"
	"github.com/kainult/price-platform/internal/model"
	"github.com/kainult/price-platform/internal/service"
	"github.com/kainult/price-platform/internal/session"
	"github.com/kainult/price-platform/pkg/logger"
)

const testSecret = "handler-test-secret"

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func newTestRouter(t *testing.T, gen session.Generator) http.Handler {
	t.Helper()
	log := logger.NewNop()

	seed, err := catalog.Seed()
	require.NoError(t, err)
	store := catalog.NewStore(seed)

	chat := service.NewChatService(service.ChatConfig{
		Session: session.Config{Generator: gen, Model: "offline"},
	}, nil, log)
	t.Cleanup(chat.Close)

	return NewRouter(RouterConfig{
		Health:            NewHealthHandler(nil, store),
		Products:          NewProductHandler(service.NewCatalogService(store, log), log),
		Sessions:          NewSessionHandler(chat, log),
		Stream:            NewStreamHandler(chat, time.Second, log),
		WS:                NewWSHandler(chat, []string{"*"}, log),
		JWTSecret:         testSecret,
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		SubmitRateLimit:   1000,
		AllowedOrigins:    []string{"*"},
		Logger:            log,
	})
}

func do(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	h := newTestRouter(t, llm.NewOfflineClient())

	rec := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestAPI_RequiresAuth(t *testing.T) {
	h := newTestRouter(t, llm.NewOfflineClient())

	rec := do(t, h, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProducts(t *testing.T) {
	h := newTestRouter(t, llm.NewOfflineClient())

	rec := do(t, h, http.MethodGet, "/api/v1/products?category=Visi", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[model.ListProductsResponse](t, rec)
	assert.Equal(t, 3, list.Total)

	rec = do(t, h, http.MethodGet, "/api/v1/products?q=bosch", "u1", nil)
	list = decode[model.ListProductsResponse](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "3", list.Products[0].ID)

	rec = do(t, h, http.MethodGet, "/api/v1/products/2", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "928", raw["lowest_price"])
	assert.Equal(t, "21", raw["savings"])

	rec = do(t, h, http.MethodGet, "/api/v1/products/999", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCategoriesAndDeals(t *testing.T) {
	h := newTestRouter(t, llm.NewOfflineClient())

	rec := do(t, h, http.MethodGet, "/api/v1/categories", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decode[model.ListCategoriesResponse](t, rec)
	assert.Equal(t, "Visi", cats.Categories[0])

	rec = do(t, h, http.MethodGet, "/api/v1/deals?limit=2", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deals := decode[model.ListDealsResponse](t, rec)
	require.Len(t, deals.Deals, 2)
	assert.Equal(t, "1", deals.Deals[0].ID)

	rec = do(t, h, http.MethodGet, "/api/v1/deals?limit=nope", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessions_Lifecycle(t *testing.T) {
	h := newTestRouter(t, llm.NewOfflineClient().WithPacing(1, 100*time.Millisecond))

	rec := do(t, h, http.MethodPost, "/api/v1/sessions", "u1", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decode[model.Session](t, rec)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, session.DefaultGreeting, sess.Messages[0].Content)
	assert.Len(t, sess.Suggestions, 4)

	base := "/api/v1/sessions/" + sess.ID

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, base, "u2", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/sessions/not-a-uuid", "u1", nil).Code)

	rec = do(t, h, http.MethodPost, base+"/messages", "u1", model.SendMessageRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/messages", "u1", model.SendMessageRequest{Content: "Kur pirkti statybos įrankius?"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	accepted := decode[model.Session](t, rec)
	assert.True(t, accepted.Busy)
	assert.Len(t, accepted.Messages, 3)

	rec = do(t, h, http.MethodPost, base+"/messages", "u1", model.SendMessageRequest{Content: "Dar vienas"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, base+"/cancel", "u1", nil).Code)

	rec = do(t, h, http.MethodGet, base, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[model.Session](t, rec)
	assert.False(t, got.Busy)
	assert.Len(t, got.Messages, 2)

	rec = do(t, h, http.MethodGet, "/api/v1/sessions", "u1", nil)
	assert.Equal(t, 1, decode[model.ListSessionsResponse](t, rec).Total)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, base, "u1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, base, "u1", nil).Code)
}

func TestSendMessage_InvalidBody(t *testing.T) {
	h := newTestRouter(t, llm.NewOfflineClient())

	sess := decode[model.Session](t, do(t, h, http.MethodPost, "/api/v1/sessions", "u1", nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sess.ID+"/messages", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token(t, "u1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.name != "":
			return ev
		}
	}
}

func TestStream_SSE(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, llm.NewOfflineClient().WithPacing(12, 0)))
	defer srv.Close()

	tok := token(t, "u1")
	sess := createSession(t, srv.URL, tok)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/sessions/"+sess.ID+"/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := bufio.NewReader(resp.Body)
	first := readSSE(t, events)
	require.Equal(t, "snapshot", first.name)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal([]byte(first.data), &snap))
	assert.Len(t, snap.Messages, 1)

	postMessage(t, srv.URL, tok, sess.ID, "Palygink skalbimo mašinų kainas")

	var last session.Update
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ev := readSSE(t, events)
		if ev.name != "update" {
			continue
		}
		require.NoError(t, json.Unmarshal([]byte(ev.data), &last))
		if last.Kind == session.KindComplete {
			break
		}
	}
	require.Equal(t, session.KindComplete, last.Kind)
	require.Len(t, last.Messages, 3)
	assert.Contains(t, last.Messages[2].Content, "Palygink skalbimo mašinų kainas")
	assert.False(t, last.Busy)
}

func TestStream_WebSocket(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, llm.NewOfflineClient().WithPacing(12, 0)))
	defer srv.Close()

	tok := token(t, "u1")
	sess := createSession(t, srv.URL, tok)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + sess.ID + "/ws?access_token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	type frame struct {
		Type model.EventType `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, model.EventTypeSnapshot, f.Type)

	require.NoError(t, conn.WriteJSON(model.ClientFrame{Type: model.ClientFrameSubmit, Content: " "}))
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, model.EventTypeError, f.Type)
	var ev model.ErrorEvent
	require.NoError(t, json.Unmarshal(f.Data, &ev))
	assert.Equal(t, "invalid_message", ev.Code)

	require.NoError(t, conn.WriteJSON(model.ClientFrame{Type: model.ClientFrameSubmit, Content: "Kokie geriausi televizoriai iki 500€?"}))

	var u session.Update
	for u.Kind != session.KindComplete {
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type != model.EventTypeUpdate {
			continue
		}
		require.NoError(t, json.Unmarshal(f.Data, &u))
	}
	require.Len(t, u.Messages, 3)
	assert.Contains(t, u.Messages[2].Content, "televizoriai")
}

func TestStream_UnknownSession(t *testing.T) {
	h := newTestRouter(t, llm.NewOfflineClient())
	rec := do(t, h, http.MethodGet, "/api/v1/sessions/0190b6d2-7c1e-7f00-8000-000000000001/stream", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func createSession(t *testing.T, baseURL, tok string) model.Session {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sess model.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	return sess
}

func postMessage(t *testing.T, baseURL, tok, sessionID, content string) {
	t.Helper()
	body, err := json.Marshal(model.SendMessageRequest{Content: content})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/sessions/"+sessionID+"/messages", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}
