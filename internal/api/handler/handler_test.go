package handler_test

import (
	"blindchat/backend/internal/api/handler"
	"blindchat/backend/internal/auth"
	"blindchat/backend/internal/chathub"
	"blindchat/backend/internal/connection"
	"blindchat/backend/internal/localization"
	"blindchat/backend/internal/media"
	"blindchat/backend/internal/models"
	"blindchat/backend/internal/pubsub"
	"blindchat/backend/internal/storage"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type api struct {
	router http.Handler
	store  *storage.Service
	auth   *auth.Service
	conns  *connection.Service
}

func newAPI(t *testing.T, uploadURL string) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, storage.AutoMigrate(db))

	store := storage.NewStorageService(db)
	bus := pubsub.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })

	conns := connection.NewService(store, bus)
	svc := chathub.NewServices(store, bus, conns)
	loc, err := localization.Default()
	require.NoError(t, err)
	svc.Notices = loc.Notices("en")

	hub := chathub.NewManagerService(svc)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	authSvc := auth.NewService("test-secret", time.Hour, auth.NewMemoryRevoker())
	h := handler.NewHandler(hub, authSvc, conns, media.NewUploader(uploadURL, "preset"), loc, "en")
	return &api{router: handler.NewRouter(h), store: store, auth: authSvc, conns: conns}
}

func (a *api) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type registered struct {
	Token string             `json:"token"`
	User  models.UserSummary `json:"user"`
}

func (a *api) register(t *testing.T, name string, interests ...string) registered {
	t.Helper()
	w := a.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"name": name, "email": name + "@example.com", "password": name + "-secret", "interests": interests,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out registered
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRegister(t *testing.T) {
	a := newAPI(t, "")
	ann := a.register(t, "ann", "music", "chess")

	assert.NotEmpty(t, ann.Token)
	assert.Equal(t, "ann", ann.User.Name)
	assert.ElementsMatch(t, []string{"music", "chess"}, ann.User.Interests)

	w := a.do(t, http.MethodPost, "/auth/register", "", map[string]any{"name": "ann", "email": "ann@example.com", "password": "another"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/auth/register", "", map[string]any{"name": "x", "email": "nope", "password": "secret"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/auth/register", "", map[string]any{"name": "x", "email": "x@example.com", "password": "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutesRequireToken(t *testing.T) {
	a := newAPI(t, "")
	for _, target := range []string{"/candidates", "/requests", "/partners", "/sessions/open", "/blind/received"} {
		w := a.do(t, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)
	}
}

func TestLogout(t *testing.T) {
	a := newAPI(t, "")
	ann := a.register(t, "ann")

	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/partners", ann.Token, nil).Code)
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPost, "/auth/logout", ann.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/partners", ann.Token, nil).Code)
}

func TestLoginAfterLogout(t *testing.T) {
	a := newAPI(t, "")
	ann := a.register(t, "ann")
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPost, "/auth/logout", ann.Token, nil).Code)

	w := a.do(t, http.MethodPost, "/auth/register", "", map[string]any{"name": "ann", "email": "ann@example.com", "password": "ann-secret"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "ann@example.com", "password": "wrong-one"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = a.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "nobody@example.com", "password": "ann-secret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "ANN@example.com", "password": "ann-secret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out registered
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, ann.User.ID, out.User.ID)
	assert.NotEqual(t, ann.Token, out.Token)

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/partners", ann.Token, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/partners", out.Token, nil).Code)
}

func TestCandidates(t *testing.T) {
	a := newAPI(t, "")
	ann := a.register(t, "ann", "music")
	bob := a.register(t, "bob", "music")
	a.register(t, "cat", "chess")

	w := a.do(t, http.MethodGet, "/candidates", ann.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Users []models.UserSummary `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Users, 1)
	assert.Equal(t, bob.User.ID, out.Users[0].ID)

	w = a.do(t, http.MethodGet, "/candidates?exclude="+bob.User.ID, ann.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Empty(t, out.Users)
}

func TestRequestFlow(t *testing.T) {
	a := newAPI(t, "")
	ann := a.register(t, "ann")
	bob := a.register(t, "bob")

	w := a.do(t, http.MethodPost, "/requests", ann.Token, map[string]string{"to": bob.User.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result":"sent"}`, w.Body.String())

	w = a.do(t, http.MethodPost, "/requests", ann.Token, map[string]string{"to": bob.User.ID})
	assert.JSONEq(t, `{"result":"already_pending"}`, w.Body.String())

	w = a.do(t, http.MethodPost, "/requests", ann.Token, map[string]string{"to": ann.User.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/requests", bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reqs struct {
		Requests []models.ConnectionRequest `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reqs))
	require.Len(t, reqs.Requests, 1)
	assert.Equal(t, ann.User.ID, reqs.Requests[0].FromUserID)

	w = a.do(t, http.MethodPost, "/requests/"+ann.User.ID+"/accept", bob.Token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = a.do(t, http.MethodPost, "/requests/"+ann.User.ID+"/accept", bob.Token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodGet, "/partners", ann.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var partners struct {
		Partners []models.PartnerEdge `json:"partners"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &partners))
	require.Len(t, partners.Partners, 1)
	assert.Equal(t, bob.User.ID, partners.Partners[0].PartnerID)
}

func TestDeclineMissingRequest(t *testing.T) {
	a := newAPI(t, "")
	ann := a.register(t, "ann")

	w := a.do(t, http.MethodPost, "/requests/nobody/decline", ann.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Error models.Notice `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Error.Code)
	assert.Equal(t, "That is no longer available.", body.Error.Message)
}

func TestNoticeLanguage(t *testing.T) {
	a := newAPI(t, "")
	ann := a.register(t, "ann")

	req := httptest.NewRequest(http.MethodPost, "/requests/nobody/decline", nil)
	req.Header.Set("Authorization", "Bearer "+ann.Token)
	req.Header.Set("Accept-Language", "uk-UA,uk;q=0.9")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Це більше недоступно.")
}

func TestOpenSessions(t *testing.T) {
	a := newAPI(t, "")
	ann := a.register(t, "ann")
	bob := a.register(t, "bob")

	require.NoError(t, a.store.CreateSession(context.Background(), &models.Session{
		SessionID: "s-1", CreatorID: bob.User.ID, Status: models.SessionWaiting,
	}))

	w := a.do(t, http.MethodGet, "/sessions/open", ann.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":["s-1"]}`, w.Body.String())

	w = a.do(t, http.MethodGet, "/sessions/open", bob.Token, nil)
	assert.JSONEq(t, `{"sessions":[]}`, w.Body.String())

	w = a.do(t, http.MethodGet, "/sessions/open?limit=zero", ann.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceivedBlind(t *testing.T) {
	a := newAPI(t, "")
	ann := a.register(t, "ann")
	bob := a.register(t, "bob")
	cat := a.register(t, "cat")
	ctx := context.Background()
	at := time.Now().UTC().Add(-time.Minute)

	send := func(id, channel string, kind models.ChannelKind, from, to, text string, offset time.Duration) {
		require.NoError(t, a.store.InsertMessage(ctx, &models.Message{
			ID: id, ChannelID: channel, Kind: kind, SenderID: from, ReceiverID: to, Text: text, CreatedAt: at.Add(offset),
		}))
	}
	send("01", "s-bob", models.ChannelBlind, bob.User.ID, ann.User.ID, "hello", 0)
	send("02", "s-cat", models.ChannelBlind, cat.User.ID, ann.User.ID, "hey", time.Second)
	send("03", "s-bob", models.ChannelBlind, bob.User.ID, ann.User.ID, "still there?", 2*time.Second)
	send("04", "s-bob", models.ChannelBlind, ann.User.ID, bob.User.ID, "yes", 3*time.Second)
	send("05", models.DirectChannelID(ann.User.ID, cat.User.ID), models.ChannelDirect, cat.User.ID, ann.User.ID, "direct", 4*time.Second)

	w := a.do(t, http.MethodGet, "/blind/received", ann.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), bob.User.ID)
	assert.NotContains(t, w.Body.String(), cat.User.ID)

	var out struct {
		Threads []struct {
			ChatID string   `json:"chat_id"`
			Texts  []string `json:"texts"`
		} `json:"threads"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Threads, 2)
	assert.Equal(t, "s-bob", out.Threads[0].ChatID)
	assert.Equal(t, []string{"hello", "still there?"}, out.Threads[0].Texts)
	assert.Equal(t, "s-cat", out.Threads[1].ChatID)
	assert.Equal(t, []string{"hey"}, out.Threads[1].Texts)

	w = a.do(t, http.MethodGet, "/blind/received", cat.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"threads":[]}`, w.Body.String())
}

func TestUploadImage(t *testing.T) {
	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"secure_url": "https://cdn.example.com/a.png"})
	}))
	defer store.Close()

	a := newAPI(t, store.URL)
	ann := a.register(t, "ann")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "a.png")
	require.NoError(t, err)
	part.Write(append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ann.Token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"url":"https://cdn.example.com/a.png"}`, w.Body.String())
}

func TestWebSocket(t *testing.T) {
	a := newAPI(t, "")
	ann := a.register(t, "ann")

	srv := httptest.NewServer(a.router)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + ann.Token

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readUntil := func(frameType string) models.ServerFrame {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		for {
			var f models.ServerFrame
			require.NoError(t, conn.ReadJSON(&f))
			if f.Type == frameType {
				return f
			}
		}
	}

	state := readUntil(models.FrameSessionState)
	assert.Contains(t, string(state.Data), `"idle"`)

	require.NoError(t, conn.WriteJSON(models.ClientCommand{Type: models.FrameSessionRequest}))
	state = readUntil(models.FrameSessionState)
	assert.Contains(t, string(state.Data), `"searching"`)
	state = readUntil(models.FrameSessionState)
	assert.Contains(t, string(state.Data), `"waiting"`)

	require.Eventually(t, func() bool {
		u, err := a.store.GetUser(context.Background(), ann.User.ID)
		return err == nil && u.Online
	}, 2*time.Second, 10*time.Millisecond)
}
