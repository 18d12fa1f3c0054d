package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"campus-chat/auth"
	"campus-chat/domain"
	"campus-chat/domain/event"
	"campus-chat/moderation"
	"campus-chat/repositories"
	"campus-chat/runtime"
	"campus-chat/runtime/workers"
	"campus-chat/services"
)

type gatewayEnv struct {
	server *httptest.Server
	tokens *auth.TokenService
}

func newGatewayEnv(t *testing.T, usernames ...string) *gatewayEnv {
	t.Helper()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	moderator, err := moderation.NewModerator(nil, '*')
	req.NoError(err)

	events := make(chan event.DomainEvent, 64)
	locks := services.NewKeyedMutex()
	groups := repositories.NewGroupRepository(db, log)
	messages := repositories.NewMessageRepository(db, log)
	users := repositories.NewUserDirectory(db)
	for _, username := range usernames {
		req.NoError(users.Put(repositories.DirectoryUser{Username: username}))
	}

	membership := services.NewMembershipService(groups, users, locks, events, log)
	notifications := services.NewNotificationService(
		repositories.NewNotificationRepository(db, log), log)
	chat := services.NewChatService(groups, messages, users, notifications, moderator, locks, events, log)

	registry := runtime.NewRegistry(log)
	dispatcher := workers.NewDispatcher(log, registry, events, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = dispatcher.Run(ctx) }()

	tokens := auth.NewTokenService("test-secret", time.Hour)
	handler := NewHandler(membership, chat, notifications, users, registry, nil, 16, 3, log)
	server := httptest.NewServer(auth.Middleware(tokens, log)(handler.Router()))
	t.Cleanup(server.Close)

	return &gatewayEnv{server: server, tokens: tokens}
}

func (e *gatewayEnv) do(t *testing.T, as, method, path string, body any) *http.Response {
	t.Helper()
	req := require.New(t)
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		req.NoError(err)
		reader = bytes.NewReader(data)
	}
	r, err := http.NewRequest(method, e.server.URL+path, reader)
	req.NoError(err)
	token, err := e.tokens.Generate(as)
	req.NoError(err)
	r.Header.Set("Authorization", "Bearer "+token)
	resp, err := e.server.Client().Do(r)
	req.NoError(err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func Test_Group_Rest_Roundtrip(t *testing.T) {
	req := require.New(t)
	env := newGatewayEnv(t, "alice", "bob")

	resp := env.do(t, "alice", http.MethodPost, "/groups",
		map[string]string{"name": "Lab", "description": "robotics"})
	req.Equal(http.StatusCreated, resp.StatusCode)
	group := decodeBody[domain.Group](t, resp)
	req.Equal("alice", group.Admin)

	resp = env.do(t, "alice", http.MethodPost, "/groups/"+group.ID.String()+"/members",
		map[string]string{"username": "bob"})
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = env.do(t, "bob", http.MethodPost, "/groups/"+group.ID.String()+"/messages",
		map[string]string{"content": "hello @alice"})
	req.Equal(http.StatusCreated, resp.StatusCode)

	resp = env.do(t, "alice", http.MethodGet, "/groups/"+group.ID.String()+"/messages", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	messages := decodeBody[[]domain.GroupMessage](t, resp)
	req.Len(messages, 1)
	req.Equal("hello @alice", messages[0].Content)

	// Mention fan-out is asynchronous; poll for the notification.
	token, err := env.tokens.Generate("alice")
	req.NoError(err)
	req.Eventually(func() bool {
		r, err := http.NewRequest(http.MethodGet, env.server.URL+"/notifications", nil)
		if err != nil {
			return false
		}
		r.Header.Set("Authorization", "Bearer "+token)
		resp, err := env.server.Client().Do(r)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var notifications []domain.Notification
		if err := json.NewDecoder(resp.Body).Decode(&notifications); err != nil {
			return false
		}
		return len(notifications) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func Test_Rest_Error_Statuses(t *testing.T) {
	req := require.New(t)
	env := newGatewayEnv(t, "alice", "bob", "mallory")

	resp := env.do(t, "alice", http.MethodPost, "/groups", map[string]string{"name": ""})
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "alice", http.MethodGet, "/groups/"+uuid.NewString(), nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, "alice", http.MethodPost, "/groups", map[string]string{"name": "Lab"})
	req.Equal(http.StatusCreated, resp.StatusCode)
	group := decodeBody[domain.Group](t, resp)

	resp = env.do(t, "mallory", http.MethodDelete, "/groups/"+group.ID.String(), nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, "alice", http.MethodPost, "/groups/"+group.ID.String()+"/members",
		map[string]string{"username": "bob"})
	req.Equal(http.StatusOK, resp.StatusCode)
	resp = env.do(t, "alice", http.MethodPost, "/groups/"+group.ID.String()+"/members",
		map[string]string{"username": "bob"})
	req.Equal(http.StatusConflict, resp.StatusCode)
}

func Test_Requests_Without_Token_Rejected(t *testing.T) {
	req := require.New(t)
	env := newGatewayEnv(t)

	resp, err := http.Get(env.server.URL + "/groups")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

// A retry budget of zero would mean zero store attempts; the handler
// clamps it so every websocket send hits storage at least once.
func Test_Storage_Retries_Clamped_To_One_Attempt(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(nil, nil, nil, nil, nil, nil, 16, 0, log)
	require.Equal(t, 1, handler.storageRetries)
}

func Test_Websocket_Message_Delivery(t *testing.T) {
	req := require.New(t)
	env := newGatewayEnv(t, "alice", "bob")

	resp := env.do(t, "alice", http.MethodPost, "/groups", map[string]string{"name": "Lab"})
	group := decodeBody[domain.Group](t, resp)
	resp = env.do(t, "alice", http.MethodPost, "/groups/"+group.ID.String()+"/members",
		map[string]string{"username": "bob"})
	req.Equal(http.StatusOK, resp.StatusCode)

	conn := env.dial(t, "bob")
	defer conn.Close()

	// Subscribe to the group room.
	req.NoError(conn.WriteJSON(map[string]any{"action": "join", "group_id": group.ID}))
	var ack outboundFrame
	req.NoError(conn.ReadJSON(&ack))
	req.Equal("joined", ack.Type)

	// A message sent over REST must arrive on the socket.
	resp = env.do(t, "alice", http.MethodPost, "/groups/"+group.ID.String()+"/messages",
		map[string]string{"content": "live update"})
	req.Equal(http.StatusCreated, resp.StatusCode)

	var frame outboundFrame
	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	req.NoError(conn.ReadJSON(&frame))
	req.Equal("group_message", frame.Type)
}

func Test_Websocket_Join_Requires_Membership(t *testing.T) {
	req := require.New(t)
	env := newGatewayEnv(t, "alice", "mallory")

	resp := env.do(t, "alice", http.MethodPost, "/groups", map[string]string{"name": "Lab"})
	group := decodeBody[domain.Group](t, resp)

	conn := env.dial(t, "mallory")
	defer conn.Close()

	req.NoError(conn.WriteJSON(map[string]any{"action": "join", "group_id": group.ID}))
	var frame outboundFrame
	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	req.NoError(conn.ReadJSON(&frame))
	req.Equal("error", frame.Type)
}

func Test_Websocket_Mention_Reaches_Private_Stream(t *testing.T) {
	req := require.New(t)
	env := newGatewayEnv(t, "alice", "bob")

	resp := env.do(t, "alice", http.MethodPost, "/groups", map[string]string{"name": "Lab"})
	group := decodeBody[domain.Group](t, resp)
	resp = env.do(t, "alice", http.MethodPost, "/groups/"+group.ID.String()+"/members",
		map[string]string{"username": "bob"})
	req.Equal(http.StatusOK, resp.StatusCode)

	// Bob is connected but has not joined the group room; the mention
	// still reaches him through his private stream.
	conn := env.dial(t, "bob")
	defer conn.Close()

	resp = env.do(t, "alice", http.MethodPost, "/groups/"+group.ID.String()+"/messages",
		map[string]string{"content": "ping @bob"})
	req.Equal(http.StatusCreated, resp.StatusCode)

	var frame outboundFrame
	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	req.NoError(conn.ReadJSON(&frame))
	req.Equal("notification", frame.Type)
}

func (e *gatewayEnv) dial(t *testing.T, as string) *websocket.Conn {
	t.Helper()
	req := require.New(t)
	token, err := e.tokens.Generate(as)
	req.NoError(err)
	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	req.NoError(err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn
}
