package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/musicroom/internal/adapters/broadcast"
	"github.com/dkeye/musicroom/internal/adapters/storage"
	"github.com/dkeye/musicroom/internal/app"
	"github.com/dkeye/musicroom/internal/domain"
)

type frame struct {
	Type    string          `json:"type"`
	Room    string          `json:"room"`
	Error   string          `json:"error"`
	Payload json.RawMessage `json:"payload"`
}

type testEnv struct {
	rooms  *app.Coordinator
	server *httptest.Server
	roomID domain.RoomID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := broadcast.NewHub(nil)
	rooms := app.NewCoordinator(storage.NewMemory(), hub, app.ModeMemory)
	ctl := NewSignalWSController(rooms, hub, hub, Options{PingPeriod: time.Minute, RateLimit: 100})

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	res, err := rooms.CreateRoom(ctx, "room", "host")
	require.NoError(t, err)
	return &testEnv{rooms: rooms, server: srv, roomID: res.Snapshot.ID}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v map[string]any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

// waitFor reads frames until one of the given type arrives.
func waitFor(t *testing.T, ws *websocket.Conn, typ string) frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var f frame
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %q", typ)
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == typ {
			return f
		}
	}
}

func (e *testEnv) join(t *testing.T, ws *websocket.Conn, user string) domain.ParticipantView {
	t.Helper()
	send(t, ws, map[string]any{"type": "join_room", "roomId": e.roomID, "user": user})
	joined := waitFor(t, ws, "joined")
	var p domain.ParticipantView
	require.NoError(t, json.Unmarshal(joined.Payload, &p))
	state := waitFor(t, ws, "room_state")
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(state.Payload, &snap))
	assert.Contains(t, snap.Participants, p)
	return p
}

func TestSignal_JoinAndDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t)
	other := env.dial(t)

	p := env.join(t, alice, "alice")
	assert.Equal(t, "alice", p.Name)

	send(t, other, map[string]any{"type": "join_room", "roomId": env.roomID, "user": "ALICE"})
	f := waitFor(t, other, "error")
	assert.Equal(t, "username_taken", f.Error)

	send(t, other, map[string]any{"type": "join_room", "roomId": "missing", "user": "bob"})
	f = waitFor(t, other, "error")
	assert.Equal(t, "room_not_found", f.Error)
}

func TestSignal_MutationsAreBroadcast(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.dial(t), env.dial(t)
	env.join(t, alice, "alice")
	env.join(t, bob, "bob")

	send(t, alice, map[string]any{
		"type":   "add_song",
		"roomId": env.roomID,
		"song":   map[string]any{"title": "Song", "url": "https://example.com/song", "duration": 180},
	})

	ack := waitFor(t, alice, "ack")
	var a struct {
		Op      string `json:"op"`
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(ack.Payload, &a))
	assert.Equal(t, "add_song", a.Op)
	assert.Equal(t, "applied", a.Outcome)

	f := waitFor(t, bob, app.EventPlaylistUpdated)
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(f.Payload, &snap))
	require.Len(t, snap.Songs, 1)
	require.NotNil(t, snap.NowPlaying)
	assert.Equal(t, "Song", snap.NowPlaying.Title)
	require.NotNil(t, snap.NowPlaying.Duration)
	assert.Equal(t, 180, *snap.NowPlaying.Duration)

	send(t, bob, map[string]any{"type": "skip_song", "roomId": env.roomID})
	waitFor(t, alice, app.EventNowPlaying)

	send(t, bob, map[string]any{"type": "remove_song", "roomId": env.roomID, "songId": "unknown"})
	ack = waitFor(t, bob, "ack")
	require.NoError(t, json.Unmarshal(ack.Payload, &a))
	assert.Equal(t, "noop", a.Outcome)

	send(t, bob, map[string]any{"type": "set_now_playing", "roomId": env.roomID, "songId": "unknown"})
	assert.Equal(t, "song_not_found", waitFor(t, bob, "error").Error)
}

func TestSignal_ControlRelay(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.dial(t), env.dial(t)
	env.join(t, alice, "alice")
	env.join(t, bob, "bob")

	send(t, bob, map[string]any{"type": "seek", "roomId": env.roomID, "position": 42.5})
	f := waitFor(t, alice, "seek")
	assert.Equal(t, string(env.roomID), f.Room)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(f.Payload, &payload))
	assert.Equal(t, 42.5, payload["position"])
	assert.NotContains(t, payload, "roomId")

	send(t, bob, map[string]any{"type": "play"})
	assert.Equal(t, "invalid_payload", waitFor(t, bob, "error").Error)

	snap, err := env.rooms.Snapshot(context.Background(), env.roomID)
	require.NoError(t, err)
	assert.Empty(t, snap.Songs, "controls never touch room state")
}

func TestSignal_PingSyncAndUnknown(t *testing.T) {
	env := newTestEnv(t)
	ws := env.dial(t)

	send(t, ws, map[string]any{"type": "ping"})
	waitFor(t, ws, "pong")

	send(t, ws, map[string]any{"type": "sync_request", "roomId": env.roomID})
	f := waitFor(t, ws, "room_state")
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(f.Payload, &snap))
	assert.Equal(t, env.roomID, snap.ID)

	send(t, ws, map[string]any{"type": "dance"})
	assert.Equal(t, "unknown_type", waitFor(t, ws, "error").Error)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, "bad_payload", waitFor(t, ws, "error").Error)
}

func TestSignal_LeaveKeepsSocket(t *testing.T) {
	env := newTestEnv(t)
	ws := env.dial(t)
	env.join(t, ws, "alice")

	send(t, ws, map[string]any{"type": "leave_room", "roomId": env.roomID})
	waitFor(t, ws, "left")

	snap, err := env.rooms.Snapshot(context.Background(), env.roomID)
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 1)

	send(t, ws, map[string]any{"type": "ping"})
	waitFor(t, ws, "pong")
}

func TestSignal_DisconnectSweeps(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.dial(t), env.dial(t)
	env.join(t, alice, "alice")
	env.join(t, bob, "bob")

	require.NoError(t, alice.Close())

	f := waitFor(t, bob, app.EventParticipantsUpdated)
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(f.Payload, &snap))
	names := []string{}
	for _, p := range snap.Participants {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"host", "bob"}, names)
}

func TestRoomRateLimiter(t *testing.T) {
	rl := NewRoomRateLimiter(2, time.Hour)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	rl.Forget("a")
	assert.True(t, rl.Allow("a"))
}

func TestSignal_RejectedRejoinKeepsSubscription(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.dial(t), env.dial(t)
	env.join(t, alice, "alice")
	env.join(t, bob, "bob")

	send(t, alice, map[string]any{"type": "join_room", "roomId": env.roomID, "user": "bob"})
	assert.Equal(t, "username_taken", waitFor(t, alice, "error").Error)

	send(t, bob, map[string]any{
		"type":   "add_song",
		"roomId": env.roomID,
		"song":   map[string]any{"title": "Song", "url": "https://example.com/song"},
	})
	waitFor(t, bob, app.EventPlaylistUpdated)
	waitFor(t, alice, app.EventPlaylistUpdated)
}
