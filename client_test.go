package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	coursechat "github.com/putto11262002/coursechat/app"
	"github.com/putto11262002/coursechat/core"
	"github.com/putto11262002/coursechat/pkg/chat"
	"github.com/putto11262002/coursechat/pkg/gateway"
	"github.com/putto11262002/coursechat/pkg/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestFormatBubble(t *testing.T) {
	tests := []struct {
		name   string
		bubble view.Bubble
		want   string
	}{
		{
			name:   "own",
			bubble: view.Bubble{ID: "m1", Content: "hi", Side: view.Own, TimeLabel: "2 minutes ago"},
			want:   "you (2 minutes ago): hi",
		},
		{
			name: "other with initials",
			bubble: view.Bubble{ID: "m2", Content: "hello", Side: view.Other, AuthorName: "Grace Hopper",
				Initials: "GH", TimeLabel: "less than a minute ago"},
			want: "[GH] Grace Hopper (less than a minute ago): hello",
		},
		{
			name: "other with avatar",
			bubble: view.Bubble{ID: "m3", Content: "hey", Side: view.Other, AuthorName: "Ada",
				AvatarURL: "https://example.com/ada.png", TimeLabel: "1 minute ago"},
			want: "Ada (1 minute ago): hey",
		},
		{
			name:   "author join missing",
			bubble: view.Bubble{ID: "m4", Content: "who", Side: view.Other, Initials: "?", TimeLabel: "1 day ago"},
			want:   "[?] unknown (1 day ago): who",
		},
		{
			name:   "pending",
			bubble: view.Bubble{ID: "temp-1", Content: "sending", Side: view.Own, TimeLabel: "less than a minute ago", Pending: true},
			want:   "you (less than a minute ago): sending [sending]",
		},
		{
			name: "failed",
			bubble: view.Bubble{ID: "temp-2", Content: "lost", Side: view.Own, TimeLabel: "1 minute ago",
				Failed: true, FailureReason: "Failed to send"},
			want: "you (1 minute ago): lost [Failed to send, /retry temp-2]",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, formatBubble(test.bubble))
		})
	}
}

func TestRenderer(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	r := newRenderer(&out, "ada")

	pending := chat.Entry{
		ChatMessage: core.ChatMessage{ID: "temp-1", Content: "hi", UserID: "ada", CreatedAt: now},
		Status:      chat.Pending,
	}
	r.render([]chat.Entry{pending}, now)
	r.render([]chat.Entry{pending}, now)

	failed := pending
	failed.Status = chat.Failed
	r.render([]chat.Entry{failed}, now)

	r.status(chat.Disconnected)

	assert.Equal(t, strings.Join([]string{
		"you (less than a minute ago): hi [sending]",
		"you (less than a minute ago): hi [Failed to send, /retry temp-1]",
		"-- " + chat.Disconnected.String(),
		"",
	}, "\n"), out.String())
}

func TestRunChat(t *testing.T) {
	config := &coursechat.Config{
		Port:           8080,
		Hostname:       "127.0.0.1",
		Mode:           coursechat.DevMode,
		AllowedOrigins: []string{"*"},
	}
	config.Auth.Secret = []byte("0123456789abcdef0123456789abcdef")
	config.Auth.TokenExp = time.Hour
	config.SQLite.File = coursechat.MemoryDB
	config.Feed.Driver = coursechat.MemoryFeed

	appCtx, stopApp := context.WithCancel(context.Background())
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := coursechat.New(appCtx, config, coursechat.WithLogger(discard))
	require.NoError(t, err)
	server := httptest.NewServer(app.Handler())
	defer func() {
		stopApp()
		server.Close()
		app.Close(context.Background())
	}()

	b, err := json.Marshal(core.User{Email: "ada@example.com", FullName: "Ada Lovelace", Password: "password"})
	require.NoError(t, err)
	res, err := http.Post(server.URL+"/api/users", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	gw, err := gateway.NewHTTPGateway(server.URL, gateway.WithLogger(discard))
	require.NoError(t, err)
	_, err = gw.SignIn(context.Background(), "ada@example.com", "password")
	require.NoError(t, err)
	room, err := gw.CreateRoom(context.Background(), core.RoomCreateInput{Name: "General"})
	require.NoError(t, err)

	flags := chatFlags{server: server.URL, email: "ada@example.com", password: "password"}
	out := &syncBuffer{}
	in := strings.NewReader(strings.Join([]string{
		"hello",
		"   ",
		"/retry temp-missing",
		"/new",
		"Random",
		"in random",
		"/new",
		"",
		"/quit",
	}, "\n") + "\n")
	require.NoError(t, runChat(context.Background(), flags, in, out))

	printed := out.String()
	assert.Contains(t, printed, "-- "+chat.Connected.String())
	assert.Contains(t, printed, "you (less than a minute ago): hello [sending]\n")
	assert.Contains(t, printed, "you (less than a minute ago): hello\n")
	assert.Contains(t, printed, `! no failed message "temp-missing"`)
	assert.Contains(t, printed, "-- new room, type a name (empty line cancels)\n")
	assert.Contains(t, printed, "-- joined Random\n")
	assert.Contains(t, printed, "-- back to chat\n")
	assert.NotContains(t, printed, "/new")

	history, err := gw.FetchHistory(context.Background(), room.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)

	rooms, err := gw.ListRooms(context.Background())
	require.NoError(t, err)
	var created *core.ChatRoom
	for i := range rooms {
		if rooms[i].Name == "Random" {
			created = &rooms[i]
		}
	}
	require.NotNil(t, created, "the create-room overlay persisted the room")
	history, err = gw.FetchHistory(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "in random", history[0].Content)

	flags.password = "wrong"
	err = runChat(context.Background(), flags, strings.NewReader(""), io.Discard)
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
}
