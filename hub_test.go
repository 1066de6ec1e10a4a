package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// useHub installs a fresh running hub for the test.
func useHub(t *testing.T) *Hub {
	prev := hub
	hub = newHub()
	hub.start()
	t.Cleanup(func() {
		hub.stop()
		hub = prev
	})
	return hub
}

type wsEnvelope struct {
	Type    string   `json:"type"`
	State   GameView `json:"state"`
	Level   string   `json:"level"`
	Message string   `json:"message"`
}

func dialGame(t *testing.T, srv *httptest.Server, token, gameID string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?game=" + gameID
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", sessionCookieName+"="+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env wsEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func sendWS(t *testing.T, conn *websocket.Conn, msg WSMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// hubLobby seats two guests in a fresh lobby and returns their sessions.
func hubLobby(t *testing.T) (string, Session, Session) {
	host, err := createSession(db, "Host")
	require.NoError(t, err)
	guest, err := createSession(db, "Guest")
	require.NoError(t, err)
	created, err := createGame(host.UserID, host.Name)
	require.NoError(t, err)
	_, err = joinGame(created.RoomCode, guest.UserID, guest.Name)
	require.NoError(t, err)
	return created.GameID, host, guest
}

func TestWebSocketRejectsUnknownCallers(t *testing.T) {
	newTestEnv(t)
	useHub(t)
	srv := httptest.NewServer(newRouter())
	defer srv.Close()
	gameID, host, _ := hubLobby(t)

	_, resp, err := dialGame(t, srv, "", gameID)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dialGame(t, srv, host.Token, "missing")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketPushesState(t *testing.T) {
	newTestEnv(t)
	useHub(t)
	srv := httptest.NewServer(newRouter())
	defer srv.Close()
	gameID, host, guest := hubLobby(t)

	hostConn, _, err := dialGame(t, srv, host.Token, gameID)
	require.NoError(t, err)
	defer hostConn.Close()
	first := readEnvelope(t, hostConn)
	assert.Equal(t, "state", first.Type)
	assert.Equal(t, StatusLobby, first.State.Game.Status)
	require.NotNil(t, first.State.Me)
	assert.True(t, first.State.Me.IsHost)

	guestConn, _, err := dialGame(t, srv, guest.Token, gameID)
	require.NoError(t, err)
	defer guestConn.Close()
	readEnvelope(t, guestConn)

	sendWS(t, hostConn, WSMessage{Action: "chat", Content: "welcome"})
	for _, conn := range []*websocket.Conn{hostConn, guestConn} {
		update := readEnvelope(t, conn)
		require.Equal(t, "state", update.Type)
		chat := update.State.Chat
		require.NotEmpty(t, chat)
		assert.Equal(t, "welcome", chat[len(chat)-1].Content)
	}

	sendWS(t, guestConn, WSMessage{Action: "ready", Ready: true})
	update := readEnvelope(t, hostConn)
	for _, p := range update.State.Players {
		if p.Name == "Guest" {
			assert.True(t, p.IsReady)
		}
	}
	readEnvelope(t, guestConn)
}

func TestWebSocketErrorsGoToSender(t *testing.T) {
	newTestEnv(t)
	useHub(t)
	srv := httptest.NewServer(newRouter())
	defer srv.Close()
	gameID, _, guest := hubLobby(t)

	conn, _, err := dialGame(t, srv, guest.Token, gameID)
	require.NoError(t, err)
	defer conn.Close()
	readEnvelope(t, conn)

	sendWS(t, conn, WSMessage{Action: "start"})
	toast := readEnvelope(t, conn)
	assert.Equal(t, "toast", toast.Type)
	assert.Equal(t, "error", toast.Level)
	assert.Equal(t, ErrNotHost.Error(), toast.Message)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	toast = readEnvelope(t, conn)
	assert.Equal(t, ErrBadRequest.Error(), toast.Message)

	sendWS(t, conn, WSMessage{Action: "act", Type: string(ActionKill), TargetID: "x"})
	toast = readEnvelope(t, conn)
	assert.Equal(t, ErrGameNotActive.Error(), toast.Message)
}

func TestWebSocketRateLimit(t *testing.T) {
	newTestEnv(t)
	h := useHub(t)
	h.wsRate, h.wsBurst = rate.Every(time.Hour), 1
	srv := httptest.NewServer(newRouter())
	defer srv.Close()
	gameID, host, _ := hubLobby(t)

	conn, _, err := dialGame(t, srv, host.Token, gameID)
	require.NoError(t, err)
	defer conn.Close()
	readEnvelope(t, conn)

	sendWS(t, conn, WSMessage{Action: "sync"})
	assert.Equal(t, "state", readEnvelope(t, conn).Type)

	sendWS(t, conn, WSMessage{Action: "sync"})
	toast := readEnvelope(t, conn)
	assert.Equal(t, "toast", toast.Type)
	assert.Equal(t, "warning", toast.Level)
	assert.Equal(t, "Slow down", toast.Message)
}
