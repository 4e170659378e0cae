package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/minaorangina/easyplayer"
	"github.com/minaorangina/easyplayer/entity"
	utils "github.com/minaorangina/easyplayer/internal"
	"github.com/minaorangina/easyplayer/protocol"
	"github.com/minaorangina/easyplayer/tick"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

var testAttributes = map[string]int{"health": 100, "armor": 0, "speed": 250}

// newTestServer starts a GameServer whose dispatcher ticks every millisecond
// until the test ends
func newTestServer(t *testing.T, maxPlayers int) (*GameServer, *entity.InMemoryStore) {
	t.Helper()

	server, store := newIdleTestServer(t, maxPlayers)

	ctx, cancel := context.WithCancel(context.Background())
	go server.dispatcher.Run(ctx)
	t.Cleanup(cancel)

	return server, store
}

// newIdleTestServer builds a GameServer whose dispatcher is not ticking yet
func newIdleTestServer(t *testing.T, maxPlayers int) (*GameServer, *entity.InMemoryStore) {
	t.Helper()

	logger, _ := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	store := entity.NewInMemoryStore(entity.StoreOpts{
		MaxPlayers: maxPlayers,
		Attributes: testAttributes,
	})
	dispatcher := tick.NewDispatcher(tick.DispatcherOpts{
		Interval: time.Millisecond,
		Logger:   logger,
	})

	server := NewServer(ServerOpts{
		Store:       store,
		Dispatcher:  dispatcher,
		Mode:        easyplayer.ModeCS,
		DefaultTeam: 2,
		Logger:      logger,
	})
	t.Cleanup(func() { server.Close() })

	return server, store
}

func mustMakeJson(t *testing.T, input interface{}) []byte {
	t.Helper()

	data, err := json.Marshal(input)
	utils.AssertNoError(t, err)

	return data
}

func newJoinRequest(data []byte) *http.Request {
	request, _ := http.NewRequest(http.MethodPost, "/join", bytes.NewBuffer(data))
	return request
}

func newShiftRequest(data []byte) *http.Request {
	request, _ := http.NewRequest(http.MethodPost, "/shift", bytes.NewBuffer(data))
	return request
}

func newCancelRequest(delayID string) *http.Request {
	request, _ := http.NewRequest(http.MethodDelete, "/shift/"+delayID, nil)
	return request
}

func newGetPlayerRequest(userID string) *http.Request {
	request, _ := http.NewRequest(http.MethodGet, "/player/"+userID, nil)
	return request
}

func serve(server *GameServer, request *http.Request) *httptest.ResponseRecorder {
	response := httptest.NewRecorder()
	server.ServeHTTP(response, request)
	return response
}

func mustJoin(t *testing.T, server *GameServer, name string) JoinRes {
	t.Helper()

	response := serve(server, newJoinRequest(mustMakeJson(t, JoinReq{Name: name})))
	assertStatus(t, response.Code, http.StatusCreated)

	return decodeResponse[JoinRes](t, response.Body)
}

func mustDialWS(t *testing.T, httpServer *httptest.Server, userID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("could not open a ws connection on %s %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

// readUntil reads messages from conn until one matches cmd
func readUntil(t *testing.T, conn *websocket.Conn, cmd protocol.Cmd) protocol.OutboundMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg protocol.OutboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", cmd, err)
		}
		if msg.Command == cmd {
			return msg
		}
	}
}

// ASSERTIONS

func assertStatus(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("got status %d, want %d", got, want)
	}
}

func decodeResponse[T any](t *testing.T, body *bytes.Buffer) T {
	t.Helper()

	var got T
	bodyBytes, err := ioutil.ReadAll(body)
	utils.AssertNoError(t, err)

	if err := json.Unmarshal(bodyBytes, &got); err != nil {
		t.Fatalf("Could not unmarshal json: %s", err.Error())
	}
	return got
}
