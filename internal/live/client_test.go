package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// fakeService runs a scripted remote endpoint: it acks setup, plays the given
// server frames, then waits for client messages on the inbound channel.
func fakeService(t *testing.T, frames []string, inbound chan<- map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// first client message must be setup
		var setup map[string]any
		require.NoError(t, conn.ReadJSON(&setup))
		require.Contains(t, setup, "setup")

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`)))
		for _, f := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
		}
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				close(inbound)
				return
			}
			inbound <- msg
		}
	}))
}

func newTestClient(srvURL string) *Client {
	return NewClient(Config{
		APIKey:   "test-key",
		Model:    "test-model",
		Voice:    "Kore",
		Endpoint: "ws" + strings.TrimPrefix(srvURL, "http"),
		Tools: []FunctionDeclaration{{
			Name:       "add_calendar_task",
			Parameters: &Schema{Type: "OBJECT", Required: []string{"title"}},
		}},
	}, zerolog.Nop())
}

func collect(t *testing.T, events <-chan Event, n int) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed after %d events, wanted %d", len(out), n)
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events, wanted %d", len(out), n)
		}
	}
	return out
}

func TestClient_EventsDecodedInArrivalOrder(t *testing.T) {
	frames := []string{
		`{"toolCall":{"functionCalls":[{"id":"call-1","name":"add_calendar_task","args":{"title":"Send report"}}]}}`,
		`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAAA"}}]}}}`,
		`{"serverContent":{"interrupted":true}}`,
	}
	inbound := make(chan map[string]any, 16)
	srv := fakeService(t, frames, inbound)
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	evs := collect(t, c.Events(), 4)
	assert.Equal(t, EventReady, evs[0].Type)
	require.Equal(t, EventToolCall, evs[1].Type)
	require.Len(t, evs[1].Calls, 1)
	assert.Equal(t, "call-1", evs[1].Calls[0].ID)
	var args struct {
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(evs[1].Calls[0].Args, &args))
	assert.Equal(t, "Send report", args.Title)
	assert.Equal(t, EventAudio, evs[2].Type)
	assert.Equal(t, "AAAA", evs[2].Audio)
	assert.Equal(t, EventInterrupted, evs[3].Type)
}

func TestClient_SendAudioFrameAndToolResponse(t *testing.T) {
	inbound := make(chan map[string]any, 16)
	srv := fakeService(t, nil, inbound)
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.NoError(t, c.SendAudioFrame("UENN"))
	require.NoError(t, c.SendToolResponse("call-9", "add_calendar_task", "done"))

	var sawAudio, sawResponse bool
	timeout := time.After(2 * time.Second)
	for !(sawAudio && sawResponse) {
		select {
		case msg := <-inbound:
			if _, ok := msg["realtimeInput"]; ok {
				sawAudio = true
			}
			if _, ok := msg["toolResponse"]; ok {
				sawResponse = true
			}
		case <-timeout:
			t.Fatalf("missing outbound messages: audio=%v response=%v", sawAudio, sawResponse)
		}
	}
}

func TestClient_RemoteCloseEmitsClosedEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		var setup map[string]any
		_ = conn.ReadJSON(&setup)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))
		_ = conn.Close()
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	evs := collect(t, c.Events(), 2)
	assert.Equal(t, EventReady, evs[0].Type)
	assert.Equal(t, EventClosed, evs[1].Type)
	assert.Error(t, evs[1].Err)
}

func TestClient_ConnectRequiresKey(t *testing.T) {
	c := NewClient(Config{}, zerolog.Nop())
	require.Error(t, c.Connect(context.Background()))
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	inbound := make(chan map[string]any, 1)
	srv := fakeService(t, nil, inbound)
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestClient_SingleUseAcrossConnectCloseCycles(t *testing.T) {
	inbound := make(chan map[string]any, 1)
	srv := fakeService(t, nil, inbound)
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())

	// a spent client must refuse to dial again instead of reusing its
	// closed stop/event channels
	require.Error(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
