package httpserver

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waddu20-ops/SmartDo/internal/assistant"
	"github.com/waddu20-ops/SmartDo/internal/audio"
	"github.com/waddu20-ops/SmartDo/internal/live"
	"github.com/waddu20-ops/SmartDo/internal/store"
)

// scriptedChannel stands in for the live service during bridge tests.
type scriptedChannel struct {
	mu        sync.Mutex
	events    chan live.Event
	frames    []string
	responses []string
	connected bool
	closeOnce sync.Once
}

func newScriptedChannel() *scriptedChannel {
	return &scriptedChannel{events: make(chan live.Event, 16)}
}

func (f *scriptedChannel) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *scriptedChannel) Events() <-chan live.Event { return f.events }

func (f *scriptedChannel) SendAudioFrame(encoded string) error {
	f.mu.Lock()
	f.frames = append(f.frames, encoded)
	f.mu.Unlock()
	return nil
}

func (f *scriptedChannel) SendToolResponse(id, name, result string) error {
	f.mu.Lock()
	f.responses = append(f.responses, id)
	f.mu.Unlock()
	return nil
}

func (f *scriptedChannel) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *scriptedChannel) isConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func dialVoice(t *testing.T, newCh func() assistant.Channel) (*websocket.Conn, *store.Store) {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	e := New(Deps{
		Store:      st,
		NewChannel: newCh,
		Logger:     zerolog.Nop(),
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, st
}

// readPushes collects pushes until want of the given type arrives or the
// deadline passes.
func readPush(t *testing.T, conn *websocket.Conn, wantType string) serverPush {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg serverPush
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read push: %v", err)
		}
		if msg.Type == wantType {
			return msg
		}
	}
	t.Fatalf("no %q push before deadline", wantType)
	return serverPush{}
}

func TestVoiceBridge_TaskFlow(t *testing.T) {
	ch := newScriptedChannel()
	conn, st := dialVoice(t, func() assistant.Channel { return ch })

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "start"}))

	st1 := readPush(t, conn, "state")
	assert.Equal(t, "connecting", st1.State)

	require.Eventually(t, ch.isConnected, time.Second, 10*time.Millisecond)
	ch.events <- live.Event{Type: live.EventReady}

	st2 := readPush(t, conn, "state")
	assert.Equal(t, "open", st2.State)

	args := json.RawMessage(`{"title":"buy milk","day":"Friday","time":"2 PM","importance":"major"}`)
	ch.events <- live.Event{Type: live.EventToolCall, Calls: []live.FunctionCall{
		{ID: "fc-1", Name: assistant.ToolName, Args: args},
	}}

	taskPush := readPush(t, conn, "task")
	require.NotNil(t, taskPush.Task)
	assert.Equal(t, "buy milk", taskPush.Task.Title)
	assert.Equal(t, store.PriorityHigh, taskPush.Task.Priority)
	require.NotNil(t, taskPush.Task.DueDate)
	assert.Equal(t, 14, taskPush.Task.DueDate.Hour())

	stored, err := st.List()
	require.NoError(t, err)
	require.Len(t, stored, 1)

	ch.mu.Lock()
	acked := append([]string(nil), ch.responses...)
	ch.mu.Unlock()
	assert.Equal(t, []string{"fc-1"}, acked)
}

func TestVoiceBridge_AudioAndFrames(t *testing.T) {
	ch := newScriptedChannel()
	conn, _ := dialVoice(t, func() assistant.Channel { return ch })

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "start"}))
	require.Eventually(t, ch.isConnected, time.Second, 10*time.Millisecond)
	ch.events <- live.Event{Type: live.EventReady}
	readPush(t, conn, "state") // connecting
	st2 := readPush(t, conn, "state")
	require.Equal(t, "open", st2.State)

	// a microphone frame from the browser reaches the channel
	frame := audio.Encode(audio.FloatsToPCM16([]float32{0.1, -0.1, 0.2, -0.2}))
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "audio", Data: frame}))
	require.Eventually(t, func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return len(ch.frames) == 1
	}, time.Second, 10*time.Millisecond)

	// synthesized audio from the channel reaches the browser
	chunk := audio.Encode(audio.FloatsToPCM16(make([]float32, 2400)))
	ch.events <- live.Event{Type: live.EventAudio, Audio: chunk}
	push := readPush(t, conn, "audio")
	assert.Equal(t, chunk, push.Data)

	// interruption propagates while audio is queued
	ch.events <- live.Event{Type: live.EventAudio, Audio: chunk}
	ch.events <- live.Event{Type: live.EventAudio, Audio: chunk}
	ch.events <- live.Event{Type: live.EventInterrupted}
	readPush(t, conn, "interrupted")
}

func TestVoiceBridge_StopReturnsToIdle(t *testing.T) {
	ch := newScriptedChannel()
	conn, _ := dialVoice(t, func() assistant.Channel { return ch })

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "start"}))
	require.Eventually(t, ch.isConnected, time.Second, 10*time.Millisecond)
	ch.events <- live.Event{Type: live.EventReady}
	readPush(t, conn, "state")
	readPush(t, conn, "state")

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "stop"}))
	for {
		push := readPush(t, conn, "state")
		if push.State == "idle" {
			break
		}
	}
}

func TestVoiceBridge_RestartOnSameSocket(t *testing.T) {
	var (
		mu       sync.Mutex
		channels []*scriptedChannel
	)
	factory := func() assistant.Channel {
		ch := newScriptedChannel()
		mu.Lock()
		channels = append(channels, ch)
		mu.Unlock()
		return ch
	}
	channel := func(i int) *scriptedChannel {
		mu.Lock()
		defer mu.Unlock()
		if len(channels) <= i {
			return nil
		}
		return channels[i]
	}
	waitOpen := func(conn *websocket.Conn) {
		for {
			push := readPush(t, conn, "state")
			if push.State == "open" {
				return
			}
		}
	}
	waitIdle := func(conn *websocket.Conn) {
		for {
			push := readPush(t, conn, "state")
			if push.State == "idle" {
				return
			}
		}
	}

	conn, _ := dialVoice(t, factory)

	// first session
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "start"}))
	require.Eventually(t, func() bool { ch := channel(0); return ch != nil && ch.isConnected() }, time.Second, 10*time.Millisecond)
	channel(0).events <- live.Event{Type: live.EventReady}
	waitOpen(conn)

	// starting again while open is rejected, not a second session
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "start"}))
	errPush := readPush(t, conn, "error")
	assert.Contains(t, errPush.Message, "already active")

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "stop"}))
	waitIdle(conn)

	// second session on the same socket gets fresh collaborators and a
	// working microphone uplink
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "start"}))
	require.Eventually(t, func() bool { ch := channel(1); return ch != nil && ch.isConnected() }, time.Second, 10*time.Millisecond)
	channel(1).events <- live.Event{Type: live.EventReady}
	waitOpen(conn)

	frame := audio.Encode(audio.FloatsToPCM16(make([]float32, 160)))
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "audio", Data: frame}))
	require.Eventually(t, func() bool {
		ch := channel(1)
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return len(ch.frames) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSocketCapture_SingleUse(t *testing.T) {
	cap := newSocketCapture()
	_, err := cap.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, cap.Close())

	_, err = cap.Start(context.Background())
	require.Error(t, err, "a released capture handle must not hand out its closed channel")
	require.NoError(t, cap.Close())
}
