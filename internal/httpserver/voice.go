package httpserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/waddu20-ops/SmartDo/internal/assistant"
	"github.com/waddu20-ops/SmartDo/internal/audio"
	"github.com/waddu20-ops/SmartDo/internal/playback"
	"github.com/waddu20-ops/SmartDo/internal/store"
)

var voiceUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is what the browser sends over the voice socket.
type clientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// serverPush is what we send back: state changes, synthesized audio,
// interruption signals and persisted tasks.
type serverPush struct {
	Type    string      `json:"type"`
	State   string      `json:"state,omitempty"`
	Data    string      `json:"data,omitempty"`
	Task    *store.Task `json:"task,omitempty"`
	Message string      `json:"message,omitempty"`
}

// socketWriter serializes writes to one websocket connection.
type socketWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *socketWriter) push(msg serverPush) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = w.conn.WriteJSON(msg)
}

// socketCapture adapts browser-pushed microphone frames to the capture
// source contract. The browser is the device; Start succeeds as long as the
// socket is up. Like a real device handle it is single-use: once closed it
// cannot be restarted, the bridge builds a fresh one per session.
type socketCapture struct {
	mu     sync.Mutex
	frames chan []float32
	closed bool
}

func newSocketCapture() *socketCapture {
	return &socketCapture{frames: make(chan []float32, 64)}
}

func (c *socketCapture) Start(ctx context.Context) (<-chan []float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("capture source already released")
	}
	return c.frames, nil
}

// Push decodes one transport-encoded 16 kHz mono frame from the browser.
func (c *socketCapture) Push(encoded string) error {
	raw, err := audio.Decode(encoded)
	if err != nil {
		return err
	}
	buf, err := audio.DecodeFrame(raw, 16000, 1)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	select {
	case c.frames <- buf.Data:
	default:
		// browser is ahead of the uplink; drop rather than stall the socket
	}
	return nil
}

func (c *socketCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
	return nil
}

// socketSink forwards started playback buffers to the browser as
// transport-encoded PCM.
type socketSink struct {
	w *socketWriter
}

func (s *socketSink) Write(buf *audio.Buffer) {
	s.w.push(serverPush{Type: "audio", Data: audio.Encode(audio.FloatsToPCM16(buf.Data))})
}

// voice bridges one browser websocket to a live voice session.
func (h Handlers) voice(c echo.Context) error {
	if h.newChannel == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "voice assistant not configured")
	}
	conn, err := voiceUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	writer := &socketWriter{conn: conn}

	// The live channel and the capture handle are single-use, so each
	// "start" gets a fresh set of collaborators; a stopped session can then
	// be started again on the same socket.
	var (
		session *assistant.Session
		capture *socketCapture
	)
	defer func() {
		if session != nil {
			session.Stop()
		}
	}()

	ctx := c.Request().Context()
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn().Err(err).Msg("voice socket closed unexpectedly")
			}
			return nil
		}
		switch msg.Type {
		case "start":
			if session != nil && session.State() != assistant.StateIdle {
				writer.push(serverPush{Type: "error", Message: assistant.ErrSessionActive.Error()})
				continue
			}
			capture = newSocketCapture()
			sched := playback.New(&socketSink{w: writer}, h.log,
				playback.WithOnFlush(func() { writer.push(serverPush{Type: "interrupted"}) }),
			)
			session = assistant.NewSession(assistant.Config{
				Channel:  h.newChannel(),
				Capture:  capture,
				Playback: sched,
				OnTask:   h.persistVoiceTask(writer),
				OnState: func(st assistant.State) {
					writer.push(serverPush{Type: "state", State: st.String()})
				},
				Logger: h.log,
			})
			if err := session.Start(ctx); err != nil {
				h.log.Error().Err(err).Msg("voice session start failed")
				writer.push(serverPush{Type: "error", Message: err.Error()})
			}
		case "audio":
			if capture == nil {
				continue
			}
			if err := capture.Push(msg.Data); err != nil {
				h.log.Warn().Err(err).Msg("bad microphone frame")
			}
		case "stop":
			if session != nil {
				session.Stop()
			}
		default:
			h.log.Warn().Str("type", msg.Type).Msg("unknown voice message")
		}
	}
}

// persistVoiceTask stores each task the assistant detects and echoes it back
// over the socket.
func (h Handlers) persistVoiceTask(writer *socketWriter) assistant.TaskFunc {
	return func(title, dueDate, priority string) {
		task := store.NewTask(title)
		task.Priority = store.ParsePriority(priority)
		if due, err := time.Parse(time.RFC3339, dueDate); err == nil {
			task.DueDate = &due
			mins := 15
			task.ReminderMinutes = &mins
		}
		h.categorize(context.Background(), task)
		if err := h.store.Put(task); err != nil {
			h.log.Error().Err(err).Msg("persist voice task failed")
			writer.push(serverPush{Type: "error", Message: "could not save task"})
			return
		}
		h.log.Info().Str("task", task.ID).Str("title", task.Title).Msg("voice task captured")
		writer.push(serverPush{Type: "task", Task: task})
	}
}
