// Package assistant owns the lifecycle of a live voice session: microphone
// frames out, tool-calls and synthesized audio in, detected tasks emitted to
// the host application.
package assistant

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/waddu20-ops/SmartDo/internal/audio"
	"github.com/waddu20-ops/SmartDo/internal/live"
	"github.com/waddu20-ops/SmartDo/internal/playback"
	"github.com/waddu20-ops/SmartDo/internal/schedule"
)

// State is the session lifecycle phase. Speaking is not a State; it is
// derived from playback activity while Open.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "idle"
	}
}

var (
	// ErrSessionActive rejects Start while a session is Connecting or Open.
	ErrSessionActive = errors.New("voice session already active")
	// ErrDeviceUnavailable wraps capture acquisition failures.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// Channel is the minimal interface to the remote streaming tool-calling
// service.
type Channel interface {
	Connect(ctx context.Context) error
	Events() <-chan live.Event
	SendAudioFrame(encoded string) error
	SendToolResponse(id, name, result string) error
	Close() error
}

// CaptureSource delivers 16 kHz mono float frames at a fixed cadence. Start
// acquires the device; Close releases it.
type CaptureSource interface {
	Start(ctx context.Context) (<-chan []float32, error)
	Close() error
}

// TaskFunc receives each detected task. dueDate is RFC 3339; priority is
// "high" or "medium".
type TaskFunc func(title, dueDate, priority string)

// Config wires a Session's collaborators.
type Config struct {
	Channel  Channel
	Capture  CaptureSource
	Playback *playback.Scheduler
	OnTask   TaskFunc
	// OnState is invoked after every state transition (optional).
	OnState func(State)
	Logger  zerolog.Logger
}

// Session is the explicit state machine behind one voice interaction.
type Session struct {
	channel Channel
	capture CaptureSource
	sched   *playback.Scheduler
	onTask  TaskFunc
	onState func(State)
	log     zerolog.Logger
	nowFn   func() time.Time

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// NewSession constructs an Idle session.
func NewSession(cfg Config) *Session {
	return &Session{
		channel: cfg.Channel,
		capture: cfg.Capture,
		sched:   cfg.Playback,
		onTask:  cfg.OnTask,
		onState: cfg.OnState,
		log:     cfg.Logger,
		nowFn:   time.Now,
	}
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsSpeaking reports whether remote audio is queued or playing.
func (s *Session) IsSpeaking() bool {
	return s.State() == StateOpen && s.sched != nil && s.sched.ActiveCount() > 0
}

// Start moves Idle → Connecting → (on remote ack) Open. Starting while a
// session is Connecting or Open has no effect beyond the ErrSessionActive
// return: no second channel is opened and state is unchanged. Acquisition or
// dial failure tears back down to Idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.state = StateConnecting
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	s.notify(StateConnecting)

	frames, err := s.capture.Start(ctx)
	if err != nil {
		s.abortStart()
		return errors.Join(ErrDeviceUnavailable, err)
	}

	if err := s.channel.Connect(ctx); err != nil {
		_ = s.capture.Close()
		s.abortStart()
		return err
	}

	go s.captureLoop(ctx, frames)
	go s.eventLoop(ctx)
	return nil
}

// abortStart rolls a failed Connecting transition back to Idle.
func (s *Session) abortStart() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = StateIdle
	s.mu.Unlock()
	s.notify(StateIdle)
}

// Stop is the user-initiated teardown. Idempotent from any state.
func (s *Session) Stop() {
	s.teardown(nil)
}

func (s *Session) teardown(cause error) {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateClosing {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	s.notify(StateClosing)

	if cancel != nil {
		cancel()
	}
	_ = s.channel.Close()
	if s.sched != nil {
		s.sched.FlushAll()
	}
	_ = s.capture.Close()

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	s.notify(StateIdle)

	if cause != nil {
		s.log.Error().Err(cause).Msg("voice session ended by remote")
	} else {
		s.log.Info().Msg("voice session closed")
	}
}

func (s *Session) notify(st State) {
	if s.onState != nil {
		s.onState(st)
	}
}

// captureLoop converts and forwards microphone frames in capture order.
// Frames arriving before the remote ack are discarded.
func (s *Session) captureLoop(ctx context.Context, frames <-chan []float32) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if s.State() != StateOpen {
				continue
			}
			encoded := audio.Encode(audio.FloatsToPCM16(f))
			if err := s.channel.SendAudioFrame(encoded); err != nil {
				s.log.Warn().Err(err).Msg("drop outbound frame")
			}
		}
	}
}

// eventLoop processes inbound events strictly in arrival order.
func (s *Session) eventLoop(ctx context.Context) {
	events := s.channel.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.teardown(nil)
				return
			}
			switch ev.Type {
			case live.EventReady:
				s.mu.Lock()
				opened := s.state == StateConnecting
				if opened {
					s.state = StateOpen
				}
				s.mu.Unlock()
				if opened {
					s.notify(StateOpen)
					s.log.Info().Msg("voice session open")
				}
			case live.EventToolCall:
				s.handleToolCalls(ev.Calls)
			case live.EventAudio:
				if !s.handleAudio(ev.Audio) {
					return
				}
			case live.EventInterrupted:
				if s.sched != nil {
					s.sched.FlushAll()
				}
				s.log.Debug().Msg("barge-in: playback flushed")
			case live.EventClosed:
				s.teardown(ev.Err)
				return
			}
		}
	}
}

func (s *Session) handleToolCalls(calls []live.FunctionCall) {
	for _, call := range calls {
		if call.Name != ToolName {
			s.log.Warn().Str("name", call.Name).Msg("ignoring unknown tool call")
			continue
		}
		intent, err := ParseIntent(call.Args)
		if err != nil {
			// drop the call: no task, no ack, no crash
			s.log.Warn().Err(err).Str("id", call.ID).Msg("dropping tool call")
			continue
		}
		res := schedule.Resolve(intent.Day, intent.Time, s.nowFn())
		if s.onTask != nil {
			s.onTask(intent.Title, res.Timestamp.Format(time.RFC3339), intent.Priority())
		}
		if err := s.channel.SendToolResponse(call.ID, call.Name, "Task successfully added to the list."); err != nil {
			s.log.Warn().Err(err).Str("id", call.ID).Msg("tool response not delivered")
		}
	}
}

// handleAudio decodes one inbound 24 kHz chunk and queues it for playback.
// Malformed transport text fails loudly: the session tears down rather than
// playing corrupted audio. Returns false when the event loop should exit.
func (s *Session) handleAudio(encoded string) bool {
	raw, err := audio.Decode(encoded)
	if err != nil {
		s.log.Error().Err(err).Msg("corrupt audio chunk")
		s.teardown(err)
		return false
	}
	buf, err := audio.DecodeFrame(raw, 24000, 1)
	if err != nil {
		s.log.Error().Err(err).Msg("corrupt audio chunk")
		s.teardown(err)
		return false
	}
	if s.sched != nil {
		s.sched.Schedule(buf)
	}
	return true
}
