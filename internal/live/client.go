// Package live implements the websocket client for the remote bidirectional
// streaming tool-calling service: audio frames out, tool-calls and synthesized
// audio in.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// EventType discriminates inbound channel events.
type EventType int

const (
	// EventReady signals the remote acknowledged our setup message.
	EventReady EventType = iota
	// EventToolCall carries one batch of function calls.
	EventToolCall
	// EventAudio carries one transport-encoded audio chunk.
	EventAudio
	// EventInterrupted signals queued playback should be discarded.
	EventInterrupted
	// EventClosed signals the channel ended; Err is nil on clean close.
	EventClosed
)

// Event is a single inbound message, delivered in arrival order.
type Event struct {
	Type  EventType
	Calls []FunctionCall
	Audio string
	Err   error
}

// Config describes the session to declare during setup.
type Config struct {
	APIKey            string
	Model             string
	Voice             string
	SystemInstruction string
	Tools             []FunctionDeclaration
	// Endpoint overrides the production websocket URL (tests).
	Endpoint string
}

// Client is a streaming connection to the live service. One Client serves one
// session; create a fresh one per Connect.
type Client struct {
	cfg Config
	log zerolog.Logger

	conn      *websocket.Conn
	events    chan Event
	out       chan any
	audioOut  chan string
	stopCh    chan struct{}
	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewClient builds an unconnected client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		cfg:      cfg,
		log:      logger,
		events:   make(chan Event, 64),
		out:      make(chan any, 16),
		audioOut: make(chan string, 256),
		stopCh:   make(chan struct{}),
	}
}

// Events returns the inbound event channel. It is closed when the reader
// exits, after a final EventClosed.
func (c *Client) Events() <-chan Event { return c.events }

// Connect dials the service and sends the setup message declaring the model,
// audio response modality, voice and tools. The remote ack arrives later as
// EventReady on the event channel.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	if c.closed {
		// stopCh and the event channel are spent at this point
		return fmt.Errorf("live: client already closed, dial a fresh one")
	}
	if c.cfg.APIKey == "" {
		return fmt.Errorf("live: api key is empty")
	}

	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	wsURL := endpoint + "?key=" + c.cfg.APIKey

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			c.log.Error().Int("status", resp.StatusCode).Msg("live channel dial rejected")
		}
		return fmt.Errorf("live: open channel: %w", err)
	}

	model := c.cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	setup := setupMessage{Setup: setupPayload{
		Model: model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: c.cfg.Voice}},
			},
		},
	}}
	if c.cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &content{Parts: []part{{Text: c.cfg.SystemInstruction}}}
	}
	if len(c.cfg.Tools) > 0 {
		setup.Setup.Tools = []tool{{FunctionDeclarations: c.cfg.Tools}}
	}
	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return fmt.Errorf("live: send setup: %w", err)
	}

	c.conn = conn
	c.connected = true
	go c.readLoop()
	go c.writeLoop()
	c.log.Info().Str("model", model).Msg("live channel open")
	return nil
}

// SendAudioFrame queues one transport-encoded 16 kHz PCM frame. Frames are
// dropped rather than blocking the capture path when the queue is full.
func (c *Client) SendAudioFrame(encoded string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return fmt.Errorf("live: not connected")
	}
	select {
	case c.audioOut <- encoded:
	default:
		c.log.Warn().Msg("outbound audio queue full, dropping frame")
	}
	return nil
}

// SendToolResponse acknowledges a function call, correlated by id.
func (c *Client) SendToolResponse(id, name, result string) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return fmt.Errorf("live: not connected")
	}
	c.mu.RUnlock()
	msg := toolResponseMessage{ToolResponse: toolResponse{
		FunctionResponses: []functionResponse{{ID: id, Name: name, Response: map[string]any{"result": result}}},
	}}
	select {
	case c.out <- msg:
		return nil
	case <-c.stopCh:
		return fmt.Errorf("live: channel closed")
	}
}

// Close tears the channel down. Safe to call from any state, any number of
// times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.connected {
		c.closed = true
		return nil
	}
	c.closed = true
	c.connected = false
	close(c.stopCh)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.log.Info().Msg("live channel closed")
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				// locally initiated close
				c.emit(Event{Type: EventClosed})
			default:
				c.emit(Event{Type: EventClosed, Err: err})
			}
			return
		}
		c.process(data)
	}
}

func (c *Client) process(data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn().Err(err).Msg("unparseable server message")
		return
	}
	switch {
	case msg.SetupComplete != nil:
		c.emit(Event{Type: EventReady})
	case msg.ToolCall != nil:
		c.emit(Event{Type: EventToolCall, Calls: msg.ToolCall.FunctionCalls})
	case msg.ServerContent != nil:
		if msg.ServerContent.Interrupted {
			c.emit(Event{Type: EventInterrupted})
		}
		if mt := msg.ServerContent.ModelTurn; mt != nil {
			for _, p := range mt.Parts {
				if p.InlineData != nil && p.InlineData.Data != "" {
					c.emit(Event{Type: EventAudio, Audio: p.InlineData.Data})
				}
			}
		}
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.stopCh:
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		case msg := <-c.out:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Error().Err(err).Msg("write to live channel failed")
				return
			}
		case encoded := <-c.audioOut:
			msg := realtimeInputMessage{RealtimeInput: realtimeInput{
				MediaChunks: []inlineData{{MimeType: "audio/pcm;rate=16000", Data: encoded}},
			}}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Error().Err(err).Msg("send audio frame failed")
				return
			}
		}
	}
}
