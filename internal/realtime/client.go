// Package realtime is a client for the OpenAI Realtime websocket API used as
// the call's speech engine: it transcribes caller audio and speaks the exact
// utterances it is asked to.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultURL   = "wss://api.openai.com/v1/realtime"
	DefaultModel = "gpt-4o-realtime-preview"

	// AudioFormat is used for both directions so Twilio μ-law frames pass
	// through untouched.
	AudioFormat = "g711_ulaw"

	conflictCode = "conversation_already_has_active_response"
)

// ErrNotConnected is returned when sending before Dial or after Close.
var ErrNotConnected = errors.New("realtime: not connected")

// EventType classifies engine events delivered to the session.
type EventType int

const (
	EventReady EventType = iota + 1
	EventAudioDelta
	EventResponseDone
	EventTranscript
	EventError
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventAudioDelta:
		return "audio_delta"
	case EventResponseDone:
		return "response_done"
	case EventTranscript:
		return "transcript"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	}
	return "unknown"
}

// Event is a decoded engine message.
type Event struct {
	Type EventType
	// Audio is the base64 μ-law chunk of an audio delta.
	Audio string
	// Text is the recognized caller text of a transcript.
	Text    string
	Code    string
	Message string
	Err     error
}

// Conflict reports whether the engine rejected a response because another
// one is still active.
func (e Event) Conflict() bool {
	if e.Type != EventError {
		return false
	}
	return e.Code == conflictCode || strings.Contains(strings.ToLower(e.Message), "already has an active response")
}

// SessionConfig is sent once per call in session.update.
type SessionConfig struct {
	Instructions       string
	Voice              string
	TranscriptionModel string
	Language           string
}

// Options configure a Client.
type Options struct {
	URL    string
	Model  string
	APIKey string
	Logger *zap.Logger
}

// Client manages one websocket connection to the Realtime API.
type Client struct {
	opts   Options
	log    *zap.Logger
	dialer websocket.Dialer

	ws   *websocket.Conn
	wsMu sync.Mutex

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client; call Dial before sending.
func NewClient(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Client{
		opts:   opts,
		log:    l,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
}

// Events returns the engine event stream. The channel is closed after an
// EventClosed has been delivered.
func (c *Client) Events() <-chan Event { return c.events }

// Dial opens the websocket and starts the reader.
func (c *Client) Dial(ctx context.Context) error {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return fmt.Errorf("realtime: parse url: %w", err)
	}
	q := u.Query()
	q.Set("model", c.opts.Model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.opts.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("realtime: dial (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("realtime: dial: %w", err)
	}

	c.wsMu.Lock()
	c.ws = conn
	c.wsMu.Unlock()

	go c.handleMessages(conn)
	return nil
}

// ConfigureSession sends the one-time session.update. Turn detection stays
// on the server but never creates responses by itself.
func (c *Client) ConfigureSession(cfg SessionConfig) error {
	voice := cfg.Voice
	if voice == "" {
		voice = "alloy"
	}
	session := map[string]any{
		"modalities":          []string{"audio", "text"},
		"instructions":        cfg.Instructions,
		"voice":               voice,
		"input_audio_format":  AudioFormat,
		"output_audio_format": AudioFormat,
		"turn_detection": map[string]any{
			"type":            "server_vad",
			"create_response": false,
		},
	}
	if cfg.TranscriptionModel != "" {
		tr := map[string]any{"model": cfg.TranscriptionModel}
		if cfg.Language != "" {
			tr["language"] = cfg.Language
		}
		session["input_audio_transcription"] = tr
	}
	return c.sendJSON(map[string]any{"type": "session.update", "session": session})
}

// AppendAudio forwards a base64 μ-law chunk as received from telephony.
func (c *Client) AppendAudio(payload string) error {
	return c.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": payload,
	})
}

// CreateResponse asks the engine to speak text. The request carries only the
// utterance itself.
func (c *Client) CreateResponse(text string) error {
	return c.sendJSON(map[string]any{
		"type": "response.create",
		"response": map[string]any{
			"modalities":   []string{"audio", "text"},
			"instructions": text,
		},
	})
}

// Close closes the socket. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.wsMu.Lock()
		defer c.wsMu.Unlock()
		if c.ws != nil {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			err = c.ws.Close()
		}
	})
	return err
}

type wireMessage struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) handleMessages(conn *websocket.Conn) {
	defer close(c.events)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.emit(Event{Type: EventClosed, Err: err})
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("realtime: undecodable message", zap.Error(err))
			continue
		}
		ev, ok := decode(msg)
		if !ok {
			continue
		}
		if !c.emit(ev) {
			return
		}
	}
}

func decode(msg wireMessage) (Event, bool) {
	switch msg.Type {
	case "session.created", "session.updated":
		return Event{Type: EventReady}, true
	case "response.audio.delta":
		if msg.Delta == "" {
			return Event{}, false
		}
		return Event{Type: EventAudioDelta, Audio: msg.Delta}, true
	case "response.done":
		return Event{Type: EventResponseDone}, true
	case "conversation.item.input_audio_transcription.completed":
		return Event{Type: EventTranscript, Text: strings.TrimSpace(msg.Transcript)}, true
	case "error":
		ev := Event{Type: EventError}
		if msg.Error != nil {
			ev.Code = msg.Error.Code
			ev.Message = msg.Error.Message
		}
		return ev, true
	}
	return Event{}, false
}

// emit delivers ev unless the client has been closed.
func (c *Client) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: marshal: %w", err)
	}
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	if c.ws == nil {
		return ErrNotConnected
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("realtime: write: %w", err)
	}
	return nil
}
