// Package mediastream speaks the Twilio Media Streams websocket protocol on
// the server side.
package mediastream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Inbound event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
)

// ErrClosed is returned when writing to a closed stream.
var ErrClosed = errors.New("mediastream: closed")

// Message is one inbound frame. Only the block matching Event is set.
type Message struct {
	Event          string `json:"event"`
	SequenceNumber string `json:"sequenceNumber,omitempty"`
	StreamSid      string `json:"streamSid,omitempty"`
	Start          *Start `json:"start,omitempty"`
	Media          *Media `json:"media,omitempty"`
	Stop           *Stop  `json:"stop,omitempty"`
	Mark           *Mark  `json:"mark,omitempty"`
}

// Start describes the stream and carries the TwiML <Parameter> values.
type Start struct {
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	StreamSid        string            `json:"streamSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      struct {
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sampleRate"`
		Channels   int    `json:"channels"`
	} `json:"mediaFormat"`
}

// Param returns a custom parameter or "".
func (s *Start) Param(name string) string {
	if s == nil || s.CustomParameters == nil {
		return ""
	}
	return s.CustomParameters[name]
}

// Media is one base64 μ-law chunk.
type Media struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// Stop ends the stream.
type Stop struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// Mark echoes a named marker back once playback reaches it.
type Mark struct {
	Name string `json:"name"`
}

type outbound struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     *Media `json:"media,omitempty"`
	Mark      *Mark  `json:"mark,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin: func(r *http.Request) bool {
		// Twilio does not send an Origin header
		return true
	},
}

// Conn wraps one media stream socket. Reads belong to a single goroutine;
// writes are serialized.
type Conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Upgrade accepts a media stream websocket.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("mediastream: upgrade: %w", err)
	}
	return NewConn(ws), nil
}

// NewConn wraps an established websocket.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, closed: make(chan struct{})}
}

// Read blocks for the next frame. Binary and undecodable frames are skipped.
func (c *Conn) Read() (Message, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return Message{}, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		if m.StreamSid == "" && m.Start != nil {
			m.StreamSid = m.Start.StreamSid
		}
		return m, nil
	}
}

// SendMedia plays a base64 μ-law chunk to the caller.
func (c *Conn) SendMedia(streamSid, payload string) error {
	return c.write(outbound{Event: EventMedia, StreamSid: streamSid, Media: &Media{Payload: payload}})
}

// SendMark asks Twilio to echo name once queued audio has played.
func (c *Conn) SendMark(streamSid, name string) error {
	return c.write(outbound{Event: EventMark, StreamSid: streamSid, Mark: &Mark{Name: name}})
}

func (c *Conn) write(v outbound) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mediastream: marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("mediastream: write: %w", err)
	}
	return nil
}

// Close sends a normal close frame and closes the socket. Safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		close(c.closed)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
