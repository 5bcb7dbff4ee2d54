package mediastream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// pair returns a server-side Conn and the dialing client socket.
func pair(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()
	ready := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ready <- c
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	select {
	case c := <-ready:
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatalf("server conn not ready")
	}
	return nil, nil
}

func TestRead_StartMediaStop(t *testing.T) {
	conn, client := pair(t)

	frames := []string{
		`{"event":"connected","protocol":"Call","version":"1.0.0"}`,
		`{"event":"start","sequenceNumber":"1","start":{"accountSid":"AC1","callSid":"CA1","streamSid":"MZ1","tracks":["inbound"],"customParameters":{"From":"+972521234567","StudyTrack":"nursing"},"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1}},"streamSid":"MZ1"}`,
		`not json`,
		`{"event":"media","streamSid":"MZ1","media":{"track":"inbound","chunk":"1","timestamp":"5","payload":"//8="}}`,
		`{"event":"stop","streamSid":"MZ1","stop":{"accountSid":"AC1","callSid":"CA1"}}`,
	}
	for _, f := range frames {
		if err := client.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	m, err := conn.Read()
	if err != nil || m.Event != EventConnected {
		t.Fatalf("expected connected, got %+v %v", m, err)
	}
	m, _ = conn.Read()
	if m.Event != EventStart || m.Start.CallSid != "CA1" || m.StreamSid != "MZ1" {
		t.Fatalf("unexpected start %+v", m)
	}
	if m.Start.Param("From") != "+972521234567" || m.Start.Param("missing") != "" {
		t.Fatalf("unexpected params %+v", m.Start.CustomParameters)
	}
	m, _ = conn.Read()
	if m.Event != EventMedia || m.Media.Payload != "//8=" {
		t.Fatalf("unexpected media %+v", m)
	}
	m, _ = conn.Read()
	if m.Event != EventStop || m.Stop.CallSid != "CA1" {
		t.Fatalf("unexpected stop %+v", m)
	}
}

func TestSendMediaAndMark(t *testing.T) {
	conn, client := pair(t)

	if err := conn.SendMedia("MZ1", "AAEC"); err != nil {
		t.Fatalf("send media: %v", err)
	}
	if err := conn.SendMark("MZ1", "turn-1"); err != nil {
		t.Fatalf("send mark: %v", err)
	}

	var got map[string]any
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	_ = json.Unmarshal(data, &got)
	if got["event"] != "media" || got["streamSid"] != "MZ1" {
		t.Fatalf("unexpected frame %v", got)
	}
	if got["media"].(map[string]any)["payload"] != "AAEC" {
		t.Fatalf("payload must be forwarded unchanged: %v", got)
	}

	_, data, _ = client.ReadMessage()
	got = nil
	_ = json.Unmarshal(data, &got)
	if got["event"] != "mark" || got["mark"].(map[string]any)["name"] != "turn-1" {
		t.Fatalf("unexpected mark %v", got)
	}
}

func TestWriteAfterClose(t *testing.T) {
	conn, _ := pair(t)
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = conn.Close()
	if err := conn.SendMedia("MZ1", "AAEC"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
