package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/chadiek/call-intake/internal/crm"
	"github.com/chadiek/call-intake/internal/mediastream"
	"github.com/chadiek/call-intake/internal/realtime"
)

type fakeTelephony struct {
	in        chan mediastream.Message
	closed    chan struct{}
	closeOnce sync.Once
	echoMarks bool

	mu     sync.Mutex
	media  []string
	marks  []string
	closes int
}

func newFakeTelephony() *fakeTelephony {
	return &fakeTelephony{in: make(chan mediastream.Message, 64), closed: make(chan struct{})}
}

func (f *fakeTelephony) Read() (mediastream.Message, error) {
	select {
	case m, ok := <-f.in:
		if !ok {
			return mediastream.Message{}, io.EOF
		}
		return m, nil
	case <-f.closed:
		return mediastream.Message{}, errors.New("use of closed connection")
	}
}

func (f *fakeTelephony) SendMedia(streamSid, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, payload)
	return nil
}

func (f *fakeTelephony) SendMark(streamSid, name string) error {
	f.mu.Lock()
	f.marks = append(f.marks, name)
	f.mu.Unlock()
	if f.echoMarks {
		go func() {
			select {
			case f.in <- mediastream.Message{Event: mediastream.EventMark, StreamSid: streamSid, Mark: &mediastream.Mark{Name: name}}:
			case <-f.closed:
			}
		}()
	}
	return nil
}

func (f *fakeTelephony) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeTelephony) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTelephony) markNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.marks...)
}

func (f *fakeTelephony) mediaCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.media)
}

type fakeEngine struct {
	events chan realtime.Event

	mu            sync.Mutex
	configured    *realtime.SessionConfig
	appended      []string
	responses     []string
	requestedAt   []time.Time
	inFlight      int
	maxInFlight   int
	conflictFirst int
	doneDelay     time.Duration
	closed        bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan realtime.Event, 256)}
}

func (f *fakeEngine) ConfigureSession(cfg realtime.SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = &cfg
	return nil
}

func (f *fakeEngine) AppendAudio(payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, payload)
	return nil
}

func (f *fakeEngine) CreateResponse(text string) error {
	f.mu.Lock()
	f.responses = append(f.responses, text)
	f.requestedAt = append(f.requestedAt, time.Now())
	if f.conflictFirst > 0 {
		f.conflictFirst--
		f.mu.Unlock()
		f.events <- realtime.Event{Type: realtime.EventError, Code: "conversation_already_has_active_response"}
		return nil
	}
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.doneDelay
	f.mu.Unlock()

	if delay == 0 {
		f.finish()
		return nil
	}
	go func() {
		time.Sleep(delay)
		f.finish()
	}()
	return nil
}

func (f *fakeEngine) finish() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	f.events <- realtime.Event{Type: realtime.EventAudioDelta, Audio: "AUDIO"}
	f.events <- realtime.Event{Type: realtime.EventResponseDone}
}

func (f *fakeEngine) Events() <-chan realtime.Event { return f.events }

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEngine) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.responses...)
}

// settled reports that n responses were requested and none is in flight.
func (f *fakeEngine) settled(n int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.responses) == n && f.inFlight == 0
}

type fakeLeads struct {
	mu       sync.Mutex
	payloads []crm.Payload
}

func (f *fakeLeads) Deliver(ctx context.Context, p crm.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return nil
}

func (f *fakeLeads) all() []crm.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]crm.Payload(nil), f.payloads...)
}

type fakeCalls struct {
	mu         sync.Mutex
	recordings int
	hangups    []string
	started    Recording
	startErr   error
}

func (f *fakeCalls) StartCallRecording(ctx context.Context, callSid, callbackURL string) (Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordings++
	if f.startErr != nil {
		return Recording{}, f.startErr
	}
	return f.started, nil
}

func (f *fakeCalls) Hangup(ctx context.Context, callSid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangups = append(f.hangups, callSid)
	return nil
}

func (f *fakeCalls) hangupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hangups)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not finish")
	}
}
