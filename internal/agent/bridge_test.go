package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chadiek/call-intake/internal/mediastream"
	"github.com/chadiek/call-intake/internal/realtime"
)

func startMessage(callSid string) mediastream.Message {
	return mediastream.Message{
		Event:     mediastream.EventStart,
		StreamSid: "MZ1",
		Start: &mediastream.Start{
			CallSid:   callSid,
			StreamSid: "MZ1",
			CustomParameters: map[string]string{
				ParamFrom:       "+972521234567",
				ParamTo:         "+97235550000",
				ParamStudyTrack: "nursing",
			},
		},
	}
}

func TestBridge_RunsSessionForStream(t *testing.T) {
	tel := newFakeTelephony()
	eng := newFakeEngine()
	leads := &fakeLeads{}
	calls := &fakeCalls{}
	reg := NewRegistry()
	opts := testOptions()
	opts.Session = realtime.SessionConfig{Voice: "alloy", Language: "he"}
	opts.ReapDelay = time.Minute

	b := &Bridge{
		Registry:             reg,
		Calls:                calls,
		Leads:                leads,
		DialEngine:           func(ctx context.Context) (Engine, error) { return eng, nil },
		Options:              opts,
		RecordingCallbackURL: "https://calls.example.com/twilio/recording-status",
	}

	tel.in <- mediastream.Message{Event: mediastream.EventConnected}
	tel.in <- startMessage("CA9")
	tel.in <- mediastream.Message{Event: mediastream.EventStop}
	if err := b.Serve(context.Background(), tel); err != nil {
		t.Fatalf("serve: %v", err)
	}

	s, ok := reg.Lookup("CA9")
	if !ok {
		t.Fatalf("session should stay registered during the reap delay")
	}
	s.Wait()
	got := leads.all()
	if len(got) != 1 {
		t.Fatalf("expected one payload, got %d", len(got))
	}
	p := got[0]
	if p.CallID != "CA9" || p.CallerNumber != "+972521234567" || p.StudyTrack != "nursing" || p.Reason != ReasonCallerHangup {
		t.Fatalf("unexpected payload %+v", p)
	}
	if eng.configured == nil || eng.configured.Language != "he" {
		t.Fatalf("engine was not configured")
	}
	calls.mu.Lock()
	defer calls.mu.Unlock()
	if calls.recordings != 1 {
		t.Fatalf("expected a recording request, got %d", calls.recordings)
	}
}

func TestBridge_DialFailureFinalizes(t *testing.T) {
	tel := newFakeTelephony()
	leads := &fakeLeads{}
	reg := NewRegistry()
	opts := testOptions()
	opts.ReapDelay = time.Minute
	b := &Bridge{
		Registry:   reg,
		Leads:      leads,
		DialEngine: func(ctx context.Context) (Engine, error) { return nil, errors.New("401") },
		Options:    opts,
	}
	tel.in <- startMessage("CA2")
	if err := b.Serve(context.Background(), tel); err != nil {
		t.Fatalf("serve: %v", err)
	}
	s, _ := reg.Lookup("CA2")
	s.Wait()
	if got := leads.all(); len(got) != 1 || got[0].Reason != ReasonEngineClosed {
		t.Fatalf("unexpected payloads %+v", got)
	}
	if !tel.isClosed() {
		t.Fatalf("media stream must be closed")
	}
}

func TestBridge_StreamEndsBeforeStart(t *testing.T) {
	tel := newFakeTelephony()
	close(tel.in)
	b := &Bridge{Registry: NewRegistry()}
	if err := b.Serve(context.Background(), tel); !errors.Is(err, ErrNoStart) {
		t.Fatalf("expected ErrNoStart, got %v", err)
	}
	if !tel.isClosed() {
		t.Fatalf("media stream must be closed")
	}
}

func TestBridge_DuplicateStreamDropped(t *testing.T) {
	reg := NewRegistry()
	reg.GetOrCreate("CA3", func() *Session { return &Session{CallID: "CA3"} })
	tel := newFakeTelephony()
	eng := newFakeEngine()
	tel.in <- startMessage("CA3")
	b := &Bridge{Registry: reg, DialEngine: func(ctx context.Context) (Engine, error) { return eng, nil }}
	if err := b.Serve(context.Background(), tel); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !tel.isClosed() || !eng.closed {
		t.Fatalf("duplicate stream must be closed")
	}
}
