package agent

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry()
	var created sync.Map
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("CA%d", i%10)
			r.GetOrCreate(id, func() *Session {
				if _, dup := created.LoadOrStore(id, true); dup {
					t.Errorf("%s created twice", id)
				}
				return &Session{CallID: id}
			})
		}(i)
	}
	wg.Wait()
	if r.Len() != 10 {
		t.Fatalf("expected 10 sessions, got %d", r.Len())
	}
}

func TestRegistry_ScheduleRemoval(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("CA1", func() *Session { return &Session{CallID: "CA1"} })
	r.ScheduleRemoval("CA1", 10*time.Millisecond)
	if _, ok := r.Lookup("CA1"); !ok {
		t.Fatalf("session must stay until the grace period ends")
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if r.Len() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session was not removed")
}

func TestRegistry_AttachRecordingUnknownCall(t *testing.T) {
	r := NewRegistry()
	if r.AttachRecording("missing", Recording{SID: "RE1"}) {
		t.Fatalf("unknown call must report false")
	}
	s := &Session{CallID: "CA1"}
	r.GetOrCreate("CA1", func() *Session { return s })
	if !r.AttachRecording("CA1", Recording{SID: "RE1", URL: "https://api.twilio.com/RE1"}) {
		t.Fatalf("expected attach")
	}
	if got := s.Recording(); got.SID != "RE1" {
		t.Fatalf("recording not attached: %+v", got)
	}
}
