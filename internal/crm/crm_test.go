package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDeliver_PostsJSONWithEventID(t *testing.T) {
	var got Payload
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		key = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.Deliver(context.Background(), Payload{CallID: "CA1", FirstName: "דנה", Status: StatusCompleted, Reason: "completed"})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got.CallID != "CA1" || got.FirstName != "דנה" || got.Status != StatusCompleted {
		t.Fatalf("unexpected payload %+v", got)
	}
	if got.EventID == "" || key != got.EventID {
		t.Fatalf("expected event id to be generated and sent as key, got %q/%q", got.EventID, key)
	}
}

func TestDeliver_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.Deliver(context.Background(), Payload{CallID: "CA1"}); err == nil {
		t.Fatalf("expected error for 502")
	}
}

func TestDeliver_Disabled(t *testing.T) {
	c := NewClient("")
	if err := c.Deliver(context.Background(), Payload{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestDeliver_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := NewClient(srv.URL).Deliver(ctx, Payload{CallID: "CA1"}); err == nil {
		t.Fatalf("expected timeout error")
	}
}
