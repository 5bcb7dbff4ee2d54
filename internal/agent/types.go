package agent

import (
	"context"

	"github.com/chadiek/call-intake/internal/crm"
	"github.com/chadiek/call-intake/internal/mediastream"
	"github.com/chadiek/call-intake/internal/realtime"
)

// Telephony is the caller leg of a call: the Twilio media stream socket.
type Telephony interface {
	Read() (mediastream.Message, error)
	SendMedia(streamSid, payload string) error
	SendMark(streamSid, name string) error
	Close() error
}

// Engine is the speech engine leg: it transcribes caller audio and speaks
// requested utterances.
type Engine interface {
	ConfigureSession(cfg realtime.SessionConfig) error
	AppendAudio(payload string) error
	CreateResponse(text string) error
	Events() <-chan realtime.Event
	Close() error
}

// CallControl issues out-of-band telephony requests for a live call.
type CallControl interface {
	// StartCallRecording returns the recording as far as it is known when
	// recording begins; later details arrive via AttachRecording.
	StartCallRecording(ctx context.Context, callSid, callbackURL string) (Recording, error)
	Hangup(ctx context.Context, callSid string) error
}

// LeadSink receives the one record produced per call.
type LeadSink interface {
	Deliver(ctx context.Context, p crm.Payload) error
}
