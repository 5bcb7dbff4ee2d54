package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chadiek/call-intake/internal/mediastream"
)

// Custom stream parameters set by the voice webhook TwiML.
const (
	ParamFrom       = "From"
	ParamTo         = "To"
	ParamCallSid    = "CallSid"
	ParamStudyTrack = "StudyTrack"
)

// ErrNoStart is returned when a media stream ends before its start event.
var ErrNoStart = errors.New("agent: media stream closed before start")

// Bridge wires one media stream socket to one call session.
type Bridge struct {
	Registry *Registry
	Calls    CallControl
	Leads    LeadSink
	// DialEngine opens a speech engine connection for a new call.
	DialEngine func(ctx context.Context) (Engine, error)
	Options    Options
	// RecordingCallbackURL enables recording when non-empty.
	RecordingCallbackURL string
	Logger               *zap.Logger
}

// Serve waits for the stream start, creates the session, connects the
// engine and runs the call to completion. It closes tel on every path.
func (b *Bridge) Serve(ctx context.Context, tel Telephony) error {
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}

	start, err := awaitStart(tel)
	if err != nil {
		_ = tel.Close()
		return err
	}
	info := CallInfo{
		CallID:     start.Start.CallSid,
		StreamID:   start.StreamSid,
		From:       start.Start.Param(ParamFrom),
		To:         start.Start.Param(ParamTo),
		StudyTrack: start.Start.Param(ParamStudyTrack),
	}
	if info.CallID == "" {
		info.CallID = start.Start.Param(ParamCallSid)
	}
	if info.CallID == "" {
		_ = tel.Close()
		return fmt.Errorf("agent: start event without call sid (stream %s)", info.StreamID)
	}
	log = log.With(zap.String("call_id", info.CallID), zap.String("stream_id", info.StreamID))

	engine := b.connectEngine(ctx, log)

	sess, created := b.Registry.GetOrCreate(info.CallID, func() *Session {
		return NewSession(info, Deps{
			Telephony: tel,
			Engine:    engine,
			Calls:     b.Calls,
			Leads:     b.Leads,
			Registry:  b.Registry,
			Logger:    log,
		}, b.Options)
	})
	if !created {
		log.Warn("call already has a session, dropping stream")
		_ = tel.Close()
		if engine != nil {
			_ = engine.Close()
		}
		return nil
	}

	if b.RecordingCallbackURL != "" {
		sess.StartRecording(ctx, b.RecordingCallbackURL)
	}
	sess.Run(ctx)
	return nil
}

func (b *Bridge) connectEngine(ctx context.Context, log *zap.Logger) Engine {
	if b.DialEngine == nil {
		return nil
	}
	engine, err := b.DialEngine(ctx)
	if err != nil {
		log.Error("engine dial failed", zap.Error(err))
		return nil
	}
	if err := engine.ConfigureSession(b.Options.Session); err != nil {
		log.Error("engine configuration failed", zap.Error(err))
		_ = engine.Close()
		return nil
	}
	return engine
}

// awaitStart reads until the start event, skipping connected and any early
// frames.
func awaitStart(tel Telephony) (mediastream.Message, error) {
	for {
		msg, err := tel.Read()
		if err != nil {
			return mediastream.Message{}, fmt.Errorf("%w: %v", ErrNoStart, err)
		}
		switch msg.Event {
		case mediastream.EventStart:
			if msg.Start != nil {
				return msg, nil
			}
		case mediastream.EventStop:
			return mediastream.Message{}, ErrNoStart
		}
	}
}
