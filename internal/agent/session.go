package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chadiek/call-intake/internal/dialogue"
	"github.com/chadiek/call-intake/internal/extract"
	"github.com/chadiek/call-intake/internal/mediastream"
	"github.com/chadiek/call-intake/internal/realtime"
)

// Finalize reasons raised outside the dialogue.
const (
	ReasonIdleTimeout    = "idle_timeout"
	ReasonMaxCallTimeout = "max_call_timeout"
	ReasonCallerHangup   = "caller_hangup"
	ReasonWSClose        = "ws_close"
	ReasonEngineClosed   = "engine_closed"
)

// farewellMark is echoed by Twilio once the last utterance has played.
const farewellMark = "farewell"

// CallInfo identifies a call as announced by the media stream start event.
type CallInfo struct {
	CallID     string
	StreamID   string
	From       string
	To         string
	StudyTrack string
}

// Recording is the metadata reported by the recording status callback.
type Recording struct {
	SID    string
	URL    string
	Status string
}

// Options tune one session.
type Options struct {
	Timers             TimerConfig
	QuietInterval      time.Duration
	ConflictRetryDelay time.Duration
	RecordingWait      time.Duration
	RecordingPoll      time.Duration
	ReapDelay          time.Duration
	DeliveryTimeout    time.Duration
	PublicBaseURL      string
	CountryCode        string
	Session            realtime.SessionConfig
}

// Deps are the collaborators of a session. Engine may be nil when the dial
// failed; Calls, Leads and Registry are optional.
type Deps struct {
	Telephony Telephony
	Engine    Engine
	Calls     CallControl
	Leads     LeadSink
	Registry  *Registry
	Extractor extract.Extractor
	Logger    *zap.Logger
}

type telephonyEvent struct {
	msg mediastream.Message
	err error
}

// Session is the per-call actor. Everything except the recording metadata
// is owned by the goroutine running Run.
type Session struct {
	CallID     string
	StreamID   string
	From       string
	To         string
	StartedAt  time.Time
	EndedAt    time.Time
	Finalized  bool
	Reason     string
	StudyTrack string

	dlg         dialogue.Snapshot
	queue       SpeechQueue
	timers      *TimerController
	opened      bool
	nudged      bool
	terminating bool
	exitReason  string
	markSent    bool
	turns       int

	opts Options
	deps Deps
	log  *zap.Logger

	inbox chan timerFired
	done  chan struct{}
	bg    sync.WaitGroup

	recMu            sync.Mutex
	rec              Recording
	recordingStarted bool
}

// NewSession builds a session for one call. Run must be called to start it.
func NewSession(info CallInfo, deps Deps, opts Options) *Session {
	if deps.Extractor == nil {
		deps.Extractor = extract.New(extract.Hebrew, opts.CountryCode)
	}
	l := deps.Logger
	if l == nil {
		l = zap.NewNop()
	}
	if opts.RecordingPoll <= 0 {
		opts.RecordingPoll = 200 * time.Millisecond
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 15 * time.Second
	}
	s := &Session{
		CallID:     info.CallID,
		StreamID:   info.StreamID,
		From:       info.From,
		To:         info.To,
		StudyTrack: info.StudyTrack,
		StartedAt:  time.Now(),
		opts:       opts,
		deps:       deps,
		log:        l.With(zap.String("call_id", info.CallID), zap.String("stream_id", info.StreamID)),
		inbox:      make(chan timerFired, 16),
		done:       make(chan struct{}),
	}
	s.dlg = dialogue.Start(extract.LocalFromE164(info.From, opts.CountryCode), info.StudyTrack)
	s.timers = newTimerController(opts.Timers, s.post)
	return s
}

// post hands a timer expiry to the loop; dropped once the loop has exited.
func (s *Session) post(ev timerFired) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

// Run processes the call until it is finalized. Telephony frames, engine
// events and timer expiries are handled one at a time in arrival order.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	if s.deps.Engine == nil {
		s.log.Warn("no speech engine, ending call")
		s.finalize(ReasonEngineClosed)
		return
	}

	tel := make(chan telephonyEvent, 64)
	go s.readTelephony(tel)

	s.timers.ArmMaxCall()
	s.timers.ArmIdle()
	s.log.Info("session started", zap.String("from", s.From), zap.String("study_track", s.StudyTrack))

	engineEvents := s.deps.Engine.Events()
	for !s.Finalized {
		select {
		case <-ctx.Done():
			s.finalize(ReasonWSClose)
		case ev := <-tel:
			s.handleTelephony(ev)
		case ev, ok := <-engineEvents:
			if !ok {
				engineEvents = nil
				s.finalize(ReasonEngineClosed)
				continue
			}
			s.handleEngine(ev)
		case ev := <-s.inbox:
			s.handleTimer(ev)
		}
	}
}

func (s *Session) readTelephony(out chan<- telephonyEvent) {
	for {
		msg, err := s.deps.Telephony.Read()
		select {
		case out <- telephonyEvent{msg: msg, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) handleTelephony(ev telephonyEvent) {
	if ev.err != nil {
		s.log.Info("media stream closed", zap.Error(ev.err))
		s.finalize(ReasonWSClose)
		return
	}
	switch ev.msg.Event {
	case mediastream.EventMedia:
		if ev.msg.Media != nil {
			s.relayCallerAudio(ev.msg.Media.Payload)
		}
	case mediastream.EventStop:
		s.finalize(ReasonCallerHangup)
	case mediastream.EventMark:
		if ev.msg.Mark != nil && ev.msg.Mark.Name == farewellMark && s.terminating {
			s.finalize(s.exitReason)
		}
	case mediastream.EventStart:
		if ev.msg.StreamSid != "" && ev.msg.StreamSid != s.StreamID {
			s.log.Info("stream restarted", zap.String("new_stream_id", ev.msg.StreamSid))
			s.StreamID = ev.msg.StreamSid
		}
	}
}

func (s *Session) handleEngine(ev realtime.Event) {
	switch ev.Type {
	case realtime.EventReady:
		s.queue.SetReady()
		if !s.opened {
			s.opened = true
			s.say(dialogue.Opening(s.dlg)...)
		}
		s.pump()
	case realtime.EventAudioDelta:
		s.relayEngineAudio(ev.Audio)
	case realtime.EventResponseDone:
		if !s.queue.Active() {
			return
		}
		s.queue.Complete()
		if !s.nudged && !s.terminating {
			s.timers.ArmIdle()
		}
		s.timers.ResumeAfter(s.opts.QuietInterval)
	case realtime.EventTranscript:
		s.handleTranscript(ev.Text)
	case realtime.EventError:
		if ev.Conflict() {
			s.log.Info("engine busy, retrying utterance")
			s.queue.Conflict()
			s.timers.ResumeAfter(s.opts.ConflictRetryDelay)
			return
		}
		s.log.Warn("engine error", zap.String("code", ev.Code), zap.String("message", ev.Message))
	case realtime.EventClosed:
		s.log.Info("engine closed", zap.Error(ev.Err))
		s.finalize(ReasonEngineClosed)
	}
}

// handleTranscript feeds one recognized caller utterance to the dialogue.
// Speech recognized while the bot is talking is ignored.
func (s *Session) handleTranscript(text string) {
	text = strings.TrimSpace(text)
	if text == "" || s.terminating {
		return
	}
	if s.queue.Active() {
		s.log.Debug("transcript ignored while speaking", zap.String("text", text))
		return
	}
	s.nudged = false
	s.timers.ArmIdle()

	before := s.dlg.State
	r := dialogue.Step(s.dlg, text, s.deps.Extractor)
	s.dlg = r.Snapshot
	s.log.Info("caller turn",
		zap.String("text", text),
		zap.Stringer("from_state", before),
		zap.Stringer("to_state", s.dlg.State))

	s.say(r.Say...)
	if r.Done {
		s.beginTermination(r.Reason)
	}
	s.pump()
}

func (s *Session) handleTimer(ev timerFired) {
	if !s.timers.Current(ev) || s.Finalized {
		return
	}
	switch ev.kind {
	case timerResume:
		s.queue.Resume()
		s.pump()
	case timerIdleWarning:
		if s.terminating {
			return
		}
		s.nudged = true
		s.say(dialogue.PromptIdleNudge + dialogue.Prompt(s.dlg))
		s.pump()
	case timerIdleHangup:
		s.log.Info("caller idle, ending call")
		s.finalize(ReasonIdleTimeout)
	case timerMaxCallWarning:
		if s.terminating {
			return
		}
		s.say(dialogue.PromptWrapUp)
		s.pump()
	case timerMaxCallHangup:
		s.log.Info("max call length reached")
		s.finalize(ReasonMaxCallTimeout)
	case timerTerminationGrace:
		s.log.Info("farewell did not finish in time")
		s.finalize(s.exitReason)
	}
}

func (s *Session) say(utterances ...string) {
	for _, u := range utterances {
		s.queue.Enqueue(u)
	}
}

// beginTermination lets the queued farewell play before finalizing.
func (s *Session) beginTermination(reason string) {
	if s.terminating {
		return
	}
	s.terminating = true
	s.exitReason = reason
	s.timers.StopIdle()
	s.timers.ArmTerminationGrace()
}

// pump sends the next utterance if the queue allows it. Once a termination
// is pending and everything has been spoken, it asks Twilio to report when
// playback has finished.
func (s *Session) pump() {
	if s.Finalized {
		return
	}
	text, ok := s.queue.TryDequeue()
	if !ok {
		if s.terminating && s.queue.Idle() && !s.markSent {
			s.markSent = true
			if err := s.deps.Telephony.SendMark(s.StreamID, farewellMark); err != nil {
				s.log.Warn("send farewell mark failed", zap.Error(err))
				s.finalize(s.exitReason)
			}
		}
		return
	}
	s.turns++
	if err := s.deps.Engine.CreateResponse(text); err != nil {
		s.log.Warn("request utterance failed", zap.Error(err))
		s.queue.Complete()
		s.timers.ResumeAfter(s.opts.QuietInterval)
		return
	}
	s.log.Debug("utterance requested", zap.Int("turn", s.turns), zap.String("text", text))
}

// Snapshot returns the dialogue state. Only meaningful once Run has returned
// or from the loop itself.
func (s *Session) Snapshot() dialogue.Snapshot { return s.dlg }

// AttachRecording stores recording metadata reported out of band. Empty
// fields keep their previous value. Safe for concurrent use.
func (s *Session) AttachRecording(rec Recording) {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	if rec.SID != "" {
		s.rec.SID = rec.SID
	}
	if rec.URL != "" {
		s.rec.URL = rec.URL
	}
	if rec.Status != "" {
		s.rec.Status = rec.Status
	}
}

// Recording returns the current recording metadata.
func (s *Session) Recording() Recording {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	return s.rec
}

func (s *Session) setRecordingStarted() {
	s.recMu.Lock()
	s.recordingStarted = true
	s.recMu.Unlock()
}

func (s *Session) recordingPending() bool {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	return s.recordingStarted && s.rec.SID == ""
}

// StartRecording asks telephony to record the call in the background.
func (s *Session) StartRecording(ctx context.Context, callbackURL string) {
	if s.deps.Calls == nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		rec, err := s.deps.Calls.StartCallRecording(ctx, s.CallID, callbackURL)
		if err != nil {
			s.log.Warn("start recording failed", zap.Error(err))
			return
		}
		s.AttachRecording(rec)
		s.setRecordingStarted()
		s.log.Info("recording started", zap.String("recording_sid", rec.SID))
	}()
}

// Wait blocks until background deliveries and telephony requests finish.
func (s *Session) Wait() { s.bg.Wait() }
