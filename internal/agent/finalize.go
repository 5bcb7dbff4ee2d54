package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chadiek/call-intake/internal/crm"
	"github.com/chadiek/call-intake/internal/dialogue"
	"github.com/chadiek/call-intake/internal/extract"
)

// finalize ends the call exactly once: it stops the timers, waits briefly
// for recording metadata, hands the lead to the CRM, schedules registry
// removal, requests hangup and closes both sockets. Later calls are no-ops.
func (s *Session) finalize(reason string) {
	if s.Finalized {
		return
	}
	s.timers.CancelAll()

	rec := s.awaitRecording()
	payload := s.buildPayload(reason, rec)

	s.Finalized = true
	s.EndedAt = payload.EndedAt
	s.Reason = reason
	s.log.Info("call finalized",
		zap.String("reason", reason),
		zap.String("status", payload.Status),
		zap.Stringer("state", s.dlg.State),
		zap.Int("duration_seconds", payload.DurationSeconds))

	s.deliver(payload)

	if s.deps.Registry != nil {
		s.deps.Registry.ScheduleRemoval(s.CallID, s.opts.ReapDelay)
	}
	s.hangup()

	if err := s.deps.Telephony.Close(); err != nil {
		s.log.Debug("close media stream", zap.Error(err))
	}
	if s.deps.Engine != nil {
		if err := s.deps.Engine.Close(); err != nil {
			s.log.Debug("close engine", zap.Error(err))
		}
	}
}

// awaitRecording polls for recording metadata when a recording was started
// but its callback has not arrived yet. Best effort; bounded by
// RecordingWait.
func (s *Session) awaitRecording() Recording {
	if s.opts.RecordingWait <= 0 || !s.recordingPending() {
		return s.Recording()
	}
	deadline := time.Now().Add(s.opts.RecordingWait)
	for s.recordingPending() && time.Now().Before(deadline) {
		time.Sleep(s.opts.RecordingPoll)
	}
	rec := s.Recording()
	if rec.SID == "" {
		s.log.Info("recording metadata not available", zap.Duration("waited", s.opts.RecordingWait))
	}
	return rec
}

// leadStatus is completed only when consent, a first name and a valid phone
// were all collected.
func leadStatus(consent, firstName, phone string) string {
	if consent == dialogue.ConsentYes && firstName != "" && extract.IsValidLocalPhone(phone) {
		return crm.StatusCompleted
	}
	return crm.StatusPartial
}

func (s *Session) buildPayload(reason string, rec Recording) crm.Payload {
	lead := s.dlg.Lead
	ended := time.Now()
	p := crm.Payload{
		CallID:          s.CallID,
		StreamID:        s.StreamID,
		CallerNumber:    s.From,
		CalledNumber:    s.To,
		CallerLocal:     s.dlg.CallerLocal,
		FirstName:       lead.FirstName,
		LastName:        lead.LastName,
		PhoneNumber:     lead.PhoneNumber,
		StudyTrack:      lead.StudyTrack,
		Consent:         s.dlg.Consent,
		Status:          leadStatus(s.dlg.Consent, lead.FirstName, lead.PhoneNumber),
		Reason:          reason,
		RecordingSID:    rec.SID,
		RecordingURL:    rec.URL,
		StartedAt:       s.StartedAt,
		EndedAt:         ended,
		DurationSeconds: int(ended.Sub(s.StartedAt).Seconds()),
		Remarks:         s.remarks(reason),
	}
	if rec.SID != "" && s.opts.PublicBaseURL != "" {
		p.RecordingProxyURL = s.opts.PublicBaseURL + "/recordings/" + rec.SID
	}
	return p
}

func (s *Session) remarks(reason string) string {
	r := fmt.Sprintf("ended in %s (%s)", s.dlg.State, reason)
	if s.dlg.Lead.PhoneNumber != "" && s.dlg.Lead.PhoneNumber == s.dlg.CallerLocal {
		r += "; callback to caller id"
	}
	return r
}

func (s *Session) deliver(p crm.Payload) {
	if s.deps.Leads == nil {
		s.log.Info("no lead sink configured", zap.String("status", p.Status))
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.DeliveryTimeout)
		defer cancel()
		if err := s.deps.Leads.Deliver(ctx, p); err != nil {
			s.log.Warn("lead delivery failed", zap.Error(err))
			return
		}
		s.log.Info("lead delivered", zap.String("status", p.Status))
	}()
}

func (s *Session) hangup() {
	if s.deps.Calls == nil || s.CallID == "" {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.deps.Calls.Hangup(ctx, s.CallID); err != nil {
			s.log.Info("hangup request failed", zap.Error(err))
		}
	}()
}
