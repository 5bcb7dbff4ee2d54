package agent

import "go.uber.org/zap"

// relayCallerAudio forwards a caller μ-law chunk to the engine unchanged.
func (s *Session) relayCallerAudio(payload string) {
	if payload == "" || s.Finalized {
		return
	}
	if err := s.deps.Engine.AppendAudio(payload); err != nil {
		s.log.Debug("append audio failed", zap.Error(err))
	}
}

// relayEngineAudio plays an engine μ-law chunk to the caller on the current
// stream.
func (s *Session) relayEngineAudio(payload string) {
	if payload == "" || s.StreamID == "" || s.Finalized {
		return
	}
	if err := s.deps.Telephony.SendMedia(s.StreamID, payload); err != nil {
		s.log.Debug("send media failed", zap.Error(err))
	}
}
