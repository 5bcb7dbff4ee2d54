package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"

	"github.com/chadiek/call-intake/internal/agent"
	"github.com/chadiek/call-intake/internal/infra/storage"
	"github.com/chadiek/call-intake/internal/mediastream"
	"github.com/chadiek/call-intake/internal/middleware"
	svc "github.com/chadiek/call-intake/internal/usecase"
)

// Route paths Twilio is pointed at.
const (
	VoicePath           = "/twilio/voice"
	MediaPath           = "/twilio/media"
	RecordingStatusPath = "/twilio/recording-status"
)

const archiveTimeout = 2 * time.Minute

type Handlers struct {
	Twilio   svc.TwilioService
	Registry *agent.Registry
	Bridge   *agent.Bridge
	// Record starts a call recording for every connected stream.
	Record bool
	// Archive copies completed recordings to storage.
	Archive bool
	// Context bounds the lifetime of call sessions; cancelled on shutdown.
	Context context.Context
	Logger  *zap.Logger
}

func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST(VoicePath, h.voice)
	e.GET(MediaPath, h.media)
	e.POST(RecordingStatusPath, h.recordingStatus)
	e.GET("/recordings/:sid", h.recording)
}

func (h Handlers) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// voice answers an incoming call by connecting it to the media stream.
func (h Handlers) voice(c echo.Context) error {
	params, ok := middleware.Params(c)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}

	callSid := params["CallSid"]
	track := c.QueryParam("track")
	h.log().Info("incoming call",
		zap.String("call_id", callSid),
		zap.String("from", params["From"]),
		zap.String("to", params["To"]),
		zap.String("study_track", track))

	stream := &twiml.VoiceStream{
		Url: websocketURL(h.Twilio.BuildAbsoluteURL(c, MediaPath)),
		InnerElements: []twiml.Element{
			&twiml.VoiceParameter{Name: agent.ParamFrom, Value: params["From"]},
			&twiml.VoiceParameter{Name: agent.ParamTo, Value: params["To"]},
			&twiml.VoiceParameter{Name: agent.ParamCallSid, Value: callSid},
			&twiml.VoiceParameter{Name: agent.ParamStudyTrack, Value: track},
		},
	}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}
	response, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

// media upgrades the Twilio media stream and runs the call session on it
// until the call is finalized.
func (h Handlers) media(c echo.Context) error {
	conn, err := mediastream.Upgrade(c.Response(), c.Request())
	if err != nil {
		h.log().Warn("media stream upgrade failed", zap.Error(err))
		return nil
	}

	bridge := *h.Bridge
	if h.Record {
		bridge.RecordingCallbackURL = h.Twilio.BuildAbsoluteURL(c, RecordingStatusPath)
	}
	ctx := h.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if err := bridge.Serve(ctx, conn); err != nil {
		if errors.Is(err, agent.ErrNoStart) {
			h.log().Info("media stream ended before start")
		} else {
			h.log().Warn("media stream failed", zap.Error(err))
		}
	}
	return nil
}

// recordingStatus attaches recording metadata to the live session and
// archives finished recordings.
func (h Handlers) recordingStatus(c echo.Context) error {
	params, ok := middleware.Params(c)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}

	callSid := params["CallSid"]
	recordingSid := params["RecordingSid"]
	recordingStatus := params["RecordingStatus"]
	log := h.log().With(zap.String("call_id", callSid), zap.String("recording_sid", recordingSid))
	log.Info("recording status update",
		zap.String("status", recordingStatus),
		zap.String("duration", params["RecordingDuration"]))

	if callSid != "" && recordingSid != "" && h.Registry != nil {
		attached := h.Registry.AttachRecording(callSid, agent.Recording{
			SID:    recordingSid,
			URL:    params["RecordingUrl"],
			Status: recordingStatus,
		})
		if !attached {
			log.Info("recording status for unknown call")
		}
	}

	switch recordingStatus {
	case "completed":
		if h.Archive && recordingSid != "" {
			fileName := storage.ObjectKey(fmt.Sprintf("%s/%s.wav", callSid, recordingSid))
			go h.archive(log, recordingSid, fileName)
		}
	case "failed", "absent":
		log.Warn("recording failed or is absent", zap.String("status", recordingStatus))
	}

	return c.String(http.StatusOK, "OK")
}

func (h Handlers) archive(log *zap.Logger, recordingSid, fileName string) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := h.Twilio.ArchiveRecording(ctx, recordingSid, fileName); err != nil {
		log.Error("recording archive failed", zap.Error(err))
		return
	}
	log.Info("recording archived", zap.String("file", fileName))
}

// recording streams a recording without exposing Twilio credentials.
func (h Handlers) recording(c echo.Context) error {
	body, err := h.Twilio.FetchRecording(c.Request().Context(), c.Param("sid"))
	switch {
	case errors.Is(err, svc.ErrInvalidSid):
		return c.String(http.StatusNotFound, "recording not found")
	case errors.Is(err, svc.ErrMissingCredentials):
		return c.String(http.StatusServiceUnavailable, "recordings unavailable")
	case err != nil:
		h.log().Warn("recording fetch failed", zap.String("recording_sid", c.Param("sid")), zap.Error(err))
		return c.String(http.StatusBadGateway, "recording fetch failed")
	}
	return c.Blob(http.StatusOK, "audio/wav", body)
}

// websocketURL turns an http(s) URL into its ws(s) form.
func websocketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
