package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/chadiek/call-intake/internal/agent"
)

// DefaultAPIBase is the Twilio REST root used to download recordings.
const DefaultAPIBase = "https://api.twilio.com"

// ErrMissingCredentials is returned when the account sid or auth token is
// not configured.
var ErrMissingCredentials = errors.New("missing Twilio credentials: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required")

// ErrInvalidSid is returned for recording sids that are not well formed.
var ErrInvalidSid = errors.New("invalid recording sid")

// Storage abstracts file upload behavior for recordings.
type Storage interface {
	Upload(objectKey string, contentType string, body []byte) error
}

// TwilioService defines Twilio-related operations used by the HTTP layer and
// the call sessions.
type TwilioService interface {
	StartCallRecording(ctx context.Context, callSid, absoluteCallbackURL string) (agent.Recording, error)
	Hangup(ctx context.Context, callSid string) error
	FetchRecording(ctx context.Context, recordingSid string) ([]byte, error)
	ArchiveRecording(ctx context.Context, recordingSid, fileName string) error
	BuildAbsoluteURL(c echo.Context, path string) string
}

// callsAPI is the subset of the twilio-go v2010 API in use.
type callsAPI interface {
	CreateCallRecording(callSid string, params *twilioApi.CreateCallRecordingParams) (*twilioApi.ApiV2010CallRecording, error)
	UpdateCall(sid string, params *twilioApi.UpdateCallParams) (*twilioApi.ApiV2010Call, error)
}

type twilioService struct {
	accountSID string
	authToken  string
	baseURL    string
	apiBase    string
	api        callsAPI
	storage    Storage
	httpClient *http.Client
}

// NewTwilioService builds the service. baseURL is the public URL of this
// server ("" derives it from the request). storage may be nil.
func NewTwilioService(accountSID, authToken, baseURL string, storage Storage) TwilioService {
	s := &twilioService{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiBase:    DefaultAPIBase,
		storage:    storage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if accountSID != "" && authToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
		s.api = client.Api
	}
	return s
}

func (s *twilioService) hasCredentials() bool {
	return s.accountSID != "" && s.authToken != ""
}

// BuildAbsoluteURL builds a public absolute URL for callbacks.
// Priority: configured base URL > X-Forwarded-* headers > request Host heuristic.
func (s *twilioService) BuildAbsoluteURL(c echo.Context, path string) string {
	baseURL := s.baseURL
	if baseURL == "" {
		proto := c.Request().Header.Get("X-Forwarded-Proto")
		host := c.Request().Header.Get("X-Forwarded-Host")
		if proto != "" && host != "" {
			baseURL = fmt.Sprintf("%s://%s", proto, host)
		}
	}
	if baseURL == "" {
		host := c.Request().Host
		proto := "https"
		if strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
			proto = "http"
		}
		baseURL = fmt.Sprintf("%s://%s", proto, host)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// StartCallRecording starts a dual-channel recording on an in-progress call
// and returns its sid and media URL. Twilio also reports the recording to
// callbackURL while it is in progress and once it is complete.
func (s *twilioService) StartCallRecording(ctx context.Context, callSid, absoluteCallbackURL string) (agent.Recording, error) {
	if !s.hasCredentials() || s.api == nil {
		return agent.Recording{}, ErrMissingCredentials
	}
	params := &twilioApi.CreateCallRecordingParams{}
	params.SetRecordingStatusCallback(absoluteCallbackURL)
	params.SetRecordingStatusCallbackMethod("POST")
	params.SetRecordingStatusCallbackEvent([]string{"in-progress", "completed", "absent"})
	params.SetRecordingChannels("dual")

	resp, err := withContext(ctx, func() (*twilioApi.ApiV2010CallRecording, error) {
		return s.api.CreateCallRecording(callSid, params)
	})
	if err != nil {
		return agent.Recording{}, fmt.Errorf("failed to start recording: %w", err)
	}
	var rec agent.Recording
	if resp == nil {
		return rec, nil
	}
	if resp.Sid != nil {
		rec.SID = *resp.Sid
		rec.URL = s.recordingURL(rec.SID)
	}
	return rec, nil
}

// recordingURL is the media URL Twilio reports as RecordingUrl.
func (s *twilioService) recordingURL(recordingSid string) string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/Recordings/%s", s.apiBase, s.accountSID, recordingSid)
}

// Hangup completes a live call.
func (s *twilioService) Hangup(ctx context.Context, callSid string) error {
	if !s.hasCredentials() || s.api == nil {
		return ErrMissingCredentials
	}
	params := &twilioApi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := withContext(ctx, func() (*twilioApi.ApiV2010Call, error) {
		return s.api.UpdateCall(callSid, params)
	}); err != nil {
		return fmt.Errorf("failed to hang up call %s: %w", callSid, err)
	}
	return nil
}

// FetchRecording downloads the WAV rendition of a finished recording.
func (s *twilioService) FetchRecording(ctx context.Context, recordingSid string) ([]byte, error) {
	if !s.hasCredentials() {
		return nil, ErrMissingCredentials
	}
	if !validSid(recordingSid, "RE") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSid, recordingSid)
	}
	mediaURL := s.recordingURL(recordingSid) + ".wav"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyPreview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("failed to download recording, status %d: %s", resp.StatusCode, string(bodyPreview))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	return body, nil
}

// ArchiveRecording downloads a recording and uploads it to storage.
func (s *twilioService) ArchiveRecording(ctx context.Context, recordingSid, fileName string) error {
	if s.storage == nil {
		return errors.New("no recording storage configured")
	}
	body, err := s.FetchRecording(ctx, recordingSid)
	if err != nil {
		return err
	}
	if err := s.storage.Upload(fileName, "audio/wav", body); err != nil {
		return fmt.Errorf("failed to upload to storage: %w", err)
	}
	return nil
}

// withContext runs a blocking twilio-go call and gives up when ctx ends.
// The call itself keeps running until the client's own timeout.
func withContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := call()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// validSid checks a Twilio sid: two-letter prefix plus 32 hex characters.
func validSid(sid, prefix string) bool {
	if len(sid) != 34 || !strings.HasPrefix(sid, prefix) {
		return false
	}
	for _, r := range sid[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
