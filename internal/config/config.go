package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	PublicBaseURL string
	LogLevel      string
	Development   bool

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioValidateSignature bool

	OpenAIKey             string
	RealtimeModel         string
	RealtimeURL           string
	Voice                 string
	TranscriptionLanguage string
	TranscriptionModel    string
	CountryCode           string

	CRMWebhookURL string

	RecordingEnabled bool
	RecordingWait    time.Duration

	IdleWarning         time.Duration
	IdleHangup          time.Duration
	MaxCall             time.Duration
	MaxCallWarningLead  time.Duration
	SpeechQuietInterval time.Duration
	ConflictRetryDelay  time.Duration
	TerminationGrace    time.Duration
	SessionReapDelay    time.Duration

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
}

// Load reads .env and environment variables and returns Config with sane
// defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file loaded")
	}

	return Config{
		HTTPAddress:   str("HTTP_ADDRESS", ":8080"),
		PublicBaseURL: strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		LogLevel:      str("LOG_LEVEL", "info"),
		Development:   boolean("DEVELOPMENT", false),

		TwilioAccountSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:         os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioValidateSignature: boolean("TWILIO_VALIDATE_SIGNATURE", true),

		OpenAIKey:             os.Getenv("OPENAI_API_KEY"),
		RealtimeModel:         str("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview"),
		RealtimeURL:           str("OPENAI_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		Voice:                 str("OPENAI_VOICE", "alloy"),
		TranscriptionLanguage: str("TRANSCRIPTION_LANGUAGE", "he"),
		TranscriptionModel:    str("TRANSCRIPTION_MODEL", "whisper-1"),
		CountryCode:           strings.TrimPrefix(str("COUNTRY_CODE", "972"), "+"),

		CRMWebhookURL: os.Getenv("CRM_WEBHOOK_URL"),

		RecordingEnabled: boolean("RECORDING_ENABLED", true),
		RecordingWait:    duration("RECORDING_WAIT", 8*time.Second),

		IdleWarning:         duration("IDLE_WARNING", 12*time.Second),
		IdleHangup:          duration("IDLE_HANGUP", 25*time.Second),
		MaxCall:             duration("MAX_CALL", 4*time.Minute),
		MaxCallWarningLead:  duration("MAX_CALL_WARNING_LEAD", 30*time.Second),
		SpeechQuietInterval: duration("SPEECH_QUIET_INTERVAL", 400*time.Millisecond),
		ConflictRetryDelay:  duration("CONFLICT_RETRY_DELAY", 250*time.Millisecond),
		TerminationGrace:    duration("TERMINATION_GRACE", 10*time.Second),
		SessionReapDelay:    duration("SESSION_REAP_DELAY", 2*time.Minute),

		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		SupabaseKey:    os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket: str("SUPABASE_BUCKET", "call-recordings"),
	}
}

// Warnings lists features disabled by missing settings. They are reported
// once the logger is up; none of them is fatal.
func (c Config) Warnings() []string {
	var w []string
	if c.OpenAIKey == "" {
		w = append(w, "OPENAI_API_KEY not set - calls will end as soon as the engine dial fails")
	}
	if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" {
		w = append(w, "TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN not set - recording and hangup are disabled")
	}
	if c.PublicBaseURL == "" {
		w = append(w, "PUBLIC_BASE_URL not set - stream and callback urls are derived from the request host")
	}
	if c.CRMWebhookURL == "" {
		w = append(w, "CRM_WEBHOOK_URL not set - lead payloads are logged only")
	}
	if c.SupabaseURL == "" || c.SupabaseKey == "" {
		w = append(w, "SUPABASE_URL/SUPABASE_SERVICE_ROLE_KEY not set - recordings are not archived")
	}
	if c.IdleHangup <= c.IdleWarning {
		w = append(w, "IDLE_HANGUP should be longer than IDLE_WARNING")
	}
	return w
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func boolean(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %v", key, v, def)
		return def
	}
	return b
}

// duration accepts Go durations ("12s") or plain milliseconds ("12000").
func duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Printf("config: invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}
