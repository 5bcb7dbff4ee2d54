package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	apihttp "github.com/chadiek/call-intake/api/http"
	"github.com/chadiek/call-intake/internal/agent"
	"github.com/chadiek/call-intake/internal/config"
	"github.com/chadiek/call-intake/internal/crm"
	"github.com/chadiek/call-intake/internal/httpserver"
	"github.com/chadiek/call-intake/internal/infra/storage"
	"github.com/chadiek/call-intake/internal/logger"
	twiliomw "github.com/chadiek/call-intake/internal/middleware"
	"github.com/chadiek/call-intake/internal/realtime"
	svc "github.com/chadiek/call-intake/internal/usecase"
)

// engineInstructions keeps the voice engine a pure speaker: every turn's
// text arrives in response.instructions and the dialogue is driven here.
const engineInstructions = `You are the voice of a phone intake line for an academic college.
Speak Hebrew only, in a warm and natural tone.
For every response, say exactly the text you are given in the response instructions, word for word.
Do not add greetings, questions, explanations or any words of your own.
Read digits one by one, the way they are written.`

func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.LogLevel, cfg.Development); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.L()

	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	store, err := storage.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
	if err != nil {
		log.Error("storage disabled", zap.Error(err))
	}
	var recordings svc.Storage
	if store.Enabled() {
		recordings = store
	}
	twilio := svc.NewTwilioService(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.PublicBaseURL, recordings)

	var leads agent.LeadSink
	if cfg.CRMWebhookURL != "" {
		leads = crm.NewClient(cfg.CRMWebhookURL)
	}

	registry := agent.NewRegistry()
	bridge := &agent.Bridge{
		Registry: registry,
		Calls:    twilio,
		Leads:    leads,
		DialEngine: func(ctx context.Context) (agent.Engine, error) {
			client := realtime.NewClient(realtime.Options{
				URL:    cfg.RealtimeURL,
				Model:  cfg.RealtimeModel,
				APIKey: cfg.OpenAIKey,
				Logger: log.Named("realtime"),
			})
			if err := client.Dial(ctx); err != nil {
				return nil, err
			}
			return client, nil
		},
		Options: agent.Options{
			Timers: agent.TimerConfig{
				IdleWarning:        cfg.IdleWarning,
				IdleHangup:         cfg.IdleHangup,
				MaxCall:            cfg.MaxCall,
				MaxCallWarningLead: cfg.MaxCallWarningLead,
				TerminationGrace:   cfg.TerminationGrace,
			},
			QuietInterval:      cfg.SpeechQuietInterval,
			ConflictRetryDelay: cfg.ConflictRetryDelay,
			RecordingWait:      cfg.RecordingWait,
			ReapDelay:          cfg.SessionReapDelay,
			PublicBaseURL:      cfg.PublicBaseURL,
			CountryCode:        cfg.CountryCode,
			Session: realtime.SessionConfig{
				Instructions:       engineInstructions,
				Voice:              cfg.Voice,
				TranscriptionModel: cfg.TranscriptionModel,
				Language:           cfg.TranscriptionLanguage,
			},
		},
		Logger: log.Named("agent"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := httpserver.New(twiliomw.TwilioAuthConfig{
		AuthToken:     func() string { return cfg.TwilioAuthToken },
		PublicBaseURL: cfg.PublicBaseURL,
		Validate:      cfg.TwilioValidateSignature,
		Logger:        log.Named("webhook"),
	})
	apihttp.Handlers{
		Twilio:   twilio,
		Registry: registry,
		Bridge:   bridge,
		Record:   cfg.RecordingEnabled && cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "",
		Archive:  store.Enabled(),
		Context:  ctx,
		Logger:   log.Named("http"),
	}.Register(e)

	srv := httpserver.Server{Addr: cfg.HTTPAddress, Handler: e, Logger: log}
	if err := srv.Run(ctx); err != nil {
		log.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}
