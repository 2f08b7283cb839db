package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"role-chatter/internal/analytics"
	"role-chatter/internal/config"
	"role-chatter/internal/dialogue"
	"role-chatter/internal/history"
	"role-chatter/internal/llm"
	"role-chatter/internal/logger"
	"role-chatter/internal/metrics"
	"role-chatter/internal/persona"
	"role-chatter/internal/ratelimit"
	"role-chatter/internal/scheduler"
	"role-chatter/internal/session"
	"role-chatter/internal/storage"
	"role-chatter/internal/telegram"
)

const serviceName = "role-chatter"

func main() {
	envErr := godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(serviceName, "info")
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(serviceName, cfg.LogLevel)
	if envErr != nil {
		log.Debug().Err(envErr).Msg(".env file not loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer srv.Close()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint enabled")
	}

	personas, err := persona.Load(cfg.PersonasPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.PersonasPath).Msg("failed to load personas")
	}
	log.Info().Int("count", personas.Len()).Msg("personas loaded")

	provider, err := llm.NewFactory(cfg).CreateProvider(string(cfg.LLMProvider))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create llm provider")
	}
	provider = llm.WithRetry(provider, llm.RetryConfig{
		MaxAttempts:  cfg.ProviderRetryAttempts,
		InitialDelay: cfg.ProviderRetryDelay,
		MaxDelay:     llm.DefaultRetryConfig.MaxDelay,
	})
	provider = llm.Instrument(provider, m)

	var rec storage.Recorder
	if cfg.LogFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			log.Warn().Err(err).Msg("failed to init interaction log")
		} else {
			rec = fr
		}
	}

	bot, err := telegram.New(cfg.TelegramBotToken, telegram.Limits{
		Voice: cfg.MaxVoiceBytes,
		Image: cfg.MaxImageBytes,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create bot")
	}

	orch := dialogue.New(dialogue.Deps{
		Personas: personas,
		History:  history.NewStore(cfg.MaxHistoryLength, cfg.HistoryExpiry(), log),
		Sessions: session.NewStore(),
		Limits: ratelimit.NewSet(ratelimit.Quotas{
			Chat:          cfg.RateLimitChat,
			Vision:        cfg.RateLimitVision,
			Transcription: cfg.RateLimitTranscription,
			Synthesis:     cfg.RateLimitSynthesis,
		}, ratelimit.WithObserver(m)),
		Provider: provider,
		Sink:     bot,
		Recorder: rec,
	}, dialogue.Options{
		MaxVoiceBytes:     cfg.MaxVoiceBytes,
		MaxImageBytes:     cfg.MaxImageBytes,
		ProviderTimeout:   cfg.ProviderTimeout,
		ReplyVoiceToVoice: cfg.ReplyVoiceToVoice,
	}, log)

	dispatcher := dialogue.NewDispatcher(context.WithoutCancel(ctx), orch, bot, log)

	sched := startReports(cfg, rec, bot, log)
	if sched != nil {
		defer sched.Stop()
	}

	log.Info().Str("provider", string(cfg.LLMProvider)).Msg("bot started")
	if err := bot.Run(ctx, dispatcher); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("bot stopped with error")
	}
	dispatcher.Close()
	log.Info().Msg("bot stopped")
}

// startReports schedules the daily usage report for the admin. It needs both
// an admin and an interaction log.
func startReports(cfg *config.Config, rec storage.Recorder, sink dialogue.Sink, log zerolog.Logger) *scheduler.Scheduler {
	if cfg.AdminUserID == 0 || rec == nil {
		return nil
	}
	s := scheduler.New(cfg.DailyReportCron, log)
	s.SetReportFunction(func(ctx context.Context) error {
		summary, err := analytics.DailyReport(rec, time.Now().UTC())
		if err != nil {
			return err
		}
		return sink.SendText(ctx, cfg.AdminUserID, summary)
	})
	if err := s.Start(); err != nil {
		log.Error().Err(err).Msg("failed to start report scheduler")
		return nil
	}
	return s
}
