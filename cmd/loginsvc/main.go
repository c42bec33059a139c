package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/appleboy/graceful"
	"github.com/rs/zerolog"

	"chayns-login-service/internal/browser"
	"chayns-login-service/internal/config"
	"chayns-login-service/internal/database"
	"chayns-login-service/internal/login"
	"chayns-login-service/internal/mail"
	"chayns-login-service/internal/register"
	"chayns-login-service/internal/server"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("failed to open database")
	}
	accounts := database.NewAccountRepository(db)
	attempts := database.NewAttemptRepository(db)

	chrome := &browser.Chrome{
		Headless:  cfg.Headless,
		RemoteURL: cfg.ChromeRemoteURL,
		UserAgent: cfg.UserAgent,
		Log:       log.With().Str("component", "browser").Logger(),
	}
	if cfg.ChromeRemoteURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := chrome.Ready(ctx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.ChromeRemoteURL).Msg("remote browser is not ready")
		}
	}

	loginFlow := login.New(chrome, login.Config{
		LoginURL:     cfg.LoginURL,
		IdentityURL:  cfg.IdentityURL,
		ElementWait:  cfg.ElementWait,
		TokenWait:    cfg.TokenWait,
		PollInterval: cfg.PollInterval,
		SettleDelay:  cfg.SettleDelay,
	}, log.With().Str("component", "login").Logger())

	mailLog := log.With().Str("component", "mail").Logger()
	newMailbox := func() *mail.Client {
		return mail.NewClient(mail.Config{
			BaseURL: cfg.DuckMailBaseURL,
			Domain:  cfg.DuckMailDomain,
			Timeout: cfg.MailTimeout,
		}, mailLog)
	}
	settings := register.NewSettingsClient(register.SettingsConfig{
		PostRegisterURL: cfg.PostRegisterURL,
		UserSettingsURL: cfg.UserSettingsURL,
		Timeout:         cfg.MailTimeout,
	}, log.With().Str("component", "settings").Logger())
	registerFlow := register.New(chrome, newMailbox, settings, accounts, register.Config{
		SiteURL:         cfg.RegisterSiteURL,
		Timeout:         cfg.RegisterTimeout,
		DefaultPassword: cfg.DefaultPassword,
		ElementWait:     cfg.ElementWait,
		TokenWait:       cfg.TokenWait,
		PollInterval:    cfg.PollInterval,
		SettleDelay:     cfg.SettleDelay,
		MailPollLimit:   cfg.MailPollLimit,
		MailPollWait:    cfg.MailPollWait,
	}, log.With().Str("component", "register").Logger())

	api := server.New(loginFlow, registerFlow, attempts, server.Config{
		MaxSessions: cfg.MaxSessions,
	}, log.With().Str("component", "http").Logger())

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: api.Handler(),
	}

	m := graceful.NewManager()

	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			log.Info().Str("addr", cfg.ServerAddr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("http server failed")
			}
		}()
		<-ctx.Done()
		return nil
	})

	m.AddShutdownJob(func() error {
		log.Info().Msg("shutting down http server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})

	m.AddShutdownJob(func() error {
		log.Info().Msg("closing database")
		return db.Close()
	})

	<-m.Done()
}
