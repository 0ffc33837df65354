package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/illegalcall/inquiry-relay/internal/api"
	"github.com/illegalcall/inquiry-relay/internal/config"
	"github.com/illegalcall/inquiry-relay/internal/keepalive"
	"github.com/illegalcall/inquiry-relay/internal/mailer"
	"github.com/illegalcall/inquiry-relay/internal/metrics"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()
	logger := newLogger(cfg.Log)

	logger.Info("Mail relay configured",
		"email_user", maskAddress(cfg.Mail.User),
		"password_loaded", cfg.Mail.Password != "",
		"smtp_host", cfg.Mail.Host,
		"smtp_port", cfg.Mail.Port,
	)
	if !cfg.Mail.HasCredentials() {
		logger.Warn("EMAIL_USER or EMAIL_PASS is not set; every submission will fail")
	}
	if cfg.Mail.Recipient == "" {
		logger.Warn("EMAIL_TO is not set; every submission will fail")
	}

	m := metrics.New()
	relay := mailer.NewSMTPMailer(cfg.Mail, logger)
	server := api.NewServer(cfg, relay, m, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Keepalive.Enabled() {
		pinger := keepalive.NewPinger(cfg.Keepalive.URL, cfg.Keepalive.Interval, logger, m)
		go pinger.Run(ctx)
	}

	// Graceful shutdown
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Server shutting down...")
		if err := server.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
			logger.Error("Server shutdown error", "error", err)
			os.Exit(1)
		}
	}
}
