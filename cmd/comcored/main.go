package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/comcore-chat/comcore-server/internal/code"
	"github.com/comcore-chat/comcore-server/internal/config"
	"github.com/comcore-chat/comcore-server/internal/conn"
	"github.com/comcore-chat/comcore-server/internal/crypto"
	"github.com/comcore-chat/comcore-server/internal/dispatch"
	"github.com/comcore-chat/comcore-server/internal/mailer"
	"github.com/comcore-chat/comcore-server/internal/registry"
	"github.com/comcore-chat/comcore-server/internal/store/postgres"
	"github.com/comcore-chat/comcore-server/internal/valkey"
	"github.com/comcore-chat/comcore-server/internal/webui"
)

// Build metadata injected via ldflags at compile time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	log.Info().Str("version", version).Str("commit", commit).Str("env", cfg.ServerEnv).Msg("starting comcored")

	ctx := context.Background()

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("postgres connected")

	if err := postgres.Migrate(cfg.DatabaseURL, log.Logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("database migrations complete")

	st := postgres.New(db, log.Logger)

	hasher := crypto.NewHasher(crypto.Params{
		Memory:      cfg.Argon2Memory,
		Iterations:  cfg.Argon2Iterations,
		Parallelism: cfg.Argon2Parallelism,
		SaltLength:  cfg.Argon2SaltLength,
		KeyLength:   cfg.Argon2KeyLength,
	})

	var sender code.Sender
	if cfg.SMTPConfigured() {
		smtpSender := mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, cfg.ServerName)
		if err := smtpSender.Ping(); err != nil {
			log.Warn().Err(err).Msg("SMTP connection test failed, confirmation emails may not be delivered")
		} else {
			log.Info().Str("host", cfg.SMTPHost).Int("port", cfg.SMTPPort).Msg("SMTP connection verified")
		}
		sender = smtpSender
	} else {
		log.Warn().Msg("SMTP_HOST not configured, confirmation codes will only be logged to the console")
		sender = mailer.NewConsoleSender(log.Logger)
	}

	codes := code.New(cfg.CodeLifetime, cfg.CodeMaxFails, sender, log.Logger)

	var rdb *redis.Client
	if cfg.ValkeyURL != "" {
		rdb, err = valkey.Connect(ctx, cfg.ValkeyURL, 5*time.Second)
		if err != nil {
			return fmt.Errorf("connect valkey: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		log.Info().Msg("valkey connected")
		codes.UseDistributedFailCounter(code.NewValkeyFailCounter(rdb, "comcore:codefail:"))
	} else {
		log.Info().Msg("VALKEY_URL not configured, confirmation-code fail counts are process-local only")
	}

	reg := registry.New()
	disp := dispatch.New(st, cfg.MaxMessagesPerPage, cfg.UploadDir, cfg.MaxUploadSizeBytes())

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	deps := conn.Deps{
		Store:      st,
		Codes:      codes,
		Registry:   reg,
		Dispatcher: disp,
		Hasher:     hasher,
		Log:        log.Logger,
	}

	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()

	var tlsServer *conn.Server
	if cfg.IsDevelopment() && (cfg.TLSCertPath == "" || cfg.TLSKeyPath == "") {
		log.Warn().Msg("TLS_CERT_PATH/TLS_KEY_PATH not set in development mode, the protocol listener will not start")
	} else {
		addr := fmt.Sprintf(":%d", cfg.TLSPort)
		tlsServer, err = conn.Listen(deps, addr, cfg.TLSCertPath, cfg.TLSKeyPath)
		if err != nil {
			return fmt.Errorf("listen tls: %w", err)
		}
		log.Info().Str("addr", tlsServer.Addr().String()).Msg("protocol listener ready")
		go func() {
			if err := tlsServer.Serve(subCtx); err != nil {
				log.Error().Err(err).Msg("protocol listener stopped")
			}
		}()
	}

	ui := webui.New(st, cfg.ServerName, cfg.UploadDir, cfg.InviteLinkGracePeriod, log.Logger)
	app := fiber.New(fiber.Config{AppName: cfg.ServerName})
	ui.Register(app)

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	go func() {
		if err := app.Listen(httpAddr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
			log.Error().Err(err).Msg("web ui listener stopped")
		}
	}()
	log.Info().Str("addr", httpAddr).Msg("web ui listener ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	subCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if tlsServer != nil {
		tlsServer.Shutdown(shutdownCtx)
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("web ui shutdown error")
	}

	return nil
}
