package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/psicozen/psicozen-backend-sub003/internal/audit"
	"github.com/psicozen/psicozen-backend-sub003/internal/auth"
	"github.com/psicozen/psicozen-backend-sub003/internal/cleanup"
	"github.com/psicozen/psicozen-backend-sub003/internal/config"
	"github.com/psicozen/psicozen-backend-sub003/internal/db"
	internalhttp "github.com/psicozen/psicozen-backend-sub003/internal/http"
	"github.com/psicozen/psicozen-backend-sub003/internal/mail"
	"github.com/psicozen/psicozen-backend-sub003/internal/org"
	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
	"github.com/psicozen/psicozen-backend-sub003/internal/service"
	"github.com/psicozen/psicozen-backend-sub003/internal/supabase"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	repository := repo.New(pool)
	auditRepo := audit.NewRepository(pool)
	orgService := org.NewService(org.NewRepository(pool))
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL)

	var mailer mail.Mailer
	if m := mail.NewResendMailer(cfg.Mail.ResendAPIKey, cfg.Mail.From); m != nil {
		mailer = m
	} else {
		log.Warn().Msg("RESEND_API_KEY ausente, envio de e-mails desligado")
	}

	var identity *supabase.Client
	if cfg.Supabase.Enabled() {
		identity, err = supabase.New(supabase.Config{URL: cfg.Supabase.URL, ServiceKey: cfg.Supabase.ServiceKey})
		if err != nil {
			return fmt.Errorf("supabase: %w", err)
		}
	} else {
		log.Warn().Msg("credenciais Supabase ausentes, espelhamento de identidade desligado")
	}

	authService := newAuthService(cfg, repository, redisClient, jwtManager, mailer, orgService, identity, auditRepo)

	cleanupLogger := log.With().Str("component", "cleanup").Logger()
	cleanupService := cleanup.NewService(repository, auditRepo, cfg.Cleanup, cleanupLogger)
	if err := cleanupService.Start(ctx); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	defer cleanupService.Stop()

	handler, err := internalhttp.NewRouter(cfg, pool, redisClient, authService, orgService, identity, mailer)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("encerrando...")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newAuthService(
	cfg *config.Config,
	repository *repo.Queries,
	redisClient *redis.Client,
	jwtManager *auth.JWTManager,
	mailer mail.Mailer,
	orgService *org.Service,
	identity *supabase.Client,
	auditRepo *audit.Repository,
) *service.AuthService {
	magic := service.MagicLinkOptions{
		BaseURL:  cfg.MagicLink.BaseURL,
		TTL:      cfg.MagicLink.TTL,
		Cooldown: cfg.MagicLink.Cooldown,
	}
	if identity != nil {
		return service.NewAuthService(repository, redisClient, jwtManager, mailer, orgService, identity, auditRepo, magic, cfg.JWTRefreshTTL)
	}
	return service.NewAuthService(repository, redisClient, jwtManager, mailer, orgService, nil, auditRepo, magic, cfg.JWTRefreshTTL)
}
