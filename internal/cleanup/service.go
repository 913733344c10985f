package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/psicozen/psicozen-backend-sub003/internal/config"
)

// SessionPurger remove sessões expiradas ou revogadas.
type SessionPurger interface {
	PurgeSessoesExpiradas(ctx context.Context, before time.Time) (int64, error)
}

// AuditPurger aplica a política de retenção da trilha de auditoria.
type AuditPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service executa o expurgo periódico de sessões e auditoria.
// O estado de magic link expira sozinho via TTL no Redis.
type Service struct {
	sessions SessionPurger
	auditors AuditPurger
	cfg      config.CleanupConfig
	logger   zerolog.Logger

	once   sync.Once
	cancel context.CancelFunc
}

func NewService(sessions SessionPurger, auditors AuditPurger, cfg config.CleanupConfig, logger zerolog.Logger) *Service {
	return &Service{
		sessions: sessions,
		auditors: auditors,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start inicia loop periódico. Safe para chamar múltiplas vezes.
func (s *Service) Start(parent context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	s.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		s.cancel = cancel
		go s.runLoop(ctx)
	})
	return nil
}

// Stop encerra loop periódico.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Service) runLoop(ctx context.Context) {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("cleanup: loop iniciado")

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("cleanup: primeira execução falhou")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cleanup: loop encerrado")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("cleanup: execução periódica falhou")
			}
		}
	}
}

// RunOnce executa uma rodada de expurgo.
func (s *Service) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()

	sessoes, err := s.sessions.PurgeSessoesExpiradas(ctx, now)
	if err != nil {
		return fmt.Errorf("expurgo de sessões: %w", err)
	}
	if sessoes > 0 {
		s.logger.Info().Int64("sessoes", sessoes).Msg("cleanup: sessões expiradas removidas")
	}

	if s.cfg.AuditRetention > 0 {
		cutoff := now.Add(-s.cfg.AuditRetention)
		entradas, err := s.auditors.PurgeBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("expurgo de auditoria: %w", err)
		}
		if entradas > 0 {
			s.logger.Info().Int64("entradas", entradas).Msg("cleanup: auditoria fora da retenção removida")
		}
	}

	return nil
}
