package emociograma

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/psicozen/psicozen-backend-sub003/internal/config"
	"github.com/psicozen/psicozen-backend-sub003/internal/mail"
	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
)

// Store abstrai a persistência do emociograma.
type Store interface {
	CreateRegistro(ctx context.Context, input CreateRegistroInput) (*Registro, error)
	ListByUsuario(ctx context.Context, usuarioID uuid.UUID, limit int) ([]Registro, error)
	ResumoByOrg(ctx context.Context, orgID uuid.UUID, de, ate time.Time) ([]ResumoDia, error)
	InsertAlerta(ctx context.Context, orgID, registroID uuid.UUID, severidade string) (*Alerta, error)
	MarkNotificados(ctx context.Context, alertaID uuid.UUID, emails []string) error
	ListAlertas(ctx context.Context, orgID uuid.UUID, somenteAbertos bool, limit int) ([]Alerta, error)
	ResolverAlerta(ctx context.Context, id, resolvidoPor uuid.UUID, nota *string) (*Alerta, error)
	LastAlertaForUsuarioSince(ctx context.Context, usuarioID uuid.UUID, since time.Time) (*Alerta, error)
}

// Diretorio expõe a consulta de usuários necessária para o alerta.
type Diretorio interface {
	GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error)
	ListGestoresByOrg(ctx context.Context, orgID uuid.UUID) ([]repo.Usuario, error)
}

// Service concentra regras do emociograma e do alerta a gestores.
type Service struct {
	store     Store
	diretorio Diretorio
	mailer    mail.Mailer
	cfg       config.AlertConfig
	logger    zerolog.Logger
}

// NewService cria nova instância. mailer pode ser nil (alertas só persistidos).
func NewService(store Store, diretorio Diretorio, mailer mail.Mailer, cfg config.AlertConfig, logger zerolog.Logger) *Service {
	return &Service{store: store, diretorio: diretorio, mailer: mailer, cfg: cfg, logger: logger}
}

// CriarRegistro registra o check-in do dia e dispara o fluxo de alerta.
// Falhas no alerta nunca derrubam o registro já persistido.
func (s *Service) CriarRegistro(ctx context.Context, input CreateRegistroInput) (*Registro, error) {
	if input.Nivel < 1 || input.Nivel > 5 {
		return nil, ErrNivelInvalido
	}
	if input.Comentario != nil {
		trimmed := strings.TrimSpace(*input.Comentario)
		if trimmed == "" {
			input.Comentario = nil
		} else {
			input.Comentario = &trimmed
		}
	}

	registro, err := s.store.CreateRegistro(ctx, input)
	if err != nil {
		return nil, err
	}

	s.avaliarAlerta(ctx, registro)

	return registro, nil
}

// ListMeus lista o histórico do próprio colaborador.
func (s *Service) ListMeus(ctx context.Context, usuarioID uuid.UUID, limit int) ([]Registro, error) {
	return s.store.ListByUsuario(ctx, usuarioID, limit)
}

// ResumoEquipe agrega registros da organização no período informado.
func (s *Service) ResumoEquipe(ctx context.Context, orgID uuid.UUID, de, ate time.Time) ([]ResumoDia, error) {
	if ate.IsZero() {
		ate = time.Now().UTC()
	}
	if de.IsZero() {
		de = ate.AddDate(0, 0, -30)
	}
	return s.store.ResumoByOrg(ctx, orgID, de, ate)
}

// Alertas lista alertas da organização.
func (s *Service) Alertas(ctx context.Context, orgID uuid.UUID, somenteAbertos bool, limit int) ([]Alerta, error) {
	return s.store.ListAlertas(ctx, orgID, somenteAbertos, limit)
}

// Resolver marca alerta como resolvido.
func (s *Service) Resolver(ctx context.Context, alertaID, resolvidoPor uuid.UUID, nota *string) (*Alerta, error) {
	if nota != nil {
		trimmed := strings.TrimSpace(*nota)
		if trimmed == "" {
			nota = nil
		} else {
			nota = &trimmed
		}
	}
	return s.store.ResolverAlerta(ctx, alertaID, resolvidoPor, nota)
}

// avaliarAlerta decide severidade, persiste o alerta e notifica gestores.
// Só cria alerta quando a organização tem ao menos um gestor elegível.
func (s *Service) avaliarAlerta(ctx context.Context, registro *Registro) {
	severidade := s.severidade(registro.Nivel)
	if severidade == "" {
		return
	}

	if registro.UsuarioID != nil && s.cfg.Throttle > 0 {
		since := time.Now().Add(-s.cfg.Throttle)
		_, err := s.store.LastAlertaForUsuarioSince(ctx, *registro.UsuarioID, since)
		switch {
		case err == nil:
			s.logger.Info().Str("registro", registro.ID.String()).Msg("emociograma: alerta suprimido por throttle")
			return
		case !errors.Is(err, ErrAlertaNotFound):
			// Falha na consulta não bloqueia o alerta, mas precisa aparecer.
			s.logger.Error().Err(err).Msg("emociograma: consulta de throttle falhou")
		}
	}

	gestores, err := s.diretorio.ListGestoresByOrg(ctx, registro.OrgID)
	if err != nil {
		s.logger.Error().Err(err).Msg("emociograma: busca de gestores falhou")
		return
	}

	elegiveis := make([]repo.Usuario, 0, len(gestores))
	for _, g := range gestores {
		if registro.UsuarioID != nil && g.ID == *registro.UsuarioID {
			continue
		}
		elegiveis = append(elegiveis, g)
	}
	if len(elegiveis) == 0 {
		s.logger.Warn().Str("org", registro.OrgID.String()).Msg("emociograma: organização sem gestores, alerta não criado")
		return
	}

	alerta, err := s.store.InsertAlerta(ctx, registro.OrgID, registro.ID, severidade)
	if err != nil {
		s.logger.Error().Err(err).Msg("emociograma: persistência do alerta falhou")
		return
	}

	if s.mailer == nil {
		s.logger.Warn().Msg("emociograma: mailer desligado, gestores não notificados")
		return
	}

	colaborador := ""
	if !registro.Anonimo && registro.UsuarioID != nil {
		if u, err := s.diretorio.GetUsuarioByID(ctx, *registro.UsuarioID); err == nil {
			colaborador = strings.TrimSpace(u.Nome + " " + u.Sobrenome)
		}
	}

	setor := ""
	if registro.Setor != nil {
		setor = *registro.Setor
	}

	// Envio sequencial por destinatário: falha parcial registra só quem recebeu.
	var notificados []string
	for _, gestor := range elegiveis {
		msg := mail.AlertMessage([]string{gestor.Email}, severidade, colaborador, setor, registro.Nivel, registro.CriadoEm)
		if err := s.mailer.Send(ctx, msg); err != nil {
			s.logger.Error().Err(err).Str("gestor", gestor.Email).Msg("emociograma: envio de alerta falhou")
			continue
		}
		notificados = append(notificados, gestor.Email)
	}

	if err := s.store.MarkNotificados(ctx, alerta.ID, notificados); err != nil {
		s.logger.Error().Err(err).Msg("emociograma: gravação de notificados falhou")
	}
}

func (s *Service) severidade(nivel int) string {
	switch {
	case s.cfg.NivelCritico > 0 && nivel <= s.cfg.NivelCritico:
		return SeveridadeCritica
	case s.cfg.NivelAtencao > 0 && nivel <= s.cfg.NivelAtencao:
		return SeveridadeAtencao
	default:
		return ""
	}
}
