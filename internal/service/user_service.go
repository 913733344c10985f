package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/psicozen/psicozen-backend-sub003/internal/audit"
	"github.com/psicozen/psicozen-backend-sub003/internal/emociograma"
	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
	"github.com/psicozen/psicozen-backend-sub003/internal/util"
)

var (
	// ErrPapelInvalido indica papel fora do vocabulário aceito.
	ErrPapelInvalido = errors.New("papel inválido")
)

type userRepository interface {
	GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error)
	GetUsuarioByEmail(ctx context.Context, email string) (repo.Usuario, error)
	ListUsuarios(ctx context.Context, filter repo.ListUsuariosFilter) ([]repo.Usuario, error)
	InsertUsuario(ctx context.Context, arg repo.InsertUsuarioParams) (repo.Usuario, error)
	UpdateUsuario(ctx context.Context, arg repo.UpdateUsuarioParams) (repo.Usuario, error)
	AnonimizarTitular(ctx context.Context, id uuid.UUID) (repo.AnonimizacaoResult, error)
	DeleteTitular(ctx context.Context, id uuid.UUID) (int64, error)
	ListSessoesByUsuario(ctx context.Context, usuarioID uuid.UUID) ([]repo.TokenRefresh, error)
}

type submissionStore interface {
	ListByUsuario(ctx context.Context, usuarioID uuid.UUID, limit int) ([]emociograma.Registro, error)
}

type auditTrail interface {
	Record(ctx context.Context, input audit.RecordInput) (*audit.Entry, error)
	ListBySubject(ctx context.Context, sujeitoID uuid.UUID, limit int) ([]audit.Entry, error)
}

// UserService concentra ciclo de vida de usuários e fluxos LGPD.
type UserService struct {
	repo      userRepository
	registros submissionStore
	auditoria auditTrail
	identity  identityDirectory
}

// NewUserService cria nova instância. identity pode ser nil.
func NewUserService(r userRepository, registros submissionStore, auditoria auditTrail, identity identityDirectory) *UserService {
	return &UserService{repo: r, registros: registros, auditoria: auditoria, identity: identity}
}

// CreateUserInput encapsula cadastro explícito por administrador.
type CreateUserInput struct {
	OrgID     uuid.UUID
	Nome      string
	Sobrenome string
	Email     string
	Setor     *string
	Papeis    []string
}

// List lista usuários da organização.
func (s *UserService) List(ctx context.Context, filter repo.ListUsuariosFilter) ([]repo.Usuario, error) {
	return s.repo.ListUsuarios(ctx, filter)
}

// Get busca usuário pelo identificador.
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	return s.repo.GetUsuarioByID(ctx, id)
}

// Create cadastra usuário ativo imediatamente.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (repo.Usuario, error) {
	if err := util.ValidateEmail(input.Email); err != nil {
		return repo.Usuario{}, err
	}

	papeis, err := normalizePapeis(input.Papeis)
	if err != nil {
		return repo.Usuario{}, err
	}

	return s.repo.InsertUsuario(ctx, repo.InsertUsuarioParams{
		ID:        uuid.New(),
		OrgID:     input.OrgID,
		Nome:      strings.TrimSpace(input.Nome),
		Sobrenome: strings.TrimSpace(input.Sobrenome),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Setor:     input.Setor,
		Papeis:    papeis,
		Ativo:     true,
	})
}

// Update atualiza perfil, papéis e estado do usuário.
func (s *UserService) Update(ctx context.Context, arg repo.UpdateUsuarioParams) (repo.Usuario, error) {
	if arg.Papeis != nil {
		papeis, err := normalizePapeis(arg.Papeis)
		if err != nil {
			return repo.Usuario{}, err
		}
		arg.Papeis = papeis
	}
	return s.repo.UpdateUsuario(ctx, arg)
}

// ExportBundle agrega os dados do titular para portabilidade (LGPD art. 18).
type ExportBundle struct {
	Usuario   PerfilUsuario          `json:"usuario"`
	Registros []emociograma.Registro `json:"registros_emociograma"`
	Sessoes   []SessaoExport         `json:"sessoes"`
	Auditoria []audit.Entry          `json:"trilha_auditoria"`
	GeradoEm  time.Time              `json:"gerado_em"`
}

// SessaoExport expõe apenas metadados da sessão, nunca o hash do token.
type SessaoExport struct {
	ID        uuid.UUID `json:"id"`
	IP        *string   `json:"ip,omitempty"`
	UserAgent *string   `json:"user_agent,omitempty"`
	CriadoEm  time.Time `json:"criado_em"`
	Expiracao time.Time `json:"expiracao"`
}

// Export monta o pacote de dados do titular e registra a exportação.
func (s *UserService) Export(ctx context.Context, atorID *uuid.UUID, id uuid.UUID, ip *string) (*ExportBundle, error) {
	user, err := s.repo.GetUsuarioByID(ctx, id)
	if err != nil {
		return nil, err
	}

	registros, err := s.registros.ListByUsuario(ctx, id, 0)
	if err != nil {
		return nil, err
	}

	sessoes, err := s.repo.ListSessoesByUsuario(ctx, id)
	if err != nil {
		return nil, err
	}

	trilha, err := s.auditoria.ListBySubject(ctx, id, 0)
	if err != nil {
		return nil, err
	}

	bundle := &ExportBundle{
		Usuario:   NewPerfilUsuario(user),
		Registros: registros,
		Sessoes:   make([]SessaoExport, 0, len(sessoes)),
		Auditoria: trilha,
		GeradoEm:  time.Now().UTC(),
	}
	for _, sessao := range sessoes {
		bundle.Sessoes = append(bundle.Sessoes, SessaoExport{
			ID:        sessao.ID,
			IP:        sessao.IP,
			UserAgent: sessao.UserAgent,
			CriadoEm:  sessao.CriadoEm,
			Expiracao: sessao.Expiracao,
		})
	}

	if _, err := s.auditoria.Record(ctx, audit.RecordInput{
		OrgID:     user.OrgID,
		AtorID:    atorID,
		SujeitoID: id,
		Acao:      audit.AcaoExportacao,
		IP:        ip,
	}); err != nil {
		log.Warn().Err(err).Msg("usuários: auditoria de exportação falhou")
	}

	return bundle, nil
}

// Anonymize substitui dados pessoais por placeholders e preserva agregados.
// Os registros do emociograma mantêm nível, setor e datas; comentário e
// vínculo caem. A cascata roda numa única transação no repositório.
func (s *UserService) Anonymize(ctx context.Context, atorID *uuid.UUID, id uuid.UUID, ip *string) error {
	user, err := s.repo.GetUsuarioByID(ctx, id)
	if err != nil {
		return err
	}

	res, err := s.repo.AnonimizarTitular(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.auditoria.Record(ctx, audit.RecordInput{
		OrgID:     user.OrgID,
		AtorID:    atorID,
		SujeitoID: id,
		Acao:      audit.AcaoAnonimizacao,
		Detalhes: map[string]any{
			"registros_anonimizados": res.RegistrosAfetados,
			"sessoes_revogadas":      len(res.SessoesRevogadas),
		},
		IP: ip,
	}); err != nil {
		log.Warn().Err(err).Msg("usuários: auditoria de anonimização falhou")
	}

	return nil
}

// Delete remove o usuário e seus dados locais numa única transação; a
// identidade remota é apagada em best-effort e a exclusão local prossegue
// mesmo quando o provedor falha.
func (s *UserService) Delete(ctx context.Context, atorID *uuid.UUID, id uuid.UUID, ip *string) error {
	user, err := s.repo.GetUsuarioByID(ctx, id)
	if err != nil {
		return err
	}

	removidos, err := s.repo.DeleteTitular(ctx, id)
	if err != nil {
		return err
	}

	if s.identity != nil && user.SupabaseID != nil {
		if err := s.identity.DeleteUser(ctx, *user.SupabaseID); err != nil {
			log.Warn().Err(err).Msg("usuários: exclusão da identidade remota falhou, exclusão local mantida")
		}
	}

	if _, err := s.auditoria.Record(ctx, audit.RecordInput{
		OrgID:     user.OrgID,
		AtorID:    atorID,
		SujeitoID: id,
		Acao:      audit.AcaoExclusao,
		Detalhes:  map[string]any{"registros_removidos": removidos},
		IP:        ip,
	}); err != nil {
		log.Warn().Err(err).Msg("usuários: auditoria de exclusão falhou")
	}

	return nil
}

// AuditTrail lista a trilha de auditoria do titular.
func (s *UserService) AuditTrail(ctx context.Context, id uuid.UUID, limit int) ([]audit.Entry, error) {
	return s.auditoria.ListBySubject(ctx, id, limit)
}

func normalizePapeis(papeis []string) ([]string, error) {
	normalized := make([]string, 0, len(papeis))
	seen := make(map[string]struct{}, len(papeis))
	for _, papel := range papeis {
		papel = strings.ToUpper(strings.TrimSpace(papel))
		if papel == "" {
			continue
		}
		if papel != repo.PapelAdmin && papel != repo.PapelGestor && papel != repo.PapelColaborador {
			return nil, ErrPapelInvalido
		}
		if _, ok := seen[papel]; ok {
			continue
		}
		seen[papel] = struct{}{}
		normalized = append(normalized, papel)
	}
	if len(normalized) == 0 {
		normalized = []string{repo.PapelColaborador}
	}
	return normalized, nil
}
