package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/psicozen/psicozen-backend-sub003/internal/audit"
	"github.com/psicozen/psicozen-backend-sub003/internal/auth"
	"github.com/psicozen/psicozen-backend-sub003/internal/mail"
	"github.com/psicozen/psicozen-backend-sub003/internal/org"
	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
	"github.com/psicozen/psicozen-backend-sub003/internal/util"
)

var (
	// ErrMagicLinkInvalid indica token/código inválido, expirado ou já consumido.
	ErrMagicLinkInvalid = errors.New("link de acesso inválido")
	// ErrMagicLinkCooldown indica envio repetido dentro da janela de espera.
	ErrMagicLinkCooldown = errors.New("aguarde antes de solicitar novo link")
	// ErrAccountDisabled indica conta desativada.
	ErrAccountDisabled = errors.New("conta desativada")
	// ErrRefreshInvalid indica refresh token inválido ou expirado.
	ErrRefreshInvalid = errors.New("refresh token inválido")
)

type authRepository interface {
	GetUsuarioByEmail(ctx context.Context, email string) (repo.Usuario, error)
	GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error)
	InsertUsuario(ctx context.Context, arg repo.InsertUsuarioParams) (repo.Usuario, error)
	UpdateUsuario(ctx context.Context, arg repo.UpdateUsuarioParams) (repo.Usuario, error)
	SetUltimoLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	InsertRefreshToken(ctx context.Context, arg repo.InsertRefreshTokenParams) (repo.TokenRefresh, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (repo.TokenRefresh, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	ListSessoesByUsuario(ctx context.Context, usuarioID uuid.UUID) ([]repo.TokenRefresh, error)
	RevokeSessao(ctx context.Context, id, usuarioID uuid.UUID) (string, error)
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type orgResolver interface {
	Resolve(ctx context.Context, slug string) (*org.Organizacao, error)
	Get(ctx context.Context, id uuid.UUID) (*org.Organizacao, error)
}

type identityDirectory interface {
	EnsureUser(ctx context.Context, email string) (string, error)
	DeleteUser(ctx context.Context, id string) error
}

type auditRecorder interface {
	Record(ctx context.Context, input audit.RecordInput) (*audit.Entry, error)
}

// MagicLinkOptions parametriza a emissão dos links.
type MagicLinkOptions struct {
	BaseURL  string
	TTL      time.Duration
	Cooldown time.Duration
}

// AuthService concentra regras de autenticação passwordless e sessões.
type AuthService struct {
	repo       authRepository
	redis      redisCommander
	jwt        *auth.JWTManager
	mailer     mail.Mailer
	orgs       orgResolver
	identity   identityDirectory
	auditoria  auditRecorder
	magic      MagicLinkOptions
	refreshTTL time.Duration
}

// NewAuthService cria novo serviço. identity pode ser nil quando o espelhamento
// no provedor externo estiver desligado.
func NewAuthService(
	r authRepository,
	redisClient redisCommander,
	jwtMgr *auth.JWTManager,
	mailer mail.Mailer,
	orgs orgResolver,
	identity identityDirectory,
	auditoria auditRecorder,
	magic MagicLinkOptions,
	refreshTTL time.Duration,
) *AuthService {
	return &AuthService{
		repo:       r,
		redis:      redisClient,
		jwt:        jwtMgr,
		mailer:     mailer,
		orgs:       orgs,
		identity:   identity,
		auditoria:  auditoria,
		magic:      magic,
		refreshTTL: refreshTTL,
	}
}

// JWT expõe gerenciador de JWT (útil em middlewares).
func (s *AuthService) JWT() *auth.JWTManager {
	return s.jwt
}

// magicState é o payload pendente guardado no Redis até o callback.
type magicState struct {
	Email    string `json:"email"`
	CodeHash string `json:"code_hash"`
	OrgSlug  string `json:"org_slug,omitempty"`
}

// SendMagicLink gera token de uso único e envia o e-mail de acesso.
// Não revela se o e-mail está cadastrado; orgSlug só é usado no primeiro acesso.
func (s *AuthService) SendMagicLink(ctx context.Context, email, orgSlug string) error {
	if err := util.ValidateEmail(email); err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))

	if s.magic.Cooldown > 0 {
		ok, err := s.redis.SetNX(ctx, auth.MagicCooldownRedisKey(email), "1", s.magic.Cooldown).Result()
		if err != nil {
			return err
		}
		if !ok {
			return ErrMagicLinkCooldown
		}
	}

	_, err := s.repo.GetUsuarioByEmail(ctx, email)
	isNew := errors.Is(err, repo.ErrNotFound)
	if err != nil && !isNew {
		return err
	}
	if isNew && strings.TrimSpace(orgSlug) == "" {
		// E-mail desconhecido sem organização: responde sucesso sem enviar nada.
		log.Warn().Msg("magic link: e-mail desconhecido sem organização, envio suprimido")
		return nil
	}
	if isNew {
		if _, err := s.orgs.Resolve(ctx, orgSlug); err != nil {
			log.Warn().Err(err).Msg("magic link: organização desconhecida, envio suprimido")
			return nil
		}
	}

	rawToken, tokenHash, err := auth.GenerateMagicToken()
	if err != nil {
		return err
	}
	code, codeHash, err := auth.GenerateOTPCode()
	if err != nil {
		return err
	}

	state := magicState{Email: email, CodeHash: codeHash}
	if isNew {
		state.OrgSlug = strings.TrimSpace(orgSlug)
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, auth.MagicTokenRedisKey(tokenHash), payload, s.magic.TTL).Err(); err != nil {
		return err
	}
	if err := s.redis.Set(ctx, auth.MagicEmailRedisKey(email), tokenHash, s.magic.TTL).Err(); err != nil {
		return err
	}

	if s.mailer == nil {
		log.Warn().Msg("magic link: mailer desligado, e-mail não enviado")
		return nil
	}

	msg := mail.MagicLinkMessage(email, s.magic.BaseURL, rawToken, code, s.magic.TTL)
	if err := s.mailer.Send(ctx, msg); err != nil {
		return err
	}

	log.Info().Msg("magic link enviado")
	return nil
}

// VerifyInput carrega as formas aceitas de callback: token do link ou e-mail+código.
type VerifyInput struct {
	Token     string
	Email     string
	Code      string
	IP        *string
	UserAgent *string
}

// LoginResult representa retorno padrão de autenticações.
type LoginResult struct {
	AccessToken   string
	RefreshToken  string
	Usuario       repo.Usuario
	RefreshExpiry time.Time
}

// VerifyMagicLink consome o token (ou e-mail+código) e abre sessão.
func (s *AuthService) VerifyMagicLink(ctx context.Context, input VerifyInput) (*LoginResult, error) {
	var tokenHash string
	switch {
	case strings.TrimSpace(input.Token) != "":
		tokenHash = auth.HashRefreshToken(strings.TrimSpace(input.Token))
	case strings.TrimSpace(input.Email) != "" && strings.TrimSpace(input.Code) != "":
		hash, err := s.redis.Get(ctx, auth.MagicEmailRedisKey(input.Email)).Result()
		if err == redis.Nil {
			return nil, ErrMagicLinkInvalid
		}
		if err != nil {
			return nil, err
		}
		tokenHash = hash
	default:
		return nil, ErrMagicLinkInvalid
	}

	raw, err := s.redis.Get(ctx, auth.MagicTokenRedisKey(tokenHash)).Result()
	if err == redis.Nil {
		return nil, ErrMagicLinkInvalid
	}
	if err != nil {
		return nil, err
	}

	var state magicState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, ErrMagicLinkInvalid
	}

	if strings.TrimSpace(input.Token) == "" {
		ok, err := auth.VerifyOTPCode(input.Code, state.CodeHash)
		if err != nil || !ok {
			return nil, ErrMagicLinkInvalid
		}
	}

	// Uso único: remove o estado antes de emitir tokens.
	if err := s.redis.Del(ctx, auth.MagicTokenRedisKey(tokenHash), auth.MagicEmailRedisKey(state.Email)).Err(); err != nil && err != redis.Nil {
		return nil, err
	}

	user, err := s.repo.GetUsuarioByEmail(ctx, state.Email)
	if errors.Is(err, repo.ErrNotFound) {
		user, err = s.createOnFirstLogin(ctx, state)
	}
	if err != nil {
		return nil, err
	}

	if !user.Ativo {
		return nil, ErrAccountDisabled
	}

	s.ensureIdentity(ctx, &user)

	return s.openSession(ctx, user, input.IP, input.UserAgent)
}

// createOnFirstLogin registra usuário no primeiro acesso bem-sucedido.
func (s *AuthService) createOnFirstLogin(ctx context.Context, state magicState) (repo.Usuario, error) {
	if state.OrgSlug == "" {
		return repo.Usuario{}, ErrMagicLinkInvalid
	}

	organizacao, err := s.orgs.Resolve(ctx, state.OrgSlug)
	if err != nil {
		return repo.Usuario{}, ErrMagicLinkInvalid
	}

	return s.repo.InsertUsuario(ctx, repo.InsertUsuarioParams{
		ID:     uuid.New(),
		OrgID:  organizacao.ID,
		Nome:   "",
		Email:  state.Email,
		Papeis: []string{repo.PapelColaborador},
		Ativo:  true,
	})
}

// ensureIdentity espelha a identidade no provedor externo (best-effort).
func (s *AuthService) ensureIdentity(ctx context.Context, user *repo.Usuario) {
	if s.identity == nil || user.SupabaseID != nil {
		return
	}

	remoteID, err := s.identity.EnsureUser(ctx, user.Email)
	if err != nil {
		log.Warn().Err(err).Msg("auth: espelhamento de identidade falhou")
		return
	}

	updated, err := s.repo.UpdateUsuario(ctx, repo.UpdateUsuarioParams{ID: user.ID, SupabaseID: &remoteID})
	if err != nil {
		log.Warn().Err(err).Msg("auth: persistência do id externo falhou")
		return
	}
	*user = updated
}

func (s *AuthService) openSession(ctx context.Context, user repo.Usuario, ip, userAgent *string) (*LoginResult, error) {
	token, _, err := s.jwt.GenerateAccessToken(user.ID.String(), user.OrgID.String(), user.Papeis)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expires := now.Add(s.refreshTTL)

	if _, err := s.repo.InsertRefreshToken(ctx, repo.InsertRefreshTokenParams{
		ID:        uuid.New(),
		UsuarioID: user.ID,
		TokenHash: refreshHash,
		Expiracao: expires,
		IP:        ip,
		UserAgent: userAgent,
		CriadoEm:  now,
	}); err != nil {
		return nil, err
	}

	if err := s.redis.Set(ctx, auth.RefreshRedisKey(refreshHash), "active", time.Until(expires)).Err(); err != nil {
		return nil, err
	}

	if err := s.repo.SetUltimoLogin(ctx, user.ID, now); err != nil {
		log.Warn().Err(err).Msg("auth: atualização de último login falhou")
	}

	if s.auditoria != nil {
		if _, err := s.auditoria.Record(ctx, audit.RecordInput{
			OrgID:     user.OrgID,
			AtorID:    &user.ID,
			SujeitoID: user.ID,
			Acao:      audit.AcaoLogin,
			IP:        ip,
		}); err != nil {
			log.Warn().Err(err).Msg("auth: registro de auditoria de login falhou")
		}
	}

	return &LoginResult{
		AccessToken:   token,
		RefreshToken:  rawRefresh,
		Usuario:       user,
		RefreshExpiry: expires,
	}, nil
}

// Refresh troca refresh token por um novo par de tokens.
func (s *AuthService) Refresh(ctx context.Context, rawToken string, ip, userAgent *string) (*LoginResult, error) {
	if rawToken == "" {
		return nil, ErrRefreshInvalid
	}

	hash := auth.HashRefreshToken(rawToken)
	record, err := s.repo.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	if record.Revogado || time.Now().UTC().After(record.Expiracao) {
		return nil, ErrRefreshInvalid
	}

	redisKey := auth.RefreshRedisKey(hash)
	status, err := s.redis.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}
	if status != "active" {
		return nil, ErrRefreshInvalid
	}

	user, err := s.repo.GetUsuarioByID(ctx, record.UsuarioID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}
	if !user.Ativo {
		return nil, ErrAccountDisabled
	}

	result, err := s.openSession(ctx, user, ip, userAgent)
	if err != nil {
		return nil, err
	}

	// Revoga token anterior (DB + Redis).
	if err := s.repo.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if err := s.redis.Del(ctx, redisKey).Err(); err != nil && err != redis.Nil {
		return nil, err
	}

	return result, nil
}

// Logout revoga refresh token atual. Idempotente.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	hash := auth.HashRefreshToken(rawToken)
	if err := s.repo.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err := s.redis.Del(ctx, auth.RefreshRedisKey(hash)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// GetMe retorna o usuário autenticado.
func (s *AuthService) GetMe(ctx context.Context, subject uuid.UUID) (repo.Usuario, error) {
	return s.repo.GetUsuarioByID(ctx, subject)
}

// ListSessoes lista sessões ativas do usuário.
func (s *AuthService) ListSessoes(ctx context.Context, usuarioID uuid.UUID) ([]repo.TokenRefresh, error) {
	return s.repo.ListSessoesByUsuario(ctx, usuarioID)
}

// RevokeSessao revoga uma sessão específica do próprio usuário.
func (s *AuthService) RevokeSessao(ctx context.Context, usuarioID, sessaoID uuid.UUID) error {
	hash, err := s.repo.RevokeSessao(ctx, sessaoID, usuarioID)
	if err != nil {
		return err
	}
	if err := s.redis.Del(ctx, auth.RefreshRedisKey(hash)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}
