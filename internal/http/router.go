package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/psicozen/psicozen-backend-sub003/internal/audit"
	"github.com/psicozen/psicozen-backend-sub003/internal/config"
	"github.com/psicozen/psicozen-backend-sub003/internal/emociograma"
	httpmiddleware "github.com/psicozen/psicozen-backend-sub003/internal/http/middleware"
	"github.com/psicozen/psicozen-backend-sub003/internal/mail"
	"github.com/psicozen/psicozen-backend-sub003/internal/org"
	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
	"github.com/psicozen/psicozen-backend-sub003/internal/service"
	"github.com/psicozen/psicozen-backend-sub003/internal/supabase"
	"github.com/psicozen/psicozen-backend-sub003/internal/util"
)

type Handler struct {
	cfg           *config.Config
	pool          *pgxpool.Pool
	redis         *redis.Client
	authService   *service.AuthService
	users         *service.UserService
	orgs          *org.Service
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
	devCookies    bool
}

// NewRouter devolve roteador configurado.
func NewRouter(
	cfg *config.Config,
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	authService *service.AuthService,
	orgService *org.Service,
	identity *supabase.Client,
	mailer mail.Mailer,
) (http.Handler, error) {
	devCookies := false
	for _, origin := range cfg.AllowOrigins {
		if strings.Contains(origin, "localhost") {
			devCookies = true
			break
		}
	}

	queries := repo.New(pool)
	auditRepo := audit.NewRepository(pool)
	emocioRepo := emociograma.NewRepository(pool)

	emocioLogger := log.With().Str("component", "emociograma").Logger()
	emocioService := emociograma.NewService(emocioRepo, queries, mailer, cfg.Alert, emocioLogger)
	emocioHandler := emociograma.NewHandler(emocioService)

	var userService *service.UserService
	if identity != nil {
		userService = service.NewUserService(queries, emocioRepo, auditRepo, identity)
	} else {
		userService = service.NewUserService(queries, emocioRepo, auditRepo, nil)
	}

	h := &Handler{
		cfg:           cfg,
		pool:          pool,
		redis:         redisClient,
		authService:   authService,
		users:         userService,
		orgs:          orgService,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
		devCookies:    devCookies,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Get("/health", h.Health)
		public.Get("/ready", h.Ready)

		public.Route("/auth", func(auth chi.Router) {
			auth.Post("/magic-link", h.SendMagicLink)
			auth.Post("/callback", h.AuthCallback)
			auth.Post("/refresh", h.Refresh)
			auth.Post("/logout", h.Logout)
		})
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(authService.JWT()))
		private.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		private.Get("/me", h.Me)
		private.Route("/me/sessoes", func(s chi.Router) {
			s.Get("/", h.ListMySessions)
			s.Delete("/{id}", h.RevokeMySession)
		})

		emociograma.Mount(private, emocioHandler)

		private.Route("/users", func(u chi.Router) {
			u.With(httpmiddleware.RequireRoles("ADMIN", "GESTOR")).Get("/", h.ListUsers)
			u.With(httpmiddleware.RequireAdmin).Post("/", h.CreateUser)
			u.With(httpmiddleware.RequireAdmin).Patch("/{id}", h.UpdateUser)

			// O titular sempre acessa os próprios dados; a checagem
			// ADMIN/titular acontece no handler.
			u.Get("/{id}", h.GetUser)
			u.Delete("/{id}", h.DeleteUser)
			u.Get("/{id}/export", h.ExportUser)
			u.Post("/{id}/anonymize", h.AnonymizeUser)
			u.Get("/{id}/audit-trail", h.UserAuditTrail)
		})

		private.Route("/orgs", func(o chi.Router) {
			o.Use(httpmiddleware.RequireAdmin)
			o.Get("/", h.ListOrgs)
			o.Post("/", h.CreateOrg)
			o.Get("/{id}", h.GetOrg)
			o.Put("/{id}/settings", h.UpdateOrgSettings)
		})
	})

	return r, nil
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida conexões com Postgres e Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbErr := h.pool.Ping(ctx)
	redisErr := h.redis.Ping(ctx).Err()

	if dbErr != nil || redisErr != nil {
		WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "dependências indisponíveis", map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// SendMagicLink inicia autenticação passwordless por e-mail.
// Responde sempre 202 para não revelar cadastro.
func (h *Handler) SendMagicLink(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
		Org   string `json:"org"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	err := h.authService.SendMagicLink(r.Context(), payload.Email, payload.Org)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusAccepted, map[string]string{"status": "enviado"})
	case errors.Is(err, service.ErrMagicLinkCooldown):
		w.Header().Set("Retry-After", "60")
		WriteError(w, http.StatusTooManyRequests, "RATE_LIMIT", err.Error(), nil)
	case errors.Is(err, util.ErrEmailInvalido):
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	default:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro ao enviar link", nil)
	}
}

// AuthCallback troca o token do link (ou e-mail+código) por sessão.
func (h *Handler) AuthCallback(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token string `json:"token"`
		Email string `json:"email"`
		Code  string `json:"code"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	result, err := h.authService.VerifyMagicLink(r.Context(), service.VerifyInput{
		Token:     payload.Token,
		Email:     payload.Email,
		Code:      payload.Code,
		IP:        requestIP(r),
		UserAgent: requestUserAgent(r),
	})
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.writeLoginSuccess(w, result)
}

// Refresh troca refresh token por novo par de tokens.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := getRefreshFromRequest(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "refresh ausente", nil)
		return
	}

	result, err := h.authService.Refresh(r.Context(), token, requestIP(r), requestUserAgent(r))
	if err != nil {
		if errors.Is(err, service.ErrRefreshInvalid) {
			WriteError(w, http.StatusUnauthorized, "AUTH", "refresh inválido", nil)
			return
		}
		if errors.Is(err, service.ErrAccountDisabled) {
			WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro ao renovar sessão", nil)
		return
	}

	h.writeLoginSuccess(w, result)
}

// Logout revoga refresh token atual.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, err := getRefreshFromRequest(r); err == nil {
		_ = h.authService.Logout(r.Context(), token)
	}

	h.clearRefreshCookie(w)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me retorna informações do usuário autenticado.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	subject, err := h.subjectUUID(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "subject inválido", nil)
		return
	}

	user, err := h.authService.GetMe(r.Context(), subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "usuário não encontrado", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar perfil", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"user":  service.NewPerfilUsuario(user),
		"roles": user.Papeis,
	})
}

// ListMySessions lista sessões ativas do próprio usuário.
func (h *Handler) ListMySessions(w http.ResponseWriter, r *http.Request) {
	subject, err := h.subjectUUID(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "subject inválido", nil)
		return
	}

	sessoes, err := h.authService.ListSessoes(r.Context(), subject)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível listar sessões", nil)
		return
	}

	items := make([]map[string]any, 0, len(sessoes))
	for _, s := range sessoes {
		items = append(items, map[string]any{
			"id":         s.ID,
			"ip":         s.IP,
			"user_agent": s.UserAgent,
			"criado_em":  s.CriadoEm,
			"expiracao":  s.Expiracao,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]any{"sessoes": items})
}

// RevokeMySession revoga uma sessão específica do próprio usuário.
func (h *Handler) RevokeMySession(w http.ResponseWriter, r *http.Request) {
	subject, err := h.subjectUUID(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "subject inválido", nil)
		return
	}

	sessaoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := h.authService.RevokeSessao(r.Context(), subject, sessaoID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "sessão não encontrada", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível revogar sessão", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "revogada"})
}

func (h *Handler) handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrMagicLinkInvalid):
		WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, service.ErrAccountDisabled):
		WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	default:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro ao autenticar", nil)
	}
}

func (h *Handler) writeLoginSuccess(w http.ResponseWriter, result *service.LoginResult) {
	h.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiry)

	WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": result.AccessToken,
		"user":         service.NewPerfilUsuario(result.Usuario),
	})
}

func (h *Handler) subjectUUID(r *http.Request) (uuid.UUID, error) {
	subjectStr := httpmiddleware.GetSubject(r.Context())
	if strings.TrimSpace(subjectStr) == "" {
		return uuid.Nil, errors.New("subject ausente")
	}
	subject, err := uuid.Parse(subjectStr)
	if err != nil {
		return uuid.Nil, err
	}
	return subject, nil
}

func (h *Handler) orgUUID(r *http.Request) (uuid.UUID, error) {
	orgStr := httpmiddleware.GetOrg(r.Context())
	if strings.TrimSpace(orgStr) == "" {
		return uuid.Nil, errors.New("organização ausente")
	}
	orgID, err := uuid.Parse(orgStr)
	if err != nil {
		return uuid.Nil, err
	}
	return orgID, nil
}

const refreshCookieName = "psicozen_rt"

func getRefreshFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", errors.New("refresh ausente")
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	secure := !h.devCookies
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	secure := !h.devCookies
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}

func requestIP(r *http.Request) *string {
	ip := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if ip == "" {
		ip = r.RemoteAddr
	}
	if ip == "" {
		return nil
	}
	return &ip
}

func requestUserAgent(r *http.Request) *string {
	ua := strings.TrimSpace(r.Header.Get("User-Agent"))
	if ua == "" {
		return nil
	}
	return &ua
}
