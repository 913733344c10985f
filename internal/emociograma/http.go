package emociograma

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/psicozen/psicozen-backend-sub003/internal/http/middleware"
	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
)

// Handler orquestra rotas do emociograma.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/emociograma", func(r chi.Router) {
		r.Post("/", h.handleCriarRegistro)
		r.Get("/", h.handleListMeus)
		r.Get("/equipe", h.handleResumoEquipe)
	})
	r.Route("/alertas", func(r chi.Router) {
		r.Get("/", h.handleListAlertas)
		r.Post("/{id}/resolver", h.handleResolverAlerta)
	})
}

func (h *Handler) handleCriarRegistro(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	usuarioID, orgID, err := identity(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	var payload struct {
		Nivel      int     `json:"nivel"`
		Emoji      string  `json:"emoji"`
		Comentario *string `json:"comentario"`
		Anonimo    bool    `json:"anonimo"`
		Setor      *string `json:"setor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	registro, err := h.service.CriarRegistro(ctx, CreateRegistroInput{
		OrgID:      orgID,
		UsuarioID:  usuarioID,
		Nivel:      payload.Nivel,
		Emoji:      payload.Emoji,
		Comentario: payload.Comentario,
		Anonimo:    payload.Anonimo,
		Setor:      payload.Setor,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registro)
}

func (h *Handler) handleListMeus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	usuarioID, _, err := identity(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limite"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	registros, err := h.service.ListMeus(ctx, usuarioID, limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"registros": registros})
}

func (h *Handler) handleResumoEquipe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, orgID, err := identity(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}
	if !hasGestorRole(ctx) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "acesso restrito a gestores", nil)
		return
	}

	var de, ate time.Time
	if raw := r.URL.Query().Get("de"); raw != "" {
		if de, err = time.Parse("2006-01-02", raw); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "data inicial inválida", nil)
			return
		}
	}
	if raw := r.URL.Query().Get("ate"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "data final inválida", nil)
			return
		}
		// inclui o dia final completo
		ate = parsed.AddDate(0, 0, 1)
	}

	resumo, err := h.service.ResumoEquipe(ctx, orgID, de, ate)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"resumo": resumo})
}

func (h *Handler) handleListAlertas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, orgID, err := identity(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}
	if !hasGestorRole(ctx) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "acesso restrito a gestores", nil)
		return
	}

	somenteAbertos := r.URL.Query().Get("abertos") != "false"
	limit := 0
	if raw := r.URL.Query().Get("limite"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	alertas, err := h.service.Alertas(ctx, orgID, somenteAbertos, limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"alertas": alertas})
}

func (h *Handler) handleResolverAlerta(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	usuarioID, _, err := identity(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}
	if !hasGestorRole(ctx) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "acesso restrito a gestores", nil)
		return
	}

	alertaID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload struct {
		Nota *string `json:"nota"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
			return
		}
	}

	alerta, err := h.service.Resolver(ctx, alertaID, usuarioID, payload.Nota)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alerta)
}

func identity(ctx context.Context) (uuid.UUID, uuid.UUID, error) {
	usuarioID, err := uuid.Parse(httpmiddleware.GetSubject(ctx))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	orgID, err := uuid.Parse(httpmiddleware.GetOrg(ctx))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return usuarioID, orgID, nil
}

func hasGestorRole(ctx context.Context) bool {
	for _, role := range httpmiddleware.GetRoles(ctx) {
		switch role {
		case repo.PapelGestor, repo.PapelAdmin:
			return true
		}
	}
	return false
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNivelInvalido):
		writeError(w, http.StatusBadRequest, "VALIDATION", ErrNivelInvalido.Error(), nil)
	case errors.Is(err, ErrRegistroDiario):
		writeError(w, http.StatusConflict, "CONFLICT", ErrRegistroDiario.Error(), nil)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlertaNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "registro não encontrado", nil)
	default:
		writeInternalError(w, err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("emociograma handler error")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
}

// Helpers de resposta JSON compatíveis com o resto do projeto.
type successEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

type errorEnvelope struct {
	Data  any            `json:"data"`
	Error *errorResponse `json:"error"`
}

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Data: payload, Error: nil})
}

func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Data: nil, Error: &errorResponse{Code: code, Message: message, Details: details}})
}
