package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httpmiddleware "github.com/psicozen/psicozen-backend-sub003/internal/http/middleware"
	"github.com/psicozen/psicozen-backend-sub003/internal/org"
	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
	"github.com/psicozen/psicozen-backend-sub003/internal/service"
	"github.com/psicozen/psicozen-backend-sub003/internal/util"
)

// ListUsers lista usuários da organização do token.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	orgID, err := h.orgUUID(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "organização inválida", nil)
		return
	}

	filter := repo.ListUsuariosFilter{OrgID: orgID}
	q := r.URL.Query()

	if raw := q.Get("ativo"); raw != "" {
		ativo := raw != "false"
		filter.Ativo = &ativo
	}
	if setor := strings.TrimSpace(q.Get("setor")); setor != "" {
		filter.Setor = &setor
	}
	if raw := q.Get("limite"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("offset"); raw != "" {
		filter.Offset, _ = strconv.Atoi(raw)
	}

	users, err := h.users.List(r.Context(), filter)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível listar usuários", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"usuarios": service.NewPerfisUsuario(users)})
}

// GetUser busca usuário da organização pelo identificador.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadOrgUser(w, r)
	if !ok {
		return
	}
	if !h.allowSelfOr(w, r, user.ID, repo.PapelAdmin, repo.PapelGestor) {
		return
	}

	WriteJSON(w, http.StatusOK, service.NewPerfilUsuario(user))
}

// CreateUser cadastra colaborador; o convite chega depois via magic link.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	orgID, err := h.orgUUID(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "organização inválida", nil)
		return
	}

	var payload struct {
		Nome      string   `json:"nome"`
		Sobrenome string   `json:"sobrenome"`
		Email     string   `json:"email"`
		Setor     *string  `json:"setor"`
		Papeis    []string `json:"papeis"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	user, err := h.users.Create(r.Context(), service.CreateUserInput{
		OrgID:     orgID,
		Nome:      payload.Nome,
		Sobrenome: payload.Sobrenome,
		Email:     payload.Email,
		Setor:     payload.Setor,
		Papeis:    payload.Papeis,
	})
	if err != nil {
		h.handleUserError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, service.NewPerfilUsuario(user))
}

// UpdateUser atualiza perfil, papéis e estado do colaborador.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadOrgUser(w, r)
	if !ok {
		return
	}

	var payload struct {
		Nome         *string        `json:"nome"`
		Sobrenome    *string        `json:"sobrenome"`
		Setor        *string        `json:"setor"`
		Preferencias map[string]any `json:"preferencias"`
		Papeis       []string       `json:"papeis"`
		Ativo        *bool          `json:"ativo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	updated, err := h.users.Update(r.Context(), repo.UpdateUsuarioParams{
		ID:           user.ID,
		Nome:         payload.Nome,
		Sobrenome:    payload.Sobrenome,
		Setor:        payload.Setor,
		Preferencias: payload.Preferencias,
		Papeis:       payload.Papeis,
		Ativo:        payload.Ativo,
	})
	if err != nil {
		h.handleUserError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, service.NewPerfilUsuario(updated))
}

// DeleteUser remove definitivamente o colaborador e seus dados (LGPD art. 18).
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadOrgUser(w, r)
	if !ok {
		return
	}
	if !h.allowSelfOr(w, r, user.ID, repo.PapelAdmin) {
		return
	}

	ator := h.actorID(r)
	if err := h.users.Delete(r.Context(), ator, user.ID, requestIP(r)); err != nil {
		h.handleUserError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "excluido"})
}

// ExportUser devolve o pacote de portabilidade do titular.
func (h *Handler) ExportUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadOrgUser(w, r)
	if !ok {
		return
	}
	if !h.allowSelfOr(w, r, user.ID, repo.PapelAdmin) {
		return
	}

	bundle, err := h.users.Export(r.Context(), h.actorID(r), user.ID, requestIP(r))
	if err != nil {
		h.handleUserError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, bundle)
}

// AnonymizeUser troca dados pessoais por placeholders preservando agregados.
func (h *Handler) AnonymizeUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadOrgUser(w, r)
	if !ok {
		return
	}
	if !h.allowSelfOr(w, r, user.ID, repo.PapelAdmin) {
		return
	}

	if err := h.users.Anonymize(r.Context(), h.actorID(r), user.ID, requestIP(r)); err != nil {
		h.handleUserError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "anonimizado"})
}

// UserAuditTrail lista a trilha de auditoria do titular.
func (h *Handler) UserAuditTrail(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadOrgUser(w, r)
	if !ok {
		return
	}
	if !h.allowSelfOr(w, r, user.ID, repo.PapelAdmin) {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limite"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	entries, err := h.users.AuditTrail(r.Context(), user.ID, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível listar auditoria", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"auditoria": entries})
}

// ListOrgs lista organizações registradas.
func (h *Handler) ListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.orgs.List(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível listar organizações", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"organizacoes": orgs})
}

// CreateOrg registra nova organização.
func (h *Handler) CreateOrg(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Slug     string         `json:"slug"`
		Nome     string         `json:"nome"`
		Settings map[string]any `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if strings.TrimSpace(payload.Slug) == "" || strings.TrimSpace(payload.Nome) == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "slug e nome são obrigatórios", nil)
		return
	}

	created, err := h.orgs.Create(r.Context(), org.CreateOrgInput{
		Slug:     payload.Slug,
		Nome:     payload.Nome,
		Settings: payload.Settings,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicado) {
			WriteError(w, http.StatusConflict, "CONFLICT", "slug já utilizado", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível criar organização", nil)
		return
	}

	WriteJSON(w, http.StatusCreated, created)
}

// GetOrg busca organização pelo identificador.
func (h *Handler) GetOrg(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	o, err := h.orgs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, org.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "organização não encontrada", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar organização", nil)
		return
	}

	WriteJSON(w, http.StatusOK, o)
}

// UpdateOrgSettings substitui o JSON de configuração da organização.
func (h *Handler) UpdateOrgSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var payload struct {
		Settings map[string]any `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	if err := h.orgs.UpdateSettings(r.Context(), id, payload.Settings); err != nil {
		if errors.Is(err, org.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "organização não encontrada", nil)
			return
		}
		WriteError(w, http.StatusBadRequest, "VALIDATION", "organização inválida", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "atualizado"})
}

// loadOrgUser resolve {id} e garante que o alvo pertence à organização do token.
func (h *Handler) loadOrgUser(w http.ResponseWriter, r *http.Request) (repo.Usuario, bool) {
	orgID, err := h.orgUUID(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "organização inválida", nil)
		return repo.Usuario{}, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return repo.Usuario{}, false
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "usuário não encontrado", nil)
			return repo.Usuario{}, false
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar usuário", nil)
		return repo.Usuario{}, false
	}

	if user.OrgID != orgID {
		// Fora da organização do token responde como inexistente.
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "usuário não encontrado", nil)
		return repo.Usuario{}, false
	}

	return user, true
}

func (h *Handler) actorID(r *http.Request) *uuid.UUID {
	ator, err := h.subjectUUID(r)
	if err != nil {
		return nil
	}
	return &ator
}

// allowSelfOr autoriza o titular do recurso ou quem carrega um dos papéis.
func (h *Handler) allowSelfOr(w http.ResponseWriter, r *http.Request, alvo uuid.UUID, papeis ...string) bool {
	if subject, err := h.subjectUUID(r); err == nil && subject == alvo {
		return true
	}

	claims := httpmiddleware.GetRoles(r.Context())
	for _, have := range claims {
		for _, want := range papeis {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}

	WriteError(w, http.StatusForbidden, "FORBIDDEN", "permissão insuficiente", nil)
	return false
}

func (h *Handler) handleUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, util.ErrEmailInvalido):
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, service.ErrPapelInvalido):
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, repo.ErrDuplicado):
		WriteError(w, http.StatusConflict, "CONFLICT", "e-mail já cadastrado", nil)
	case errors.Is(err, repo.ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "usuário não encontrado", nil)
	default:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
	}
}
