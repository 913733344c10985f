package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/psicozen/psicozen-backend-sub003/internal/audit"
	"github.com/psicozen/psicozen-backend-sub003/internal/emociograma"
	httpmiddleware "github.com/psicozen/psicozen-backend-sub003/internal/http/middleware"
	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
	"github.com/psicozen/psicozen-backend-sub003/internal/service"
)

type stubUserRepo struct {
	usuarios map[uuid.UUID]repo.Usuario
}

func (s *stubUserRepo) GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	u, ok := s.usuarios[id]
	if !ok {
		return repo.Usuario{}, repo.ErrNotFound
	}
	return u, nil
}

func (s *stubUserRepo) GetUsuarioByEmail(ctx context.Context, email string) (repo.Usuario, error) {
	return repo.Usuario{}, repo.ErrNotFound
}

func (s *stubUserRepo) ListUsuarios(ctx context.Context, filter repo.ListUsuariosFilter) ([]repo.Usuario, error) {
	var out []repo.Usuario
	for _, u := range s.usuarios {
		if u.OrgID == filter.OrgID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *stubUserRepo) InsertUsuario(ctx context.Context, arg repo.InsertUsuarioParams) (repo.Usuario, error) {
	return repo.Usuario{ID: arg.ID, OrgID: arg.OrgID, Email: arg.Email, Papeis: arg.Papeis, Ativo: arg.Ativo}, nil
}

func (s *stubUserRepo) UpdateUsuario(ctx context.Context, arg repo.UpdateUsuarioParams) (repo.Usuario, error) {
	return s.usuarios[arg.ID], nil
}

func (s *stubUserRepo) AnonimizarTitular(ctx context.Context, id uuid.UUID) (repo.AnonimizacaoResult, error) {
	if _, ok := s.usuarios[id]; !ok {
		return repo.AnonimizacaoResult{}, repo.ErrNotFound
	}
	return repo.AnonimizacaoResult{}, nil
}

func (s *stubUserRepo) DeleteTitular(ctx context.Context, id uuid.UUID) (int64, error) {
	if _, ok := s.usuarios[id]; !ok {
		return 0, repo.ErrNotFound
	}
	delete(s.usuarios, id)
	return 0, nil
}

func (s *stubUserRepo) ListSessoesByUsuario(ctx context.Context, usuarioID uuid.UUID) ([]repo.TokenRefresh, error) {
	return nil, nil
}

type stubSubmissions struct{}

func (stubSubmissions) ListByUsuario(ctx context.Context, usuarioID uuid.UUID, limit int) ([]emociograma.Registro, error) {
	return nil, nil
}

type stubAudit struct{}

func (stubAudit) Record(ctx context.Context, input audit.RecordInput) (*audit.Entry, error) {
	return &audit.Entry{ID: uuid.New(), Acao: input.Acao, CriadoEm: time.Now()}, nil
}

func (stubAudit) ListBySubject(ctx context.Context, sujeitoID uuid.UUID, limit int) ([]audit.Entry, error) {
	return nil, nil
}

func TestUsersAccessControl(t *testing.T) {
	orgID := uuid.New()
	titular := repo.Usuario{ID: uuid.New(), OrgID: orgID, Nome: "Ana", Email: "ana@empresa.com", Papeis: []string{repo.PapelColaborador}, Ativo: true}
	colega := repo.Usuario{ID: uuid.New(), OrgID: orgID, Nome: "Bia", Email: "bia@empresa.com", Papeis: []string{repo.PapelColaborador}, Ativo: true}
	externo := repo.Usuario{ID: uuid.New(), OrgID: uuid.New(), Nome: "Caio", Email: "caio@outra.com", Papeis: []string{repo.PapelColaborador}, Ativo: true}

	repoStub := &stubUserRepo{usuarios: map[uuid.UUID]repo.Usuario{
		titular.ID: titular,
		colega.ID:  colega,
		externo.ID: externo,
	}}

	h := &Handler{users: service.NewUserService(repoStub, stubSubmissions{}, stubAudit{}, nil)}

	r := chi.NewRouter()
	r.Route("/users", func(u chi.Router) {
		u.With(httpmiddleware.RequireRoles("ADMIN", "GESTOR")).Get("/", h.ListUsers)
		u.With(httpmiddleware.RequireAdmin).Post("/", h.CreateUser)
		u.With(httpmiddleware.RequireAdmin).Patch("/{id}", h.UpdateUser)
		u.Get("/{id}", h.GetUser)
		u.Delete("/{id}", h.DeleteUser)
		u.Get("/{id}/export", h.ExportUser)
		u.Post("/{id}/anonymize", h.AnonymizeUser)
		u.Get("/{id}/audit-trail", h.UserAuditTrail)
	})

	tests := []struct {
		name   string
		method string
		path   string
		papel  string
		status int
	}{
		{"titular-le-proprio-perfil", http.MethodGet, "/users/" + titular.ID.String(), repo.PapelColaborador, http.StatusOK},
		{"colaborador-nao-le-colega", http.MethodGet, "/users/" + colega.ID.String(), repo.PapelColaborador, http.StatusForbidden},
		{"gestor-le-colega", http.MethodGet, "/users/" + colega.ID.String(), repo.PapelGestor, http.StatusOK},
		{"titular-exporta-proprios-dados", http.MethodGet, "/users/" + titular.ID.String() + "/export", repo.PapelColaborador, http.StatusOK},
		{"colaborador-nao-exporta-colega", http.MethodGet, "/users/" + colega.ID.String() + "/export", repo.PapelColaborador, http.StatusForbidden},
		{"colaborador-nao-anonimiza-colega", http.MethodPost, "/users/" + colega.ID.String() + "/anonymize", repo.PapelColaborador, http.StatusForbidden},
		{"admin-exclui-colega", http.MethodDelete, "/users/" + colega.ID.String(), repo.PapelAdmin, http.StatusOK},
		{"outra-org-responde-404", http.MethodGet, "/users/" + externo.ID.String(), repo.PapelAdmin, http.StatusNotFound},
		{"colaborador-nao-lista", http.MethodGet, "/users", repo.PapelColaborador, http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)

			ctx := req.Context()
			ctx = context.WithValue(ctx, httpmiddleware.ContextKeySubject, titular.ID.String())
			ctx = context.WithValue(ctx, httpmiddleware.ContextKeyOrg, orgID.String())
			ctx = context.WithValue(ctx, httpmiddleware.ContextKeyRoles, []string{tc.papel})
			req = req.WithContext(ctx)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("%s %s: esperado %d, obtido %d (%s)", tc.method, tc.path, tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}
