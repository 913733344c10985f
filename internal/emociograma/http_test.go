package emociograma

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	httpmiddleware "github.com/psicozen/psicozen-backend-sub003/internal/http/middleware"
	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
)

func TestEmociogramaHandlers(t *testing.T) {
	store := newStubStore()
	store.resumo = []ResumoDia{{Dia: time.Now(), Media: 3.5, Total: 4, Criticos: 1}}
	dir := &stubDiretorio{gestores: []repo.Usuario{gestor("g1@empresa.com")}}
	svc := NewService(store, dir, nil, alertCfg(), zerolog.Nop())
	handler := NewHandler(svc)

	if _, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{
		OrgID:     uuid.New(),
		UsuarioID: uuid.New(),
		Nivel:     1,
	}); err != nil {
		t.Fatalf("seed registro: %v", err)
	}
	if len(store.alertas) != 1 {
		t.Fatalf("seed deveria ter criado alerta, obtidos %d", len(store.alertas))
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		papel  string
		status int
	}{
		{"criar", http.MethodPost, "/emociograma", map[string]any{"nivel": 4, "comentario": "tudo bem"}, repo.PapelColaborador, http.StatusCreated},
		{"criar-nivel-invalido", http.MethodPost, "/emociograma", map[string]any{"nivel": 9}, repo.PapelColaborador, http.StatusBadRequest},
		{"historico", http.MethodGet, "/emociograma", nil, repo.PapelColaborador, http.StatusOK},
		{"equipe-gestor", http.MethodGet, "/emociograma/equipe", nil, repo.PapelGestor, http.StatusOK},
		{"equipe-colaborador", http.MethodGet, "/emociograma/equipe", nil, repo.PapelColaborador, http.StatusForbidden},
		{"equipe-data-invalida", http.MethodGet, "/emociograma/equipe?de=ontem", nil, repo.PapelGestor, http.StatusBadRequest},
		{"alertas", http.MethodGet, "/alertas", nil, repo.PapelGestor, http.StatusOK},
		{"alertas-colaborador", http.MethodGet, "/alertas", nil, repo.PapelColaborador, http.StatusForbidden},
		{"resolver", http.MethodPost, "/alertas/" + store.alertas[0].ID.String() + "/resolver", map[string]any{"nota": "resolvido"}, repo.PapelGestor, http.StatusOK},
		{"resolver-inexistente", http.MethodPost, "/alertas/" + uuid.NewString() + "/resolver", nil, repo.PapelGestor, http.StatusNotFound},
	}

	usuarioID := uuid.New()
	orgID := uuid.New()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, requestBody(tc.body))
			req = req.WithContext(authedCtx(usuarioID, orgID, tc.papel))
			rec := httptest.NewRecorder()

			r := chi.NewRouter()
			handler.RegisterRoutes(r)
			r.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("%s %s: esperado %d, obtido %d (%s)", tc.method, tc.path, tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestEnvelopeDeErro(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, &stubDiretorio{}, nil, alertCfg(), zerolog.Nop())
	handler := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/emociograma", bytes.NewBufferString(`{"nivel": 0}`))
	req = req.WithContext(authedCtx(uuid.New(), uuid.New(), repo.PapelColaborador))
	rec := httptest.NewRecorder()

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	r.ServeHTTP(rec, req)

	var envelope struct {
		Data  any `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("resposta não é JSON: %v", err)
	}
	if envelope.Error == nil || envelope.Error.Code != "VALIDATION" {
		t.Fatalf("envelope de erro inesperado: %s", rec.Body.String())
	}
	if envelope.Data != nil {
		t.Fatal("data deveria ser nulo em erro")
	}
}

func authedCtx(usuarioID, orgID uuid.UUID, papel string) context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, httpmiddleware.ContextKeySubject, usuarioID.String())
	ctx = context.WithValue(ctx, httpmiddleware.ContextKeyOrg, orgID.String())
	ctx = context.WithValue(ctx, httpmiddleware.ContextKeyRoles, []string{papel})
	return ctx
}

func requestBody(body any) *bytes.Buffer {
	if body == nil {
		return bytes.NewBuffer(nil)
	}
	b, _ := json.Marshal(body)
	return bytes.NewBuffer(b)
}
