package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/psicozen/psicozen-backend-sub003/internal/audit"
	"github.com/psicozen/psicozen-backend-sub003/internal/emociograma"
	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
)

type stubUserRepo struct {
	usuario            repo.Usuario
	inserted           *repo.InsertUsuarioParams
	updated            *repo.UpdateUsuarioParams
	anonimizado        bool
	deletado           bool
	sessoes            []repo.TokenRefresh
	registrosAfetados  int64
	registrosRemovidos int64
}

func (s *stubUserRepo) GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	if s.usuario.ID != id {
		return repo.Usuario{}, repo.ErrNotFound
	}
	return s.usuario, nil
}

func (s *stubUserRepo) GetUsuarioByEmail(ctx context.Context, email string) (repo.Usuario, error) {
	return repo.Usuario{}, repo.ErrNotFound
}

func (s *stubUserRepo) ListUsuarios(ctx context.Context, filter repo.ListUsuariosFilter) ([]repo.Usuario, error) {
	return []repo.Usuario{s.usuario}, nil
}

func (s *stubUserRepo) InsertUsuario(ctx context.Context, arg repo.InsertUsuarioParams) (repo.Usuario, error) {
	s.inserted = &arg
	return repo.Usuario{ID: arg.ID, OrgID: arg.OrgID, Email: arg.Email, Papeis: arg.Papeis, Ativo: arg.Ativo}, nil
}

func (s *stubUserRepo) UpdateUsuario(ctx context.Context, arg repo.UpdateUsuarioParams) (repo.Usuario, error) {
	s.updated = &arg
	return s.usuario, nil
}

func (s *stubUserRepo) AnonimizarTitular(ctx context.Context, id uuid.UUID) (repo.AnonimizacaoResult, error) {
	if s.usuario.ID != id {
		return repo.AnonimizacaoResult{}, repo.ErrNotFound
	}
	s.anonimizado = true
	return repo.AnonimizacaoResult{
		RegistrosAfetados: s.registrosAfetados,
		SessoesRevogadas:  []string{"hash"},
	}, nil
}

func (s *stubUserRepo) DeleteTitular(ctx context.Context, id uuid.UUID) (int64, error) {
	if s.usuario.ID != id {
		return 0, repo.ErrNotFound
	}
	s.deletado = true
	return s.registrosRemovidos, nil
}

func (s *stubUserRepo) ListSessoesByUsuario(ctx context.Context, usuarioID uuid.UUID) ([]repo.TokenRefresh, error) {
	return s.sessoes, nil
}

type stubSubmissions struct {
	registros []emociograma.Registro
}

func (s *stubSubmissions) ListByUsuario(ctx context.Context, usuarioID uuid.UUID, limit int) ([]emociograma.Registro, error) {
	return s.registros, nil
}

type stubAudit struct {
	entradas []audit.RecordInput
}

func (s *stubAudit) Record(ctx context.Context, input audit.RecordInput) (*audit.Entry, error) {
	s.entradas = append(s.entradas, input)
	return &audit.Entry{ID: uuid.New(), Acao: input.Acao}, nil
}

func (s *stubAudit) ListBySubject(ctx context.Context, sujeitoID uuid.UUID, limit int) ([]audit.Entry, error) {
	out := make([]audit.Entry, 0, len(s.entradas))
	for _, e := range s.entradas {
		out = append(out, audit.Entry{Acao: e.Acao, SujeitoID: e.SujeitoID})
	}
	return out, nil
}

type stubIdentity struct {
	deletados []string
	falha     error
}

func (s *stubIdentity) EnsureUser(ctx context.Context, email string) (string, error) {
	return "remote-id", nil
}

func (s *stubIdentity) DeleteUser(ctx context.Context, id string) error {
	if s.falha != nil {
		return s.falha
	}
	s.deletados = append(s.deletados, id)
	return nil
}

func fixtureUser() repo.Usuario {
	supabaseID := "supabase-123"
	return repo.Usuario{
		ID:         uuid.New(),
		OrgID:      uuid.New(),
		Nome:       "Ana",
		Sobrenome:  "Souza",
		Email:      "ana@empresa.com",
		Papeis:     []string{repo.PapelColaborador},
		Ativo:      true,
		SupabaseID: &supabaseID,
	}
}

func TestCreateNormalizesPapeis(t *testing.T) {
	repoStub := &stubUserRepo{usuario: fixtureUser()}
	svc := NewUserService(repoStub, &stubSubmissions{}, &stubAudit{}, nil)

	user, err := svc.Create(context.Background(), CreateUserInput{
		OrgID:  uuid.New(),
		Nome:   "Bia",
		Email:  "Bia@Empresa.com",
		Papeis: []string{" gestor ", "GESTOR", "colaborador"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if user.Email != "bia@empresa.com" {
		t.Fatalf("e-mail deveria ser normalizado: %s", user.Email)
	}
	if len(user.Papeis) != 2 {
		t.Fatalf("papéis deveriam ser deduplicados: %v", user.Papeis)
	}
}

func TestCreateRejectsPapelInvalido(t *testing.T) {
	svc := NewUserService(&stubUserRepo{}, &stubSubmissions{}, &stubAudit{}, nil)

	_, err := svc.Create(context.Background(), CreateUserInput{
		OrgID:  uuid.New(),
		Email:  "bia@empresa.com",
		Papeis: []string{"SUPREMO"},
	})
	if !errors.Is(err, ErrPapelInvalido) {
		t.Fatalf("esperado ErrPapelInvalido, obtido %v", err)
	}
}

func TestExportBundleOmitsTokenHash(t *testing.T) {
	user := fixtureUser()
	ip := "10.0.0.1"
	repoStub := &stubUserRepo{
		usuario: user,
		sessoes: []repo.TokenRefresh{{
			ID:        uuid.New(),
			UsuarioID: user.ID,
			TokenHash: "segredo-que-nao-sai",
			Expiracao: time.Now().Add(time.Hour),
			IP:        &ip,
			CriadoEm:  time.Now(),
		}},
	}
	auditStub := &stubAudit{}
	svc := NewUserService(repoStub, &stubSubmissions{}, auditStub, nil)

	bundle, err := svc.Export(context.Background(), nil, user.ID, nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if len(bundle.Sessoes) != 1 {
		t.Fatalf("esperada 1 sessão, obtidas %d", len(bundle.Sessoes))
	}
	if bundle.Usuario.Email != user.Email {
		t.Fatal("perfil ausente no pacote")
	}

	var exportou bool
	for _, e := range auditStub.entradas {
		if e.Acao == audit.AcaoExportacao && e.SujeitoID == user.ID {
			exportou = true
		}
	}
	if !exportou {
		t.Fatal("exportação deveria ser auditada")
	}
}

func TestAnonymizeKeepsAggregatesAndAudits(t *testing.T) {
	user := fixtureUser()
	repoStub := &stubUserRepo{usuario: user, registrosAfetados: 1}
	auditStub := &stubAudit{}
	svc := NewUserService(repoStub, &stubSubmissions{}, auditStub, nil)

	if err := svc.Anonymize(context.Background(), nil, user.ID, nil); err != nil {
		t.Fatalf("anonymize: %v", err)
	}

	if !repoStub.anonimizado {
		t.Fatal("usuário deveria ser anonimizado")
	}

	if len(auditStub.entradas) != 1 || auditStub.entradas[0].Acao != audit.AcaoAnonimizacao {
		t.Fatalf("auditoria inesperada: %+v", auditStub.entradas)
	}
	if auditStub.entradas[0].Detalhes["registros_anonimizados"] != int64(1) {
		t.Fatal("contagem de registros anonimizados ausente na auditoria")
	}
	if auditStub.entradas[0].Detalhes["sessoes_revogadas"] != 1 {
		t.Fatal("contagem de sessões revogadas ausente na auditoria")
	}
}

func TestDeleteRemovesLocalAndRemoteIdentity(t *testing.T) {
	user := fixtureUser()
	repoStub := &stubUserRepo{usuario: user, registrosRemovidos: 2}
	auditStub := &stubAudit{}
	identity := &stubIdentity{}
	svc := NewUserService(repoStub, &stubSubmissions{}, auditStub, identity)

	ator := uuid.New()
	if err := svc.Delete(context.Background(), &ator, user.ID, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if !repoStub.deletado {
		t.Fatal("usuário deveria ser removido")
	}
	if len(identity.deletados) != 1 || identity.deletados[0] != *user.SupabaseID {
		t.Fatalf("identidade remota deveria ser removida: %v", identity.deletados)
	}

	if len(auditStub.entradas) != 1 || auditStub.entradas[0].Acao != audit.AcaoExclusao {
		t.Fatalf("auditoria inesperada: %+v", auditStub.entradas)
	}
	if auditStub.entradas[0].Detalhes["registros_removidos"] != int64(2) {
		t.Fatal("contagem de registros removidos ausente na auditoria")
	}
}

func TestDeleteKeepsLocalRemovalWhenProviderFails(t *testing.T) {
	user := fixtureUser()
	repoStub := &stubUserRepo{usuario: user}
	auditStub := &stubAudit{}
	identity := &stubIdentity{falha: errors.New("provedor indisponível")}
	svc := NewUserService(repoStub, &stubSubmissions{}, auditStub, identity)

	if err := svc.Delete(context.Background(), nil, user.ID, nil); err != nil {
		t.Fatalf("falha do provedor não deveria abortar a exclusão: %v", err)
	}

	if !repoStub.deletado {
		t.Fatal("usuário local deveria ser removido mesmo com provedor fora")
	}
	if len(identity.deletados) != 0 {
		t.Fatalf("provedor em falha não deveria registrar exclusão: %v", identity.deletados)
	}
	if len(auditStub.entradas) != 1 || auditStub.entradas[0].Acao != audit.AcaoExclusao {
		t.Fatalf("exclusão deveria ser auditada mesmo com provedor fora: %+v", auditStub.entradas)
	}
}
