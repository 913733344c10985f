package emociograma

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/psicozen/psicozen-backend-sub003/internal/config"
	"github.com/psicozen/psicozen-backend-sub003/internal/mail"
	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
)

type stubStore struct {
	registros     []Registro
	alertas       []Alerta
	ultimoAlerta  *Alerta
	notificados   map[uuid.UUID][]string
	resumo        []ResumoDia
	falhaRegistro error
	falhaThrottle error
}

func newStubStore() *stubStore {
	return &stubStore{notificados: map[uuid.UUID][]string{}}
}

func (s *stubStore) CreateRegistro(ctx context.Context, input CreateRegistroInput) (*Registro, error) {
	if s.falhaRegistro != nil {
		return nil, s.falhaRegistro
	}
	usuarioID := input.UsuarioID
	reg := Registro{
		ID:         uuid.New(),
		OrgID:      input.OrgID,
		UsuarioID:  &usuarioID,
		Nivel:      input.Nivel,
		Emoji:      input.Emoji,
		Comentario: input.Comentario,
		Anonimo:    input.Anonimo,
		Setor:      input.Setor,
		CriadoEm:   time.Now(),
	}
	s.registros = append(s.registros, reg)
	return &reg, nil
}

func (s *stubStore) ListByUsuario(ctx context.Context, usuarioID uuid.UUID, limit int) ([]Registro, error) {
	return s.registros, nil
}

func (s *stubStore) ResumoByOrg(ctx context.Context, orgID uuid.UUID, de, ate time.Time) ([]ResumoDia, error) {
	return s.resumo, nil
}

func (s *stubStore) InsertAlerta(ctx context.Context, orgID, registroID uuid.UUID, severidade string) (*Alerta, error) {
	a := Alerta{ID: uuid.New(), OrgID: orgID, RegistroID: registroID, Severidade: severidade, CriadoEm: time.Now()}
	s.alertas = append(s.alertas, a)
	s.ultimoAlerta = &a
	return &a, nil
}

func (s *stubStore) MarkNotificados(ctx context.Context, alertaID uuid.UUID, emails []string) error {
	s.notificados[alertaID] = emails
	return nil
}

func (s *stubStore) ListAlertas(ctx context.Context, orgID uuid.UUID, somenteAbertos bool, limit int) ([]Alerta, error) {
	return s.alertas, nil
}

func (s *stubStore) ResolverAlerta(ctx context.Context, id, resolvidoPor uuid.UUID, nota *string) (*Alerta, error) {
	for i, a := range s.alertas {
		if a.ID == id && !a.Resolvido {
			now := time.Now()
			a.Resolvido = true
			a.ResolvidoPor = &resolvidoPor
			a.ResolvidoEm = &now
			a.Nota = nota
			s.alertas[i] = a
			return &a, nil
		}
	}
	return nil, ErrAlertaNotFound
}

func (s *stubStore) LastAlertaForUsuarioSince(ctx context.Context, usuarioID uuid.UUID, since time.Time) (*Alerta, error) {
	if s.falhaThrottle != nil {
		return nil, s.falhaThrottle
	}
	if s.ultimoAlerta != nil && s.ultimoAlerta.CriadoEm.After(since) {
		return s.ultimoAlerta, nil
	}
	return nil, ErrAlertaNotFound
}

type stubDiretorio struct {
	usuarios map[uuid.UUID]repo.Usuario
	gestores []repo.Usuario
}

func (s *stubDiretorio) GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	if u, ok := s.usuarios[id]; ok {
		return u, nil
	}
	return repo.Usuario{}, repo.ErrNotFound
}

func (s *stubDiretorio) ListGestoresByOrg(ctx context.Context, orgID uuid.UUID) ([]repo.Usuario, error) {
	return s.gestores, nil
}

type captureMailer struct {
	mensagens []mail.Message
	falhaPara string
}

func (m *captureMailer) Send(ctx context.Context, msg mail.Message) error {
	if m.falhaPara != "" && len(msg.To) > 0 && msg.To[0] == m.falhaPara {
		return errors.New("caixa cheia")
	}
	m.mensagens = append(m.mensagens, msg)
	return nil
}

func alertCfg() config.AlertConfig {
	return config.AlertConfig{NivelCritico: 1, NivelAtencao: 2, Throttle: 30 * time.Minute}
}

func gestor(email string) repo.Usuario {
	return repo.Usuario{ID: uuid.New(), Nome: "Gestor", Email: email, Papeis: []string{repo.PapelGestor}}
}

func TestCriarRegistroValidaNivel(t *testing.T) {
	svc := NewService(newStubStore(), &stubDiretorio{}, nil, alertCfg(), zerolog.Nop())

	_, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{Nivel: 0})
	if !errors.Is(err, ErrNivelInvalido) {
		t.Fatalf("esperado ErrNivelInvalido, obtido %v", err)
	}

	_, err = svc.CriarRegistro(context.Background(), CreateRegistroInput{Nivel: 6})
	if !errors.Is(err, ErrNivelInvalido) {
		t.Fatalf("esperado ErrNivelInvalido, obtido %v", err)
	}
}

func TestNivelBaixoDisparaAlertaCritico(t *testing.T) {
	store := newStubStore()
	mailer := &captureMailer{}
	dir := &stubDiretorio{gestores: []repo.Usuario{gestor("g1@empresa.com"), gestor("g2@empresa.com")}}
	svc := NewService(store, dir, mailer, alertCfg(), zerolog.Nop())

	_, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{
		OrgID:     uuid.New(),
		UsuarioID: uuid.New(),
		Nivel:     1,
	})
	if err != nil {
		t.Fatalf("criar registro: %v", err)
	}

	if len(store.alertas) != 1 {
		t.Fatalf("esperado 1 alerta, obtidos %d", len(store.alertas))
	}
	if store.alertas[0].Severidade != SeveridadeCritica {
		t.Fatalf("severidade esperada critical, obtida %s", store.alertas[0].Severidade)
	}
	if len(mailer.mensagens) != 2 {
		t.Fatalf("esperados 2 e-mails, obtidos %d", len(mailer.mensagens))
	}
	if got := store.notificados[store.alertas[0].ID]; len(got) != 2 {
		t.Fatalf("notificados esperados 2, obtidos %v", got)
	}
}

func TestNivelDoisGeraAlertaDeAtencao(t *testing.T) {
	store := newStubStore()
	dir := &stubDiretorio{gestores: []repo.Usuario{gestor("g1@empresa.com")}}
	svc := NewService(store, dir, &captureMailer{}, alertCfg(), zerolog.Nop())

	if _, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{OrgID: uuid.New(), UsuarioID: uuid.New(), Nivel: 2}); err != nil {
		t.Fatalf("criar registro: %v", err)
	}

	if len(store.alertas) != 1 || store.alertas[0].Severidade != SeveridadeAtencao {
		t.Fatalf("esperado alerta warning, obtido %+v", store.alertas)
	}
}

func TestNivelNeutroNaoGeraAlerta(t *testing.T) {
	store := newStubStore()
	dir := &stubDiretorio{gestores: []repo.Usuario{gestor("g1@empresa.com")}}
	svc := NewService(store, dir, &captureMailer{}, alertCfg(), zerolog.Nop())

	if _, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{OrgID: uuid.New(), UsuarioID: uuid.New(), Nivel: 3}); err != nil {
		t.Fatalf("criar registro: %v", err)
	}

	if len(store.alertas) != 0 {
		t.Fatalf("nível 3 não deveria gerar alerta: %+v", store.alertas)
	}
}

func TestAlertaSuprimidoPorThrottle(t *testing.T) {
	store := newStubStore()
	store.ultimoAlerta = &Alerta{ID: uuid.New(), CriadoEm: time.Now().Add(-5 * time.Minute)}
	dir := &stubDiretorio{gestores: []repo.Usuario{gestor("g1@empresa.com")}}
	svc := NewService(store, dir, &captureMailer{}, alertCfg(), zerolog.Nop())

	if _, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{OrgID: uuid.New(), UsuarioID: uuid.New(), Nivel: 1}); err != nil {
		t.Fatalf("criar registro: %v", err)
	}

	if len(store.alertas) != 0 {
		t.Fatal("alerta recente do mesmo colaborador deveria suprimir novo alerta")
	}
}

func TestCheckinsSeguidosNaJanelaGeramUmAlerta(t *testing.T) {
	store := newStubStore()
	mailer := &captureMailer{}
	dir := &stubDiretorio{gestores: []repo.Usuario{gestor("g1@empresa.com")}}
	svc := NewService(store, dir, mailer, alertCfg(), zerolog.Nop())

	orgID := uuid.New()
	usuarioID := uuid.New()
	for i := 0; i < 3; i++ {
		if _, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{OrgID: orgID, UsuarioID: usuarioID, Nivel: 1}); err != nil {
			t.Fatalf("criar registro %d: %v", i+1, err)
		}
	}

	if len(store.alertas) != 1 {
		t.Fatalf("janela de throttle deveria limitar a 1 alerta; foram criados %d", len(store.alertas))
	}
	if len(mailer.mensagens) != 1 {
		t.Fatalf("gestor deveria receber 1 e-mail, recebeu %d", len(mailer.mensagens))
	}
}

func TestFalhaNaConsultaDeThrottleNaoSuprimeAlerta(t *testing.T) {
	store := newStubStore()
	store.falhaThrottle = errors.New("consulta indisponível")
	dir := &stubDiretorio{gestores: []repo.Usuario{gestor("g1@empresa.com")}}

	var logs bytes.Buffer
	svc := NewService(store, dir, &captureMailer{}, alertCfg(), zerolog.New(&logs))

	if _, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{OrgID: uuid.New(), UsuarioID: uuid.New(), Nivel: 1}); err != nil {
		t.Fatalf("criar registro: %v", err)
	}

	if len(store.alertas) != 1 {
		t.Fatalf("falha na consulta não deveria bloquear o alerta; alertas: %d", len(store.alertas))
	}
	if !strings.Contains(logs.String(), "consulta de throttle falhou") {
		t.Fatalf("falha da consulta deveria ser logada: %s", logs.String())
	}
}

func TestOrgSemGestoresNaoCriaAlerta(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, &stubDiretorio{}, &captureMailer{}, alertCfg(), zerolog.Nop())

	registro, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{OrgID: uuid.New(), UsuarioID: uuid.New(), Nivel: 1})
	if err != nil {
		t.Fatalf("criar registro: %v", err)
	}
	if registro == nil {
		t.Fatal("registro deveria persistir mesmo sem gestores")
	}

	if len(store.alertas) != 0 {
		t.Fatal("sem gestores elegíveis não deveria haver alerta")
	}
}

func TestFalhaParcialDeEnvioRegistraSoQuemRecebeu(t *testing.T) {
	store := newStubStore()
	mailer := &captureMailer{falhaPara: "g1@empresa.com"}
	dir := &stubDiretorio{gestores: []repo.Usuario{gestor("g1@empresa.com"), gestor("g2@empresa.com")}}
	svc := NewService(store, dir, mailer, alertCfg(), zerolog.Nop())

	if _, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{OrgID: uuid.New(), UsuarioID: uuid.New(), Nivel: 1}); err != nil {
		t.Fatalf("criar registro: %v", err)
	}

	got := store.notificados[store.alertas[0].ID]
	if len(got) != 1 || got[0] != "g2@empresa.com" {
		t.Fatalf("apenas g2 deveria constar como notificado: %v", got)
	}
}

func TestGestorAutorNaoEhNotificado(t *testing.T) {
	store := newStubStore()
	mailer := &captureMailer{}
	autor := gestor("autor@empresa.com")
	dir := &stubDiretorio{gestores: []repo.Usuario{autor}}
	svc := NewService(store, dir, mailer, alertCfg(), zerolog.Nop())

	if _, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{OrgID: uuid.New(), UsuarioID: autor.ID, Nivel: 1}); err != nil {
		t.Fatalf("criar registro: %v", err)
	}

	if len(store.alertas) != 0 {
		t.Fatal("gestor único sendo o autor não deveria gerar alerta")
	}
	if len(mailer.mensagens) != 0 {
		t.Fatal("autor não deveria receber o próprio alerta")
	}
}

func TestRegistroAnonimoNaoExpoeAutorNoEmail(t *testing.T) {
	store := newStubStore()
	mailer := &captureMailer{}
	autor := uuid.New()
	dir := &stubDiretorio{
		usuarios: map[uuid.UUID]repo.Usuario{autor: {ID: autor, Nome: "Ana", Sobrenome: "Souza"}},
		gestores: []repo.Usuario{gestor("g1@empresa.com")},
	}
	svc := NewService(store, dir, mailer, alertCfg(), zerolog.Nop())

	if _, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{OrgID: uuid.New(), UsuarioID: autor, Nivel: 1, Anonimo: true}); err != nil {
		t.Fatalf("criar registro: %v", err)
	}

	if len(mailer.mensagens) != 1 {
		t.Fatalf("esperado 1 e-mail, obtidos %d", len(mailer.mensagens))
	}
	html := mailer.mensagens[0].HTML
	if strings.Contains(html, "Ana") {
		t.Fatal("e-mail de registro anônimo não deveria citar o autor")
	}
	if !strings.Contains(html, "registro anônimo") {
		t.Fatal("e-mail deveria indicar registro anônimo")
	}
}

func TestResolverAlerta(t *testing.T) {
	store := newStubStore()
	dir := &stubDiretorio{gestores: []repo.Usuario{gestor("g1@empresa.com")}}
	svc := NewService(store, dir, &captureMailer{}, alertCfg(), zerolog.Nop())

	if _, err := svc.CriarRegistro(context.Background(), CreateRegistroInput{OrgID: uuid.New(), UsuarioID: uuid.New(), Nivel: 1}); err != nil {
		t.Fatalf("criar registro: %v", err)
	}

	gestorID := uuid.New()
	nota := "  conversamos com a pessoa  "
	resolvido, err := svc.Resolver(context.Background(), store.alertas[0].ID, gestorID, &nota)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	if !resolvido.Resolvido || resolvido.ResolvidoPor == nil || *resolvido.ResolvidoPor != gestorID {
		t.Fatalf("resolução inesperada: %+v", resolvido)
	}
	if resolvido.Nota == nil || *resolvido.Nota != "conversamos com a pessoa" {
		t.Fatalf("nota deveria ser aparada: %v", resolvido.Nota)
	}

	if _, err := svc.Resolver(context.Background(), store.alertas[0].ID, gestorID, nil); !errors.Is(err, ErrAlertaNotFound) {
		t.Fatalf("alerta já resolvido deveria falhar, obtido %v", err)
	}
}
