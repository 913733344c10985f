package emociograma

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("registro não encontrado")
	ErrAlertaNotFound = errors.New("alerta não encontrado")
	// ErrRegistroDiario indica que o colaborador já registrou o dia.
	ErrRegistroDiario = errors.New("registro do dia já existe")
	ErrNivelInvalido  = errors.New("nível deve estar entre 1 e 5")
)

// Severidades de alerta derivadas do nível registrado.
const (
	SeveridadeCritica = "critical"
	SeveridadeAtencao = "warning"
)

// Emojis padrão da escala 1-5. O frontend pode sobrescrever por registro.
var emojiPadrao = map[int]string{
	1: "😢",
	2: "😟",
	3: "😐",
	4: "🙂",
	5: "😄",
}

// Registro representa um check-in emocional diário.
// Depois de criado é imutável; apenas anonimização ou exclusão LGPD o alteram.
type Registro struct {
	ID         uuid.UUID  `json:"id"`
	OrgID      uuid.UUID  `json:"org_id"`
	UsuarioID  *uuid.UUID `json:"usuario_id,omitempty"`
	Nivel      int        `json:"nivel"`
	Emoji      string     `json:"emoji"`
	Comentario *string    `json:"comentario,omitempty"`
	Anonimo    bool       `json:"anonimo"`
	Setor      *string    `json:"setor,omitempty"`
	CriadoEm   time.Time  `json:"criado_em"`
}

// Alerta é derivado de um registro com nível abaixo do corte.
type Alerta struct {
	ID           uuid.UUID  `json:"id"`
	OrgID        uuid.UUID  `json:"org_id"`
	RegistroID   uuid.UUID  `json:"registro_id"`
	Severidade   string     `json:"severidade"`
	Notificados  []string   `json:"notificados"`
	Resolvido    bool       `json:"resolvido"`
	ResolvidoPor *uuid.UUID `json:"resolvido_por,omitempty"`
	ResolvidoEm  *time.Time `json:"resolvido_em,omitempty"`
	Nota         *string    `json:"nota,omitempty"`
	CriadoEm     time.Time  `json:"criado_em"`
}

// CreateRegistroInput encapsula um novo check-in.
type CreateRegistroInput struct {
	OrgID      uuid.UUID
	UsuarioID  uuid.UUID
	Nivel      int
	Emoji      string
	Comentario *string
	Anonimo    bool
	Setor      *string
}

// ResumoDia agrega os registros da organização por dia e setor.
type ResumoDia struct {
	Dia      time.Time `json:"dia"`
	Setor    *string   `json:"setor,omitempty"`
	Media    float64   `json:"media"`
	Total    int       `json:"total"`
	Criticos int       `json:"criticos"`
}

// EmojiPadrao devolve o emoji da escala para o nível informado.
func EmojiPadrao(nivel int) string {
	if e, ok := emojiPadrao[nivel]; ok {
		return e
	}
	return ""
}
