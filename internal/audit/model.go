package audit

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("entrada de auditoria não encontrada")
	ErrInvalidAction = errors.New("ação de auditoria inválida")
)

// Ações sensíveis registradas para conformidade com a LGPD.
const (
	AcaoLogin        = "login"
	AcaoExportacao   = "data_export"
	AcaoAnonimizacao = "anonymization"
	AcaoExclusao     = "user_delete"
)

var validActions = map[string]struct{}{
	AcaoLogin:        {},
	AcaoExportacao:   {},
	AcaoAnonimizacao: {},
	AcaoExclusao:     {},
}

// Entry representa um registro imutável de ação sensível.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	OrgID     uuid.UUID      `json:"org_id"`
	AtorID    *uuid.UUID     `json:"ator_id,omitempty"`
	SujeitoID uuid.UUID      `json:"sujeito_id"`
	Acao      string         `json:"acao"`
	Detalhes  map[string]any `json:"detalhes,omitempty"`
	IP        *string        `json:"ip,omitempty"`
	CriadoEm  time.Time      `json:"criado_em"`
}

// RecordInput encapsula campos de um novo registro.
type RecordInput struct {
	OrgID     uuid.UUID
	AtorID    *uuid.UUID
	SujeitoID uuid.UUID
	Acao      string
	Detalhes  map[string]any
	IP        *string
}

// IsValidAction indica se a ação é reconhecida.
func IsValidAction(acao string) bool {
	_, ok := validActions[strings.ToLower(strings.TrimSpace(acao))]
	return ok
}
