package repo

import (
	"time"

	"github.com/google/uuid"
)

// Papéis aceitos na plataforma.
const (
	PapelAdmin       = "ADMIN"
	PapelGestor      = "GESTOR"
	PapelColaborador = "COLABORADOR"
)

// Usuario representa colaborador de uma organização.
type Usuario struct {
	ID            uuid.UUID
	OrgID         uuid.UUID
	Nome          string
	Sobrenome     string
	Email         string
	Setor         *string
	Preferencias  map[string]any
	Papeis        []string
	Ativo         bool
	SupabaseID    *string
	UltimoLoginEm *time.Time
	CriadoEm      time.Time
	AtualizadoEm  time.Time
}

// TokenRefresh modela a tabela de sessões (refresh tokens).
type TokenRefresh struct {
	ID        uuid.UUID
	UsuarioID uuid.UUID
	TokenHash string
	Expiracao time.Time
	Revogado  bool
	IP        *string
	UserAgent *string
	CriadoEm  time.Time
}

// InsertUsuarioParams encapsula campos de criação de usuário.
type InsertUsuarioParams struct {
	ID           uuid.UUID
	OrgID        uuid.UUID
	Nome         string
	Sobrenome    string
	Email        string
	Setor        *string
	Preferencias map[string]any
	Papeis       []string
	Ativo        bool
	SupabaseID   *string
}

// UpdateUsuarioParams permite atualização parcial do perfil.
type UpdateUsuarioParams struct {
	ID           uuid.UUID
	Nome         *string
	Sobrenome    *string
	Setor        *string
	Preferencias map[string]any
	Papeis       []string
	Ativo        *bool
	SupabaseID   *string
}

// InsertRefreshTokenParams encapsula campos da nova sessão.
type InsertRefreshTokenParams struct {
	ID        uuid.UUID
	UsuarioID uuid.UUID
	TokenHash string
	Expiracao time.Time
	IP        *string
	UserAgent *string
	CriadoEm  time.Time
}

// ListUsuariosFilter filtra a listagem por organização.
type ListUsuariosFilter struct {
	OrgID  uuid.UUID
	Ativo  *bool
	Setor  *string
	Limit  int
	Offset int
}
