package service

import (
	"time"

	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
)

// PerfilUsuario descreve o colaborador nas respostas da API.
// O hash de sessão e o ID do provedor externo nunca saem daqui.
type PerfilUsuario struct {
	ID            string         `json:"id"`
	OrgID         string         `json:"org_id"`
	Nome          string         `json:"nome"`
	Sobrenome     string         `json:"sobrenome"`
	Email         string         `json:"email"`
	Setor         *string        `json:"setor,omitempty"`
	Preferencias  map[string]any `json:"preferencias"`
	Papeis        []string       `json:"papeis"`
	Ativo         bool           `json:"ativo"`
	UltimoLoginEm *time.Time     `json:"ultimo_login_em,omitempty"`
	CriadoEm      time.Time      `json:"criado_em"`
	AtualizadoEm  time.Time      `json:"atualizado_em"`
}

// NewPerfilUsuario converte o modelo de persistência em DTO.
func NewPerfilUsuario(u repo.Usuario) PerfilUsuario {
	prefs := u.Preferencias
	if prefs == nil {
		prefs = map[string]any{}
	}
	return PerfilUsuario{
		ID:            u.ID.String(),
		OrgID:         u.OrgID.String(),
		Nome:          u.Nome,
		Sobrenome:     u.Sobrenome,
		Email:         u.Email,
		Setor:         u.Setor,
		Preferencias:  prefs,
		Papeis:        u.Papeis,
		Ativo:         u.Ativo,
		UltimoLoginEm: u.UltimoLoginEm,
		CriadoEm:      u.CriadoEm,
		AtualizadoEm:  u.AtualizadoEm,
	}
}

// NewPerfisUsuario converte uma lista de modelos.
func NewPerfisUsuario(users []repo.Usuario) []PerfilUsuario {
	perfis := make([]PerfilUsuario, 0, len(users))
	for _, u := range users {
		perfis = append(perfis, NewPerfilUsuario(u))
	}
	return perfis
}
