package org

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("organização não encontrada")
)

// Organizacao representa uma empresa cliente na plataforma.
type Organizacao struct {
	ID           uuid.UUID      `json:"id"`
	Slug         string         `json:"slug"`
	Nome         string         `json:"nome"`
	Settings     map[string]any `json:"settings"`
	CriadoEm     time.Time      `json:"criado_em"`
	AtualizadoEm time.Time      `json:"atualizado_em"`
}

// CreateOrgInput contém os campos necessários para registrar uma organização.
type CreateOrgInput struct {
	Slug     string
	Nome     string
	Settings map[string]any
}
