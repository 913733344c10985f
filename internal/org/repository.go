package org

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provê acesso à tabela de organizações.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository cria instância do repositório.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create insere uma nova organização.
func (r *Repository) Create(ctx context.Context, input CreateOrgInput) (*Organizacao, error) {
	const query = `
        INSERT INTO organizacoes (slug, nome, settings)
        VALUES ($1, $2, COALESCE($3::jsonb, '{}'::jsonb))
        RETURNING id, slug, nome, settings, criado_em, atualizado_em
    `

	settings := input.Settings
	if settings == nil {
		settings = map[string]any{}
	}

	row := r.pool.QueryRow(ctx, query, strings.TrimSpace(input.Slug), strings.TrimSpace(input.Nome), settings)
	return scanOrg(row)
}

// GetByID busca organização pelo identificador.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Organizacao, error) {
	const query = `
        SELECT id, slug, nome, settings, criado_em, atualizado_em
        FROM organizacoes
        WHERE id = $1
    `
	return scanOrg(r.pool.QueryRow(ctx, query, id))
}

// GetBySlug busca organização pelo slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*Organizacao, error) {
	const query = `
        SELECT id, slug, nome, settings, criado_em, atualizado_em
        FROM organizacoes
        WHERE slug = $1
    `
	return scanOrg(r.pool.QueryRow(ctx, query, slug))
}

// List devolve todas as organizações.
func (r *Repository) List(ctx context.Context) ([]Organizacao, error) {
	const query = `
        SELECT id, slug, nome, settings, criado_em, atualizado_em
        FROM organizacoes
        ORDER BY nome
    `
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []Organizacao
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *o)
	}
	return orgs, rows.Err()
}

// UpsertSettings substitui o JSON de configuração da organização.
func (r *Repository) UpsertSettings(ctx context.Context, id uuid.UUID, settings map[string]any) error {
	cmd, err := r.pool.Exec(ctx, `
        UPDATE organizacoes SET settings = $2, atualizado_em = now()
        WHERE id = $1
    `, id, settings)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrg(row pgx.Row) (*Organizacao, error) {
	var o Organizacao
	if err := row.Scan(&o.ID, &o.Slug, &o.Nome, &o.Settings, &o.CriadoEm, &o.AtualizadoEm); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}
