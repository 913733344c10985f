package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provê acesso à trilha de auditoria (append-only).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository cria instância do repositório.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record insere uma nova entrada. Não existe operação de atualização.
func (r *Repository) Record(ctx context.Context, input RecordInput) (*Entry, error) {
	acao := strings.ToLower(strings.TrimSpace(input.Acao))
	if !IsValidAction(acao) {
		return nil, ErrInvalidAction
	}

	const query = `
        INSERT INTO audit_log (org_id, ator_id, sujeito_id, acao, detalhes, ip)
        VALUES ($1, $2, $3, $4, COALESCE($5::jsonb, '{}'::jsonb), $6)
        RETURNING id, org_id, ator_id, sujeito_id, acao, detalhes, ip, criado_em
    `

	detalhes := input.Detalhes
	if detalhes == nil {
		detalhes = map[string]any{}
	}

	row := r.pool.QueryRow(ctx, query, input.OrgID, input.AtorID, input.SujeitoID, acao, detalhes, input.IP)
	return scanEntry(row)
}

// ListBySubject lista entradas do titular, mais recentes primeiro.
func (r *Repository) ListBySubject(ctx context.Context, sujeitoID uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	const query = `
        SELECT id, org_id, ator_id, sujeito_id, acao, detalhes, ip, criado_em
        FROM audit_log
        WHERE sujeito_id = $1
        ORDER BY criado_em DESC
        LIMIT $2
    `

	rows, err := r.pool.Query(ctx, query, sujeitoID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// PurgeBefore remove entradas anteriores ao corte de retenção.
func (r *Repository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM audit_log WHERE criado_em < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	if err := row.Scan(&e.ID, &e.OrgID, &e.AtorID, &e.SujeitoID, &e.Acao, &e.Detalhes, &e.IP, &e.CriadoEm); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}
