package emociograma

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const registroColumns = `id, org_id, usuario_id, nivel, emoji, comentario, anonimo, setor, criado_em`
const alertaColumns = `id, org_id, registro_id, severidade, notificados, resolvido, resolvido_por, resolvido_em, nota, criado_em`

// Repository provê acesso às tabelas do emociograma.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository cria instância do repositório.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRegistro insere o check-in do dia. A unicidade (usuario_id, dia) vem
// de índice único; violação vira ErrRegistroDiario.
func (r *Repository) CreateRegistro(ctx context.Context, input CreateRegistroInput) (*Registro, error) {
	const query = `
        INSERT INTO emociograma_registros (org_id, usuario_id, nivel, emoji, comentario, anonimo, setor)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING ` + registroColumns

	emoji := strings.TrimSpace(input.Emoji)
	if emoji == "" {
		emoji = EmojiPadrao(input.Nivel)
	}

	row := r.pool.QueryRow(ctx, query,
		input.OrgID,
		input.UsuarioID,
		input.Nivel,
		emoji,
		input.Comentario,
		input.Anonimo,
		input.Setor,
	)

	registro, err := scanRegistro(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrRegistroDiario
		}
		return nil, err
	}
	return registro, nil
}

// ListByUsuario lista o histórico do colaborador, mais recentes primeiro.
func (r *Repository) ListByUsuario(ctx context.Context, usuarioID uuid.UUID, limit int) ([]Registro, error) {
	if limit <= 0 || limit > 365 {
		limit = 90
	}

	const query = `
        SELECT ` + registroColumns + `
        FROM emociograma_registros
        WHERE usuario_id = $1
        ORDER BY criado_em DESC
        LIMIT $2
    `

	rows, err := r.pool.Query(ctx, query, usuarioID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var registros []Registro
	for rows.Next() {
		reg, err := scanRegistro(rows)
		if err != nil {
			return nil, err
		}
		registros = append(registros, *reg)
	}
	return registros, rows.Err()
}

// ResumoByOrg agrega média, total e críticos por dia/setor no período.
// Registros anônimos entram no agregado sem expor autor.
func (r *Repository) ResumoByOrg(ctx context.Context, orgID uuid.UUID, de, ate time.Time) ([]ResumoDia, error) {
	const query = `
        SELECT date_trunc('day', criado_em) AS dia,
               setor,
               AVG(nivel)::float8 AS media,
               COUNT(*)::int AS total,
               COUNT(*) FILTER (WHERE nivel <= 2)::int AS criticos
        FROM emociograma_registros
        WHERE org_id = $1 AND criado_em >= $2 AND criado_em < $3
        GROUP BY 1, 2
        ORDER BY 1 DESC, 2 NULLS FIRST
    `

	rows, err := r.pool.Query(ctx, query, orgID, de, ate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resumo []ResumoDia
	for rows.Next() {
		var item ResumoDia
		if err := rows.Scan(&item.Dia, &item.Setor, &item.Media, &item.Total, &item.Criticos); err != nil {
			return nil, err
		}
		resumo = append(resumo, item)
	}
	return resumo, rows.Err()
}

// InsertAlerta registra alerta derivado de um check-in.
func (r *Repository) InsertAlerta(ctx context.Context, orgID, registroID uuid.UUID, severidade string) (*Alerta, error) {
	const query = `
        INSERT INTO emociograma_alertas (org_id, registro_id, severidade, notificados)
        VALUES ($1, $2, $3, '{}')
        RETURNING ` + alertaColumns

	return scanAlerta(r.pool.QueryRow(ctx, query, orgID, registroID, severidade))
}

// MarkNotificados grava os destinatários efetivamente avisados.
// Falha parcial no envio resulta em lista parcial, nunca em erro.
func (r *Repository) MarkNotificados(ctx context.Context, alertaID uuid.UUID, emails []string) error {
	if emails == nil {
		emails = []string{}
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE emociograma_alertas SET notificados = $2 WHERE id = $1`, alertaID, emails)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlertaNotFound
	}
	return nil
}

// ListAlertas lista alertas da organização, abertos primeiro.
func (r *Repository) ListAlertas(ctx context.Context, orgID uuid.UUID, somenteAbertos bool, limit int) ([]Alerta, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + alertaColumns + ` FROM emociograma_alertas WHERE org_id = $1`
	if somenteAbertos {
		query += ` AND NOT resolvido`
	}
	query += ` ORDER BY resolvido, criado_em DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alertas []Alerta
	for rows.Next() {
		a, err := scanAlerta(rows)
		if err != nil {
			return nil, err
		}
		alertas = append(alertas, *a)
	}
	return alertas, rows.Err()
}

// ResolverAlerta marca o alerta como resolvido com autor e nota.
func (r *Repository) ResolverAlerta(ctx context.Context, id, resolvidoPor uuid.UUID, nota *string) (*Alerta, error) {
	const query = `
        UPDATE emociograma_alertas
        SET resolvido = TRUE, resolvido_por = $2, resolvido_em = now(), nota = $3
        WHERE id = $1 AND NOT resolvido
        RETURNING ` + alertaColumns

	return scanAlerta(r.pool.QueryRow(ctx, query, id, resolvidoPor, nota))
}

// LastAlertaForUsuarioSince verifica alerta recente do colaborador (throttle).
// As colunas precisam do alias: registros e alertas compartilham id/org_id/criado_em.
func (r *Repository) LastAlertaForUsuarioSince(ctx context.Context, usuarioID uuid.UUID, since time.Time) (*Alerta, error) {
	const query = `
        SELECT a.id, a.org_id, a.registro_id, a.severidade, a.notificados,
               a.resolvido, a.resolvido_por, a.resolvido_em, a.nota, a.criado_em
        FROM emociograma_alertas a
        JOIN emociograma_registros reg ON reg.id = a.registro_id
        WHERE reg.usuario_id = $1 AND a.criado_em >= $2
        ORDER BY a.criado_em DESC
        LIMIT 1
    `
	return scanAlerta(r.pool.QueryRow(ctx, query, usuarioID, since))
}

func scanRegistro(row pgx.Row) (*Registro, error) {
	var reg Registro
	if err := row.Scan(&reg.ID, &reg.OrgID, &reg.UsuarioID, &reg.Nivel, &reg.Emoji, &reg.Comentario, &reg.Anonimo, &reg.Setor, &reg.CriadoEm); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &reg, nil
}

func scanAlerta(row pgx.Row) (*Alerta, error) {
	var a Alerta
	if err := row.Scan(&a.ID, &a.OrgID, &a.RegistroID, &a.Severidade, &a.Notificados, &a.Resolvido, &a.ResolvidoPor, &a.ResolvidoEm, &a.Nota, &a.CriadoEm); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertaNotFound
		}
		return nil, err
	}
	return &a, nil
}
