package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psicozen/psicozen-backend-sub003/internal/db"
)

const usuarioColumns = `id, org_id, nome, sobrenome, email, setor, preferencias, papeis, ativo, supabase_id, ultimo_login_em, criado_em, atualizado_em`

// Queries provê acesso às tabelas de usuários e sessões.
type Queries struct {
	pool *pgxpool.Pool
}

// New cria instância de Queries.
func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

// GetUsuarioByEmail busca usuário pelo e-mail normalizado.
func (q *Queries) GetUsuarioByEmail(ctx context.Context, email string) (Usuario, error) {
	query := fmt.Sprintf(`SELECT %s FROM usuarios WHERE lower(email) = lower($1)`, usuarioColumns)
	return scanUsuario(q.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

// GetUsuarioByID busca usuário pelo identificador.
func (q *Queries) GetUsuarioByID(ctx context.Context, id uuid.UUID) (Usuario, error) {
	query := fmt.Sprintf(`SELECT %s FROM usuarios WHERE id = $1`, usuarioColumns)
	return scanUsuario(q.pool.QueryRow(ctx, query, id))
}

// ListUsuarios lista usuários da organização aplicando filtros simples.
func (q *Queries) ListUsuarios(ctx context.Context, filter ListUsuariosFilter) ([]Usuario, error) {
	base := fmt.Sprintf(`SELECT %s FROM usuarios WHERE org_id = $1`, usuarioColumns)

	args := []any{filter.OrgID}
	idx := 2

	if filter.Ativo != nil {
		base += fmt.Sprintf(" AND ativo = $%d", idx)
		args = append(args, *filter.Ativo)
		idx++
	}
	if filter.Setor != nil {
		base += fmt.Sprintf(" AND setor = $%d", idx)
		args = append(args, *filter.Setor)
		idx++
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	base += fmt.Sprintf(" ORDER BY nome, sobrenome LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := q.pool.Query(ctx, base, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usuarios []Usuario
	for rows.Next() {
		u, err := scanUsuario(rows)
		if err != nil {
			return nil, err
		}
		usuarios = append(usuarios, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return usuarios, nil
}

// ListGestoresByOrg lista usuários ativos com papel GESTOR ou ADMIN na organização.
func (q *Queries) ListGestoresByOrg(ctx context.Context, orgID uuid.UUID) ([]Usuario, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM usuarios
        WHERE org_id = $1 AND ativo AND papeis && ARRAY['%s','%s']::text[]
        ORDER BY nome
    `, usuarioColumns, PapelGestor, PapelAdmin)

	rows, err := q.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gestores []Usuario
	for rows.Next() {
		u, err := scanUsuario(rows)
		if err != nil {
			return nil, err
		}
		gestores = append(gestores, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return gestores, nil
}

// InsertUsuario insere novo usuário.
func (q *Queries) InsertUsuario(ctx context.Context, arg InsertUsuarioParams) (Usuario, error) {
	query := fmt.Sprintf(`
        INSERT INTO usuarios (id, org_id, nome, sobrenome, email, setor, preferencias, papeis, ativo, supabase_id)
        VALUES ($1, $2, $3, $4, lower($5), $6, COALESCE($7::jsonb, '{}'::jsonb), $8, $9, $10)
        RETURNING %s
    `, usuarioColumns)

	prefs := arg.Preferencias
	if prefs == nil {
		prefs = map[string]any{}
	}
	papeis := arg.Papeis
	if papeis == nil {
		papeis = []string{PapelColaborador}
	}

	u, err := scanUsuario(q.pool.QueryRow(ctx, query,
		arg.ID,
		arg.OrgID,
		strings.TrimSpace(arg.Nome),
		strings.TrimSpace(arg.Sobrenome),
		strings.TrimSpace(arg.Email),
		arg.Setor,
		prefs,
		papeis,
		arg.Ativo,
		arg.SupabaseID,
	))
	if err != nil {
		return Usuario{}, mapConstraintErr(err)
	}
	return u, nil
}

// UpdateUsuario atualiza campos informados do usuário.
func (q *Queries) UpdateUsuario(ctx context.Context, arg UpdateUsuarioParams) (Usuario, error) {
	setParts := []string{}
	args := []any{}
	idx := 1

	if arg.Nome != nil {
		setParts = append(setParts, fmt.Sprintf("nome = $%d", idx))
		args = append(args, strings.TrimSpace(*arg.Nome))
		idx++
	}
	if arg.Sobrenome != nil {
		setParts = append(setParts, fmt.Sprintf("sobrenome = $%d", idx))
		args = append(args, strings.TrimSpace(*arg.Sobrenome))
		idx++
	}
	if arg.Setor != nil {
		setParts = append(setParts, fmt.Sprintf("setor = $%d", idx))
		args = append(args, *arg.Setor)
		idx++
	}
	if arg.Preferencias != nil {
		setParts = append(setParts, fmt.Sprintf("preferencias = $%d", idx))
		args = append(args, arg.Preferencias)
		idx++
	}
	if arg.Papeis != nil {
		setParts = append(setParts, fmt.Sprintf("papeis = $%d", idx))
		args = append(args, arg.Papeis)
		idx++
	}
	if arg.Ativo != nil {
		setParts = append(setParts, fmt.Sprintf("ativo = $%d", idx))
		args = append(args, *arg.Ativo)
		idx++
	}
	if arg.SupabaseID != nil {
		setParts = append(setParts, fmt.Sprintf("supabase_id = $%d", idx))
		args = append(args, *arg.SupabaseID)
		idx++
	}

	if len(setParts) == 0 {
		return q.GetUsuarioByID(ctx, arg.ID)
	}

	setParts = append(setParts, "atualizado_em = now()")
	args = append(args, arg.ID)

	query := fmt.Sprintf(`
        UPDATE usuarios
        SET %s
        WHERE id = $%d
        RETURNING %s
    `, strings.Join(setParts, ", "), idx, usuarioColumns)

	u, err := scanUsuario(q.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return Usuario{}, mapConstraintErr(err)
	}
	return u, nil
}

// SetUltimoLogin registra o instante do login mais recente.
func (q *Queries) SetUltimoLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	cmd, err := q.pool.Exec(ctx, `UPDATE usuarios SET ultimo_login_em = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AnonimizacaoResult resume os efeitos da anonimização transacional.
type AnonimizacaoResult struct {
	RegistrosAfetados int64
	SessoesRevogadas  []string
}

// AnonimizarTitular anonimiza o titular numa única transação: registros do
// emociograma perdem comentário e autoria, os dados pessoais viram
// placeholders e as sessões ativas são revogadas. Falha em qualquer passo
// desfaz tudo, evitando titular meio-anonimizado.
func (q *Queries) AnonimizarTitular(ctx context.Context, id uuid.UUID) (AnonimizacaoResult, error) {
	var res AnonimizacaoResult

	err := db.WithTx(ctx, q.pool, func(ctx context.Context, tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
            UPDATE emociograma_registros
            SET comentario = NULL, usuario_id = NULL, anonimo = TRUE
            WHERE usuario_id = $1
        `, id)
		if err != nil {
			return err
		}
		res.RegistrosAfetados = cmd.RowsAffected()

		cmd, err = tx.Exec(ctx, `
            UPDATE usuarios
            SET nome = 'Usuário',
                sobrenome = 'Anonimizado',
                email = 'anonimizado+' || id::text || '@psicozen.invalid',
                setor = NULL,
                preferencias = '{}'::jsonb,
                supabase_id = NULL,
                ativo = FALSE,
                atualizado_em = now()
            WHERE id = $1
        `, id)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotFound
		}

		rows, err := tx.Query(ctx, `
            UPDATE sessoes SET revogado = TRUE
            WHERE usuario_id = $1 AND NOT revogado
            RETURNING token_hash
        `, id)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var hash string
			if err := rows.Scan(&hash); err != nil {
				return err
			}
			res.SessoesRevogadas = append(res.SessoesRevogadas, hash)
		}
		return rows.Err()
	})
	if err != nil {
		return AnonimizacaoResult{}, err
	}
	return res, nil
}

// DeleteTitular remove registros do emociograma, sessões e o usuário numa
// única transação. Devolve a contagem de registros removidos.
func (q *Queries) DeleteTitular(ctx context.Context, id uuid.UUID) (int64, error) {
	var registros int64

	err := db.WithTx(ctx, q.pool, func(ctx context.Context, tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `DELETE FROM emociograma_registros WHERE usuario_id = $1`, id)
		if err != nil {
			return err
		}
		registros = cmd.RowsAffected()

		if _, err := tx.Exec(ctx, `DELETE FROM sessoes WHERE usuario_id = $1`, id); err != nil {
			return err
		}

		cmd, err = tx.Exec(ctx, `DELETE FROM usuarios WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return registros, nil
}

// InsertRefreshToken persiste nova sessão.
func (q *Queries) InsertRefreshToken(ctx context.Context, arg InsertRefreshTokenParams) (TokenRefresh, error) {
	const query = `
        INSERT INTO sessoes (id, usuario_id, token_hash, expiracao, ip, user_agent, criado_em)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, usuario_id, token_hash, expiracao, revogado, ip, user_agent, criado_em
    `
	return scanTokenRefresh(q.pool.QueryRow(ctx, query,
		arg.ID, arg.UsuarioID, arg.TokenHash, arg.Expiracao, arg.IP, arg.UserAgent, arg.CriadoEm,
	))
}

// GetRefreshTokenByHash busca sessão pelo hash do token.
func (q *Queries) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (TokenRefresh, error) {
	const query = `
        SELECT id, usuario_id, token_hash, expiracao, revogado, ip, user_agent, criado_em
        FROM sessoes
        WHERE token_hash = $1
    `
	return scanTokenRefresh(q.pool.QueryRow(ctx, query, tokenHash))
}

// RevokeRefreshToken revoga a sessão com o hash informado.
func (q *Queries) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	cmd, err := q.pool.Exec(ctx, `UPDATE sessoes SET revogado = TRUE WHERE token_hash = $1 AND NOT revogado`, tokenHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeSessao revoga uma sessão específica do usuário.
func (q *Queries) RevokeSessao(ctx context.Context, id, usuarioID uuid.UUID) (string, error) {
	var hash string
	err := q.pool.QueryRow(ctx, `
        UPDATE sessoes SET revogado = TRUE
        WHERE id = $1 AND usuario_id = $2 AND NOT revogado
        RETURNING token_hash
    `, id, usuarioID).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return hash, nil
}

// ListSessoesByUsuario lista sessões ativas do usuário, mais recentes primeiro.
func (q *Queries) ListSessoesByUsuario(ctx context.Context, usuarioID uuid.UUID) ([]TokenRefresh, error) {
	const query = `
        SELECT id, usuario_id, token_hash, expiracao, revogado, ip, user_agent, criado_em
        FROM sessoes
        WHERE usuario_id = $1 AND NOT revogado AND expiracao > now()
        ORDER BY criado_em DESC
    `
	rows, err := q.pool.Query(ctx, query, usuarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessoes []TokenRefresh
	for rows.Next() {
		s, err := scanTokenRefresh(rows)
		if err != nil {
			return nil, err
		}
		sessoes = append(sessoes, s)
	}
	return sessoes, rows.Err()
}

// PurgeSessoesExpiradas remove sessões expiradas ou revogadas antes do corte.
func (q *Queries) PurgeSessoesExpiradas(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := q.pool.Exec(ctx, `DELETE FROM sessoes WHERE expiracao < $1 OR revogado`, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanUsuario(row pgx.Row) (Usuario, error) {
	var u Usuario
	err := row.Scan(
		&u.ID,
		&u.OrgID,
		&u.Nome,
		&u.Sobrenome,
		&u.Email,
		&u.Setor,
		&u.Preferencias,
		&u.Papeis,
		&u.Ativo,
		&u.SupabaseID,
		&u.UltimoLoginEm,
		&u.CriadoEm,
		&u.AtualizadoEm,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Usuario{}, ErrNotFound
		}
		return Usuario{}, err
	}
	return u, nil
}

func scanTokenRefresh(row pgx.Row) (TokenRefresh, error) {
	var t TokenRefresh
	err := row.Scan(&t.ID, &t.UsuarioID, &t.TokenHash, &t.Expiracao, &t.Revogado, &t.IP, &t.UserAgent, &t.CriadoEm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenRefresh{}, ErrNotFound
		}
		return TokenRefresh{}, err
	}
	return t, nil
}

func mapConstraintErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicado
	}
	return err
}
