package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ipamd/internal/domain"
)

const userColumns = `id, username, password_hash, role, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (domain.User, error) {
	q := queryerFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if isNoRows(err) {
		return domain.User{}, domain.Errorf(domain.ErrNotFound, "用户 %d 不存在", id)
	}
	return user, err
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	q := queryerFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	user, err := scanUser(row)
	if isNoRows(err) {
		return domain.User{}, domain.Errorf(domain.ErrNotFound, "用户 %s 不存在", username)
	}
	return user, err
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]domain.User, int64, error) {
	q := queryerFrom(ctx, r.pool)
	var total int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}

	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role,
			&u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, translate(err)
		}
		out = append(out, u)
	}
	return out, total, translate(rows.Err())
}

func (r *UserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	q := queryerFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		user.Username, user.PasswordHash, string(user.Role))
	return scanUser(row)
}

func (r *UserRepository) Update(ctx context.Context, id int64, input domain.UpdateUserInput) (domain.User, error) {
	q := queryerFrom(ctx, r.pool)
	var role *string
	if input.Role != nil {
		s := string(*input.Role)
		role = &s
	}
	row := q.QueryRow(ctx, `
		UPDATE users
		SET password_hash = COALESCE($2, password_hash),
		    role = COALESCE($3, role),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, input.PasswordHash, role)
	user, err := scanUser(row)
	if isNoRows(err) {
		return domain.User{}, domain.Errorf(domain.ErrNotFound, "用户 %d 不存在", id)
	}
	return user, err
}

func (r *UserRepository) Delete(ctx context.Context, id int64) (bool, error) {
	q := queryerFrom(ctx, r.pool)
	tag, err := q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.User{}, err
		}
		return domain.User{}, translate(err)
	}
	return user, nil
}
