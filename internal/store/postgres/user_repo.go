package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shipchat/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

const userColumns = `id, username, display_name, email, hashed_password, access_level, is_active, created_at, last_seen`

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, display_name, email, hashed_password, access_level, is_active, created_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, last_seen
	`, u.ID, u.Username, u.DisplayName, u.Email, u.HashedPassword, u.AccessLevel, u.IsActive,
	).Scan(&u.CreatedAt, &u.LastSeen)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.getBy(ctx, `id = $1`, id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getBy(ctx, `username = $1`, username)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, `email = $1`, email)
}

func (r *UserRepo) getBy(ctx context.Context, where string, arg any) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg,
	).Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.HashedPassword,
		&u.AccessLevel, &u.IsActive, &u.CreatedAt, &u.LastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) GetHeaders(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.UserHeader, error) {
	res := make(map[uuid.UUID]*domain.UserHeader, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, display_name FROM users WHERE id IN (`+inArgs(1, len(ids))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("get headers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		h := &domain.UserHeader{}
		if err := rows.Scan(&h.ID, &h.Username, &h.DisplayName); err != nil {
			return nil, fmt.Errorf("scan header: %w", err)
		}
		res[h.ID] = h
	}
	return res, rows.Err()
}

func (r *UserRepo) MatchUsernames(ctx context.Context, search string, limit int) ([]*domain.UserHeader, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, display_name FROM users
		WHERE username ILIKE $1 || '%' AND is_active
		ORDER BY username
		LIMIT $2
	`, search, limit)
	if err != nil {
		return nil, fmt.Errorf("match usernames: %w", err)
	}
	defer rows.Close()
	var res []*domain.UserHeader
	for rows.Next() {
		h := &domain.UserHeader{}
		if err := rows.Scan(&h.ID, &h.Username, &h.DisplayName); err != nil {
			return nil, fmt.Errorf("scan header: %w", err)
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r *UserRepo) Update(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET display_name=$1, email=$2, hashed_password=$3, access_level=$4, is_active=$5
		WHERE id=$6
	`, u.DisplayName, u.Email, u.HashedPassword, u.AccessLevel, u.IsActive, u.ID)
	return err
}

func (r *UserRepo) SetLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_seen=$1 WHERE id=$2`, at, id)
	return err
}
