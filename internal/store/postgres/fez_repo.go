package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shipchat/internal/domain"
)

type FezRepo struct {
	db *sql.DB
}

func NewFezRepo(db *sql.DB) *FezRepo {
	return &FezRepo{db: db}
}

var _ domain.FezRepository = (*FezRepo)(nil)

const fezColumns = `id, fez_type, title, info, location, start_time, end_time,
	min_capacity, max_capacity, cancelled, mod_status, owner_id, post_count,
	created_at, updated_at, deleted_at`

func scanFez(row interface{ Scan(...any) error }) (*domain.Fez, error) {
	f := &domain.Fez{}
	err := row.Scan(
		&f.ID, &f.FezType, &f.Title, &f.Info, &f.Location, &f.StartTime, &f.EndTime,
		&f.MinCapacity, &f.MaxCapacity, &f.Cancelled, &f.ModStatus, &f.OwnerID, &f.PostCount,
		&f.CreatedAt, &f.UpdatedAt, &f.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *FezRepo) Create(ctx context.Context, f *domain.Fez, initialUserIDs []uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO fezzes
			(id, fez_type, title, info, location, start_time, end_time,
			 min_capacity, max_capacity, cancelled, mod_status, owner_id, post_count,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10, $11, 0, NOW(), NOW())
		RETURNING created_at, updated_at
	`, f.ID, f.FezType, f.Title, f.Info, f.Location, f.StartTime, f.EndTime,
		f.MinCapacity, f.MaxCapacity, f.ModStatus, f.OwnerID,
	).Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
		return fmt.Errorf("insert fez: %w", err)
	}

	for i, userID := range initialUserIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fez_participants (fez_id, user_id, list_position, read_count, hidden_count, joined_at)
			VALUES ($1, $2, $3, 0, 0, NOW())
		`, f.ID, userID, i); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}
	return nil
}

func (r *FezRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fez, error) {
	f, err := scanFez(r.db.QueryRowContext(ctx,
		`SELECT `+fezColumns+` FROM fezzes WHERE id = $1 AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fez: %w", err)
	}
	return f, nil
}

func (r *FezRepo) Update(ctx context.Context, f *domain.Fez) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE fezzes
		SET title=$1, info=$2, location=$3, start_time=$4, end_time=$5,
		    min_capacity=$6, max_capacity=$7, mod_status=$8, updated_at=NOW()
		WHERE id=$9
	`, f.Title, f.Info, f.Location, f.StartTime, f.EndTime,
		f.MinCapacity, f.MaxCapacity, f.ModStatus, f.ID)
	return err
}

func (r *FezRepo) SetCancelled(ctx context.Context, id uuid.UUID, cancelled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE fezzes SET cancelled=$1, updated_at=NOW() WHERE id=$2`, cancelled, id)
	return err
}

func (r *FezRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE fezzes SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
	return err
}

// filterClause appends the optional type/day predicates and returns the
// extended WHERE clause plus the arg slice. prefix qualifies column names
// when the query joins other tables.
func filterClause(where, prefix string, args []any, filter domain.FezFilter) (string, []any) {
	if filter.Type != "" {
		args = append(args, filter.Type)
		where += fmt.Sprintf(" AND %sfez_type = $%d", prefix, len(args))
	}
	if filter.Day != nil {
		day := filter.Day.Truncate(24 * time.Hour)
		args = append(args, day, day.Add(24*time.Hour))
		where += fmt.Sprintf(" AND %[1]sstart_time >= $%[2]d AND %[1]sstart_time < $%[3]d",
			prefix, len(args)-1, len(args))
	}
	return where, args
}

func windowOf(filter domain.FezFilter) (start, limit int) {
	limit = filter.Limit
	if limit <= 0 {
		limit = 50
	}
	start = filter.Start
	if start < 0 {
		start = 0
	}
	return start, limit
}

func (r *FezRepo) ListOpen(ctx context.Context, filter domain.FezFilter) ([]*domain.Fez, error) {
	where := `deleted_at IS NULL AND fez_type != 'closed'`
	var args []any
	where, args = filterClause(where, "", args, filter)
	start, limit := windowOf(filter)
	args = append(args, limit, start)
	query := fmt.Sprintf(`
		SELECT %s FROM fezzes
		WHERE %s
		ORDER BY start_time ASC NULLS LAST, created_at ASC
		LIMIT $%d OFFSET $%d
	`, fezColumns, where, len(args)-1, len(args))
	return r.list(ctx, query, args)
}

func (r *FezRepo) ListJoined(ctx context.Context, userID uuid.UUID, filter domain.FezFilter) ([]*domain.JoinedFez, error) {
	where := `f.deleted_at IS NULL AND p.user_id = $1`
	args := []any{userID}
	where, args = filterClause(where, "f.", args, filter)
	start, limit := windowOf(filter)
	args = append(args, limit, start)
	query := fmt.Sprintf(`
		SELECT %s, p.read_count, p.hidden_count
		FROM fezzes f
		JOIN fez_participants p ON p.fez_id = f.id
		WHERE %s
		ORDER BY f.updated_at DESC
		LIMIT $%d OFFSET $%d
	`, qualifiedFezColumns("f"), where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list joined fezzes: %w", err)
	}
	defer rows.Close()
	var res []*domain.JoinedFez
	for rows.Next() {
		f := &domain.Fez{}
		j := &domain.JoinedFez{Fez: f}
		if err := rows.Scan(
			&f.ID, &f.FezType, &f.Title, &f.Info, &f.Location, &f.StartTime, &f.EndTime,
			&f.MinCapacity, &f.MaxCapacity, &f.Cancelled, &f.ModStatus, &f.OwnerID, &f.PostCount,
			&f.CreatedAt, &f.UpdatedAt, &f.DeletedAt,
			&j.ReadCount, &j.HiddenCount,
		); err != nil {
			return nil, fmt.Errorf("scan joined fez: %w", err)
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

func (r *FezRepo) ListOwned(ctx context.Context, ownerID uuid.UUID, filter domain.FezFilter) ([]*domain.Fez, error) {
	where := `deleted_at IS NULL AND owner_id = $1`
	args := []any{ownerID}
	where, args = filterClause(where, "", args, filter)
	start, limit := windowOf(filter)
	args = append(args, limit, start)
	query := fmt.Sprintf(`
		SELECT %s FROM fezzes
		WHERE %s
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d
	`, fezColumns, where, len(args)-1, len(args))
	return r.list(ctx, query, args)
}

func (r *FezRepo) list(ctx context.Context, query string, args []any) ([]*domain.Fez, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fezzes: %w", err)
	}
	defer rows.Close()
	var res []*domain.Fez
	for rows.Next() {
		f, err := scanFez(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fez: %w", err)
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func qualifiedFezColumns(alias string) string {
	cols := strings.Split(fezColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
