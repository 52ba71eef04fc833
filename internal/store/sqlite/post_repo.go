package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shipchat/internal/domain"
)

type PostRepo struct {
	db *sql.DB
}

func NewPostRepo(db *sql.DB) *PostRepo {
	return &PostRepo{db: db}
}

var _ domain.PostRepository = (*PostRepo)(nil)

const postColumns = `id, fez_id, author_id, text, image_name, created_at, deleted_at`

// Create inserts the post and applies every counter change in one
// transaction: the fez post count goes up, each member who hides the author
// gets hidden_count+1, and the author's read_count advances to cover all
// posts visible to them (including this one).
func (r *PostRepo) Create(ctx context.Context, p *domain.FezPost, hiddenUserIDs []uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin post tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE fezzes SET post_count = post_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, p.FezID); err != nil {
		return fmt.Errorf("bump post count: %w", err)
	}
	var postCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT post_count FROM fezzes WHERE id = ?`, p.FezID,
	).Scan(&postCount); err != nil {
		return fmt.Errorf("read post count: %w", err)
	}

	p.CreatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO fez_posts (fez_id, author_id, text, image_name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.FezID, p.AuthorID, p.Text, p.ImageName, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id

	if len(hiddenUserIDs) > 0 {
		args := make([]any, 0, len(hiddenUserIDs)+1)
		args = append(args, p.FezID)
		for _, uid := range hiddenUserIDs {
			args = append(args, uid)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE fez_participants SET hidden_count = hidden_count + 1
			WHERE fez_id = ? AND user_id IN (`+inArgs(len(hiddenUserIDs))+`)
		`, args...); err != nil {
			return fmt.Errorf("bump hidden counts: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE fez_participants SET read_count = ? - hidden_count
		WHERE fez_id = ? AND user_id = ?
	`, postCount, p.FezID, p.AuthorID); err != nil {
		return fmt.Errorf("advance author read count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit post tx: %w", err)
	}
	return nil
}

func (r *PostRepo) GetByID(ctx context.Context, id int64) (*domain.FezPost, error) {
	p := &domain.FezPost{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+postColumns+` FROM fez_posts WHERE id = ? AND deleted_at IS NULL
	`, id).Scan(&p.ID, &p.FezID, &p.AuthorID, &p.Text, &p.ImageName, &p.CreatedAt, &p.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// Delete soft-deletes the post and rolls the counters back in one
// transaction: read counts past the deleted post's index slide down by one,
// hidden counts of members who hid the author drop by one (never below zero).
func (r *PostRepo) Delete(ctx context.Context, p *domain.FezPost, postIndex int, hiddenUserIDs []uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE fez_posts SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL
	`, p.ID)
	if err != nil {
		return fmt.Errorf("soft delete post: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE fezzes SET post_count = post_count - 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND post_count > 0
	`, p.FezID); err != nil {
		return fmt.Errorf("drop post count: %w", err)
	}

	if len(hiddenUserIDs) > 0 {
		args := make([]any, 0, len(hiddenUserIDs)+1)
		args = append(args, p.FezID)
		for _, uid := range hiddenUserIDs {
			args = append(args, uid)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE fez_participants SET hidden_count = hidden_count - 1
			WHERE fez_id = ? AND hidden_count > 0 AND user_id IN (`+inArgs(len(hiddenUserIDs))+`)
		`, args...); err != nil {
			return fmt.Errorf("drop hidden counts: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE fez_participants SET read_count = read_count - 1
		WHERE fez_id = ? AND read_count > ?
	`, p.FezID, postIndex); err != nil {
		return fmt.Errorf("slide read counts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

func (r *PostRepo) List(ctx context.Context, fezID uuid.UUID, excludedAuthors []uuid.UUID, start, limit int) ([]*domain.FezPost, error) {
	where := `fez_id = ? AND deleted_at IS NULL`
	args := []any{fezID}
	if len(excludedAuthors) > 0 {
		where += ` AND author_id NOT IN (` + inArgs(len(excludedAuthors)) + `)`
		for _, id := range excludedAuthors {
			args = append(args, id)
		}
	}
	args = append(args, limit, start)
	query := fmt.Sprintf(`
		SELECT %s FROM fez_posts
		WHERE %s
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`, postColumns, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()
	var res []*domain.FezPost
	for rows.Next() {
		p := &domain.FezPost{}
		if err := rows.Scan(&p.ID, &p.FezID, &p.AuthorID, &p.Text, &p.ImageName, &p.CreatedAt, &p.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *PostRepo) CountBefore(ctx context.Context, fezID uuid.UUID, postID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fez_posts
		WHERE fez_id = ? AND id < ? AND deleted_at IS NULL
	`, fezID, postID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count posts before: %w", err)
	}
	return n, nil
}

func (r *PostRepo) CountByAuthors(ctx context.Context, fezID uuid.UUID, authorIDs []uuid.UUID) (int, error) {
	if len(authorIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(authorIDs)+1)
	args = append(args, fezID)
	for _, id := range authorIDs {
		args = append(args, id)
	}
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fez_posts
		WHERE fez_id = ? AND deleted_at IS NULL AND author_id IN (`+inArgs(len(authorIDs))+`)
	`, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count posts by authors: %w", err)
	}
	return n, nil
}
