package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"shipchat/internal/domain"
)

type BlockRepo struct {
	db *sql.DB
}

func NewBlockRepo(db *sql.DB) *BlockRepo {
	return &BlockRepo{db: db}
}

var _ domain.BlockRepository = (*BlockRepo)(nil)

func (r *BlockRepo) AddBlock(ctx context.Context, userID, targetID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_blocks (user_id, target_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, targetID)
	return err
}

func (r *BlockRepo) RemoveBlock(ctx context.Context, userID, targetID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_blocks WHERE user_id = $1 AND target_id = $2`, userID, targetID)
	return err
}

func (r *BlockRepo) AddMute(ctx context.Context, userID, targetID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_mutes (user_id, target_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, targetID)
	return err
}

func (r *BlockRepo) RemoveMute(ctx context.Context, userID, targetID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_mutes WHERE user_id = $1 AND target_id = $2`, userID, targetID)
	return err
}

func (r *BlockRepo) Blocks(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return r.targets(ctx, `SELECT target_id FROM user_blocks WHERE user_id = $1`, userID)
}

func (r *BlockRepo) Mutes(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return r.targets(ctx, `SELECT target_id FROM user_mutes WHERE user_id = $1`, userID)
}

func (r *BlockRepo) targets(ctx context.Context, query string, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list relation targets: %w", err)
	}
	defer rows.Close()
	var res []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		res = append(res, id)
	}
	return res, rows.Err()
}
