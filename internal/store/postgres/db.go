package postgres

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the shipchat schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Users
		`CREATE TABLE IF NOT EXISTS users (
			id               UUID         PRIMARY KEY,
			username         VARCHAR(50)  UNIQUE NOT NULL,
			display_name     VARCHAR(100) NOT NULL DEFAULT '',
			email            VARCHAR(100) UNIQUE,
			hashed_password  VARCHAR(255) NOT NULL,
			access_level     SMALLINT     NOT NULL DEFAULT 2,
			is_active        BOOLEAN      NOT NULL DEFAULT TRUE,
			created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			last_seen        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Fezzes
		`CREATE TABLE IF NOT EXISTS fezzes (
			id           UUID         PRIMARY KEY,
			fez_type     VARCHAR(20)  NOT NULL,
			title        VARCHAR(100) NOT NULL DEFAULT '',
			info         TEXT         NOT NULL DEFAULT '',
			location     TEXT,
			start_time   TIMESTAMPTZ,
			end_time     TIMESTAMPTZ,
			min_capacity INTEGER      NOT NULL DEFAULT 0,
			max_capacity INTEGER      NOT NULL DEFAULT 0,
			cancelled    BOOLEAN      NOT NULL DEFAULT FALSE,
			mod_status   VARCHAR(20)  NOT NULL DEFAULT 'normal',
			owner_id     UUID         NOT NULL REFERENCES users(id),
			post_count   INTEGER      NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			deleted_at   TIMESTAMPTZ
		)`,

		// Membership pivots. list_position is append-only join order; the
		// first max_capacity positions are active members, the rest waitlist.
		`CREATE TABLE IF NOT EXISTS fez_participants (
			fez_id        UUID        NOT NULL REFERENCES fezzes(id) ON DELETE CASCADE,
			user_id       UUID        NOT NULL REFERENCES users(id),
			list_position INTEGER     NOT NULL,
			read_count    INTEGER     NOT NULL DEFAULT 0,
			hidden_count  INTEGER     NOT NULL DEFAULT 0,
			joined_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (fez_id, user_id)
		)`,

		// Posts
		`CREATE TABLE IF NOT EXISTS fez_posts (
			id         BIGSERIAL   PRIMARY KEY,
			fez_id     UUID        NOT NULL REFERENCES fezzes(id) ON DELETE CASCADE,
			author_id  UUID        NOT NULL REFERENCES users(id),
			text       TEXT        NOT NULL,
			image_name TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		)`,

		// Block and mute relations
		`CREATE TABLE IF NOT EXISTS user_blocks (
			user_id    UUID        NOT NULL REFERENCES users(id),
			target_id  UUID        NOT NULL REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, target_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_mutes (
			user_id    UUID        NOT NULL REFERENCES users(id),
			target_id  UUID        NOT NULL REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, target_id)
		)`,

		// Notification counters
		`CREATE TABLE IF NOT EXISTS notifications (
			user_id      UUID        NOT NULL REFERENCES users(id),
			fez_id       UUID        NOT NULL REFERENCES fezzes(id) ON DELETE CASCADE,
			unread_count INTEGER     NOT NULL DEFAULT 0,
			viewed_at    TIMESTAMPTZ,
			PRIMARY KEY (user_id, fez_id)
		)`,

		// Moderation reports
		`CREATE TABLE IF NOT EXISTS reports (
			id           UUID        PRIMARY KEY,
			kind         VARCHAR(20) NOT NULL,
			reported_id  TEXT        NOT NULL,
			submitter_id UUID        NOT NULL REFERENCES users(id),
			message      TEXT        NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_fezzes_owner ON fezzes(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fezzes_type ON fezzes(fez_type)`,
		`CREATE INDEX IF NOT EXISTS idx_fezzes_start_time ON fezzes(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_fezzes_updated_at ON fezzes(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_fez_participants_user ON fez_participants(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fez_participants_position ON fez_participants(fez_id, list_position)`,
		`CREATE INDEX IF NOT EXISTS idx_fez_posts_fez ON fez_posts(fez_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_fez_posts_author ON fez_posts(author_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

// inArgs renders a "$n, $n+1, ..." placeholder list for len(n) values,
// starting at position start.
func inArgs(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
