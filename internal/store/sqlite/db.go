package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the shipchat schema on SQLite.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			display_name VARCHAR(100) NOT NULL DEFAULT '',
			email VARCHAR(100) UNIQUE,
			hashed_password VARCHAR(255) NOT NULL,
			access_level INTEGER NOT NULL DEFAULT 2,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS fezzes (
			id TEXT PRIMARY KEY,
			fez_type VARCHAR(20) NOT NULL,
			title VARCHAR(100) NOT NULL DEFAULT '',
			info TEXT NOT NULL DEFAULT '',
			location TEXT,
			start_time DATETIME,
			end_time DATETIME,
			min_capacity INTEGER NOT NULL DEFAULT 0,
			max_capacity INTEGER NOT NULL DEFAULT 0,
			cancelled BOOLEAN NOT NULL DEFAULT FALSE,
			mod_status VARCHAR(20) NOT NULL DEFAULT 'normal',
			owner_id TEXT NOT NULL,
			post_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at DATETIME,
			FOREIGN KEY (owner_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS fez_participants (
			fez_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			list_position INTEGER NOT NULL,
			read_count INTEGER NOT NULL DEFAULT 0,
			hidden_count INTEGER NOT NULL DEFAULT 0,
			joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (fez_id, user_id),
			FOREIGN KEY (fez_id) REFERENCES fezzes(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS fez_posts (
			id INTEGER PRIMARY KEY,
			fez_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			text TEXT NOT NULL,
			image_name TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at DATETIME,
			FOREIGN KEY (fez_id) REFERENCES fezzes(id) ON DELETE CASCADE,
			FOREIGN KEY (author_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS user_blocks (
			user_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, target_id),
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (target_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS user_mutes (
			user_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, target_id),
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (target_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			user_id TEXT NOT NULL,
			fez_id TEXT NOT NULL,
			unread_count INTEGER NOT NULL DEFAULT 0,
			viewed_at DATETIME,
			PRIMARY KEY (user_id, fez_id),
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (fez_id) REFERENCES fezzes(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			kind VARCHAR(20) NOT NULL,
			reported_id TEXT NOT NULL,
			submitter_id TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (submitter_id) REFERENCES users(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);`,
		`CREATE INDEX IF NOT EXISTS idx_fezzes_owner ON fezzes(owner_id);`,
		`CREATE INDEX IF NOT EXISTS idx_fezzes_type ON fezzes(fez_type);`,
		`CREATE INDEX IF NOT EXISTS idx_fezzes_start_time ON fezzes(start_time);`,
		`CREATE INDEX IF NOT EXISTS idx_fezzes_updated_at ON fezzes(updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_fez_participants_user ON fez_participants(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_fez_participants_position ON fez_participants(fez_id, list_position);`,
		`CREATE INDEX IF NOT EXISTS idx_fez_posts_fez ON fez_posts(fez_id, id);`,
		`CREATE INDEX IF NOT EXISTS idx_fez_posts_author ON fez_posts(author_id);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// inArgs renders a "?, ?, ..." placeholder list for n values.
func inArgs(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
