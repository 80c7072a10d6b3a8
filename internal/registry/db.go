// Package registry implements the Contact Registry (component D): a
// sqlite-backed table keyed by wxid, plus the peripheral WarningCache and
// MomentTimestamp tables that share the same embedded database file.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// UnboundChatID is the sentinel chat_id meaning "known contact, not yet
// bound to a Telegram group".
const UnboundChatID int64 = -9_999_999_999

// Registry wraps the contact sqlite database and its sub-stores.
type Registry struct {
	db *sql.DB

	Contacts *ContactStore
	Warnings *WarningStore
	Moments  *MomentStore
	AuditLog *AuditLogStore

	// Stickers is opened separately (it's bbolt-backed, not sqlite) and
	// assigned by the wiring layer after Open; nil until then.
	Stickers *StickerIndex
}

// Open opens (creating if absent) the sqlite file at path and runs pending
// migrations. A single process keeps one Registry for its lifetime; the
// pool is capped at one open connection, so all reads and writes are
// serialized through it.
func Open(ctx context.Context, path string) (*Registry, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping registry database: %w", err)
	}

	r := &Registry{db: db}
	r.Contacts = &ContactStore{db: db}
	r.Warnings = &WarningStore{db: db}
	r.Moments = &MomentStore{db: db}
	r.AuditLog = &AuditLogStore{db: db}

	if err := r.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return r, nil
}

// runMigrations applies every embedded migration newer than the database's
// recorded schema version, one transaction per file, tracked in a
// schema_migrations table — the teacher's own versioning scheme, adapted
// for sqlite's lack of a server-side NOW() default.
func (r *Registry) runMigrations(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current migration version: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%04d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", version, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}
	}

	return nil
}

// Close closes the underlying sqlite connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
