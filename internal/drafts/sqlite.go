package drafts

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/utils"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// SQLiteStore keeps drafts in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at dbPath and
// applies pending migrations.
func OpenSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	const op = lserrors.Op("drafts.OpenSQLiteStore")

	if err := os.MkdirAll(filepath.Dir(dbPath), utils.DefaultDirPerms); err != nil {
		return nil, lserrors.E(op, lserrors.KindIO, fmt.Errorf("create db directory: %w", err))
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, lserrors.E(op, lserrors.KindIO, fmt.Errorf("open sqlite database: %w", err))
	}
	// single writer connection
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(time.Minute)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, lserrors.E(op, lserrors.KindIO, err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(embeddedMigrations)
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Load returns the draft for repoID.
func (s *SQLiteStore) Load(ctx context.Context, repoID string) (string, error) {
	var message string
	err := s.db.QueryRowContext(ctx, `SELECT message FROM commit_drafts WHERE repo_id = ?`, repoID).Scan(&message)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", lserrors.E(lserrors.Op("drafts.SQLiteStore.Load"), lserrors.KindIO, err)
	}
	return message, nil
}

// Save upserts the draft for repoID.
func (s *SQLiteStore) Save(ctx context.Context, repoID, text string) error {
	var err error
	if text == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM commit_drafts WHERE repo_id = ?`, repoID)
	} else {
		_, err = s.db.ExecContext(ctx, `
INSERT INTO commit_drafts (repo_id, message, updated_at) VALUES (?, ?, ?)
ON CONFLICT(repo_id) DO UPDATE SET message = excluded.message, updated_at = excluded.updated_at`,
			repoID, text, time.Now().Unix())
	}
	if err != nil {
		return lserrors.E(lserrors.Op("drafts.SQLiteStore.Save"), lserrors.KindIO, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
