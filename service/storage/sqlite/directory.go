package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"VoiceGate/logger"
	"VoiceGate/module/user/model"
	"VoiceGate/tools/errs"

	"github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username   TEXT PRIMARY KEY,
	client_id  TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_users_client_id ON users(client_id);
`

// Directory handles SQLite operations for the username directory.
type Directory struct {
	db     *sql.DB
	dbPath string
}

// NewDirectory opens (or creates) the database file and ensures the schema.
func NewDirectory(dbPath string) (*Directory, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	d := &Directory{db: db, dbPath: dbPath}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.Infof("[Directory] sqlite ready path=%s", dbPath)
	return d, nil
}

func (d *Directory) migrate() error {
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

func (d *Directory) Close() error {
	return d.db.Close()
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

func (d *Directory) RegisterUsername(ctx context.Context, username string) (model.User, error) {
	now := time.Now().UTC()
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (username, created_at) VALUES (?, ?)`, username, now)
	if err != nil {
		if isConstraint(err) {
			return model.User{}, errs.ErrAlreadyExists.WrapMsg("", "username", username)
		}
		return model.User{}, errs.Storage(err, "register username", "username", username)
	}
	return model.User{Username: username, CreatedAt: now}, nil
}

func (d *Directory) LookupClientID(ctx context.Context, username string) (string, bool, error) {
	var clientID sql.NullString
	err := d.db.QueryRowContext(ctx,
		`SELECT client_id FROM users WHERE username = ?`, username).Scan(&clientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, errs.ErrNotFound.WrapMsg("", "username", username)
		}
		return "", false, errs.Storage(err, "lookup client id", "username", username)
	}
	if !clientID.Valid {
		return "", false, nil
	}
	return clientID.String, true, nil
}

func (d *Directory) SetClientID(ctx context.Context, username, clientID string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE users SET client_id = ? WHERE username = ?`, clientID, username)
	if err != nil {
		return errs.Storage(err, "set client id", "username", username)
	}
	return expectOne(res, username)
}

func (d *Directory) ClearClientID(ctx context.Context, clientID string) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE users SET client_id = NULL WHERE client_id = ?`, clientID)
	if err != nil {
		return 0, errs.Storage(err, "clear client id", "clientId", clientID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Storage(err, "clear client id rows", "clientId", clientID)
	}
	return n, nil
}

func (d *Directory) ReleaseUsername(ctx context.Context, username, clientID string) error {
	var exists int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username = ?`, username).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.ErrNotFound.WrapMsg("", "username", username)
		}
		return errs.Storage(err, "release username", "username", username)
	}
	_, err = d.db.ExecContext(ctx,
		`UPDATE users SET client_id = NULL WHERE username = ? AND client_id = ?`, username, clientID)
	if err != nil {
		return errs.Storage(err, "release username", "username", username)
	}
	return nil
}

func (d *Directory) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT username, client_id, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, errs.Storage(err, "list users")
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var (
			u        model.User
			clientID sql.NullString
			created  sql.NullTime
		)
		if err := rows.Scan(&u.Username, &clientID, &created); err != nil {
			return nil, errs.Storage(err, "scan user")
		}
		if clientID.Valid {
			id := clientID.String
			u.ClientID = &id
		}
		if created.Valid {
			u.CreatedAt = created.Time
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err, "list users")
	}
	return out, nil
}

func (d *Directory) RenameUsername(ctx context.Context, oldName, newName string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE users SET username = ? WHERE username = ?`, newName, oldName)
	if err != nil {
		if isConstraint(err) {
			return errs.ErrAlreadyExists.WrapMsg("", "username", newName)
		}
		return errs.Storage(err, "rename username", "from", oldName, "to", newName)
	}
	return expectOne(res, oldName)
}

func (d *Directory) DeleteUsername(ctx context.Context, username string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return errs.Storage(err, "delete username", "username", username)
	}
	return expectOne(res, username)
}

func expectOne(res sql.Result, username string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Storage(err, "rows affected", "username", username)
	}
	if n == 0 {
		return errs.ErrNotFound.WrapMsg("", "username", username)
	}
	return nil
}
