package postgres

import (
	"context"
	"errors"
	"fmt"

	"VoiceGate/logger"
	"VoiceGate/module/user/model"
	"VoiceGate/service/storage/postgres/migrations"
	"VoiceGate/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory connects the pool and applies the embedded migrations.
func NewDirectory(ctx context.Context, dsn string) (*Directory, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	logger.Infof("[Directory] postgres ready")
	return &Directory{pool: pool}, nil
}

// RunMigrations sets up goose with the embedded migrations and runs them.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (d *Directory) Close() error {
	d.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (d *Directory) RegisterUsername(ctx context.Context, username string) (model.User, error) {
	u := model.User{Username: username}
	err := d.pool.QueryRow(ctx,
		`INSERT INTO users (username) VALUES ($1) RETURNING created_at`, username).Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, errs.ErrAlreadyExists.WrapMsg("", "username", username)
		}
		return model.User{}, errs.Storage(err, "register username", "username", username)
	}
	return u, nil
}

func (d *Directory) LookupClientID(ctx context.Context, username string) (string, bool, error) {
	var clientID *string
	err := d.pool.QueryRow(ctx,
		`SELECT client_id FROM users WHERE username = $1`, username).Scan(&clientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, errs.ErrNotFound.WrapMsg("", "username", username)
		}
		return "", false, errs.Storage(err, "lookup client id", "username", username)
	}
	if clientID == nil {
		return "", false, nil
	}
	return *clientID, true, nil
}

func (d *Directory) SetClientID(ctx context.Context, username, clientID string) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE users SET client_id = $1 WHERE username = $2`, clientID, username)
	if err != nil {
		return errs.Storage(err, "set client id", "username", username)
	}
	return expectOne(tag, username)
}

func (d *Directory) ClearClientID(ctx context.Context, clientID string) (int64, error) {
	tag, err := d.pool.Exec(ctx,
		`UPDATE users SET client_id = NULL WHERE client_id = $1`, clientID)
	if err != nil {
		return 0, errs.Storage(err, "clear client id", "clientId", clientID)
	}
	return tag.RowsAffected(), nil
}

func (d *Directory) ReleaseUsername(ctx context.Context, username, clientID string) error {
	// single statement: report NotFound only when the row is missing entirely
	var found bool
	err := d.pool.QueryRow(ctx, `
		WITH upd AS (
			UPDATE users SET client_id = NULL
			WHERE username = $1 AND client_id = $2
			RETURNING 1
		)
		SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username, clientID).Scan(&found)
	if err != nil {
		return errs.Storage(err, "release username", "username", username)
	}
	if !found {
		return errs.ErrNotFound.WrapMsg("", "username", username)
	}
	return nil
}

func (d *Directory) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT username, client_id, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, errs.Storage(err, "list users")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.User, error) {
		var u model.User
		err := row.Scan(&u.Username, &u.ClientID, &u.CreatedAt)
		return u, err
	})
	if err != nil {
		return nil, errs.Storage(err, "list users")
	}
	return out, nil
}

func (d *Directory) RenameUsername(ctx context.Context, oldName, newName string) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE users SET username = $1 WHERE username = $2`, newName, oldName)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists.WrapMsg("", "username", newName)
		}
		return errs.Storage(err, "rename username", "from", oldName, "to", newName)
	}
	return expectOne(tag, oldName)
}

func (d *Directory) DeleteUsername(ctx context.Context, username string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return errs.Storage(err, "delete username", "username", username)
	}
	return expectOne(tag, username)
}

func expectOne(tag pgconn.CommandTag, username string) error {
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound.WrapMsg("", "username", username)
	}
	return nil
}
