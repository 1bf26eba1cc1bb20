package storage

import (
	"context"
	"time"

	"VoiceGate/module/user/model"
)

// Directory is the durable username -> last-known clientId store.
//
// Every method is a single-row read-modify-write, except ClearClientID which fans
// out over every row holding the given clientId. Implementations return
// errs.ErrAlreadyExists / errs.ErrNotFound for the expected outcomes and wrap
// driver failures with errs.Storage.
type Directory interface {
	// RegisterUsername creates a row with a null clientId.
	RegisterUsername(ctx context.Context, username string) (model.User, error)
	// LookupClientID returns the persisted clientId; ok is false when the column is null.
	LookupClientID(ctx context.Context, username string) (clientID string, ok bool, err error)
	SetClientID(ctx context.Context, username, clientID string) error
	// ClearClientID nulls the column on every row equal to clientID and returns how many rows changed.
	ClearClientID(ctx context.Context, clientID string) (int64, error)
	// ReleaseUsername nulls the column for username only if it still equals clientID.
	ReleaseUsername(ctx context.Context, username, clientID string) error

	ListUsers(ctx context.Context) ([]model.User, error)
	RenameUsername(ctx context.Context, oldName, newName string) error
	DeleteUsername(ctx context.Context, username string) error

	Close() error
}

// WithTimeout bounds every Directory call by d, so a slow backend cannot stall a
// connection's read loop indefinitely. A non-positive d returns dir unchanged.
func WithTimeout(dir Directory, d time.Duration) Directory {
	if d <= 0 {
		return dir
	}
	return &timeoutDirectory{next: dir, timeout: d}
}

type timeoutDirectory struct {
	next    Directory
	timeout time.Duration
}

func (t *timeoutDirectory) RegisterUsername(ctx context.Context, username string) (model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.RegisterUsername(ctx, username)
}

func (t *timeoutDirectory) LookupClientID(ctx context.Context, username string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.LookupClientID(ctx, username)
}

func (t *timeoutDirectory) SetClientID(ctx context.Context, username, clientID string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.SetClientID(ctx, username, clientID)
}

func (t *timeoutDirectory) ClearClientID(ctx context.Context, clientID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.ClearClientID(ctx, clientID)
}

func (t *timeoutDirectory) ReleaseUsername(ctx context.Context, username, clientID string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.ReleaseUsername(ctx, username, clientID)
}

func (t *timeoutDirectory) ListUsers(ctx context.Context) ([]model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.ListUsers(ctx)
}

func (t *timeoutDirectory) RenameUsername(ctx context.Context, oldName, newName string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.RenameUsername(ctx, oldName, newName)
}

func (t *timeoutDirectory) DeleteUsername(ctx context.Context, username string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DeleteUsername(ctx, username)
}

func (t *timeoutDirectory) Close() error { return t.next.Close() }
