// Package memory is a process-local Directory, used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"VoiceGate/module/user/model"
	"VoiceGate/tools/errs"
)

type Directory struct {
	mu    sync.RWMutex
	users map[string]*model.User
	now   func() time.Time
}

func NewDirectory() *Directory {
	return &Directory{
		users: make(map[string]*model.User),
		now:   time.Now,
	}
}

func (d *Directory) RegisterUsername(ctx context.Context, username string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, errs.Storage(err, "register username")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[username]; ok {
		return model.User{}, errs.ErrAlreadyExists.WrapMsg("", "username", username)
	}
	u := &model.User{Username: username, CreatedAt: d.now().UTC()}
	d.users[username] = u
	return *u, nil
}

func (d *Directory) LookupClientID(ctx context.Context, username string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, errs.Storage(err, "lookup client id")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[username]
	if !ok {
		return "", false, errs.ErrNotFound.WrapMsg("", "username", username)
	}
	if u.ClientID == nil {
		return "", false, nil
	}
	return *u.ClientID, true, nil
}

func (d *Directory) SetClientID(ctx context.Context, username, clientID string) error {
	if err := ctx.Err(); err != nil {
		return errs.Storage(err, "set client id")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[username]
	if !ok {
		return errs.ErrNotFound.WrapMsg("", "username", username)
	}
	id := clientID
	u.ClientID = &id
	return nil
}

func (d *Directory) ClearClientID(ctx context.Context, clientID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errs.Storage(err, "clear client id")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, u := range d.users {
		if u.ClientID != nil && *u.ClientID == clientID {
			u.ClientID = nil
			n++
		}
	}
	return n, nil
}

func (d *Directory) ReleaseUsername(ctx context.Context, username, clientID string) error {
	if err := ctx.Err(); err != nil {
		return errs.Storage(err, "release username")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[username]
	if !ok {
		return errs.ErrNotFound.WrapMsg("", "username", username)
	}
	if u.ClientID != nil && *u.ClientID == clientID {
		u.ClientID = nil
	}
	return nil
}

func (d *Directory) ListUsers(ctx context.Context) ([]model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Storage(err, "list users")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.User, 0, len(d.users))
	for _, u := range d.users {
		cp := *u
		if u.ClientID != nil {
			id := *u.ClientID
			cp.ClientID = &id
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (d *Directory) RenameUsername(ctx context.Context, oldName, newName string) error {
	if err := ctx.Err(); err != nil {
		return errs.Storage(err, "rename username")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[oldName]
	if !ok {
		return errs.ErrNotFound.WrapMsg("", "username", oldName)
	}
	if _, taken := d.users[newName]; taken {
		return errs.ErrAlreadyExists.WrapMsg("", "username", newName)
	}
	delete(d.users, oldName)
	u.Username = newName
	d.users[newName] = u
	return nil
}

func (d *Directory) DeleteUsername(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return errs.Storage(err, "delete username")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[username]; !ok {
		return errs.ErrNotFound.WrapMsg("", "username", username)
	}
	delete(d.users, username)
	return nil
}

func (d *Directory) Close() error { return nil }
