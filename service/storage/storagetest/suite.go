// Package storagetest holds the behaviour every Directory backend must share.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"VoiceGate/service/storage"
	"VoiceGate/tools/errs"

	"github.com/stretchr/testify/require"
)

// RunDirectorySuite exercises a fresh Directory from newDir for every case.
func RunDirectorySuite(t *testing.T, newDir func(t *testing.T) storage.Directory) {
	t.Run("RegisterUsername_Unique", func(t *testing.T) {
		req := require.New(t)
		dir := newDir(t)
		ctx := context.Background()

		u, err := dir.RegisterUsername(ctx, "alice")
		req.NoError(err)
		req.Equal("alice", u.Username)
		req.Nil(u.ClientID)
		req.False(u.CreatedAt.IsZero())

		_, err = dir.RegisterUsername(ctx, "alice")
		req.True(errors.Is(err, errs.ErrAlreadyExists))
	})

	t.Run("LookupClientID", func(t *testing.T) {
		req := require.New(t)
		dir := newDir(t)
		ctx := context.Background()

		_, _, err := dir.LookupClientID(ctx, "ghost")
		req.True(errors.Is(err, errs.ErrNotFound))

		_, err = dir.RegisterUsername(ctx, "alice")
		req.NoError(err)

		id, ok, err := dir.LookupClientID(ctx, "alice")
		req.NoError(err)
		req.False(ok)
		req.Empty(id)

		req.NoError(dir.SetClientID(ctx, "alice", "A1"))
		id, ok, err = dir.LookupClientID(ctx, "alice")
		req.NoError(err)
		req.True(ok)
		req.Equal("A1", id)
	})

	t.Run("SetClientID_UnknownUser", func(t *testing.T) {
		req := require.New(t)
		dir := newDir(t)

		err := dir.SetClientID(context.Background(), "ghost", "A1")
		req.True(errors.Is(err, errs.ErrNotFound))
	})

	t.Run("ClearClientID_FansOut", func(t *testing.T) {
		req := require.New(t)
		dir := newDir(t)
		ctx := context.Background()

		for _, name := range []string{"alice", "bob", "carol"} {
			_, err := dir.RegisterUsername(ctx, name)
			req.NoError(err)
		}
		req.NoError(dir.SetClientID(ctx, "alice", "A1"))
		req.NoError(dir.SetClientID(ctx, "bob", "A1"))
		req.NoError(dir.SetClientID(ctx, "carol", "C1"))

		n, err := dir.ClearClientID(ctx, "A1")
		req.NoError(err)
		req.Equal(int64(2), n)

		_, ok, err := dir.LookupClientID(ctx, "alice")
		req.NoError(err)
		req.False(ok)
		_, ok, err = dir.LookupClientID(ctx, "bob")
		req.NoError(err)
		req.False(ok)
		id, ok, err := dir.LookupClientID(ctx, "carol")
		req.NoError(err)
		req.True(ok)
		req.Equal("C1", id)

		n, err = dir.ClearClientID(ctx, "A1")
		req.NoError(err)
		req.Zero(n)
	})

	t.Run("ReleaseUsername_CompareAndClear", func(t *testing.T) {
		req := require.New(t)
		dir := newDir(t)
		ctx := context.Background()

		_, err := dir.RegisterUsername(ctx, "alice")
		req.NoError(err)
		req.NoError(dir.SetClientID(ctx, "alice", "A2"))

		// stale owner: no change
		req.NoError(dir.ReleaseUsername(ctx, "alice", "A1"))
		id, ok, err := dir.LookupClientID(ctx, "alice")
		req.NoError(err)
		req.True(ok)
		req.Equal("A2", id)

		req.NoError(dir.ReleaseUsername(ctx, "alice", "A2"))
		_, ok, err = dir.LookupClientID(ctx, "alice")
		req.NoError(err)
		req.False(ok)
	})

	t.Run("ListRenameDelete", func(t *testing.T) {
		req := require.New(t)
		dir := newDir(t)
		ctx := context.Background()

		for _, name := range []string{"bob", "alice"} {
			_, err := dir.RegisterUsername(ctx, name)
			req.NoError(err)
		}
		req.NoError(dir.SetClientID(ctx, "alice", "A1"))

		users, err := dir.ListUsers(ctx)
		req.NoError(err)
		req.Len(users, 2)
		req.Equal("alice", users[0].Username)
		req.True(users[0].Connected())
		req.Equal("A1", users[0].ClientIDOrEmpty())
		req.False(users[1].Connected())

		req.True(errors.Is(dir.RenameUsername(ctx, "alice", "bob"), errs.ErrAlreadyExists))
		req.True(errors.Is(dir.RenameUsername(ctx, "ghost", "zed"), errs.ErrNotFound))
		req.NoError(dir.RenameUsername(ctx, "alice", "alicia"))

		id, ok, err := dir.LookupClientID(ctx, "alicia")
		req.NoError(err)
		req.True(ok)
		req.Equal("A1", id)
		_, _, err = dir.LookupClientID(ctx, "alice")
		req.True(errors.Is(err, errs.ErrNotFound))

		req.NoError(dir.DeleteUsername(ctx, "alicia"))
		req.True(errors.Is(dir.DeleteUsername(ctx, "alicia"), errs.ErrNotFound))

		users, err = dir.ListUsers(ctx)
		req.NoError(err)
		req.Len(users, 1)
	})

	t.Run("CancelledContext_IsStorageError", func(t *testing.T) {
		req := require.New(t)
		dir := newDir(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := dir.RegisterUsername(ctx, "alice")
		req.Error(err)
		req.True(errors.Is(err, errs.ErrStorage))
	})
}
