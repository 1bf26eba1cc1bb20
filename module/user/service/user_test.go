package service

import (
	"context"
	"testing"

	"VoiceGate/service/chat"
	"VoiceGate/service/storage/memory"
	"VoiceGate/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopHandle struct{ closed int }

func (h *nopHandle) SendJSON(any) error { return nil }
func (h *nopHandle) Close() error      { h.closed++; return nil }

func newService(t *testing.T) (*UserService, *memory.Directory, *chat.Registry) {
	t.Helper()
	dir := memory.NewDirectory()
	reg := chat.NewRegistry(dir)
	t.Cleanup(reg.Close)
	return NewUserService(dir, reg, chat.NewDispatcher(reg, dir)), dir, reg
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	u, err := svc.Register(ctx, " alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.False(t, u.Connected())

	_, err = svc.Register(ctx, "alice")
	assert.ErrorIs(t, err, errs.ErrAlreadyExists)

	_, err = svc.Register(ctx, "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc, _, reg := newService(t)
	_, _ = svc.Register(ctx, "alice")
	_, _ = svc.Register(ctx, "bob")
	reg.Connect("A1", &nopHandle{})
	require.NoError(t, reg.Associate(ctx, "alice", "A1"))

	out, err := svc.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, out.Users)
	assert.Equal(t, map[string]string{"alice": "A1"}, out.ActiveConnections)
	assert.Equal(t, []string{"A1"}, out.Live)
}

func TestRename_MovesAssociation(t *testing.T) {
	ctx := context.Background()
	svc, dir, reg := newService(t)
	_, _ = svc.Register(ctx, "alice")
	_, _ = svc.Register(ctx, "bob")
	reg.Connect("A1", &nopHandle{})
	require.NoError(t, reg.Associate(ctx, "alice", "A1"))

	assert.ErrorIs(t, svc.Rename(ctx, "alice", "bob"), errs.ErrAlreadyExists)
	assert.ErrorIs(t, svc.Rename(ctx, "ghost", "casper"), errs.ErrNotFound)
	assert.ErrorIs(t, svc.Rename(ctx, "alice", "a/b"), errs.ErrValidation)

	require.NoError(t, svc.Rename(ctx, "alice", "alicia"))
	id, ok := reg.ClientID("alicia")
	assert.True(t, ok)
	assert.Equal(t, "A1", id)
	persisted, ok, err := dir.LookupClientID(ctx, "alicia")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A1", persisted)

	receipt, err := svc.SendInstruction(ctx, "alicia", "go")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusMessageSent, receipt.Status)
}

func TestDelete_ClosesLiveConnection(t *testing.T) {
	ctx := context.Background()
	svc, _, reg := newService(t)
	_, _ = svc.Register(ctx, "alice")
	h := &nopHandle{}
	reg.Connect("A1", h)
	require.NoError(t, reg.Associate(ctx, "alice", "A1"))

	require.NoError(t, svc.Delete(ctx, "alice"))
	assert.False(t, reg.IsLive("A1"))
	assert.Equal(t, 1, h.closed)

	assert.ErrorIs(t, svc.Delete(ctx, "alice"), errs.ErrNotFound)
	_, err := svc.SendInstruction(ctx, "alice", "x")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTestSend(t *testing.T) {
	ctx := context.Background()
	svc, _, reg := newService(t)
	_, _ = svc.Register(ctx, "alice")
	reg.Connect("A1", &nopHandle{})
	require.NoError(t, reg.Associate(ctx, "alice", "A1"))

	receipt, err := svc.TestSend(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, TestInstruction("alice"), receipt.Envelope.Content)
}
