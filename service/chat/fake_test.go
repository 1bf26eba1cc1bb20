package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"VoiceGate/service/storage/memory"
	"VoiceGate/tools/errs"

	"github.com/stretchr/testify/require"
)

// fakeHandle records what the registry pushes to it.
type fakeHandle struct {
	mu      sync.Mutex
	sent    []any
	closes  int
	sendErr error
}

func (h *fakeHandle) SendJSON(v any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, v)
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return nil
}

func (h *fakeHandle) Sent() []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]any(nil), h.sent...)
}

func (h *fakeHandle) Closes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

var errBrokenPipe = errors.New("broken pipe")

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(e string) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

func (o *recordingObserver) Connected(clientID string) { o.add("connected:" + clientID) }
func (o *recordingObserver) Associated(username, clientID string) {
	o.add("associated:" + username + "@" + clientID)
}
func (o *recordingObserver) Disconnected(clientID string, usernames []string) {
	e := "disconnected:" + clientID
	for _, u := range usernames {
		e += ":" + u
	}
	o.add(e)
}
func (o *recordingObserver) Delivered(username, clientID string) {
	o.add("delivered:" + username + "@" + clientID)
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

type fixture struct {
	dir  *memory.Directory
	reg  *Registry
	disp *Dispatcher
}

func newFixture(t *testing.T, observers ...Observer) *fixture {
	t.Helper()
	dir := memory.NewDirectory()
	reg := NewRegistry(dir, observers...)
	t.Cleanup(reg.Close)
	return &fixture{dir: dir, reg: reg, disp: NewDispatcher(reg, dir)}
}

func (f *fixture) register(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		_, err := f.dir.RegisterUsername(context.Background(), n)
		require.NoError(t, err)
	}
}

func (f *fixture) persisted(t *testing.T, username string) (string, bool) {
	t.Helper()
	id, ok, err := f.dir.LookupClientID(context.Background(), username)
	require.NoError(t, err)
	return id, ok
}

// flakyDirectory fails the selected operations with a StorageError.
type flakyDirectory struct {
	*memory.Directory
	mu   sync.Mutex
	fail map[string]bool
}

func newFlakyDirectory() *flakyDirectory {
	return &flakyDirectory{Directory: memory.NewDirectory(), fail: map[string]bool{}}
}

func (d *flakyDirectory) breakOp(ops ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, op := range ops {
		d.fail[op] = true
	}
}

func (d *flakyDirectory) err(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[op] {
		return errs.Storage(errors.New("connection reset by peer"), op)
	}
	return nil
}

func (d *flakyDirectory) LookupClientID(ctx context.Context, username string) (string, bool, error) {
	if err := d.err("lookup"); err != nil {
		return "", false, err
	}
	return d.Directory.LookupClientID(ctx, username)
}

func (d *flakyDirectory) SetClientID(ctx context.Context, username, clientID string) error {
	if err := d.err("set"); err != nil {
		return err
	}
	return d.Directory.SetClientID(ctx, username, clientID)
}

func (d *flakyDirectory) ClearClientID(ctx context.Context, clientID string) (int64, error) {
	if err := d.err("clear"); err != nil {
		return 0, err
	}
	return d.Directory.ClearClientID(ctx, clientID)
}
