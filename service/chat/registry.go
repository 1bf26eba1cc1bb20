package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"VoiceGate/logger"
	"VoiceGate/service/storage"
	"VoiceGate/tools/errs"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// each live connection
type conn struct {
	clientID    string
	sessionID   string
	handle      Handle
	connectedAt time.Time
}

// Registry is the in-memory record of which connections are live and which
// usernames map to them. All map mutation happens under mu; Directory calls
// happen outside mu, so the two are not atomic with each other. Dispatcher
// repairs the divergence on read.
type Registry struct {
	mu       sync.RWMutex
	byConn   map[string]*conn               // clientId -> live conn
	byUser   map[string]string              // username -> clientId
	byClient map[string]map[string]struct{} // clientId -> usernames

	dir       storage.Directory
	observers []Observer
	notify    *Fanout
	now       func() time.Time
}

func NewRegistry(dir storage.Directory, observers ...Observer) *Registry {
	return &Registry{
		byConn:    make(map[string]*conn),
		byUser:    make(map[string]string),
		byClient:  make(map[string]map[string]struct{}),
		dir:       dir,
		observers: observers,
		notify:    NewFanout(1, 1024),
		now:       time.Now,
	}
}

func (r *Registry) emit(f func(o Observer)) {
	if len(r.observers) == 0 {
		return
	}
	r.notify.Submit(func() {
		for _, o := range r.observers {
			f(o)
		}
	})
}

// ---- index helpers, mu must be held ----

func (r *Registry) linkLocked(username, clientID string) {
	if prev, ok := r.byUser[username]; ok && prev != clientID {
		r.unlinkLocked(username)
	}
	r.byUser[username] = clientID
	set := r.byClient[clientID]
	if set == nil {
		set = make(map[string]struct{})
		r.byClient[clientID] = set
	}
	set[username] = struct{}{}
}

func (r *Registry) unlinkLocked(username string) (clientID string, ok bool) {
	clientID, ok = r.byUser[username]
	if !ok {
		return "", false
	}
	delete(r.byUser, username)
	if set := r.byClient[clientID]; set != nil {
		delete(set, username)
		if len(set) == 0 {
			delete(r.byClient, clientID)
		}
	}
	return clientID, true
}

func (r *Registry) dropClientLocked(clientID string) []string {
	set := r.byClient[clientID]
	if len(set) == 0 {
		return nil
	}
	names := lo.Keys(set)
	for _, u := range names {
		delete(r.byUser, u)
	}
	delete(r.byClient, clientID)
	sort.Strings(names)
	return names
}

// Connect records h as the live connection for clientID and returns a session id
// identifying this physical connection. A prior handle under the same clientID is
// closed and replaced. This is deliberately not a full Disconnect of the old
// handle: usernames mapped to clientID and their Directory rows are kept, so
// they carry over to the new handle and a reconnecting peer stays reachable.
func (r *Registry) Connect(clientID string, h Handle) string {
	c := &conn{
		clientID:    clientID,
		sessionID:   uuid.NewString(),
		handle:      h,
		connectedAt: r.now(),
	}

	r.mu.Lock()
	prev := r.byConn[clientID]
	r.byConn[clientID] = c
	r.mu.Unlock()

	if prev != nil {
		logger.Info("[Registry] superseding connection",
			zap.String("clientId", clientID),
			zap.String("oldSession", prev.sessionID),
			zap.String("newSession", c.sessionID))
		if err := prev.handle.Close(); err != nil {
			logger.Debug("[Registry] close superseded handle", zap.String("clientId", clientID), zap.Error(err))
		}
	}
	logger.Info("[Registry] connected", zap.String("clientId", clientID), zap.String("session", c.sessionID))
	r.emit(func(o Observer) { o.Connected(clientID) })
	return c.sessionID
}

// Disconnect removes clientID from the live set, closes its handle, drops every
// username mapped to it and clears the matching Directory rows. Absent ids are a
// no-op in memory; the Directory is still cleared.
func (r *Registry) Disconnect(ctx context.Context, clientID string) error {
	return r.disconnect(ctx, clientID, "")
}

// Release is the session-exit form of Disconnect: it only applies while sessionID
// is still the live connection for clientID, so a superseded read loop cannot
// tear down its replacement.
func (r *Registry) Release(ctx context.Context, clientID, sessionID string) error {
	return r.disconnect(ctx, clientID, sessionID)
}

func (r *Registry) disconnect(ctx context.Context, clientID, sessionID string) error {
	r.mu.Lock()
	c, live := r.byConn[clientID]
	if sessionID != "" && (!live || c.sessionID != sessionID) {
		r.mu.Unlock()
		logger.Debug("[Registry] release skipped, superseded", zap.String("clientId", clientID), zap.String("session", sessionID))
		return nil
	}
	delete(r.byConn, clientID)
	usernames := r.dropClientLocked(clientID)
	r.mu.Unlock()

	if live {
		_ = c.handle.Close()
	}

	_, err := r.dir.ClearClientID(ctx, clientID)
	if err != nil {
		logger.Error("[Registry] directory clear failed", zap.String("clientId", clientID), zap.Error(err))
	}
	logger.Info("[Registry] disconnected",
		zap.String("clientId", clientID),
		zap.Strings("usernames", usernames),
		zap.Bool("wasLive", live))
	r.emit(func(o Observer) { o.Disconnected(clientID, usernames) })
	return err
}

// Associate maps username to clientID, last write wins. clientID must be live.
// The Directory is written first; memory changes only after it accepts, so a
// rejected association leaves every existing link in place. A connection holds
// one username at a time: once the write succeeds, any other username on
// clientID is released, in memory and in the Directory.
func (r *Registry) Associate(ctx context.Context, username, clientID string) error {
	if !r.IsLive(clientID) {
		return errs.ErrConnectionInvalid.WrapMsg("associate on closed connection", "username", username, "clientId", clientID)
	}

	if err := r.dir.SetClientID(ctx, username, clientID); err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			logger.Error("[Registry] directory write failed",
				zap.String("username", username), zap.String("clientId", clientID), zap.Error(err))
		}
		return err
	}

	r.mu.Lock()
	if _, live := r.byConn[clientID]; !live {
		r.mu.Unlock()
		// closed while we were writing; undo the row unless someone else took it
		if err := r.dir.ReleaseUsername(ctx, username, clientID); err != nil && !errors.Is(err, errs.ErrNotFound) {
			logger.Warn("[Registry] undo association failed", zap.String("username", username), zap.Error(err))
		}
		return errs.ErrConnectionInvalid.WrapMsg("connection closed during associate", "username", username, "clientId", clientID)
	}
	var displaced []string
	for u := range r.byClient[clientID] {
		if u != username {
			displaced = append(displaced, u)
		}
	}
	for _, u := range displaced {
		r.unlinkLocked(u)
	}
	r.linkLocked(username, clientID)
	r.mu.Unlock()

	for _, u := range displaced {
		if err := r.dir.ReleaseUsername(ctx, u, clientID); err != nil && !errors.Is(err, errs.ErrNotFound) {
			logger.Warn("[Registry] release displaced username failed", zap.String("username", u), zap.Error(err))
		}
	}
	if len(displaced) > 0 {
		sort.Strings(displaced)
		r.emit(func(o Observer) { o.Disconnected(clientID, displaced) })
	}

	logger.Info("[Registry] associated", zap.String("username", username), zap.String("clientId", clientID))
	r.emit(func(o Observer) { o.Associated(username, clientID) })
	return nil
}

// SendTo delivers message to clientID if it is live. Failures are not retried.
func (r *Registry) SendTo(clientID string, message any) error {
	r.mu.RLock()
	c := r.byConn[clientID]
	r.mu.RUnlock()
	if c == nil {
		return errs.ErrConnectionInvalid.WrapMsg("not live", "clientId", clientID)
	}
	if err := c.handle.SendJSON(message); err != nil {
		return errs.ErrConnectionInvalid.WrapMsg("send failed", "clientId", clientID, "err", err)
	}
	return nil
}

// ClientID returns the in-memory association for username.
func (r *Registry) ClientID(username string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUser[username]
	return id, ok
}

func (r *Registry) IsLive(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byConn[clientID]
	return ok
}

// RepairAssociation overwrites the in-memory mapping for username with the
// Directory's clientID. The mapping is only recorded while clientID is live, so
// the map never points at a closed connection. Returns whether it was recorded.
func (r *Registry) RepairAssociation(username, clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byUser[username]; ok && cur == clientID {
		return true
	}
	r.unlinkLocked(username)
	if _, live := r.byConn[clientID]; !live {
		return false
	}
	r.linkLocked(username, clientID)
	return true
}

// Forget drops the in-memory mapping for username and returns the clientId it had.
func (r *Registry) Forget(username string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlinkLocked(username)
}

// Rename moves an in-memory association from oldName to newName.
func (r *Registry) Rename(oldName, newName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clientID, ok := r.unlinkLocked(oldName)
	if !ok {
		return
	}
	r.linkLocked(newName, clientID)
}

// Snapshot is a point-in-time copy for the admin listing.
type Snapshot struct {
	Live         []string          `json:"live"`
	Associations map[string]string `json:"associations"`
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	live := lo.Keys(r.byConn)
	sort.Strings(live)
	return Snapshot{
		Live:         live,
		Associations: lo.Assign(map[string]string{}, r.byUser),
	}
}

func (r *Registry) notifyDelivered(username, clientID string) {
	r.emit(func(o Observer) { o.Delivered(username, clientID) })
}

// Close closes every live handle and stops the notifier. Directory rows are left
// as they are; the next process reconciles them on read.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := lo.Values(r.byConn)
	r.byConn = make(map[string]*conn)
	r.byUser = make(map[string]string)
	r.byClient = make(map[string]map[string]struct{})
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.handle.Close()
	}
	r.notify.Close()
}
