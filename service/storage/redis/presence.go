package redis

import (
	"context"
	"time"

	"VoiceGate/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config 用于初始化 Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// presence key: im:presence:<username>
// Value: clientId, TTL bounds how long a crashed node can leave a stale entry.
func presenceKey(username string) string { return "im:presence:" + username }

// 仅当值仍等于 clientId 时删除，避免把新连接写入的在线状态删掉
// KEYS[1] = presence key
// ARGV[1] = clientId
const luaCompareAndDelete = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var compareAndDelete = redis.NewScript(luaCompareAndDelete)

// Presence mirrors registry associations into Redis so other services can see
// who is reachable. It is an observer: errors are logged, never propagated.
type Presence struct {
	rdb     redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
}

// NewPresence connects and pings.
func NewPresence(ctx context.Context, c Config, ttl time.Duration) (*Presence, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewPresenceFromClient(rdb, ttl), nil
}

func NewPresenceFromClient(rdb redis.UniversalClient, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Presence{rdb: rdb, ttl: ttl, timeout: 2 * time.Second}
}

func (p *Presence) Close() error { return p.rdb.Close() }

// Online sets username -> clientId and renews the TTL.
func (p *Presence) Online(ctx context.Context, username, clientID string) error {
	return p.rdb.Set(ctx, presenceKey(username), clientID, p.ttl).Err()
}

// Offline removes the entry only if it still points at clientID.
func (p *Presence) Offline(ctx context.Context, username, clientID string) error {
	return compareAndDelete.Run(ctx, p.rdb, []string{presenceKey(username)}, clientID).Err()
}

// Touch renews the TTL after a successful delivery.
func (p *Presence) Touch(ctx context.Context, username string) error {
	return p.rdb.Expire(ctx, presenceKey(username), p.ttl).Err()
}

// ---- registry observer ----

func (p *Presence) Connected(string) {}

func (p *Presence) Associated(username, clientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.Online(ctx, username, clientID); err != nil {
		logger.Warn("[Presence] online failed", zap.String("username", username), zap.String("clientId", clientID), zap.Error(err))
	}
}

func (p *Presence) Disconnected(clientID string, usernames []string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	for _, u := range usernames {
		if err := p.Offline(ctx, u, clientID); err != nil {
			logger.Warn("[Presence] offline failed", zap.String("username", u), zap.String("clientId", clientID), zap.Error(err))
		}
	}
}

func (p *Presence) Delivered(username, _ string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.Touch(ctx, username); err != nil {
		logger.Debug("[Presence] touch failed", zap.String("username", username), zap.Error(err))
	}
}
