package global

import (
	"context"
	"fmt"
	"time"

	appcfg "VoiceGate/global/config"
	"VoiceGate/logger"
	mid "VoiceGate/middleware"
	midsec "VoiceGate/middleware/security"
	"VoiceGate/service/chat"
	"VoiceGate/service/natsx"
	"VoiceGate/service/storage"
	"VoiceGate/service/storage/memory"
	"VoiceGate/service/storage/mgo"
	"VoiceGate/service/storage/postgres"
	redis "VoiceGate/service/storage/redis"
	"VoiceGate/service/storage/sqlite"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Closer 启动过程中打开的外部资源，退出时逆序关闭。
type Closer func() error

// ConfigDirectory 按配置选择 Directory 后端，并套上统一的超时。
func ConfigDirectory(ctx context.Context, cfg appcfg.AppConfig) (storage.Directory, error) {
	var (
		dir storage.Directory
		err error
	)
	switch cfg.Directory {
	case appcfg.DirectoryMemory:
		dir = memory.NewDirectory()
	case appcfg.DirectorySQLite:
		dir, err = sqlite.NewDirectory(cfg.SQLitePath)
	case appcfg.DirectoryPostgres:
		dir, err = postgres.NewDirectory(ctx, cfg.PostgresDSN)
	case appcfg.DirectoryMongo:
		dir, err = mgo.NewDirectory(ctx, mgo.Config{Uri: cfg.MongoURI, Database: cfg.MongoDatabase})
	default:
		err = fmt.Errorf("unknown directory driver %q", cfg.Directory)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s directory: %w", cfg.Directory, err)
	}
	logger.Info("[Boot] directory ready", zap.String("driver", cfg.Directory))
	return storage.WithTimeout(dir, cfg.DirectoryTimeout), nil
}

// ConfigObservers 连接可选的 Redis 在线状态镜像和 NATS 事件发布。
// 未配置地址的不启用；连接失败只告警，网关照常启动。
func ConfigObservers(ctx context.Context, cfg appcfg.AppConfig) ([]chat.Observer, []Closer) {
	var (
		obs     []chat.Observer
		closers []Closer
	)

	if cfg.RedisAddr != "" {
		p, err := redis.NewPresence(ctx, redis.Config{
			Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
		}, cfg.PresenceTTL)
		if err != nil {
			logger.Warn("[Boot] redis presence disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			obs = append(obs, p)
			closers = append(closers, p.Close)
			logger.Info("[Boot] redis presence ready", zap.String("addr", cfg.RedisAddr))
		}
	}

	if cfg.NatsURL != "" {
		nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{
			Servers: []string{cfg.NatsURL},
			Name:    cfg.NodeID,
			Timeout: 3 * time.Second,
		})
		if err != nil {
			logger.Warn("[Boot] nats events disabled", zap.String("url", cfg.NatsURL), zap.Error(err))
		} else if pub, err := natsx.NewEventPublisher(nc, cfg.NatsSubject, cfg.NodeID); err != nil {
			logger.Warn("[Boot] nats routes", zap.Error(err))
			_ = nc.Close()
		} else {
			obs = append(obs, pub)
			closers = append(closers, nc.Close)
			logger.Info("[Boot] nats events ready", zap.String("url", cfg.NatsURL), zap.String("prefix", cfg.NatsSubject))
		}
	}
	return obs, closers
}

// ConfigMiddleware 挂载全局中间件并返回管理路由使用的 Routes。
func ConfigMiddleware(r *gin.Engine, cfg appcfg.AppConfig) mid.Routes {
	r.Use(gin.Recovery(), mid.AccessLog())
	m := mid.NewManager()
	m.Add(mid.CORS(cfg.AllowedOrigins))
	r.Use(m.Use())

	auth := midsec.DefaultOptions(GetJwtSecret(cfg))
	if !auth.Enabled() {
		logger.Warn("[Boot] admin routes are unauthenticated; set VOICEGATE_ADMIN_JWT_SECRET to protect them")
	}
	return mid.Routes{R: r, Auth: midsec.Middleware(auth)}
}

func GetJwtSecret(cfg appcfg.AppConfig) []byte {
	if cfg.AdminSecret == "" {
		return nil
	}
	return []byte(cfg.AdminSecret)
}

// ServerOptions 把进程配置映射为会话层参数。
func ServerOptions(cfg appcfg.AppConfig) chat.ServerOptions {
	return chat.ServerOptions{
		Client: chat.ClientOptions{
			SendQueueSize: cfg.SendQueueSize,
			WriteTimeout:  cfg.WriteTimeout,
			PongWait:      cfg.PongWait,
		},
		MaxMessageSize: cfg.MaxMessageSize,
		AllowedOrigins: cfg.AllowedOrigins,
		ReleaseTimeout: cfg.DirectoryTimeout,
	}
}
