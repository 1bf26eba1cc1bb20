package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "VOICEGATE"

const (
	DirectoryMemory   = "memory"
	DirectorySQLite   = "sqlite"
	DirectoryPostgres = "postgres"
	DirectoryMongo    = "mongo"
)

// AppConfig 网关进程配置，全部来自环境变量（VOICEGATE_*），可选 .env 文件。
type AppConfig struct {
	NodeID   string `envconfig:"NODE_ID" default:"voicegate-1"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":37961"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Directory        string        `envconfig:"DIRECTORY" default:"sqlite"`
	SQLitePath       string        `envconfig:"SQLITE_PATH" default:"users.db"`
	PostgresDSN      string        `envconfig:"POSTGRES_DSN"`
	MongoURI         string        `envconfig:"MONGO_URI"`
	MongoDatabase    string        `envconfig:"MONGO_DATABASE" default:"voicegate"`
	DirectoryTimeout time.Duration `envconfig:"DIRECTORY_TIMEOUT" default:"3s"`

	// 可选：在线状态镜像 / 生命周期事件
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	PresenceTTL   time.Duration `envconfig:"PRESENCE_TTL" default:"2h"`
	NatsURL       string        `envconfig:"NATS_URL"`
	NatsSubject   string        `envconfig:"NATS_SUBJECT_PREFIX" default:"voicegate"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	AdminSecret    string   `envconfig:"ADMIN_JWT_SECRET"`

	SendQueueSize  int           `envconfig:"SEND_QUEUE_SIZE" default:"64"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"5s"`
	PongWait       time.Duration `envconfig:"PONG_WAIT" default:"60s"`
	MaxMessageSize int64         `envconfig:"MAX_MESSAGE_SIZE" default:"65536"`
	ShutdownGrace  time.Duration `envconfig:"SHUTDOWN_GRACE" default:"5s"`
}

// Load reads the optional dotenv files, then the environment.
func Load(dotenvFiles ...string) (AppConfig, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		// 文件不存在不算错误
		_ = godotenv.Load(f)
	}

	var cfg AppConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	c.Directory = strings.ToLower(strings.TrimSpace(c.Directory))
	switch c.Directory {
	case DirectoryMemory:
	case DirectorySQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: %s_SQLITE_PATH is required for sqlite directory", EnvPrefix)
		}
	case DirectoryPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("config: %s_POSTGRES_DSN is required for postgres directory", EnvPrefix)
		}
	case DirectoryMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("config: %s_MONGO_URI is required for mongo directory", EnvPrefix)
		}
	default:
		return fmt.Errorf("config: unknown directory driver %q", c.Directory)
	}
	if c.DirectoryTimeout <= 0 {
		return fmt.Errorf("config: directory timeout must be positive")
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("config: send queue size must be positive")
	}
	return nil
}
