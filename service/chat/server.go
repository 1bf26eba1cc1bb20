package chat

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"VoiceGate/service/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// ServerOptions 会话层参数。
type ServerOptions struct {
	Client         ClientOptions
	MaxMessageSize int64
	AllowedOrigins []string      // "*" 放行所有来源
	ReleaseTimeout time.Duration // 会话退出时清理 Directory 的上限
}

func (o *ServerOptions) norm() {
	o.Client.norm()
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	if o.ReleaseTimeout <= 0 {
		o.ReleaseTimeout = 3 * time.Second
	}
}

// Server owns the websocket endpoint. One HandleWS call runs per connection.
type Server struct {
	reg      *Registry
	dir      storage.Directory
	opts     ServerOptions
	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewServer(reg *Registry, dir storage.Directory, opts ServerOptions) *Server {
	opts.norm()
	s := &Server{reg: reg, dir: dir, opts: opts, now: time.Now}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Registry() *Registry { return s.reg }

// Routes 挂载 websocket 入口。
func (s *Server) Routes(r gin.IRouter) {
	r.GET("/ws/:clientId", s.HandleWS)
}

// checkOrigin allows non-browser clients (no Origin header) and the configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if lo.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	normalized := strings.ToLower(u.Scheme + "://" + u.Host)
	return lo.ContainsBy(s.opts.AllowedOrigins, func(o string) bool {
		return strings.ToLower(strings.TrimRight(o, "/")) == normalized
	})
}
