package security

import (
	"net/http"
	"strings"

	"VoiceGate/logger"
	"VoiceGate/tools/errs"
	jwtlib "VoiceGate/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// context keys
const (
	CtxAuthKey   = "authorization" // raw token
	CtxClaimsKey = "claims"        // *jwtlib.JWTClaims
)

type Options struct {
	JWT                       jwtlib.Options
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true
	RequiredScope             string // 默认 AdminScope
}

func DefaultOptions(secret []byte) *Options {
	return &Options{
		JWT:                       jwtlib.DefaultOptions(secret),
		HeaderToken:               CtxAuthKey,
		EnableAuthorizationBearer: true,
		RequiredScope:             jwtlib.AdminScope,
	}
}

// Enabled reports whether a secret is configured. Without one the admin routes are open.
func (o *Options) Enabled() bool {
	return o != nil && len(o.JWT.Secret) > 0
}

// Middleware 校验管理员 token；未配置密钥时直接放行。
func Middleware(opts *Options) gin.HandlerFunc {
	if !opts.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		token := extractToken(c, opts)
		if token == "" {
			abort(c, "missing token")
			return
		}
		claims, err := jwtlib.Verify(opts.JWT, token)
		if err != nil {
			logger.Info("[Auth] token rejected", zap.String("path", c.FullPath()), zap.Error(err))
			abort(c, "invalid token")
			return
		}
		if opts.RequiredScope != "" && !claims.HasScope(opts.RequiredScope) {
			abort(c, "missing scope "+opts.RequiredScope)
			return
		}
		c.Set(CtxAuthKey, token)
		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

func extractToken(c *gin.Context, opts *Options) string {
	token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))
	// 兼容 Authorization: Bearer xxx
	if opts.EnableAuthorizationBearer {
		authz := token
		if authz == "" {
			authz = strings.TrimSpace(c.GetHeader("Authorization"))
		}
		if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
	}
	return token
}

func abort(c *gin.Context, detail string) {
	ce := errs.ErrUnauthorized
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": ce.Code, "kind": ce.Kind, "msg": ce.Msg, "detail": detail})
}
