package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// CORS 放行配置的前端来源；"*" 放行所有。预检请求直接 204。
// 不调用 c.Next，可直接挂在 MiddlewareManager 上。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := lo.Map(allowedOrigins, func(o string, _ int) string {
		return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
	})
	allowAll := lo.Contains(allowed, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || lo.Contains(allowed, strings.ToLower(origin))) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
		}
	}
}
