package api

import (
	"github.com/gin-gonic/gin"
)

// 默认安全响应头
var securityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
	"Cache-Control":          "no-store",
}

// SecurityHeadersMiddleware 安全头中间件
// API 只返回 JSON，订单与支付数据不应被中间代理缓存
func SecurityHeadersMiddleware(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		for k, v := range securityHeaders {
			c.Header(k, v)
		}
		if hsts {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
