package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OriginPolicy - список разрешённых origins для браузерных клиентов.
// Общий для CORS и WebSocket upgrade.
type OriginPolicy struct {
	allowed map[string]struct{}
}

func NewOriginPolicy(origins []string) *OriginPolicy {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &OriginPolicy{allowed: allowed}
}

// Allowed сообщает, разрешён ли непустой origin.
func (p *OriginPolicy) Allowed(origin string) bool {
	if p == nil || origin == "" {
		return false
	}
	_, ok := p.allowed[origin]
	return ok
}

// CheckRequest подходит для websocket.Upgrader.CheckOrigin.
// Запросы без Origin приходят не из браузера и пропускаются.
func (p *OriginPolicy) CheckRequest(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || p.Allowed(origin)
}

// CORSMiddleware обрабатывает CORS заголовки и preflight запросы.
func CORSMiddleware(policy *OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); policy.Allowed(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
