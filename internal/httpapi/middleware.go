package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r3e-network/sfnc/infrastructure/metrics"
	"github.com/r3e-network/sfnc/infrastructure/ratelimit"
)

// rateLimited rejects a request with 429 once limiter's bucket is
// empty, advertising Retry-After the way a client-facing limiter
// should.
func rateLimited(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", strconv.Itoa(int(limiter.RetryAfter().Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// instrumented records request counts/latency and the in-flight gauge on
// m. domain/compiler itself records nothing on m.
func instrumented(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.IncrementInFlight()
		start := time.Now()
		c.Next()
		m.DecrementInFlight()
		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
