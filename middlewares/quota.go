package middlewares

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type QuotaRule struct {
	Limit  int                       // successful requests allowed per window
	Window time.Duration             // e.g. 24h
	KeyFn  func(*gin.Context) string // "" skips the quota for this request
}

// SignupQuotaKey keys the quota on the email being signed up, so one address
// cannot be used to churn through activities.
func SignupQuotaKey(c *gin.Context) string {
	email := strings.ToLower(strings.TrimSpace(c.Query("email")))
	if email == "" {
		return ""
	}
	return fmt.Sprintf("quota:signup:%s:day", email)
}

// Quota charges a request against its key only when the handler succeeds, so a
// 404, duplicate or full-activity attempt never uses up the allowance. The
// check before the handler and the INCR after it are not atomic: two
// concurrent successful requests can overshoot the limit by one.
func Quota(rdb *redis.Client, rule QuotaRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rule.KeyFn(c)
		if key == "" || rule.Limit <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		used, err := rdb.Get(ctx, key).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			// redis down: fail open
			c.Next()
			return
		}
		if used >= rule.Limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail": "Signup quota exceeded. Please try again later.",
			})
			return
		}
		// headers are flushed by the handler, so report usage before this request
		c.Header("X-Quota-Used", fmt.Sprintf("%d/%d", used, rule.Limit))
		c.Next()

		if status := c.Writer.Status(); status < 200 || status >= 300 {
			return
		}
		n, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return
		}
		if n == 1 {
			// first success of the window starts the clock
			_ = rdb.Expire(ctx, key, rule.Window).Err()
		}
	}
}
