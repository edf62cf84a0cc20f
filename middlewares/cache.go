package middlewares

import (
	"bytes"
	"crypto/sha1"
	"encoding/gob"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"mergington/metrics"
)

// ActivitiesListPrefix namespaces cached GET /activities responses so writes
// can purge them in one scan.
const ActivitiesListPrefix = "cache:activities:list:"

type cachedBody struct {
	Status int
	Header map[string][]string
	Body   []byte
}

// path + query hashed so the redis key stays short
func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CacheKeyFrom returns the redis key for a cacheable request, or "" when the
// request must not be cached (non-GET or any route other than the list).
func CacheKeyFrom(c *gin.Context) string {
	if c.Request.Method != http.MethodGet || c.FullPath() != "/activities" {
		return ""
	}
	return ActivitiesListPrefix + sha1Hex("GET|/activities|"+c.Request.URL.RawQuery)
}

func ResponseCache(rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := CacheKeyFrom(c)
		if key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		if b, err := rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
			var hit cachedBody
			if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&hit); err == nil {
				for k, vals := range hit.Header {
					for _, v := range vals {
						c.Writer.Header().Add(k, v)
					}
				}
				c.Writer.Header().Set("X-Cache", "HIT")
				c.Status(hit.Status)
				_, _ = c.Writer.Write(hit.Body)
				metrics.ResponseCacheTotal.WithLabelValues("hit").Inc()
				c.Abort()
				return
			}
		}
		metrics.ResponseCacheTotal.WithLabelValues("miss").Inc()

		buf := &bytes.Buffer{}
		bw := &bufferedWriter{ResponseWriter: c.Writer, buf: buf}
		c.Writer = bw
		// must be set before the handler writes the body
		c.Header("X-Cache", "MISS")

		c.Next()

		// only 2xx responses are cached
		if bw.Status() >= 200 && bw.Status() < 300 {
			item := cachedBody{
				Status: bw.Status(),
				Header: map[string][]string{"Content-Type": bw.Header().Values("Content-Type")},
				Body:   buf.Bytes(),
			}
			var o bytes.Buffer
			if err := gob.NewEncoder(&o).Encode(item); err == nil {
				_ = rdb.Set(ctx, key, o.Bytes(), ttl).Err()
			}
		}
	}
}

type bufferedWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
