package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mergington/middlewares"
	"mergington/models"
	"mergington/utils"
)

const IndexPath = "/static/index.html"

// Options carries everything besides the repository that the routes need.
// Zero values turn the matching feature off.
type Options struct {
	Logger      *zap.Logger
	StaticDir   string
	RateLimiter *middlewares.RateLimiter

	// Redis enables the response cache for GET /activities and the
	// per-email signup quota.
	Redis       *redis.Client
	CacheTTL    time.Duration
	SignupQuota int
}

type deps struct {
	activities models.ActivityRepository
	inv        *utils.CacheInvalidator
	log        *zap.Logger
}

func RegisterRoutes(server *gin.Engine, repo models.ActivityRepository, opts Options) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	d := &deps{activities: repo, log: log}

	server.Use(middlewares.RequestID(), middlewares.RequestLogger(log), middlewares.Metrics())
	if opts.RateLimiter != nil {
		server.Use(opts.RateLimiter.Middleware(middlewares.ClientIPKey))
	}

	signupChain := []gin.HandlerFunc{}
	if opts.Redis != nil {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		server.Use(middlewares.ResponseCache(opts.Redis, ttl))
		d.inv = utils.NewCacheInvalidator(opts.Redis, middlewares.ActivitiesListPrefix)

		if opts.SignupQuota > 0 {
			signupChain = append(signupChain, middlewares.Quota(opts.Redis, middlewares.QuotaRule{
				Limit:  opts.SignupQuota,
				Window: 24 * time.Hour,
				KeyFn:  middlewares.SignupQuotaKey,
			}))
		}
	}

	server.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusTemporaryRedirect, IndexPath)
	})
	if opts.StaticDir != "" {
		server.Static("/static", opts.StaticDir)
	}

	server.GET("/activities", d.getActivities)
	server.POST("/activities/:name/signup", append(signupChain, d.signup)...)
	server.DELETE("/activities/:name/unregister", d.unregister)

	server.GET("/healthz", d.health)
	server.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (d *deps) health(c *gin.Context) {
	if err := d.activities.Ping(c.Request.Context()); err != nil {
		d.log.Error("database ping failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
