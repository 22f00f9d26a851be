package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/pkg/httputil"
	"github.com/jwalitptl/patient-records/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// PublicHandler mounts routes that must be reachable without a token.
type PublicHandler interface {
	RegisterPublicRoutes(*gin.RouterGroup)
}

type Config struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	RateLimit      *middleware.RateLimiterConfig
}

type Router struct {
	engine    *gin.Engine
	auth      *middleware.AuthMiddleware
	metrics   *metrics.Metrics
	health    Handler
	public    []PublicHandler
	protected []Handler
}

// NewRouter builds the engine and its global middleware chain. Routes are
// mounted by Setup.
func NewRouter(
	auth *middleware.AuthMiddleware,
	m *metrics.Metrics,
	health Handler,
	public []PublicHandler,
	protected []Handler,
	config Config,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:    engine,
		auth:      auth,
		metrics:   m,
		health:    health,
		public:    public,
		protected: protected,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		r.metricsMiddleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.NoStore(),
		middleware.CORS(middleware.DefaultCORSConfig(config.AllowedOrigins)),
		middleware.SizeLimit(config.MaxBodyBytes),
	)

	if config.RateLimit != nil {
		engine.Use(middleware.NewRateLimiter(*config.RateLimit).RateLimit())
	}
	if config.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(config.RequestTimeout))
	}

	engine.NoRoute(func(c *gin.Context) {
		httputil.Abort(c, http.StatusNotFound, "route not found")
	})

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	if r.health != nil {
		r.health.RegisterRoutes(api)
	}

	for _, h := range r.public {
		h.RegisterPublicRoutes(api)
	}

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	for _, h := range r.protected {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		r.metrics.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
