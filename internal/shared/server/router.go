package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispute-backend/internal/analysis"
	"dispute-backend/internal/cases"
	"dispute-backend/internal/documents"
	"dispute-backend/internal/mindstudio"
	"dispute-backend/internal/quota"
	"dispute-backend/internal/shared/config"
	"dispute-backend/internal/shared/metrics"
	"dispute-backend/internal/shared/server/middleware"
	"dispute-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router wires up.
type RouterDeps struct {
	Config            config.Config
	CasesHandler      *cases.Handler
	DocumentsHandler  *documents.Handler
	AnalysisHandler   *analysis.Handler
	MindStudioHandler *mindstudio.Handler
	QuotaHandler      *quota.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(cfg.Env),
		middleware.RateLimit(rateLimits()),
	)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	api.GET("/metrics", metrics.Handler())
	registerMeRoutes(api)
	if deps.MindStudioHandler != nil {
		deps.MindStudioHandler.RegisterRoutes(api)
	}
	if deps.CasesHandler != nil {
		deps.CasesHandler.RegisterRoutes(api)
		deps.CasesHandler.RegisterCallbackRoutes(api)
	}
	if deps.DocumentsHandler != nil {
		deps.DocumentsHandler.RegisterRoutes(api)
	}
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	if deps.QuotaHandler != nil {
		deps.QuotaHandler.RegisterRoutes(api)
		if cfg.Env == "dev" {
			dev := api.Group("/dev")
			deps.QuotaHandler.RegisterDevRoutes(dev)
		}
	}

	return r
}

// rateLimits throttles the endpoints that fan out to the external worker
// harder than the rest of the API. The orchestrator applies its own
// per-case cooldown on top of this.
func rateLimits() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"ANALYZE": {Rate: 0.5, Burst: 5},
			"DEFAULT": {Rate: 20, Burst: 40},
		},
		GroupFor: func(c *gin.Context) string {
			switch {
			case c.Request.Method != http.MethodPost:
				return "DEFAULT"
			case hasSuffixAny(c.Request.URL.Path, "/analyze", "/full-analyze", "/second-run", "/extract-details"):
				return "ANALYZE"
			default:
				return "DEFAULT"
			}
		},
	}
}

func hasSuffixAny(path string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
