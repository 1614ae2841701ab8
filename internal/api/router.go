// Package api wires together all HTTP routes for the Crewbase backend.
//
// Route grouping philosophy:
//   - Onboarding routes (/api/v1/onboarding/) are called by freshly
//     authenticated principals that do not have an account yet, so they carry
//     the strict per-IP rate limit instead of authentication state.
//   - Admin routes (/api/v1/admin/) sit behind the general rate limit and are
//     expected to be fronted by the identity-aware ingress in deployment.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/crewbase/crewbase/internal/api/admin"
	"github.com/crewbase/crewbase/internal/api/onboarding"
	"github.com/crewbase/crewbase/internal/config"
	"github.com/crewbase/crewbase/internal/db/repositories"
	"github.com/crewbase/crewbase/internal/identity"
	"github.com/crewbase/crewbase/internal/jobs"
	"github.com/crewbase/crewbase/internal/middleware"
	"github.com/crewbase/crewbase/internal/provisioning"
	"github.com/crewbase/crewbase/internal/safego"
)

// Version is the reported API version. Overridden at build time via
// -ldflags "-X github.com/crewbase/crewbase/internal/api.Version=...".
var Version = "0.1.0"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	reconciler   *jobs.MetadataReconciler
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.reconciler != nil {
		bg.reconciler.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB, directory identity.Directory) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	codeRepo := repositories.NewInvitationCodeRepository(db)
	provisioningRepo := repositories.NewProvisioningRepository(db)

	// Wrap *sql.DB with sqlx for the stats handler
	sqlxDB := sqlx.NewDb(db, "postgres")

	service := provisioning.NewService(directory, accountRepo, codeRepo, provisioningRepo, &cfg.Provisioning)

	// Start the metadata reconciler so merges that failed post-commit are
	// retried until the directory projection converges.
	reconciler := jobs.NewMetadataReconciler(directory, accountRepo, &cfg.Provisioning)
	safego.Go(func() { reconciler.Start(context.Background()) })

	bg := &BackgroundServices{reconciler: reconciler}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint
	router.GET("/ready", readinessHandler(db))

	// API version
	router.GET("/version", versionHandler())

	onboardingHandlers := onboarding.NewHandlers(service)

	v1Onboarding := router.Group("/api/v1/onboarding")
	if cfg.Security.RateLimiting.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Security.RateLimiting.OnboardingRequestsPerMinute,
			BurstSize:         cfg.Security.RateLimiting.OnboardingBurst,
			CleanupInterval:   5 * time.Minute,
		})
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		v1Onboarding.Use(middleware.RateLimitMiddleware(limiter))
	}
	{
		v1Onboarding.POST("/employee", onboardingHandlers.EmployeeHandler())
		v1Onboarding.POST("/admin", onboardingHandlers.AdminHandler())
	}

	orgHandlers := admin.NewOrganizationHandlers(db)
	codeHandlers := admin.NewCodeHandlers(db)
	statsHandler := admin.NewStatsHandler(sqlxDB)

	v1Admin := router.Group("/api/v1/admin")
	if cfg.Security.RateLimiting.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Security.RateLimiting.RequestsPerMinute,
			BurstSize:         cfg.Security.RateLimiting.Burst,
			CleanupInterval:   5 * time.Minute,
		})
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		v1Admin.Use(middleware.RateLimitMiddleware(limiter))
	}
	{
		v1Admin.GET("/organizations", orgHandlers.ListOrganizationsHandler())
		v1Admin.GET("/organizations/:id", orgHandlers.GetOrganizationHandler())
		v1Admin.POST("/organizations/:id/codes", codeHandlers.MintCodesHandler())
		v1Admin.GET("/organizations/:id/codes", codeHandlers.ListCodesHandler())
		v1Admin.GET("/stats", statsHandler.GetDashboardStats)
	}

	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
func readinessHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware emits one structured log record per request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.Any("request_id", requestID),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}
