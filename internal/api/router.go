package api

import (
	"github.com/calin/convohist/internal/api/handler"
	"github.com/calin/convohist/internal/api/middleware"
	"github.com/calin/convohist/internal/config"
	"github.com/calin/convohist/internal/crm"
	"github.com/calin/convohist/internal/logger"
	"github.com/calin/convohist/internal/repository"
	"github.com/calin/convohist/internal/service"
	"github.com/calin/convohist/internal/sso"
	"github.com/gin-gonic/gin"
)

// Version is set at build time via -ldflags
var Version = "dev"

// RouterDeps bundles the services the HTTP layer exposes
type RouterDeps struct {
	Exports   *service.ExportService
	Contacts  *crm.ContactService
	Tokens    *crm.TokenStore
	Audit     *repository.ExportHistoryRepository
	Decryptor *sso.Decryptor
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *RouterDeps, cfg *config.ServerConfig, log *logger.Logger) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(Version)
	exportHandler := handler.NewExportHandler(deps.Exports, deps.Audit)
	contactHandler := handler.NewContactHandler(deps.Contacts)
	oauthHandler := handler.NewOAuthHandler(deps.Tokens)
	ssoHandler := handler.NewSSOHandler(deps.Decryptor)

	// Health check
	r.GET("/health", healthHandler.Health)

	// Marketplace OAuth installation callback
	r.GET("/oauth/callback", oauthHandler.Callback)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Export jobs
		v1.POST("/exports", exportHandler.StartExport)
		v1.GET("/exports/history", exportHandler.History)
		v1.GET("/exports/history/:jobId", exportHandler.HistoryByJob)
		v1.GET("/exports/:id", exportHandler.GetStatus)
		v1.GET("/exports/:id/download", exportHandler.Download)

		// Contacts
		v1.GET("/contacts", contactHandler.Search)

		// SSO
		v1.POST("/sso/decrypt", ssoHandler.Decrypt)
	}

	return r
}
