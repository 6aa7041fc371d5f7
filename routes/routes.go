// routes/routes.go
package routes

import (
	"accidentwatch/config"
	"accidentwatch/controllers"
	"accidentwatch/interfaces"
	"accidentwatch/middleware"
	"accidentwatch/services"
	"accidentwatch/utils"
	"accidentwatch/websocket"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// Dependencies are the wired services the HTTP surface needs.
type Dependencies struct {
	Config         *config.Config
	Redis          *redis.Client
	Hub            *websocket.Hub
	Store          interfaces.ReportStore
	Gateway        interfaces.IntakeGateway
	Planner        interfaces.DispatchPlanner
	Facilities     services.FacilitySnapshots
	Refresher      controllers.FacilityRefresher
	RefreshStats   controllers.RefreshStatsProvider
	HealthChecks   map[string]controllers.HealthCheck
	OptionalChecks map[string]controllers.HealthCheck
}

type Controllers struct {
	Report    *controllers.ReportController
	Facility  *controllers.FacilityController
	Dispatch  *controllers.DispatchController
	WebSocket *controllers.WebSocketController
	Health    *controllers.HealthController
}

// SetupRoutes initializes all application routes
func SetupRoutes(deps Dependencies) *gin.Engine {
	router := gin.New()

	ctrls := initializeControllers(deps)
	authMiddleware := middleware.NewAuthMiddleware(utils.NewJWTService(deps.Config.JWTSecret, deps.Config.JWTIssuer))

	setupGlobalMiddleware(router, deps.Config)

	router.GET("/health", ctrls.Health.HealthCheck)

	api := router.Group("/api/v1")
	SetupReportRoutes(api, ctrls.Report, deps.Redis, deps.Config.SubmissionRateLimit)
	SetupFacilityRoutes(api, ctrls.Facility)
	SetupDispatchRoutes(api, ctrls.Dispatch)

	setupAdminRoutes(router, ctrls, authMiddleware)
	SetupWebSocketRoutes(router, ctrls.WebSocket)

	return router
}

func initializeControllers(deps Dependencies) *Controllers {
	return &Controllers{
		Report:    controllers.NewReportController(deps.Gateway, deps.Store),
		Facility:  controllers.NewFacilityController(deps.Facilities, deps.Refresher),
		Dispatch:  controllers.NewDispatchController(deps.Planner, deps.Facilities),
		WebSocket: controllers.NewWebSocketController(deps.Hub, deps.Gateway, deps.Config.AllowedOrigins, deps.Config.SubmissionRateLimit),
		Health: controllers.NewHealthController(controllers.HealthConfig{
			Checks:     deps.HealthChecks,
			Optional:   deps.OptionalChecks,
			Hub:        deps.Hub,
			Facilities: deps.Facilities,
			Refresh:    deps.RefreshStats,
		}),
	}
}

func setupGlobalMiddleware(router *gin.Engine, cfg *config.Config) {
	router.Use(middleware.NewErrorHandler(cfg.Environment).Handle())
	if cfg.Environment == "development" {
		router.Use(middleware.DevelopmentLoggerMiddleware())
	} else {
		router.Use(middleware.DefaultLoggerMiddleware())
	}
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
}

// Admin routes (requires a valid token with the admin role)
func setupAdminRoutes(router *gin.Engine, ctrls *Controllers, auth *middleware.AuthMiddleware) {
	admin := router.Group("/api/v1/admin")
	admin.Use(auth.RequireAuth())
	admin.Use(auth.RequireAdmin())

	admin.PUT("/reports/:id/verify", ctrls.Report.VerifyReport)
	admin.POST("/facilities/refresh", ctrls.Facility.RefreshFacilities)
	admin.GET("/ws/stats", ctrls.WebSocket.GetStats)
}
