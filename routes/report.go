// routes/report.go
package routes

import (
	"accidentwatch/controllers"
	"accidentwatch/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// SetupReportRoutes configures report intake and history routes
func SetupReportRoutes(router *gin.RouterGroup, reportController *controllers.ReportController, redis *redis.Client, submissionsPerMinute int) {
	reports := router.Group("/reports")

	reports.POST("", middleware.SubmissionRateLimit(redis, submissionsPerMinute), reportController.SubmitReport)
	reports.GET("", reportController.GetReports)
	reports.GET("/:id", reportController.GetReport)
}

// SetupFacilityRoutes exposes the current facility snapshot
func SetupFacilityRoutes(router *gin.RouterGroup, facilityController *controllers.FacilityController) {
	router.GET("/facilities", facilityController.GetFacilities)
}

// SetupDispatchRoutes configures dispatch planning routes
func SetupDispatchRoutes(router *gin.RouterGroup, dispatchController *controllers.DispatchController) {
	router.POST("/dispatch/plan", dispatchController.PreviewPlan)
}
