package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/examacademy/academy-server/internal/config"
)

func (a *Application) registerRoutes(router *gin.Engine) {
	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)
	router.GET("/metrics",
		metricsAuthMiddleware(a.cfg.MetricsAuthEnabled(), a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	api := router.Group("/api", rateLimitMiddleware(a.apiLimiter, a.metrics))
	api.GET("/courses/lookup/:courseId", a.lookupCourse)
	api.GET("/courses", a.listCourses)
	api.GET("/faculties", a.listFaculties)
	api.GET("/faculties/:slug", a.getFaculty)

	if !a.cfg.AdminEnabled() {
		a.logger.Info("Admin API disabled (no admin password configured)")
		return
	}

	admin := api.Group("/admin", adminAuthMiddleware(a.cfg.AdminUsername, a.cfg.AdminPassword))
	admin.PUT("/catalog", requestDeadlineMiddleware(config.CatalogUpload, a.logger), a.importCatalog)
	admin.POST("/faculties", a.saveFaculty)
	admin.DELETE("/faculties/:slug", a.deleteFaculty)
	admin.POST("/courses", a.saveCourse)
	admin.DELETE("/courses/:id", a.deleteCourse)
}
