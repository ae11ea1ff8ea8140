package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/examacademy/academy-server/internal/catalog"
	"github.com/examacademy/academy-server/internal/config"
	"github.com/examacademy/academy-server/internal/course"
	"github.com/examacademy/academy-server/internal/ctxutil"
	domerrors "github.com/examacademy/academy-server/internal/errors"
	"github.com/examacademy/academy-server/internal/lookup"
	"github.com/examacademy/academy-server/internal/sentry"
	"github.com/examacademy/academy-server/internal/storage"
)

const suggestionMessage = "Course not found. Did you mean one of these?"

// lookupResponse is the wire shape of GET /api/courses/lookup/:courseId.
type lookupResponse struct {
	Success        bool                   `json:"success"`
	Course         *course.EnrichedCourse `json:"course,omitempty"`
	Error          string                 `json:"error,omitempty"`
	CourseID       string                 `json:"courseId,omitempty"`
	DurationMS     int64                  `json:"duration_ms"`
	Suggestions    []lookup.Suggestion    `json:"suggestions,omitempty"`
	Message        string                 `json:"message,omitempty"`
	MatchStrategy  string                 `json:"matchStrategy,omitempty"`
	SearchAttempts []lookup.Attempt       `json:"searchAttempts,omitempty"`
	DebugInfo      *lookup.DebugInfo      `json:"debugInfo,omitempty"`
}

func (a *Application) lookupCourse(c *gin.Context) {
	timeout := a.cfg.LookupTimeout
	if timeout <= 0 {
		timeout = config.LookupRequest
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	courseID := c.Param("courseId")
	courseType := c.Query("courseType")
	debug := queryBool(c, "debug")

	res := a.lookup.Lookup(ctx, lookup.Request{CourseID: courseID, CourseType: courseType, Debug: debug})

	resp := lookupResponse{
		Success:    res.Success,
		DurationMS: res.Duration.Milliseconds(),
	}
	if debug {
		resp.MatchStrategy = res.MatchStrategy
		resp.SearchAttempts = res.SearchAttempts
		resp.DebugInfo = res.Debug
	}

	if res.Success {
		resp.Course = res.Course
		c.JSON(http.StatusOK, resp)
		return
	}

	resp.Error = res.Error
	resp.CourseID = res.CourseID

	switch {
	case res.NotFound():
		suggestions, err := a.lookup.Suggest(ctx, courseID, courseType, 0)
		if err != nil {
			a.logger.WithError(err).WithField("course_id", courseID).WarnContext(ctx, "Suggestion pass failed")
		} else if len(suggestions) > 0 {
			resp.Suggestions = suggestions
			resp.Message = suggestionMessage
		}
		a.recordHTTPError("not_found", "lookup")
		c.JSON(http.StatusNotFound, resp)
	case res.Cancelled():
		a.recordHTTPError("timeout", "lookup")
		c.JSON(http.StatusGatewayTimeout, resp)
	default:
		a.recordHTTPError("internal", "lookup")
		c.JSON(http.StatusInternalServerError, resp)
	}
}

func (a *Application) listCourses(c *gin.Context) {
	filter := storage.CourseFilter{
		Category:    c.Query("category"),
		Subcategory: c.Query("subcategory"),
		Query:       c.Query("q"),
	}
	if paper := strings.TrimSpace(c.Query("paper")); paper != "" {
		n, err := strconv.Atoi(paper)
		if err != nil || n <= 0 {
			a.respondError(c, "catalog", domerrors.NewValidationError("paper", "must be a positive integer"))
			return
		}
		filter.PaperNumber = &n
	}

	candidates, err := a.store.ListCourses(c.Request.Context(), filter)
	if err != nil {
		a.respondError(c, "catalog", err)
		return
	}

	courses := make([]*course.EnrichedCourse, 0, len(candidates))
	for _, cand := range candidates {
		courses = append(courses, cand.Enrich())
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(courses),
		"courses": courses,
	})
}

func (a *Application) listFaculties(c *gin.Context) {
	faculties, err := a.store.ListFaculties(c.Request.Context())
	if err != nil {
		a.respondError(c, "catalog", err)
		return
	}
	if faculties == nil {
		faculties = []course.Faculty{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"count":     len(faculties),
		"faculties": faculties,
	})
}

func (a *Application) getFaculty(c *gin.Context) {
	faculty, err := a.store.GetFacultyBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		a.respondError(c, "catalog", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"faculty": faculty,
	})
}

// importCatalog replaces the catalog with the request body. The import runs
// on a detached context so a disconnecting client cannot leave it half done.
func (a *Application) importCatalog(c *gin.Context) {
	ctx, cancel := context.WithTimeout(ctxutil.PreserveTracing(c.Request.Context()), config.CatalogImport)
	defer cancel()

	compressed := strings.EqualFold(strings.TrimSpace(c.GetHeader("Content-Encoding")), "zstd")
	stats, err := a.loader.Import(ctx, c.Request.Body, compressed, catalog.TriggerAdmin)
	if err != nil {
		a.respondError(c, "admin", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   stats,
	})
}

func (a *Application) saveFaculty(c *gin.Context) {
	var faculty course.Faculty
	if err := c.ShouldBindJSON(&faculty); err != nil {
		a.respondError(c, "admin", domerrors.NewValidationError("body", err.Error()))
		return
	}
	if err := a.store.SaveFaculty(c.Request.Context(), &faculty); err != nil {
		a.respondError(c, "admin", err)
		return
	}
	a.loader.RefreshSize(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"faculty": faculty,
	})
}

func (a *Application) deleteFaculty(c *gin.Context) {
	if err := a.store.DeleteFaculty(c.Request.Context(), c.Param("slug")); err != nil {
		a.respondError(c, "admin", err)
		return
	}
	a.loader.RefreshSize(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (a *Application) saveCourse(c *gin.Context) {
	var standalone course.Course
	if err := c.ShouldBindJSON(&standalone); err != nil {
		a.respondError(c, "admin", domerrors.NewValidationError("body", err.Error()))
		return
	}
	if err := a.store.SaveStandaloneCourse(c.Request.Context(), &standalone); err != nil {
		a.respondError(c, "admin", err)
		return
	}
	a.loader.RefreshSize(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"course":  standalone,
	})
}

func (a *Application) deleteCourse(c *gin.Context) {
	if err := a.store.DeleteCourse(c.Request.Context(), c.Param("id")); err != nil {
		a.respondError(c, "admin", err)
		return
	}
	a.loader.RefreshSize(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheck)
	defer cancel()

	if !a.readiness.IsReady() {
		status := a.readiness.Status()
		a.logger.WithField("elapsed_seconds", status.ElapsedSeconds).
			Debug("Readiness check: catalog import in progress")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": status.Reason,
			"progress": gin.H{
				"elapsed_seconds": status.ElapsedSeconds,
				"grace_seconds":   status.GraceSeconds,
			},
		})
		return
	}

	if err := a.store.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: storage unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "storage unavailable",
		})
		return
	}

	stats := a.getCatalogStats(ctx)

	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"storage": a.storageDriver(),
		"catalog": stats,
	})
}

// getCatalogStats counts stored records; failed counts are logged and omitted.
func (a *Application) getCatalogStats(ctx context.Context) map[string]int {
	stats := make(map[string]int)

	if count, err := a.store.CountFaculties(ctx); err == nil {
		stats["faculties"] = count
	} else {
		a.logger.WithError(err).Warn("Failed to count faculties in catalog stats")
	}
	if count, err := a.store.CountCourses(ctx); err == nil {
		stats["courses"] = count
	} else {
		a.logger.WithError(err).Warn("Failed to count courses in catalog stats")
	}

	return stats
}

func (a *Application) storageDriver() string {
	if a.cfg.StorageDriver == "" {
		return config.DriverSQLite
	}
	return a.cfg.StorageDriver
}

// respondError maps domain errors to status codes. Unexpected errors are
// reported to Sentry and answered with a generic message.
func (a *Application) respondError(c *gin.Context, module string, err error) {
	status := http.StatusInternalServerError
	errorType := "internal"
	message := "Internal server error"

	var validation *domerrors.ValidationError
	switch {
	case errors.As(err, &validation):
		status, errorType, message = http.StatusBadRequest, "invalid_input", validation.Error()
	case domerrors.IsInvalidInput(err):
		status, errorType, message = http.StatusBadRequest, "invalid_input", domerrors.GetUserMessage(err)
	case domerrors.IsNotFound(err):
		status, errorType, message = http.StatusNotFound, "not_found", domerrors.GetUserMessage(err)
	case domerrors.IsConflict(err):
		status, errorType, message = http.StatusConflict, "conflict", domerrors.GetUserMessage(err)
	case domerrors.IsUnavailable(err):
		status, errorType, message = http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable"
	}

	log := a.logger.WithError(err).WithModule(module).WithField("http_status", status)
	if status >= http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), "Request failed")
		sentry.CaptureExceptionWithContext(c.Request.Context(), err)
	} else {
		log.DebugContext(c.Request.Context(), "Request rejected")
	}

	a.recordHTTPError(errorType, module)
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

func (a *Application) recordHTTPError(errorType, module string) {
	if a.metrics != nil {
		a.metrics.RecordHTTPError(errorType, module)
	}
}

// queryBool reads a boolean query flag; "1", "true" and "yes" enable it.
func queryBool(c *gin.Context, key string) bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(key))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
