package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examacademy/academy-server/internal/config"
	"github.com/examacademy/academy-server/internal/course"
	"github.com/examacademy/academy-server/internal/logger"
	"github.com/examacademy/academy-server/internal/metrics"
	"github.com/examacademy/academy-server/internal/storage"
)

const embeddedCourseID = "507f1f77bcf86cd799439011"

func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		LogLevel:        "error",
		ShutdownTimeout: time.Second,
		StorageDriver:   config.DriverSQLite,
		SuggestionLimit: 5,
		LookupTimeout:   config.LookupRequest,
		APIRateBurst:    1000,
		APIRateRefill:   1000,
		AdminUsername:   "admin",
		AdminPassword:   "s3cret",
		MetricsUsername: "prometheus",
	}
}

// setupTestApp creates an Application over an in-memory SQLite store.
func setupTestApp(t *testing.T, cfg *config.Config) (*Application, *storage.DB) {
	t.Helper()

	db, err := storage.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := prometheus.NewRegistry()
	log := logger.NewWithWriter("error", io.Discard)
	app := newApplication(cfg, log, db, nil, metrics.New(registry), registry)
	t.Cleanup(app.apiLimiter.Stop)
	return app, db
}

func seedCatalog(t *testing.T, db *storage.DB) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, db.SaveFaculty(ctx, &course.Faculty{
		FirstName: "Ravi",
		LastName:  "Sharma",
		Slug:      "ravi-sharma",
		Courses: []course.Course{
			{
				ID:          embeddedCourseID,
				Subject:     "Strategic Cost Management",
				PaperNumber: course.PaperNumberRef(5),
				CourseType:  "CMA Final",
				Category:    "CMA",
				Subcategory: "Final",
			},
			{
				Subject:     "Direct Tax Laws",
				PaperNumber: course.PaperTextRef("7"),
				CourseType:  "CA Final",
				Category:    "CA",
				Subcategory: "Final",
			},
		},
	}))
	require.NoError(t, db.SaveStandaloneCourse(ctx, &course.Course{
		Subject:     "Advanced Cost Accounting",
		PaperNumber: course.PaperNumberRef(8),
		CourseType:  "CA Inter",
		Category:    "CA",
		Subcategory: "Inter",
	}))
}

func doRequest(h http.Handler, method, path string, body io.Reader, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for _, fn := range mutate {
		fn(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func asAdmin(req *http.Request) { req.SetBasicAuth("admin", "s3cret") }

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestLivenessCheck(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())

	// Liveness does not depend on storage.
	require.NoError(t, db.Close())

	w := doRequest(app.Handler(), http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", decodeBody(t, w)["status"])
}

func TestReadinessCheck(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	seedCatalog(t, db)

	w := doRequest(app.Handler(), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "sqlite", body["storage"])
	catalogStats, ok := body["catalog"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, catalogStats["faculties"])
	assert.EqualValues(t, 3, catalogStats["courses"])
}

func TestReadinessCheck_StorageFailure(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	require.NoError(t, db.Close())

	w := doRequest(app.Handler(), http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "storage unavailable", body["reason"])
}

func TestLookupEndpoint(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	seedCatalog(t, db)

	tests := []struct {
		name        string
		path        string
		wantStatus  int
		wantSubject string
	}{
		{"object id", "/api/courses/lookup/" + embeddedCourseID, http.StatusOK, "Strategic Cost Management"},
		{"object id upper case", "/api/courses/lookup/" + strings.ToUpper(embeddedCourseID), http.StatusOK, "Strategic Cost Management"},
		{"paper number", "/api/courses/lookup/cma-final-test5mP", http.StatusOK, "Strategic Cost Management"},
		{"slug", "/api/courses/lookup/direct-tax", http.StatusOK, "Direct Tax Laws"},
		{"standalone slug", "/api/courses/lookup/advanced-cost", http.StatusOK, "Advanced Cost Accounting"},
		{"miss", "/api/courses/lookup/zzzz-qqqq-wwww", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(app.Handler(), http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			body := decodeBody(t, w)
			assert.Contains(t, body, "duration_ms")
			assert.NotContains(t, body, "matchStrategy")
			assert.NotContains(t, body, "searchAttempts")
			assert.NotContains(t, body, "debugInfo")

			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, false, body["success"])
				assert.Equal(t, "Course not found", body["error"])
				assert.Equal(t, "zzzz-qqqq-wwww", body["courseId"])
				assert.NotContains(t, body, "suggestions")
				return
			}

			assert.Equal(t, true, body["success"])
			c, ok := body["course"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantSubject, c["subject"])
		})
	}
}

func TestLookupEndpoint_FacultyInfo(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	seedCatalog(t, db)

	w := doRequest(app.Handler(), http.MethodGet, "/api/courses/lookup/"+embeddedCourseID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	c := decodeBody(t, w)["course"].(map[string]any)
	faculty, ok := c["faculty"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ravi Sharma", faculty["name"])
	assert.Equal(t, "ravi-sharma", faculty["slug"])
	assert.Equal(t, "Ravi Sharma", c["facultyName"])
}

func TestLookupEndpoint_Debug(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	seedCatalog(t, db)

	w := doRequest(app.Handler(), http.MethodGet, "/api/courses/lookup/cma-final-test5mP?debug=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "paper_number", body["matchStrategy"])
	attempts, ok := body["searchAttempts"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, attempts)
	assert.Contains(t, body, "debugInfo")
}

func TestLookupEndpoint_Suggestions(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	seedCatalog(t, db)

	w := doRequest(app.Handler(), http.MethodGet, "/api/courses/lookup/strategic-cost-planning", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, suggestionMessage, body["message"])

	suggestions, ok := body["suggestions"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, suggestions)
	first := suggestions[0].(map[string]any)
	assert.Equal(t, "Strategic Cost Management", first["course"].(map[string]any)["subject"])
	assert.Greater(t, first["score"].(float64), 0.0)
}

func TestLookupEndpoint_CourseTypeHint(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	seedCatalog(t, db)

	// "cost" appears in an embedded CMA course and a standalone CA course.
	w := doRequest(app.Handler(), http.MethodGet, "/api/courses/lookup/cost?courseType=CA%20Inter", nil)
	require.Equal(t, http.StatusOK, w.Code)

	c := decodeBody(t, w)["course"].(map[string]any)
	assert.Equal(t, "Advanced Cost Accounting", c["subject"])
}

func TestListCourses(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	seedCatalog(t, db)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
	}{
		{"all", "", http.StatusOK, 3},
		{"category", "?category=ca", http.StatusOK, 2},
		{"category and subcategory", "?category=CA&subcategory=Final", http.StatusOK, 1},
		{"paper", "?paper=5", http.StatusOK, 1},
		{"text query", "?q=cost", http.StatusOK, 2},
		{"bad paper", "?paper=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(app.Handler(), http.MethodGet, "/api/courses"+tt.query, nil)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, false, decodeBody(t, w)["success"])
				return
			}
			assert.EqualValues(t, tt.wantCount, decodeBody(t, w)["count"])
		})
	}
}

func TestFacultyEndpoints(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	seedCatalog(t, db)

	w := doRequest(app.Handler(), http.MethodGet, "/api/faculties", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["count"])

	w = doRequest(app.Handler(), http.MethodGet, "/api/faculties/ravi-sharma", nil)
	require.Equal(t, http.StatusOK, w.Code)
	faculty := decodeBody(t, w)["faculty"].(map[string]any)
	assert.Equal(t, "Ravi", faculty["firstName"])
	assert.Len(t, faculty["courses"], 2)

	w = doRequest(app.Handler(), http.MethodGet, "/api/faculties/nobody", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutes_Disabled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.AdminPassword = ""
	app, _ := setupTestApp(t, cfg)

	w := doRequest(app.Handler(), http.MethodDelete, "/api/admin/courses/"+embeddedCourseID, nil, asAdmin)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutes_RequireAuth(t *testing.T) {
	t.Parallel()
	app, _ := setupTestApp(t, testConfig())

	w := doRequest(app.Handler(), http.MethodDelete, "/api/admin/courses/"+embeddedCourseID, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminFacultyLifecycle(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	ctx := context.Background()

	payload := `{"firstName":"Meera","lastName":"Iyer","slug":"meera-iyer",
		"courses":[{"subject":"Financial Reporting","paperNumber":1,"category":"CA","subcategory":"Final"}]}`
	w := doRequest(app.Handler(), http.MethodPost, "/api/admin/faculties", strings.NewReader(payload), asAdmin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	faculty := decodeBody(t, w)["faculty"].(map[string]any)
	assert.Len(t, faculty["_id"], 24)

	count, err := db.CountCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Same slug, different id: conflict.
	conflict := `{"_id":"507f1f77bcf86cd799439abc","firstName":"Other","slug":"meera-iyer"}`
	w = doRequest(app.Handler(), http.MethodPost, "/api/admin/faculties", strings.NewReader(conflict), asAdmin)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = doRequest(app.Handler(), http.MethodPost, "/api/admin/faculties", strings.NewReader(`{"slug":`), asAdmin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(app.Handler(), http.MethodDelete, "/api/admin/faculties/meera-iyer", nil, asAdmin)
	assert.Equal(t, http.StatusNoContent, w.Code)

	count, err = db.CountCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	w = doRequest(app.Handler(), http.MethodDelete, "/api/admin/faculties/meera-iyer", nil, asAdmin)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminSaveFaculty_RejectsPlaceholder(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())

	payload := `{"firstName":"N/A","slug":"n-a",
		"courses":[{"subject":"Direct Tax","paperNumber":7,"courseType":"CA Final","category":"CA"}]}`
	w := doRequest(app.Handler(), http.MethodPost, "/api/admin/faculties", strings.NewReader(payload), asAdmin)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	count, err := db.CountCourses(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	w = doRequest(app.Handler(), http.MethodGet, "/api/courses/lookup/ca-final-paper-7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminCourseLifecycle(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	seedCatalog(t, db)

	payload := `{"subject":"Corporate Laws","paperNumber":"2","category":"CA","subcategory":"Inter"}`
	w := doRequest(app.Handler(), http.MethodPost, "/api/admin/courses", strings.NewReader(payload), asAdmin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decodeBody(t, w)["course"].(map[string]any)
	id, _ := created["_id"].(string)
	require.Len(t, id, 24)
	assert.Equal(t, true, created["isStandalone"])

	w = doRequest(app.Handler(), http.MethodGet, "/api/courses/lookup/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(app.Handler(), http.MethodDelete, "/api/admin/courses/"+id, nil, asAdmin)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Embedded courses are deletable by id as well.
	w = doRequest(app.Handler(), http.MethodDelete, "/api/admin/courses/"+embeddedCourseID, nil, asAdmin)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(app.Handler(), http.MethodGet, "/api/courses/lookup/"+embeddedCourseID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

const catalogJSON = `{
	"faculties": [
		{"firstName": "Anita", "lastName": "Rao", "slug": "anita-rao",
		 "courses": [{"subject": "Audit and Assurance", "paperNumber": 6, "category": "ca", "subcategory": "final"}]},
		{"firstName": "N/A",
		 "courses": [{"subject": "Business Economics", "paperNumber": 4, "category": "CA", "subcategory": "Foundation"}]}
	],
	"courses": [{"subject": "Cost and Management Accounting", "paperNumber": 3, "category": "CMA", "subcategory": "Inter"}]
}`

func TestAdminImportCatalog(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	seedCatalog(t, db)
	ctx := context.Background()

	w := doRequest(app.Handler(), http.MethodPut, "/api/admin/catalog", strings.NewReader(catalogJSON), asAdmin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stats := decodeBody(t, w)["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["faculties"])
	assert.EqualValues(t, 2, stats["standaloneCourses"])
	assert.EqualValues(t, 1, stats["convertedFromPlaceholder"])

	faculties, err := db.CountFaculties(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, faculties)
	courses, err := db.CountCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, courses)

	// The previous catalog is gone.
	w = doRequest(app.Handler(), http.MethodGet, "/api/faculties/ravi-sharma", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminImportCatalog_Zstd(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte(catalogJSON))
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	w := doRequest(app.Handler(), http.MethodPut, "/api/admin/catalog", &buf, asAdmin, func(req *http.Request) {
		req.Header.Set("Content-Encoding", "zstd")
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	courses, err := db.CountCourses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, courses)
}

func TestAdminImportCatalog_Invalid(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	seedCatalog(t, db)

	tests := []struct {
		body    string
		message string
	}{
		{`not json`, "Catalog document could not be decoded"},
		{`{}`, "Catalog document is empty"},
	}
	for _, tt := range tests {
		w := doRequest(app.Handler(), http.MethodPut, "/api/admin/catalog", strings.NewReader(tt.body), asAdmin)
		assert.Equal(t, http.StatusBadRequest, w.Code, tt.body)
		assert.Equal(t, tt.message, decodeBody(t, w)["error"], tt.body)
	}

	// A rejected import leaves the catalog untouched.
	courses, err := db.CountCourses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, courses)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.APIRateBurst = 2
	cfg.APIRateRefill = 0.01
	app, _ := setupTestApp(t, cfg)

	for _, remaining := range []string{"1", "0"} {
		w := doRequest(app.Handler(), http.MethodGet, "/api/faculties", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, remaining, w.Header().Get("X-RateLimit-Remaining"))
	}

	w := doRequest(app.Handler(), http.MethodGet, "/api/faculties", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, false, decodeBody(t, w)["success"])

	// Probes are outside the limited group.
	w = doRequest(app.Handler(), http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddleware_RequestIDAndSecurityHeaders(t *testing.T) {
	t.Parallel()
	app, _ := setupTestApp(t, testConfig())

	w := doRequest(app.Handler(), http.MethodGet, "/livez", nil)
	assert.Len(t, w.Header().Get("X-Request-Id"), 36)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	w = doRequest(app.Handler(), http.MethodGet, "/livez", nil, func(req *http.Request) {
		req.Header.Set("X-Correlation-Id", "upstream-123")
	})
	assert.Equal(t, "upstream-123", w.Header().Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	app, db := setupTestApp(t, testConfig())
	seedCatalog(t, db)

	doRequest(app.Handler(), http.MethodGet, "/api/courses/lookup/"+embeddedCourseID, nil)

	w := doRequest(app.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "academy_course_lookups_total")
}

func TestImportOnStartup(t *testing.T) {
	t.Parallel()
	path := t.TempDir() + "/catalog.json"
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o600))

	cfg := testConfig()
	cfg.CatalogSource = path
	app, db := setupTestApp(t, cfg)
	ctx := context.Background()

	require.NoError(t, app.importOnStartup(ctx))
	courses, err := db.CountCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, courses)

	// A populated store is left alone unless forced.
	require.NoError(t, db.DeleteFaculty(ctx, "anita-rao"))
	require.NoError(t, app.importOnStartup(ctx))
	courses, err = db.CountCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, courses)

	cfg.CatalogForce = true
	require.NoError(t, app.importOnStartup(ctx))
	courses, err = db.CountCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, courses)
}

func TestReadinessCheck_GatedByStartupImport(t *testing.T) {
	t.Parallel()
	path := t.TempDir() + "/catalog.json"
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o600))

	cfg := testConfig()
	cfg.CatalogSource = path
	app, db := setupTestApp(t, cfg)

	w := doRequest(app.Handler(), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "catalog import in progress", decodeBody(t, w)["reason"])

	app.startupImport(context.Background())

	w = doRequest(app.Handler(), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	courses, err := db.CountCourses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, courses)
}

func TestStartupImport_FailureStillOpensGate(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.CatalogSource = t.TempDir() + "/missing.json"
	app, _ := setupTestApp(t, cfg)

	app.startupImport(context.Background())

	assert.True(t, app.readiness.IsReady())
}
