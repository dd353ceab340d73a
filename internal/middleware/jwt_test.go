package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type staticValidator struct {
	token  string
	claims *models.JWTClaims
}

func (v staticValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != v.token {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type recordedRequest struct {
	method string
	path   string
	status int
}

type requestRecorder struct {
	requests []recordedRequest
}

func (r *requestRecorder) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	r.requests = append(r.requests, recordedRequest{method: method, path: path, status: status})
}

func newProtectedRouter(roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	validator := staticValidator{token: "good", claims: &models.JWTClaims{UserID: "user-1", Role: models.RoleTeacher}}
	router := gin.New()
	router.GET("/protected", JWT(validator), RequireRoles(roles...), func(c *gin.Context) {
		value, _ := c.Get(ContextUserKey)
		c.String(http.StatusOK, value.(*models.JWTClaims).UserID)
	})
	return router
}

func TestJWTAcceptsHeaderAndQueryToken(t *testing.T) {
	router := newProtectedRouter(models.RoleTeacher)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected?access_token=good", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTRejectsMissingOrBadTokens(t *testing.T) {
	router := newProtectedRouter(models.RoleTeacher)

	cases := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic good",
		"bad token":    "Bearer nope",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	router := newProtectedRouter(SchedulerRoles...)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := staticValidator{token: "good", claims: &models.JWTClaims{UserID: "user-1"}}
	router := gin.New()
	router.GET("/", OptionalJWT(validator), func(c *gin.Context) {
		_, ok := c.Get(ContextUserKey)
		if ok {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?access_token=nope", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?access_token=good", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := &requestRecorder{}
	router := gin.New()
	router.Use(Metrics(recorder))
	router.GET("/jobs/:id", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, recorder.requests, 2)
	assert.Equal(t, recordedRequest{method: http.MethodGet, path: "/jobs/:id", status: http.StatusAccepted}, recorder.requests[0])
	assert.Equal(t, "unmatched", recorder.requests[1].path)
	assert.Equal(t, http.StatusNotFound, recorder.requests[1].status)
}
