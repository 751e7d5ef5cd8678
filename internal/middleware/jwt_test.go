package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachdesk/academy-api/internal/models"
	"github.com/coachdesk/academy-api/internal/service"
	"github.com/coachdesk/academy-api/pkg/config"
)

const (
	testSecret = "middleware-secret"
	testIssuer = "coachdesk-test"
)

func newTestAuthService() *service.AuthService {
	return service.NewAuthService(nil, nil, nil, nil, nil, config.JWTConfig{
		Secret:     testSecret,
		Expiration: time.Hour,
		Issuer:     testIssuer,
	}, config.OTPConfig{}, nil, nil)
}

func signToken(t *testing.T, role models.UserRole, expiresIn time.Duration) string {
	t.Helper()
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "user-1",
		"email":   "user@example.com",
		"role":    string(role),
		"iss":     testIssuer,
		"iat":     now.Unix(),
		"exp":     now.Add(expiresIn).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func performRequest(t *testing.T, handlers []gin.HandlerFunc, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/protected", handlers...)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	rec := performRequest(t, []gin.HandlerFunc{JWT(newTestAuthService())}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTRejectsMalformedHeader(t *testing.T) {
	rec := performRequest(t, []gin.HandlerFunc{JWT(newTestAuthService())}, "Token abc123")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	token := signToken(t, models.RoleAdmin, -time.Minute)
	rec := performRequest(t, []gin.HandlerFunc{JWT(newTestAuthService())}, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAcceptsValidToken(t *testing.T) {
	token := signToken(t, models.RoleAdmin, time.Hour)
	rec := performRequest(t, []gin.HandlerFunc{JWT(newTestAuthService())}, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAttachesClaims(t *testing.T) {
	token := signToken(t, models.RoleCoach, time.Hour)
	capture := func(c *gin.Context) {
		claims := CurrentUser(c)
		require.NotNil(t, claims)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, models.RoleCoach, claims.Role)
		c.Next()
	}
	rec := performRequest(t, []gin.HandlerFunc{JWT(newTestAuthService()), capture}, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	token := signToken(t, models.RoleStudent, time.Hour)
	handlers := []gin.HandlerFunc{JWT(newTestAuthService()), RequireRoles(models.RoleAdmin)}
	rec := performRequest(t, handlers, "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRolesAllowsListedRole(t *testing.T) {
	token := signToken(t, models.RoleCoach, time.Hour)
	handlers := []gin.HandlerFunc{JWT(newTestAuthService()), RequireRoles(models.RoleAdmin, models.RoleCoach)}
	rec := performRequest(t, handlers, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRolesBlocksAnonymous(t *testing.T) {
	rec := performRequest(t, []gin.HandlerFunc{RequireRoles(models.RoleAdmin)}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalJWTPassesWithoutToken(t *testing.T) {
	capture := func(c *gin.Context) {
		assert.Nil(t, CurrentUser(c))
		c.Next()
	}
	rec := performRequest(t, []gin.HandlerFunc{OptionalJWT(newTestAuthService()), capture}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
