package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mission-control/board/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

var authConfig = middleware.AuthConfig{
	Secret:  testSecret,
	Issuer:  "mission-control",
	Members: []string{"Jason", "Miti"},
}

func createTestToken(subject, issuer string, expiresIn time.Duration, secret string) string {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return token
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(middleware.TeamAuth(authConfig))
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"member": c.GetString(middleware.MemberKey)})
	})
	return router
}

func TestTeamAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "no token", header: "", wantStatus: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer invalid_token", wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + createTestToken("Jason", "mission-control", time.Hour, "other"), wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + createTestToken("Jason", "mission-control", -time.Hour, testSecret), wantStatus: http.StatusUnauthorized},
		{name: "wrong issuer", header: "Bearer " + createTestToken("Jason", "elsewhere", time.Hour, testSecret), wantStatus: http.StatusUnauthorized},
		{name: "not a member", header: "Bearer " + createTestToken("Mallory", "mission-control", time.Hour, testSecret), wantStatus: http.StatusForbidden},
		{name: "member", header: "Bearer " + createTestToken("Miti", "mission-control", time.Hour, testSecret), wantStatus: http.StatusOK},
	}

	router := newAuthRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestTeamAuth_SetsMember(t *testing.T) {
	router := newAuthRouter()

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken("Jason", "mission-control", time.Hour, testSecret))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Body.String() != `{"member":"Jason"}` {
		t.Errorf("Expected member Jason in context, got %s", w.Body.String())
	}
}
