package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("test-secret")

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(secret))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": c.GetUint64("userId"), "username": c.GetString("username")})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	good, err := SignAccessToken(secret, 7, "alice", time.Minute)
	if err != nil {
		t.Fatalf("SignAccessToken() error = %v", err)
	}
	expired, _ := SignAccessToken(secret, 7, "alice", -time.Minute)
	forged, _ := SignAccessToken([]byte("other"), 7, "alice", time.Minute)
	refresh, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: 7, Type: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}).SignedString(secret)

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"bearer", "Bearer " + good, "", http.StatusOK},
		{"lowercase scheme", "bearer " + good, "", http.StatusOK},
		{"query token", "", good, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, "", http.StatusUnauthorized},
		{"refresh token", "Bearer " + refresh, "", http.StatusUnauthorized},
	}
	r := newEngine()
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			url := "/me"
			if c.query != "" {
				url += "?token=" + c.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != c.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, c.want, w.Body.String())
			}
		})
	}
}

func TestParseAccessToken_Claims(t *testing.T) {
	tok, _ := SignAccessToken(secret, 42, "bob", time.Minute)
	claims, err := ParseAccessToken(tok, secret)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if claims.UserID != 42 || claims.Username != "bob" {
		t.Fatalf("claims = %+v", claims)
	}
}
