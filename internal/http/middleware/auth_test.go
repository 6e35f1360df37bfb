package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-content/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	am := NewAuthMiddleware(logger.Nop(), testSecret)
	userID := uuid.New()

	r := gin.New()
	r.GET("/me", am.RequireAuth(), func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		c.String(http.StatusOK, rd.UserID.String())
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"valid", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), userID.String(), time.Now().Add(time.Hour)), http.StatusOK},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), userID.String(), time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"wrong secret", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), userID.String(), time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"wrong alg", "Bearer " + sign(t, jwt.SigningMethodHS512, []byte(testSecret), userID.String(), time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"bad subject", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), "alice", time.Now().Add(time.Hour)), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status: got=%d want=%d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			if tc.status == http.StatusOK && rec.Body.String() != userID.String() {
				t.Fatalf("user id: got=%q", rec.Body.String())
			}
		})
	}
}

func TestAttachRequestContextEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachRequestContext())
	r.GET("/x", func(c *gin.Context) {
		td := ctxutil.GetTraceData(c.Request.Context())
		c.String(http.StatusOK, td.RequestID)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Body.String() != "req-123" || rec.Header().Get(HeaderRequestID) != "req-123" {
		t.Fatalf("request id not propagated: body=%q header=%q", rec.Body.String(), rec.Header().Get(HeaderRequestID))
	}
	if rec.Header().Get(HeaderTraceID) == "" {
		t.Fatalf("trace id header missing")
	}
}
