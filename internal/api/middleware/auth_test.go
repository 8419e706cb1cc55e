package middleware

import (
	"Courier/internal/api/dto"
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/security"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

type stubAuthenticator struct {
	users map[string]string
	err   error
}

func (s stubAuthenticator) AuthenticateConnection(_ context.Context, credential string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if uid, ok := s.users[credential]; ok {
		return uid, nil
	}
	return "", security.ErrTokenInvalid
}

func serve(t *testing.T, mw gin.HandlerFunc, authHeader string) (dto.Response, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var seen string
	r.GET("/x", mw, func(c *gin.Context) {
		seen = c.GetString(consts.UserIDKey)
		c.JSON(http.StatusOK, dto.Response{Code: 200, Message: "success"})
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp dto.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, seen
}

func TestAuthMiddleware(t *testing.T) {
	auth := stubAuthenticator{users: map[string]string{"good": "alice"}}

	resp, uid := serve(t, AuthMiddleware(auth), "Bearer good")
	if resp.Code != 200 || uid != "alice" {
		t.Fatalf("valid token: code %d uid %q", resp.Code, uid)
	}

	if resp, _ = serve(t, AuthMiddleware(auth), ""); resp.Code != 401 {
		t.Fatalf("missing header: code %d", resp.Code)
	}
	if resp, _ = serve(t, AuthMiddleware(auth), "Bearer bad"); resp.Code != 401 {
		t.Fatalf("bad token: code %d", resp.Code)
	}

	down := stubAuthenticator{err: errors.New("redis: connection refused")}
	if resp, _ = serve(t, AuthMiddleware(down), "Bearer good"); resp.Code != 500 {
		t.Fatalf("infrastructure failure: code %d", resp.Code)
	}
}

func TestServiceAuthMiddleware(t *testing.T) {
	if resp, _ := serve(t, ServiceAuthMiddleware("s3cret"), "Bearer s3cret"); resp.Code != 200 {
		t.Fatalf("valid service token: code %d", resp.Code)
	}
	if resp, _ := serve(t, ServiceAuthMiddleware("s3cret"), "Bearer guess"); resp.Code != 403 {
		t.Fatalf("wrong service token: code %d", resp.Code)
	}
	// 未配置 service token 时拒绝所有内部调用
	if resp, _ := serve(t, ServiceAuthMiddleware(""), "Bearer "); resp.Code != 403 {
		t.Fatalf("unconfigured service token: code %d", resp.Code)
	}
}
