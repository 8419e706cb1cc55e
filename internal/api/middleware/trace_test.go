package middleware

import (
	"Courier/internal/pkg/logger"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func traced(t *testing.T, headers map[string]string) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var fromCtx string
	r.GET("/x", TraceMiddleware(), func(c *gin.Context) {
		fromCtx = logger.TraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header().Get(TraceHeader), fromCtx
}

func TestTraceMiddleware(t *testing.T) {
	// 上游 ID 原样透传到响应头与 ctx
	echoed, ctxID := traced(t, map[string]string{"X-Trace-ID": "gw-123"})
	if echoed != "gw-123" || ctxID != "gw-123" {
		t.Fatalf("trace id = %q / %q", echoed, ctxID)
	}

	echoed, _ = traced(t, map[string]string{"X-Request-ID": "req-9"})
	if echoed != "req-9" {
		t.Fatalf("request id fallback = %q", echoed)
	}

	for _, bad := range []string{strings.Repeat("a", 65), "has space", "ctl\x01"} {
		echoed, ctxID = traced(t, map[string]string{"X-Trace-ID": bad})
		if echoed == bad || len(echoed) != 36 || ctxID != echoed {
			t.Fatalf("invalid id %q not replaced: %q", bad, echoed)
		}
	}

	echoed, _ = traced(t, nil)
	if len(echoed) != 36 {
		t.Fatalf("generated id = %q", echoed)
	}
}
