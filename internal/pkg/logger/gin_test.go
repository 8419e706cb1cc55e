package logger

import (
	"Courier/internal/api/config"
	"Courier/internal/pkg/consts"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

func TestFormatAccess(t *testing.T) {
	prev := config.Cfg
	config.Cfg = &config.Config{Logstash: config.LogstashConfig{Index: "courier-logs", Token: "tok"}}
	t.Cleanup(func() { config.Cfg = prev })

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req = req.WithContext(WithTraceID(context.Background(), "from-ctx"))
	raw := formatAccess(gin.LogFormatterParams{
		Request:    req,
		TimeStamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		StatusCode: http.StatusSwitchingProtocols,
		Latency:    1500 * time.Microsecond,
		ClientIP:   "10.0.0.7",
		Method:     http.MethodGet,
		Path:       `/ws?"q"`,
		Keys:       map[any]any{consts.UserIDKey: "alice"},
	})

	var line accessLine
	if err := json.Unmarshal([]byte(raw), &line); err != nil {
		t.Fatalf("access line is not json: %v (%s)", err, raw)
	}
	if line.TraceID != "from-ctx" || line.UserID != "alice" || !line.Upgrade {
		t.Fatalf("line = %+v", line)
	}
	if line.LatencyMS != 1.5 || line.TargetIndex != "courier-logs" || line.Path != `/ws?"q"` {
		t.Fatalf("line = %+v", line)
	}

	// 5xx 记为 ERROR, gin 键里的 trace_id 优先于 ctx
	raw = formatAccess(gin.LogFormatterParams{
		Request:    req,
		StatusCode: http.StatusBadGateway,
		Keys:       map[any]any{TraceIDKey: "from-keys"},
	})
	line = accessLine{}
	if err := json.Unmarshal([]byte(raw), &line); err != nil {
		t.Fatal(err)
	}
	if line.Level != "ERROR" || line.TraceID != "from-keys" || line.Upgrade {
		t.Fatalf("line = %+v", line)
	}
}
