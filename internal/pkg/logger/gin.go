package logger

import (
	"Courier/internal/api/config"
	"Courier/internal/pkg/consts"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

type accessLine struct {
	Time        string  `json:"time"`
	Level       string  `json:"level"`
	Msg         string  `json:"msg"`
	TraceID     string  `json:"trace_id,omitempty"`
	UserID      string  `json:"user_id,omitempty"`
	LogToken    string  `json:"log_token"`
	TargetIndex string  `json:"target_index"`
	Method      string  `json:"method"`
	Path        string  `json:"path"`
	Status      int     `json:"status"`
	LatencyMS   float64 `json:"latency_ms"`
	ClientIP    string  `json:"client_ip"`
	Upgrade     bool    `json:"ws_upgrade,omitempty"`
}

// SetupGin 注册访问日志与 panic 恢复
func SetupGin(r *gin.Engine) {
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    LogWriter,
		Formatter: formatAccess,
	}))
	r.Use(gin.Recovery())
}

// formatAccess 长连接只在握手结束时记一行, 之后的帧不经过 gin
func formatAccess(p gin.LogFormatterParams) string {
	line := accessLine{
		Time:        p.TimeStamp.UTC().Format(time.RFC3339Nano),
		Level:       "INFO",
		Msg:         "courier_http_access",
		LogToken:    config.Cfg.Logstash.Token,
		TargetIndex: config.Cfg.Logstash.Index,
		Method:      p.Method,
		Path:        p.Path,
		Status:      p.StatusCode,
		LatencyMS:   float64(p.Latency.Microseconds()) / 1000,
		ClientIP:    p.ClientIP,
		Upgrade:     p.StatusCode == http.StatusSwitchingProtocols,
	}
	if p.Keys != nil {
		line.TraceID, _ = p.Keys[TraceIDKey].(string)
		line.UserID, _ = p.Keys[consts.UserIDKey].(string)
	}
	if line.TraceID == "" && p.Request != nil {
		line.TraceID = TraceID(p.Request.Context())
	}
	switch {
	case p.StatusCode >= http.StatusInternalServerError:
		line.Level = "ERROR"
	case p.StatusCode >= http.StatusBadRequest:
		line.Level = "WARN"
	}

	b, err := json.Marshal(line)
	if err != nil {
		return ""
	}
	return string(b) + "\n"
}
