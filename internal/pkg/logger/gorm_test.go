package logger

import (
	"strings"
	"testing"

	"gorm.io/gorm/logger"
)

func TestSQLOperation(t *testing.T) {
	cases := map[string]string{
		"  update `conversations` SET max_msg_seq=max_msg_seq + 1": "UPDATE",
		"SELECT * FROM `messages`":                                 "SELECT",
		"":                                                         "QUERY",
	}
	for sql, want := range cases {
		if got := sqlOperation(sql); got != want {
			t.Fatalf("sqlOperation(%q) = %q, want %q", sql, got, want)
		}
	}
}

func TestTruncateSQL(t *testing.T) {
	long := "INSERT INTO `message_read_statuses` VALUES " + strings.Repeat("(?,?,?),", 500)
	got := truncateSQL(long)
	if len(got) != gormSQLMaxLen+len("...[truncated]") || !strings.HasSuffix(got, "[truncated]") {
		t.Fatalf("truncated length = %d", len(got))
	}
	if truncateSQL("SELECT 1") != "SELECT 1" {
		t.Fatal("short statements are kept")
	}
}

func TestLogModeDoesNotMutateShared(t *testing.T) {
	base := NewGormLogger()
	_ = base.LogMode(logger.Info)
	if base.LogLevel != logger.Warn {
		t.Fatalf("base level = %v", base.LogLevel)
	}
}
