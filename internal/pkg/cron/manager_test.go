package cron

import (
	"Courier/internal/api/config"
	"strings"
	"testing"
)

func TestRegisterJobsNamesInvalidSchedule(t *testing.T) {
	mgr := NewCronManager(config.CronConfig{
		MessagePurge:    "0 30 3 * * *",
		OfflineDigest:   "every quarter hour",
		DeliverySweeper: "0 * * * * *",
	}, nil, nil, nil)

	err := InitCron(mgr)
	if err == nil {
		t.Fatal("expected invalid schedule to fail")
	}
	if !strings.Contains(err.Error(), "offline_digest") {
		t.Fatalf("err = %v, want job name", err)
	}
}

func TestRegisterJobsAcceptsDefaults(t *testing.T) {
	mgr := NewCronManager(config.CronConfig{
		MessagePurge:    "0 30 3 * * *",
		OfflineDigest:   "0 */15 * * * *",
		DeliverySweeper: "0 * * * * *",
	}, nil, nil, nil)

	if err := mgr.RegisterJobs(); err != nil {
		t.Fatal(err)
	}
	if n := len(mgr.engine.Entries()); n != 3 {
		t.Fatalf("entries = %d, want 3", n)
	}
}
