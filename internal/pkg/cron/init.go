package cron

import (
	log "log/slog"

	"github.com/pkg/errors"
)

// InitCron 任一调度表达式非法时整体不启动
func InitCron(mgr *Manager) error {
	if err := mgr.RegisterJobs(); err != nil {
		return errors.Wrap(err, "register courier cron jobs")
	}
	mgr.Start()
	log.Info("Courier cron scheduled",
		"message_purge", mgr.schedules.MessagePurge,
		"offline_digest", mgr.schedules.OfflineDigest,
		"delivery_sweeper", mgr.schedules.DeliverySweeper,
	)
	return nil
}
