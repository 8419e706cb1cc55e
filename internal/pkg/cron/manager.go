package cron

import (
	"Courier/internal/api/config"
	"Courier/internal/job"
	log "log/slog"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine          *cron.Cron
	schedules       config.CronConfig
	purgeJob        *job.MessagePurgeJob
	digestJob       *job.OfflineDigestJob
	deliverySweeper *job.DeliverySweeperJob
}

func NewCronManager(
	schedules config.CronConfig,
	purgeJob *job.MessagePurgeJob,
	digestJob *job.OfflineDigestJob,
	deliverySweeper *job.DeliverySweeperJob,
) *Manager {
	return &Manager{
		engine:          cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedules:       schedules,
		purgeJob:        purgeJob,
		digestJob:       digestJob,
		deliverySweeper: deliverySweeper,
	}
}

// RegisterJobs 注册定时任务, 错误中带上任务名
func (s *Manager) RegisterJobs() error {
	jobs := []struct {
		name string
		spec string
		job  cron.Job
	}{
		{"message_purge", s.schedules.MessagePurge, s.purgeJob},
		{"offline_digest", s.schedules.OfflineDigest, s.digestJob},
		{"delivery_sweeper", s.schedules.DeliverySweeper, s.deliverySweeper},
	}
	for _, j := range jobs {
		if _, err := s.engine.AddJob(j.spec, j.job); err != nil {
			return errors.Wrapf(err, "cron job %s (%q)", j.name, j.spec)
		}
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron engine started")
	s.engine.Start()
}

// Stop 等待运行中的任务结束
func (s *Manager) Stop() {
	<-s.engine.Stop().Done()
	log.Info("Cron engine stopped")
}
