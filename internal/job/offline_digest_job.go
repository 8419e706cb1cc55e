package job

import (
	"Courier/internal/api/dto"
	"Courier/internal/model"
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/logger"
	"Courier/internal/pkg/redis"
	"Courier/internal/pkg/util"
	"Courier/internal/repository"
	"Courier/internal/service"
	"context"
	"fmt"
	log "log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	digestBatchSize   = 200
	digestConcurrency = 8
)

// OfflineDigestJob 为长时间离线且有未读的成员补发一条未读汇总通知
type OfflineDigestJob struct {
	convRepo    repository.ConversationRepo
	notifRepo   repository.NotificationRepo
	catalogRepo repository.CatalogRepo
	notifier    service.NotificationCreator
	online      service.OnlineChecker
	cache       *redis.Cache
	offlineFor  time.Duration
}

func NewOfflineDigestJob(
	convRepo repository.ConversationRepo,
	notifRepo repository.NotificationRepo,
	catalogRepo repository.CatalogRepo,
	notifier service.NotificationCreator,
	online service.OnlineChecker,
	cache *redis.Cache,
	offlineFor time.Duration,
) *OfflineDigestJob {
	return &OfflineDigestJob{
		convRepo:    convRepo,
		notifRepo:   notifRepo,
		catalogRepo: catalogRepo,
		notifier:    notifier,
		online:      online,
		cache:       cache,
		offlineFor:  offlineFor,
	}
}

func (s *OfflineDigestJob) Run() {
	ctx := logger.WithTraceID(context.Background(), "job-digest-"+uuid.NewString())
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	sent, err := s.RunOnce(ctx)
	if err != nil {
		log.ErrorContext(ctx, "offline digest job failed", "err", err)
		return
	}
	if sent > 0 {
		log.InfoContext(ctx, "offline digest job finished", "sent", sent)
	}
}

// RunOnce 执行一轮汇总, 返回创建的通知数
func (s *OfflineDigestJob) RunOnce(ctx context.Context) (int64, error) {
	nt, err := s.catalogRepo.GetTypeByName(ctx, consts.NewMessageNotificationType)
	if err != nil {
		return 0, err
	}
	members, err := s.convRepo.GetOfflineUnreadMembers(ctx, time.Now().UTC().Add(-s.offlineFor), digestBatchSize)
	if err != nil {
		return 0, err
	}

	var sent atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(digestConcurrency)
	for _, m := range members {
		if s.online != nil && s.online.IsOnline(m.UserID) {
			continue
		}
		g.Go(func() error {
			ok, err := s.digest(gCtx, nt, m)
			if err != nil {
				log.WarnContext(gCtx, "offline digest for member failed",
					"user_id", m.UserID, "conversation_id", m.ConversationID, "err", err)
				return nil
			}
			if ok {
				sent.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return sent.Load(), nil
}

func (s *OfflineDigestJob) digest(ctx context.Context, nt *model.NotificationType, m *model.ConversationMember) (bool, error) {
	open, err := s.notifRepo.HasOpenByData(ctx, m.UserID, nt.ID, "conversation_id", m.ConversationID)
	if err != nil {
		return false, err
	}
	if open {
		return false, nil
	}

	if s.cache != nil {
		key := fmt.Sprintf("%s%s:%s", consts.IMOfflineDigestKey, m.UserID, m.ConversationID)
		acquired, err := s.cache.TrySet(ctx, key, 1, s.offlineFor)
		if err != nil {
			return false, err
		}
		if !acquired {
			return false, nil
		}
	}

	title := m.Conversation.Title
	if title == "" {
		title = consts.DirectMessageTitle
	}
	_, err = s.notifier.CreateNotification(ctx, &dto.CreateNotificationReq{
		RecipientID: m.UserID,
		Type:        consts.NewMessageNotificationType,
		Title:       consts.NewMessageTitle,
		Message:     fmt.Sprintf("You have %d unread messages", m.UnreadCount),
		Data: map[string]any{
			"conversation_id":    m.ConversationID,
			"conversation_title": title,
			"unread_count":       m.UnreadCount,
		},
		Priority:   model.PriorityNormal,
		ActionURL:  util.Ptr("/messages/" + m.ConversationID),
		ActionText: consts.ViewMessageText,
	})
	return err == nil, err
}
