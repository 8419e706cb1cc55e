package service

import (
	"Courier/internal/api/dto"
	"Courier/internal/model"
	"Courier/internal/pkg/metrics"
	"Courier/internal/pkg/mongo"
	"Courier/internal/pkg/util"
	"Courier/internal/realtime"
	"Courier/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	"gorm.io/gorm"
)

const deliveryAttemptLimit = 200

// NotificationService 通知的创建与收件箱操作
type NotificationService interface {
	CreateNotification(ctx context.Context, req *dto.CreateNotificationReq) (*dto.NotificationDTO, error)
	ListNotifications(ctx context.Context, userID string, q *dto.NotificationQuery) (*dto.PageDTO[*dto.NotificationDTO], error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (*dto.MarkAllResultDTO, error)
	GetStats(ctx context.Context, userID string) (*dto.NotificationStatsDTO, error)
	GetDeliveries(ctx context.Context, userID, notificationID string) (*dto.DeliveryReportDTO, error)
	DeleteNotification(ctx context.Context, notificationID string) error
}

// DeliveryTask 一条待投递记录, Channel 决定进入哪个渠道队列
type DeliveryTask struct {
	ID      uint64
	Channel string
}

// DeliveryQueue 投递引擎的入队端
type DeliveryQueue interface {
	Enqueue(tasks ...DeliveryTask)
}

type NotificationOptions struct {
	MaxAttempts     int
	DefaultPageSize int
	MaxPageSize     int
}

type notificationServiceImpl struct {
	notifRepo    repository.NotificationRepo
	deliveryRepo repository.DeliveryRepo
	catalogRepo  repository.CatalogRepo
	attemptRepo  mongo.DeliveryAttemptRepo
	resolver     ChannelResolver
	queue        DeliveryQueue
	opts         NotificationOptions
}

// NewNotificationService attemptRepo 可为空 (未配置 MongoDB)
func NewNotificationService(
	notifRepo repository.NotificationRepo,
	deliveryRepo repository.DeliveryRepo,
	catalogRepo repository.CatalogRepo,
	attemptRepo mongo.DeliveryAttemptRepo,
	resolver ChannelResolver,
	queue DeliveryQueue,
	opts NotificationOptions,
) NotificationService {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = model.DefaultMaxAttempts
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	return &notificationServiceImpl{
		notifRepo:    notifRepo,
		deliveryRepo: deliveryRepo,
		catalogRepo:  catalogRepo,
		attemptRepo:  attemptRepo,
		resolver:     resolver,
		queue:        queue,
		opts:         opts,
	}
}

// CreateNotification 校验类型后落库, 按解析出的渠道生成投递记录并入队
// 渠道投递的成败不影响本调用的结果
func (s *notificationServiceImpl) CreateNotification(ctx context.Context, req *dto.CreateNotificationReq) (*dto.NotificationDTO, error) {
	if util.Normalize(req.RecipientID) == "" {
		return nil, ErrRecipientMissing
	}
	if req.Priority != "" {
		if _, ok := model.Priorities[req.Priority]; !ok {
			return nil, ErrPriorityInvalid
		}
	}
	if err := util.ValidateDTO(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}

	nt, err := s.catalogRepo.GetTypeByName(ctx, req.Type)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationTypeUnknown
		}
		return nil, err
	}
	if !nt.IsActive {
		return nil, ErrNotificationTypeInactive
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	title := req.Title
	if title == "" {
		title = util.RenderTemplate(nt.TitleTemplate, req.Data)
	}
	message := req.Message
	if message == "" {
		message = util.RenderTemplate(nt.MessageTemplate, req.Data)
	}

	channels, err := s.resolver.Resolve(ctx, req.RecipientID, nt.ID)
	if err != nil {
		return nil, err
	}
	channelIDs := make([]uint64, len(channels))
	for i, ch := range channels {
		channelIDs[i] = ch.ID
	}

	n := &model.Notification{
		RecipientID:        req.RecipientID,
		NotificationTypeID: nt.ID,
		Title:              title,
		Message:            message,
		Data:               req.Data,
		Priority:           priority,
		Status:             model.NotificationStatusPending,
		ActionURL:          req.ActionURL,
		ActionText:         req.ActionText,
		ExpiresAt:          req.ExpiresAt,
	}
	deliveries, err := s.notifRepo.CreateNotification(ctx, n, channelIDs, s.opts.MaxAttempts)
	if err != nil {
		return nil, err
	}
	n.NotificationType = *nt
	metrics.RecordNotificationCreated(nt.Name)

	if len(deliveries) > 0 && s.queue != nil {
		names := make(map[uint64]string, len(channels))
		for _, ch := range channels {
			names[ch.ID] = ch.Name
		}
		tasks := make([]DeliveryTask, len(deliveries))
		for i, d := range deliveries {
			tasks[i] = DeliveryTask{ID: d.ID, Channel: names[d.ChannelID]}
		}
		s.queue.Enqueue(tasks...)
	}

	log.InfoContext(ctx, "notification created",
		"notification_id", n.ID, "recipient_id", n.RecipientID, "type", nt.Name,
		"channels", ChannelNames(channels))
	return toNotificationDTO(n), nil
}

func (s *notificationServiceImpl) ListNotifications(ctx context.Context, userID string, q *dto.NotificationQuery) (*dto.PageDTO[*dto.NotificationDTO], error) {
	page, size, offset := util.ClampPage(q.Page, q.PageSize, s.opts.DefaultPageSize, s.opts.MaxPageSize)
	list, total, err := s.notifRepo.ListNotifications(ctx, userID, repository.NotificationFilter{
		Status:   q.Status,
		TypeName: q.Type,
		Priority: q.Priority,
		Offset:   offset,
		Limit:    size,
	})
	if err != nil {
		return nil, err
	}

	items := make([]*dto.NotificationDTO, 0, len(list))
	for _, n := range list {
		items = append(items, toNotificationDTO(n))
	}
	return &dto.PageDTO[*dto.NotificationDTO]{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// MarkRead 重复标记为幂等操作
func (s *notificationServiceImpl) MarkRead(ctx context.Context, userID, notificationID string) error {
	changed, err := s.notifRepo.MarkRead(ctx, notificationID, userID, time.Now().UTC())
	if err != nil {
		return err
	}
	if changed {
		return nil
	}

	n, err := s.notifRepo.GetNotification(ctx, notificationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	if n.RecipientID != userID {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *notificationServiceImpl) MarkAllRead(ctx context.Context, userID string) (*dto.MarkAllResultDTO, error) {
	updated, err := s.notifRepo.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &dto.MarkAllResultDTO{Updated: updated}, nil
}

func (s *notificationServiceImpl) GetStats(ctx context.Context, userID string) (*dto.NotificationStatsDTO, error) {
	stats, err := s.notifRepo.GetStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.NotificationStatsDTO{Total: stats.Total, Unread: stats.Unread, Read: stats.Read}, nil
}

// GetDeliveries 各渠道投递记录, 配置了 MongoDB 时附带逐次尝试日志
func (s *notificationServiceImpl) GetDeliveries(ctx context.Context, userID, notificationID string) (*dto.DeliveryReportDTO, error) {
	n, err := s.notifRepo.GetNotification(ctx, notificationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	if n.RecipientID != userID {
		return nil, ErrNotificationNotFound
	}

	deliveries, err := s.deliveryRepo.GetByNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	report := &dto.DeliveryReportDTO{
		NotificationID: n.ID,
		Status:         n.Status,
		Deliveries:     make([]*dto.DeliveryDTO, 0, len(deliveries)),
	}
	for _, d := range deliveries {
		report.Deliveries = append(report.Deliveries, &dto.DeliveryDTO{
			ID:           d.ID,
			Channel:      d.Channel.Name,
			Status:       d.Status,
			Attempts:     d.Attempts,
			MaxAttempts:  d.MaxAttempts,
			ErrorMessage: d.ErrorMessage,
			CreatedAt:    d.CreatedAt,
			UpdatedAt:    d.UpdatedAt,
			SentAt:       d.SentAt,
			DeliveredAt:  d.DeliveredAt,
			FailedAt:     d.FailedAt,
		})
	}

	if s.attemptRepo == nil {
		return report, nil
	}
	attempts, err := s.attemptRepo.ListByNotification(ctx, notificationID, deliveryAttemptLimit)
	if err != nil {
		log.WarnContext(ctx, "load delivery attempts failed", "notification_id", notificationID, "err", err)
		return report, nil
	}
	for _, a := range attempts {
		report.Attempts = append(report.Attempts, &dto.DeliveryAttemptDTO{
			DeliveryID: a.DeliveryID,
			Channel:    a.Channel,
			Attempt:    a.Attempt,
			Success:    a.Success,
			Error:      a.Error,
			LatencyMs:  a.LatencyMs,
			CreatedAt:  a.CreatedAt,
		})
	}
	return report, nil
}

func (s *notificationServiceImpl) DeleteNotification(ctx context.Context, notificationID string) error {
	err := s.notifRepo.DeleteNotification(ctx, notificationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotificationNotFound
	}
	return err
}

func toNotificationDTO(n *model.Notification) *dto.NotificationDTO {
	data := map[string]any(n.Data)
	if data == nil {
		data = map[string]any{}
	}
	return &dto.NotificationDTO{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        n.NotificationType.Name,
		Title:       n.Title,
		Message:     n.Message,
		Data:        data,
		Priority:    n.Priority,
		Status:      n.Status,
		ActionURL:   n.ActionURL,
		ActionText:  n.ActionText,
		CreatedAt:   n.CreatedAt,
		SentAt:      n.SentAt,
		DeliveredAt: n.DeliveredAt,
		ReadAt:      n.ReadAt,
		ExpiresAt:   n.ExpiresAt,
	}
}

// EncodeNotificationFrame 站内渠道推送的 notification 帧
func EncodeNotificationFrame(n *model.Notification) ([]byte, error) {
	return realtime.Encode(&dto.NotificationFrame{
		FrameHeader:  realtime.NewHeader(dto.FrameNotification),
		Notification: toNotificationDTO(n),
	})
}
