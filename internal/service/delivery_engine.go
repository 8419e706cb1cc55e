package service

import (
	"Courier/internal/model"
	"Courier/internal/pkg/metrics"
	"Courier/internal/pkg/mongo"
	"Courier/internal/pkg/sender"
	"Courier/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const (
	outcomeDelivered = "delivered"
	outcomeRetry     = "retry"
	outcomeFailed    = "failed"
	outcomeThrottled = "throttled"
)

const fallbackLane = ""

// DeliveryEngine 渠道投递工作池
type DeliveryEngine interface {
	DeliveryQueue
	Start()
	Deliver(ctx context.Context, deliveryID uint64) error
	Close()
}

type DeliveryOptions struct {
	// Workers 每个渠道独立的 worker 数
	Workers        int
	// QueueSize 每个渠道队列的容量
	QueueSize      int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	ChannelTimeout time.Duration
	// RateLimit 每个渠道每秒发送上限, <=0 不限
	RateLimit float64
	RateBurst int
}

func (o DeliveryOptions) withDefaults() DeliveryOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff < o.BaseBackoff {
		o.MaxBackoff = o.BaseBackoff
	}
	if o.ChannelTimeout <= 0 {
		o.ChannelTimeout = 10 * time.Second
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 1
	}
	return o
}

type deliveryEngineImpl struct {
	deliveryRepo repository.DeliveryRepo
	notifRepo    repository.NotificationRepo
	attemptRepo  mongo.DeliveryAttemptRepo
	senders      sender.Set
	limiters     map[string]*rate.Limiter
	opts         DeliveryOptions

	// 每个渠道一条队列与一组 worker, 慢渠道不占用站内信的 worker
	lanes     map[string]chan uint64
	stopChan  chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewDeliveryEngine attemptRepo 可为空; 调用 Start 之前入队的投递会在启动后处理
func NewDeliveryEngine(
	deliveryRepo repository.DeliveryRepo,
	notifRepo repository.NotificationRepo,
	attemptRepo mongo.DeliveryAttemptRepo,
	senders sender.Set,
	opts DeliveryOptions,
) DeliveryEngine {
	opts = opts.withDefaults()
	limiters := make(map[string]*rate.Limiter, len(senders))
	lanes := make(map[string]chan uint64, len(senders)+1)
	for channel := range senders {
		lanes[channel] = make(chan uint64, opts.QueueSize)
		if opts.RateLimit > 0 {
			limiters[channel] = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
		}
	}
	// 未注册发送器的渠道, Deliver 会直接置为失败
	lanes[fallbackLane] = make(chan uint64, opts.QueueSize)
	return &deliveryEngineImpl{
		deliveryRepo: deliveryRepo,
		notifRepo:    notifRepo,
		attemptRepo:  attemptRepo,
		senders:      senders,
		limiters:     limiters,
		opts:         opts,
		lanes:        lanes,
		stopChan:     make(chan struct{}),
	}
}

func (s *deliveryEngineImpl) Start() {
	s.startOnce.Do(func() {
		for channel, lane := range s.lanes {
			s.wg.Add(s.opts.Workers)
			for i := 0; i < s.opts.Workers; i++ {
				go s.worker(channel, lane)
			}
		}
		log.Info("Delivery engine started", "lanes", len(s.lanes), "workers_per_lane", s.opts.Workers)
	})
}

// Enqueue 按渠道非阻塞入队, 队列满时留给补偿任务处理
func (s *deliveryEngineImpl) Enqueue(tasks ...DeliveryTask) {
	for _, task := range tasks {
		select {
		case <-s.stopChan:
			return
		default:
		}
		lane, ok := s.lanes[task.Channel]
		if !ok {
			lane = s.lanes[fallbackLane]
		}
		select {
		case lane <- task.ID:
		default:
			log.Warn("Delivery queue full, left for sweeper", "delivery_id", task.ID, "channel", task.Channel)
		}
	}
	depth := 0
	for _, lane := range s.lanes {
		depth += len(lane)
	}
	metrics.DeliveryQueueDepth.Set(float64(depth))
}

// Deliver 对一条投递记录执行一次尝试
// 渠道失败记录在投递记录上, 仅基础设施错误作为返回值
func (s *deliveryEngineImpl) Deliver(ctx context.Context, deliveryID uint64) error {
	d, err := s.deliveryRepo.GetDelivery(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if d.Status == model.DeliveryStatusDelivered || d.Status == model.DeliveryStatusFailed {
		return nil
	}

	n, err := s.notifRepo.GetNotification(ctx, d.NotificationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	channel := d.Channel.Name
	now := time.Now().UTC()
	if n.IsExpired(now) {
		metrics.RecordDeliveryAttempt(channel, outcomeFailed, 0)
		return s.fail(ctx, d, "notification expired")
	}

	snd, ok := s.senders.Get(channel)
	if !ok || !d.Channel.IsActive {
		metrics.RecordDeliveryAttempt(channel, outcomeFailed, 0)
		return s.fail(ctx, d, "channel unavailable: "+channel)
	}

	if lim := s.limiters[channel]; lim != nil && !lim.Allow() {
		metrics.RecordDeliveryAttempt(channel, outcomeThrottled, 0)
		s.retryLater(DeliveryTask{ID: d.ID, Channel: channel}, time.Duration(float64(time.Second)/float64(lim.Limit())))
		return nil
	}

	attempt, err := s.deliveryRepo.BeginAttempt(ctx, d.ID, now)
	if err != nil {
		if errors.Is(err, repository.ErrDeliveryClosed) {
			return nil
		}
		return err
	}
	if err = s.notifRepo.MarkSent(ctx, n.ID, now); err != nil {
		log.WarnContext(ctx, "mark notification sent failed", "notification_id", n.ID, "err", err)
	}

	msg, err := s.buildMessage(n)
	if err != nil {
		return s.fail(ctx, d, err.Error())
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.ChannelTimeout)
	start := time.Now()
	sendErr := snd.Send(sendCtx, msg)
	latency := time.Since(start)
	cancel()

	s.recordAttempt(ctx, d, n, attempt, sendErr, latency)

	if sendErr == nil {
		metrics.RecordDeliveryAttempt(channel, outcomeDelivered, latency)
		at := time.Now().UTC()
		if err = s.deliveryRepo.MarkDelivered(ctx, d.ID, at); err != nil {
			return err
		}
		return s.notifRepo.MarkDelivered(ctx, n.ID, at)
	}

	if sender.IsPermanent(sendErr) || attempt >= d.MaxAttempts {
		metrics.RecordDeliveryAttempt(channel, outcomeFailed, latency)
		log.WarnContext(ctx, "delivery failed",
			"delivery_id", d.ID, "notification_id", n.ID, "channel", channel, "attempt", attempt, "err", sendErr)
		return s.fail(ctx, d, sendErr.Error())
	}

	metrics.RecordDeliveryAttempt(channel, outcomeRetry, latency)
	if err = s.deliveryRepo.MarkRetry(ctx, d.ID, sendErr.Error()); err != nil {
		return err
	}
	backoff := s.backoff(attempt)
	log.InfoContext(ctx, "delivery attempt failed, retry scheduled",
		"delivery_id", d.ID, "channel", channel, "attempt", attempt, "backoff", backoff, "err", sendErr)
	s.retryLater(DeliveryTask{ID: d.ID, Channel: channel}, backoff)
	return nil
}

// Close 停止接收新任务并等待在途投递结束
func (s *deliveryEngineImpl) Close() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	log.Info("Delivery engine shut down gracefully")
}

func (s *deliveryEngineImpl) worker(channel string, lane <-chan uint64) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopChan:
			return
		case id := <-lane:
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.ChannelTimeout+10*time.Second)
			if err := s.Deliver(ctx, id); err != nil {
				log.Error("Delivery attempt aborted", "delivery_id", id, "channel", channel, "err", err)
			}
			cancel()
		}
	}
}

// fail 投递终态失败, 若通知的所有渠道都已失败则通知整体失败
func (s *deliveryEngineImpl) fail(ctx context.Context, d *model.NotificationDelivery, reason string) error {
	if err := s.deliveryRepo.MarkFailed(ctx, d.ID, reason, time.Now().UTC()); err != nil {
		return err
	}
	_, err := s.notifRepo.MarkFailedIfExhausted(ctx, d.NotificationID)
	return err
}

func (s *deliveryEngineImpl) retryLater(task DeliveryTask, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.Enqueue(task)
	})
}

// backoff 指数退避: base * 2^(attempt-1), 上限 MaxBackoff
func (s *deliveryEngineImpl) backoff(attempt int) time.Duration {
	d := s.opts.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.opts.MaxBackoff {
			return s.opts.MaxBackoff
		}
	}
	return d
}

func (s *deliveryEngineImpl) buildMessage(n *model.Notification) (*sender.Message, error) {
	frame, err := EncodeNotificationFrame(n)
	if err != nil {
		return nil, err
	}
	return &sender.Message{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Type:           n.NotificationType.Name,
		Title:          n.Title,
		Body:           n.Message,
		Data:           n.Data,
		Priority:       n.Priority,
		ActionURL:      n.ActionURL,
		ActionText:     n.ActionText,
		Frame:          frame,
	}, nil
}

func (s *deliveryEngineImpl) recordAttempt(ctx context.Context, d *model.NotificationDelivery, n *model.Notification, attempt int, sendErr error, latency time.Duration) {
	if s.attemptRepo == nil {
		return
	}
	rec := &mongo.DeliveryAttemptModel{
		NotificationID: n.ID,
		DeliveryID:     d.ID,
		RecipientID:    n.RecipientID,
		Channel:        d.Channel.Name,
		Attempt:        attempt,
		Success:        sendErr == nil,
		LatencyMs:      latency.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	recordCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.attemptRepo.Record(recordCtx, rec); err != nil {
		log.WarnContext(ctx, "record delivery attempt failed", "delivery_id", d.ID, "err", err)
	}
}
