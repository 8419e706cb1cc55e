package service

import (
	"Courier/internal/api/dto"
	"Courier/internal/model"
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/database"
	"Courier/internal/pkg/redis"
	"Courier/internal/pkg/sender"
	"Courier/internal/realtime"
	"Courier/internal/repository"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db    *gorm.DB
	cache *redis.Cache
	mr    *miniredis.Miniredis

	convRepo     repository.ConversationRepo
	messageRepo  repository.MessageRepo
	readRepo     repository.ReadRepo
	notifRepo    repository.NotificationRepo
	deliveryRepo repository.DeliveryRepo
	prefRepo     repository.PreferenceRepo
	catalogRepo  repository.CatalogRepo

	hub         *realtime.Hub
	broadcaster *capturingBroadcaster
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	// 内存库每个连接独立, 固定单连接
	return newTestEnvWithDSN(t, "file::memory:", 1)
}

// newFileTestEnv 文件库 + 多连接, 写事务以 BEGIN IMMEDIATE 开始并等待锁
func newFileTestEnv(t *testing.T, maxConns int) *testEnv {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "courier.db") + "?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate"
	return newTestEnvWithDSN(t, dsn, maxConns)
}

func newTestEnvWithDSN(t *testing.T, dsn string, maxConns int) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(maxConns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err = database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		db:           db,
		cache:        redis.NewCache(rdb),
		mr:           mr,
		convRepo:     repository.NewConversationRepo(db),
		messageRepo:  repository.NewMessageRepo(db),
		readRepo:     repository.NewReadRepo(db),
		notifRepo:    repository.NewNotificationRepo(db),
		deliveryRepo: repository.NewDeliveryRepo(db),
		prefRepo:     repository.NewPreferenceRepo(db),
		catalogRepo:  repository.NewCatalogRepo(db),
		hub:          realtime.NewHub(),
	}
	env.broadcaster = &capturingBroadcaster{next: realtime.NewLocalBroadcaster(env.hub)}

	if err = env.catalogRepo.EnsureDefaults(context.Background(), consts.DefaultChannels, consts.DefaultNotificationTypes); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	return env
}

func (e *testEnv) resolver() ChannelResolver {
	return NewChannelResolver(e.prefRepo, e.catalogRepo, e.cache, time.Minute, time.Minute)
}

// imService 通知走 notifier, 为空时不生成离线通知
func (e *testEnv) imService(t *testing.T, notifier NotificationCreator) IMService {
	t.Helper()
	svc := NewIMService(e.convRepo, e.messageRepo, nil, e.broadcaster, notifier, nil, e.hub, IMOptions{
		MaxContentLength: 50,
		NotifyTimeout:    time.Second,
	})
	t.Cleanup(svc.Close)
	return svc
}

func (e *testEnv) readService() ReadService {
	return NewReadService(e.convRepo, e.messageRepo, e.readRepo, e.broadcaster)
}

func (e *testEnv) notificationService(queue DeliveryQueue) NotificationService {
	return NewNotificationService(e.notifRepo, e.deliveryRepo, e.catalogRepo, nil, e.resolver(), queue, NotificationOptions{
		MaxAttempts: 3,
	})
}

func (e *testEnv) startDirect(t *testing.T, svc IMService, a, b string) *dto.ConversationDTO {
	t.Helper()
	conv, err := svc.StartConversation(context.Background(), a, &dto.StartConversationReq{ParticipantIDs: []string{b}})
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	return conv
}

func (e *testEnv) member(t *testing.T, convID, userID string) *model.ConversationMember {
	t.Helper()
	m, err := e.convRepo.GetMember(context.Background(), convID, userID)
	if err != nil {
		t.Fatalf("get member %s: %v", userID, err)
	}
	return m
}

// capturingBroadcaster 记录发布的帧类型后转发给本地 hub
type capturingBroadcaster struct {
	next realtime.Broadcaster

	mu     sync.Mutex
	frames []capturedFrame
}

type capturedFrame struct {
	Group       realtime.GroupKey
	ExcludeUser string
	Type        string
	Payload     []byte
}

func (b *capturingBroadcaster) Publish(ctx context.Context, envs ...*realtime.Envelope) error {
	b.mu.Lock()
	for _, env := range envs {
		var header dto.FrameHeader
		_ = json.Unmarshal(env.Payload, &header)
		b.frames = append(b.frames, capturedFrame{
			Group:       env.Group,
			ExcludeUser: env.ExcludeUser,
			Type:        header.Type,
			Payload:     env.Payload,
		})
	}
	b.mu.Unlock()
	return b.next.Publish(ctx, envs...)
}

func (b *capturingBroadcaster) ofType(frameType string) []capturedFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []capturedFrame
	for _, f := range b.frames {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

// scriptedSender 前 failures 次发送失败, 之后成功
type scriptedSender struct {
	channel   string
	permanent bool

	mu       sync.Mutex
	failures int
	calls    int
	sent     []*sender.Message
}

var errProviderDown = errors.New("provider unavailable")

func (s *scriptedSender) Channel() string { return s.channel }

func (s *scriptedSender) Send(_ context.Context, msg *sender.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		if s.permanent {
			return sender.Permanent(errProviderDown)
		}
		return errProviderDown
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *scriptedSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingQueue 只记录入队的投递, 由测试显式驱动
type recordingQueue struct {
	mu    sync.Mutex
	tasks []DeliveryTask
}

func (q *recordingQueue) Enqueue(tasks ...DeliveryTask) {
	q.mu.Lock()
	q.tasks = append(q.tasks, tasks...)
	q.mu.Unlock()
}

// drain 返回入队的投递 id
func (q *recordingQueue) drain() []uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]uint64, len(q.tasks))
	for i, task := range q.tasks {
		ids[i] = task.ID
	}
	q.tasks = nil
	return ids
}

// recordingSubscriber 记录收到的帧类型, 用于验证扇出目标
type recordingSubscriber struct {
	id     string
	userID string

	mu    sync.Mutex
	types []string
}

func (r *recordingSubscriber) ID() string     { return r.id }
func (r *recordingSubscriber) UserID() string { return r.userID }

func (r *recordingSubscriber) Send(payload []byte) error {
	var header dto.FrameHeader
	if err := json.Unmarshal(payload, &header); err != nil {
		return err
	}
	r.mu.Lock()
	r.types = append(r.types, header.Type)
	r.mu.Unlock()
	return nil
}

func (r *recordingSubscriber) Close(int, string) {}

func (r *recordingSubscriber) count(frameType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.types {
		if t == frameType {
			n++
		}
	}
	return n
}
