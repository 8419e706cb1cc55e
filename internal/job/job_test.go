package job

import (
	"Courier/internal/api/dto"
	"Courier/internal/model"
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/database"
	"Courier/internal/pkg/redis"
	"Courier/internal/realtime"
	"Courier/internal/repository"
	"Courier/internal/service"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type jobEnv struct {
	db           *gorm.DB
	cache        *redis.Cache
	convRepo     repository.ConversationRepo
	messageRepo  repository.MessageRepo
	notifRepo    repository.NotificationRepo
	deliveryRepo repository.DeliveryRepo
	catalogRepo  repository.CatalogRepo
	queue        *idQueue
	notifs       service.NotificationService
	im           service.IMService
}

type idQueue struct {
	mu    sync.Mutex
	tasks []service.DeliveryTask
}

func (q *idQueue) Enqueue(tasks ...service.DeliveryTask) {
	q.mu.Lock()
	q.tasks = append(q.tasks, tasks...)
	q.mu.Unlock()
}

func (q *idQueue) drain() []service.DeliveryTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.tasks
	q.tasks = nil
	return out
}

type onlineSet map[string]bool

func (o onlineSet) IsOnline(userID string) bool { return o[userID] }

func newJobEnv(t *testing.T) *jobEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err = database.AutoMigrate(db); err != nil {
		t.Fatal(err)
	}

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &jobEnv{
		db:           db,
		cache:        redis.NewCache(rdb),
		convRepo:     repository.NewConversationRepo(db),
		messageRepo:  repository.NewMessageRepo(db),
		notifRepo:    repository.NewNotificationRepo(db),
		deliveryRepo: repository.NewDeliveryRepo(db),
		catalogRepo:  repository.NewCatalogRepo(db),
		queue:        &idQueue{},
	}
	if err = env.catalogRepo.EnsureDefaults(context.Background(), consts.DefaultChannels, consts.DefaultNotificationTypes); err != nil {
		t.Fatal(err)
	}

	resolver := service.NewChannelResolver(repository.NewPreferenceRepo(db), env.catalogRepo, env.cache, time.Minute, time.Minute)
	env.notifs = service.NewNotificationService(env.notifRepo, env.deliveryRepo, env.catalogRepo, nil, resolver, env.queue, service.NotificationOptions{})
	hub := realtime.NewHub()
	env.im = service.NewIMService(env.convRepo, env.messageRepo, nil, realtime.NewLocalBroadcaster(hub), nil, nil, hub, service.IMOptions{})
	t.Cleanup(env.im.Close)
	return env
}

func (e *jobEnv) conversationWithUnread(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	conv, err := e.im.StartConversation(ctx, "alice", &dto.StartConversationReq{ParticipantIDs: []string{"bob"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, content := range []string{"ping", "are you around?"} {
		if _, err = e.im.SendMessage(ctx, "alice", &dto.SendMessageReq{ConversationID: conv.ID, Content: content}); err != nil {
			t.Fatal(err)
		}
	}
	return conv.ID
}

func TestOfflineDigestNotifiesOnce(t *testing.T) {
	env := newJobEnv(t)
	convID := env.conversationWithUnread(t)
	ctx := context.Background()

	j := NewOfflineDigestJob(env.convRepo, env.notifRepo, env.catalogRepo, env.notifs, onlineSet{}, env.cache, time.Minute)
	sent, err := j.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}

	page, err := env.notifs.ListNotifications(ctx, "bob", &dto.NotificationQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Items[0].Data["conversation_id"] != convID {
		t.Fatalf("bob notifications = %+v", page.Items)
	}
	if page.Items[0].Message != "You have 2 unread messages" {
		t.Fatalf("message = %q", page.Items[0].Message)
	}

	// 未读通知仍在时不重复提醒
	if sent, err = j.RunOnce(ctx); err != nil || sent != 0 {
		t.Fatalf("second run sent %d, err %v", sent, err)
	}
}

func TestOfflineDigestSkipsOnlineUsers(t *testing.T) {
	env := newJobEnv(t)
	env.conversationWithUnread(t)

	j := NewOfflineDigestJob(env.convRepo, env.notifRepo, env.catalogRepo, env.notifs, onlineSet{"bob": true}, nil, time.Minute)
	sent, err := j.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0 for online user", sent)
	}
}

func TestDeliverySweeperReenqueuesStaleDeliveries(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()

	_, err := env.notifs.CreateNotification(ctx, &dto.CreateNotificationReq{RecipientID: "alice", Type: "account_verified"})
	if err != nil {
		t.Fatal(err)
	}
	created := env.queue.drain()
	if len(created) != 1 {
		t.Fatalf("created deliveries = %v", created)
	}

	// 负的阈值使所有投递都视为过期
	NewDeliverySweeperJob(env.deliveryRepo, env.queue, -time.Minute).Run()
	if got := env.queue.drain(); len(got) != 1 || got[0] != created[0] {
		t.Fatalf("re-enqueued %v, want %v", got, created)
	}

	// 已送达的投递不再入队
	if created[0].Channel != model.ChannelWeb {
		t.Fatalf("created task channel = %q", created[0].Channel)
	}
	if err = env.deliveryRepo.MarkDelivered(ctx, created[0].ID, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	NewDeliverySweeperJob(env.deliveryRepo, env.queue, -time.Minute).Run()
	if got := env.queue.drain(); len(got) != 0 {
		t.Fatalf("re-enqueued %v after delivery", got)
	}
}

func TestMessagePurgeRemovesOldDeletedMessages(t *testing.T) {
	env := newJobEnv(t)
	convID := env.conversationWithUnread(t)
	ctx := context.Background()

	history, err := env.im.GetHistory(ctx, "alice", convID, &dto.HistoryQuery{})
	if err != nil || len(history) != 2 {
		t.Fatalf("history = %v, err %v", history, err)
	}
	if err = env.im.DeleteMessage(ctx, "alice", history[0].ID); err != nil {
		t.Fatal(err)
	}

	NewMessagePurgeJob(env.messageRepo, -time.Minute).Run()

	var count int64
	env.db.Model(&model.Message{}).Where("conversation_id = ?", convID).Count(&count)
	if count != 1 {
		t.Fatalf("messages left = %d, want 1", count)
	}
}
