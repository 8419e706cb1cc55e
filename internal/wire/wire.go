package wire

import (
	"Courier/internal/api"
	"Courier/internal/api/config"
	"Courier/internal/api/handler"
	"Courier/internal/job"
	"Courier/internal/model"
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/cron"
	"Courier/internal/pkg/es"
	"Courier/internal/pkg/kafka"
	"Courier/internal/pkg/minio"
	"Courier/internal/pkg/mongo"
	"Courier/internal/pkg/redis"
	"Courier/internal/pkg/security"
	"Courier/internal/pkg/sender"
	"Courier/internal/pkg/userclient"
	"Courier/internal/realtime"
	"Courier/internal/repository"
	"Courier/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	miniodrv "github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router         *gin.Engine
	DB             *gorm.DB
	Hub            *realtime.Hub
	Fanout         *realtime.RedisBroadcaster
	DeliveryEngine service.DeliveryEngine
	IMService      service.IMService
	CronMgr        *cron.Manager
	KafkaManager   *kafka.ConsumerManager
}

// BuildApplication mongoDB, esClient 与 minioClient 可为空, 对应功能降级
func BuildApplication(
	db *gorm.DB,
	rdb *goredis.Client,
	mongoDB *mongodrv.Database,
	esClient *elasticsearch.TypedClient,
	minioClient *miniodrv.Client,
	cfg *config.Config,
) (*ApplicationContainer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cache := redis.NewCache(rdb)

	// repositories
	convRepo := repository.NewConversationRepo(db)
	messageRepo := repository.NewMessageRepo(db)
	readRepo := repository.NewReadRepo(db)
	notifRepo := repository.NewNotificationRepo(db)
	deliveryRepo := repository.NewDeliveryRepo(db)
	prefRepo := repository.NewPreferenceRepo(db)
	catalogRepo := repository.NewCatalogRepo(db)

	if cfg.Notification.SeedDefaults {
		if err := catalogRepo.EnsureDefaults(ctx, consts.DefaultChannels, consts.DefaultNotificationTypes); err != nil {
			return nil, err
		}
	}

	var attemptRepo mongo.DeliveryAttemptRepo
	if mongoDB != nil {
		attemptRepo = mongo.NewDeliveryAttemptRepo(mongoDB)
	}

	var messageIndex es.MessageRepo
	if esClient != nil {
		idx := es.NewMessageRepo(esClient, cfg.Elastic.Indices.MessageIndex)
		if err := idx.EnsureIndex(ctx); err != nil {
			log.Warn("Message index unavailable, search falls back to database", "err", err)
		} else {
			messageIndex = idx
		}
	}

	// realtime
	hub := realtime.NewHub()
	var broadcaster realtime.Broadcaster
	var fanout *realtime.RedisBroadcaster
	if cfg.Server.FanoutChannel != "" {
		fanout = realtime.NewRedisBroadcaster(rdb, cfg.Server.FanoutChannel, hub)
		broadcaster = fanout
	} else {
		broadcaster = realtime.NewLocalBroadcaster(hub)
	}

	// collaborators
	tokens := security.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	authenticator := security.NewTokenAuthenticator(tokens, cache)
	users := userclient.NewClient(cfg.Providers.Users, cache)
	senders := sender.NewSet(
		sender.NewWebSender(broadcaster),
		sender.NewHTTPSender(model.ChannelEmail, cfg.Providers.Email, users),
		sender.NewHTTPSender(model.ChannelSMS, cfg.Providers.SMS, users),
		sender.NewHTTPSender(model.ChannelPush, cfg.Providers.Push, users),
	)

	// services
	nc := cfg.Notification
	deliveryEngine := service.NewDeliveryEngine(deliveryRepo, notifRepo, attemptRepo, senders, service.DeliveryOptions{
		Workers:        nc.Workers,
		QueueSize:      nc.QueueSize,
		BaseBackoff:    millis(nc.BaseBackoff),
		MaxBackoff:     millis(nc.MaxBackoff),
		ChannelTimeout: millis(nc.ChannelTimeout),
		RateLimit:      nc.RateLimit,
		RateBurst:      nc.RateBurst,
	})
	resolver := service.NewChannelResolver(prefRepo, catalogRepo, cache, seconds(nc.PrefCacheTTL), seconds(nc.TypeCacheTTL))
	notifService := service.NewNotificationService(notifRepo, deliveryRepo, catalogRepo, attemptRepo, resolver, deliveryEngine, service.NotificationOptions{
		MaxAttempts:     nc.MaxAttempts,
		DefaultPageSize: cfg.Messaging.DefaultPageSize,
		MaxPageSize:     cfg.Messaging.MaxPageSize,
	})
	prefService := service.NewPreferenceService(prefRepo, catalogRepo, resolver)
	mc := cfg.Messaging
	imService := service.NewIMService(convRepo, messageRepo, messageIndex, broadcaster, notifService, users, hub, service.IMOptions{
		MaxContentLength: mc.MaxContentLength,
		DefaultPageSize:  mc.DefaultPageSize,
		MaxPageSize:      mc.MaxPageSize,
		SearchLimit:      mc.SearchLimit,
		NotifyTimeout:    seconds(mc.NotifyTimeout),
	})
	readService := service.NewReadService(convRepo, messageRepo, readRepo, broadcaster)
	presenceService := service.NewPresenceService(broadcaster, hub)

	// handlers
	gc := cfg.Gateway
	handlers := &api.HandlersGroup{
		WSHandler: handler.NewWsHandler(authenticator, hub, imService, readService, presenceService, notifService, handler.GatewayOptions{
			AuthTimeout:    millis(cfg.Auth.Timeout),
			IdleTimeout:    seconds(gc.IdleTimeout),
			MaxMessageSize: gc.MaxMessageSize,
			Connection: realtime.ConnectionOptions{
				WriteWait:  seconds(gc.WriteWait),
				PingPeriod: seconds(gc.PingPeriod),
				SendBuffer: gc.SendBuffer,
			},
		}),
		IMHandler:           handler.NewIMHandler(imService, readService),
		NotificationHandler: handler.NewNotificationHandler(notifService, prefService),
		Authenticator:       authenticator,
		ServiceToken:        cfg.Auth.ServiceToken,
	}
	if minioClient != nil {
		handlers.AttachmentHandler = handler.NewAttachmentHandler(minio.NewAttachmentStore(minioClient, cfg.MinIO), cfg.MinIO.MaxFileSize)
	}
	router := api.SetupRouter(handlers, api.RouterOptions{
		TrustedProxies: cfg.Server.TrustedProxies,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// jobs
	cronMgr := cron.NewCronManager(
		cfg.Cron,
		job.NewMessagePurgeJob(messageRepo, time.Duration(mc.PurgeAfterDays)*24*time.Hour),
		job.NewOfflineDigestJob(convRepo, notifRepo, catalogRepo, notifService, hub, cache, time.Duration(mc.OfflineAfter)*time.Minute),
		job.NewDeliverySweeperJob(deliveryRepo, deliveryEngine, seconds(nc.StaleDelivery)),
	)

	var kafkaMgr *kafka.ConsumerManager
	if len(cfg.Kafka.Brokers) > 0 {
		var err error
		kafkaMgr, err = kafka.NewConsumerManager(cfg, notifService)
		if err != nil {
			return nil, err
		}
	}

	return &ApplicationContainer{
		Router:         router,
		DB:             db,
		Hub:            hub,
		Fanout:         fanout,
		DeliveryEngine: deliveryEngine,
		IMService:      imService,
		CronMgr:        cronMgr,
		KafkaManager:   kafkaMgr,
	}, nil
}

func millis(v int) time.Duration  { return time.Duration(v) * time.Millisecond }
func seconds(v int) time.Duration { return time.Duration(v) * time.Second }
