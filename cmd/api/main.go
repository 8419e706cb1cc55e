package main

import (
	"Courier/internal/api/config"
	"Courier/internal/pkg/cron"
	"Courier/internal/pkg/database"
	"Courier/internal/pkg/es"
	"Courier/internal/pkg/logger"
	"Courier/internal/pkg/minio"
	"Courier/internal/pkg/mongo"
	"Courier/internal/pkg/redis"
	"Courier/internal/wire"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	miniodrv "github.com/minio/minio-go/v7"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 加载配置
	if err := config.LoadConfig(); err != nil {
		log.Error("Fatal error: failed to load configuration", "err", err)
		panic(err)
	}
	cfg := config.Cfg

	// 初始化日志
	logger.InitLogger()

	// 数据库连接
	dbCfg := cfg.DB
	db, err := database.NewGormDB(&dbCfg)
	if err != nil {
		log.Error("Fatal error: failed to create database connection", "err", err)
		panic(err)
	}

	// Redis 连接
	rdb, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Error("Fatal error: failed to create redis connection", "err", err)
		panic(err)
	}

	// Mongo 连接, 未配置时不记录投递尝试明细
	var mongoDB *mongodrv.Database
	if cfg.Mongo.URL != "" {
		mongoDB, err = mongo.InitMongo(cfg.Mongo)
		if err != nil {
			log.Error("Fatal error: failed to create mongo connection", "err", err)
			panic(err)
		}
	}

	// ElasticSearch 连接, 未配置时搜索走数据库
	var esClient *elasticsearch.TypedClient
	if cfg.Elastic.Address != "" {
		esClient, err = es.InitClient(cfg.Elastic)
		if err != nil {
			log.Error("Fatal error: failed to initialize ElasticSearch", "err", err)
			panic(err)
		}
	}

	// MinIO 连接, 未配置时不开放附件上传
	var minioClient *miniodrv.Client
	if cfg.MinIO.Endpoint != "" {
		minioClient, err = minio.NewClient(cfg.MinIO)
		if err != nil {
			log.Error("Fatal error: failed to initialize MinIO", "err", err)
			panic(err)
		}
	}

	// 依赖注入
	app, err := wire.BuildApplication(db, rdb, mongoDB, esClient, minioClient, cfg)
	if err != nil {
		log.Error("Fatal error: failed to create application", "err", err)
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// 投递工作池
	app.DeliveryEngine.Start()

	// 定时任务
	err = cron.InitCron(app.CronMgr)
	if err != nil {
		log.Error("Fatal error: failed to start cron jobs", "err", err)
		panic(err)
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Cron Jobs stopping...")
		app.CronMgr.Stop()
		return nil
	})

	// Kafka 消费者
	if app.KafkaManager != nil {
		g.Go(func() error {
			log.Info("Kafka Consumers starting...")
			return app.KafkaManager.Start(ctx)
		})
	}

	// 跨实例广播
	if app.Fanout != nil {
		g.Go(func() error {
			log.Info("Realtime fanout starting...")
			return app.Fanout.Run(ctx)
		})
	}

	// HTTP 服务器
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: app.Router,
	}
	g.Go(func() error {
		log.Info("HTTP Server starting...", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 优雅退出
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-ctx.Done():
		case sig := <-quit:
			log.Info("Received signal, shutting down...", "signal", sig)
			cancel()
		}

		// 先断开长连接, Shutdown 不会等待已劫持的连接
		app.Hub.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP Server shutdown failed", "err", err)
		}
		return nil
	})

	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("App exited with error", "err", err)
	}

	app.IMService.Close()
	app.DeliveryEngine.Close()
	log.Info("App exited successfully.")
}
