package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 从文件加载配置并填充到 Cfg
func LoadConfig() error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.SetEnvPrefix("COURIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

// Default 返回填充了全部默认值的配置, 测试与本地运行使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.trusted_proxies", []string{"localhost"})

	v.SetDefault("auth.jwt_issuer", "Courier")
	v.SetDefault("auth.timeout", 3000)

	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_open", 100)
	v.SetDefault("database.max_lifetime", 60)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("elastic.indices.message_index", "courier_messages")

	v.SetDefault("kafka.consumer.session_timeout", 10)
	v.SetDefault("kafka.consumer.heartbeat_interval", 3)
	v.SetDefault("kafka.consumer.rebalance_timeout", 60)
	v.SetDefault("kafka.consumer.max_processing_time", 30)
	v.SetDefault("kafka_notification_consumer.topic", "notification.create")
	v.SetDefault("kafka_notification_consumer.group_id", "courier-notification")

	v.SetDefault("gateway.idle_timeout", 60)
	v.SetDefault("gateway.write_wait", 10)
	v.SetDefault("gateway.ping_period", 30)
	v.SetDefault("gateway.send_buffer", 128)
	v.SetDefault("gateway.max_message_size", 64*1024)

	v.SetDefault("messaging.max_content_length", 5000)
	v.SetDefault("messaging.default_page_size", 20)
	v.SetDefault("messaging.max_page_size", 100)
	v.SetDefault("messaging.search_limit", 50)
	v.SetDefault("messaging.purge_after_days", 30)
	v.SetDefault("messaging.offline_after", 15)
	v.SetDefault("messaging.notify_timeout", 5)

	v.SetDefault("notification.workers", 8)
	v.SetDefault("notification.queue_size", 2048)
	v.SetDefault("notification.max_attempts", 3)
	v.SetDefault("notification.base_backoff", 1000)
	v.SetDefault("notification.max_backoff", 30000)
	v.SetDefault("notification.channel_timeout", 10000)
	v.SetDefault("notification.rate_limit", 50)
	v.SetDefault("notification.rate_burst", 10)
	v.SetDefault("notification.pref_cache_ttl", 1800)
	v.SetDefault("notification.type_cache_ttl", 3600)
	v.SetDefault("notification.seed_defaults", true)
	v.SetDefault("notification.stale_delivery", 300)

	v.SetDefault("providers.users.cache_ttl", 1800)

	v.SetDefault("cron.message_purge", "0 30 3 * * *")
	v.SetDefault("cron.offline_digest", "0 */15 * * * *")
	v.SetDefault("cron.delivery_sweeper", "0 * * * * *")
}
