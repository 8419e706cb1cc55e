package config

// Config 配置主体
type Config struct {
	Server                    ServerConfig            `mapstructure:"server"`
	Auth                      AuthConfig              `mapstructure:"auth"`
	DB                        DBConfig                `mapstructure:"database"`
	Redis                     RedisConfig             `mapstructure:"redis"`
	Mongo                     MongoConfig             `mapstructure:"mongo"`
	Elastic                   ElasticConfig           `mapstructure:"elastic"`
	MinIO                     MinIOConfig             `mapstructure:"minio"`
	Logstash                  LogstashConfig          `mapstructure:"logstash"`
	Kafka                     KafkaConfig             `mapstructure:"kafka"`
	KafkaNotificationConsumer KafkaNotificationConfig `mapstructure:"kafka_notification_consumer"`
	Gateway                   GatewayConfig           `mapstructure:"gateway"`
	Messaging                 MessagingConfig         `mapstructure:"messaging"`
	Notification              NotificationConfig      `mapstructure:"notification"`
	Providers                 ProvidersConfig         `mapstructure:"providers"`
	Cron                      CronConfig              `mapstructure:"cron"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	// AllowedOrigins 为空时允许任意来源
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// FanoutChannel 非空时通过 Redis Pub/Sub 进行跨进程广播
	FanoutChannel string `mapstructure:"fanout_channel"`
}

// AuthConfig 鉴权配置
type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	JWTIssuer    string `mapstructure:"jwt_issuer"`
	ServiceToken string `mapstructure:"service_token"`
	// Timeout 连接鉴权超时 (毫秒)
	Timeout int `mapstructure:"timeout"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// MinIOConfig 附件存储配置, Endpoint 为空时不开放上传
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	// PublicURL 对外访问前缀, 为空时按 endpoint 拼接
	PublicURL string `mapstructure:"public_url"`
	// MaxFileSize 单个附件上限 (字节)
	MaxFileSize int64 `mapstructure:"max_file_size"`
}

// ElasticConfig Elastic配置
type ElasticConfig struct {
	Address  string         `mapstructure:"address"`
	Username string         `mapstructure:"username"`
	Password string         `mapstructure:"password"`
	Indices  ElasticIndices `mapstructure:"indices"`
}

// ElasticIndices Elastic索引
type ElasticIndices struct {
	MessageIndex string `mapstructure:"message_index"`
}

type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

type KafkaConfig struct {
	Brokers  []string       `mapstructure:"brokers"`
	Sasl     SaslConfig     `mapstructure:"sasl"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsumerConfig struct {
	SessionTimeout    int `mapstructure:"session_timeout"`
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  int `mapstructure:"rebalance_timeout"`
	MaxProcessingTime int `mapstructure:"max_processing_time"`
}

type KafkaNotificationConfig struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// GatewayConfig 长连接网关配置, 时间单位为秒
type GatewayConfig struct {
	IdleTimeout    int   `mapstructure:"idle_timeout"`
	WriteWait      int   `mapstructure:"write_wait"`
	PingPeriod     int   `mapstructure:"ping_period"`
	SendBuffer     int   `mapstructure:"send_buffer"`
	MaxMessageSize int64 `mapstructure:"max_message_size"`
}

// MessagingConfig 消息配置
type MessagingConfig struct {
	MaxContentLength int `mapstructure:"max_content_length"`
	DefaultPageSize  int `mapstructure:"default_page_size"`
	MaxPageSize      int `mapstructure:"max_page_size"`
	SearchLimit      int `mapstructure:"search_limit"`
	PurgeAfterDays   int `mapstructure:"purge_after_days"`
	// OfflineAfter 成员离线多久后发送未读提醒 (分钟)
	OfflineAfter int `mapstructure:"offline_after"`
	// NotifyTimeout 新消息通知异步创建超时 (秒)
	NotifyTimeout int `mapstructure:"notify_timeout"`
}

// NotificationConfig 通知投递配置
type NotificationConfig struct {
	Workers     int `mapstructure:"workers"`
	QueueSize   int `mapstructure:"queue_size"`
	MaxAttempts int `mapstructure:"max_attempts"`
	// 以下时间单位均为毫秒
	BaseBackoff    int `mapstructure:"base_backoff"`
	MaxBackoff     int `mapstructure:"max_backoff"`
	ChannelTimeout int `mapstructure:"channel_timeout"`
	// RateLimit 每个渠道每秒最多发送次数, 0 表示不限
	RateLimit     float64 `mapstructure:"rate_limit"`
	RateBurst     int     `mapstructure:"rate_burst"`
	PrefCacheTTL  int     `mapstructure:"pref_cache_ttl"`
	TypeCacheTTL  int     `mapstructure:"type_cache_ttl"`
	SeedDefaults  bool    `mapstructure:"seed_defaults"`
	StaleDelivery int     `mapstructure:"stale_delivery"`
}

type ProvidersConfig struct {
	Email HTTPProviderConfig `mapstructure:"email"`
	SMS   HTTPProviderConfig `mapstructure:"sms"`
	Push  HTTPProviderConfig `mapstructure:"push"`
	Users UsersServiceConfig `mapstructure:"users"`
}

type HTTPProviderConfig struct {
	URL    string `mapstructure:"url"`
	ApiKey string `mapstructure:"api_key"`
	From   string `mapstructure:"from"`
}

type UsersServiceConfig struct {
	URL          string `mapstructure:"url"`
	ServiceToken string `mapstructure:"service_token"`
	// CacheTTL 用户资料缓存时间 (秒)
	CacheTTL int `mapstructure:"cache_ttl"`
}

// CronConfig 定时任务表达式 (带秒)
type CronConfig struct {
	MessagePurge    string `mapstructure:"message_purge"`
	OfflineDigest   string `mapstructure:"offline_digest"`
	DeliverySweeper string `mapstructure:"delivery_sweeper"`
}
