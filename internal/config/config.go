package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Env                    string `mapstructure:"env"`
	Port                   int    `mapstructure:"port"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	LogLevel               string `mapstructure:"log_level"`
	CORSOrigins            string `mapstructure:"cors_origins"`
}

func (a AppConfig) PortString() string { return fmt.Sprintf("%d", a.Port) }

func (a AppConfig) Dev() bool { return a.Env == "" || a.Env == "dev" || a.Env == "development" }

type MongoConfig struct {
	URI                string `mapstructure:"uri"`
	Database           string `mapstructure:"database"`
	MessagesCollection string `mapstructure:"messages_collection"`
	ConnectWaitSeconds int    `mapstructure:"connect_wait_seconds"`
}

type StoreConfig struct {
	// Driver is "mongo" or "memory".
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicEvents string   `mapstructure:"topic_events"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type EventsConfig struct {
	// Driver is "kafka", "nats" or "none".
	Driver string `mapstructure:"driver"`
}

type JWTConfig struct {
	Alg           string `mapstructure:"alg"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	HSSecret      string `mapstructure:"hs_secret"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes"`
	SendTimeoutMillis    int   `mapstructure:"send_timeout_ms"`
	RateLimitPerSec      int   `mapstructure:"rate_limit_per_sec"`
}

type ChatConfig struct {
	MaxBodyBytes int   `mapstructure:"max_body_bytes"`
	HistoryLimit int64 `mapstructure:"history_limit"`
}

type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Events    EventsConfig    `mapstructure:"events"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	WS        WSConfig        `mapstructure:"ws"`
	Chat      ChatConfig      `mapstructure:"chat"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`

	// derived/timeouts
	PingInterval    time.Duration `mapstructure:"-"`
	WriteDeadline   time.Duration `mapstructure:"-"`
	SendTimeout     time.Duration `mapstructure:"-"`
	ShutdownTimeout time.Duration `mapstructure:"-"`
	MongoWait       time.Duration `mapstructure:"-"`
}

// Load reads .env (if any), then the YAML file at path (if it exists), then
// environment variables such as MONGO_URI or WS_SEND_TIMEOUT_MS.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.derive()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// every key needs a default for AutomaticEnv to see it during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.port", 8085)
	v.SetDefault("app.shutdown_timeout_seconds", 10)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.cors_origins", "")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "roomrent")
	v.SetDefault("mongo.messages_collection", "messages")
	v.SetDefault("mongo.connect_wait_seconds", 30)

	v.SetDefault("store.driver", "mongo")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "chat")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_events", "chat.message.events")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "chat")

	v.SetDefault("events.driver", "none")

	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("jwt.hs_secret", "")

	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 65536)
	v.SetDefault("ws.send_timeout_ms", 2000)
	v.SetDefault("ws.rate_limit_per_sec", 20)

	v.SetDefault("chat.max_body_bytes", 4096)
	v.SetDefault("chat.history_limit", 50)

	v.SetDefault("ratelimit.per_minute", 120)
}

func (c *Config) derive() {
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.SendTimeout = time.Duration(c.WS.SendTimeoutMillis) * time.Millisecond
	c.ShutdownTimeout = time.Duration(c.App.ShutdownTimeoutSeconds) * time.Second
	c.MongoWait = time.Duration(c.Mongo.ConnectWaitSeconds) * time.Second
	// KAFKA_BROKERS arrives as one comma separated string
	if len(c.Kafka.Brokers) == 1 && strings.Contains(c.Kafka.Brokers[0], ",") {
		c.Kafka.Brokers = strings.Split(c.Kafka.Brokers[0], ",")
	}
}

func (c *Config) Validate() error {
	if c.App.Port <= 0 {
		return errors.New("app.port missing or invalid")
	}

	switch c.Store.Driver {
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return errors.New("mongo.uri and mongo.database required for store.driver=mongo")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store.driver %q (use mongo or memory)", c.Store.Driver)
	}

	switch c.Events.Driver {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.TopicEvents == "" {
			return errors.New("kafka.brokers and kafka.topic_events required for events.driver=kafka")
		}
	case "nats":
		if c.NATS.URL == "" {
			return errors.New("nats.url required for events.driver=nats")
		}
	case "none", "":
	default:
		return fmt.Errorf("invalid events.driver %q (use kafka, nats or none)", c.Events.Driver)
	}

	switch strings.ToUpper(c.JWT.Alg) {
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	case "HS256":
		if c.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	default:
		return errors.New("invalid jwt.alg (use RS256 or HS256)")
	}

	if c.WS.PingIntervalSeconds <= 0 || c.WS.WriteDeadlineSeconds <= 0 {
		return errors.New("ws intervals must be positive")
	}
	return nil
}
