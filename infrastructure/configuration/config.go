package configuration

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"reelpipe/infrastructure/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App        App        `mapstructure:"app"`
	Database   Database   `mapstructure:"database"`
	Redis      Redis      `mapstructure:"redis"`
	Mongo      Mongo      `mapstructure:"mongo"`
	Queue      Queue      `mapstructure:"queue"`
	Sessions   Sessions   `mapstructure:"sessions"`
	Lock       Lock       `mapstructure:"lock"`
	Pipeline   Pipeline   `mapstructure:"pipeline"`
	Proxy      Proxy      `mapstructure:"proxy"`
	Fetch      Fetch      `mapstructure:"fetch"`
	Downloader Downloader `mapstructure:"downloader"`
	TikTok     TikTok     `mapstructure:"tiktok"`
	YouTube    YouTube    `mapstructure:"youtube"`
	Telegram   Telegram   `mapstructure:"telegram"`
	Tasks      Tasks      `mapstructure:"tasks"`
}

type App struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Port           int      `mapstructure:"port"`
	SecretKey      string   `mapstructure:"secretKey"`
	LogLevel       string   `mapstructure:"logLevel"`
	LogFormat      string   `mapstructure:"logFormat"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type Database struct {
	URL          string `mapstructure:"url"`
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslMode"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
	MaxIdleConns int    `mapstructure:"maxIdleConns"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Mongo struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type Queue struct {
	Transport           string `mapstructure:"transport"`
	Name                string `mapstructure:"name"`
	Workers             int    `mapstructure:"workers"`
	MaxAttempts         int    `mapstructure:"maxAttempts"`
	BaseBackoffSeconds  int    `mapstructure:"baseBackoffSeconds"`
	MaxBackoffSeconds   int    `mapstructure:"maxBackoffSeconds"`
	BusyRetrySeconds    int    `mapstructure:"busyRetrySeconds"`
	PubSubProjectID     string `mapstructure:"pubsubProjectId"`
	PubSubSubscription  string `mapstructure:"pubsubSubscription"`
	ServiceBusNamespace string `mapstructure:"serviceBusNamespace"`
}

type Sessions struct {
	Backend  string `mapstructure:"backend"`
	TTLHours int    `mapstructure:"ttlHours"`
}

type Lock struct {
	TTLSeconds int `mapstructure:"ttlSeconds"`
}

type Pipeline struct {
	VideosDir            string   `mapstructure:"videosDir"`
	CaptionsFile         string   `mapstructure:"captionsFile"`
	Hashtags             []string `mapstructure:"hashtags"`
	CooldownMinSeconds   int      `mapstructure:"cooldownMinSeconds"`
	CooldownMaxSeconds   int      `mapstructure:"cooldownMaxSeconds"`
	TickSeconds          int      `mapstructure:"tickSeconds"`
	PreLoginMinSeconds   int      `mapstructure:"preLoginMinSeconds"`
	PreLoginMaxSeconds   int      `mapstructure:"preLoginMaxSeconds"`
	PrePublishMinSeconds int      `mapstructure:"prePublishMinSeconds"`
	PrePublishMaxSeconds int      `mapstructure:"prePublishMaxSeconds"`
}

type Proxy struct {
	CheckTimeoutSeconds int      `mapstructure:"checkTimeoutSeconds"`
	Endpoints           []string `mapstructure:"endpoints"`
	CheckDelayMillis    int      `mapstructure:"checkDelayMillis"`
	CheckCron           string   `mapstructure:"checkCron"`
}

type Fetch struct {
	RequestsPerSecond     float64 `mapstructure:"requestsPerSecond"`
	MinDelayMillis        int     `mapstructure:"minDelayMillis"`
	MaxDelayMillis        int     `mapstructure:"maxDelayMillis"`
	AccountDelayMinMillis int     `mapstructure:"accountDelayMinMillis"`
	AccountDelayMaxMillis int     `mapstructure:"accountDelayMaxMillis"`
	DefaultLimit          int     `mapstructure:"defaultLimit"`
}

type Downloader struct {
	ResolverURL            string `mapstructure:"resolverUrl"`
	LinkSelector           string `mapstructure:"linkSelector"`
	UserAgent              string `mapstructure:"userAgent"`
	TimeoutSeconds         int    `mapstructure:"timeoutSeconds"`
	DownloadTimeoutSeconds int    `mapstructure:"downloadTimeoutSeconds"`
}

type TikTok struct {
	BaseURL        string `mapstructure:"baseUrl"`
	UserAgent      string `mapstructure:"userAgent"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

type YouTube struct {
	ClientID      string `mapstructure:"clientId"`
	ClientSecret  string `mapstructure:"clientSecret"`
	RedirectURL   string `mapstructure:"redirectUrl"`
	PrivacyStatus string `mapstructure:"privacyStatus"`
	CategoryID    string `mapstructure:"categoryId"`
	TokenURL      string `mapstructure:"tokenUrl"`
}

type Telegram struct {
	Token          string `mapstructure:"token"`
	ChatID         int64  `mapstructure:"chatId"`
	APIEndpoint    string `mapstructure:"apiEndpoint"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

type Tasks struct {
	RetentionDays    int    `mapstructure:"retentionDays"`
	CleanupCron      string `mapstructure:"cleanupCron"`
	DefaultListLimit int    `mapstructure:"defaultListLimit"`
}

var DefaultProxyEndpoints = []string{
	"http://httpbin.org/ip",
	"https://httpbin.org/ip",
	"http://icanhazip.com",
	"https://api.ipify.org?format=json",
}

// Load reads .env files, then config.json (or config-<ENV>.json), then the
// environment. The result is meant to be built once in main and injected.
func Load() (*Config, error) {
	loadEnvFiles("config.env", ".env")

	v := viper.New()
	v.SetConfigName(configName())
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("../")
	v.AddConfigPath("../../")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		logger.GetLogger().WithField("config", configName()).Warn("Config file not found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(paths ...string) {
	var present []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			present = append(present, p)
		}
	}
	if len(present) == 0 {
		return
	}
	// godotenv.Load never overrides variables already set in the process.
	if err := godotenv.Load(present...); err != nil {
		logger.GetLogger().WithError(err).Warn("Failed to load env files")
	}
}

func configName() string {
	name := "config"
	if env := os.Getenv("ENV"); env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "reelpipe")
	v.SetDefault("app.env", os.Getenv("ENV"))
	v.SetDefault("app.port", 10001)
	v.SetDefault("app.secretKey", "")
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.logFormat", "json")
	v.SetDefault("app.allowedOrigins", []string{"http://localhost:3000", "http://localhost:4200"})

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "reelpipe")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "reelpipe")

	v.SetDefault("queue.transport", "redis")
	v.SetDefault("queue.name", "reelpipe-jobs")
	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.maxAttempts", 3)
	v.SetDefault("queue.baseBackoffSeconds", 30)
	v.SetDefault("queue.maxBackoffSeconds", 600)
	v.SetDefault("queue.busyRetrySeconds", 60)
	v.SetDefault("queue.pubsubProjectId", "")
	v.SetDefault("queue.pubsubSubscription", "reelpipe-jobs-worker")
	v.SetDefault("queue.serviceBusNamespace", "")

	v.SetDefault("sessions.backend", "redis")
	v.SetDefault("sessions.ttlHours", 720)

	v.SetDefault("lock.ttlSeconds", 120)

	v.SetDefault("pipeline.videosDir", "videos")
	v.SetDefault("pipeline.captionsFile", "captions.json")
	v.SetDefault("pipeline.hashtags", []string{"#shorts", "#viral"})
	v.SetDefault("pipeline.cooldownMinSeconds", 300)
	v.SetDefault("pipeline.cooldownMaxSeconds", 1500)
	v.SetDefault("pipeline.tickSeconds", 10)
	v.SetDefault("pipeline.preLoginMinSeconds", 2)
	v.SetDefault("pipeline.preLoginMaxSeconds", 5)
	v.SetDefault("pipeline.prePublishMinSeconds", 5)
	v.SetDefault("pipeline.prePublishMaxSeconds", 15)

	v.SetDefault("proxy.checkTimeoutSeconds", 20)
	v.SetDefault("proxy.endpoints", DefaultProxyEndpoints)
	v.SetDefault("proxy.checkDelayMillis", 1000)
	v.SetDefault("proxy.checkCron", "@every 30m")

	v.SetDefault("fetch.requestsPerSecond", 0.5)
	v.SetDefault("fetch.minDelayMillis", 1000)
	v.SetDefault("fetch.maxDelayMillis", 3000)
	v.SetDefault("fetch.accountDelayMinMillis", 3000)
	v.SetDefault("fetch.accountDelayMaxMillis", 8000)
	v.SetDefault("fetch.defaultLimit", 10)

	v.SetDefault("downloader.resolverUrl", "https://ssstik.io/abc?url=dl")
	v.SetDefault("downloader.linkSelector", "a.download-file, a.download_link, a[href*='.mp4']")
	v.SetDefault("downloader.userAgent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("downloader.timeoutSeconds", 60)
	v.SetDefault("downloader.downloadTimeoutSeconds", 300)

	v.SetDefault("tiktok.baseUrl", "https://www.tiktok.com")
	v.SetDefault("tiktok.userAgent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("tiktok.timeoutSeconds", 30)

	v.SetDefault("youtube.clientId", "")
	v.SetDefault("youtube.clientSecret", "")
	v.SetDefault("youtube.redirectUrl", "http://localhost:10001/api/youtube/callback")
	v.SetDefault("youtube.privacyStatus", "public")
	v.SetDefault("youtube.categoryId", "22")
	v.SetDefault("youtube.tokenUrl", "")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chatId", 0)
	v.SetDefault("telegram.apiEndpoint", "https://api.telegram.org/bot%s/%s")
	v.SetDefault("telegram.timeoutSeconds", 10)

	v.SetDefault("tasks.retentionDays", 7)
	v.SetDefault("tasks.cleanupCron", "@daily")
	v.SetDefault("tasks.defaultListLimit", 50)
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.App.Port = p
		}
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		c.App.SecretKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("YOUTUBE_CLIENT_ID"); v != "" {
		c.YouTube.ClientID = v
	}
	if v := os.Getenv("YOUTUBE_CLIENT_SECRET"); v != "" {
		c.YouTube.ClientSecret = v
	}
	if c.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; /api routes are served without authentication")
	}
}

func (c *Config) Validate() error {
	p := c.Pipeline
	if p.CooldownMinSeconds < 0 || p.CooldownMaxSeconds < p.CooldownMinSeconds {
		return fmt.Errorf("pipeline cooldown range [%d,%d] is invalid", p.CooldownMinSeconds, p.CooldownMaxSeconds)
	}
	if p.TickSeconds <= 0 {
		return fmt.Errorf("pipeline tick must be positive, got %d", p.TickSeconds)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue maxAttempts must be at least 1, got %d", c.Queue.MaxAttempts)
	}
	switch c.Queue.Transport {
	case "redis", "pubsub", "servicebus":
	default:
		return fmt.Errorf("unknown queue transport %q", c.Queue.Transport)
	}
	switch c.Sessions.Backend {
	case "redis", "mongo":
	default:
		return fmt.Errorf("unknown session backend %q", c.Sessions.Backend)
	}
	if len(c.Proxy.Endpoints) == 0 {
		c.Proxy.Endpoints = DefaultProxyEndpoints
	}
	return nil
}

// DSN builds a lib/pq connection string unless database.url is set.
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (p Pipeline) CooldownRange() (time.Duration, time.Duration) {
	return seconds(p.CooldownMinSeconds), seconds(p.CooldownMaxSeconds)
}

func (p Pipeline) Tick() time.Duration { return seconds(p.TickSeconds) }

func (p Pipeline) PreLoginRange() (time.Duration, time.Duration) {
	return seconds(p.PreLoginMinSeconds), seconds(p.PreLoginMaxSeconds)
}

func (p Pipeline) PrePublishRange() (time.Duration, time.Duration) {
	return seconds(p.PrePublishMinSeconds), seconds(p.PrePublishMaxSeconds)
}

func (p Proxy) CheckTimeout() time.Duration { return seconds(p.CheckTimeoutSeconds) }

func (p Proxy) CheckDelay() time.Duration { return millis(p.CheckDelayMillis) }

func (f Fetch) RequestDelayRange() (time.Duration, time.Duration) {
	return millis(f.MinDelayMillis), millis(f.MaxDelayMillis)
}

func (f Fetch) AccountDelayRange() (time.Duration, time.Duration) {
	return millis(f.AccountDelayMinMillis), millis(f.AccountDelayMaxMillis)
}

func (q Queue) Backoff() (time.Duration, time.Duration) {
	return seconds(q.BaseBackoffSeconds), seconds(q.MaxBackoffSeconds)
}

func (q Queue) BusyRetry() time.Duration { return seconds(q.BusyRetrySeconds) }

func (s Sessions) TTL() time.Duration { return time.Duration(s.TTLHours) * time.Hour }

func (l Lock) TTL() time.Duration { return seconds(l.TTLSeconds) }

func (t Tasks) Retention() time.Duration { return time.Duration(t.RetentionDays) * 24 * time.Hour }
