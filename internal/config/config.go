package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/psds-microservice/ticket-bridge/internal/model"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// AdminToken bearer-токен для /sync и /reset. Если пустой, admin-маршруты открыты.
	AdminToken string

	DB struct {
		Driver     string
		URL        string
		SQLitePath string
		Host       string
		Port       string
		User       string
		Password   string
		Database   string
		SSLMode    string
	}

	Discord struct {
		Token         string
		CategoryID    string
		DefaultRegion model.Region
	}

	Region struct {
		Strategy  string
		RulesFile string
	}

	Sync struct {
		HistoryPageSize  int
		HistoryLimit     int
		OutboxInterval   time.Duration
		OutboxRate       float64
		OutboxPrefix     string
		BackfillInterval time.Duration
		BridgeTimeout    time.Duration
	}

	RedisURL        string
	ChannelCacheTTL time.Duration

	KafkaBrokers     []string
	KafkaTopicTicket string
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:          getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:         firstEnv("APP_PORT", "HTTP_PORT", "PORT", "8097"),
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		KafkaBrokers:     parseList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopicTicket: getEnv("KAFKA_TOPIC_TICKET", "ticket-bridge.events"),
	}

	cfg.DB.URL = getEnv("DATABASE_URL", "")
	cfg.DB.Driver = strings.ToLower(getEnv("DB_DRIVER", DriverSQLite))
	if cfg.DB.URL != "" {
		cfg.DB.Driver = DriverPostgres
	}
	cfg.DB.SQLitePath = getEnv("SQLITE_PATH", "data/ticket-bridge.db")
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "ticket_bridge")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Discord.Token = getEnv("DISCORD_TOKEN", "")
	cfg.Discord.CategoryID = getEnv("CATEGORY_ID", "")
	region, ok := model.ParseRegion(getEnv("DEFAULT_REGION", string(model.RegionUnknown)))
	if !ok {
		return nil, fmt.Errorf("config: DEFAULT_REGION %q is not a known region", os.Getenv("DEFAULT_REGION"))
	}
	cfg.Discord.DefaultRegion = region

	cfg.Region.Strategy = strings.ToLower(getEnv("REGION_STRATEGY", "name"))
	cfg.Region.RulesFile = getEnv("REGION_RULES_FILE", "")

	var err error
	if cfg.Sync.HistoryPageSize, err = getInt("HISTORY_PAGE_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.Sync.HistoryLimit, err = getInt("HISTORY_LIMIT", 0); err != nil {
		return nil, err
	}
	if cfg.Sync.OutboxInterval, err = getDuration("OUTBOX_INTERVAL", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.Sync.BackfillInterval, err = getDuration("BACKFILL_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Sync.BridgeTimeout, err = getDuration("BRIDGE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ChannelCacheTTL, err = getDuration("CHANNEL_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	rate := getEnv("OUTBOX_RATE", "5")
	if cfg.Sync.OutboxRate, err = strconv.ParseFloat(rate, 64); err != nil {
		return nil, fmt.Errorf("config: OUTBOX_RATE: %w", err)
	}
	cfg.Sync.OutboxPrefix = getEnvRaw("OUTBOX_PREFIX", "**[STAFF]:** ")
	return cfg, nil
}

// Validate проверяет настройки БД, нужные любой команде.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DB.URL == "" && (c.DB.Host == "" || c.DB.Database == "") {
			return errors.New("config: DB_HOST and DB_DATABASE (or DATABASE_URL) are required")
		}
		if c.AppEnv == "production" && c.DB.URL == "" && c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DB.Driver)
	}
	return nil
}

// ValidateBridge проверяет настройки для работы с Discord (команды api и sync).
func (c *Config) ValidateBridge() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Discord.Token == "" {
		return errors.New("config: DISCORD_TOKEN is required")
	}
	if !model.ValidTicketID(c.Discord.CategoryID) {
		return fmt.Errorf("config: CATEGORY_ID %q must be a channel id", c.Discord.CategoryID)
	}
	if c.Sync.HistoryPageSize < 1 || c.Sync.HistoryPageSize > 100 {
		return errors.New("config: HISTORY_PAGE_SIZE must be between 1 and 100")
	}
	if c.Sync.HistoryLimit < 0 {
		return errors.New("config: HISTORY_LIMIT must not be negative")
	}
	if c.Sync.OutboxInterval <= 0 {
		return errors.New("config: OUTBOX_INTERVAL must be positive")
	}
	if c.Sync.BackfillInterval < 0 {
		return errors.New("config: BACKFILL_INTERVAL must not be negative")
	}
	if c.Sync.BridgeTimeout <= 0 {
		return errors.New("config: BRIDGE_TIMEOUT must be positive")
	}
	if c.Sync.OutboxRate <= 0 {
		return errors.New("config: OUTBOX_RATE must be positive")
	}
	switch c.Region.Strategy {
	case "name", "mention", "name,mention", "mention,name":
	default:
		return fmt.Errorf("config: unsupported REGION_STRATEGY %q", c.Region.Strategy)
	}
	return nil
}

// DSN возвращает DSN Postgres для gorm. DATABASE_URL важнее отдельных DB_*.
func (c *Config) DSN() string {
	if c.DB.URL != "" {
		return c.DB.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	if c.DB.URL != "" {
		// Render hands out postgres:// which lib/pq and pgx both accept; normalise anyway.
		return strings.Replace(c.DB.URL, "postgresql://", "postgres://", 1)
	}
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// getEnvRaw keeps surrounding whitespace, the outbox prefix ends with a space.
func getEnvRaw(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

// getDuration принимает Go duration ("3s", "10m") или число секунд.
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func parseList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
