package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dealmatch/models"
)

type Config struct {
	AppEnv     string
	PGDSN      string
	RedisAddr  string
	JournalDB  string
	LogPath    string
	LogLevel   string
	HTTPPort   int
	// "redis" (default) or "postgres"; the counter must be atomic either way.
	QuotaBackend string
	Timezone     *time.Location
	Digest     DigestConfig
	Journal    JournalConfig
	Plans      map[string]models.Plan
	DefaultPlan string
}

type DigestConfig struct {
	Cron     string
	Interval time.Duration
	MaxItems int
}

type JournalConfig struct {
	BatchSize int
	Interval  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "dev"),
		PGDSN:       os.Getenv("PG_DSN"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		JournalDB:   getEnv("JOURNAL_DB_PATH", "journal.db"),
		LogPath:     getEnv("LOG_PATH", "daemon.log"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTPPort:     getEnvInt("HTTP_PORT", 8080),
		QuotaBackend: getEnv("QUOTA_BACKEND", "redis"),
		DefaultPlan: getEnv("DEFAULT_PLAN", "starter"),
		Digest: DigestConfig{
			Cron:     os.Getenv("DIGEST_CRON"),
			MaxItems: getEnvInt("DIGEST_MAX_ITEMS", 10),
		},
		Journal: JournalConfig{
			BatchSize: getEnvInt("JOURNAL_BATCH_SIZE", 50),
			Interval:  getEnvDuration("JOURNAL_REPLAY_INTERVAL", time.Minute),
		},
		Plans: make(map[string]models.Plan),
	}

	if interval := os.Getenv("DIGEST_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Digest.Interval = d
		}
	}

	tz := getEnv("TZ", "Europe/London")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	cfg.Timezone = loc

	if err := cfg.loadPlans(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PlanByID resolves a plan id, falling back to the default plan so an
// unknown id never strands a dealer with zero quota.
func (c *Config) PlanByID(id string) models.Plan {
	if plan, ok := c.Plans[id]; ok {
		return plan
	}
	return c.Plans[c.DefaultPlan]
}

func (c *Config) loadPlans() error {
	path := getEnv("PLANS_PATH", "config/plans.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.Plans = defaultPlans()
			return nil
		}
		return fmt.Errorf("read plans: %w", err)
	}

	var file struct {
		Plans []models.Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse plans: %w", err)
	}

	for _, p := range file.Plans {
		c.Plans[p.ID] = p
	}
	if len(c.Plans) == 0 {
		c.Plans = defaultPlans()
	}
	if _, ok := c.Plans[c.DefaultPlan]; !ok {
		return fmt.Errorf("default plan %q not defined", c.DefaultPlan)
	}
	return nil
}

func defaultPlans() map[string]models.Plan {
	return map[string]models.Plan{
		"starter": {ID: "starter", Name: "Starter", DailyViewLimit: 25, DigestSize: 5},
		"trade":   {ID: "trade", Name: "Trade", DailyViewLimit: 100, DigestSize: 10},
		"unlimited": {ID: "unlimited", Name: "Unlimited", DailyViewLimit: 0, DigestSize: 15},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
