package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Способы получения realtime-событий
const (
	RealtimePostgres = "postgres" // LISTEN/NOTIFY
	RealtimeSupabase = "supabase" // websocket Supabase Realtime
	RealtimePolling  = "polling"  // периодический опрос
)

const defaultPollInterval = 30 * time.Second

type Config struct {
	DBDSN             string        `mapstructure:"DB_DSN"`
	Environment       string        `mapstructure:"ENV"`
	SupabaseURL       string        `mapstructure:"SUPABASE_URL"`
	SupabaseAnonKey   string        `mapstructure:"SUPABASE_ANON_KEY"`
	JWTSecret         string        `mapstructure:"SUPABASE_JWT_SECRET"`
	AccessToken       string        `mapstructure:"ACCESS_TOKEN"`
	MapAPIKey         string        `mapstructure:"MAP_API_KEY"`
	RealtimeMode      string        `mapstructure:"REALTIME_MODE"`
	PollInterval      time.Duration `mapstructure:"POLL_INTERVAL"`
	MigrationsEnabled bool          `mapstructure:"MIGRATIONS_ENABLED"`

	// Warnings отсутствующие или некорректные ключи, которые не мешают старту
	Warnings []string `mapstructure:"-"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg := &Config{
		DBDSN:             os.Getenv("DB_DSN"),
		Environment:       os.Getenv("ENV"),
		SupabaseURL:       os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey:   os.Getenv("SUPABASE_ANON_KEY"),
		JWTSecret:         os.Getenv("SUPABASE_JWT_SECRET"),
		AccessToken:       os.Getenv("ACCESS_TOKEN"),
		MapAPIKey:         os.Getenv("MAP_API_KEY"),
		RealtimeMode:      os.Getenv("REALTIME_MODE"),
		PollInterval:      defaultPollInterval,
		MigrationsEnabled: true,
	}

	// Устанавливаем дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.RealtimeMode == "" {
		cfg.RealtimeMode = RealtimePostgres
	}

	if raw := os.Getenv("POLL_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			cfg.warn("POLL_INTERVAL is invalid, using " + defaultPollInterval.String())
		} else {
			cfg.PollInterval = d
		}
	}

	if raw := os.Getenv("MIGRATIONS_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			cfg.warn("MIGRATIONS_ENABLED is not a boolean, keeping migrations enabled")
		} else {
			cfg.MigrationsEnabled = enabled
		}
	}

	switch cfg.RealtimeMode {
	case RealtimePostgres, RealtimeSupabase, RealtimePolling:
	default:
		cfg.warn("REALTIME_MODE " + cfg.RealtimeMode + " is unknown, falling back to polling")
		cfg.RealtimeMode = RealtimePolling
	}

	// Отсутствие ключей не ошибка старта, только предупреждение
	if cfg.DBDSN == "" {
		cfg.warn("DB_DSN is not set")
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
		cfg.warn("SUPABASE_URL or SUPABASE_ANON_KEY is not set")
		if cfg.RealtimeMode == RealtimeSupabase {
			cfg.warn("REALTIME_MODE supabase needs SUPABASE_URL, falling back to polling")
			cfg.RealtimeMode = RealtimePolling
		}
	}
	if cfg.JWTSecret == "" {
		cfg.warn("SUPABASE_JWT_SECRET is not set, sign-in is unavailable")
	}
	if cfg.MapAPIKey == "" {
		cfg.warn("MAP_API_KEY is not set")
	}

	for _, w := range cfg.Warnings {
		log.Printf("⚠️  %s\n", w)
	}

	log.Printf("Config loaded\n")

	return cfg, nil
}

func (c *Config) warn(msg string) {
	c.Warnings = append(c.Warnings, msg)
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}
