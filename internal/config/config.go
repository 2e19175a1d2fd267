package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"codearena"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Log         Log
	Postgres    Postgres
	Redis       Redis
	Security    Security
	Sandbox     Sandbox
	Runtime     Runtime
	Leaderboard Leaderboard
	Archive     Archive
	Generator   Generator
}

// Log controls verbosity and the optional rotating file sink.
type Log struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	File       string `env:"LOG_FILE" envDefault:""`
	MaxSizeMB  int    `env:"LOG_FILE_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"LOG_FILE_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"LOG_FILE_MAX_AGE_DAYS" envDefault:"30"`
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// DSN renders a libpq style connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode, p.MaxConns)
}

// Redis holds cache + coordination configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Security stores secrets for validating identity tokens.
type Security struct {
	JWTSecret string `env:"JWT_SECRET,notEmpty"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"codearena"`
}

// Sandbox configures the Judge0-compatible execution service.
type Sandbox struct {
	BaseURL        string        `env:"SANDBOX_URL" envDefault:"https://judge0-ce.p.rapidapi.com"`
	APIKey         string        `env:"SANDBOX_API_KEY" envDefault:""`
	APIHost        string        `env:"SANDBOX_API_HOST" envDefault:"judge0-ce.p.rapidapi.com"`
	RequestTimeout time.Duration `env:"SANDBOX_REQUEST_TIMEOUT" envDefault:"10s"`
	PollAttempts   uint64        `env:"SANDBOX_POLL_ATTEMPTS" envDefault:"60"`
	PollInterval   time.Duration `env:"SANDBOX_POLL_INTERVAL" envDefault:"1s"`
	RatePerSecond  float64       `env:"SANDBOX_RATE_PER_SECOND" envDefault:"5"`
	RateBurst      int           `env:"SANDBOX_RATE_BURST" envDefault:"10"`
	CPUTimeLimit   float64       `env:"SANDBOX_CPU_TIME_LIMIT" envDefault:"20"`
	MemoryLimitKB  int           `env:"SANDBOX_MEMORY_LIMIT_KB" envDefault:"512000"`
}

// Runtime groups gameplay defaults.
type Runtime struct {
	DefaultDuration    time.Duration `env:"ROUND_DEFAULT_DURATION" envDefault:"300s"`
	DefaultDifficulty  string        `env:"ROUND_DEFAULT_DIFFICULTY" envDefault:"medium"`
	DefaultTier        string        `env:"ROUND_DEFAULT_TIER" envDefault:"beginner"`
	DefaultMaxPlayers  int           `env:"ROOM_DEFAULT_MAX_PLAYERS" envDefault:"4"`
	ExecutionTimeout   time.Duration `env:"EXECUTION_TIMEOUT" envDefault:"3m"`
	EventHistorySize   int           `env:"EVENT_HISTORY_SIZE" envDefault:"256"`
	HistoryQueueSize   int           `env:"HISTORY_QUEUE_SIZE" envDefault:"128"`
	QuestionCacheTTL   time.Duration `env:"QUESTION_CACHE_TTL" envDefault:"5m"`
	RoomSnapshotTTL    time.Duration `env:"ROOM_SNAPSHOT_TTL" envDefault:"2h"`
	QuestionFetchLimit int           `env:"QUESTION_FETCH_LIMIT" envDefault:"200"`
}

// Leaderboard governs snapshotting and scoring side effects.
type Leaderboard struct {
	SnapshotInterval time.Duration `env:"LEADERBOARD_SNAPSHOT_INTERVAL" envDefault:"5m"`
	SnapshotTopN     int           `env:"LEADERBOARD_SNAPSHOT_TOP" envDefault:"50"`
	HostEndPenalty   int           `env:"LEADERBOARD_HOST_END_PENALTY" envDefault:"5"`
	Channel          string        `env:"LEADERBOARD_CHANNEL" envDefault:"lb:updates"`
}

// Archive configures the optional MinIO replay archive.
type Archive struct {
	Endpoint  string `env:"ARCHIVE_ENDPOINT" envDefault:""`
	AccessKey string `env:"ARCHIVE_ACCESS_KEY" envDefault:""`
	SecretKey string `env:"ARCHIVE_SECRET_KEY" envDefault:""`
	Bucket    string `env:"ARCHIVE_BUCKET" envDefault:"codearena-rounds"`
	UseSSL    bool   `env:"ARCHIVE_USE_SSL" envDefault:"false"`
}

// Generator configures the external problem generator fallback.
type Generator struct {
	URL     string        `env:"PROBLEM_GENERATOR_URL" envDefault:""`
	APIKey  string        `env:"PROBLEM_GENERATOR_API_KEY" envDefault:""`
	Timeout time.Duration `env:"PROBLEM_GENERATOR_TIMEOUT" envDefault:"6s"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
