// Package config loads process configuration from an optional config.yaml,
// an optional .env file and the environment, in increasing precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rpattn/canvass/internal/db"
	"github.com/rpattn/canvass/internal/storage"
)

const (
	StorageDriverS3         = "s3"
	StorageDriverFilesystem = "fs"
)

type HTTPConfig struct {
	Addr         string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig selects bearer tokens when JWTSecret is set. Development
// headers are only accepted when AllowDevHeaders is true.
type AuthConfig struct {
	JWTSecret       string
	Issuer          string
	Audience        string
	AllowDevHeaders bool
}

type StorageConfig struct {
	Driver string
	Root   string
	S3     storage.S3Config
}

type ConverterConfig struct {
	Command string
	Timeout time.Duration
}

type ImportConfig struct {
	CheckpointEvery int
	Latitude        float64
	Longitude       float64
	Jitter          float64
}

type WorkerConfig struct {
	Concurrency    int
	LockTTL        time.Duration
	PollInterval   time.Duration
	HandlerTimeout time.Duration
	MetricsAddr    string
}

// RedisConfig enables lifecycle events when Addr is set.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type Config struct {
	Database  db.Config
	HTTP      HTTPConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Converter ConverterConfig
	Import    ImportConfig
	Worker    WorkerConfig
	Redis     RedisConfig
	Logging   LoggingConfig
}

// envAliases are accepted in addition to the derived SECTION_KEY names.
var envAliases = map[string][]string{
	"database.host":            {"DB_HOST"},
	"database.port":            {"DB_PORT"},
	"database.user":            {"DB_USER"},
	"database.password":        {"DB_PASSWORD"},
	"database.dbname":          {"DB_NAME"},
	"database.sslmode":         {"DB_SSLMODE"},
	"converter.timeout":        {"XLSX_CONVERT_TIMEOUT"},
	"converter.command":        {"XLSX_CONVERT_COMMAND"},
	"import.checkpoint_every":  {"IMPORT_CHECKPOINT_EVERY"},
	"worker.concurrency":       {"WORKER_CONCURRENCY"},
	"worker.lock_ttl":          {"WORKER_LOCK_TTL"},
	"auth.jwt_secret":          {"JWT_SECRET"},
	"redis.addr":               {"REDIS_ADDR"},
	"storage.s3.access_key_id": {"AWS_ACCESS_KEY_ID"},
	"storage.s3.secret_key":    {"AWS_SECRET_ACCESS_KEY"},
	"storage.s3.region":        {"AWS_REGION"},
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()
	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)
	v.SetDefault("database.min_conns", dbDefaults.MinConns)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "60s")

	v.SetDefault("auth.issuer", "canvass")
	v.SetDefault("auth.audience", "canvass-api")
	v.SetDefault("auth.allow_dev_headers", false)

	v.SetDefault("storage.driver", StorageDriverFilesystem)
	v.SetDefault("storage.root", "./data/uploads")
	v.SetDefault("storage.s3.region", "auto")

	v.SetDefault("converter.command", "xlsx2csv")
	v.SetDefault("converter.timeout", "60s")

	v.SetDefault("import.checkpoint_every", 250)
	v.SetDefault("import.latitude", 39.7684)
	v.SetDefault("import.longitude", -86.1581)
	v.SetDefault("import.jitter", 0.01)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.lock_ttl", "5m")
	v.SetDefault("worker.poll_interval", "1s")
	v.SetDefault("worker.handler_timeout", "30m")
	v.SetDefault("worker.metrics_addr", ":9090")

	v.SetDefault("redis.channel_prefix", "canvass")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads <configPath>/config.yaml and <configPath>/.env when present.
// Environment variables override both.
func Load(configPath string) (Config, error) {
	envFile := filepath.Join(configPath, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for key, aliases := range envAliases {
		derived := strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		if err := v.BindEnv(append([]string{key, derived}, aliases...)...); err != nil {
			return Config{}, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			MaxConns: v.GetInt32("database.max_conns"),
			MinConns: v.GetInt32("database.min_conns"),
		},
		HTTP: HTTPConfig{
			Addr:         v.GetString("http.addr"),
			CORSOrigins:  splitList(v.GetStringSlice("http.cors_origins")),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
		},
		Auth: AuthConfig{
			JWTSecret:       v.GetString("auth.jwt_secret"),
			Issuer:          v.GetString("auth.issuer"),
			Audience:        v.GetString("auth.audience"),
			AllowDevHeaders: v.GetBool("auth.allow_dev_headers"),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(v.GetString("storage.driver")),
			Root:   v.GetString("storage.root"),
			S3: storage.S3Config{
				Bucket:          v.GetString("storage.s3.bucket"),
				Region:          v.GetString("storage.s3.region"),
				Endpoint:        v.GetString("storage.s3.endpoint"),
				AccessKeyID:     v.GetString("storage.s3.access_key_id"),
				SecretAccessKey: v.GetString("storage.s3.secret_key"),
				UsePathStyle:    v.GetBool("storage.s3.use_path_style"),
			},
		},
		Converter: ConverterConfig{
			Command: v.GetString("converter.command"),
			Timeout: v.GetDuration("converter.timeout"),
		},
		Import: ImportConfig{
			CheckpointEvery: v.GetInt("import.checkpoint_every"),
			Latitude:        v.GetFloat64("import.latitude"),
			Longitude:       v.GetFloat64("import.longitude"),
			Jitter:          v.GetFloat64("import.jitter"),
		},
		Worker: WorkerConfig{
			Concurrency:    v.GetInt("worker.concurrency"),
			LockTTL:        v.GetDuration("worker.lock_ttl"),
			PollInterval:   v.GetDuration("worker.poll_interval"),
			HandlerTimeout: v.GetDuration("worker.handler_timeout"),
			MetricsAddr:    v.GetString("worker.metrics_addr"),
		},
		Redis: RedisConfig{
			Addr:          v.GetString("redis.addr"),
			Password:      v.GetString("redis.password"),
			DB:            v.GetInt("redis.db"),
			ChannelPrefix: v.GetString("redis.channel_prefix"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no binary can start with.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" && !c.Auth.AllowDevHeaders {
		return errors.New("config: auth.jwt_secret must be set unless auth.allow_dev_headers is true")
	}
	switch c.Storage.Driver {
	case StorageDriverFilesystem:
		if c.Storage.Root == "" {
			return errors.New("config: storage.root must be set for the fs driver")
		}
	case StorageDriverS3:
		if c.Storage.S3.Bucket == "" {
			return errors.New("config: storage.s3.bucket must be set for the s3 driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Converter.Timeout <= 0 {
		return errors.New("config: converter.timeout must be positive")
	}
	if c.Import.CheckpointEvery <= 0 {
		return errors.New("config: import.checkpoint_every must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		return errors.New("config: worker.concurrency must be positive")
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// OpenObjectStore builds the upload store the storage section selects.
func (c StorageConfig) OpenObjectStore(ctx context.Context) (storage.ObjectStore, error) {
	switch c.Driver {
	case StorageDriverS3:
		s3Store, err := storage.NewS3Store(ctx, c.S3)
		if err != nil {
			return nil, err
		}
		return s3Store, nil
	case StorageDriverFilesystem:
		fsStore, err := storage.NewFilesystemStore(c.Root)
		if err != nil {
			return nil, err
		}
		return fsStore, nil
	default:
		return nil, fmt.Errorf("config: unknown storage driver %q", c.Driver)
	}
}
