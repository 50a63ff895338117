package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all vizion configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Chain     ChainConfig     `yaml:"chain"`
	Schedules SchedulesConfig `yaml:"schedules"`
	LogLevel  string          `yaml:"log_level"`
}

type ServerConfig struct {
	Bind       string `yaml:"bind"`
	Port       int    `yaml:"port"`
	APIBaseURL string `yaml:"api_base_url"` // used to build claim URLs
	AdminToken string `yaml:"admin_token"`  // guards admin routes; empty disables them
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	URL string `yaml:"url"` // empty runs without a feed cache
}

type AuthConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

type StorageConfig struct {
	Backend       string   `yaml:"backend"` // "local" or "s3"
	UploadsDir    string   `yaml:"uploads_dir"`
	PublicBaseURL string   `yaml:"public_base_url"`
	S3            S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"` // R2 / GCS interop / MinIO
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PublicURL string `yaml:"public_url"`
}

type ChainConfig struct {
	RPCURL string `yaml:"rpc_url"` // empty leaves tips unverified
}

type SchedulesConfig struct {
	Scores         string `yaml:"scores"`
	StoriesCleanup string `yaml:"stories_cleanup"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:       "0.0.0.0",
			Port:       3000,
			APIBaseURL: "https://vizion.ai",
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Auth: AuthConfig{
			BcryptCost: 10,
		},
		Storage: StorageConfig{
			Backend:       "local",
			UploadsDir:    "uploads",
			PublicBaseURL: "http://localhost:3000/uploads",
			S3: S3Config{
				Region: "auto",
			},
		},
		Schedules: SchedulesConfig{
			Scores:         "@every 1h",
			StoriesCleanup: "@every 10m",
		},
		LogLevel: "info",
	}
}

// Load builds a Config from defaults, an optional YAML file and the environment.
// .env files in the working directory are loaded first and never override
// variables already set in the process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	for _, f := range []string{".env", ".env.local"} {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return cfg, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Bind, "BIND")
	setInt(&c.Server.Port, "PORT")
	setString(&c.Server.APIBaseURL, "API_BASE_URL")
	setString(&c.Server.AdminToken, "ADMIN_TOKEN")
	setString(&c.Database.Path, "DATABASE_PATH")
	setString(&c.Redis.URL, "REDIS_URL")
	setInt(&c.Auth.BcryptCost, "BCRYPT_COST")
	setString(&c.Storage.Backend, "STORAGE_BACKEND")
	setString(&c.Storage.UploadsDir, "UPLOADS_DIR")
	setString(&c.Storage.PublicBaseURL, "PUBLIC_BASE_URL")
	setString(&c.Storage.S3.Bucket, "S3_BUCKET")
	setString(&c.Storage.S3.Region, "S3_REGION")
	setString(&c.Storage.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.Storage.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&c.Storage.S3.SecretKey, "S3_SECRET_KEY")
	setString(&c.Storage.S3.PublicURL, "S3_PUBLIC_URL")
	setString(&c.Chain.RPCURL, "ETHEREUM_RPC_URL")
	setString(&c.Schedules.Scores, "SCORES_SCHEDULE")
	setString(&c.Schedules.StoriesCleanup, "STORIES_CLEANUP_SCHEDULE")
	setString(&c.LogLevel, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
