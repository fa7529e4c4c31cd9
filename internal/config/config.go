// Package config loads the process configuration once at startup. The result
// is treated as immutable and handed to constructors explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DevelopmentSecret is the signing key used when JWT_SECRET is unset outside
// production.
const DevelopmentSecret = "secret"

type Config struct {
	Env             string        `envconfig:"APP_ENV" default:"development"`
	Port            string        `envconfig:"PORT" default:"5000"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	JWTSecret       string        `envconfig:"JWT_SECRET"`
	TokenTTL        time.Duration `envconfig:"TOKEN_TTL" default:"1h"`
	BcryptCost      int           `envconfig:"BCRYPT_COST" default:"10"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	Store StoreConfig
	Kafka KafkaConfig
	Redis RedisConfig
	Login LoginConfig
	Media MediaConfig
	Otel  OtelConfig
	Admin AdminConfig

	// Warnings collects non-fatal problems found while loading.
	Warnings []string `ignored:"true"`
}

type StoreConfig struct {
	Driver        string `envconfig:"DRIVER" default:"memory"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`
	MongoURI      string `envconfig:"MONGO_URI"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"coastal_farmer"`
}

type KafkaConfig struct {
	Brokers  []string `envconfig:"BROKERS"`
	ClientID string   `envconfig:"CLIENT_ID" default:"coastal-farmer-api"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// RedisConfig follows the split_words layout so the URL is read from REDIS_URL.
type RedisConfig struct {
	URL          string `split_words:"true"`
	ReadTimeout  int    `split_words:"true" default:"3"`
	WriteTimeout int    `split_words:"true" default:"3"`
	DialTimeout  int    `split_words:"true" default:"5"`
}

type LoginConfig struct {
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"10"`
	Window      time.Duration `envconfig:"WINDOW" default:"15m"`
}

type MediaConfig struct {
	Backend string `envconfig:"BACKEND" default:"cloudinary"`
	Folder  string `envconfig:"FOLDER" default:"coastal_farmer"`

	CloudinaryCloudName string `envconfig:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `envconfig:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `envconfig:"CLOUDINARY_API_SECRET"`
	CloudinaryBaseURL   string `envconfig:"CLOUDINARY_BASE_URL" default:"https://api.cloudinary.com"`

	S3Bucket       string `envconfig:"S3_BUCKET"`
	S3Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint     string `envconfig:"S3_ENDPOINT"`
	S3AccessKey    string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey    string `envconfig:"S3_SECRET_KEY"`
	S3UsePathStyle bool   `envconfig:"S3_USE_PATH_STYLE"`
	S3PublicURL    string `envconfig:"S3_PUBLIC_URL"`

	BreakerMaxFailures int           `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	BreakerTimeout     time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`
}

func (m MediaConfig) cloudinaryConfigured() bool {
	return m.CloudinaryCloudName != "" && m.CloudinaryAPIKey != "" && m.CloudinaryAPISecret != ""
}

type OtelConfig struct {
	Endpoint    string `envconfig:"ENDPOINT"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"coastal-farmer-api"`
	Insecure    bool   `envconfig:"INSECURE" default:"true"`
}

func (o OtelConfig) Enabled() bool {
	return o.Endpoint != ""
}

// AdminConfig optionally seeds an administrator on startup.
type AdminConfig struct {
	Name     string `envconfig:"NAME" default:"Administrator"`
	Email    string `envconfig:"EMAIL"`
	Password string `envconfig:"PASSWORD"`
}

func (a AdminConfig) Enabled() bool {
	return a.Email != "" && a.Password != ""
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Environment() Environment {
	return ParseEnvironment(c.Env)
}

func (c *Config) validate() error {
	env := c.Environment()

	if c.JWTSecret == "" {
		if env.IsProduction() {
			return errors.New("JWT_SECRET must be set in production")
		}
		c.JWTSecret = DevelopmentSecret
		c.Warnings = append(c.Warnings, "JWT_SECRET not set, using development secret")
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}

	switch c.Store.Driver {
	case "memory":
		if env.IsProduction() {
			c.Warnings = append(c.Warnings, "memory store in production loses data on restart")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return errors.New("STORE_POSTGRES_DSN is required for the postgres driver")
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			return errors.New("STORE_MONGO_URI is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Media.Backend {
	case "cloudinary", "s3", "none":
	default:
		return fmt.Errorf("unknown MEDIA_BACKEND %q", c.Media.Backend)
	}
	if c.Media.Backend == "cloudinary" && !c.Media.cloudinaryConfigured() {
		if env.IsProduction() {
			return errors.New("MEDIA_CLOUDINARY_CLOUD_NAME, MEDIA_CLOUDINARY_API_KEY and MEDIA_CLOUDINARY_API_SECRET are required for the cloudinary backend")
		}
		c.Media.Backend = "none"
		c.Warnings = append(c.Warnings, "Cloudinary credentials not set, image uploads are disabled")
	}
	if c.Media.Folder == "" {
		return errors.New("MEDIA_FOLDER must not be empty")
	}

	if c.Login.MaxAttempts <= 0 || c.Login.Window <= 0 {
		return errors.New("LOGIN_MAX_ATTEMPTS and LOGIN_WINDOW must be positive")
	}
	return nil
}
