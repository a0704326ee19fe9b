package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is everything the ingestion pipeline reads from the INI file.
// Section and key names mirror the file: values can be overridden through
// the environment as SECTION_KEY (e.g. STATSD_HOST).
type Config struct {
	PrimaryDB  DatabaseConfig
	AltitudeDB DatabaseConfig
	S3         S3Config
	StatsD     StatsDConfig
	Redis      RedisConfig
	Brokerage  BrokerageConfig
}

type DatabaseConfig struct {
	URL string
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type StatsDConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	URL      string
	AliasTTL time.Duration
}

type BrokerageConfig struct {
	LockFile    string
	SofficePath string
	JavaPath    string
	TabulaJar   string
	LogLevel    string
	BatchSize   int
}

// Load reads the INI configuration file at the given path. A .env file in
// the working directory and real environment variables take precedence over
// file values.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("statsd.host", "localhost")
	v.SetDefault("statsd.port", 8125)
	v.SetDefault("redis.alias_ttl_seconds", 3600)
	v.SetDefault("brokerage.lock_file", "/var/run/matrix-ingest.lock")
	v.SetDefault("brokerage.soffice_path", "soffice")
	v.SetDefault("brokerage.java_path", "java")
	v.SetDefault("brokerage.log_level", "info")
	v.SetDefault("brokerage.batch_size", 1000)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{
		PrimaryDB:  DatabaseConfig{URL: v.GetString("primarydb.url")},
		AltitudeDB: DatabaseConfig{URL: v.GetString("altitudedb.url")},
		S3: S3Config{
			Endpoint:  v.GetString("s3.endpoint"),
			AccessKey: v.GetString("s3.access_key"),
			SecretKey: v.GetString("s3.secret_key"),
			Bucket:    v.GetString("s3.bucket"),
			Region:    v.GetString("s3.region"),
			UseSSL:    v.GetBool("s3.use_ssl"),
		},
		StatsD: StatsDConfig{
			Host: v.GetString("statsd.host"),
			Port: v.GetInt("statsd.port"),
		},
		Redis: RedisConfig{
			URL:      v.GetString("redis.url"),
			AliasTTL: time.Duration(v.GetInt("redis.alias_ttl_seconds")) * time.Second,
		},
		Brokerage: BrokerageConfig{
			LockFile:    v.GetString("brokerage.lock_file"),
			SofficePath: v.GetString("brokerage.soffice_path"),
			JavaPath:    v.GetString("brokerage.java_path"),
			TabulaJar:   v.GetString("brokerage.tabula_jar"),
			LogLevel:    v.GetString("brokerage.log_level"),
			BatchSize:   v.GetInt("brokerage.batch_size"),
		},
	}

	if cfg.PrimaryDB.URL == "" {
		return nil, fmt.Errorf("primarydb.url must be set in %s", path)
	}
	if cfg.AltitudeDB.URL == "" {
		return nil, fmt.Errorf("altitudedb.url must be set in %s", path)
	}
	if cfg.Brokerage.BatchSize <= 0 || cfg.Brokerage.BatchSize > 1000 {
		return nil, fmt.Errorf("brokerage.batch_size must be in 1..1000, got %d",
			cfg.Brokerage.BatchSize)
	}
	return cfg, nil
}
