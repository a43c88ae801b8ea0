package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Worker    WorkerConfig
	Media     MediaConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type WorkerConfig struct {
	// Concurrency bounds the worker pool. Encoding is resource-heavy, so the
	// default is a single worker.
	Concurrency int
	// JobTimeout is the wall-clock budget per job, measured from entry into
	// processing.
	JobTimeout time.Duration
	// Retention is how long job records stay readable after creation.
	Retention time.Duration
}

type MediaConfig struct {
	UploadsRoot string
	FFmpegBin   string
	FFprobeBin  string
}

type RateLimitConfig struct {
	JobsPerHour int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("worker.concurrency", 1)
	viper.SetDefault("worker.job_timeout_sec", 900)
	viper.SetDefault("worker.retention_hours", 24)
	viper.SetDefault("media.uploads_root", "uploads")
	viper.SetDefault("media.ffmpeg_bin", "ffmpeg")
	viper.SetDefault("media.ffprobe_bin", "ffprobe")
	viper.SetDefault("ratelimit.jobs_per_hour", 20)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Worker: WorkerConfig{
			Concurrency: viper.GetInt("worker.concurrency"),
			JobTimeout:  time.Duration(viper.GetInt("worker.job_timeout_sec")) * time.Second,
			Retention:   time.Duration(viper.GetInt("worker.retention_hours")) * time.Hour,
		},
		Media: MediaConfig{
			UploadsRoot: viper.GetString("media.uploads_root"),
			FFmpegBin:   viper.GetString("media.ffmpeg_bin"),
			FFprobeBin:  viper.GetString("media.ffprobe_bin"),
		},
		RateLimit: RateLimitConfig{
			JobsPerHour: viper.GetInt("ratelimit.jobs_per_hour"),
		},
	}

	return cfg, nil
}
