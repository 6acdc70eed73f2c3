package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
	"github.com/yungbote/memoirvault-backend/internal/utils"
)

type Config struct {
	Port           string `yaml:"port"`
	DataDir        string `yaml:"data_dir"`
	UploadDir      string `yaml:"upload_dir"`
	ExportDir      string `yaml:"export_dir"`
	AllowedOrigins string `yaml:"allowed_origins"`
	JWTSecret      string `yaml:"jwt_secret"`
	JobWorkers     int    `yaml:"job_workers"`
	JobQueueSize   int    `yaml:"job_queue_size"`
	ServiceName    string `yaml:"service_name"`
	Environment    string `yaml:"environment"`
}

// LoadConfig layers settings: built-in defaults, then the YAML file named by
// CONFIG_FILE, then environment variables.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Port:         "8080",
		DataDir:      "./data",
		UploadDir:    "./data/uploads",
		ExportDir:    "./data/exports",
		JobWorkers:   4,
		JobQueueSize: 100,
		ServiceName:  "memoirvault-backend",
		Environment:  "development",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
		log.Info("config file loaded", "path", path)
	}

	cfg.Port = utils.GetEnv("PORT", cfg.Port, log)
	cfg.DataDir = utils.GetEnv("DATA_DIR", cfg.DataDir, log)
	cfg.UploadDir = utils.GetEnv("UPLOAD_DIR", cfg.UploadDir, log)
	cfg.ExportDir = utils.GetEnv("EXPORT_DIR", cfg.ExportDir, log)
	cfg.AllowedOrigins = utils.GetEnv("ALLOWED_ORIGINS", cfg.AllowedOrigins, log)
	cfg.JWTSecret = utils.GetEnv("AUTH_JWT_SECRET", cfg.JWTSecret, log)
	cfg.JobWorkers = utils.GetEnvAsInt("JOB_WORKERS", cfg.JobWorkers, log)
	cfg.JobQueueSize = utils.GetEnvAsInt("JOB_QUEUE_SIZE", cfg.JobQueueSize, log)
	cfg.ServiceName = utils.GetEnv("SERVICE_NAME", cfg.ServiceName, log)
	cfg.Environment = utils.GetEnv("ENVIRONMENT", cfg.Environment, log)
	return cfg, nil
}
