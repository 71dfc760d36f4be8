package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	Storage  StorageConfig
	Metadata MetadataConfig
	// AdminToken guards the export and contact-listing endpoints. Empty
	// disables them.
	AdminToken string
}

type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type PipelineConfig struct {
	ValidationWorkers int
	ProcessingWorkers int
	StorageWorkers    int
	QueueSize         int
	ProcessingTimeout time.Duration
}

// StorageConfig selects the archive backend: "memory", "badger" (local KV
// store under Path) or "remote" (thin REST client against RemoteBaseURL).
type StorageConfig struct {
	Backend       string
	Path          string
	RemoteBaseURL string
	RemoteAPIKey  string
}

// MetadataConfig is the deployment's submission-form contract. Divergent
// frontends collect different field sets, so required fields are
// configuration, not schema.
type MetadataConfig struct {
	RequiredFields []string
	MaxUploadBytes int64
}

func Load() *Config {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Address:      getEnv("SERVER_ADDRESS", ":8080"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			ValidationWorkers: getEnvInt("PIPELINE_VALIDATION_WORKERS", 4),
			ProcessingWorkers: getEnvInt("PIPELINE_PROCESSING_WORKERS", 4),
			StorageWorkers:    getEnvInt("PIPELINE_STORAGE_WORKERS", 2),
			QueueSize:         getEnvInt("PIPELINE_QUEUE_SIZE", 256),
			ProcessingTimeout: getEnvDuration("PIPELINE_PROCESSING_TIMEOUT", 2*time.Minute),
		},
		Storage: StorageConfig{
			Backend:       getEnv("STORAGE_BACKEND", "badger"),
			Path:          getEnv("STORAGE_PATH", "./data"),
			RemoteBaseURL: getEnv("STORAGE_REMOTE_URL", ""),
			RemoteAPIKey:  getEnv("STORAGE_REMOTE_API_KEY", ""),
		},
		Metadata: MetadataConfig{
			RequiredFields: getEnvList("METADATA_REQUIRED_FIELDS", []string{"contributor_id"}),
			MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 32<<20)),
		},
		AdminToken: getEnv("ADMIN_TOKEN", ""),
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

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
