package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 4, cfg.Pipeline.ValidationWorkers)
	assert.Equal(t, 256, cfg.Pipeline.QueueSize)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.ProcessingTimeout)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, []string{"contributor_id"}, cfg.Metadata.RequiredFields)
	assert.Equal(t, int64(32<<20), cfg.Metadata.MaxUploadBytes)
	assert.Empty(t, cfg.AdminToken)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("SERVER_READ_TIMEOUT", "15s")
	t.Setenv("PIPELINE_QUEUE_SIZE", "32")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("METADATA_REQUIRED_FIELDS", "contributor_id, theme ,transcription")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("ADMIN_TOKEN", "secret")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 32, cfg.Pipeline.QueueSize)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, []string{"contributor_id", "theme", "transcription"}, cfg.Metadata.RequiredFields)
	assert.Equal(t, int64(1048576), cfg.Metadata.MaxUploadBytes)
	assert.Equal(t, "secret", cfg.AdminToken)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("PIPELINE_QUEUE_SIZE", "lots")
	t.Setenv("SERVER_READ_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 256, cfg.Pipeline.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}
