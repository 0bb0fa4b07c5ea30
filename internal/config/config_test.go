package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoreMongo, cfg.StoreBackend)
	assert.Equal(t, JournalMemory, cfg.JournalBackend)
	assert.Equal(t, BrokerNone, cfg.Broker)
	assert.Equal(t, 5, cfg.CartMaxRetries)
	assert.Equal(t, 5*time.Second, cfg.MongoTimeout)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("JOURNAL_BACKEND", "dynamo")
	t.Setenv("BROKER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CART_MAX_RETRIES", "8")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("ADMIN_EMAIL", "admin@example.com")
	t.Setenv("ADMIN_PASSWORD", "adminpass1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, JournalDynamo, cfg.JournalBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 8, cfg.CartMaxRetries)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "admin@example.com", cfg.AdminEmail)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"unknown store", map[string]string{"STORE_BACKEND": "sqlite"}, "STORE_BACKEND"},
		{"unknown journal", map[string]string{"JOURNAL_BACKEND": "file"}, "JOURNAL_BACKEND"},
		{"unknown broker", map[string]string{"BROKER": "nats"}, "BROKER"},
		{"bad duration", map[string]string{"MONGO_TIMEOUT": "soon"}, "MONGO_TIMEOUT"},
		{"negative duration", map[string]string{"CART_CACHE_TTL": "-1m"}, "CART_CACHE_TTL"},
		{"bad integer", map[string]string{"CART_MAX_RETRIES": "many"}, "CART_MAX_RETRIES"},
		{"zero retries", map[string]string{"CART_MAX_RETRIES": "0"}, "CART_MAX_RETRIES"},
		{"admin half set", map[string]string{"ADMIN_EMAIL": "admin@example.com"}, "ADMIN_PASSWORD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", testSecret)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ReportsAllProblems(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("BROKER", "nats")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "BROKER")
}

func TestLoadWorker(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SMTP_HOST", "mail.internal")
	t.Setenv("BROKER", "rabbitmq")

	cfg, err := LoadWorker()
	require.NoError(t, err)
	assert.Equal(t, "mail.internal", cfg.SMTPHost)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, BrokerRabbitMQ, cfg.Broker)
}

func TestLoadWorker_RequiresSMTPHost(t *testing.T) {
	t.Setenv("SMTP_HOST", "")

	_, err := LoadWorker()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "SMTP_HOST")
}
