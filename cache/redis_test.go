package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromEnvDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_PASSWORD", "")
	t.Setenv("REDIS_DB", "")

	opts, err := optionsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, "", opts.Password)
	assert.Equal(t, 0, opts.DB)
}

func TestOptionsFromEnvDiscreteVars(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("REDIS_DB", "3")

	opts, err := optionsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, "hunter2", opts.Password)
	assert.Equal(t, 3, opts.DB)
}

func TestOptionsFromEnvURLWins(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://:secret@url-host:6390/5")
	t.Setenv("REDIS_ADDR", "ignored:6379")

	opts, err := optionsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "url-host:6390", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 5, opts.DB)
}

func TestOptionsFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("REDIS_URL", "://notaurl")
	_, err := optionsFromEnv()
	assert.Error(t, err)

	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_DB", "three")
	_, err = optionsFromEnv()
	assert.Error(t, err)
}
