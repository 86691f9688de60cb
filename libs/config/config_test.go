package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationAcceptsSecondsAndGoSyntax(t *testing.T) {
	t.Setenv("TEST_TTL", "90")
	assert.Equal(t, 90*time.Second, Duration("TEST_TTL", time.Minute))

	t.Setenv("TEST_TTL", "15m")
	assert.Equal(t, 15*time.Minute, Duration("TEST_TTL", time.Minute))

	t.Setenv("TEST_TTL", "nonsense")
	assert.Equal(t, time.Minute, Duration("TEST_TTL", time.Minute))
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("TEST_N", "7")
	t.Setenv("TEST_FLAG", "off")
	assert.Equal(t, 7, Int("TEST_N", 3))
	assert.Equal(t, 3, Int("TEST_MISSING", 3))
	assert.False(t, Bool("TEST_FLAG", true))
	assert.True(t, Bool("TEST_MISSING", true))
}

func TestList(t *testing.T) {
	t.Setenv("TEST_LIST", " a, ,b ,c")
	assert.Equal(t, []string{"a", "b", "c"}, List("TEST_LIST", ""))
	assert.Equal(t, []string{"x"}, List("TEST_LIST_MISSING", "x"))
}

func TestLoadYAML(t *testing.T) {
	type policy struct {
		TTL         time.Duration `yaml:"ttl"`
		MaxAttempts int           `yaml:"max_attempts"`
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "booking.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ttl: 10m\nmax_attempts: 5\n"), 0o600))

	p := policy{TTL: time.Minute, MaxAttempts: 3}
	require.NoError(t, LoadYAML(path, &p))
	assert.Equal(t, 10*time.Minute, p.TTL)
	assert.Equal(t, 5, p.MaxAttempts)

	require.NoError(t, LoadYAML("", &p))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("unknown_key: 1\n"), 0o600))
	assert.Error(t, LoadYAML(bad, &p))
}
