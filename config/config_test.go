package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "onboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAndDefaults(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
keys:
  path: /tmp/k.pem
  passphrase: hunter22
tokens:
  ttl: 30m
store:
  transactional: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	assert.Equal(t, "/tmp/k.pem", cfg.Keys.Path)
	assert.Equal(t, DefaultKeyBits, cfg.Keys.Bits)
	assert.Equal(t, 30*time.Minute, cfg.Tokens.TTL)
	assert.Equal(t, DefaultMinAge, cfg.Employee.MinAge)
	assert.Equal(t, "234", cfg.Phone.DefaultCountryCode)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.Store.Transactional)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "keys:\n  passphrase: from-file\n")
	t.Setenv("ONBOARD_KEY_PASSPHRASE", "from-env")
	t.Setenv("ONBOARD_TOKEN_TTL", "5m")
	t.Setenv("ONBOARD_EMPLOYEE_MIN_AGE", "18")
	t.Setenv("ONBOARD_STORE_TRANSACTIONAL", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Keys.Passphrase)
	assert.Equal(t, 5*time.Minute, cfg.Tokens.TTL)
	assert.Equal(t, 18, cfg.Employee.MinAge)
	assert.True(t, cfg.Store.Transactional)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("missing passphrase", func(t *testing.T) {
		_, err := Load("")
		assert.ErrorIs(t, err, ErrInvalid)
		assert.ErrorContains(t, err, "ONBOARD_KEY_PASSPHRASE")
	})
	t.Run("bad env number", func(t *testing.T) {
		t.Setenv("ONBOARD_KEY_PASSPHRASE", "x")
		t.Setenv("ONBOARD_KEY_BITS", "lots")
		_, err := Load("")
		assert.ErrorIs(t, err, ErrInvalid)
	})
	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("ONBOARD_KEY_PASSPHRASE", "x")
		t.Setenv("ONBOARD_STORE_DRIVER", "postgres")
		_, err := Load("")
		assert.ErrorContains(t, err, "store.dsn")
	})
	t.Run("age bounds", func(t *testing.T) {
		path := writeFile(t, "keys: {passphrase: x}\nemployee: {min_age: 60, max_age: 40}\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "age bounds")
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
