package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, journalDir string) string {
	t.Helper()
	dir := t.TempDir()
	body := "log:\n  level: error\nkeys:\n  path: " + filepath.Join(dir, "key.pem") + "\n  passphrase: s3cret\n"
	if journalDir != "" {
		body += "journal:\n  dir: " + journalDir + "\n"
	}
	path := filepath.Join(dir, "onboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRollbackNeedsDurableJournal(t *testing.T) {
	cfg := writeConfig(t, "")

	assert.Equal(t, 2, run([]string{"rollback", "-config", cfg, "-saga-id", "01J0000000000000000000000"}))
	assert.Equal(t, 2, run([]string{"rollback", "-config", cfg}))
	_, err := os.Stat(filepath.Join(filepath.Dir(cfg), "key.pem"))
	assert.True(t, os.IsNotExist(err), "rejected before any key is created")
}

func TestRollbackUnknownSaga(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())

	assert.Equal(t, 1, run([]string{"rollback", "-config", cfg, "-saga-id", "01J0000000000000000000000"}))
}

func TestRunUsage(t *testing.T) {
	assert.Equal(t, 2, run(nil))
	assert.Equal(t, 2, run([]string{"payroll", "-config", writeConfig(t, "")}))
	assert.Equal(t, 2, run([]string{"graph", "-no-such-flag"}))
}
