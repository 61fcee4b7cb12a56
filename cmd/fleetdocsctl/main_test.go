package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"reprocess", "extract", "sweep", "migrate", "worker", "telegram-poll"})
}

func TestReprocessRequiresID(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"reprocess"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.Execute())
}

func TestSweepOnceAgainstMemoryRepositories(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "dev")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("EXTRACTION_PROVIDER", "stub")
	t.Setenv("LOCAL_STORE_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"sweep", "--once"})
	root.SetOut(&out)

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"Recovered":0`)
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")

	root := newRootCmd()
	root.SetArgs([]string{"migrate"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.ErrorContains(t, root.Execute(), "DATABASE_URL")
}

func TestExtractPrintsNormalizedFields(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ENV", "dev")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("EXTRACTION_PROVIDER", "stub")
	t.Setenv("LOCAL_STORE_DIR", dir)
	t.Setenv("LOG_LEVEL", "error")

	image := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	path := filepath.Join(dir, "ticket.png")
	require.NoError(t, os.WriteFile(path, image, 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"extract", "--type", "fuel", path})
	root.SetOut(&out)

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"documentType": "fuel_ticket"`)
	assert.Contains(t, out.String(), `"liters": 45.3`)
}
