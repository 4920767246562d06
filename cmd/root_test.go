package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindbody-mcp/models"
	"mindbody-mcp/repository"
)

// setupCommandEnv isolates configuration lookup and the data directory for one test
func setupCommandEnv(t *testing.T) string {
	t.Helper()

	dataDir := t.TempDir()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")
	for _, key := range []string{"MINDBODY_API_KEY", "MINDBODY_SITE_ID", "MINDBODY_STAFF_USERNAME", "MINDBODY_STAFF_PASSWORD"} {
		t.Setenv(key, "")
	}

	cfgFile = ""
	if f := rootCmd.Flags().Lookup("help"); f != nil {
		f.Value.Set("false")
	}
	rootCmd.SetErr(new(bytes.Buffer))
	return dataDir
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs(append(args, "--no-color"))
	err := rootCmd.Execute()
	return buf.String(), err
}

func openTestStore(t *testing.T, dataDir string) *repository.Connection {
	t.Helper()

	conn, err := repository.OpenSQLite(context.Background(), filepath.Join(dataDir, repository.SQLiteFileName), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRootCmd_Help(t *testing.T) {
	setupCommandEnv(t)

	out, err := runCommand(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "mindbody-mcp")
	for _, sub := range []string{"serve", "sync", "usage", "cache", "logs", "version"} {
		assert.Contains(t, out, sub, "help output should list %q", sub)
	}
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	setupCommandEnv(t)

	_, err := runCommand(t, "nonexistent-command")
	assert.Error(t, err)
}

func TestSyncCommands_RequireCredentials(t *testing.T) {
	tests := map[string][]string{
		"clients": {"sync", "clients"},
		"sales":   {"sync", "sales", "--start", "2024-01-01", "--end", "2024-01-07"},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			setupCommandEnv(t)

			_, err := runCommand(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestSyncSales_RejectsBadDate(t *testing.T) {
	setupCommandEnv(t)

	_, err := runCommand(t, "sync", "sales", "--start", "01/01/2024", "--end", "2024-01-07")
	assert.Error(t, err)
}

func TestUsageCommand(t *testing.T) {
	dataDir := setupCommandEnv(t)
	t.Setenv("DAILY_API_LIMIT", "10")
	usageCmd.Flags().Set("json", "false")

	conn := openTestStore(t, dataDir)
	usage := repository.NewUsageRepository(conn, nil)
	today := models.DayOf(time.Now()).String()
	for range 9 {
		_, err := usage.IncrementUsage(context.Background(), today)
		require.NoError(t, err)
	}

	out, err := runCommand(t, "usage")
	require.NoError(t, err)

	assert.Contains(t, out, "API usage "+today)
	assert.Regexp(t, `calls made:\s+9`, out)
	assert.Regexp(t, `remaining:\s+1`, out)
	assert.Contains(t, out, "History")
}

func TestLogsCommand(t *testing.T) {
	t.Run("empty log", func(t *testing.T) {
		setupCommandEnv(t)
		logsCmd.Flags().Set("json", "false")
		logsCmd.Flags().Set("operation", "")

		out, err := runCommand(t, "logs")
		require.NoError(t, err)
		assert.Contains(t, out, "no sync runs recorded")
	})

	t.Run("filtered by operation", func(t *testing.T) {
		dataDir := setupCommandEnv(t)
		logsCmd.Flags().Set("json", "false")

		conn := openTestStore(t, dataDir)
		syncLog := repository.NewSyncLogRepository(conn, nil)
		for _, op := range []string{"sync_clients", "sync_sales"} {
			require.NoError(t, syncLog.Append(context.Background(), &models.SyncLogEntry{
				Timestamp: time.Now(),
				Operation: op,
				Status:    models.SyncStatusSuccess,
				Message:   op + " done",
			}))
		}

		out, err := runCommand(t, "logs", "--operation", "sync_sales")
		require.NoError(t, err)
		assert.Contains(t, out, "sync_sales done")
		assert.NotContains(t, out, "sync_clients done")
		assert.Contains(t, out, "[success]")
	})
}

func TestCacheCommands(t *testing.T) {
	setupCommandEnv(t)
	cacheStatsCmd.Flags().Set("json", "false")

	out, err := runCommand(t, "cache", "stats")
	require.NoError(t, err)
	assert.Regexp(t, `entries:\s+0`, out)

	out, err = runCommand(t, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "[OK] removed 0 cached responses")

	out, err = runCommand(t, "cache", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 0 cached responses and 0 listing entries")
}
