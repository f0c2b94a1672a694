package logger

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONAndAudit(t *testing.T) {
	dir := t.TempDir()
	appPath := filepath.Join(dir, "app.log")
	auditPath := filepath.Join(dir, "audit", "audit.log")

	require.NoError(t, Init(Config{
		Level:       "debug",
		OutputPaths: []string{appPath},
		Audit:       AuditConfig{Enabled: true, Path: auditPath},
	}))
	t.Cleanup(func() {
		_ = Init(Config{})
	})

	L().Debug("engine ready", slog.String("chain", "devnet"))
	Audit().Info("transfer confirmed", slog.String("conversation_id", "c-1"))
	require.NoError(t, Sync())

	appLines := readLines(t, appPath)
	require.Len(t, appLines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(appLines[0]), &entry))
	assert.Equal(t, "engine ready", entry["msg"])
	assert.Equal(t, "devnet", entry["chain"])

	auditLines := readLines(t, auditPath)
	require.Len(t, auditLines, 1)
	assert.Contains(t, auditLines[0], `"stream":"audit"`)
	assert.Contains(t, auditLines[0], `"conversation_id":"c-1"`)
}

func TestAuditRequiresPath(t *testing.T) {
	err := Init(Config{Audit: AuditConfig{Enabled: true}})
	require.Error(t, err)
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	require.NoError(t, Init(Config{Format: "text", OutputPaths: []string{"stderr"}}))
	assert.Same(t, L(), FromContext(context.Background()))

	scoped := L().With(slog.String("request_id", "r-1"))
	ctx := WithContext(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}
