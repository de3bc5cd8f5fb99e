package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "SAR_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "registry")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	chdir(t, sub)
	t.Setenv("SAR_TEST_ENV_LOAD", "")
	require.NoError(t, os.Unsetenv("SAR_TEST_ENV_LOAD"))

	n, err := LoadEnv(DefaultEnvFiles)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("SAR_TEST_ENV_LOAD"))
}

func TestLoad(t *testing.T) {
	chdir(t, t.TempDir())

	t.Run("defaults", func(t *testing.T) {
		c, err := Load(nil)
		require.NoError(t, err)
		t.Cleanup(c.Unload)
		require.Equal(t, "registry.xlsx", c.Registry.Path)
		require.Equal(t, BackendXLSX, c.Registry.Backend)
		require.True(t, c.Registry.BackupEnabled)
		require.False(t, c.Report.Enabled())
		require.Equal(t, "/debug/prometheus", c.Prometheus.Path)
		require.Equal(t, "localhost:3200", c.SocketAddress)
		require.Equal(t, logrus.ErrorLevel, c.Logger().GetLevel())
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("SAR_REGISTRY_PATH", "/data/registry")
		t.Setenv("SAR_REGISTRY_BACKEND", " CSV ")
		t.Setenv("SAR_MAX_ISSUES", "50")
		t.Setenv("SAR_REPORT_DSN", "postgres://localhost/sar")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("LOG_PATH", filepath.Join(t.TempDir(), "sar.log"))
		t.Setenv("GO_APP_ENV", "production")
		t.Setenv("PORT", "8080")

		c, err := Load(nil)
		require.NoError(t, err)
		t.Cleanup(c.Unload)
		require.Equal(t, BackendCSV, c.Registry.Backend)
		require.Equal(t, 50, c.Registry.MaxIssues)
		require.True(t, c.Report.Enabled())
		require.Equal(t, ":8080", c.SocketAddress)
		require.Equal(t, logrus.DebugLevel, c.LogrusLogLevel())
	})

	t.Run("env file", func(t *testing.T) {
		dir := t.TempDir()
		requireWriteFile(t, filepath.Join(dir, "sar.env"), "SAR_CONFIG_PATH=rules.yaml\n")
		t.Setenv("SAR_CONFIG_PATH", "")
		require.NoError(t, os.Unsetenv("SAR_CONFIG_PATH"))

		c, err := Load([]string{filepath.Join(dir, "sar.env")})
		require.NoError(t, err)
		t.Cleanup(c.Unload)
		require.Equal(t, "rules.yaml", c.Registry.ConfigPath)
	})

	invalid := map[string][2]string{
		"backend":    {"SAR_REGISTRY_BACKEND", "sqlite"},
		"log level":  {"LOG_LEVEL", "loud"},
		"max issues": {"SAR_MAX_ISSUES", "-1"},
		"port":       {"PORT", "0"},
		"metrics":    {"PROMETHEUS_METRICS_PATH", "metrics"},
	}
	for name, kv := range invalid {
		t.Run("invalid "+name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load(nil)
			require.Error(t, err)
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(orig) })
	require.NoError(t, os.Chdir(dir))
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
