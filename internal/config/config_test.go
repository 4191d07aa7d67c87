package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, "post-images", cfg.Storage.Bucket)
	assert.Equal(t, "gemini-1.5-flash", cfg.Gemini.Model)
	assert.Equal(t, "https://api.linkedin.com/v2", cfg.LinkedIn.APIURL)
	assert.Equal(t, 2*time.Second, cfg.Sweeper.Delay)
	assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Security.CORSAllowedOrigins)
	assert.False(t, cfg.GeminiConfigured())
	assert.False(t, cfg.StorageConfigured())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PM_ENV", "PROD")
	t.Setenv("PM_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("PM_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PM_SWEEP_DELAY", "500ms")
	t.Setenv("PM_PUBLIC_ORIGIN", "https://app.example/")
	t.Setenv("PM_GEMINI_API_KEY", "real-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.Equal(t, "https://app.example", cfg.PublicURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.CORSAllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.Sweeper.Delay)
	assert.True(t, cfg.GeminiConfigured())
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad env", map[string]string{"PM_ENV": "staging"}},
		{"postgres without dsn", map[string]string{"PM_DB_TYPE": "postgres"}},
		{"unknown db", map[string]string{"PM_DB_TYPE": "sqlite"}},
		{"prod without secret", map[string]string{"PM_ENV": "prod"}},
		{"negative delay", map[string]string{"PM_SWEEP_DELAY": "-1s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGeminiPlaceholderKey(t *testing.T) {
	cfg := &Config{Gemini: GeminiConfig{APIKey: PlaceholderGeminiKey}}
	assert.False(t, cfg.GeminiConfigured())
}

func TestModuleRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/x\n"), 0o644))
	nested := filepath.Join(root, "cmd", "api")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := moduleRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	_, err = moduleRoot(t.TempDir())
	assert.ErrorIs(t, err, errNoModuleRoot)
}

func TestLoad_DotEnvAtModuleRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("PM_HTTP_ADDR=:9191\n"), 0o644))
	nested := filepath.Join(root, "cmd", "api")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)
	t.Setenv("PM_HTTP_ADDR", "")
	require.NoError(t, os.Unsetenv("PM_HTTP_ADDR"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9191", cfg.HTTPAddr)
}
