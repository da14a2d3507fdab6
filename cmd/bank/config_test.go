package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittipos-w/paygate/internal/logger"
)

func TestConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		c := NewConfig()

		require.Equal(t, "localhost:8000", c.ListenAddr)
		require.Equal(t, logger.LevelInfo, c.LogLevel)
		require.Equal(t, "0.10", c.TokenPrice)
		require.Equal(t, logger.EnvProduction, c.Environment)
		require.Empty(t, c.DatabaseDSN, "database has no safe default")
		require.Empty(t, c.SecretKey, "secret key has no safe default")
	})

	t.Run("env overrides defaults", func(t *testing.T) {
		t.Parallel()

		env := map[string]string{
			"RUN_ADDRESS":  "0.0.0.0:9000",
			"DATABASE_URI": "postgres://env",
			"SECRET_KEY":   "env-secret",
			"TOKEN_PRICE":  "0.25",
			"LOG_LEVEL":    logger.LevelDebug,
			"ENVIRONMENT":  logger.EnvDevelopment,
		}

		c := NewConfig()
		c.LoadEnv(func(key string) string { return env[key] })

		require.Equal(t, "0.0.0.0:9000", c.ListenAddr)
		require.Equal(t, "postgres://env", c.DatabaseDSN)
		require.Equal(t, "env-secret", c.SecretKey)
		require.Equal(t, "0.25", c.TokenPrice)
		require.Equal(t, logger.LevelDebug, c.LogLevel)
		require.Equal(t, logger.EnvDevelopment, c.Environment)
	})

	t.Run("empty env keeps defaults", func(t *testing.T) {
		t.Parallel()

		c := NewConfig()
		c.LoadEnv(func(string) string { return "" })

		require.Equal(t, "localhost:8000", c.ListenAddr)
		require.Equal(t, "0.10", c.TokenPrice)
	})

	t.Run("flags override env", func(t *testing.T) {
		t.Parallel()

		c := NewConfig()
		c.LoadEnv(func(key string) string {
			if key == "RUN_ADDRESS" {
				return "0.0.0.0:9000"
			}
			return ""
		})

		err := c.ParseFlags([]string{"-a", "localhost:7000", "-d", "postgres://flag", "-p", "0.05"})

		require.NoError(t, err)
		require.Equal(t, "localhost:7000", c.ListenAddr)
		require.Equal(t, "postgres://flag", c.DatabaseDSN)
		require.Equal(t, "0.05", c.TokenPrice)
	})

	t.Run("unknown flag fails", func(t *testing.T) {
		t.Parallel()

		c := NewConfig()

		require.Error(t, c.ParseFlags([]string{"--nope"}))
	})

	t.Run("dotenv file loaded from working directory", func(t *testing.T) {
		t.Parallel()

		wd := t.TempDir()
		envFile := "RUN_ADDRESS=localhost:5005\nSECRET_KEY=dotenv-secret\n"
		require.NoError(t, os.WriteFile(filepath.Join(wd, ".env"), []byte(envFile), 0o600))

		c := NewConfig()
		err := c.LoadDotEnv(func() (string, error) { return wd, nil })

		require.NoError(t, err)
		require.Equal(t, "localhost:5005", c.ListenAddr)
		require.Equal(t, "dotenv-secret", c.SecretKey)
	})

	t.Run("missing dotenv file is fine", func(t *testing.T) {
		t.Parallel()

		c := NewConfig()
		err := c.LoadDotEnv(func() (string, error) { return t.TempDir(), nil })

		require.NoError(t, err)
		require.Equal(t, "localhost:8000", c.ListenAddr)
	})
}
