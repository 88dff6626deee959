package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"SETTLEMENT_APP_NAME":                 os.Getenv("SETTLEMENT_APP_NAME"),
		"SETTLEMENT_APP_ENV":                  os.Getenv("SETTLEMENT_APP_ENV"),
		"SETTLEMENT_APP_PORT":                 os.Getenv("SETTLEMENT_APP_PORT"),
		"SETTLEMENT_DATABASE_HOST":            os.Getenv("SETTLEMENT_DATABASE_HOST"),
		"SETTLEMENT_DATABASE_PORT":            os.Getenv("SETTLEMENT_DATABASE_PORT"),
		"SETTLEMENT_DATABASE_USER":            os.Getenv("SETTLEMENT_DATABASE_USER"),
		"SETTLEMENT_DATABASE_PASSWORD":        os.Getenv("SETTLEMENT_DATABASE_PASSWORD"),
		"SETTLEMENT_DATABASE_DBNAME":          os.Getenv("SETTLEMENT_DATABASE_DBNAME"),
		"SETTLEMENT_DATABASE_SSLMODE":         os.Getenv("SETTLEMENT_DATABASE_SSLMODE"),
		"SETTLEMENT_DATABASE_MAX_OPEN_CONNS":  os.Getenv("SETTLEMENT_DATABASE_MAX_OPEN_CONNS"),
		"SETTLEMENT_DATABASE_MAX_IDLE_CONNS":  os.Getenv("SETTLEMENT_DATABASE_MAX_IDLE_CONNS"),
		"SETTLEMENT_SETTLEMENT_CURRENCY":      os.Getenv("SETTLEMENT_SETTLEMENT_CURRENCY"),
		"SETTLEMENT_AUTOMATION_ENABLED":       os.Getenv("SETTLEMENT_AUTOMATION_ENABLED"),
		"SETTLEMENT_JWT_SECRET":               os.Getenv("SETTLEMENT_JWT_SECRET"),
		"SETTLEMENT_CHAPA_SECRET_KEY":         os.Getenv("SETTLEMENT_CHAPA_SECRET_KEY"),
		"SETTLEMENT_CHAPA_SANDBOX":            os.Getenv("SETTLEMENT_CHAPA_SANDBOX"),
		"SETTLEMENT_TELEMETRY_ENABLED":        os.Getenv("SETTLEMENT_TELEMETRY_ENABLED"),
		"SETTLEMENT_TELEMETRY_SAMPLING_RATIO": os.Getenv("SETTLEMENT_TELEMETRY_SAMPLING_RATIO"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "settlement-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "postgres", cfg.Database.User)
		assert.Equal(t, "", cfg.Database.Password)
		assert.Equal(t, "settlement", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, "ETB", cfg.Settlement.Currency)
		assert.Equal(t, "1000", cfg.Automation.AutoApproveThreshold)
		assert.Equal(t, int64(3), cfg.Automation.MaxPerSellerPerHour)
		assert.Equal(t, int64(100), cfg.Automation.MaxPerHour)
		assert.False(t, cfg.Automation.Enabled)
		assert.False(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "localhost:4317", cfg.Telemetry.CollectorEndpoint)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
	})

	t.Run("loads values from environment variables with SETTLEMENT prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("SETTLEMENT_APP_NAME", "test-app")
		os.Setenv("SETTLEMENT_APP_ENV", "testing")
		os.Setenv("SETTLEMENT_APP_PORT", "9000")
		os.Setenv("SETTLEMENT_DATABASE_HOST", "testdb.local")
		os.Setenv("SETTLEMENT_DATABASE_PORT", "5433")
		os.Setenv("SETTLEMENT_DATABASE_USER", "testuser")
		os.Setenv("SETTLEMENT_DATABASE_PASSWORD", "testpass")
		os.Setenv("SETTLEMENT_DATABASE_DBNAME", "testdb")
		os.Setenv("SETTLEMENT_DATABASE_SSLMODE", "require")
		os.Setenv("SETTLEMENT_DATABASE_MAX_OPEN_CONNS", "50")
		os.Setenv("SETTLEMENT_DATABASE_MAX_IDLE_CONNS", "10")
		os.Setenv("SETTLEMENT_AUTOMATION_ENABLED", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testing", cfg.App.Env)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testuser", cfg.Database.User)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, "testdb", cfg.Database.DBName)
		assert.Equal(t, "require", cfg.Database.SSLMode)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.True(t, cfg.Automation.Enabled)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("SETTLEMENT_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("SETTLEMENT_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("zero MaxOpenConns uses default", func(t *testing.T) {
		clearEnv()
		os.Setenv("SETTLEMENT_DATABASE_MAX_OPEN_CONNS", "0")

		cfg, err := Load()
		require.NoError(t, err)
		// 0 is treated as "not set", so default (25) is used
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		clearEnv()
		os.Setenv("SETTLEMENT_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("validates sampling ratio is within bounds", func(t *testing.T) {
		clearEnv()
		os.Setenv("SETTLEMENT_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.sampling_ratio")
	})

	t.Run("validates currency is a 3-letter code", func(t *testing.T) {
		clearEnv()
		os.Setenv("SETTLEMENT_SETTLEMENT_CURRENCY", "BIRR")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "settlement.currency")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	originalEnv := map[string]string{
		"SETTLEMENT_APP_ENV":                os.Getenv("SETTLEMENT_APP_ENV"),
		"SETTLEMENT_JWT_SECRET":             os.Getenv("SETTLEMENT_JWT_SECRET"),
		"SETTLEMENT_DATABASE_PASSWORD":      os.Getenv("SETTLEMENT_DATABASE_PASSWORD"),
		"SETTLEMENT_DATABASE_SSLMODE":       os.Getenv("SETTLEMENT_DATABASE_SSLMODE"),
		"SETTLEMENT_AUTOMATION_ENABLED":     os.Getenv("SETTLEMENT_AUTOMATION_ENABLED"),
		"SETTLEMENT_CHAPA_SECRET_KEY":       os.Getenv("SETTLEMENT_CHAPA_SECRET_KEY"),
		"SETTLEMENT_CHAPA_SANDBOX":          os.Getenv("SETTLEMENT_CHAPA_SANDBOX"),
		"SETTLEMENT_TELEMETRY_LOG_FULL_SQL": os.Getenv("SETTLEMENT_TELEMETRY_LOG_FULL_SQL"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	// Helper to set valid production base config
	setValidProductionBase := func() {
		os.Setenv("SETTLEMENT_APP_ENV", "production")
		os.Setenv("SETTLEMENT_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		os.Setenv("SETTLEMENT_DATABASE_PASSWORD", "secure-password")
		os.Setenv("SETTLEMENT_DATABASE_SSLMODE", "require")
	}

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		clearEnv()
		os.Setenv("SETTLEMENT_APP_ENV", "production")
		os.Setenv("SETTLEMENT_DATABASE_PASSWORD", "secure-password")
		os.Setenv("SETTLEMENT_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("SETTLEMENT_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		clearEnv()
		os.Setenv("SETTLEMENT_APP_ENV", "production")
		os.Setenv("SETTLEMENT_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		os.Setenv("SETTLEMENT_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("SETTLEMENT_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("requires chapa secret when automation is enabled in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("SETTLEMENT_AUTOMATION_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chapa.secret_key is required")
	})

	t.Run("rejects chapa sandbox in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("SETTLEMENT_CHAPA_SANDBOX", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chapa.sandbox must be false in production")
	})

	t.Run("rejects full SQL logging in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("SETTLEMENT_TELEMETRY_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.log_full_sql must be false in production")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		// URL-encoded password should be in the DSN
		assert.Contains(t, dsn, "pass%40word%23123")
	})

	t.Run("handles empty password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.NotEmpty(t, dsn)
	})
}
