package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_FailsWithoutRequiredCredentials(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "REHIVE_API_URL")
	unsetEnvWithCleanup(t, "REHIVE_API_TOKEN")
	unsetEnvWithCleanup(t, "BLOCKCYPHER_TOKEN")

	_, err := LoadConfig(t.TempDir())
	if err == nil {
		t.Fatal("expected error when required credentials are missing")
	}
	for _, key := range []string{"REHIVE_API_URL", "REHIVE_API_TOKEN", "BLOCKCYPHER_TOKEN"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected error to name %s, got %q", key, err)
		}
	}
}

func TestLoadConfig_DefaultsApply(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setRequiredEnv(t)
	unsetEnvWithCleanup(t, "CONFIDENCE_THRESHOLD")
	unsetEnvWithCleanup(t, "LEDGER_SYNC_RETRY_DELAY")
	unsetEnvWithCleanup(t, "COIN_PRECISION")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ConfidenceThreshold != 0.9 {
		t.Errorf("expected default confidence threshold 0.9, got %f", cfg.ConfidenceThreshold)
	}
	if cfg.CoinPrecision != 8 {
		t.Errorf("expected default precision 8, got %d", cfg.CoinPrecision)
	}
	if cfg.LedgerSyncMaxAttempts != 24 {
		t.Errorf("expected default max attempts 24, got %d", cfg.LedgerSyncMaxAttempts)
	}
	if cfg.LedgerSyncRetryDelay != time.Hour {
		t.Errorf("expected default retry delay 1h, got %s", cfg.LedgerSyncRetryDelay)
	}
	if cfg.WebhookEventQueue != "bitcoin_adapter.webhook_events" {
		t.Errorf("unexpected default queue %q", cfg.WebhookEventQueue)
	}
}

func TestLoadConfig_TrimsTrailingSlashFromRehiveURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setRequiredEnv(t)
	setEnvWithCleanup(t, "REHIVE_API_URL", "https://api.rehive.com/3/")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RehiveAPIURL != "https://api.rehive.com/3" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.RehiveAPIURL)
	}
}

func TestLoadConfig_CoercesOutOfRangeThreshold(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setRequiredEnv(t)
	setEnvWithCleanup(t, "CONFIDENCE_THRESHOLD", "1.7")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ConfidenceThreshold != 0.9 {
		t.Errorf("expected out-of-range threshold coerced to 0.9, got %f", cfg.ConfidenceThreshold)
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	setEnvWithCleanup(t, "REHIVE_API_URL", "https://api.rehive.com/3")
	setEnvWithCleanup(t, "REHIVE_API_TOKEN", "test-token")
	setEnvWithCleanup(t, "BLOCKCYPHER_TOKEN", "test-bc-token")
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
