package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ServerPort != "8086" {
		t.Fatalf("expected default server port 8086, got %q", cfg.ServerPort)
	}
	if cfg.EventExchange != "ledger.events" {
		t.Fatalf("expected default exchange ledger.events, got %q", cfg.EventExchange)
	}
	if cfg.TransactionEventQueue != "promotion_service.transaction_events" {
		t.Fatalf("unexpected default queue %q", cfg.TransactionEventQueue)
	}
	if cfg.TransactionRoutingKey != "transaction.posted" {
		t.Fatalf("unexpected default routing key %q", cfg.TransactionRoutingKey)
	}
	if cfg.CursorSourceName != "ledger-db" {
		t.Fatalf("unexpected default cursor source %q", cfg.CursorSourceName)
	}
	if cfg.PollIntervalSeconds != 5 {
		t.Fatalf("expected default poll interval 5s, got %d", cfg.PollIntervalSeconds)
	}
	if cfg.PollBatchSize != 200 {
		t.Fatalf("expected default batch size 200, got %d", cfg.PollBatchSize)
	}
	if cfg.DedupWindowSeconds != 3600 {
		t.Fatalf("expected default dedup window 3600s, got %d", cfg.DedupWindowSeconds)
	}
	if cfg.ReconcileGraceSeconds != 300 {
		t.Fatalf("expected default reconcile grace 300s, got %d", cfg.ReconcileGraceSeconds)
	}
	if cfg.RedisDedupPrefix != "promotion:dedup" {
		t.Fatalf("unexpected default dedup prefix %q", cfg.RedisDedupPrefix)
	}
	if cfg.ExpirySweepSchedule != "*/10 * * * *" {
		t.Fatalf("unexpected default expiry schedule %q", cfg.ExpirySweepSchedule)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/promotions")
	t.Setenv("LEDGER_API_BASE_URL", "http://ledger.internal:8080")
	t.Setenv("POLL_INTERVAL_SECONDS", "2")
	t.Setenv("POLL_BATCH_SIZE", "50")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ServerPort != "9000" {
		t.Fatalf("expected server port 9000, got %q", cfg.ServerPort)
	}
	if cfg.DatabaseURL != "postgres://localhost:5432/promotions" {
		t.Fatalf("unexpected database url %q", cfg.DatabaseURL)
	}
	if cfg.LedgerAPIBaseURL != "http://ledger.internal:8080" {
		t.Fatalf("unexpected ledger base url %q", cfg.LedgerAPIBaseURL)
	}
	if cfg.PollIntervalSeconds != 2 {
		t.Fatalf("expected poll interval 2s, got %d", cfg.PollIntervalSeconds)
	}
	if cfg.PollBatchSize != 50 {
		t.Fatalf("expected batch size 50, got %d", cfg.PollBatchSize)
	}
}

func TestLoadConfig_InternalKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("PROMOTION_SERVICE_INTERNAL_API_KEY", "alias-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "alias-secret" {
		t.Fatalf("expected the aliased internal key, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_CoercesInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("POLL_INTERVAL_SECONDS", "-3")
	t.Setenv("DEDUP_WINDOW_SECONDS", "0")
	t.Setenv("REDIS_DEDUP_PREFIX", "   ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.PollIntervalSeconds != 5 {
		t.Fatalf("expected negative poll interval coerced to 5, got %d", cfg.PollIntervalSeconds)
	}
	if cfg.DedupWindowSeconds != 3600 {
		t.Fatalf("expected zero dedup window coerced to 3600, got %d", cfg.DedupWindowSeconds)
	}
	if cfg.RedisDedupPrefix != "promotion:dedup" {
		t.Fatalf("expected blank dedup prefix coerced to default, got %q", cfg.RedisDedupPrefix)
	}
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := Config{
		PollIntervalSeconds:     5,
		DedupWindowSeconds:      3600,
		SnapshotRefreshSeconds:  60,
		ReconcileGraceSeconds:   300,
		EvaluatorTimeoutSeconds: 30,
	}

	if got := cfg.PollInterval().Seconds(); got != 5 {
		t.Fatalf("expected 5s poll interval, got %v", got)
	}
	if got := cfg.DedupWindow().Hours(); got != 1 {
		t.Fatalf("expected 1h dedup window, got %v", got)
	}
	if got := cfg.SnapshotRefresh().Minutes(); got != 1 {
		t.Fatalf("expected 1m snapshot refresh, got %v", got)
	}
	if got := cfg.ReconcileGrace().Minutes(); got != 5 {
		t.Fatalf("expected 5m reconcile grace, got %v", got)
	}
	if got := cfg.EvaluatorTimeout().Seconds(); got != 30 {
		t.Fatalf("expected 30s evaluator timeout, got %v", got)
	}
}
