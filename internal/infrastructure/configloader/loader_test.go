package configloader

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("explicit port lost: %s", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %s", cfg.Logging.Level)
	}
	if cfg.Thresholds.ModerateRiskAbove != 75 || cfg.Thresholds.HighRiskAbove != 90 {
		t.Fatalf("unexpected default risk thresholds: %+v", cfg.Thresholds)
	}
	if cfg.Thresholds.BorrowUtilizationGuard != 85 {
		t.Fatalf("expected default guard 85, got %f", cfg.Thresholds.BorrowUtilizationGuard)
	}
	if cfg.Thresholds.ReconcileToleranceUSD != 0.01 {
		t.Fatalf("expected default tolerance 0.01, got %f", cfg.Thresholds.ReconcileToleranceUSD)
	}
	if cfg.Polling.SnapshotIntervalSeconds != 30 {
		t.Fatalf("expected default snapshot interval 30, got %d", cfg.Polling.SnapshotIntervalSeconds)
	}
	if cfg.MarketDataDir != "data/markets" {
		t.Fatalf("expected default market dir, got %s", cfg.MarketDataDir)
	}
}

func TestLoadRejectsInvertedRiskThresholds(t *testing.T) {
	path := writeConfig(t, "thresholds:\n  moderateRiskAbove: 95\n  highRiskAbove: 90\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when moderate threshold exceeds high threshold")
	}
}

func TestLoadRejectsGuardAboveHighThreshold(t *testing.T) {
	path := writeConfig(t, "thresholds:\n  borrowUtilizationGuard: 95\n  highRiskAbove: 90\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when the guard exceeds the high threshold")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadChainOverrides(t *testing.T) {
	path := writeConfig(t, `chains:
  - identifier: "ethereum"
    rpcURL: "https://example-rpc.invalid"
    comptrollerAddress: "0x3d9819210A31b4961b30EF54bE2aeD79B9c9Cd3B"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Chains) != 1 || cfg.Chains[0].Identifier != "ethereum" {
		t.Fatalf("chain overrides lost: %+v", cfg.Chains)
	}
	if cfg.Chains[0].RPCURL != "https://example-rpc.invalid" {
		t.Fatalf("unexpected rpc override: %s", cfg.Chains[0].RPCURL)
	}
}
