package main

import "testing"

func TestLoadConfigDefaultsWithoutConfigFile(t *testing.T) {
	configFile = ""
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Redis.Addr == "" {
		t.Fatalf("expected a default redis addr")
	}
}

func TestDaemonCmdUse(t *testing.T) {
	cmd := daemonCmd()
	if cmd.Use != "daemon" {
		t.Fatalf("Use = %q, want %q", cmd.Use, "daemon")
	}
}

func TestDrainCmdUse(t *testing.T) {
	cmd := drainCmd()
	if cmd.Use != "drain" {
		t.Fatalf("Use = %q, want %q", cmd.Use, "drain")
	}
}
