package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "espconsole "+version) {
		t.Errorf("version output = %q", out.String())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, &options{configPath: "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
device:
  hostname: bench
console:
  history: 20
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := loadConfig(&options{configPath: configPath, root: tmpDir, logLevel: "debug"})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Device.Hostname != "bench" {
		t.Errorf("Hostname = %q, want bench", cfg.Device.Hostname)
	}
	if cfg.Console.History != 20 {
		t.Errorf("History = %d, want 20", cfg.Console.History)
	}
	if cfg.Filesystem.Root != tmpDir {
		t.Errorf("Root = %q, want %q", cfg.Filesystem.Root, tmpDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}

	if _, err := loadConfig(&options{configPath: configPath, logLevel: "loud"}); err == nil {
		t.Error("loadConfig() should reject an unknown log level")
	}
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("ESPCONSOLE_CONFIG", "")
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(&options{})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Device.Hostname != "espconsole" {
		t.Errorf("Hostname = %q, want the default", cfg.Device.Hostname)
	}
}

func TestAnsiEnabled(t *testing.T) {
	tests := []struct {
		setting string
		want    bool
	}{
		{"on", true},
		{"ON", true},
		{"off", false},
		{"0", false},
	}
	for _, tt := range tests {
		if got := ansiEnabled(tt.setting, true); got != tt.want {
			t.Errorf("ansiEnabled(%q) = %v, want %v", tt.setting, got, tt.want)
		}
	}
	if ansiEnabled("auto", false) {
		t.Error("ansiEnabled(auto) on a serial port = true, want false")
	}
}

func TestHostChipID(t *testing.T) {
	a, b := hostChipID("one"), hostChipID("two")
	if a == b {
		t.Errorf("hostChipID() = %x for both names", a)
	}
	if a != hostChipID("one") {
		t.Error("hostChipID() is not stable")
	}
	if a > 0xffffff {
		t.Errorf("hostChipID() = %x, want 24 bits", a)
	}
}
