package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testConfigYAML = `
device:
  address: "192.168.1.10"
  tags: ["A", "B"]

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
  topic_prefix: "ethernetip"

api:
  host: "127.0.0.1"
  port: 18080

database:
  path: "%DB%"

logging:
  level: error
  format: text
  output: stdout

security:
  api_token_secret: "test-secret-key-at-least-32-characters-long"
`

func writeConfig(t *testing.T, dbPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := strings.ReplaceAll(testConfigYAML, "%DB%", dbPath)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestParseFlags_Defaults(t *testing.T) {
	t.Setenv("ENIPBRIDGE_CONFIG", "")

	opts, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if opts.configPath != defaultConfigPath || !opts.autostart || opts.issueToken != "" {
		t.Errorf("opts = %+v", opts)
	}
}

func TestParseFlags_Overrides(t *testing.T) {
	t.Setenv("ENIPBRIDGE_CONFIG", "/etc/enipbridge/env.yaml")

	opts, err := parseFlags([]string{"-autostart=false", "-issue-token", "ops", "-token-ttl", "1h"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if opts.configPath != "/etc/enipbridge/env.yaml" {
		t.Errorf("configPath = %q, want env value", opts.configPath)
	}
	if opts.autostart || opts.issueToken != "ops" || opts.tokenTTL != time.Hour {
		t.Errorf("opts = %+v", opts)
	}

	opts, err = parseFlags([]string{"-config", "/tmp/explicit.yaml"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if opts.configPath != "/tmp/explicit.yaml" {
		t.Errorf("-config did not override env: %q", opts.configPath)
	}
}

func TestParseFlags_Unknown(t *testing.T) {
	if _, err := parseFlags([]string{"-bogus"}, io.Discard); err == nil {
		t.Error("parseFlags() should reject unknown flags")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, options{configPath: "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_MissingDatabasePath(t *testing.T) {
	path := writeConfig(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, options{configPath: path})
	if err == nil || !strings.Contains(err.Error(), "database") {
		t.Fatalf("run() error = %v, want database error", err)
	}
}

func TestIssueToken(t *testing.T) {
	path := writeConfig(t, filepath.Join(t.TempDir(), "events.db"))

	var out bytes.Buffer
	if err := issueToken(options{configPath: path, issueToken: "ops", tokenTTL: time.Hour}, &out); err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}
	token := strings.TrimSpace(out.String())
	if strings.Count(token, ".") != 2 {
		t.Errorf("token = %q, want a JWT", token)
	}
}
