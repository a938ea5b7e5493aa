package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meetingflow/internal/auth"
)

func TestConfigInitWritesSample(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out := mustRunCLI(t, env.configPath, "config", "init", "--path", target)
	requireContains(t, out, "Wrote sample configuration to")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config: %v", err)
	}

	if _, _, err := runCLI(t, env.configPath, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}
	mustRunCLI(t, env.configPath, "config", "init", "--path", target, "--overwrite")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	env := setupCLITestEnv(t)

	out := mustRunCLI(t, env.configPath, "config", "show")
	requireContains(t, out, "# "+env.configPath)
	requireContains(t, out, "********")
	if strings.Contains(out, "test-signing-key") {
		t.Fatalf("signing key leaked in output:\n%s", out)
	}
}

func TestConfigValidate(t *testing.T) {
	env := setupCLITestEnv(t)
	out := mustRunCLI(t, env.configPath, "config", "validate")
	requireContains(t, out, "Configuration valid")

	broken := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(broken, []byte("[store]\ndriver = \"mysql\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := runCLI(t, broken, "config", "validate"); err == nil {
		t.Fatal("expected validation error for unsupported driver")
	}
}

func TestTokenCommandMintsValidToken(t *testing.T) {
	env := setupCLITestEnv(t)

	out := mustRunCLI(t, env.configPath, "token", "--actor", "scheduler", "--meeting", "7", "--event", "init_transcription")
	tokens, err := auth.NewTokenService(env.cfg.Auth)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	claims, err := tokens.ValidateToken(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Actor != "scheduler" || claims.MeetingID != 7 || claims.Event != "init_transcription" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
