package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = env.run(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}
	if _, _, err := env.run(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigInitSkipsBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.toml")
	if err := os.WriteFile(broken, []byte("[paths\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(dir, "fresh.toml")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, broken); err != nil {
		t.Fatalf("config init should not load the config: %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "validate"}, broken); err == nil {
		t.Fatal("expected validate to fail on a malformed config")
	}
}

func TestDoctorPassesOnFreshConfig(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := env.run(t, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "Invariant table")
	requireContains(t, out, "Gate queue HR_RELEASE")

	out, _, err = env.run(t, "doctor", "--notify")
	if err != nil {
		t.Fatalf("doctor --notify: %v", err)
	}
	requireContains(t, out, "no ntfy topic configured")
}

func TestDoctorReportsUnusableArtifactDirectory(t *testing.T) {
	env := setupCLITestEnv(t)
	// A file where the directory should be survives EnsureDirectories.
	if err := os.RemoveAll(env.artifactDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.artifactDir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err := env.run(t, "doctor")
	if err == nil {
		t.Fatal("expected doctor to fail")
	}
	requireContains(t, out, "FAIL")
}
