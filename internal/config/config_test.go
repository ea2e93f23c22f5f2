package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"gavel/internal/config"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"GAVEL_CONFIG", "GAVEL_STATE_DIR", "GAVEL_ARTIFACT_DIRS", "GAVEL_GATE_QUEUE_DIR",
		"GAVEL_LOG_DIR", "GAVEL_STORE_BACKEND", "GAVEL_LOG_LEVEL", "GAVEL_LOG_FORMAT", "GAVEL_NTFY_TOPIC",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return home
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	home := isolateEnv(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(home, ".local", "share", "gavel", "state")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if len(cfg.Paths.ArtifactDirs) != 1 || !strings.HasPrefix(cfg.Paths.ArtifactDirs[0], home) {
		t.Fatalf("unexpected artifact dirs: %v", cfg.Paths.ArtifactDirs)
	}
	if cfg.Store.Backend != config.BackendSQLite {
		t.Fatalf("expected sqlite backend by default, got %q", cfg.Store.Backend)
	}
	if cfg.Escalation.ConfidenceThreshold != 0.70 || cfg.Escalation.AssumptionDriftThreshold != 0.20 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Escalation)
	}
	if !cfg.Enforcement.AuditOnTransition {
		t.Fatal("expected audit_on_transition enabled by default")
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "gavel.db") {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath())
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	home := isolateEnv(t)
	path := filepath.Join(home, "gavel.toml")
	body := `
[paths]
state_dir = "~/campaign/state"
artifact_dirs = ["~/campaign/artifacts", "~/campaign/artifacts", "~/shared"]

[store]
backend = "FILE"

[logging]
level = "DEBUG"

[gates.roles]
hr-pre = ["Field Director", " "]
HR_MSG = []
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GAVEL_LOG_FORMAT", "json")
	t.Setenv("GAVEL_GATE_QUEUE_DIR", filepath.Join(home, "queues"))

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected file %q to be used, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Paths.StateDir != filepath.Join(home, "campaign", "state") {
		t.Fatalf("unexpected state dir %q", cfg.Paths.StateDir)
	}
	if len(cfg.Paths.ArtifactDirs) != 2 {
		t.Fatalf("expected duplicate artifact dirs collapsed, got %v", cfg.Paths.ArtifactDirs)
	}
	if cfg.Store.Backend != config.BackendFile {
		t.Fatalf("expected file backend, got %q", cfg.Store.Backend)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging %+v", cfg.Logging)
	}
	if cfg.Paths.GateQueueDir != filepath.Join(home, "queues") {
		t.Fatalf("env override not applied: %q", cfg.Paths.GateQueueDir)
	}
	if got := cfg.Gates.Roles["HR_PRE"]; !slices.Equal(got, []string{"Field Director"}) {
		t.Fatalf("unexpected HR_PRE roles %v", got)
	}
	if got, ok := cfg.Gates.Roles["HR_MSG"]; !ok || len(got) != 0 {
		t.Fatalf("expected explicit empty HR_MSG roles, got %v (present=%v)", got, ok)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"backend", "[store]\nbackend = \"postgres\"\n", "store.backend"},
		{"format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"confidence", "[escalation]\nconfidence_threshold = 1.5\n", "escalation.confidence_threshold"},
		{"ntfy", "[notifications]\nntfy_topic = \"not a url\"\n", "notifications.ntfy_topic"},
		{"unknown key", "[paths]\nstaging_dir = \"/tmp\"\n", "parse config"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			home := isolateEnv(t)
			path := filepath.Join(home, "gavel.toml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatal(err)
			}
			_, _, _, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleParsesAndMatchesDefaults(t *testing.T) {
	home := isolateEnv(t)
	path := filepath.Join(home, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	def := config.Default()
	if parsed.Store.Backend != def.Store.Backend || parsed.Escalation.ConfidenceThreshold != def.Escalation.ConfidenceThreshold {
		t.Fatalf("sample config drifted from defaults: %+v", parsed)
	}

	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("Load(sample): %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	home := isolateEnv(t)
	t.Setenv("GAVEL_STATE_DIR", filepath.Join(home, "state"))
	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.WorkflowDir(), cfg.LockDir(), cfg.Paths.GateQueueDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
