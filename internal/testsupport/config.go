package testsupport

import (
	"path/filepath"
	"testing"

	"gavel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Directories are created; notifications stay disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.ArtifactDirs = []string{filepath.Join(base, "artifacts")}
	cfgVal.Paths.GateQueueDir = filepath.Join(base, "review_queue")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Escalation.StderrAlerts = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithBackend selects the workflow store backend.
func WithBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = backend
	}
}

// WithGateRoles overrides the approver roles for one gate.
func WithGateRoles(gate string, roles ...string) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Gates.Roles == nil {
			b.cfg.Gates.Roles = map[string][]string{}
		}
		b.cfg.Gates.Roles[gate] = append([]string{}, roles...)
	}
}

// WithoutTransitionAudit turns off the audit check during transitions.
func WithoutTransitionAudit() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Enforcement.AuditOnTransition = false
	}
}

// WithNtfyTopic points notifications at topic.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// ArtifactDir returns the first artifact directory of cfg.
func ArtifactDir(cfg *config.Config) string {
	return cfg.Paths.ArtifactDirs[0]
}
