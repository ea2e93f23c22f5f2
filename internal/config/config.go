package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directories the control plane reads and writes.
type Paths struct {
	StateDir     string   `toml:"state_dir" env:"GAVEL_STATE_DIR"`
	ArtifactDirs []string `toml:"artifact_dirs" env:"GAVEL_ARTIFACT_DIRS" envSeparator:":"`
	GateQueueDir string   `toml:"gate_queue_dir" env:"GAVEL_GATE_QUEUE_DIR"`
	LogDir       string   `toml:"log_dir" env:"GAVEL_LOG_DIR"`
}

// Store selects and tunes the workflow persistence backend.
type Store struct {
	Backend       string `toml:"backend" env:"GAVEL_STORE_BACKEND"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"GAVEL_LOG_FORMAT"`
	Level  string `toml:"level" env:"GAVEL_LOG_LEVEL"`
}

// Escalation contains the deterministic trigger thresholds.
type Escalation struct {
	ConfidenceThreshold      float64 `toml:"confidence_threshold"`
	AssumptionDriftThreshold float64 `toml:"assumption_drift_threshold"`
	// StderrAlerts controls the out-of-band notice printed for CRITICAL entries.
	StderrAlerts bool `toml:"stderr_alerts"`
}

// Gates overrides the built-in gate role requirements. A gate listed with an
// empty slice has no role requirement.
type Gates struct {
	Roles map[string][]string `toml:"roles"`
}

// Enforcement toggles the optional enforcement layers and lock timing.
type Enforcement struct {
	AuditOnTransition   bool `toml:"audit_on_transition"`
	LeaseTimeoutSeconds int  `toml:"lease_timeout_seconds"`
	SweepDebounceMillis int  `toml:"sweep_debounce_ms"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" env:"GAVEL_NTFY_TOPIC"`
	RequestTimeout int    `toml:"request_timeout"`
	Critical       bool   `toml:"critical"`
	High           bool   `toml:"high"`
}

// Config encapsulates all configuration values for gavel.
//
// Configuration sections by subsystem:
//   - Paths: state, artifact, gate queue, and log directories
//   - Store: workflow persistence backend
//   - Logging: log format and level
//   - Escalation: confidence and assumption drift thresholds
//   - Gates: per-gate approver role overrides
//   - Enforcement: audit-on-transition and lock timing
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Logging       Logging       `toml:"logging"`
	Escalation    Escalation    `toml:"escalation"`
	Gates         Gates         `toml:"gates"`
	Enforcement   Enforcement   `toml:"enforcement"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gavel/config.toml")
}

// Load locates, parses, and validates a configuration file. Environment
// variables override file values. The returned config has all path fields
// expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, "", false, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		if fromEnv, ok := os.LookupEnv("GAVEL_CONFIG"); ok {
			path = strings.TrimSpace(fromEnv)
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gavel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the control plane writes to.
// Artifact directories are owned by drafting collaborators and are only
// created on a best-effort basis.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.WorkflowDir(), c.LockDir(), c.Paths.GateQueueDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, dir := range c.Paths.ArtifactDirs {
		_ = os.MkdirAll(dir, 0o755)
	}
	return nil
}

// DatabasePath is the sqlite workflow store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "gavel.db")
}

// WorkflowDir holds one JSON document per workflow for the file backend.
func (c *Config) WorkflowDir() string {
	return filepath.Join(c.Paths.StateDir, "workflows")
}

// LockDir holds the per-workflow lease files.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

// AuditLogPath is the append-only audit log.
func (c *Config) AuditLogPath() string {
	return filepath.Join(c.Paths.LogDir, "audit.jsonl")
}

// EscalationLogPath is the append-only escalation log.
func (c *Config) EscalationLogPath() string {
	return filepath.Join(c.Paths.LogDir, "escalations.jsonl")
}

// ApplicationLogPath is the process log file.
func (c *Config) ApplicationLogPath() string {
	return filepath.Join(c.Paths.LogDir, "gavel.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
