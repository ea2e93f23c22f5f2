package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeLogging()
	c.normalizeGates()
	c.normalizeEnforcement()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.GateQueueDir) == "" {
		c.Paths.GateQueueDir = defaultGateQueueDir
	}
	if c.Paths.GateQueueDir, err = expandPath(strings.TrimSpace(c.Paths.GateQueueDir)); err != nil {
		return fmt.Errorf("paths.gate_queue_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	dirs := make([]string, 0, len(c.Paths.ArtifactDirs))
	seen := make(map[string]struct{}, len(c.Paths.ArtifactDirs))
	for _, dir := range c.Paths.ArtifactDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		expanded, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("paths.artifact_dirs: %w", err)
		}
		if _, ok := seen[expanded]; ok {
			continue
		}
		seen[expanded] = struct{}{}
		dirs = append(dirs, expanded)
	}
	c.Paths.ArtifactDirs = dirs
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if c.Store.BusyTimeoutMS <= 0 {
		c.Store.BusyTimeoutMS = defaultBusyTimeoutMS
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func (c *Config) normalizeGates() {
	if len(c.Gates.Roles) == 0 {
		c.Gates.Roles = nil
		return
	}
	roles := make(map[string][]string, len(c.Gates.Roles))
	for gate, list := range c.Gates.Roles {
		gate = strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(gate)), "-", "_")
		cleaned := make([]string, 0, len(list))
		for _, role := range list {
			if role = strings.TrimSpace(role); role != "" {
				cleaned = append(cleaned, role)
			}
		}
		roles[gate] = cleaned
	}
	c.Gates.Roles = roles
}

func (c *Config) normalizeEnforcement() {
	if c.Enforcement.LeaseTimeoutSeconds <= 0 {
		c.Enforcement.LeaseTimeoutSeconds = defaultLeaseTimeoutSeconds
	}
	if c.Enforcement.SweepDebounceMillis <= 0 {
		c.Enforcement.SweepDebounceMillis = defaultSweepDebounceMillis
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}
