package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"gavel/internal/config"
	"gavel/internal/logging"
	"gavel/internal/workflow"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// withRuntime opens the control plane for the duration of fn. Application
// logs go to the log file, and to stderr as well with --verbose.
func (c *commandContext) withRuntime(cmd *cobra.Command, fn func(*workflow.Runtime) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	opts := logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{cfg.ApplicationLogPath()},
	}
	if c.verbose != nil && *c.verbose {
		opts.Writer = cmd.ErrOrStderr()
	}
	logger, err := logging.New(opts)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	rt, err := workflow.Open(cfg, logger, workflow.WithAlerts(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
