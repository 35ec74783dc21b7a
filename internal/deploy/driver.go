// Package deploy drives the external deployment service: environment
// preparation and the setup, submit, agent-list and teardown tools.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"

	"flowkeeper/internal/config"
	"flowkeeper/internal/env"
	"flowkeeper/internal/logger"
	"flowkeeper/internal/utils"
)

var ErrMissingRoot = errors.New("deployment service root is not set")

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var (
	setupArgs    = []string{"start", "-s"}
	submitArgs   = []string{"--rms", "{{.RMS}}", "-n", "{{.Count}}"}
	infoArgs     = []string{"-l"}
	teardownArgs = []string{"stop"}
)

// toolData holds the values tool argument templates can reference.
type toolData struct {
	RMS          string
	Count        int
	TopologyFile string
}

// Driver runs the deployment tools with the prepared environment.
type Driver struct {
	cfg    config.DeployConfig
	runner Runner
	env    []string
}

func NewDriver(cfg config.DeployConfig, runner Runner) *Driver {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Driver{cfg: cfg, runner: runner}
}

/**
 * Prepare the deployment environment
 * @param {context.Context} ctx - Cancels the environment script
 * @returns {error} ErrMissingRoot when the root variable is unset, or the script error
 * @description
 * - Sources <root>/<env_script> in bash and captures the resulting environment
 * - Every KEY=VALUE line printed by env overrides the current environment for later tools
 */
func (d *Driver) Prepare(ctx context.Context) error {
	root, ok := env.DeploymentRoot(d.cfg.RootEnv)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingRoot, d.cfg.RootEnv)
	}
	logger.Infof("Setting up deployment environment from %s", root)

	script := "cd " + shellquote.Join(root) + " && source " + shellquote.Join("./"+d.cfg.EnvScript) + " > /dev/null 2>&1 && env"
	merged := envMap(os.Environ())
	keys := orderedKeys(os.Environ())

	err := d.runner.Run(ctx, nil, func(line string) {
		key, value, found := strings.Cut(line, "=")
		if !found || !envKeyPattern.MatchString(key) {
			return
		}
		if _, exists := merged[key]; !exists {
			keys = append(keys, key)
		}
		merged[key] = value
	}, "/bin/bash", "-c", script)
	if err != nil {
		return fmt.Errorf("source %s: %w", filepath.Join(root, d.cfg.EnvScript), err)
	}

	d.env = make([]string, 0, len(keys))
	for _, key := range keys {
		d.env = append(d.env, key+"="+merged[key])
	}
	return nil
}

// Env returns the prepared environment, or the current one before Prepare.
func (d *Driver) Env() []string {
	if d.env == nil {
		return os.Environ()
	}
	return append([]string(nil), d.env...)
}

// Setup starts the deployment server.
func (d *Driver) Setup(ctx context.Context) error {
	logger.Info("Starting deployment server")
	return d.tool(ctx, d.cfg.ServerTool, setupArgs, toolData{})
}

// Submit asks the deployment service for n agents.
func (d *Driver) Submit(ctx context.Context, n int) error {
	logger.Infof("Submitting %d agents to %s", n, d.cfg.RMS)
	return d.tool(ctx, d.cfg.SubmitTool, submitArgs, toolData{RMS: d.cfg.RMS, Count: n})
}

// ListAgents returns the agent list printed by the info tool.
func (d *Driver) ListAgents(ctx context.Context) ([]string, error) {
	logger.Info("Retrieving agents")
	var agents []string
	err := d.toolLines(ctx, d.cfg.InfoTool, infoArgs, toolData{}, func(line string) {
		if strings.TrimSpace(line) != "" {
			agents = append(agents, line)
		}
	})
	return agents, err
}

// Teardown stops the deployment server and its agents.
func (d *Driver) Teardown(ctx context.Context) error {
	logger.Info("Shutting down deployment cluster and server")
	return d.tool(ctx, d.cfg.ServerTool, teardownArgs, toolData{})
}

func (d *Driver) tool(ctx context.Context, command string, args []string, data toolData) error {
	return d.toolLines(ctx, command, args, data, nil)
}

func (d *Driver) toolLines(ctx context.Context, command string, args []string, data toolData, onLine func(string)) error {
	data.TopologyFile = d.cfg.TopologyFile
	name, argv, err := utils.RenderCommand(command, args, data)
	if err != nil {
		return err
	}
	err = d.runner.Run(ctx, d.Env(), func(line string) {
		logger.Debug(line)
		if onLine != nil {
			onLine(line)
		}
	}, name, argv...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(argv, " "), err)
	}
	return nil
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if key, value, ok := strings.Cut(kv, "="); ok {
			m[key] = value
		}
	}
	return m
}

func orderedKeys(environ []string) []string {
	keys := make([]string, 0, len(environ))
	seen := make(map[string]bool, len(environ))
	for _, kv := range environ {
		key, _, ok := strings.Cut(kv, "=")
		if ok && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}
