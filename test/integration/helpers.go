//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestConfig holds configuration for integration tests.
type TestConfig struct {
	Endpoint    string
	Token       string
	CatalogPath string
	Verbose     bool
}

// LoadTestConfig loads configuration from environment variables.
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		Endpoint:    os.Getenv("CATALOG_TEST_API"),
		Token:       os.Getenv("CATALOG_TEST_TOKEN"),
		CatalogPath: getCatalogPath(),
		Verbose:     os.Getenv("CATALOG_VERBOSE") == "true",
	}
}

// getCatalogPath determines the path to the catalog binary.
func getCatalogPath() string {
	if path := os.Getenv("CATALOG_BINARY_PATH"); path != "" {
		return path
	}

	for _, candidate := range []string{"../../catalog", "./catalog", "../catalog"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "catalog"
}

// SkipIfMissingConfig skips the test if the tenant or binary is missing.
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	t.Helper()

	if config.Endpoint == "" || config.Token == "" {
		t.Skip("CATALOG_TEST_API or CATALOG_TEST_TOKEN not set, skipping integration test")
	}

	if _, err := exec.LookPath(config.CatalogPath); err != nil {
		t.Skipf("catalog binary not found at %s, skipping integration test", config.CatalogPath)
	}
}

// CommandRunner runs catalog commands against an isolated config file.
type CommandRunner struct {
	config     *TestConfig
	configFile string
	t          *testing.T
}

// NewCommandRunner creates a new command runner.
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	t.Helper()

	return &CommandRunner{
		config:     config,
		configFile: filepath.Join(t.TempDir(), "config.yml"),
		t:          t,
	}
}

// Run executes a catalog command and returns its output.
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	args = append([]string{"--config", runner.configFile}, args...)

	// #nosec G204 -- test binary path and arguments are controlled by the test
	cmd := exec.Command(runner.config.CatalogPath, args...)

	var stdoutBuf, stderrBuf bytes.Buffer

	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.CatalogPath, strings.Join(args, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// RunJSON executes a catalog command with JSON output and decodes it into v.
func (runner *CommandRunner) RunJSON(v interface{}, args ...string) error {
	stdout, stderr, err := runner.Run(append(args, "--output", "json")...)
	if err != nil {
		return fmt.Errorf("%w: %s", err, stderr)
	}

	err = json.Unmarshal([]byte(stdout), v)
	if err != nil {
		return fmt.Errorf("decoding %q: %w", stdout, err)
	}

	return nil
}

// Login stores the test tenant as the current target.
func (runner *CommandRunner) Login() error {
	_, stderr, err := runner.Run("login", "--api", runner.config.Endpoint, "--token", runner.config.Token, "--name", "it")
	if err != nil {
		return fmt.Errorf("failed to log in: %s", stderr)
	}

	return nil
}
