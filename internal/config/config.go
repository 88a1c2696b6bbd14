package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir     string `toml:"work_dir"`
	GrimoireDir string `toml:"grimoire_dir"`
	LogDir      string `toml:"log_dir"`
}

// Route declares one model group the router may send completions to.
type Route struct {
	Name     string `toml:"name"`
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	// RPM and TPM are per-minute request and token budgets. Zero disables the limit.
	RPM int `toml:"rpm"`
	TPM int `toml:"tpm"`
}

// LLM contains router and provider connection settings.
type LLM struct {
	Model                  string  `toml:"model"`
	LiteModel              string  `toml:"lite_model"`
	SmartModel             string  `toml:"smart_model"`
	TimeoutSeconds         int     `toml:"timeout_seconds"`
	RetryAttempts          int     `toml:"retry_attempts"`
	BreakerFailures        int     `toml:"breaker_failures"`
	BreakerCooldownSeconds int     `toml:"breaker_cooldown_seconds"`
	ResponseCacheMB        int     `toml:"response_cache_mb"`
	Routes                 []Route `toml:"routes"`
}

// Generation contains the decision engine thresholds and completion budgets.
type Generation struct {
	MaxTokens                int     `toml:"max_tokens"`
	MaxTokensProposeDiff     int     `toml:"max_tokens_propose_diff"`
	MaxTokensMatchRate       int     `toml:"max_tokens_match_rate"`
	Temperature              float64 `toml:"temperature"`
	ApplyTemperature         float64 `toml:"apply_temperature"`
	MinContentBytes          int     `toml:"min_content_bytes"`
	SourceDiffRatioThreshold float64 `toml:"source_diff_ratio_threshold"`
	MatchRateOK              int     `toml:"match_rate_ok"`
	MatchRateNG              int     `toml:"match_rate_ng"`
	MaxPatchPromptChars      int     `toml:"max_patch_prompt_chars"`
	Language                 string  `toml:"language"`
}

// Workflow contains orchestration settings.
type Workflow struct {
	MaxConcurrency      int `toml:"max_concurrency"`
	LayerTimeoutSeconds int `toml:"layer_timeout_seconds"`
}

// Autofix contains settings for executing generated code and repairing failures.
type Autofix struct {
	Enabled           bool              `toml:"enabled"`
	TimeoutSeconds    int               `toml:"timeout_seconds"`
	MaxFixAttempts    int               `toml:"max_fix_attempts"`
	MaxReasonAttempts int               `toml:"max_reason_attempts"`
	Interpreters      map[string]string `toml:"interpreters"`
}

// Cleanup contains settings for the clean-up layer.
type Cleanup struct {
	Enabled bool `toml:"enabled"`
	DryRun  bool `toml:"dry_run"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for layerforge.
//
// Configuration sections by subsystem:
//   - Paths: work directory, grimoire directory, logs
//   - LLM: model names, router routes, retries, breaker, response cache
//   - Generation: token budgets and the regenerate/diff thresholds
//   - Workflow: fan-out concurrency and layer deadlines
//   - Autofix: generated code execution and repair loop
//   - Cleanup: pruning of files not listed in the manifest
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	LLM        LLM        `toml:"llm"`
	Generation Generation `toml:"generation"`
	Workflow   Workflow   `toml:"workflow"`
	Autofix    Autofix    `toml:"autofix"`
	Cleanup    Cleanup    `toml:"cleanup"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("layerforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the persisted work-directory layout and the log directory.
func (c *Config) EnsureDirectories() error {
	dirs := append(c.Layout().Dirs(), c.Paths.LogDir)
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
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

// RouteByName returns the configured route with the given name.
func (c *Config) RouteByName(name string) (Route, bool) {
	name = strings.TrimSpace(name)
	for _, route := range c.LLM.Routes {
		if route.Name == name {
			return route, true
		}
	}
	return Route{}, false
}
