package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateAutofix(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.TimeoutSeconds < 0 {
		return errors.New("llm.timeout_seconds must be zero or positive")
	}
	if c.LLM.RetryAttempts < 0 {
		return errors.New("llm.retry_attempts must be zero or positive")
	}
	if c.LLM.BreakerFailures < 0 || c.LLM.BreakerCooldownSeconds < 0 {
		return errors.New("llm.breaker_failures and llm.breaker_cooldown_seconds must be zero or positive")
	}
	if c.LLM.ResponseCacheMB < 0 {
		return errors.New("llm.response_cache_mb must be zero or positive")
	}
	for i, route := range c.LLM.Routes {
		if _, ok := LookupProvider(route.Provider); !ok {
			return fmt.Errorf("llm.routes[%d]: unsupported provider %q", i, route.Provider)
		}
		if route.Model == "" {
			return fmt.Errorf("llm.routes[%d] (%s): model must be set", i, route.Name)
		}
		if route.RPM < 0 || route.TPM < 0 {
			return fmt.Errorf("llm.routes[%d] (%s): rpm and tpm must be zero or positive", i, route.Name)
		}
	}
	return nil
}

func (c *Config) validateGeneration() error {
	g := c.Generation
	if g.MaxTokens <= 0 || g.MaxTokensProposeDiff <= 0 || g.MaxTokensMatchRate <= 0 {
		return errors.New("generation max token budgets must be positive")
	}
	if g.Temperature < 0 || g.Temperature > 2 || g.ApplyTemperature < 0 || g.ApplyTemperature > 2 {
		return errors.New("generation temperatures must be between 0 and 2")
	}
	if g.MinContentBytes < 0 {
		return errors.New("generation.min_content_bytes must be zero or positive")
	}
	if g.SourceDiffRatioThreshold <= 0 || g.SourceDiffRatioThreshold > 1 {
		return errors.New("generation.source_diff_ratio_threshold must be within (0, 1]")
	}
	if g.MatchRateNG < 0 || g.MatchRateOK > 100 || g.MatchRateNG > g.MatchRateOK {
		return errors.New("generation match rate thresholds must satisfy 0 <= match_rate_ng <= match_rate_ok <= 100")
	}
	if g.MaxPatchPromptChars <= 0 {
		return errors.New("generation.max_patch_prompt_chars must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxConcurrency <= 0 {
		return errors.New("workflow.max_concurrency must be positive")
	}
	if c.Workflow.LayerTimeoutSeconds < 0 {
		return errors.New("workflow.layer_timeout_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateAutofix() error {
	if !c.Autofix.Enabled {
		return nil
	}
	if c.Autofix.TimeoutSeconds <= 0 {
		return errors.New("autofix.timeout_seconds must be positive")
	}
	if c.Autofix.MaxFixAttempts < 0 || c.Autofix.MaxReasonAttempts < 0 {
		return errors.New("autofix attempt limits must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
