package config

const (
	defaultConfigPath               = "~/.config/layerforge/config.toml"
	defaultWorkDir                  = "."
	defaultGrimoireDir              = "~/.config/layerforge/grimoires"
	defaultLogDir                   = "~/.local/share/layerforge/logs"
	defaultModel                    = "claude-3-5-sonnet-latest"
	defaultLiteModel                = "claude-3-5-haiku-latest"
	defaultSmartModel               = "claude-3-opus-latest"
	defaultLLMTimeoutSeconds        = 120
	defaultLLMRetryAttempts         = 3
	defaultBreakerFailures          = 3
	defaultBreakerCooldownSeconds   = 60
	defaultResponseCacheMB          = 16
	defaultMaxTokens                = 4000
	defaultMaxTokensProposeDiff     = 1000
	defaultMaxTokensMatchRate       = 16
	defaultTemperature              = 0.7
	defaultApplyTemperature         = 0.3
	defaultMinContentBytes          = 100
	defaultSourceDiffRatioThreshold = 0.1
	defaultMatchRateOK              = 90
	defaultMatchRateNG              = 50
	defaultMaxPatchPromptChars      = 5000
	defaultMaxConcurrency           = 4
	defaultAutofixTimeoutSeconds    = 60
	defaultAutofixFixAttempts       = 3
	defaultAutofixReasonAttempts    = 3
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults. Model names are
// left empty so normalize can apply the MODEL_NAME* environment overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:     defaultWorkDir,
			GrimoireDir: defaultGrimoireDir,
			LogDir:      defaultLogDir,
		},
		LLM: LLM{
			TimeoutSeconds:         defaultLLMTimeoutSeconds,
			RetryAttempts:          defaultLLMRetryAttempts,
			BreakerFailures:        defaultBreakerFailures,
			BreakerCooldownSeconds: defaultBreakerCooldownSeconds,
			ResponseCacheMB:        defaultResponseCacheMB,
		},
		Generation: Generation{
			MaxTokens:                defaultMaxTokens,
			MaxTokensProposeDiff:     defaultMaxTokensProposeDiff,
			MaxTokensMatchRate:       defaultMaxTokensMatchRate,
			Temperature:              defaultTemperature,
			ApplyTemperature:         defaultApplyTemperature,
			MinContentBytes:          defaultMinContentBytes,
			SourceDiffRatioThreshold: defaultSourceDiffRatioThreshold,
			MatchRateOK:              defaultMatchRateOK,
			MatchRateNG:              defaultMatchRateNG,
			MaxPatchPromptChars:      defaultMaxPatchPromptChars,
		},
		Workflow: Workflow{
			MaxConcurrency: defaultMaxConcurrency,
		},
		Autofix: Autofix{
			Enabled:           false,
			TimeoutSeconds:    defaultAutofixTimeoutSeconds,
			MaxFixAttempts:    defaultAutofixFixAttempts,
			MaxReasonAttempts: defaultAutofixReasonAttempts,
		},
		Cleanup: Cleanup{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// ProviderDefaults describes how an env-declared provider becomes a route.
type ProviderDefaults struct {
	Provider string
	EnvKey   string
	Model    string
	BaseURL  string
	RPM      int
	TPM      int
}

// KnownProviders lists the providers a route may target, in fallback order.
var KnownProviders = []ProviderDefaults{
	{Provider: "anthropic", EnvKey: "ANTHROPIC_API_KEY", Model: "claude-3-5-sonnet-latest", RPM: 50, TPM: 40000},
	{Provider: "openai", EnvKey: "OPENAI_API_KEY", Model: "gpt-4o-mini", BaseURL: "https://api.openai.com/v1/chat/completions", RPM: 500, TPM: 200000},
	{Provider: "groq", EnvKey: "GROQ_API_KEY", Model: "llama-3.1-70b-versatile", BaseURL: "https://api.groq.com/openai/v1/chat/completions", RPM: 30, TPM: 6000},
	{Provider: "gemini", EnvKey: "GEMINI_API_KEY", Model: "gemini-1.5-flash-latest", BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions", RPM: 15, TPM: 1000000},
	{Provider: "openrouter", EnvKey: "OPENROUTER_API_KEY", Model: "openrouter/auto", BaseURL: "https://openrouter.ai/api/v1/chat/completions", RPM: 200, TPM: 1000000},
}

// LookupProvider returns the defaults for a provider name.
func LookupProvider(provider string) (ProviderDefaults, bool) {
	for _, p := range KnownProviders {
		if p.Provider == provider {
			return p, true
		}
	}
	return ProviderDefaults{}, false
}

func defaultInterpreters() map[string]string {
	return map[string]string{
		".py": "python3",
		".sh": "bash",
		".rb": "ruby",
	}
}
