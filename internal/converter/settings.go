package converter

import "layerforge/internal/config"

// Settings are the decision thresholds and completion budgets.
type Settings struct {
	MinContentBytes          int
	SourceDiffRatioThreshold float64
	MatchRateOK              int
	MatchRateNG              int
	MaxPatchPromptChars      int
	MaxTokens                int
	MaxTokensProposeDiff     int
	MaxTokensMatchRate       int
	Temperature              float64
	ApplyTemperature         float64
}

// DefaultSettings mirrors the repository defaults.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Default().Generation)
}

// SettingsFromConfig copies the [generation] section.
func SettingsFromConfig(gen config.Generation) Settings {
	return Settings{
		MinContentBytes:          gen.MinContentBytes,
		SourceDiffRatioThreshold: gen.SourceDiffRatioThreshold,
		MatchRateOK:              gen.MatchRateOK,
		MatchRateNG:              gen.MatchRateNG,
		MaxPatchPromptChars:      gen.MaxPatchPromptChars,
		MaxTokens:                gen.MaxTokens,
		MaxTokensProposeDiff:     gen.MaxTokensProposeDiff,
		MaxTokensMatchRate:       gen.MaxTokensMatchRate,
		Temperature:              gen.Temperature,
		ApplyTemperature:         gen.ApplyTemperature,
	}
}
