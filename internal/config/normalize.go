package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeModels()
	c.normalizeRoutes()
	c.normalizeGeneration()
	c.normalizeAutofix()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.GrimoireDir) == "" {
		c.Paths.GrimoireDir = defaultGrimoireDir
	}
	if c.Paths.GrimoireDir, err = expandPath(c.Paths.GrimoireDir); err != nil {
		return fmt.Errorf("paths.grimoire_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeModels() {
	c.LLM.Model = firstSet(c.LLM.Model, "MODEL_NAME", defaultModel)
	c.LLM.LiteModel = firstSet(c.LLM.LiteModel, "MODEL_NAME_LITE", defaultLiteModel)
	c.LLM.SmartModel = firstSet(c.LLM.SmartModel, "MODEL_NAME_SMART", defaultSmartModel)
}

// firstSet prefers the configured value, then the environment, then the fallback.
func firstSet(value, envKey, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	if env, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(env) != "" {
		return strings.TrimSpace(env)
	}
	return fallback
}

func (c *Config) normalizeRoutes() {
	seenProviders := make(map[string]struct{}, len(c.LLM.Routes))
	seenNames := make(map[string]int, len(c.LLM.Routes))
	routes := make([]Route, 0, len(c.LLM.Routes)+len(KnownProviders))
	for _, route := range c.LLM.Routes {
		route.Provider = strings.ToLower(strings.TrimSpace(route.Provider))
		route.Model = strings.TrimSpace(route.Model)
		route.BaseURL = strings.TrimSpace(route.BaseURL)
		route.APIKey = strings.TrimSpace(route.APIKey)
		route.Name = strings.TrimSpace(route.Name)
		if defaults, ok := LookupProvider(route.Provider); ok {
			if route.APIKey == "" {
				if value, ok := os.LookupEnv(defaults.EnvKey); ok {
					route.APIKey = strings.TrimSpace(value)
				}
			}
			if route.BaseURL == "" {
				route.BaseURL = defaults.BaseURL
			}
			if route.Model == "" {
				route.Model = defaults.Model
			}
		}
		if route.Name == "" {
			route.Name = route.Provider
		}
		if n := seenNames[route.Name]; n > 0 {
			route.Name = fmt.Sprintf("%s-%d", route.Name, n+1)
		}
		seenNames[route.Name]++
		seenProviders[route.Provider] = struct{}{}
		routes = append(routes, route)
	}

	// Providers declared only through their API key env var become routes too.
	for _, defaults := range KnownProviders {
		if _, ok := seenProviders[defaults.Provider]; ok {
			continue
		}
		value, ok := os.LookupEnv(defaults.EnvKey)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		routes = append(routes, Route{
			Name:     defaults.Provider,
			Provider: defaults.Provider,
			Model:    defaults.Model,
			APIKey:   strings.TrimSpace(value),
			BaseURL:  defaults.BaseURL,
			RPM:      defaults.RPM,
			TPM:      defaults.TPM,
		})
	}
	c.LLM.Routes = routes
}

func (c *Config) normalizeGeneration() {
	c.Generation.Language = strings.TrimSpace(c.Generation.Language)
	if c.Workflow.MaxConcurrency <= 0 {
		c.Workflow.MaxConcurrency = defaultMaxConcurrency
	}
}

func (c *Config) normalizeAutofix() {
	if len(c.Autofix.Interpreters) == 0 {
		c.Autofix.Interpreters = defaultInterpreters()
		return
	}
	normalized := make(map[string]string, len(c.Autofix.Interpreters))
	for ext, command := range c.Autofix.Interpreters {
		ext = strings.ToLower(strings.TrimSpace(ext))
		command = strings.TrimSpace(command)
		if ext == "" || command == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[ext] = command
	}
	c.Autofix.Interpreters = normalized
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
