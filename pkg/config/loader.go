package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads, expands, parses, and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(ExpandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	if cfg.Research.BeliefListPath != "" {
		beliefs, err := loadBeliefList(resolveRelative(path, cfg.Research.BeliefListPath))
		if err != nil {
			return nil, err
		}
		cfg.Research.Agents = mergeResearchAgents(beliefs, cfg.Research.Agents)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadBeliefList reads a standalone YAML list of research agents.
func loadBeliefList(path string) ([]ResearchAgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read belief list %s: %w", path, err)
	}
	var beliefs []ResearchAgentConfig
	if err := yaml.Unmarshal(ExpandEnv(data), &beliefs); err != nil {
		return nil, fmt.Errorf("%w: belief list %s: %v", ErrInvalidYAML, path, err)
	}
	return beliefs, nil
}

// mergeResearchAgents combines the belief-list entries with inline agents;
// inline entries win on name clash.
func mergeResearchAgents(fromFile, inline []ResearchAgentConfig) []ResearchAgentConfig {
	byName := make(map[string]int, len(fromFile))
	merged := make([]ResearchAgentConfig, len(fromFile))
	copy(merged, fromFile)
	for i, a := range merged {
		byName[a.AgentName] = i
	}
	for _, a := range inline {
		if i, ok := byName[a.AgentName]; ok {
			merged[i] = a
			continue
		}
		byName[a.AgentName] = len(merged)
		merged = append(merged, a)
	}
	return merged
}

func resolveRelative(configPath, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

func applyDefaults(cfg *Config) {
	if cfg.System.ArtifactDir == "" {
		cfg.System.ArtifactDir = "./artifacts"
	}
	if cfg.System.LogLevel == "" {
		cfg.System.LogLevel = "info"
	}
	if cfg.System.Language == "" {
		cfg.System.Language = "en"
	}
	for i, da := range cfg.DataAgents {
		cfg.DataAgents[i] = da.Normalized()
	}
	if cfg.Research.MaxReactStep <= 0 {
		cfg.Research.MaxReactStep = DefaultMaxReactStep
	}
	if cfg.Contest.WindowDays <= 0 {
		cfg.Contest.WindowDays = DefaultWindowDays
	}
	if cfg.Contest.NumJudgers <= 0 {
		cfg.Contest.NumJudgers = DefaultNumJudgers
	}
}
