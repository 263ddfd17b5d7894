package config

import (
	"fmt"
	"os"
)

// Validate checks internal consistency. Cross-registry references (tool
// keys, data-source paths) are validated again at Runtime construction when
// the registries exist; here we catch what the file alone can prove wrong.
func (c *Config) Validate() error {
	if len(c.LLMProviders) == 0 {
		return &ValidationError{Field: "llm_providers", Message: "at least one provider required"}
	}
	if _, ok := c.LLMProviders["llm"]; !ok {
		return &ValidationError{Field: "llm_providers", Message: `purpose "llm" must be configured`}
	}
	for purpose, p := range c.LLMProviders {
		if p.Model == "" {
			return &ValidationError{Field: "llm_providers." + purpose + ".model", Message: "required"}
		}
	}

	seen := make(map[string]bool, len(c.DataAgents))
	for _, da := range c.DataAgents {
		if da.AgentName == "" {
			return &ValidationError{Field: "data_agents.agent_name", Message: "required"}
		}
		if seen[da.AgentName] {
			return &ValidationError{Field: "data_agents", Message: fmt.Sprintf("duplicate agent name %q", da.AgentName)}
		}
		seen[da.AgentName] = true
		if len(da.DataSourceList) == 0 {
			return &ValidationError{Field: "data_agents." + da.AgentName, Message: "data_source_list is empty"}
		}
	}

	seen = make(map[string]bool, len(c.Research.Agents))
	for _, ra := range c.Research.Agents {
		if ra.AgentName == "" {
			return &ValidationError{Field: "research.agents.agent_name", Message: "required"}
		}
		if seen[ra.AgentName] {
			return &ValidationError{Field: "research.agents", Message: fmt.Sprintf("duplicate agent name %q", ra.AgentName)}
		}
		seen[ra.AgentName] = true
	}

	if c.Contest.NumJudgers < 1 {
		return &ValidationError{Field: "contest.num_judgers", Message: "must be >= 1"}
	}
	if c.Market.Name == "" {
		return &ValidationError{Field: "market.name", Message: "required"}
	}
	return nil
}

// ResolveAPIKey returns the provider's API key, preferring the environment
// variable when named.
func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKeyEnv != "" {
		if v := os.Getenv(p.APIKeyEnv); v != "" {
			return v
		}
	}
	return p.APIKey
}

// ResolveSlackToken returns the Slack token from the configured env var.
func (s SlackConfig) ResolveSlackToken() string {
	if s.TokenEnv == "" {
		return ""
	}
	return os.Getenv(s.TokenEnv)
}
