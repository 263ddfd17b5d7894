// Package config loads and validates the pipeline's single YAML
// configuration file: system settings, LLM providers, the data-agent and
// research-agent pools, the contest, and the market description.
package config

// Config is the umbrella configuration object returned by Load and threaded
// through the Runtime. Read-only after loading.
type Config struct {
	System        SystemConfig              `yaml:"system"`
	LLMProviders  map[string]ProviderConfig `yaml:"llm_providers"`
	DataAgents    []DataAgentConfig         `yaml:"data_agents"`
	Research      ResearchConfig            `yaml:"research"`
	Contest       ContestConfig             `yaml:"contest"`
	Market        MarketConfig              `yaml:"market"`
	Slack         SlackConfig               `yaml:"slack,omitempty"`
	Schedule      ScheduleConfig            `yaml:"schedule,omitempty"`
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	// ArtifactDir is the root of the on-disk artifact tree.
	ArtifactDir string `yaml:"artifact_dir"`
	// CacheDB is the sqlite file backing the data-source cache.
	CacheDB string `yaml:"cache_db,omitempty"`
	// SourceDataDir is where file-backed data sources look for row dumps.
	SourceDataDir string `yaml:"source_data_dir,omitempty"`
	// ListenAddr is the ops API address (empty disables the server).
	ListenAddr string `yaml:"listen_addr,omitempty"`
	// LogLevel: debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`
	// Language for prompts and reports (e.g. "en", "zh").
	Language string `yaml:"language,omitempty"`
	// MaxInflightLLM caps concurrent LLM calls process-wide (0 = uncapped).
	MaxInflightLLM int `yaml:"max_inflight_llm,omitempty"`
}

// ProviderConfig defines one OpenAI-compatible LLM endpoint. Keys in
// Config.LLMProviders are purposes: llm, llm-thinking, vlm.
type ProviderConfig struct {
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable carrying the key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	// APIKey is an inline key; APIKeyEnv wins when both are set.
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// DataAgentConfig configures one data-analysis agent.
type DataAgentConfig struct {
	AgentName      string   `yaml:"agent_name"`
	DataSourceList []string `yaml:"data_source_list"`
	BiasGoal       string   `yaml:"bias_goal,omitempty"`

	// Batch pipeline knobs. Zero values take the package defaults.
	MaxConcurrentTasks  int `yaml:"max_concurrent_tasks,omitempty"`
	CreditsPerBatch     int `yaml:"credits_per_batch,omitempty"`
	LLMCallsPerBatch    int `yaml:"llm_calls_per_batch,omitempty"`
	ContentCutoffLength int `yaml:"content_cutoff_length,omitempty"`
	MaxLLMContext       int `yaml:"max_llm_context,omitempty"`
	FinalTargetTokens   int `yaml:"final_target_tokens,omitempty"`
}

// Data-agent defaults (sizes are character counts used as a token proxy).
const (
	DefaultMaxConcurrentTasks  = 6
	DefaultCreditsPerBatch     = 10
	DefaultLLMCallsPerBatch    = 2
	DefaultContentCutoffLength = 2000
	DefaultMaxLLMContext       = 28000
	DefaultFinalTargetTokens   = 4000
)

// BatchCount derives the number of batches from the credit budget.
func (c DataAgentConfig) BatchCount() int {
	credits := c.CreditsPerBatch
	if credits <= 0 {
		credits = DefaultCreditsPerBatch
	}
	calls := c.LLMCallsPerBatch
	if calls <= 0 {
		calls = DefaultLLMCallsPerBatch
	}
	return credits/calls + 1
}

// Normalized returns a copy with all zero fields replaced by defaults.
func (c DataAgentConfig) Normalized() DataAgentConfig {
	out := c
	if out.MaxConcurrentTasks <= 0 {
		out.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}
	if out.CreditsPerBatch <= 0 {
		out.CreditsPerBatch = DefaultCreditsPerBatch
	}
	if out.LLMCallsPerBatch <= 0 {
		out.LLMCallsPerBatch = DefaultLLMCallsPerBatch
	}
	if out.ContentCutoffLength <= 0 {
		out.ContentCutoffLength = DefaultContentCutoffLength
	}
	if out.MaxLLMContext <= 0 {
		out.MaxLLMContext = DefaultMaxLLMContext
	}
	if out.FinalTargetTokens <= 0 {
		out.FinalTargetTokens = DefaultFinalTargetTokens
	}
	return out
}

// ResearchConfig configures the research-agent pool.
type ResearchConfig struct {
	MaxReactStep   int      `yaml:"max_react_step,omitempty"`
	Tools          []string `yaml:"tools"`
	OutputLanguage string   `yaml:"output_language,omitempty"`
	Plan           bool     `yaml:"plan"`
	React          bool     `yaml:"react"`
	// BeliefListPath points at a YAML file of ResearchAgentConfig entries;
	// Agents may also be given inline. Inline entries win on name clash.
	BeliefListPath string                `yaml:"belief_list_path,omitempty"`
	Agents         []ResearchAgentConfig `yaml:"agents,omitempty"`
}

// DefaultMaxReactStep bounds the ReAct loop.
const DefaultMaxReactStep = 25

// ResearchAgentConfig is one research agent: a name, its standing belief,
// and an optional task override.
type ResearchAgentConfig struct {
	AgentName string `yaml:"agent_name"`
	Belief    string `yaml:"belief,omitempty"`
	Task      string `yaml:"task,omitempty"`
}

// ContestConfig configures judging and weight allocation.
type ContestConfig struct {
	// WindowDays is the historical-reward lookback in trading days.
	WindowDays int `yaml:"window_days,omitempty"`
	NumJudgers int `yaml:"num_judgers,omitempty"`
	// ModelDir holds the predictor's mean/std regression model files.
	ModelDir string `yaml:"model_dir"`
	// Backfill re-runs research agents for reward-window gaps before
	// judging. Best-effort and off by default: it can be LLM-expensive.
	Backfill bool `yaml:"backfill,omitempty"`
	// JudgerTemperature spreads the ensemble (nil = provider default).
	JudgerTemperature *float64 `yaml:"judger_temperature,omitempty"`
}

// Contest defaults.
const (
	DefaultWindowDays = 5
	DefaultNumJudgers = 5
)

// MarketConfig describes the traded market.
type MarketConfig struct {
	Name          string            `yaml:"name"`
	TargetSymbols []string          `yaml:"target_symbols"`
	CustomSymbols map[string]string `yaml:"custom_symbols,omitempty"` // name → code
	Holidays      []string          `yaml:"holidays,omitempty"`       // YYYY-MM-DD
	TradingCost   float64           `yaml:"trading_cost,omitempty"`
}

// SlackConfig enables run notifications when both fields resolve.
type SlackConfig struct {
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// ScheduleConfig drives automatic runs.
type ScheduleConfig struct {
	// Crons are cron expressions; each firing starts a workflow run with
	// the current timestamp as the trigger time.
	Crons []string `yaml:"crons,omitempty"`
}
