package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelAliases maps short aliases to full vendor model ids. A full id
// passes through ResolveModel unchanged.
var ModelAliases = map[string]string{
	"haiku":  "claude-haiku-4-5-20251001",
	"sonnet": "claude-sonnet-4-5-20250929",
	"opus":   "claude-opus-4-6",
}

// ResolveModel expands a model alias to its full vendor id. Unknown
// aliases and already-full ids pass through unchanged.
func ResolveModel(alias string) string {
	if id, ok := ModelAliases[alias]; ok {
		return id
	}
	return alias
}

// RenderOptions mirrors the context-rendering option table: every field
// here is independently overridable from the environment.
type RenderOptions struct {
	TotalMemories   int      `yaml:"total_memories"`
	FullCount       int      `yaml:"full_count"`
	SessionCount    int      `yaml:"session_count"`
	Kinds           []string `yaml:"kinds"`
	FullField       string   `yaml:"full_field"`
	ShowReadTokens  bool     `yaml:"show_read_tokens"`
	ShowWorkTokens  bool     `yaml:"show_work_tokens"`
	ShowLastSummary bool     `yaml:"show_last_summary"`
}

func defaultRenderOptions() RenderOptions {
	return RenderOptions{
		TotalMemories:   50,
		FullCount:       10,
		SessionCount:    10,
		Kinds:           []string{"bugfix", "feature", "refactor", "discovery", "decision", "change"},
		FullField:       "narrative",
		ShowReadTokens:  true,
		ShowWorkTokens:  true,
		ShowLastSummary: true,
	}
}

// Config is the process-wide configuration. HomeDir is the only
// global state every component shares; everything else is read at
// process entry and threaded through constructors.
type Config struct {
	HomeDir string `yaml:"-"`

	// Executor selects how LM completion calls are made: "auto" tries
	// HTTP first and falls back to CLI, "http", or "cli".
	Executor string `yaml:"executor"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	CLIPath string `yaml:"cli_path"`

	DistillModel   string `yaml:"distill_model"`
	SummarizeModel string `yaml:"summarize_model"`

	Debug bool `yaml:"debug"`

	MaintenanceIntervalMinutes int `yaml:"maintenance_interval_minutes"`

	Render RenderOptions `yaml:"render"`
}

func defaultConfig() Config {
	return Config{
		Executor:                   "auto",
		DistillModel:               "haiku",
		SummarizeModel:             "sonnet",
		MaintenanceIntervalMinutes: 5,
		Render:                     defaultRenderOptions(),
	}
}

// HomeDir returns the data directory: REMEM_HOME if set, else ~/.remem.
func HomeDir() string {
	if override := os.Getenv("REMEM_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".remem")
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// DBPath returns the path to the sqlite database within the given home directory.
func DBPath(homeDir string) string {
	return filepath.Join(homeDir, "remem.db")
}

// Load reads config.yaml (if present), applies environment overrides,
// and normalizes defaults. config.yaml is optional; a missing file is
// not an error.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create remem home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	switch cfg.Executor {
	case "auto", "http", "cli":
	default:
		cfg.Executor = "auto"
	}
	if cfg.DistillModel == "" {
		cfg.DistillModel = "haiku"
	}
	if cfg.SummarizeModel == "" {
		cfg.SummarizeModel = "sonnet"
	}
	if cfg.MaintenanceIntervalMinutes <= 0 {
		cfg.MaintenanceIntervalMinutes = 5
	}
	if cfg.Render.TotalMemories <= 0 {
		cfg.Render.TotalMemories = 50
	}
	if cfg.Render.FullCount <= 0 {
		cfg.Render.FullCount = 10
	}
	if cfg.Render.SessionCount <= 0 {
		cfg.Render.SessionCount = 10
	}
	if cfg.Render.FullField == "" {
		cfg.Render.FullField = "narrative"
	}
	if len(cfg.Render.Kinds) == 0 {
		cfg.Render.Kinds = defaultRenderOptions().Kinds
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REMEM_EXECUTOR"); v != "" {
		cfg.Executor = v
	}
	if v := os.Getenv("REMEM_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("REMEM_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("REMEM_CLI_PATH"); v != "" {
		cfg.CLIPath = v
	}
	if v := os.Getenv("REMEM_DISTILL_MODEL"); v != "" {
		cfg.DistillModel = v
	}
	if v := os.Getenv("REMEM_SUMMARIZE_MODEL"); v != "" {
		cfg.SummarizeModel = v
	}
	if v := os.Getenv("REMEM_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv("REMEM_MAINTENANCE_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaintenanceIntervalMinutes = n
		}
	}

	applyRenderEnvOverrides(cfg)
}

func applyRenderEnvOverrides(cfg *Config) {
	if v := os.Getenv("REMEM_TOTAL_MEMORIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.TotalMemories = n
		}
	}
	if v := os.Getenv("REMEM_FULL_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.FullCount = n
		}
	}
	if v := os.Getenv("REMEM_SESSION_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.SessionCount = n
		}
	}
	if v := os.Getenv("REMEM_KINDS"); v != "" {
		cfg.Render.Kinds = strings.Split(v, ",")
	}
	if v := os.Getenv("REMEM_FULL_FIELD"); v != "" {
		cfg.Render.FullField = v
	}
	if v := os.Getenv("REMEM_SHOW_READ_TOKENS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Render.ShowReadTokens = b
		}
	}
	if v := os.Getenv("REMEM_SHOW_WORK_TOKENS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Render.ShowWorkTokens = b
		}
	}
	if v := os.Getenv("REMEM_SHOW_LAST_SUMMARY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Render.ShowLastSummary = b
		}
	}
}

// SetAPIKey updates the api_key in config.yaml, preserving other settings.
func SetAPIKey(homeDir, value string) error {
	path := ConfigPath(homeDir)
	raw, err := loadRawConfig(path)
	if err != nil {
		return err
	}
	raw["api_key"] = value
	return saveRawConfig(path, raw)
}

// SetExecutor updates the executor mode in config.yaml, preserving other settings.
func SetExecutor(homeDir, mode string) error {
	path := ConfigPath(homeDir)
	raw, err := loadRawConfig(path)
	if err != nil {
		return err
	}
	raw["executor"] = mode
	return saveRawConfig(path, raw)
}

func loadRawConfig(path string) (map[string]interface{}, error) {
	raw := make(map[string]interface{})
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse config.yaml: %w", err)
		}
	}
	return raw, nil
}

func saveRawConfig(path string, raw map[string]interface{}) error {
	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal config.yaml: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}
