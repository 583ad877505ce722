// Package config loads the settings shared by every command from flags,
// environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/vorewrite/internal/llm"
	"github.com/valpere/vorewrite/internal/refine"
	"github.com/valpere/vorewrite/internal/retry"
	"github.com/valpere/vorewrite/internal/task"
)

// EnvPrefix prefixes every environment variable, e.g. VOREWRITE_LLM_MODEL.
const EnvPrefix = "VOREWRITE"

type Config struct {
	Task       string           `mapstructure:"task"`
	Conversion ConversionConfig `mapstructure:"conversion"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Context    ContextConfig    `mapstructure:"context"`
	Store      StoreConfig      `mapstructure:"store"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Server     ServerConfig     `mapstructure:"server"`
}

type ConversionConfig struct {
	Mode          string `mapstructure:"mode"`
	MaxIterations int    `mapstructure:"max_iterations"`
	Feedback      bool   `mapstructure:"feedback"`
	Diff          bool   `mapstructure:"diff"`
	// LineLimit enables the line budget of input lines plus LineOffset.
	LineLimit         bool    `mapstructure:"line_limit"`
	LineOffset        int     `mapstructure:"line_offset"`
	SkipUnconvertible bool    `mapstructure:"skip_unconvertible"`
	Temperature       float64 `mapstructure:"temperature"`
	Prefix            bool    `mapstructure:"prefix"`
	Normalize         bool    `mapstructure:"normalize"`
	ApplyPatch        bool    `mapstructure:"apply_patch"`
	EnhancePatch      bool    `mapstructure:"enhance_patch"`
	CarryLines        int     `mapstructure:"carry_lines"`
	KeepTranscript    bool    `mapstructure:"keep_transcript"`
}

type LLMConfig struct {
	Provider      string        `mapstructure:"provider"`
	Model         string        `mapstructure:"model"`
	OllamaURL     string        `mapstructure:"ollama_url"`
	OpenRouterKey string        `mapstructure:"openrouter_key"`
	OpenAIKey     string        `mapstructure:"openai_key"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	GeminiKey     string        `mapstructure:"gemini_key"`
	AnthropicKey  string        `mapstructure:"anthropic_key"`
	RateInterval  time.Duration `mapstructure:"rate_interval"`
	RateBurst     int           `mapstructure:"rate_burst"`
	Retry         retry.Config  `mapstructure:"retry"`
}

type ContextConfig struct {
	// VOClass is a file whose content is given to the model as the
	// reference value object.
	VOClass         string  `mapstructure:"vo_class"`
	Examples        int     `mapstructure:"examples"`
	ExampleMinScore float64 `mapstructure:"example_min_score"`
}

type StoreConfig struct {
	Path     string `mapstructure:"path"`
	Disabled bool   `mapstructure:"disabled"`
	Memory   bool   `mapstructure:"memory"`
}

type BatchConfig struct {
	Workers int           `mapstructure:"workers"`
	Timeout time.Duration `mapstructure:"timeout"`
	Pattern string        `mapstructure:"pattern"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Providers lists the supported llm.provider values.
var Providers = []string{"ollama", "openrouter", "langchain-ollama", "openai", "gemini", "anthropic"}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	d := refine.DefaultConfig()
	v.SetDefault("task", task.MapToVO.String())

	v.SetDefault("conversion.mode", string(d.Mode))
	v.SetDefault("conversion.max_iterations", d.MaxIterations)
	v.SetDefault("conversion.feedback", d.UseFeedback)
	v.SetDefault("conversion.diff", false)
	v.SetDefault("conversion.line_limit", true)
	v.SetDefault("conversion.line_offset", 1)
	v.SetDefault("conversion.skip_unconvertible", true)
	v.SetDefault("conversion.temperature", 0.0)
	v.SetDefault("conversion.prefix", d.PrefixOutput)
	v.SetDefault("conversion.normalize", d.Normalize)
	v.SetDefault("conversion.apply_patch", false)
	v.SetDefault("conversion.enhance_patch", false)
	v.SetDefault("conversion.carry_lines", 0)
	v.SetDefault("conversion.keep_transcript", true)

	rc := retry.ModelConfig()
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.ollama_url", llm.DefaultOllamaURL)
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.rate_interval", time.Duration(0))
	v.SetDefault("llm.rate_burst", 1)
	v.SetDefault("llm.retry.max_retries", rc.MaxRetries)
	v.SetDefault("llm.retry.base_delay", rc.BaseDelay)
	v.SetDefault("llm.retry.max_delay", rc.MaxDelay)
	v.SetDefault("llm.retry.multiplier", rc.Multiplier)
	v.SetDefault("llm.retry.jitter", rc.Jitter)

	v.SetDefault("context.vo_class", "")
	v.SetDefault("context.examples", 3)
	v.SetDefault("context.example_min_score", 0.3)

	v.SetDefault("store.path", "./data/vorewrite.db")
	v.SetDefault("store.disabled", false)
	v.SetDefault("store.memory", true)

	v.SetDefault("batch.workers", 2)
	v.SetDefault("batch.timeout", 10*time.Minute)
	v.SetDefault("batch.pattern", "*.java")

	v.SetDefault("server.addr", ":8080")
}

// BindEnv makes every key readable from VOREWRITE_<SECTION>_<KEY>. The
// provider keys also fall back to their conventional names, such as
// OPENROUTER_API_KEY.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fallbacks := map[string]string{
		"llm.openrouter_key": "OPENROUTER_API_KEY",
		"llm.openai_key":     "OPENAI_API_KEY",
		"llm.gemini_key":     "GEMINI_API_KEY",
		"llm.anthropic_key":  "ANTHROPIC_API_KEY",
		"llm.ollama_url":     "OLLAMA_HOST",
	}
	for key, env := range fallbacks {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := task.ParseKind(c.Task); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.RefineConfig(); err != nil {
		errs = append(errs, err)
	}
	if !validProvider(c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("unknown llm provider %q (expected one of: %s)", c.LLM.Provider, strings.Join(Providers, ", ")))
	}
	if c.Batch.Workers < 1 {
		errs = append(errs, fmt.Errorf("batch workers must be at least 1, got %d", c.Batch.Workers))
	}
	if c.Context.Examples < 0 {
		errs = append(errs, fmt.Errorf("context examples must not be negative"))
	}
	return errors.Join(errs...)
}

func validProvider(p string) bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// Kind returns the configured task kind.
func (c *Config) Kind() task.Kind {
	k, _ := task.ParseKind(c.Task)
	return k
}

// RefineConfig builds the controller configuration.
func (c *Config) RefineConfig() (refine.Config, error) {
	mode, err := refine.ParseMode(c.Conversion.Mode)
	if err != nil {
		return refine.Config{}, err
	}

	cc := c.Conversion
	rc := refine.Config{
		Mode:              mode,
		MaxIterations:     cc.MaxIterations,
		UseFeedback:       cc.Feedback,
		UseDiffContext:    cc.Diff,
		Temperature:       cc.Temperature,
		PrefixOutput:      cc.Prefix,
		Normalize:         cc.Normalize,
		ApplyAsPatch:      cc.ApplyPatch || cc.EnhancePatch,
		EnhancePatch:      cc.EnhancePatch,
		CarryContextLines: cc.CarryLines,
		KeepTranscript:    cc.KeepTranscript,
	}
	if cc.LineLimit {
		rc.LineBudgetOffset = refine.Offset(cc.LineOffset)
	}
	if cc.SkipUnconvertible {
		rc.SkipPredicate = refine.SkipUnlessConvertible(c.Kind().Rules())
	}
	return rc, rc.Validate()
}

// ReadVOClass returns the reference value object source, or "" when none is
// configured.
func (c *Config) ReadVOClass() (string, error) {
	if c.Context.VOClass == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Context.VOClass)
	if err != nil {
		return "", fmt.Errorf("failed to read VO class: %w", err)
	}
	return string(data), nil
}
