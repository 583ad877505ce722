/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/vorewrite/internal/config"
)

var version = "0.1.0"

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "vorewrite",
	Short: "LLM-driven structural rewriting of Java code",
	Long: `A CLI application that rewrites Java code with a language model,
one declaration at a time, and refines each rewrite until it matches
the expected output or the iteration budget is spent.

Supported tasks: map-to-vo, legacy-api-modernization
Supported providers: ollama, openrouter, langchain-ollama, openai, gemini, anthropic

Settings are read from flags, VOREWRITE_* environment variables, a .env
file and $HOME/.vorewrite.yaml (or --config).

Use "vorewrite convert --help" for conversion options.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(logLevel, logFormat); err != nil {
			return err
		}
		return initConfig(cmd)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.vorewrite.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console or json")

	rootCmd.PersistentFlags().String("db", "./data/vorewrite.db", "Database path for runs, memory and examples")
	rootCmd.PersistentFlags().String("task", "map-to-vo", "Transformation task")
}

func setupLogging(level, format string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	switch format {
	case "json":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	case "console", "":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	default:
		return fmt.Errorf("invalid log format %q (expected console or json)", format)
	}
	return nil
}

// flagKeys maps flag names to config keys. A flag is bound only on the
// commands that define it.
var flagKeys = map[string]string{
	"db":                 "store.path",
	"no-db":              "store.disabled",
	"no-memory":          "store.memory",
	"task":               "task",
	"provider":           "llm.provider",
	"model":              "llm.model",
	"ollama-url":         "llm.ollama_url",
	"openrouter-key":     "llm.openrouter_key",
	"max-retries":        "llm.retry.max_retries",
	"rate-interval":      "llm.rate_interval",
	"mode":               "conversion.mode",
	"iterations":         "conversion.max_iterations",
	"feedback":           "conversion.feedback",
	"diff-context":       "conversion.diff",
	"line-limit":         "conversion.line_limit",
	"line-offset":        "conversion.line_offset",
	"skip-unconvertible": "conversion.skip_unconvertible",
	"temperature":        "conversion.temperature",
	"prefix":             "conversion.prefix",
	"normalize":          "conversion.normalize",
	"apply-patch":        "conversion.apply_patch",
	"enhance-patch":      "conversion.enhance_patch",
	"carry-lines":        "conversion.carry_lines",
	"vo-class":           "context.vo_class",
	"examples":           "context.examples",
	"workers":            "batch.workers",
	"timeout":            "batch.timeout",
	"pattern":            "batch.pattern",
	"addr":               "server.addr",
}

// negatedKeys are bound from flags whose value is the inverse of the key.
var negatedKeys = map[string]bool{"no-memory": true}

func initConfig(cmd *cobra.Command) error {
	_ = godotenv.Load()

	v := viper.GetViper()
	config.SetDefaults(v)
	if err := config.BindEnv(v); err != nil {
		return err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".vorewrite")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Loaded config file")
	}

	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if negatedKeys[name] {
			if f.Changed {
				v.Set(key, f.Value.String() != "true")
			}
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}
