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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/vorewrite/internal/config"
	"github.com/valpere/vorewrite/internal/history"
	"github.com/valpere/vorewrite/internal/llm"
	"github.com/valpere/vorewrite/internal/refine"
	"github.com/valpere/vorewrite/internal/retrieval"
	"github.com/valpere/vorewrite/internal/store"
)

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// addServiceFlags registers the language model flags on cmd.
func addServiceFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "ollama", "Language model provider (ollama, openrouter, langchain-ollama, openai, gemini, anthropic)")
	cmd.Flags().String("model", "", "Model name (provider default if empty)")
	cmd.Flags().String("ollama-url", llm.DefaultOllamaURL, "Ollama base URL")
	cmd.Flags().String("openrouter-key", "", "OpenRouter API key (or OPENROUTER_API_KEY)")
	cmd.Flags().Int("max-retries", 3, "Retries per model request after the first attempt")
	cmd.Flags().Duration("rate-interval", 0, "Minimum spacing between model requests (0 = unlimited)")
}

// addConversionFlags registers the refinement loop flags on cmd.
func addConversionFlags(cmd *cobra.Command) {
	addServiceFlags(cmd)

	d := refine.DefaultConfig()
	cmd.Flags().String("mode", string(d.Mode), "Granularity: whole-file, per-unit or per-line")
	cmd.Flags().Int("iterations", d.MaxIterations, "Maximum refinement iterations per unit")
	cmd.Flags().Bool("feedback", d.UseFeedback, "Critique each candidate before correcting it")
	cmd.Flags().Bool("diff-context", false, "Include a diff of the previous candidate in follow-up prompts")
	cmd.Flags().Bool("line-limit", true, "Cap responses at the input's line count plus --line-offset")
	cmd.Flags().Int("line-offset", 1, "Extra lines allowed over the input's line count")
	cmd.Flags().Bool("skip-unconvertible", true, "Pass through units with nothing to convert")
	cmd.Flags().Float64("temperature", 0, "Sampling temperature")
	cmd.Flags().Bool("prefix", d.PrefixOutput, "Prime responses with an opened java fence")
	cmd.Flags().Bool("normalize", d.Normalize, "Strip frame comments and indent before prompting")
	cmd.Flags().Bool("apply-patch", false, "Replay each candidate onto the original as a single-hunk diff")
	cmd.Flags().Bool("enhance-patch", false, "Let the model improve the diff before replaying it")
	cmd.Flags().Int("carry-lines", 0, "Lines of the previous converted unit passed as context")
	cmd.Flags().String("vo-class", "", "File with the reference value object class")
	cmd.Flags().Int("examples", 3, "Similar reference examples added to each prompt (0 = none)")
	cmd.Flags().Bool("no-db", false, "Do not record runs or use conversion memory")
	cmd.Flags().Bool("no-memory", false, "Do not reuse or remember converged conversions")
}

// buildService creates the configured model service, rate limited and
// retried.
func buildService(ctx context.Context, cfg *config.Config) (llm.Service, error) {
	c := cfg.LLM
	var (
		svc llm.Service
		err error
	)
	switch c.Provider {
	case "ollama":
		svc = llm.NewOllamaService(c.OllamaURL, c.Model)
	case "openrouter":
		svc = llm.NewOpenRouterService(c.OpenRouterKey, "", c.Model)
	case "langchain-ollama":
		svc, err = llm.NewLangchainOllama(c.OllamaURL, c.Model)
	case "openai":
		svc, err = llm.NewLangchainOpenAI(c.OpenAIKey, c.OpenAIBaseURL, c.Model)
	case "gemini":
		svc, err = llm.NewLangchainGemini(ctx, c.GeminiKey, c.Model)
	case "anthropic":
		svc, err = llm.NewLangchainAnthropic(c.AnthropicKey, c.Model)
	default:
		return nil, fmt.Errorf("unknown provider: %s", c.Provider)
	}
	if err != nil {
		return nil, err
	}
	return llm.NewResilient(svc, c.RateInterval, c.RateBurst, c.Retry), nil
}

// openStore opens the database, or returns nil when it is disabled.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Store.Disabled || cfg.Store.Path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// controllerFactory returns a function building controllers that share svc
// and db. db may be nil.
func controllerFactory(cfg *config.Config, svc llm.Service, db *store.Store) (func(refine.Config) (*refine.Controller, error), error) {
	voClass, err := cfg.ReadVOClass()
	if err != nil {
		return nil, err
	}

	providers := retrieval.Chain{retrieval.Static{Tag: "vo_class", Text: voClass}}
	if db != nil && cfg.Context.Examples > 0 {
		ex, err := retrieval.NewExamples(db, cfg.Kind().String(), cfg.Context.Examples, cfg.Context.ExampleMinScore, 0)
		if err != nil {
			return nil, err
		}
		providers = append(providers, ex)
	}

	return func(rc refine.Config) (*refine.Controller, error) {
		opts := []refine.Option{refine.WithRetriever(providers)}
		if db != nil && cfg.Store.Memory {
			opts = append(opts, refine.WithMemory(db))
		}
		return refine.New(svc, cfg.Kind(), rc, opts...)
	}, nil
}

func runMeta(cfg *config.Config, svc llm.Service, sourceName string) history.Meta {
	return history.Meta{
		Task:       cfg.Kind().String(),
		Service:    svc.Name(),
		Model:      cfg.LLM.Model,
		SourceName: sourceName,
	}
}

// recordRun stores fr when db is open. Failures are logged.
func recordRun(ctx context.Context, db *store.Store, meta history.Meta, fr *refine.FileResult) string {
	if db == nil {
		return ""
	}
	runID, err := history.Record(ctx, db, meta, fr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to record run")
	}
	return runID
}

func printUnits(fr *refine.FileResult) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tKIND\tITER\tSCORE\tCORRECT\tNOTE")
	for _, u := range fr.Units {
		note := ""
		switch {
		case u.Error != "":
			note = "error: " + u.Error
		case u.Skipped:
			note = "skipped"
		case u.FromMemory:
			note = "from memory"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%v\t%s\n",
			u.Index, u.Kind, u.Iterations, u.Evaluation.Score, u.IsCorrect, note)
	}
	return w.Flush()
}

func writeOutput(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
