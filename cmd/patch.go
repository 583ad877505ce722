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
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/vorewrite/internal/patch"
)

var (
	patchOriginal  string
	patchCandidate string
	patchDiffFile  string
	patchOutput    string
	patchWhole     bool
)

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Build, replay and enhance single-hunk diffs",
}

func readLines(path string) ([]string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	text := string(data)
	return patch.SplitLines(text), strings.HasSuffix(text, "\n"), nil
}

func emit(text string) error {
	if patchOutput == "" {
		fmt.Print(text)
		return nil
	}
	return writeOutput(patchOutput, text)
}

var patchDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Print a unified diff of two files",
	Long: `Print a unified diff from --original to --candidate.

With --whole the context spans the whole file, so the diff is a single hunk
that "patch apply" replays in full.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		original, _, err := readLines(patchOriginal)
		if err != nil {
			return err
		}
		candidate, _, err := readLines(patchCandidate)
		if err != nil {
			return err
		}
		if patchWhole {
			return emit(patch.BuildPatch(original, candidate))
		}
		return emit(patch.BuildDiff(original, candidate))
	},
}

var patchApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the first hunk of a diff to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		original, trailing, err := readLines(patchOriginal)
		if err != nil {
			return err
		}
		diff, err := os.ReadFile(patchDiffFile)
		if err != nil {
			return fmt.Errorf("failed to read diff: %w", err)
		}
		if patch.HunkCount(string(diff)) > 1 {
			fmt.Fprintln(os.Stderr, "Warning: diff has more than one hunk, only the first is applied")
		}

		out := strings.Join(patch.ApplyDiff(original, string(diff)), "\n")
		if trailing {
			out += "\n"
		}
		return emit(out)
	},
}

var patchEnhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Let the model improve the diff between two files",
	Long: `Infer the intent of the change from --original to --candidate, then ask
the model for an improved single-hunk diff. The diff is printed, not applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		original, _, err := readLines(patchOriginal)
		if err != nil {
			return err
		}
		candidate, _, err := readLines(patchCandidate)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		svc, err := buildService(ctx, cfg)
		if err != nil {
			return err
		}
		e := patch.NewEnhancer(svc, cfg.Kind().Rules(), cfg.Conversion.Temperature)
		intent := e.InferIntent(ctx, original, candidate)
		if intent.MainPurpose != "" {
			fmt.Fprintf(os.Stderr, "Intent: %s (risk: %s)\n", intent.MainPurpose, intent.RiskLevel)
		}
		return emit(e.EnhanceDiff(ctx, original, candidate, intent))
	},
}

func init() {
	rootCmd.AddCommand(patchCmd)

	patchCmd.PersistentFlags().StringVarP(&patchOriginal, "original", "a", "", "Original file (required)")
	patchCmd.PersistentFlags().StringVarP(&patchOutput, "output", "o", "", "Write the result here instead of stdout")

	patchDiffCmd.Flags().StringVarP(&patchCandidate, "candidate", "b", "", "Candidate file (required)")
	patchDiffCmd.Flags().BoolVar(&patchWhole, "whole", false, "Use the whole file as context")
	patchDiffCmd.MarkFlagRequired("candidate")

	patchApplyCmd.Flags().StringVarP(&patchDiffFile, "diff", "d", "", "Diff file (required)")
	patchApplyCmd.MarkFlagRequired("diff")

	patchEnhanceCmd.Flags().StringVarP(&patchCandidate, "candidate", "b", "", "Candidate file (required)")
	patchEnhanceCmd.Flags().Float64("temperature", 0, "Sampling temperature")
	addServiceFlags(patchEnhanceCmd)
	patchEnhanceCmd.MarkFlagRequired("candidate")

	patchCmd.MarkPersistentFlagRequired("original")
	patchCmd.AddCommand(patchDiffCmd)
	patchCmd.AddCommand(patchApplyCmd)
	patchCmd.AddCommand(patchEnhanceCmd)
}
