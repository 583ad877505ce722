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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	inputFile  string
	outputFile string
	truthFile  string
	reportFile string
	quiet      bool
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert one Java file",
	Long: `Convert one Java file with the configured task and language model.

The file is split into declarations (per-unit mode, the default), lines
(per-line) or kept whole (whole-file). Each piece is rewritten, evaluated
against the ground truth when --truth is given, and refined until it
matches or --iterations is spent.

Example:
  vorewrite convert -i UserService.java -o out/UserService.java --vo-class UserVO.java
  vorewrite convert -i A.java -o B.java --truth A.expected.java --mode line --iterations 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rc, err := cfg.RefineConfig()
		if err != nil {
			return err
		}

		src, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		var truth []byte
		if truthFile != "" {
			if truth, err = os.ReadFile(truthFile); err != nil {
				return fmt.Errorf("failed to read ground truth file: %w", err)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		svc, err := buildService(ctx, cfg)
		if err != nil {
			return err
		}
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		build, err := controllerFactory(cfg, svc, db)
		if err != nil {
			return err
		}
		ctl, err := build(rc)
		if err != nil {
			return err
		}

		fr, err := ctl.ConvertFile(ctx, string(src), string(truth))
		if err != nil {
			return fmt.Errorf("conversion failed: %w", err)
		}

		if err := writeOutput(outputFile, fr.Converted); err != nil {
			return err
		}
		runID := recordRun(ctx, db, runMeta(cfg, svc, filepath.Base(inputFile)), fr)

		if reportFile != "" {
			data, err := json.MarshalIndent(fr, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
			if err := writeOutput(reportFile, string(data)); err != nil {
				return err
			}
		}

		if !quiet {
			if err := printUnits(fr); err != nil {
				return err
			}
		}
		s := fr.Summary
		fmt.Printf("Converted %s (%s): %d units, %d succeeded, %d failed, %d skipped, file score %d\n",
			inputFile, fr.Mode, s.Total, s.Succeeded, s.Failed, s.Skipped, fr.Evaluation.Score)
		if runID != "" {
			fmt.Printf("Run ID: %s\n", runID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input Java file (required)")
	convertCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (required)")
	convertCmd.Flags().StringVarP(&truthFile, "truth", "g", "", "Expected output, for evaluation and early stopping")
	convertCmd.Flags().StringVar(&reportFile, "report", "", "Write the full JSON result to this file")
	convertCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the per-unit table")
	addConversionFlags(convertCmd)

	convertCmd.MarkFlagRequired("input")
	convertCmd.MarkFlagRequired("output")
}
