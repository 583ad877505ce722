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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/valpere/vorewrite/internal/orchestrator"
	"github.com/valpere/vorewrite/internal/segmenter"
	"github.com/valpere/vorewrite/internal/store"
)

var (
	batchInputDir  string
	batchOutputDir string
	batchTruthDir  string
	batchResume    string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Convert every Java file in a directory",
	Long: `Convert every file matching --pattern under the input directory and
write the results to the same relative paths under the output directory.

Files are converted concurrently (--workers). A file that cannot be parsed
or converted is recorded as failed and the batch continues.

A checkpoint ID is printed at the start of each run. If the job is interrupted,
use --resume with that ID to skip files already converted.

Example:
  vorewrite batch -i src/main/java -o converted --workers 4
  vorewrite batch -i src/main/java -o converted --resume cp_0b7c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if filepath.Clean(batchInputDir) == filepath.Clean(batchOutputDir) {
			return fmt.Errorf("input directory and output directory cannot be the same")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rc, err := cfg.RefineConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		// Load or create checkpoint.
		var checkpointID string
		doneFiles := make(map[string]string)
		if batchResume != "" {
			if db == nil {
				return fmt.Errorf("--resume requires the database; remove --no-db")
			}
			if _, err := db.GetBatchCheckpoint(ctx, batchResume); err != nil {
				return fmt.Errorf("failed to load checkpoint: %w", err)
			}
			checkpointID = batchResume
			if doneFiles, err = db.GetBatchFiles(ctx, checkpointID); err != nil {
				return fmt.Errorf("failed to load checkpoint files: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Resuming checkpoint %s (%d files already processed)\n", checkpointID, len(doneFiles))
		} else if db != nil {
			checkpointID, err = db.CreateBatchCheckpoint(ctx, cfg.Kind().String(), batchInputDir, batchOutputDir)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to create checkpoint")
			} else {
				fmt.Fprintf(os.Stderr, "Checkpoint ID: %s (use --resume %s to resume if interrupted)\n", checkpointID, checkpointID)
			}
		}

		jobs, err := collectJobs(batchInputDir, batchTruthDir, cfg.Batch.Pattern, doneFiles)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("Nothing to convert.")
			return nil
		}

		svc, err := buildService(ctx, cfg)
		if err != nil {
			return err
		}
		build, err := controllerFactory(cfg, svc, db)
		if err != nil {
			return err
		}
		ctl, err := build(rc)
		if err != nil {
			return err
		}

		orch := orchestrator.New(ctl, orchestrator.OrchestratorConfig{
			Workers: cfg.Batch.Workers,
			Timeout: cfg.Batch.Timeout,
		})

		parseErrors := 0
		result := orch.Execute(ctx, jobs, func(r orchestrator.JobResult) {
			status, msg := store.FileDone, ""
			if r.Err != nil {
				status, msg = store.FileFailed, r.Err.Error()
				var perr *segmenter.ParseError
				if errors.As(r.Err, &perr) {
					parseErrors++
				}
				fmt.Fprintf(os.Stderr, "FAILED %s: %v\n", r.Job.Path, r.Err)
			} else {
				if err := writeOutput(filepath.Join(batchOutputDir, r.Job.Path), r.File.Converted); err != nil {
					status, msg = store.FileFailed, err.Error()
				}
				recordRun(ctx, db, runMeta(cfg, svc, r.Job.Path), r.File)
				fmt.Fprintf(os.Stderr, "%s: %d/%d units succeeded\n", r.Job.Path, r.File.Summary.Succeeded, r.File.Summary.Total)
			}
			if db != nil && checkpointID != "" {
				if err := db.SaveBatchFile(ctx, checkpointID, r.Job.Path, status, msg); err != nil {
					log.Warn().Err(err).Str("path", r.Job.Path).Msg("Failed to save checkpoint")
				}
			}
		})

		if db != nil && checkpointID != "" && result.Failed == 0 && ctx.Err() == nil {
			_ = db.CompleteBatchCheckpoint(ctx, checkpointID)
		}

		fmt.Printf("Batch finished: %d files, %d converted, %d failed (%d parse errors)\n",
			len(jobs), result.Succeeded, result.Failed, parseErrors)
		return ctx.Err()
	},
}

// collectJobs finds the files under inputDir whose base name matches pattern,
// skipping those already done. Paths are relative to inputDir.
func collectJobs(inputDir, truthDir, pattern string, done map[string]string) ([]orchestrator.Job, error) {
	var jobs []orchestrator.Job
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ok, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if !ok {
			return nil
		}

		rel, err := filepath.Rel(inputDir, path)
		if err != nil {
			return err
		}
		if done[rel] == store.FileDone {
			return nil
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		job := orchestrator.Job{ID: rel, Path: rel, Source: string(src)}
		if truthDir != "" {
			if truth, err := os.ReadFile(filepath.Join(truthDir, rel)); err == nil {
				job.GroundTruth = string(truth)
			}
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Path < jobs[j].Path })
	return jobs, nil
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchInputDir, "input", "i", "", "Input directory (required)")
	batchCmd.Flags().StringVarP(&batchOutputDir, "output", "o", "", "Output directory (required)")
	batchCmd.Flags().StringVarP(&batchTruthDir, "truth", "g", "", "Directory of expected outputs with the same layout")
	batchCmd.Flags().StringVar(&batchResume, "resume", "", "Resume from checkpoint ID (printed at start of original run)")
	batchCmd.Flags().Int("workers", 2, "Files converted concurrently")
	batchCmd.Flags().Duration("timeout", 10*time.Minute, "Time limit per file (0 = none)")
	batchCmd.Flags().String("pattern", "*.java", "File name pattern")
	addConversionFlags(batchCmd)

	batchCmd.MarkFlagRequired("input")
	batchCmd.MarkFlagRequired("output")
}
