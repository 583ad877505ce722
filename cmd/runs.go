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
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	runsLimit   int
	runsVerbose bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded conversion runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), runsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tTASK\tMODE\tSERVICE\tSOURCE\tUNITS\tOK\tFAILED\tSKIPPED\tSTATUS")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Task, r.Mode, r.Service,
				r.SourceName, r.Total, r.Succeeded, r.Failed, r.Skipped, r.Status)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the units of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		run, err := db.GetRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load run: %w", err)
		}
		units, err := db.UnitResults(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to load units: %w", err)
		}

		fmt.Printf("Run %s: %s, %s via %s %s (%s)\n", run.ID, run.SourceName, run.Task, run.Service, run.Model, run.Mode)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "UNIT\tKIND\tITER\tSCORE\tCORRECT\tNOTE")
		for _, u := range units {
			note := ""
			switch {
			case u.Error != "":
				note = "error: " + u.Error
			case u.Skipped:
				note = "skipped"
			case u.FromMemory:
				note = "from memory"
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%v\t%s\n", u.Index, u.Kind, u.Iterations, u.Score, u.IsCorrect, note)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if runsVerbose {
			for _, u := range units {
				fmt.Printf("\n--- unit %d original\n%s\n--- unit %d converted\n%s\n", u.Index, u.Original, u.Index, u.Converted)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list")
	runsShowCmd.Flags().BoolVarP(&runsVerbose, "verbose", "v", false, "Print each unit's original and converted code")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}
