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

var exampleDescription string

var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "Manage reference conversion examples",
	Long: `Add, list, and delete before/after examples for the current task.

The examples most similar to a unit are added to its prompt (see --examples
on convert).`,
}

var examplesAddCmd = &cobra.Command{
	Use:   "add <input-file> <output-file>",
	Short: "Add an example pair from two files",
	Long: `Add an example: the code before conversion and the expected result.

Example:
  vorewrite examples add before/Order.java after/Order.java --description "nested map"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		output, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read output file: %w", err)
		}

		db, task, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.AddExample(context.Background(), task, string(input), string(output), exampleDescription)
		if err != nil {
			return fmt.Errorf("failed to add example: %w", err)
		}
		fmt.Printf("Added example %s for task %s\n", id, task)
		return nil
	},
}

var examplesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List examples of the current task",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, task, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		examples, err := db.ListExamples(context.Background(), task)
		if err != nil {
			return fmt.Errorf("failed to list examples: %w", err)
		}
		if len(examples) == 0 {
			fmt.Printf("No examples for task %s.\n", task)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tDESCRIPTION\tINPUT")
		for _, e := range examples {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.ID, e.CreatedAt.Format("2006-01-02 15:04"), e.Description, snippet(e.Input, 40))
		}
		return w.Flush()
	},
}

var examplesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an example by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteExample(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete example: %w", err)
		}
		fmt.Printf("Deleted example: %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(examplesCmd)

	examplesAddCmd.Flags().StringVarP(&exampleDescription, "description", "d", "", "Short note shown in the list")

	examplesCmd.AddCommand(examplesAddCmd)
	examplesCmd.AddCommand(examplesListCmd)
	examplesCmd.AddCommand(examplesDeleteCmd)
}
