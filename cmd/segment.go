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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/vorewrite/internal/segmenter"
)

var (
	segmentInput string
	segmentJSON  bool
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Show how a Java file is split into units",
	Long: `Split a Java file into the units convert works on and list them.

Example:
  vorewrite segment -i UserService.java
  vorewrite segment -i UserService.java --json > units.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(segmentInput)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}

		units, err := segmenter.Split(context.Background(), string(src))
		if err != nil {
			return err
		}
		if err := segmenter.Verify(string(src), units); err != nil {
			return fmt.Errorf("segmentation does not cover the source: %w", err)
		}

		if segmentJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(units)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "UNIT\tKIND\tLINES\tBYTES\tFIRST LINE")
		for _, u := range units {
			fmt.Fprintf(w, "%d\t%s\t%d-%d\t%d\t%s\n",
				u.Index, u.Kind, u.Lines.Start+1, u.Lines.End, u.Bytes.Len(), snippet(u.Content, 50))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("%d units, verified\n", len(units))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(segmentCmd)

	segmentCmd.Flags().StringVarP(&segmentInput, "input", "i", "", "Input Java file (required)")
	segmentCmd.Flags().BoolVar(&segmentJSON, "json", false, "Print units as JSON")

	segmentCmd.MarkFlagRequired("input")
}
