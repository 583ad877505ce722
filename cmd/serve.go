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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/vorewrite/internal/api"
	"github.com/valpere/vorewrite/internal/refine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve conversions over HTTP",
	Long: `Start an HTTP server exposing conversion, segmentation and patch
endpoints under /api/v1. Flags set the defaults that each request may
override (mode and iterations).

Example:
  vorewrite serve --addr :8080 --provider openrouter --model openai/gpt-4o-mini`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rc, err := cfg.RefineConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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
		builder := func(c refine.Config) (api.FileConverter, error) {
			ctl, err := build(c)
			if err != nil {
				return nil, err
			}
			return ctl, nil
		}

		opts := []api.Option{api.WithVersion(version)}
		if db != nil {
			opts = append(opts, api.WithRecorder(db, runMeta(cfg, svc, "")))
		}

		return api.NewServer(rc, builder, opts...).Start(ctx, cfg.Server.Addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	addConversionFlags(serveCmd)
}
