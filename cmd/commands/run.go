/*
Copyright 2022 The Numaproj Authors.

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

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	numacep "github.com/sigmod2021-index-pattern/index-pattern-sub002"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/engine"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/query"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/logging"
)

func NewRunCommand() *cobra.Command {
	var (
		configFile  string
		metricsAddr string
		flushOnStop bool
	)

	command := &cobra.Command{
		Use:   "run",
		Short: "Run a query until its sources are exhausted or the process is interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return fmt.Errorf("a query configuration file is required, use --config")
			}
			log := logging.NewLogger().Named("run")
			version := numacep.GetVersion()
			log.Infow("Starting query engine", "version", version)
			metrics.BuildInfo.WithLabelValues("engine", version.Version, version.Platform).Set(1)

			cfg, err := query.Load(configFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			if cmd.Flags().Changed("flush-on-stop") {
				cfg.Engine.FlushOnStop = flushOnStop
			}
			log = log.With("query", cfg.Name)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, log)

			e, err := engine.New(cfg, engine.WithLogger(log))
			if err != nil {
				return err
			}
			ms := metrics.NewMetricsServer(
				metrics.WithAddr(cfg.Metrics.Addr),
				metrics.WithPprof(cfg.Metrics.Pprof),
				metrics.WithHealthCheckers(ctx, 5*time.Second, e),
			)
			if shutdown, err := ms.Start(ctx); err != nil {
				_ = e.Close()
				return fmt.Errorf("failed to start metrics server, error: %w", err)
			} else {
				defer func() { _ = shutdown(context.Background()) }()
			}
			if err := e.Run(ctx); err != nil {
				return err
			}
			log.Info("Exited...")
			return nil
		},
	}
	command.Flags().StringVarP(&configFile, "config", "c", "", "Query configuration file")
	command.Flags().StringVar(&metricsAddr, "metrics-addr", metrics.DefaultAddr, "Address of the metrics and health endpoints")
	command.Flags().BoolVar(&flushOnStop, "flush-on-stop", false, "Flush the state of every operator when the query stops")
	return command
}
