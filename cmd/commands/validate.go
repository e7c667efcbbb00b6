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
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/graph"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/query"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/expr"
)

func NewValidateCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "validate CONFIG...",
		Short: "Validate query configuration files, compiling every operator without connecting to sources or sinks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewNop().Sugar()
			compiler, err := expr.NewCompiler(expr.WithLogger(log))
			if err != nil {
				return err
			}
			for _, path := range args {
				cfg, err := query.Load(path)
				if err != nil {
					return err
				}
				// sinks connect when built
				cfg.Sinks = nil
				g := graph.New(graph.WithLogger(log))
				q, err := query.Build(cfg, g, compiler, log)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := q.Close(false); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: query %q is valid\n", path, cfg.Name)
			}
			return nil
		},
	}
	return command
}
