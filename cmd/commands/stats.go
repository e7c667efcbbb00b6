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
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
)

func NewStatsCommand() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	command := &cobra.Command{
		Use:   "stats",
		Short: "Print the per node event counters of a running query",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSuffix(addr, "/")
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				url = "http://" + url
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			families, err := metrics.Scrape(ctx, &http.Client{Timeout: timeout}, url+"/metrics")
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NODE\tIN\tOUT\tERRORS")
			for _, s := range metrics.GetNodeStats(families) {
				fmt.Fprintf(w, "%s\t%.0f\t%.0f\t%.0f\n", s.Node, s.In, s.Out, s.Errors)
			}
			return w.Flush()
		},
	}
	command.Flags().StringVar(&addr, "addr", "localhost"+metrics.DefaultAddr, "Address of the metrics endpoint of the query")
	command.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Timeout of the request")
	return command
}
