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

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const (
	nodeInMetric     = "graph_node_in_total"
	nodeOutMetric    = "graph_node_out_total"
	nodeErrorsMetric = "graph_node_errors_total"
)

// NodeStats are the counters of one graph node as exposed by a metrics endpoint.
type NodeStats struct {
	Node   string
	In     float64
	Out    float64
	Errors float64
}

// Scrape fetches and parses the metrics exposed at url.
func Scrape(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed reading the metrics endpoint, %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics endpoint returned %s", resp.Status)
	}
	textParser := expfmt.TextParser{}
	result, err := textParser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed parsing to prometheus metric families, %w", err)
	}
	return result, nil
}

// GetNodeStats extracts the per node counters from scraped metric families, sorted by node name.
func GetNodeStats(families map[string]*dto.MetricFamily) []NodeStats {
	byNode := make(map[string]*NodeStats)
	collect := func(metricName string, set func(s *NodeStats, v float64)) {
		family, ok := families[metricName]
		if !ok || family == nil {
			return
		}
		for _, m := range family.GetMetric() {
			var node string
			for _, label := range m.GetLabel() {
				if label.GetName() == LabelNode {
					node = label.GetValue()
					break
				}
			}
			if node == "" {
				continue
			}
			s, ok := byNode[node]
			if !ok {
				s = &NodeStats{Node: node}
				byNode[node] = s
			}
			// counters are exposed as untyped by some exporters
			v := m.GetCounter().GetValue()
			if v == 0 {
				v = m.GetUntyped().GetValue()
			}
			set(s, v)
		}
	}
	collect(nodeInMetric, func(s *NodeStats, v float64) { s.In += v })
	collect(nodeOutMetric, func(s *NodeStats, v float64) { s.Out += v })
	collect(nodeErrorsMetric, func(s *NodeStats, v float64) { s.Errors += v })

	r := make([]NodeStats, 0, len(byNode))
	for _, s := range byNode {
		r = append(r, *s)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Node < r[j].Node })
	return r
}
