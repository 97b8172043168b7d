/* Copyright 2025, Pulumi Corporation.

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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
)

func render(out io.Writer, format string, result any) error {
	switch format {
	case "table":
		return renderTable(out, result)
	case "json", "":
		raw, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		_, err = fmt.Fprintln(out, string(raw))
		return err
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func renderTable(out io.Writer, result any) error {
	var data pterm.TableData

	switch v := result.(type) {
	case []any:
		rows := make([]map[string]any, 0, len(v))
		columns := map[string]struct{}{}
		for _, item := range v {
			row, ok := item.(map[string]any)
			if !ok {
				row = map[string]any{"value": item}
			}
			for key := range row {
				columns[key] = struct{}{}
			}
			rows = append(rows, row)
		}
		header := make([]string, 0, len(columns))
		for key := range columns {
			header = append(header, key)
		}
		sort.Strings(header)

		data = append(data, header)
		for _, row := range rows {
			line := make([]string, len(header))
			for i, key := range header {
				if value, ok := row[key]; ok {
					line[i] = cell(value)
				}
			}
			data = append(data, line)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		data = append(data, []string{"key", "value"})
		for _, key := range keys {
			data = append(data, []string{key, cell(v[key])})
		}
	default:
		_, err := fmt.Fprintln(out, cell(v))
		return err
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	_, err = fmt.Fprintln(out, table)
	return err
}

func cell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any, []any:
		raw, _ := json.Marshal(v)
		return string(raw)
	default:
		return fmt.Sprint(v)
	}
}

// printMetrics summarizes the request counters and latency histograms.
func printMetrics(out io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	data := pterm.TableData{{"metric", "labels", "value"}}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				labels = append(labels, label.GetName()+"="+label.GetValue())
			}

			value := ""
			switch {
			case metric.GetCounter() != nil:
				value = cell(metric.GetCounter().GetValue())
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				value = fmt.Sprintf("%d calls, %.3fs", h.GetSampleCount(), h.GetSampleSum())
			}
			data = append(data, []string{family.GetName(), strings.Join(labels, ","), value})
		}
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render metrics: %w", err)
	}
	_, err = fmt.Fprintln(out, table)
	return err
}
