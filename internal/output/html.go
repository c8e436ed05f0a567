package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/threshold"
)

// HTMLReportData is the template input for GenerateHTMLReport.
type HTMLReportData struct {
	GeneratedAt      string
	Run              RunInfo
	Summary          metrics.Summary
	ThresholdSummary *ThresholdSummary
	SeriesJSON       string
	HasSeries        bool
}

// ThresholdSummary aggregates threshold outcomes for display.
type ThresholdSummary struct {
	Total   int
	Passed  int
	Failed  int
	Results []ThresholdResultJSON
}

// ThresholdResultJSON is a flattened threshold outcome.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Aggregate string  `json:"aggregate"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

func thresholdRows(results []threshold.Result) []ThresholdResultJSON {
	if len(results) == 0 {
		return nil
	}
	rows := make([]ThresholdResultJSON, len(results))
	for i, tr := range results {
		rows[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
		}
	}
	return rows
}

// seriesPayload is the chart data: request ids plus one column per series.
// Absent values are encoded as null.
type seriesPayload struct {
	IDs     []int        `json:"ids"`
	Latency []*float64   `json:"latency_ms"`
	Device  []*float64   `json:"device_ms"`
	Stages  [][]*float64 `json:"stages_ms,omitempty"`
	Names   []string     `json:"stage_names,omitempty"`
}

func nullable(col []float64) []*float64 {
	out := make([]*float64, len(col))
	for i := range col {
		if math.IsNaN(col[i]) {
			continue
		}
		v := col[i]
		out[i] = &v
	}
	return out
}

// GenerateHTMLReport generates a standalone HTML report with an embedded
// per-request latency chart. series is the collector's Series output.
func GenerateHTMLReport(w io.Writer, info RunInfo, sum metrics.Summary, series map[string][]float64, thresholdResults []threshold.Result) error {
	var thresholdSummary *ThresholdSummary
	if rows := thresholdRows(thresholdResults); rows != nil {
		thresholdSummary = &ThresholdSummary{Total: len(rows), Results: rows}
		for _, r := range rows {
			if r.Pass {
				thresholdSummary.Passed++
			} else {
				thresholdSummary.Failed++
			}
		}
	}

	latency := series[metrics.SeriesLatency]
	payload := seriesPayload{
		IDs:     make([]int, len(latency)),
		Latency: nullable(latency),
		Device:  nullable(series[metrics.SeriesDevice]),
	}
	for i := range payload.IDs {
		payload.IDs[i] = i
	}
	for _, st := range sum.Stages {
		payload.Stages = append(payload.Stages, nullable(series[metrics.StageSeriesName(st.Index)]))
		payload.Names = append(payload.Names, st.Name)
	}

	seriesJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Run:              info,
		Summary:          sum,
		ThresholdSummary: thresholdSummary,
		SeriesJSON:       string(seriesJSON),
		HasSeries:        len(latency) > 0,
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatPercent": func(part, total int) string {
			if total == 0 {
				return "0.0"
			}
			return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("parse report template: %w", err)
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Pool Benchmark Report</title>
    <style>
        body { margin: 0; padding: 24px; background: #eef1f4; color: #1f2933; font: 15px/1.5 system-ui, sans-serif; }
        .container { max-width: 1280px; margin: 0 auto; background: #fff; border: 1px solid #d3d9e0; }
        header { padding: 24px 32px; background: #1f3a5f; color: #fff; }
        header h1 { margin: 0 0 6px; font-size: 1.7rem; }
        header .meta { font-size: 0.85rem; color: #c7d4e5; }
        .content { padding: 32px; }
        .grid, .latency-grid { display: grid; gap: 16px; }
        .grid { grid-template-columns: repeat(4, 1fr); margin-bottom: 32px; }
        .latency-grid { grid-template-columns: repeat(6, 1fr); }
        .card, .latency-item { background: #f6f8fa; padding: 16px; border-top: 3px solid #1f3a5f; }
        .card.success { border-top-color: #2f9e62; }
        .card.error { border-top-color: #c9353b; }
        .card h3, .latency-item .label { margin: 0 0 6px; font-size: 0.8rem; color: #5d6b7a; text-transform: uppercase; }
        .card .value, .latency-item .value { font-size: 1.6rem; font-weight: 700; }
        .latency-item .value { font-size: 1.1rem; }
        .card .subvalue { font-size: 0.8rem; color: #5d6b7a; }
        .section { margin-bottom: 32px; }
        .section h2 { font-size: 1.3rem; border-bottom: 1px solid #d3d9e0; padding-bottom: 6px; }
        .chart-container { border: 1px solid #d3d9e0; padding: 16px; }
        .chart-container h3 { margin: 0 0 12px; font-size: 1rem; }
        .chart { width: 100%; height: 300px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 8px 10px; border-bottom: 1px solid #e3e8ed; }
        th { background: #f6f8fa; font-size: 0.8rem; text-transform: uppercase; color: #5d6b7a; }
        .badge { padding: 2px 10px; font-size: 0.8rem; font-weight: 600; border-radius: 10px; }
        .badge-success { background: #dcf3e6; color: #1d6b41; }
        .badge-error { background: #fbe0e1; color: #8e1f24; }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>Pool Benchmark Report</h1>
            <div class="meta">Run {{.Run.RunID}} | {{.Run.Mode}} mode | pool {{.Run.PoolSize}} | {{.Run.Arrival}} arrivals at {{formatFloat .Run.Rate}} req/s</div>
            <div class="meta">Generated: {{.GeneratedAt}} | Wall span: {{formatDuration .Summary.Span}}</div>
        </header>
        
        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Total Requests</h3>
                    <div class="value">{{.Summary.Total}}</div>
                </div>
                <div class="card success">
                    <h3>Completed</h3>
                    <div class="value">{{.Summary.Completed}}</div>
                    <div class="subvalue">{{formatPercent .Summary.Completed .Summary.Total}}%</div>
                </div>
                <div class="card error">
                    <h3>Failed</h3>
                    <div class="value">{{.Summary.Failed}}</div>
                    <div class="subvalue">{{formatPercent .Summary.Failed .Summary.Total}}%</div>
                </div>
                <div class="card">
                    <h3>Requests/sec</h3>
                    <div class="value">{{formatFloat .Summary.Throughput}}</div>
                </div>
            </div>

            {{if .HasSeries}}
            <div class="section">
                <h2>Per-Request Timings</h2>
                
                <div class="chart-container">
                    <h3>Latency by Request (ms)</h3>
                    <div id="latency-chart" class="chart"></div>
                </div>
            </div>
            {{end}}

            <div class="section">
                <h2>Latency Statistics</h2>
                <div class="latency-grid">
                    <div class="latency-item">
                        <div class="label">Min</div>
                        <div class="value">{{formatDuration .Summary.Latency.Min}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">Max</div>
                        <div class="value">{{formatDuration .Summary.Latency.Max}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">Mean</div>
                        <div class="value">{{formatDuration .Summary.Latency.Mean}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">P50</div>
                        <div class="value">{{formatDuration .Summary.Latency.P50}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">P90</div>
                        <div class="value">{{formatDuration .Summary.Latency.P90}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">P99</div>
                        <div class="value">{{formatDuration .Summary.Latency.P99}}</div>
                    </div>
                </div>
            </div>

            {{if .Summary.Stages}}
            <div class="section">
                <h2>Stages (envelope {{formatDuration .Summary.Envelope}})</h2>
                <table>
                    <thead>
                        <tr>
                            <th>#</th>
                            <th>Stage</th>
                            <th>Min</th>
                            <th>Max</th>
                            <th>Mean</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Summary.Stages}}
                        <tr>
                            <td>{{.Index}}</td>
                            <td><strong>{{.Name}}</strong></td>
                            <td>{{formatDuration .Min}}</td>
                            <td>{{formatDuration .Max}}</td>
                            <td>{{formatDuration .Mean}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Threshold</th>
                            <th>Metric</th>
                            <th>Expected</th>
                            <th>Actual</th>
                            <th>Status</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Metric}} ({{.Aggregate}})</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">✓ PASS</span>
                                {{else}}
                                <span class="badge badge-error">✗ FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Summary.Workers}}
            <div class="section">
                <h2>Work Distribution</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Worker</th>
                            <th>Queue</th>
                            <th>Completed</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Summary.Workers}}
                        <tr>
                            <td><strong>{{.Worker}}</strong></td>
                            <td>{{.Queue}}</td>
                            <td>{{.Count}} ({{formatPercent .Count $.Summary.Completed}}%)</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            <div class="section">
                <h2>Configuration</h2>
                <table>
                    <tbody>
                        <tr><td>Requests</td><td>{{.Run.Requests}}</td></tr>
                        <tr><td>Warm-up</td><td>{{.Run.WarmUp}}</td></tr>
                        <tr><td>Queue mode</td><td>{{.Run.QueueMode}}</td></tr>
                        <tr><td>Seed</td><td>{{.Run.Seed}}</td></tr>
                        <tr><td>Work time</td><td>{{formatDuration .Run.WorkTime}}</td></tr>
                        <tr><td>Profiling</td><td>{{.Run.Profile}}</td></tr>
                    </tbody>
                </table>
            </div>
        </div>
    </div>

    {{if .HasSeries}}
    <script>
        const seriesJSON = {{.SeriesJSON}};
        const series = JSON.parse(seriesJSON);

        if (series && series.ids.length > 0) {
            const data = [series.ids, series.latency_ms, series.device_ms];
            const lines = [
                { label: "Request" },
                {
                    label: "Latency",
                    stroke: "#1f3a5f",
                    fill: "rgba(31, 58, 95, 0.08)",
                    width: 2
                },
                {
                    label: "Device",
                    stroke: "#2f9e62",
                    width: 2
                }
            ];
            const palette = ["#f59e0b", "#ef4444", "#8b5cf6", "#0ea5e9"];
            (series.stages_ms || []).forEach((col, i) => {
                data.push(col);
                lines.push({
                    label: series.stage_names[i],
                    stroke: palette[i % palette.length],
                    width: 1
                });
            });

            new uPlot({
                title: "Latency by Request",
                width: document.getElementById('latency-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: lines,
                axes: [
                    { label: "Request id" },
                    { label: "Latency (ms)" }
                ]
            }, data, document.getElementById('latency-chart'));
        }
    </script>
    {{end}}
</body>
</html>
`
