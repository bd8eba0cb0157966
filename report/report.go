// Package report turns checkout results into an HTML report with
// summary metrics, an interactive charts page, and a raw JSON export.
package report

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/cartflowhq/cartflow-go/flow"
	"github.com/cartflowhq/cartflow-go/screenshot"
)

// Failure is one error message and how often it occurred.
type Failure struct {
	Error string
	Count int
}

// Summary aggregates a run's results.
type Summary struct {
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	SuccessRate    float64 // percent

	AvgDuration time.Duration
	MaxDuration time.Duration
	MinDuration time.Duration

	// CommonFailures holds the five most frequent error messages.
	CommonFailures []Failure
}

// Summarize computes summary metrics over the results.
func Summarize(results []flow.Result) Summary {
	s := Summary{TotalRuns: len(results)}
	if s.TotalRuns == 0 {
		return s
	}

	var total time.Duration
	failures := make(map[string]int)

	for i, r := range results {
		if r.Status == flow.StatusSuccess {
			s.SuccessfulRuns++
		} else if r.Error != "" {
			failures[r.Error]++
		}

		total += r.Duration
		if i == 0 || r.Duration > s.MaxDuration {
			s.MaxDuration = r.Duration
		}
		if i == 0 || r.Duration < s.MinDuration {
			s.MinDuration = r.Duration
		}
	}

	s.FailedRuns = s.TotalRuns - s.SuccessfulRuns
	s.SuccessRate = float64(s.SuccessfulRuns) / float64(s.TotalRuns) * 100
	s.AvgDuration = total / time.Duration(s.TotalRuns)

	for err, count := range failures {
		s.CommonFailures = append(s.CommonFailures, Failure{Error: err, Count: count})
	}
	sort.Slice(s.CommonFailures, func(i, j int) bool {
		if s.CommonFailures[i].Count != s.CommonFailures[j].Count {
			return s.CommonFailures[i].Count > s.CommonFailures[j].Count
		}
		return s.CommonFailures[i].Error < s.CommonFailures[j].Error
	})
	if len(s.CommonFailures) > 5 {
		s.CommonFailures = s.CommonFailures[:5]
	}

	return s
}

// StepCompletionRates returns the percentage of runs that completed
// each step, in step order.
func StepCompletionRates(results []flow.Result) map[flow.Step]float64 {
	rates := make(map[flow.Step]float64, len(flow.Steps()))
	if len(results) == 0 {
		return rates
	}

	counts := make(map[flow.Step]int)
	for _, r := range results {
		for _, step := range r.StepsCompleted {
			counts[step]++
		}
	}
	for _, step := range flow.Steps() {
		rates[step] = float64(counts[step]) / float64(len(results)) * 100
	}
	return rates
}

// statusColor maps a run status to its bar color.
func statusColor(status flow.Status) string {
	switch status {
	case flow.StatusSuccess:
		return "#27ae60"
	case flow.StatusFailed:
		return "#e74c3c"
	case flow.StatusError:
		return "#f39c12"
	case flow.StatusPending:
		return "#3498db"
	}
	return "#95a5a6"
}

// Output holds the paths of all generated report files.
type Output struct {
	HTMLPath   string
	ChartsPath string
	JSONPath   string
}

// Generator writes report files into an output directory.
type Generator struct {
	outputDir string
	logger    *log.Logger
	now       func() time.Time
	thumbs    *screenshot.Manager
}

// NewGenerator creates a report generator. The output directory is
// created on first use.
func NewGenerator(outputDir string, logger *log.Logger) *Generator {
	return &Generator{
		outputDir: outputDir,
		logger:    logger,
		now:       time.Now,
		thumbs:    screenshot.NewManager(nil),
	}
}

// Generate writes the report page, the charts page, and the JSON
// export, and returns their paths.
func (g *Generator) Generate(results []flow.Result) (Output, error) {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("failed to create report directory: %w", err)
	}

	stamp := g.now().Format("20060102_150405")
	out := Output{
		HTMLPath:   filepath.Join(g.outputDir, fmt.Sprintf("automation_report_%s.html", stamp)),
		ChartsPath: filepath.Join(g.outputDir, fmt.Sprintf("charts_%s.html", stamp)),
		JSONPath:   filepath.Join(g.outputDir, fmt.Sprintf("results_%s.json", stamp)),
	}

	summary := Summarize(results)

	if err := g.writeCharts(out.ChartsPath, results); err != nil {
		return Output{}, err
	}
	if err := g.writeHTML(out.HTMLPath, filepath.Base(out.ChartsPath), results, summary); err != nil {
		return Output{}, err
	}
	if err := g.writeJSON(out.JSONPath, results); err != nil {
		return Output{}, err
	}

	if g.logger != nil {
		g.logger.Info("report generated", "path", out.HTMLPath)
	}
	return out, nil
}

// writeCharts renders the duration and step completion bar charts.
func (g *Generator) writeCharts(path string, results []flow.Result) error {
	durationBar := charts.NewBar()
	durationBar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{
		Title: "Checkout Duration by User",
	}))

	var users []string
	var durations []opts.BarData
	for _, r := range results {
		users = append(users, fmt.Sprintf("user %d", r.UserID))
		durations = append(durations, opts.BarData{
			Value:     float64(r.DurationMS) / 1000.0,
			ItemStyle: &opts.ItemStyle{Color: statusColor(r.Status)},
		})
	}
	durationBar.SetXAxis(users).AddSeries("duration (s)", durations)

	stepBar := charts.NewBar()
	stepBar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{
		Title: "Step Completion Rate (%)",
	}))

	rates := StepCompletionRates(results)
	var steps []string
	var completions []opts.BarData
	for _, step := range flow.Steps() {
		steps = append(steps, string(step))
		completions = append(completions, opts.BarData{
			Value:     rates[step],
			ItemStyle: &opts.ItemStyle{Color: "#3498db"},
		})
	}
	stepBar.SetXAxis(steps).AddSeries("completion (%)", completions)

	page := components.NewPage()
	page.AddCharts(durationBar, stepBar)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create charts file: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("failed to render charts: %w", err)
	}
	return nil
}

type screenshotView struct {
	Name string
	Path string
	// Src is a base64 JPEG thumbnail data URI, empty when the file
	// could not be read or decoded.
	Src template.URL
}

type resultRow struct {
	UserID      int
	Status      flow.Status
	Steps       string
	Duration    string
	OrderID     string
	Error       string
	Screenshots []screenshotView
}

type reportView struct {
	GeneratedAt    string
	Summary        Summary
	SuccessRate    string
	AvgDuration    string
	ChartsFile     string
	Rows           []resultRow
	HasScreenshots bool
}

// screenshotViews reads the captured files and inlines downscaled
// thumbnails so the report stays a single self-contained page plus the
// charts file.
func (g *Generator) screenshotViews(paths []string) []screenshotView {
	var views []screenshotView
	for _, path := range paths {
		view := screenshotView{Name: filepath.Base(path), Path: path}

		if data, err := os.ReadFile(path); err == nil {
			if thumb, err := g.thumbs.Thumbnail(data, 480, 60); err == nil {
				view.Src = template.URL("data:image/jpeg;base64," +
					base64.StdEncoding.EncodeToString(thumb))
			}
		}
		views = append(views, view)
	}
	return views
}

// writeHTML renders the main report page.
func (g *Generator) writeHTML(path, chartsFile string, results []flow.Result, summary Summary) error {
	view := reportView{
		GeneratedAt: g.now().Format("2006-01-02 15:04:05"),
		Summary:     summary,
		SuccessRate: fmt.Sprintf("%.1f%%", summary.SuccessRate),
		AvgDuration: fmt.Sprintf("%.2fs", summary.AvgDuration.Seconds()),
		ChartsFile:  chartsFile,
	}

	for _, r := range results {
		steps := "None"
		if len(r.StepsCompleted) > 0 {
			var names []string
			for _, s := range r.StepsCompleted {
				names = append(names, string(s))
			}
			steps = strings.Join(names, ", ")
		}

		orderID := r.OrderID
		if orderID == "" {
			orderID = "N/A"
		}

		shots := g.screenshotViews(r.Screenshots)
		if len(shots) > 0 {
			view.HasScreenshots = true
		}

		view.Rows = append(view.Rows, resultRow{
			UserID:      r.UserID,
			Status:      r.Status,
			Steps:       steps,
			Duration:    fmt.Sprintf("%.2f", r.Duration.Seconds()),
			OrderID:     orderID,
			Error:       r.Error,
			Screenshots: shots,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := reportTemplate.Execute(f, view); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// writeJSON dumps the raw results for machine consumption.
func (g *Generator) writeJSON(path string, results []flow.Result) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results JSON: %w", err)
	}
	return nil
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Checkout Automation Report</title>
<style>
	body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; margin: 0; }
	.container { max-width: 1200px; margin: 0 auto; padding: 20px; }
	.header { text-align: center; margin-bottom: 30px; padding-bottom: 20px; border-bottom: 1px solid #eee; }
	.header h1 { margin-bottom: 5px; color: #2c3e50; }
	.header p { color: #7f8c8d; margin: 0; }
	.summary { background-color: #f8f9fa; padding: 20px; border-radius: 5px; margin-bottom: 30px; }
	.metrics { display: flex; flex-wrap: wrap; margin: 0 -10px; }
	.metric { flex: 1; margin: 10px; background: white; padding: 15px; border-radius: 5px;
	          box-shadow: 0 1px 3px rgba(0,0,0,0.1); min-width: 200px; }
	.metric h3 { margin-top: 0; color: #2c3e50; font-size: 16px; }
	.metric p { font-size: 24px; font-weight: bold; margin: 10px 0 0; color: #3498db; }
	.metric p.error { color: #e74c3c; }
	.metric p.success { color: #27ae60; }
	.success-rate { text-align: center; font-size: 72px; font-weight: bold; margin: 30px 0; color: #27ae60; }
	table { width: 100%; border-collapse: collapse; margin-bottom: 20px; }
	th, td { padding: 12px 15px; text-align: left; border-bottom: 1px solid #ddd; }
	th { background-color: #f5f5f5; font-weight: bold; color: #2c3e50; }
	tr:hover { background-color: #f9f9f9; }
	.failures { background-color: #fff5f5; padding: 20px; border-radius: 5px; margin-bottom: 30px; }
	.failures h2 { margin-top: 0; color: #c0392b; }
	.charts-link { margin-bottom: 30px; }
	.screenshots { margin-bottom: 30px; }
	.screenshots h3 { color: #2c3e50; margin-bottom: 10px; }
	.shot { display: inline-block; margin: 0 15px 15px 0; vertical-align: top; }
	.shot img { max-width: 480px; border: 1px solid #ddd; border-radius: 4px; display: block; }
	.shot figcaption { font-size: 12px; color: #7f8c8d; margin-top: 5px; }
</style>
</head>
<body>
<div class="container">
	<div class="header">
		<h1>Checkout Automation Report</h1>
		<p>Generated on {{ .GeneratedAt }}</p>
	</div>

	<div class="summary">
		<h2>Summary</h2>
		<div class="metrics">
			<div class="metric"><h3>Total Runs</h3><p>{{ .Summary.TotalRuns }}</p></div>
			<div class="metric"><h3>Successful Runs</h3><p class="success">{{ .Summary.SuccessfulRuns }}</p></div>
			<div class="metric"><h3>Failed Runs</h3><p class="error">{{ .Summary.FailedRuns }}</p></div>
			<div class="metric"><h3>Average Duration</h3><p>{{ .AvgDuration }}</p></div>
		</div>
		<div class="success-rate">{{ .SuccessRate }}</div>
	</div>

	<div class="charts-link">
		<h2>Charts</h2>
		<p><a href="{{ .ChartsFile }}">Interactive charts: duration by user, step completion rate</a></p>
	</div>

	{{ if .Summary.CommonFailures }}
	<div class="failures">
		<h2>Common Failures</h2>
		<table>
			<tr><th>Error</th><th>Count</th></tr>
			{{ range .Summary.CommonFailures }}
			<tr><td>{{ .Error }}</td><td>{{ .Count }}</td></tr>
			{{ end }}
		</table>
	</div>
	{{ end }}

	<h2>Detailed Results</h2>
	<table>
		<tr><th>User ID</th><th>Status</th><th>Steps Completed</th><th>Duration (s)</th><th>Order ID</th><th>Error</th></tr>
		{{ range .Rows }}
		<tr>
			<td>{{ .UserID }}</td>
			<td>{{ .Status }}</td>
			<td>{{ .Steps }}</td>
			<td>{{ .Duration }}</td>
			<td>{{ .OrderID }}</td>
			<td>{{ .Error }}</td>
		</tr>
		{{ end }}
	</table>

	{{ if .HasScreenshots }}
	<h2>Screenshots</h2>
	{{ range .Rows }}
	{{ if .Screenshots }}
	<div class="screenshots">
		<h3>User {{ .UserID }}</h3>
		{{ range .Screenshots }}
		<figure class="shot">
			{{ if .Src }}<img src="{{ .Src }}" alt="{{ .Name }}">{{ end }}
			<figcaption>{{ .Name }}</figcaption>
		</figure>
		{{ end }}
	</div>
	{{ end }}
	{{ end }}
	{{ end }}
</div>
</body>
</html>
`))
