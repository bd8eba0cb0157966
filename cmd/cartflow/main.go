// Command cartflow runs parallel checkout journeys against a
// storefront and writes an HTML report of the results.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cartflow "github.com/cartflowhq/cartflow-go"
	"github.com/cartflowhq/cartflow-go/flow"
	"github.com/cartflowhq/cartflow-go/logging"
	"github.com/cartflowhq/cartflow-go/report"
	"github.com/cartflowhq/cartflow-go/screenshot"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitHarness = 2
)

var (
	flagUsers         int
	flagBaseURL       string
	flagHeadless      bool
	flagHighlight     bool
	flagSlowMotion    time.Duration
	flagTimeout       time.Duration
	flagViewport      string
	flagDataDir       string
	flagScreenshotDir string
	flagReportDir     string
	flagOpenReport    bool
	flagLogLevel      string
	flagLogFile       string
)

func main() {
	os.Exit(run())
}

func run() int {
	// Local overrides; absence is not an error.
	godotenv.Load()

	root := &cobra.Command{
		Use:   "cartflow",
		Short: "Run parallel browser checkout journeys against a storefront",
		Long: `cartflow drives real browser sessions through a full e-commerce
checkout: login, product search, add to cart, shipping and payment.
Payment provider calls are mocked in-browser so no real charges occur.
Each run produces an HTML report with per-user results and charts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCheckout,
	}

	root.Flags().IntVarP(&flagUsers, "users", "u", envInt("CARTFLOW_USERS", 3), "number of parallel user sessions")
	root.Flags().StringVarP(&flagBaseURL, "base-url", "b", envStr("BASE_URL", "https://demo.saleor.io"), "storefront base URL")
	root.Flags().BoolVar(&flagHeadless, "headless", envBool("HEADLESS", true), "run the browser without a window")
	root.Flags().BoolVar(&flagHighlight, "highlight", false, "highlight elements before acting on them (headful only)")
	root.Flags().DurationVar(&flagSlowMotion, "slow-motion", 0, "delay before each browser action")
	root.Flags().DurationVar(&flagTimeout, "timeout", 3*time.Minute, "timeout per user session")
	root.Flags().StringVar(&flagViewport, "viewport", "desktop", "viewport preset: desktop, large, tablet, mobile")
	root.Flags().StringVar(&flagDataDir, "data-dir", "testdata", "directory with fixture files (users.yaml, products.yaml, ...)")
	root.Flags().StringVar(&flagScreenshotDir, "screenshots-dir", "screenshots", "directory for failure screenshots")
	root.Flags().StringVarP(&flagReportDir, "report", "r", "reports", "directory for HTML reports")
	root.Flags().BoolVar(&flagOpenReport, "open-report", false, "open the HTML report when the run finishes")
	root.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.Flags().StringVar(&flagLogFile, "log-file", "", "also write logs to this file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitHarness
	}
	return exitCode
}

// exitCode carries the result status out of runCheckout, since cobra
// only surfaces errors.
var exitCode = exitOK

func runCheckout(cmd *cobra.Command, args []string) error {
	logOpts := logging.DefaultOptions()
	logOpts.Level = flagLogLevel
	logOpts.File = flagLogFile
	logOpts.Prefix = "cartflow"
	logger, closeLogs, err := logging.New(logOpts)
	if err != nil {
		return err
	}
	defer closeLogs()

	viewport, err := viewportPreset(flagViewport)
	if err != nil {
		return err
	}

	harness, err := cartflow.New(cartflow.Config{
		BaseURL:        flagBaseURL,
		Users:          flagUsers,
		Headless:       flagHeadless,
		Highlight:      flagHighlight,
		SlowMotion:     flagSlowMotion,
		SessionTimeout: flagTimeout,
		Viewport:       viewport,
		DataDir:        flagDataDir,
		ScreenshotConfig: &screenshot.Config{
			Enabled:    true,
			StorageDir: flagScreenshotDir,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting checkout run", "users", flagUsers, "base_url", flagBaseURL)
	started := time.Now()

	results, err := harness.Run(ctx)
	if err != nil {
		return err
	}

	out, err := report.NewGenerator(flagReportDir, logger).Generate(results)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	printSummary(results, time.Since(started), out)

	if flagOpenReport {
		if err := openInBrowser(out.HTMLPath); err != nil {
			logger.Warn("failed to open report", "err", err)
		}
	}

	summary := report.Summarize(results)
	if summary.FailedRuns > 0 {
		exitCode = exitFailed
	}
	return nil
}

func viewportPreset(name string) (*cartflow.Viewport, error) {
	switch name {
	case "desktop":
		return cartflow.DesktopViewport, nil
	case "large":
		return cartflow.LargeDesktopViewport, nil
	case "tablet":
		return cartflow.TabletViewport, nil
	case "mobile":
		return cartflow.MobileViewport, nil
	default:
		return nil, fmt.Errorf("unknown viewport preset %q", name)
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func printSummary(results []flow.Result, elapsed time.Duration, out report.Output) {
	summary := report.Summarize(results)

	fmt.Println()
	fmt.Println(titleStyle.Render("Checkout run complete"))
	fmt.Printf("  Sessions:     %d\n", summary.TotalRuns)
	fmt.Printf("  Succeeded:    %s\n", successStyle.Render(strconv.Itoa(summary.SuccessfulRuns)))
	fmt.Printf("  Failed:       %s\n", failStyle.Render(strconv.Itoa(summary.FailedRuns)))
	fmt.Printf("  Success rate: %.1f%%\n", summary.SuccessRate)
	fmt.Printf("  Elapsed:      %s\n", elapsed.Round(time.Millisecond))
	fmt.Println()

	for _, r := range results {
		status := successStyle.Render(string(r.Status))
		if r.Status != flow.StatusSuccess {
			status = failStyle.Render(string(r.Status))
		}
		line := fmt.Sprintf("  user %d: %s", r.UserID, status)
		if r.OrderID != "" {
			line += dimStyle.Render("  order " + r.OrderID)
		}
		if r.Error != "" {
			line += dimStyle.Render("  " + r.Error)
		}
		fmt.Println(line)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("  report: " + out.HTMLPath))
}

func openInBrowser(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
