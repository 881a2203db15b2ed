package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/marmos91/staticd/internal/cli/output"
	"github.com/marmos91/staticd/pkg/loadtest"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	loadtestCfg    loadtest.Config
	loadtestOutput string
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Send concurrent requests to a running server",
	Long: `Send a burst of concurrent GET requests to a running staticd server and
report how many succeeded, failed, or were turned away by admission control.

Failure modes simulate client-side problems:
  timeout           every request uses a 1ms timeout
  connection_error  every attempt is counted as a rejection without a request
  random_error      each attempt picks one of the two above or a normal request

Examples:
  # 50 requests, 10 at a time
  staticd loadtest

  # Overload a small pool and retry rejected attempts
  staticd loadtest --requests 500 --concurrency 100 --retries 3

  # Turn the cache off first, then measure
  staticd loadtest --toggle-cache

  # JSON report
  staticd loadtest -o json`,
	RunE: runLoadtest,
}

func init() {
	flags := loadtestCmd.Flags()
	flags.StringVar(&loadtestCfg.URL, "url", loadtest.DefaultURL, "Server URL")
	flags.IntVarP(&loadtestCfg.Requests, "requests", "r", loadtest.DefaultRequests, "Total number of requests")
	flags.IntVarP(&loadtestCfg.Concurrency, "concurrency", "c", loadtest.DefaultConcurrency, "Requests in flight at once")
	flags.DurationVar(&loadtestCfg.Delay, "delay", 0, "Delay between submitting requests")
	flags.StringVar(&loadtestCfg.FailMode, "fail", loadtest.FailNone, "Simulated failure mode (timeout|connection_error|random_error)")
	flags.BoolVar(&loadtestCfg.ToggleCache, "toggle-cache", false, "Toggle the server cache before the test")
	flags.DurationVar(&loadtestCfg.Timeout, "timeout", loadtest.DefaultTimeout, "Per-request timeout")
	flags.IntVar(&loadtestCfg.Retries, "retries", 0, "Retries for rejected attempts (exponential backoff)")
	flags.StringVarP(&loadtestOutput, "output", "o", "table", "Output format (table|json|yaml)")
	flags.SetNormalizeFunc(loadtestFlagAliases)
}

// loadtestFlagAliases accepts the older --threads and --toggle_cache spellings.
func loadtestFlagAliases(f *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "threads":
		name = "concurrency"
	case "toggle_cache":
		name = "toggle-cache"
	}
	return pflag.NormalizedName(name)
}

func runLoadtest(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(loadtestOutput)
	if err != nil {
		return err
	}

	cfg := loadtestCfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := loadtest.Run(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load test failed: %w", err)
	}
	if ctx.Err() != nil {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted: reporting the requests completed so far")
	}

	return printLoadtestReport(output.NewPrinter(cmd.OutOrStdout(), format, false), report)
}

func printLoadtestReport(p *output.Printer, report *loadtest.Report) error {
	summary := report.Summary()
	if p.Format() == output.FormatTable {
		p.Printf("Target: %s\n", summary.URL)
		if summary.FailMode != "" {
			p.Printf("Failure mode: %s\n", summary.FailMode)
		}
		if summary.ToggleResponse != "" {
			p.Printf("Cache toggle: %s\n", summary.ToggleResponse)
		}
		p.Printf("\n")
	}
	return p.Print(summary)
}
