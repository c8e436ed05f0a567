package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "poolbench",
		Short:         "Drive synthetic requests through a fixed worker pool and measure latency",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Load shape
	flags.IntP("requests", "q", DefaultRequests, "Number of requests in the batch")
	flags.Float64P("qps", "r", DefaultRate, "Target arrival rate in requests per second")
	flags.IntP("pool-size", "s", DefaultPoolSize, "Number of workers in the pool")
	flags.String("mode", ModeThreaded, "Dispatch mode: 'threaded' or 'polling'")
	flags.Bool("single-thread", false, "Use the single-threaded polling dispatcher (same as --mode polling)")
	flags.String("arrival", ArrivalRandom, "Arrival distribution: 'random', 'uniform' or 'fixed'")
	flags.Bool("fixed-dist", false, "Replay dist_<n>.txt from --dist-dir (same as --arrival fixed)")
	flags.String("dist-dir", ".", "Directory holding fixed distribution files")
	flags.Int64("seed", 0, "Seed for generated arrivals and simulated work (0 seeds from the clock)")
	flags.Bool("warm-up", false, "Execute request 0 once before the timed run")

	// Simulated device
	flags.Bool("single-queue", false, "Pin every worker to device queue 0")
	flags.Int("queue-count", DefaultQueueCount, "Number of device queues when not in single-queue mode")
	flags.Duration("work-time", DefaultWorkTime, "Nominal device time per request")
	flags.Float64("work-jitter", 0, "Relative jitter applied to work time (0-1)")
	flags.Float64("failure-rate", 0, "Probability that a request fails (0-1)")
	flags.StringSlice("stages", nil, "Stage names reported per request (repeatable)")
	flags.Bool("profile", false, "Collect per-stage timing statistics")

	// Dispatcher tuning
	flags.Duration("stall-threshold", DefaultStallThreshold, "Warn when a worker acquisition waits longer than this (negative disables)")
	flags.Duration("poll-interval", 0, "Sleep between idle polling sweeps (0 yields instead)")

	// Output flags
	flags.Bool("log", false, "Enable debug logging (same as --log-level debug)")
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.String("results-file", "", "Append a summary row to this CSV results table")
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.String("html-output", "", "Generate HTML report to the specified file path")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.Duration("progress-interval", 0, "Print a progress line at this interval (0 disables)")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.Bool("print-config", false, "Print the effective configuration as YAML and exit")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Performance thresholds (repeatable, e.g., 'latency:p99 < 50')")

	// Tracing flags
	flags.Bool("tracing-enable", false, "Export a span per request over OTLP")
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of requests to trace (0-1)")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("requests") {
		val, err := fs.GetInt("requests")
		if err != nil {
			return err
		}
		cfg.Requests = val
	}
	if fs.Changed("qps") {
		val, err := fs.GetFloat64("qps")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("pool-size") {
		val, err := fs.GetInt("pool-size")
		if err != nil {
			return err
		}
		cfg.PoolSize = val
	}
	if fs.Changed("mode") {
		val, err := fs.GetString("mode")
		if err != nil {
			return err
		}
		cfg.Mode = val
	}
	if fs.Changed("single-thread") {
		val, err := fs.GetBool("single-thread")
		if err != nil {
			return err
		}
		if val {
			cfg.Mode = ModePolling
		}
	}
	if fs.Changed("arrival") {
		val, err := fs.GetString("arrival")
		if err != nil {
			return err
		}
		cfg.Arrival = val
	}
	if fs.Changed("fixed-dist") {
		val, err := fs.GetBool("fixed-dist")
		if err != nil {
			return err
		}
		if val {
			cfg.Arrival = ArrivalFixed
		}
	}
	if fs.Changed("dist-dir") {
		val, err := fs.GetString("dist-dir")
		if err != nil {
			return err
		}
		cfg.DistDir = strings.TrimSpace(val)
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("warm-up") {
		val, err := fs.GetBool("warm-up")
		if err != nil {
			return err
		}
		cfg.WarmUp = val
	}
	if fs.Changed("single-queue") {
		val, err := fs.GetBool("single-queue")
		if err != nil {
			return err
		}
		cfg.SingleQueue = val
	}
	if fs.Changed("queue-count") {
		val, err := fs.GetInt("queue-count")
		if err != nil {
			return err
		}
		cfg.QueueCount = val
	}
	if fs.Changed("work-time") {
		val, err := fs.GetDuration("work-time")
		if err != nil {
			return err
		}
		cfg.WorkTime = val
	}
	if fs.Changed("work-jitter") {
		val, err := fs.GetFloat64("work-jitter")
		if err != nil {
			return err
		}
		cfg.WorkJitter = val
	}
	if fs.Changed("failure-rate") {
		val, err := fs.GetFloat64("failure-rate")
		if err != nil {
			return err
		}
		cfg.FailureRate = val
	}
	if fs.Changed("stages") {
		val, err := fs.GetStringSlice("stages")
		if err != nil {
			return err
		}
		cfg.Stages = val
	}
	if fs.Changed("profile") {
		val, err := fs.GetBool("profile")
		if err != nil {
			return err
		}
		cfg.Profile = val
	}
	if fs.Changed("stall-threshold") {
		val, err := fs.GetDuration("stall-threshold")
		if err != nil {
			return err
		}
		cfg.StallThreshold = val
	}
	if fs.Changed("poll-interval") {
		val, err := fs.GetDuration("poll-interval")
		if err != nil {
			return err
		}
		cfg.PollInterval = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	} else if fs.Changed("log") {
		val, err := fs.GetBool("log")
		if err != nil {
			return err
		}
		if val {
			cfg.LogLevel = "debug"
		}
	}
	if fs.Changed("results-file") {
		val, err := fs.GetString("results-file")
		if err != nil {
			return err
		}
		cfg.ResultsFile = strings.TrimSpace(val)
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("progress-interval") {
		val, err := fs.GetDuration("progress-interval")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if fs.Changed("print-config") {
		val, err := fs.GetBool("print-config")
		if err != nil {
			return err
		}
		cfg.PrintConfig = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	return applyTracingFlags(&cfg.Tracing, fs)
}

func applyTracingFlags(tc *TracingConfig, fs *pflag.FlagSet) error {
	if fs.Changed("tracing-enable") {
		val, err := fs.GetBool("tracing-enable")
		if err != nil {
			return err
		}
		tc.Enable = val
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		tc.Protocol = val
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		tc.ServiceName = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		tc.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		tc.Insecure = val
	}
	return nil
}
