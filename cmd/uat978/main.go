// Command uat978 is the CLI entrypoint: it loads configuration from an
// optional YAML file and flags, wires up internal/app's Application,
// and runs the receiver until SIGINT/SIGTERM.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"uat978/internal/app"
	"uat978/internal/config"
)

// exit codes: 0 clean end-of-input, 1 abnormal termination, 64 usage error.
const (
	exitClean = 0
	exitError = 1
	exitUsage = 64
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run builds a uat978 Config by loading an optional YAML file first
// (found via a pre-scan for --config/-c) and then layering explicit
// CLI flags on top of it, so flags always win over the file and the
// file always wins over built-in defaults.
func run(args []string) int {
	configPath := preScanConfigPath(args)

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitUsage
		}
		cfg = loaded
	}

	var (
		showVersion  bool
		stdin        bool
		filePath     string
		fileThrottle bool
		rawPorts     []string
		jsonPorts    []string
	)

	rootCmd := &cobra.Command{
		Use:   "uat978",
		Short: "UAT 978MHz receiver and decoder",
		Long: `uat978 decodes the 978MHz Universal Access Transceiver datalink.

Captures I/Q samples from an RTL-SDR device, a file, or stdin, demodulates
and FEC-corrects UAT downlink/uplink frames, parses ADS-B fields, and
tracks per-aircraft state over a raw-message and JSON/HTTP interface.

Example usage:
  uat978 --device 0 --gain 0
  uat978 --file samples.cu8 --format cu8
  cat samples.cu8 | uat978 --stdin --format cu8`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				app.ShowVersion()
				return nil
			}

			if stdin {
				cfg.InputSource = config.SourceStdin
			} else if filePath != "" {
				cfg.InputSource = config.SourceFile
				cfg.FilePath = filePath
			}
			if cmd.Flags().Changed("file-throttle") {
				cfg.FileThrottle = fileThrottle
			}
			if len(rawPorts) > 0 {
				cfg.RawTCPListen = rawPorts
			}
			if len(jsonPorts) > 0 {
				cfg.JSONTCPListen = jsonPorts
			}

			if err := cfg.Validate(); err != nil {
				return usageError{err}
			}

			application, err := app.New(cfg)
			if err != nil {
				return usageError{err}
			}
			return application.Run()
		},
	}

	flags := rootCmd.Flags()
	flags.Uint32VarP(&cfg.FrequencyHz, "frequency", "f", cfg.FrequencyHz, "Frequency to tune to (Hz)")
	flags.Uint32VarP(&cfg.SampleRate, "sample-rate", "s", cfg.SampleRate, "Sample rate (Hz)")
	flags.IntVarP(&cfg.GainDB, "gain", "g", cfg.GainDB, "Gain setting in dB (0 for auto)")
	flags.IntVarP(&cfg.PPMError, "ppm", "p", cfg.PPMError, "Frequency correction (PPM)")
	flags.StringVar(&cfg.Antenna, "antenna", cfg.Antenna, "SDR antenna selection")
	flags.IntVarP(&cfg.DeviceIndex, "device", "d", cfg.DeviceIndex, "RTL-SDR device index")
	flags.StringVar(&cfg.SampleFormat, "format", cfg.SampleFormat, "Sample format: cu8, cs8, cs16, cf32")

	flags.BoolVar(&stdin, "stdin", false, "Read samples from stdin instead of an RTL-SDR device")
	flags.StringVar(&filePath, "file", cfg.FilePath, "Read samples from a file instead of an RTL-SDR device")
	flags.BoolVar(&fileThrottle, "file-throttle", cfg.FileThrottle, "Pace file playback to the configured sample rate")

	flags.StringSliceVar(&rawPorts, "raw-port", cfg.RawTCPListen, "TCP listen address(es) for the raw-message text protocol")
	flags.StringSliceVar(&jsonPorts, "json-port", cfg.JSONTCPListen, "TCP listen address(es) for the per-message JSON stream")
	flags.BoolVar(&cfg.RawStdout, "raw-stdout", cfg.RawStdout, "Write raw-message text lines to stdout")
	flags.BoolVar(&cfg.JSONStdout, "json-stdout", cfg.JSONStdout, "Write per-message JSON to stdout")

	flags.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for rotating log files")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose (debug) logging")

	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Metrics listen address (no server is started on it; /metrics is served on --http-addr)")
	flags.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP snapshot/websocket listen address")

	flags.IntVar(&cfg.PurgeTimeoutS, "purge-timeout", cfg.PurgeTimeoutS, "Aircraft purge timeout (seconds)")
	flags.StringVar(&cfg.SnapshotDir, "snapshot-dir", cfg.SnapshotDir, "Directory for the aircraft.json snapshot and history")
	flags.IntVar(&cfg.HistoryCount, "history-count", cfg.HistoryCount, "Number of history_N.json files to retain")
	flags.IntVar(&cfg.HistoryIntervalS, "history-interval", cfg.HistoryIntervalS, "History snapshot interval (seconds)")
	flags.StringVar(&cfg.TSVReportPath, "tsv-report", cfg.TSVReportPath, "Path to append TSV aircraft reports to")

	flags.StringP("config", "c", "", "Path to a YAML configuration file (already consulted before flag parsing)")
	flags.BoolVar(&showVersion, "version", false, "Show version information")

	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		var uErr usageError
		if asUsageError(err, &uErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", uErr.err)
			return exitUsage
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	return exitClean
}

// preScanConfigPath finds --config/-c's value without triggering
// cobra's usual parsing or exit-on-error behavior, so the YAML file it
// names can be loaded before the real flag set (whose defaults must
// reflect the file's values) is constructed.
func preScanConfigPath(args []string) string {
	scan := pflag.NewFlagSet("uat978-prescan", pflag.ContinueOnError)
	scan.ParseErrorsWhitelist.UnknownFlags = true
	scan.Usage = func() {}
	path := scan.StringP("config", "c", "", "")
	_ = scan.Parse(args)
	return *path
}

// usageError marks a configuration error (the exit-64 class)
// as distinct from a hardware/IO or invariant-violation failure.
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

func asUsageError(err error, target *usageError) bool {
	for err != nil {
		if uErr, ok := err.(usageError); ok {
			*target = uErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
