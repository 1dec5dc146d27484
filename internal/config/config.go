// Package config loads the aggregate receiver configuration: YAML
// file defaults merged under CLI flags, using the same
// Default*-constants-plus-struct pattern as gopkg.in/yaml.v3 decoding
// in the style of madpsy-ka9q_ubersdr's Config struct.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default values for the UAT 978MHz band.
const (
	DefaultFrequencyHz      = 978_000_000
	DefaultSampleRateHz     = 2_083_333
	DefaultGainDB           = 0 // auto gain
	DefaultPurgeTimeoutS    = 300
	DefaultHistoryCount     = 120
	DefaultHistoryIntervalS = 30
	DefaultReconnectS       = 5
	DefaultMetricsAddr      = ":9978"
	DefaultLogLevel         = "info"
)

// InputSource selects where raw samples come from.
type InputSource string

const (
	SourceStdin InputSource = "stdin"
	SourceFile  InputSource = "file"
	SourceSDR   InputSource = "sdr"
)

// Config is the complete set of options for one receiver process.
type Config struct {
	SampleFormat string `yaml:"sample_format"`

	InputSource   InputSource `yaml:"input_source"`
	FilePath      string      `yaml:"file_path"`
	FileThrottle  bool        `yaml:"file_throttle"`

	FrequencyHz uint32 `yaml:"frequency_hz"`
	SampleRate  uint32 `yaml:"sample_rate"`
	GainDB      int    `yaml:"gain_db"`
	PPMError    int    `yaml:"ppm_error"`
	Antenna     string `yaml:"antenna"`
	DeviceIndex int    `yaml:"device_index"`

	RawTCPListen  []string `yaml:"raw_tcp_listen"`
	JSONTCPListen []string `yaml:"json_tcp_listen"`
	RawStdout     bool     `yaml:"raw_stdout"`
	JSONStdout    bool     `yaml:"json_stdout"`

	RawTCPConnect       string `yaml:"raw_tcp_connect"`
	ReconnectIntervalS  int    `yaml:"reconnect_interval_s"`

	LogDir   string `yaml:"log_dir"`
	LogLevel string `yaml:"log_level"`
	Verbose  bool   `yaml:"verbose"`

	MetricsAddr string `yaml:"metrics_addr"`
	HTTPAddr    string `yaml:"http_addr"`

	PurgeTimeoutS    int    `yaml:"purge_timeout_s"`
	SnapshotDir      string `yaml:"snapshot_dir"`
	HistoryCount     int    `yaml:"history_count"`
	HistoryIntervalS int    `yaml:"history_interval_s"`
	TSVReportPath    string `yaml:"tsv_report_path"`
}

// Default returns a Config populated with every default value.
func Default() Config {
	return Config{
		SampleFormat:       "cu8",
		InputSource:        SourceSDR,
		FrequencyHz:        DefaultFrequencyHz,
		SampleRate:         DefaultSampleRateHz,
		GainDB:             DefaultGainDB,
		ReconnectIntervalS: DefaultReconnectS,
		LogDir:             "./logs",
		LogLevel:           DefaultLogLevel,
		MetricsAddr:        DefaultMetricsAddr,
		PurgeTimeoutS:      DefaultPurgeTimeoutS,
		HistoryCount:       DefaultHistoryCount,
		HistoryIntervalS:   DefaultHistoryIntervalS,
	}
}

// LoadFile reads a YAML config file and merges it over Default(),
// returning an error (not a fatal log call — that decision belongs to
// the caller, which exits 64 on a configuration error) if the file
// cannot be read or parsed, or if it contains unknown keys.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the fields that, if wrong, indicate a configuration
// error (the exit-64 class) rather than a hardware/IO error.
func (c Config) Validate() error {
	if c.FrequencyHz == 0 {
		return fmt.Errorf("config: frequency_hz must be nonzero")
	}
	if c.SampleRate == 0 {
		return fmt.Errorf("config: sample_rate must be nonzero")
	}
	switch c.InputSource {
	case SourceStdin, SourceSDR:
	case SourceFile:
		if c.FilePath == "" {
			return fmt.Errorf("config: input_source=file requires file_path")
		}
	default:
		return fmt.Errorf("config: unknown input_source %q", c.InputSource)
	}
	if c.PurgeTimeoutS <= 0 {
		return fmt.Errorf("config: purge_timeout_s must be positive")
	}
	return nil
}
