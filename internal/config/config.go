// Package config resolves satellite configuration by layering, in
// increasing priority: built-in defaults, an optional YAML file, an
// optional .env file, process environment variables (WAKESAT_-prefixed),
// and CLI flags.
package config

import "fmt"

const (
	DefaultSelectedModel       = "builtin:hey_nabu.onnx"
	DefaultServerPort          = 10700
	DefaultThreshold           = 0.05
	DefaultStreamingTimeoutMs  = 60000
	DefaultRMSSilenceThreshold = 0.01
	DefaultVADMode             = "frame"
	DefaultLogLevel            = "info"
)

// Config holds the enumerated options consumed by the satellite core.
type Config struct {
	SelectedModel       string  `json:"selected_model" yaml:"selected_model"`
	ServerPort          int     `json:"server_port" yaml:"server_port"`
	DeviceID            string  `json:"device_id" yaml:"device_id"`
	DeviceName          string  `json:"device_name" yaml:"device_name"`
	Threshold           float64 `json:"threshold" yaml:"threshold"`
	StreamingTimeoutMs  int     `json:"streaming_timeout_ms" yaml:"streaming_timeout_ms"`
	RMSSilenceThreshold float64 `json:"rms_silence_threshold" yaml:"rms_silence_threshold"`
	VADMode             string  `json:"vad_mode" yaml:"vad_mode"`
	LogLevel            string  `json:"log_level" yaml:"log_level"`
}

// Default returns a Config populated with the documented defaults.
// DeviceID and DeviceName are left blank; the loader fills them with
// host-derived values unless overridden.
func Default() Config {
	return Config{
		SelectedModel:       DefaultSelectedModel,
		ServerPort:          DefaultServerPort,
		Threshold:           DefaultThreshold,
		StreamingTimeoutMs:  DefaultStreamingTimeoutMs,
		RMSSilenceThreshold: DefaultRMSSilenceThreshold,
		VADMode:             DefaultVADMode,
		LogLevel:            DefaultLogLevel,
	}
}

// Validate rejects configurations that would leave the satellite unable
// to start cleanly (the Config error class is fatal at startup).
func (c Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("config: server_port %d out of range", c.ServerPort)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("config: threshold %f must be in [0, 1]", c.Threshold)
	}
	if c.StreamingTimeoutMs <= 0 {
		return fmt.Errorf("config: streaming_timeout_ms must be positive")
	}
	if c.RMSSilenceThreshold < 0 {
		return fmt.Errorf("config: rms_silence_threshold must be non-negative")
	}
	if c.VADMode != "energy" && c.VADMode != "frame" {
		return fmt.Errorf("config: vad_mode %q must be \"energy\" or \"frame\"", c.VADMode)
	}
	if c.SelectedModel == "" {
		return fmt.Errorf("config: selected_model must not be empty")
	}
	return nil
}
