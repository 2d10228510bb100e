package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Loader resolves a Config from, in increasing priority: built-in
// defaults, an optional YAML file, an optional .env file, process
// environment variables (WAKESAT_-prefixed), and CLI flags. Tests can
// override Lookup to inject a deterministic environment.
type Loader struct {
	// YAMLPath is an optional path to a YAML config file. Missing files
	// are silently skipped; malformed ones are an error.
	YAMLPath string
	// EnvFilePath is an optional .env file loaded into the process
	// environment before Lookup is consulted.
	EnvFilePath string
	// Args are CLI arguments to parse (excluding argv[0]); nil skips flag
	// parsing entirely.
	Args []string
	// Lookup retrieves an environment variable; defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Load resolves the final Config by applying each layer in order.
func (l Loader) Load() (Config, error) {
	cfg := Default()

	if l.EnvFilePath != "" {
		if _, err := os.Stat(l.EnvFilePath); err == nil {
			if err := godotenv.Load(l.EnvFilePath); err != nil {
				return Config{}, fmt.Errorf("config: load .env: %w", err)
			}
		}
	}

	if l.YAMLPath != "" {
		if raw, err := os.ReadFile(l.YAMLPath); err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", l.YAMLPath, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read %s: %w", l.YAMLPath, err)
		}
	}

	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if raw, ok := lookup("WAKESAT_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		if err := applyJSON(raw, &cfg); err != nil {
			return Config{}, err
		}
	}

	overrideString(lookup, "WAKESAT_SELECTED_MODEL", &cfg.SelectedModel)
	if err := overrideInt(lookup, "WAKESAT_SERVER_PORT", &cfg.ServerPort); err != nil {
		return Config{}, err
	}
	overrideString(lookup, "WAKESAT_DEVICE_ID", &cfg.DeviceID)
	overrideString(lookup, "WAKESAT_DEVICE_NAME", &cfg.DeviceName)
	if err := overrideFloat(lookup, "WAKESAT_THRESHOLD", &cfg.Threshold); err != nil {
		return Config{}, err
	}
	if err := overrideInt(lookup, "WAKESAT_STREAMING_TIMEOUT_MS", &cfg.StreamingTimeoutMs); err != nil {
		return Config{}, err
	}
	if err := overrideFloat(lookup, "WAKESAT_RMS_SILENCE_THRESHOLD", &cfg.RMSSilenceThreshold); err != nil {
		return Config{}, err
	}
	overrideString(lookup, "WAKESAT_VAD_MODE", &cfg.VADMode)
	overrideString(lookup, "WAKESAT_LOG_LEVEL", &cfg.LogLevel)

	if l.Args != nil {
		if err := applyFlags(l.Args, &cfg); err != nil {
			return Config{}, err
		}
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = hostDerivedID()
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = hostDerivedName()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFlags parses CLI flags over cfg, at highest priority. Unrecognized
// flags are rejected (pflag's default behavior).
func applyFlags(args []string, cfg *Config) error {
	fs := pflag.NewFlagSet("wake-satellite", pflag.ContinueOnError)
	selectedModel := fs.String("selected-model", cfg.SelectedModel, "classifier model reference (builtin:name.onnx or user:path)")
	serverPort := fs.Int("server-port", cfg.ServerPort, "TCP listening port")
	deviceID := fs.String("device-id", cfg.DeviceID, "device identifier advertised in info")
	deviceName := fs.String("device-name", cfg.DeviceName, "human device name advertised in info")
	threshold := fs.Float64("threshold", cfg.Threshold, "detection threshold")
	streamingTimeoutMs := fs.Int("streaming-timeout-ms", cfg.StreamingTimeoutMs, "cooldown after detection, in milliseconds")
	rmsSilenceThreshold := fs.Float64("rms-silence-threshold", cfg.RMSSilenceThreshold, "energy-gate RMS threshold")
	vadMode := fs.String("vad-mode", cfg.VADMode, "energy or frame")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("config: parse flags: %w", err)
	}

	cfg.SelectedModel = *selectedModel
	cfg.ServerPort = *serverPort
	cfg.DeviceID = *deviceID
	cfg.DeviceName = *deviceName
	cfg.Threshold = *threshold
	cfg.StreamingTimeoutMs = *streamingTimeoutMs
	cfg.RMSSilenceThreshold = *rmsSilenceThreshold
	cfg.VADMode = *vadMode
	cfg.LogLevel = *logLevel
	return nil
}

func applyJSON(raw string, cfg *Config) error {
	var payload struct {
		SelectedModel       *string  `json:"selected_model"`
		ServerPort          *int     `json:"server_port"`
		DeviceID            *string  `json:"device_id"`
		DeviceName          *string  `json:"device_name"`
		Threshold           *float64 `json:"threshold"`
		StreamingTimeoutMs  *int     `json:"streaming_timeout_ms"`
		RMSSilenceThreshold *float64 `json:"rms_silence_threshold"`
		VADMode             *string  `json:"vad_mode"`
		LogLevel            *string  `json:"log_level"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("config: decode WAKESAT_CONFIG: %w", err)
	}
	if payload.SelectedModel != nil {
		cfg.SelectedModel = *payload.SelectedModel
	}
	if payload.ServerPort != nil {
		cfg.ServerPort = *payload.ServerPort
	}
	if payload.DeviceID != nil {
		cfg.DeviceID = *payload.DeviceID
	}
	if payload.DeviceName != nil {
		cfg.DeviceName = *payload.DeviceName
	}
	if payload.Threshold != nil {
		cfg.Threshold = *payload.Threshold
	}
	if payload.StreamingTimeoutMs != nil {
		cfg.StreamingTimeoutMs = *payload.StreamingTimeoutMs
	}
	if payload.RMSSilenceThreshold != nil {
		cfg.RMSSilenceThreshold = *payload.RMSSilenceThreshold
	}
	if payload.VADMode != nil {
		cfg.VADMode = *payload.VADMode
	}
	if payload.LogLevel != nil {
		cfg.LogLevel = *payload.LogLevel
	}
	return nil
}

// deviceIDNamespace seeds the deterministic device-id UUID so the same
// host always derives the same id across restarts.
var deviceIDNamespace = uuid.NameSpaceDNS

// hostDerivedID returns a stable host-derived device identifier:
// "wake-satellite-" followed by a v5 UUID namespaced off the machine
// hostname, so it stays constant across restarts without needing to
// persist anything to disk.
func hostDerivedID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	return "wake-satellite-" + uuid.NewSHA1(deviceIDNamespace, []byte(host)).String()
}

// hostDerivedName returns a human-readable default device name.
func hostDerivedName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "Wake-Word Satellite"
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideFloat(lookup func(string) (string, bool), key string, target *float64) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}
