package config

import "testing"

func noEnv(string) (string, bool) { return "", false }

func TestLoaderDefaults(t *testing.T) {
	loader := Loader{Lookup: noEnv}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SelectedModel != DefaultSelectedModel {
		t.Errorf("SelectedModel = %q, want %q", cfg.SelectedModel, DefaultSelectedModel)
	}
	if cfg.ServerPort != DefaultServerPort {
		t.Errorf("ServerPort = %d, want %d", cfg.ServerPort, DefaultServerPort)
	}
	if cfg.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %v, want %v", cfg.Threshold, DefaultThreshold)
	}
	if cfg.VADMode != DefaultVADMode {
		t.Errorf("VADMode = %q, want %q", cfg.VADMode, DefaultVADMode)
	}
	if cfg.DeviceID == "" {
		t.Error("DeviceID should be host-derived when unset, got empty")
	}
}

func TestLoaderJSON(t *testing.T) {
	env := map[string]string{
		"WAKESAT_CONFIG": `{"threshold":0.7,"server_port":9999}`,
	}
	loader := Loader{
		Lookup: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Threshold != 0.7 {
		t.Errorf("Threshold = %v, want 0.7", cfg.Threshold)
	}
	if cfg.ServerPort != 9999 {
		t.Errorf("ServerPort = %d, want 9999", cfg.ServerPort)
	}
	// Unset fields keep defaults.
	if cfg.VADMode != DefaultVADMode {
		t.Errorf("VADMode = %q, want default %q", cfg.VADMode, DefaultVADMode)
	}
}

func TestLoaderEnvOverridesJSON(t *testing.T) {
	env := map[string]string{
		"WAKESAT_CONFIG":    `{"threshold":0.3}`,
		"WAKESAT_THRESHOLD": "0.8",
		"WAKESAT_VAD_MODE":  "energy",
	}
	loader := Loader{
		Lookup: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Threshold != 0.8 {
		t.Errorf("Threshold = %v, want 0.8 (env override)", cfg.Threshold)
	}
	if cfg.VADMode != "energy" {
		t.Errorf("VADMode = %q, want energy", cfg.VADMode)
	}
}

func TestLoaderFlagsOverrideEverything(t *testing.T) {
	env := map[string]string{
		"WAKESAT_THRESHOLD": "0.8",
	}
	loader := Loader{
		Lookup: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
		Args: []string{"--threshold=0.9"},
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Threshold != 0.9 {
		t.Errorf("Threshold = %v, want 0.9 (flag override)", cfg.Threshold)
	}
}

func TestLoaderInvalidJSON(t *testing.T) {
	env := map[string]string{
		"WAKESAT_CONFIG": `{bad json}`,
	}
	loader := Loader{
		Lookup: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
	}
	_, err := loader.Load()
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoaderRejectsInvalidVADMode(t *testing.T) {
	env := map[string]string{
		"WAKESAT_VAD_MODE": "bogus",
	}
	loader := Loader{
		Lookup: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
	}
	_, err := loader.Load()
	if err == nil {
		t.Fatal("expected error for invalid vad_mode")
	}
}
