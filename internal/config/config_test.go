package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WHISPER_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Whisper.Language != "auto" || !cfg.Whisper.UseGPU {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Stream.TriggerMs != 400 || cfg.Stream.IterationFactor != 35 {
		t.Errorf("unexpected stream defaults: %+v", cfg.Stream)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whisper.yaml")
	yml := `
addr: ":9000"
model_path: /models/small.bin
whisper:
  language: fr
  vad_threshold: 0.5
stream:
  backoff: 20ms
  trigger_ms: 500
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WHISPER_CONFIG", path)
	t.Setenv("WHISPER_LANGUAGE", "de")
	t.Setenv("WHISPER_USE_GPU", "false")
	t.Setenv("WHISPER_THREADS", "2")
	t.Setenv("WHISPER_ENTROPY_THRESHOLD", "2.8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.ModelPath != "/models/small.bin" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Whisper.Language != "de" {
		t.Errorf("Language = %q, want env value de", cfg.Whisper.Language)
	}
	if cfg.Whisper.UseGPU || cfg.Whisper.Threads != 2 || cfg.Whisper.EntropyThreshold != 2.8 {
		t.Errorf("env values not applied: %+v", cfg.Whisper)
	}
	if cfg.Whisper.VADThreshold != 0.5 {
		t.Errorf("VADThreshold = %v, want 0.5 from file", cfg.Whisper.VADThreshold)
	}
	if cfg.Stream.Backoff != 20*time.Millisecond || cfg.Stream.TriggerMs != 500 {
		t.Errorf("stream = %+v", cfg.Stream)
	}
	// Unset stream fields keep their defaults.
	if cfg.Stream.EmptyIterLimit != 20 {
		t.Errorf("EmptyIterLimit = %d, want 20", cfg.Stream.EmptyIterLimit)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("adress: \":80\"\n"))
	if err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.Whisper.Language = "klingon"
	cfg.Stream.FinalizeFraction = 2

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"log_level", "klingon", "finalize_fraction"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestGetenvBool(t *testing.T) {
	tests := []struct {
		val  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"", false, false},
		{"0", true, false},
		{"off", true, false},
		{"1", false, true},
		{"yes", false, true},
	}
	for _, tt := range tests {
		t.Setenv("WS_TEST_BOOL", tt.val)
		if got := getenvBool("WS_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("getenvBool(%q, %v) = %v, want %v", tt.val, tt.def, got, tt.want)
		}
	}
}
