package cli

import (
	"os"
	"path/filepath"
	"testing"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
)

func TestLoadConfigMissingFile(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if c.SplitDegree != 16 || c.Concurrency != 4 || c.TargetVersion != "1.0.0" {
		t.Fatalf("want defaults, got %+v", c)
	}
}

func TestLoadConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowc.json")

	c := DefaultConfig()
	c.SplitDegree = 8
	c.Workers = 3
	c.DebugComments = true

	if err := c.SaveConfig(path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got.SplitDegree != 8 || got.Workers != 3 || !got.DebugComments || got.ConfigFile != path {
		t.Fatalf("loaded config: got %+v", got)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowc.json")
	if err := os.WriteFile(path, []byte("{split_degree"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(path)
	if c, _ := ferrors.CategoryOf(err); c != ferrors.CategoryConfig {
		t.Fatalf("want a config error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvSplitDegree, "4")
	t.Setenv(EnvWorkers, "2")
	t.Setenv(EnvTargetVersion, "1.3.0")
	t.Setenv(EnvDebugComments, "true")
	t.Setenv(EnvConcurrency, "9")

	c := DefaultConfig()
	c.ApplyEnv()

	if c.SplitDegree != 4 || c.Workers != 2 || c.Concurrency != 9 {
		t.Fatalf("numeric overrides: got %+v", c)
	}

	if c.TargetVersion != "1.3.0" || !c.DebugComments {
		t.Fatalf("string and bool overrides: got %+v", c)
	}

	if c.Verbose || c.Debug {
		t.Fatalf("unset variables should leave defaults, got %+v", c)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"no splitting", func(c *Config) { c.SplitDegree = 0 }, true},
		{"degree one", func(c *Config) { c.SplitDegree = 1 }, false},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false},
		{"no concurrency", func(c *Config) { c.Concurrency = 0 }, false},
		{"newer minor engine", func(c *Config) { c.TargetVersion = "1.9.2" }, true},
		{"next major engine", func(c *Config) { c.TargetVersion = "2.0.0" }, false},
		{"garbage version", func(c *Config) { c.TargetVersion = "latest" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)

			err := c.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !tt.ok {
				if cat, _ := ferrors.CategoryOf(err); cat != ferrors.CategoryConfig {
					t.Fatalf("want a config error, got %v", err)
				}
			}
		})
	}
}
