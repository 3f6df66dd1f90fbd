package config_test

import (
	"testing"

	"github.com/flowkernel/engine/config"
)

func TestMerge_OnlyOverlaysNonEmptyFields(t *testing.T) {
	base := config.Default()
	base.PythonPath = "/usr/bin/python3"

	merged := base.Merge(config.Settings{JuliaPath: "/opt/julia/bin/julia"})

	if merged.PythonPath != "/usr/bin/python3" {
		t.Fatalf("expected base PythonPath preserved, got %q", merged.PythonPath)
	}
	if merged.JuliaPath != "/opt/julia/bin/julia" {
		t.Fatalf("expected JuliaPath merged in, got %q", merged.JuliaPath)
	}
}

func TestResolvePython_FallsBackWhenUnset(t *testing.T) {
	s := config.Default()
	if got := s.ResolvePython(); got == "" {
		t.Fatal("expected a non-empty fallback interpreter")
	}
}

func TestResolvePython_PrefersConfiguredPath(t *testing.T) {
	s := config.Settings{PythonPath: "/custom/python"}
	if got := s.ResolvePython(); got != "/custom/python" {
		t.Fatalf("ResolvePython() = %q, want /custom/python", got)
	}
}
