// Package config resolves the interpreter paths the engine's execution
// managers need (Python, Julia, GAMS, Conda), following the layered
// Default-then-Merge pattern used throughout this codebase's services.
package config

import "os"

// Settings is the key/value mapping of interpreter discovery paths. Every
// field is optional; a zero value means "resolve from PATH".
type Settings struct {
	PythonPath     string
	JuliaPath      string
	JuliaProject   string
	GamsPath       string
	CondaPath      string
	EmbeddedPython string
}

// Default returns the zero-value Settings: every path unresolved, to be
// filled in by the environment or a Merge call.
func Default() Settings {
	return Settings{}
}

// Merge overlays any non-empty field of source onto a copy of s, returning
// the result. Empty fields in source leave s's value untouched.
func (s Settings) Merge(source Settings) Settings {
	merged := s
	if source.PythonPath != "" {
		merged.PythonPath = source.PythonPath
	}
	if source.JuliaPath != "" {
		merged.JuliaPath = source.JuliaPath
	}
	if source.JuliaProject != "" {
		merged.JuliaProject = source.JuliaProject
	}
	if source.GamsPath != "" {
		merged.GamsPath = source.GamsPath
	}
	if source.CondaPath != "" {
		merged.CondaPath = source.CondaPath
	}
	if source.EmbeddedPython != "" {
		merged.EmbeddedPython = source.EmbeddedPython
	}
	return merged
}

// ResolvePython returns the Python interpreter to launch: the configured
// path, else the embedded-bundle fallback, else "python3" to be resolved
// against PATH by the caller's exec.LookPath.
func (s Settings) ResolvePython() string {
	if s.PythonPath != "" {
		return s.PythonPath
	}
	if s.EmbeddedPython != "" {
		return s.EmbeddedPython
	}
	if envPath := os.Getenv("EMBEDDED_PYTHON"); envPath != "" {
		return envPath
	}
	return "python3"
}

// ResolveJulia returns the Julia executable to launch.
func (s Settings) ResolveJulia() string {
	if s.JuliaPath != "" {
		return s.JuliaPath
	}
	return "julia"
}

// ResolveConda returns the conda executable to launch.
func (s Settings) ResolveConda() string {
	if s.CondaPath != "" {
		return s.CondaPath
	}
	return "conda"
}
