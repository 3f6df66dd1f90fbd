// Command engineprobe runs a small two-node workflow through the engine
// package end to end: one shell item producing a resource, a second
// consuming it, wired through a real connection and driven by a real
// ProcessExecutionManager subprocess. It exists to exercise the module's
// public surface outside of its unit tests, not as a production tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/flowkernel/engine/config"
	"github.com/flowkernel/engine/connection"
	"github.com/flowkernel/engine/engine"
	"github.com/flowkernel/engine/item"
	"github.com/flowkernel/engine/observability"
)

func main() {
	projectDir := flag.String("project-dir", ".", "project directory passed through to items")
	debug := flag.Bool("debug", false, "enable debug-level observability logging")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFor(*debug),
	}))
	observer := observability.NewSlogObserver(logger)

	registry := item.NewRegistry()
	registry.Register("shell", item.TypeEntry{
		Construct:           constructShellItem,
		DecodeSpecification: decodeShellSpec,
	})

	conn := connection.New("fetch", "process", connection.Options{})

	construction := engine.Construction{
		Registry: registry,
		Items: map[string]engine.ItemSpec{
			"fetch": {
				ItemType: "shell",
				GroupID:  "probe",
				Raw: map[string]any{
					"argv":         []any{"sh", "-c", "echo fetched"},
					"output_label": "dataset",
					"output_url":   "file:///tmp/engineprobe-dataset.txt",
				},
			},
			"process": {
				ItemType: "shell",
				GroupID:  "probe",
				Raw: map[string]any{
					"argv": []any{"sh", "-c", "echo processed"},
				},
			},
		},
		Successors:  map[string][]string{"fetch": {"process"}},
		Connections: []*connection.Connection{conn},
		Settings:    config.Default(),
		ProjectDir:  *projectDir,
		Debug:       *debug,
		Observer:    observer,
	}

	eng, err := engine.New(construction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engineprobe: construct engine: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := eng.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "engineprobe: run: %v\n", err)
		os.Exit(1)
	}

	for {
		ev, ok := eng.GetEvent(ctx)
		if !ok {
			break
		}
		fmt.Printf("%s %v\n", ev.Type, ev.Payload)
		if ev.IsTerminal() {
			break
		}
	}
}

func levelFor(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
