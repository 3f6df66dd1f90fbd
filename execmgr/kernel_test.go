package execmgr

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowkernel/engine/config"
)

func TestSubstituteConnectionFile_ReplacesPlaceholderOnly(t *testing.T) {
	argv := []string{"python3", "-m", "ipykernel_launcher", "-f", "{connection_file}"}
	got := substituteConnectionFile(argv, "/tmp/conn-123.json")

	want := []string{"python3", "-m", "ipykernel_launcher", "-f", "/tmp/conn-123.json"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("substituteConnectionFile[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestKernelManager_IsAliveReflectsStatus(t *testing.T) {
	k := NewKernelManager(KernelSpec{Name: "test"}, "group-1", config.Settings{})

	if !k.IsAlive() {
		t.Error("freshly constructed kernel manager reports dead")
	}
	k.setStatus(statusDead)
	if k.IsAlive() {
		t.Error("kernel manager with statusDead reports alive")
	}
}

// fakeKernelScript writes a shell script that mimics a kernel: it prints
// the ready marker immediately, then for each stdin line either answers a
// sentinel ping with "ok" over a dialed-back connection or echoes the line
// as kernel output, matching the interpreter fake used for PersistentManager
// but gated on the kernel's own readiness marker instead of the bootstrap
// import line.
func fakeKernelScript(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found, skipping kernel manager integration test")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "fake_kernel.sh")
	script := `#!/bin/sh
echo "__FLOWKERNEL_KERNEL_READY__"
while IFS= read -r line; do
  case "$line" in
    __flowkernel_helper.ping\(*)
      addr=$(expr "$line" : '.*ping("\(.*\)").*')
      host=${addr%:*}
      port=${addr#*:}
      (exec 3<>"/dev/tcp/$host/$port"; printf 'ok' >&3) 2>/dev/null
      ;;
    *)
      echo "$line"
      ;;
  esac
done
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake kernel script: %v", err)
	}
	return path
}

func TestKernelManager_StartAndRunUntilCompleteEndToEnd(t *testing.T) {
	script := fakeKernelScript(t)

	spec := KernelSpec{Name: "fake", Argv: []string{"sh", script}}
	k := NewKernelManager(spec, "group-1", config.Settings{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := k.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer k.Stop()

	if k.ConnectionFilePath() == "" {
		t.Error("ConnectionFilePath is empty after Start")
	}

	out, done := k.RunUntilComplete(ctx, []string{"1 + 1"})

	var sawEcho bool
	for msg := range out {
		if msg.Data == "1 + 1" {
			sawEcho = true
		}
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunUntilComplete done error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RunUntilComplete to report done")
	}

	if !sawEcho {
		t.Error("RunUntilComplete did not relay the submitted command's echo")
	}
}

func TestKernelManager_RestartKeepsConnectionFilePath(t *testing.T) {
	script := fakeKernelScript(t)

	spec := KernelSpec{Name: "fake", Argv: []string{"sh", script}}
	k := NewKernelManager(spec, "group-1", config.Settings{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := k.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer k.Stop()

	before := k.ConnectionFilePath()
	if before == "" {
		t.Fatal("ConnectionFilePath is empty after Start")
	}
	if _, err := os.Stat(before); err != nil {
		t.Fatalf("connection file missing after Start: %v", err)
	}

	if err := k.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	after := k.ConnectionFilePath()
	if after != before {
		t.Errorf("ConnectionFilePath changed across Restart: before=%q after=%q", before, after)
	}
	if _, err := os.Stat(after); err != nil {
		t.Fatalf("connection file missing after Restart: %v", err)
	}
}

func TestKernelManager_StartWithEmptyArgvFails(t *testing.T) {
	k := NewKernelManager(KernelSpec{Name: "empty"}, "group-1", config.Settings{})
	if err := k.Start(context.Background()); err == nil {
		t.Error("Start with empty argv = nil error, want error")
	}
}
