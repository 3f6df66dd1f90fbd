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

func TestPersistentManager_GetHistoryItemIndexesFromMostRecent(t *testing.T) {
	m := NewPersistentManager([]string{"true"}, "group-1", config.Settings{})
	for _, cmd := range []string{"first", "second", "third"} {
		if err := m.historyStore.Append(m.historyKey, cmd); err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}

	got, err := m.GetHistoryItem(1)
	if err != nil || got != "third" {
		t.Errorf("GetHistoryItem(1) = (%q, %v), want (%q, nil)", got, err, "third")
	}

	got, err = m.GetHistoryItem(3)
	if err != nil || got != "first" {
		t.Errorf("GetHistoryItem(3) = (%q, %v), want (%q, nil)", got, err, "first")
	}

	if _, err := m.GetHistoryItem(0); err != ErrNoHistoryItem {
		t.Errorf("GetHistoryItem(0) err = %v, want %v", err, ErrNoHistoryItem)
	}
	if _, err := m.GetHistoryItem(4); err != ErrNoHistoryItem {
		t.Errorf("GetHistoryItem(4) err = %v, want %v", err, ErrNoHistoryItem)
	}
}

func TestPersistentManager_IsPersistentAliveReflectsStatus(t *testing.T) {
	m := NewPersistentManager([]string{"true"}, "group-1", config.Settings{})

	if !m.IsPersistentAlive() {
		t.Error("freshly constructed manager reports dead, want alive (statusStarting)")
	}

	m.setStatus(statusDead)
	if m.IsPersistentAlive() {
		t.Error("manager with statusDead reports alive")
	}
}

func TestPersistentManager_IssueCommandWhenDeadReturnsError(t *testing.T) {
	m := NewPersistentManager([]string{"true"}, "group-1", config.Settings{})
	m.setStatus(statusDead)

	_, _, err := m.IssueCommand(context.Background(), "anything", true)
	if err != ErrManagerDead {
		t.Errorf("IssueCommand on dead manager err = %v, want %v", err, ErrManagerDead)
	}
}

func TestPersistentManager_StartWithEmptyArgvFails(t *testing.T) {
	m := NewPersistentManager(nil, "group-1", config.Settings{})
	if err := m.Start(context.Background()); err == nil {
		t.Error("Start with empty argv = nil error, want error")
	}
}

// fakeHelperInterpreter writes a shell script masquerading as the driven
// interpreter: it echoes the bootstrap marker on its first input line, and
// on a sentinel ping line dials the given address and reports sentinelResult
// ("ok" or "error"), so the sentinel-synchronisation protocol can be
// exercised end to end without a real Python/Julia install.
func fakeHelperInterpreter(t *testing.T, sentinelResult string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found, skipping persistent manager integration test")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "fake_interpreter.sh")
	script := `#!/bin/sh
booted=0
while IFS= read -r line; do
  case "$line" in
    import\ flowkernel_helper*)
      echo "__FLOWKERNEL_HELPER_PORT__=127.0.0.1:0"
      ;;
    __flowkernel_helper.ping\(*)
      addr=$(expr "$line" : '.*ping("\(.*\)").*')
      host=${addr%:*}
      port=${addr#*:}
      (exec 3<>"/dev/tcp/$host/$port"; printf '` + sentinelResult + `' >&3) 2>/dev/null
      ;;
    *)
      echo "$line"
      ;;
  esac
done
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake interpreter: %v", err)
	}
	return path
}

func TestPersistentManager_StartAndIssueCommandEndToEnd(t *testing.T) {
	script := fakeHelperInterpreter(t, "ok")

	m := NewPersistentManager([]string{"sh", script}, "group-1", config.Settings{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	if !m.IsPersistentAlive() {
		t.Fatal("manager reports dead immediately after Start")
	}

	out, status, err := m.IssueCommand(ctx, "print('hello')", true)
	if err != nil {
		t.Fatalf("IssueCommand: %v", err)
	}

	var sawEcho bool
	timeout := time.After(8 * time.Second)
	for out != nil || status != nil {
		select {
		case msg, ok := <-out:
			if !ok {
				out = nil
				continue
			}
			if msg.Data == "print('hello')" {
				sawEcho = true
			}
		case result, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			if result != nil {
				t.Errorf("IssueCommand status = %v, want nil (success)", result)
			}
		case <-timeout:
			t.Fatal("timed out waiting for IssueCommand to complete")
		}
	}
	if !sawEcho {
		t.Fatal("command channel closed without echoing the submitted line")
	}
}

func TestPersistentManager_IssueCommandReportsSentinelFailure(t *testing.T) {
	script := fakeHelperInterpreter(t, "error")

	m := NewPersistentManager([]string{"sh", script}, "group-1", config.Settings{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	out, status, err := m.IssueCommand(ctx, "raise SystemExit(1)", true)
	if err != nil {
		t.Fatalf("IssueCommand: %v", err)
	}

	timeout := time.After(8 * time.Second)
	for out != nil || status != nil {
		select {
		case _, ok := <-out:
			if !ok {
				out = nil
			}
		case result, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			if result != ErrCommandFailed {
				t.Errorf("IssueCommand status = %v, want %v", result, ErrCommandFailed)
			}
		case <-timeout:
			t.Fatal("timed out waiting for IssueCommand to complete")
		}
	}
}
