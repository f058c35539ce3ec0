// Package testutil provides helpers for tests that drive fake agent
// executables.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
)

// SkipIfNoShell skips the test if POSIX shell scripts cannot be executed.
func SkipIfNoShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows, skipping test")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH, skipping test")
	}
}

// WriteScript writes an executable shell script named name into dir and
// returns its path. body is everything after the shebang line.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	content := "#!/bin/sh\n" + body
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("failed to write script %s: %v", name, err)
	}
	return path
}

// FakeAgent writes a script into a fresh temp directory and returns its path.
func FakeAgent(t *testing.T, body string) string {
	t.Helper()
	SkipIfNoShell(t)

	return WriteScript(t, t.TempDir(), "agent", body)
}

// EchoAgent returns a fake agent that prints output and exits 0.
func EchoAgent(t *testing.T, output string) string {
	t.Helper()

	return FakeAgent(t, "cat <<'__AGENT_EOF__'\n"+output+"\n__AGENT_EOF__\n")
}

// FailingAgent returns a fake agent that prints stderr and exits with code.
func FailingAgent(t *testing.T, stderr string, code int) string {
	t.Helper()

	body := "exit " + strconv.Itoa(code) + "\n"
	if stderr != "" {
		body = "printf '%s' '" + strings.ReplaceAll(stderr, "'", `'\''`) + "' >&2\n" + body
	}
	return FakeAgent(t, body)
}

// SleepingAgent returns a fake agent that sleeps for the given number of
// seconds. exec replaces the shell so a kill reaches the sleeping process.
func SleepingAgent(t *testing.T, seconds string) string {
	t.Helper()

	return FakeAgent(t, "exec sleep "+seconds+"\n")
}

// RecordingAgent returns a fake agent that writes each argument on its own
// line to a file, then prints output. The second return value is the path
// of the recorded arguments.
func RecordingAgent(t *testing.T, output string) (script, argsFile string) {
	t.Helper()
	SkipIfNoShell(t)

	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	body := "for a in \"$@\"; do printf '%s\\n' \"$a\" >> '" + argsFile + "'; done\n" +
		"cat > '" + filepath.Join(dir, "stdin") + "'\n" +
		"printf '%s' '" + strings.ReplaceAll(output, "'", `'\''`) + "'\n"
	return WriteScript(t, dir, "agent", body), argsFile
}

// ReadLines returns the non-empty lines of a file, failing the test if it
// cannot be read.
func ReadLines(t *testing.T, path string) []string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
