//go:build windows

package agent

import "os/exec"

// killProcessGroup keeps the default kill of the started process; Windows
// has no process groups to signal.
func killProcessGroup(*exec.Cmd) {}
