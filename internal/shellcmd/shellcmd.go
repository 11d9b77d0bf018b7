// Package shellcmd runs the promote/follow commands configured for a
// cluster node: the command is handed to the shell verbatim, its output is
// logged, and its exit code is not inspected.
package shellcmd

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// Run executes command via "/bin/sh -c" and logs its combined output at
// debug level. Escalation on failure is the orchestrator's job, not this
// daemon's, so a non-zero exit or launch failure is logged at
// warning and otherwise swallowed.
func Run(ctx context.Context, log logrus.FieldLogger, command string) {
	if command == "" {
		return
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()

	entry := log.WithField("command", command)
	if err != nil {
		entry.WithError(err).WithField("output", out.String()).Warn("shell command exited with an error")
		return
	}

	entry.WithField("output", out.String()).Debug("shell command completed")
}
