package remote

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// LocalRunner executes commands on this machine. The cluster is addressed
// through the URLs inside the command, so host is only logged.
type LocalRunner struct {
	logger *slog.Logger
}

// NewLocalRunner creates a LocalRunner.
func NewLocalRunner(logger *slog.Logger) *LocalRunner {
	return &LocalRunner{logger: logger}
}

func (r *LocalRunner) Run(ctx context.Context, host string, cmd Command) (*Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Env = append(os.Environ(), cmd.Env...)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	r.logger.Debug("running local command", "host", host, "command", cmd.String())
	res := &Result{}
	err := c.Run()
	res.Stdout, res.Stderr = stdout.String(), stderr.String()
	if err != nil {
		if msg := strings.TrimSpace(res.Stderr); msg != "" {
			return res, fmt.Errorf("%s failed: %w, stderr: %s", cmd.Name, err, msg)
		}
		return res, fmt.Errorf("%s failed: %w", cmd.Name, err)
	}
	return res, nil
}
