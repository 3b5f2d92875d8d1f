// Package remote runs the Hadoop client commands that bootstrap a freshly
// started cluster, either from this machine or on the master node over SSH.
package remote

import (
	"context"
	"regexp"
	"strings"
)

// Command is a program invocation. Env entries are KEY=VALUE pairs added to
// the inherited environment.
type Command struct {
	Name string
	Args []string
	Env  []string
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// String renders the command as a POSIX shell line, environment first.
func (c Command) String() string {
	var parts []string
	if len(c.Env) > 0 {
		parts = append(parts, "env")
		for _, e := range c.Env {
			parts = append(parts, Quote(e))
		}
	}
	parts = append(parts, Quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, Quote(a))
	}
	return strings.Join(parts, " ")
}

// Quote single-quotes s for a POSIX shell unless it is already safe.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Result is the captured output of a finished command.
type Result struct {
	Stdout string
	Stderr string
}

// Runner executes a command against the cluster whose master is host.
type Runner interface {
	Run(ctx context.Context, host string, cmd Command) (*Result, error)
}
