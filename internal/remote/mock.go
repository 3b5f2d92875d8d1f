package remote

import (
	"context"
	"sync"
)

// MockRunner records commands instead of running them. Errs fails any
// command whose program name matches a key.
type MockRunner struct {
	mu   sync.Mutex
	Errs map[string]error

	Hosts    []string
	Commands []Command
}

func (m *MockRunner) Run(_ context.Context, host string, cmd Command) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Hosts = append(m.Hosts, host)
	m.Commands = append(m.Commands, cmd)
	if err := m.Errs[cmd.Name]; err != nil {
		return &Result{Stderr: err.Error()}, err
	}
	return &Result{}, nil
}

// Lines returns the recorded commands as shell lines.
func (m *MockRunner) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Commands))
	for i, c := range m.Commands {
		out[i] = c.String()
	}
	return out
}
