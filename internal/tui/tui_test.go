package tui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/emrlift/emrlift/internal/preflight"
	"github.com/emrlift/emrlift/internal/state"
)

func TestIsTerminal_Buffer(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}

func TestRun_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	err := Run(context.Background(), &buf, "Starting analytics", func(_ context.Context, progress func(string)) error {
		progress("waiting for cluster j-1")
		progress("creating databases")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "Starting analytics\n  - waiting for cluster j-1\n  - creating databases\n  done\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestRun_PlainFailure(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("boom")
	err := Run(context.Background(), &buf, "Stopping", func(context.Context, func(string)) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(buf.String(), "failed: boom") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestProgressModel_Steps(t *testing.T) {
	m := NewProgressModel("Scaling", nil)

	result, _ := m.Update(stepMsg("listing instance groups"))
	m = result.(ProgressModel)
	if !strings.Contains(m.View(), "listing instance groups") {
		t.Errorf("view missing current step:\n%s", m.View())
	}

	result, cmd := m.Update(doneMsg{})
	m = result.(ProgressModel)
	if !m.Done() || m.Err() != nil {
		t.Errorf("done=%v err=%v", m.Done(), m.Err())
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if !strings.Contains(m.View(), "✓") {
		t.Errorf("finished step not marked:\n%s", m.View())
	}
}

func TestProgressModel_CtrlCCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewProgressModel("Starting", cancel)

	result, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = result.(ProgressModel)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
	if !strings.Contains(m.View(), "cancelling") {
		t.Errorf("view = %q", m.View())
	}

	result, _ = m.Update(doneMsg{})
	m = result.(ProgressModel)
	if !errors.Is(m.Err(), context.Canceled) {
		t.Errorf("err = %v", m.Err())
	}
}

func TestRenderInfo(t *testing.T) {
	out := RenderInfo(map[string]any{
		"clusterId":      "j-1",
		"name":           "dss-analytics",
		"state":          "WAITING",
		"masterInstance": map[string]any{"privateIpAddress": "10.0.0.5"},
		"slaveInstances": []map[string]any{{"privateIpAddress": "10.0.0.6"}, {"privateIpAddress": "10.0.0.7"}},
		"instanceGroups": []map[string]any{{
			"instanceGroupId": "ig-C", "instanceGroupType": "CORE", "instanceType": "m5.xlarge",
			"runningInstanceCount": int32(2), "status": "RUNNING",
		}},
	})
	for _, want := range []string{"j-1", "10.0.0.5", "10.0.0.6, 10.0.0.7", "ig-C", "m5.xlarge"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderPreflight(t *testing.T) {
	out := RenderPreflight(&preflight.Report{
		ARN: "arn:aws:iam::1:user/test",
		Checks: []preflight.Check{
			{Name: "credentials", Passed: true},
			{Name: "metastore", Detail: "connection refused"},
		},
	})
	if !strings.Contains(out, "connection refused") || !strings.Contains(out, "Some checks failed") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRenderRecords(t *testing.T) {
	if !strings.Contains(RenderRecords(nil), "No managed clusters") {
		t.Error("empty list not reported")
	}
	out := RenderRecords([]*state.Record{
		{ID: "analytics", Type: "create", Data: map[string]any{"emrClusterId": "j-1"}},
		{ID: "pending", Type: "attach"},
	})
	if !strings.Contains(out, "j-1") || !strings.Contains(out, "pending") {
		t.Errorf("output:\n%s", out)
	}
}
