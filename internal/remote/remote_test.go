package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/emrlift/emrlift/internal/logging"
)

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"":                          "''",
		"hdfs":                      "hdfs",
		"hdfs://10.0.0.5:8020/user": "hdfs://10.0.0.5:8020/user",
		"HADOOP_USER_NAME=hadoop":   "HADOOP_USER_NAME=hadoop",
		"create database `x`;":      "'create database `x`;'",
		"it's":                      `'it'\''s'`,
	}
	for in, want := range tests {
		if got := Quote(in); got != want {
			t.Errorf("Quote(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCommandString(t *testing.T) {
	cmd := Command{
		Name: "hdfs",
		Args: []string{"dfs", "-mkdir", "-p", "hdfs://10.0.0.5:8020/user/alice"},
		Env:  []string{"HADOOP_USER_NAME=hadoop"},
	}
	want := "env HADOOP_USER_NAME=hadoop hdfs dfs -mkdir -p hdfs://10.0.0.5:8020/user/alice"
	if got := cmd.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestLocalRunner(t *testing.T) {
	r := NewLocalRunner(logging.Discard())

	res, err := r.Run(context.Background(), "10.0.0.5", Command{
		Name: "sh",
		Args: []string{"-c", `echo "$GREETING"`},
		Env:  []string{"GREETING=hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("Stdout = %q", res.Stdout)
	}
}

func TestLocalRunner_FailureIncludesStderr(t *testing.T) {
	r := NewLocalRunner(logging.Discard())

	_, err := r.Run(context.Background(), "h", Command{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("stderr missing from error: %v", err)
	}
}

func TestNewSSHRunner(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}

	r, err := NewSSHRunner(SSHConfig{PrivateKey: pem.EncodeToMemory(block)}, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.cfg.User != "hadoop" || r.cfg.Port != 22 || r.cfg.Timeout != defaultDialTimeout {
		t.Errorf("defaults not applied: %+v", r.cfg)
	}

	if _, err := NewSSHRunner(SSHConfig{PrivateKey: []byte("not a key")}, logging.Discard()); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestMockRunner(t *testing.T) {
	m := &MockRunner{Errs: map[string]error{"beeline": errors.New("connection refused")}}

	if _, err := m.Run(context.Background(), "m", Command{Name: "hdfs"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Run(context.Background(), "m", Command{Name: "beeline"}); err == nil {
		t.Fatal("expected scripted error")
	}
	if len(m.Lines()) != 2 {
		t.Errorf("recorded %d commands", len(m.Lines()))
	}
}
