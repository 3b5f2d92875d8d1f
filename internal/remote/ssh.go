package remote

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const defaultDialTimeout = 30 * time.Second

// SSHConfig configures an SSHRunner.
type SSHConfig struct {
	User       string
	Port       int
	PrivateKey []byte // PEM
	Timeout    time.Duration
}

// SSHRunner executes commands on the master node over SSH, one connection
// per command.
type SSHRunner struct {
	cfg    SSHConfig
	signer ssh.Signer
	logger *slog.Logger
}

// NewSSHRunner parses the private key and returns a runner.
func NewSSHRunner(cfg SSHConfig, logger *slog.Logger) (*SSHRunner, error) {
	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parsing SSH private key: %w", err)
	}
	if cfg.User == "" {
		cfg.User = "hadoop"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultDialTimeout
	}
	return &SSHRunner{cfg: cfg, signer: signer, logger: logger}, nil
}

func (r *SSHRunner) Run(ctx context.Context, host string, cmd Command) (*Result, error) {
	client, err := r.dial(ctx, host)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("creating SSH session on %s: %w", host, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	line := cmd.String()
	r.logger.Debug("running remote command", "host", host, "command", line)

	done := make(chan error, 1)
	go func() { done <- session.Run(line) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err = <-done:
	}

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if msg := strings.TrimSpace(res.Stderr); msg != "" {
			return res, fmt.Errorf("%s on %s failed: %w, stderr: %s", cmd.Name, host, err, msg)
		}
		return res, fmt.Errorf("%s on %s failed: %w", cmd.Name, host, err)
	}
	return res, nil
}

func (r *SSHRunner) dial(ctx context.Context, host string) (*ssh.Client, error) {
	sshConfig := &ssh.ClientConfig{
		User: r.cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(r.signer),
		},
		// Cluster nodes are fresh instances with host keys we have never seen.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.cfg.Timeout,
	}

	addr := net.JoinHostPort(host, strconv.Itoa(r.cfg.Port))
	dialer := &net.Dialer{Timeout: r.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	ncc, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("establishing SSH to %s: %w", addr, err)
	}
	return ssh.NewClient(ncc, chans, reqs), nil
}
