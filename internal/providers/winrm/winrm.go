// Package winrm runs read-only PowerShell on remote Windows hosts over
// WS-Management. It is the single remote-management transport used by the
// host prober and the event-log source.
package winrm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	wsman "github.com/masterzen/winrm"
	"github.com/rs/zerolog"
)

// ErrScriptFailed is wrapped by errors returned for scripts that ran but
// exited non-zero.
var ErrScriptFailed = errors.New("remote script failed")

// Executor runs PowerShell on a remote host. Implementations must be safe
// for concurrent use across hosts.
type Executor interface {
	// RunPowerShell runs script on host in a one-shot shell and returns stdout.
	RunPowerShell(ctx context.Context, host, script string) (string, error)

	// OpenSession opens a shell on host that stays open across several
	// scripts. The caller must Close it.
	OpenSession(ctx context.Context, host string) (Session, error)
}

// Session is an open remote shell.
type Session interface {
	RunPowerShell(ctx context.Context, script string) (string, error)
	Close() error
}

// Config holds connection settings shared by every host.
type Config struct {
	Username string
	Password string
	Port     int
	HTTPS    bool
	Insecure bool
	Timeout  time.Duration
	// Basic selects HTTP basic auth instead of NTLM.
	Basic bool
}

// Client implements Executor on github.com/masterzen/winrm.
type Client struct {
	cfg Config
	log zerolog.Logger
}

var _ Executor = (*Client)(nil)

// New returns a Client. No connection is made until a script runs.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Port == 0 {
		cfg.Port = 5985
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, log: log.With().Str("component", "winrm").Logger()}
}

func (c *Client) newClient(host string) (*wsman.Client, error) {
	endpoint := wsman.NewEndpoint(host, c.cfg.Port, c.cfg.HTTPS, c.cfg.Insecure, nil, nil, nil, c.cfg.Timeout)

	params := *wsman.DefaultParameters
	if !c.cfg.Basic {
		params.TransportDecorator = func() wsman.Transporter { return &wsman.ClientNTLM{} }
	}

	client, err := wsman.NewClientWithParameters(endpoint, c.cfg.Username, c.cfg.Password, &params)
	if err != nil {
		return nil, fmt.Errorf("winrm client for %s: %w", host, err)
	}
	return client, nil
}

func (c *Client) RunPowerShell(ctx context.Context, host, script string) (string, error) {
	client, err := c.newClient(host)
	if err != nil {
		return "", err
	}

	start := time.Now()
	stdout, stderr, code, err := client.RunPSWithContext(ctx, script)
	c.log.Debug().
		Str("host", host).
		Int("exit_code", code).
		Dur("elapsed", time.Since(start)).
		Msg("powershell finished")

	if err != nil {
		return "", fmt.Errorf("run powershell on %s: %w", host, err)
	}
	if code != 0 {
		return "", scriptError(host, code, stderr)
	}
	return stdout, nil
}

func (c *Client) OpenSession(ctx context.Context, host string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := c.newClient(host)
	if err != nil {
		return nil, err
	}
	shell, err := client.CreateShell()
	if err != nil {
		return nil, fmt.Errorf("open shell on %s: %w", host, err)
	}
	return &session{host: host, shell: shell, log: c.log}, nil
}

type session struct {
	host  string
	shell *wsman.Shell
	log   zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (s *session) RunPowerShell(ctx context.Context, script string) (string, error) {
	cmd, err := s.shell.ExecuteWithContext(ctx, wsman.Powershell(script))
	if err != nil {
		return "", fmt.Errorf("execute on %s: %w", s.host, err)
	}
	defer cmd.Close()

	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&stdout, cmd.Stdout)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&stderr, cmd.Stderr)
	}()

	cmd.Wait()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if code := cmd.ExitCode(); code != 0 {
		return "", scriptError(s.host, code, stderr.String())
	}
	return stdout.String(), nil
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.shell.Close()
		if s.closeErr != nil {
			s.log.Debug().Err(s.closeErr).Str("host", s.host).Msg("close shell")
		}
	})
	return s.closeErr
}

func scriptError(host string, code int, stderr string) error {
	msg := firstLine(stderr)
	if msg == "" {
		return fmt.Errorf("%w on %s: exit code %d", ErrScriptFailed, host, code)
	}
	return fmt.Errorf("%w on %s: exit code %d: %s", ErrScriptFailed, host, code, msg)
}

// firstLine returns the first non-empty line of PowerShell error output,
// which carries the exception message; the rest is position info.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
