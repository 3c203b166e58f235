// Package repair enables network debugging on a device over SSH when a
// direct TCP debug connection fails.
package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	ErrAuth         = errors.New("ssh authentication failed")
	ErrNoAuthMethod = errors.New("no ssh credentials configured")
)

// Credentials authenticate the SSH session. They are passed per call so the
// owner can swap them at any time.
type Credentials struct {
	User     string
	Password string   // Also used as the passphrase of encrypted key files
	KeyFiles []string // Private key files, unreadable ones are skipped
}

// Step is one remote command of a repair sequence
type Step struct {
	Command string
	// MayDisconnect marks commands such as reboot that can drop the session
	// before an exit status is sent.
	MayDisconnect bool
}

// ExecError reports a remote command that exited unsuccessfully
type ExecError struct {
	Command    string
	ExitStatus int
	Output     string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("remote command %q exited with status %d: %s", e.Command, e.ExitStatus, strings.TrimSpace(e.Output))
}

// Config configures a Client
type Config struct {
	Port       int           // Defaults to 22
	Timeout    time.Duration // Dial and handshake timeout, defaults to 10s
	KnownHosts string        // known_hosts path, empty accepts any host key
	Logger     *slog.Logger
}

// Client opens SSH sessions to devices
type Client struct {
	port       int
	timeout    time.Duration
	knownHosts string
	logger     *slog.Logger
}

// New creates a Client
func New(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		port:       cfg.Port,
		timeout:    cfg.Timeout,
		knownHosts: cfg.KnownHosts,
		logger:     cfg.Logger,
	}
}

// Session is an authenticated SSH connection
type Session struct {
	host   string
	client *ssh.Client
	logger *slog.Logger
}

// Dial connects to host (an address or host:port) and authenticates
func (c *Client) Dial(ctx context.Context, host string, creds Credentials) (*Session, error) {
	config, err := c.clientConfig(creds)
	if err != nil {
		return nil, err
	}

	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, strconv.Itoa(c.port))
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w for %s@%s: %v", ErrAuth, creds.User, addr, err)
		}
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	// Handshake done, commands may run longer than the dial timeout
	conn.SetDeadline(time.Time{})

	c.logger.Debug("SSH session established", "host", addr, "user", creds.User)
	return &Session{
		host:   addr,
		client: ssh.NewClient(sshConn, chans, reqs),
		logger: c.logger,
	}, nil
}

// Connect dials host, runs fn with the session, and closes it
func (c *Client) Connect(ctx context.Context, host string, creds Credentials, fn func(*Session) error) error {
	session, err := c.Dial(ctx, host, creds)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}

// Repair runs steps on host in order and stops at the first failure
func (c *Client) Repair(ctx context.Context, host string, creds Credentials, steps []Step) error {
	return c.Connect(ctx, host, creds, func(s *Session) error {
		_, err := s.Exec(ctx, steps...)
		return err
	})
}

// Exec runs each step in its own channel and returns the combined output
func (s *Session) Exec(ctx context.Context, steps ...Step) (string, error) {
	var all strings.Builder
	for _, step := range steps {
		out, err := s.run(ctx, step)
		all.WriteString(out)
		if err != nil {
			return all.String(), err
		}
	}
	return all.String(), nil
}

// Close closes the connection
func (s *Session) Close() error {
	return s.client.Close()
}

func (s *Session) run(ctx context.Context, step Step) (string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		if step.MayDisconnect {
			return "", nil
		}
		return "", fmt.Errorf("failed to open session on %s: %w", s.host, err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}

	s.logger.Debug("Running remote command", "host", s.host, "command", step.Command)
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(step.Command)
		done <- result{out, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		s.client.Close()
		res = <-done
		return string(res.out), ctx.Err()
	}

	out, err := string(res.out), res.err
	if err == nil {
		return out, nil
	}

	var exitErr *ssh.ExitError
	var missing *ssh.ExitMissingError
	switch {
	case errors.As(err, &exitErr):
		return out, &ExecError{Command: step.Command, ExitStatus: exitErr.ExitStatus(), Output: out}
	case step.MayDisconnect && (errors.As(err, &missing) || isConnectionDrop(err)):
		s.logger.Debug("Remote command dropped the session", "host", s.host, "command", step.Command)
		return out, nil
	default:
		return out, fmt.Errorf("remote command %q failed: %w", step.Command, err)
	}
}

func isConnectionDrop(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "EOF") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "closed")
}

func (c *Client) clientConfig(creds Credentials) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if signers := c.loadSigners(creds); len(signers) > 0 {
		auth = append(auth, ssh.PublicKeys(signers...))
	}
	if creds.Password != "" {
		password := creds.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	if len(auth) == 0 {
		return nil, ErrNoAuthMethod
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.knownHosts != "" {
		cb, err := knownhosts.New(c.knownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            creds.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.timeout,
	}, nil
}

func (c *Client) loadSigners(creds Credentials) []ssh.Signer {
	var signers []ssh.Signer
	for _, path := range creds.KeyFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			c.logger.Debug("Skipping unreadable key file", "path", path, "error", err)
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && creds.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(creds.Password))
		}
		if err != nil {
			c.logger.Warn("Failed to parse key file", "path", path, "error", err)
			continue
		}
		signers = append(signers, signer)
	}
	return signers
}
