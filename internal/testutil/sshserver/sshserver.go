// Package sshserver provides an in-process SSH server for integration testing.
// It supports password, keyboard-interactive and public key authentication
// and answers exec requests from a scripted handler, recording every command
// it receives.
package sshserver

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Reply is the scripted answer to one exec request
type Reply struct {
	Output     string
	Stderr     string
	ExitStatus uint32
	Disconnect bool // Drop the connection without an exit status, like reboot does
}

// ExecHandler answers an exec request for command
type ExecHandler func(command string) Reply

// Server is an in-process SSH server for testing.
type Server struct {
	t    testing.TB
	opts Options

	config   *ssh.ServerConfig
	hostKey  ssh.Signer
	listener net.Listener
	wg       sync.WaitGroup
	done     chan struct{}

	mu       sync.Mutex
	commands []string
	conns    map[*ssh.ServerConn]struct{}
}

// Options configures the test SSH server.
type Options struct {
	Username            string          // Required
	Password            string          // Enables password auth if set
	KeyboardInteractive bool            // Also accept Password through keyboard-interactive
	AuthorizedKeys      []ssh.PublicKey // Enables pubkey auth if set
	HostKey             ssh.Signer      // Generated if nil
	Exec                ExecHandler     // Defaults to empty output and exit status 0
}

// New creates a test SSH server. Call Start() to begin listening.
func New(t testing.TB, opts Options) *Server {
	t.Helper()

	if opts.Username == "" {
		t.Fatal("sshserver: Username is required")
	}
	if opts.Exec == nil {
		opts.Exec = func(string) Reply { return Reply{} }
	}

	return &Server{
		t:     t,
		opts:  opts,
		done:  make(chan struct{}),
		conns: make(map[*ssh.ServerConn]struct{}),
	}
}

// Start begins listening on a random port.
func (s *Server) Start() {
	s.t.Helper()

	s.hostKey = s.opts.HostKey
	if s.hostKey == nil {
		s.hostKey = generateED25519Key(s.t)
	}

	s.config = &ssh.ServerConfig{}
	s.config.AddHostKey(s.hostKey)

	if s.opts.Password != "" {
		s.config.PasswordCallback = func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == s.opts.Username && string(password) == s.opts.Password {
				return nil, nil
			}
			return nil, fmt.Errorf("authentication failed for user %q", conn.User())
		}
		if s.opts.KeyboardInteractive {
			s.config.KeyboardInteractiveCallback = func(conn ssh.ConnMetadata, client ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
				answers, err := client(conn.User(), "", []string{"Password: "}, []bool{false})
				if err != nil {
					return nil, err
				}
				if conn.User() == s.opts.Username && len(answers) == 1 && answers[0] == s.opts.Password {
					return nil, nil
				}
				return nil, fmt.Errorf("keyboard-interactive failed for user %q", conn.User())
			}
		}
	}

	if len(s.opts.AuthorizedKeys) > 0 {
		s.config.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if conn.User() != s.opts.Username {
				return nil, fmt.Errorf("unknown user %q", conn.User())
			}
			keyBytes := key.Marshal()
			for _, authorized := range s.opts.AuthorizedKeys {
				if bytes.Equal(keyBytes, authorized.Marshal()) {
					return nil, nil
				}
			}
			return nil, fmt.Errorf("unknown public key")
		}
	}

	var err error
	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.t.Fatalf("sshserver: failed to listen: %v", err)
	}

	s.wg.Add(1)
	go s.acceptLoop()
}

// Stop closes the listener and all connections and waits for them to finish.
func (s *Server) Stop() {
	close(s.done)
	s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Addr returns the server address as "127.0.0.1:<port>".
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// HostPublicKey returns the server's host key.
func (s *Server) HostPublicKey() ssh.PublicKey {
	return s.hostKey.PublicKey()
}

// Commands returns every exec command received so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// WriteKnownHosts writes a known_hosts file trusting this server's host key
// and returns its path.
func (s *Server) WriteKnownHosts(dir string) string {
	s.t.Helper()

	path := filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(s.Addr())}, s.HostPublicKey())
	if err := os.WriteFile(path, []byte(line+"\n"), 0600); err != nil {
		s.t.Fatalf("sshserver: failed to write known_hosts: %v", err)
	}
	return path
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.t.Logf("sshserver: accept error: %v", err)
				return
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		// Authentication failures are expected in tests
		s.t.Logf("sshserver: handshake failed: %v", err)
		return
	}
	defer sshConn.Close()

	s.mu.Lock()
	s.conns[sshConn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, sshConn)
		s.mu.Unlock()
	}()

	go ssh.DiscardRequests(reqs)

	for {
		select {
		case <-s.done:
			return
		case newChan, ok := <-chans:
			if !ok {
				return
			}
			if newChan.ChannelType() != "session" {
				newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
				continue
			}
			s.wg.Add(1)
			go s.handleSession(sshConn, newChan)
		}
	}
}

// execPayload is the RFC 4254 payload of an exec request.
type execPayload struct {
	Command string
}

// exitStatusPayload is the RFC 4254 payload of an exit-status request.
type exitStatusPayload struct {
	Status uint32
}

func (s *Server) handleSession(conn *ssh.ServerConn, newChan ssh.NewChannel) {
	defer s.wg.Done()

	ch, reqs, err := newChan.Accept()
	if err != nil {
		s.t.Logf("sshserver: failed to accept session: %v", err)
		return
	}
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "env":
			if req.WantReply {
				req.Reply(true, nil)
			}
		case "exec":
			var payload execPayload
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}
			if req.WantReply {
				req.Reply(true, nil)
			}

			s.mu.Lock()
			s.commands = append(s.commands, payload.Command)
			s.mu.Unlock()

			reply := s.opts.Exec(payload.Command)
			if reply.Output != "" {
				ch.Write([]byte(reply.Output))
			}
			if reply.Stderr != "" {
				ch.Stderr().Write([]byte(reply.Stderr))
			}
			if reply.Disconnect {
				conn.Close()
				return
			}
			ch.SendRequest("exit-status", false, ssh.Marshal(exitStatusPayload{reply.ExitStatus}))
			return
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func generateED25519Key(t testing.TB) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sshserver: failed to generate ED25519 key: %v", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("sshserver: failed to create signer: %v", err)
	}

	return signer
}

// GenerateClientKeyPair generates a temporary ED25519 keypair for testing.
// Returns the signer, the public key, and the path to the private key file.
func GenerateClientKeyPair(t testing.TB, dir string) (ssh.Signer, ssh.PublicKey, string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sshserver: failed to generate client key: %v", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("sshserver: failed to create client signer: %v", err)
	}

	keyPath := filepath.Join(dir, "id_ed25519_test")
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("sshserver: failed to marshal private key: %v", err)
	}

	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("sshserver: failed to write private key: %v", err)
	}

	return signer, signer.PublicKey(), keyPath
}
