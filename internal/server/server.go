// Package server implements the halyard SSH server.
//
// Every authenticated client gets an interactive session whose input is
// echoed back and broadcast to all other connected sessions. Clients may
// also open direct-tcpip channels and request remote forwards.
package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/halyard/halyard/config"
	"github.com/halyard/halyard/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// Server accepts SSH connections on a TCP listener.
type Server struct {
	logger   *logrus.Entry
	addr     string
	limits   config.LimitsConfig
	auth     *authTable
	registry *Registry

	sshConfig *ssh.ServerConfig

	mu       sync.Mutex
	listener net.Listener
	conns    map[*ssh.ServerConn]struct{}
	closed   bool

	wg sync.WaitGroup
}

// New creates a Server from a validated configuration and host key.
func New(cfg *config.Config, hostKey ssh.Signer, logger *logrus.Entry) *Server {
	s := &Server{
		logger:   logger,
		addr:     cfg.ListenAddr(),
		limits:   cfg.Limits,
		auth:     newAuthTable(cfg.Users),
		registry: NewRegistry(),
		conns:    make(map[*ssh.ServerConn]struct{}),
	}

	s.sshConfig = &ssh.ServerConfig{
		PasswordCallback:  s.passwordCallback,
		PublicKeyCallback: s.publicKeyCallback,
		MaxAuthTries:      cfg.Limits.MaxAuthTries,
		ServerVersion:     "SSH-2.0-halyard",
	}
	s.sshConfig.AddHostKey(hostKey)

	return s
}

// SetUsers swaps the authentication table. Called by the config watcher on
// reload; in-flight authentications see either the old or the new table.
func (s *Server) SetUsers(users map[string]config.UserConfig) {
	s.auth.swap(users)
	s.logger.WithField("users", s.auth.len()).Info("User table reloaded")
}

// Addr returns the bound listener address, or nil before ListenAndServe
// has bound it. Useful when the configured port is 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Sessions returns the number of live session channels.
func (s *Server) Sessions() int {
	return s.registry.Len()
}

// ListenAndServe binds the TCP listener and serves connections until the
// context is canceled or Shutdown is called. It blocks.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.ListenFailed(s.addr, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()

	// Close the listener when the context ends so Accept unblocks.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.logger.WithField("address", listener.Addr().String()).Info("Listening for SSH connections")

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				s.wg.Wait()
				return nil
			}
			return errors.Wrap(err, errors.ErrCodeInternal, "accept failed")
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting connections, closes live ones, and waits for
// handlers to finish or the context to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	conns := make([]*ssh.ServerConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.logger.Info("Shutting down server")

	if listener != nil {
		_ = listener.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleConn performs the SSH handshake and dispatches channels.
func (s *Server) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()

	s.mu.Lock()
	over := s.limits.MaxSessions > 0 && len(s.conns) >= s.limits.MaxSessions
	s.mu.Unlock()
	if over {
		s.logger.WithField("remote", remote).
			WithError(errors.SessionLimit(s.limits.MaxSessions)).
			Warn("Rejecting connection")
		_ = conn.Close()
		return
	}

	if s.limits.IdleTimeout() > 0 {
		conn = &idleConn{Conn: conn, timeout: s.limits.IdleTimeout()}
	}

	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.sshConfig)
	if err != nil {
		s.logger.WithField("remote", remote).WithError(err).Debug("Handshake failed")
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sconn.Close()
		return
	}
	s.conns[sconn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, sconn)
		s.mu.Unlock()
		_ = sconn.Close()
		s.logger.WithField("remote", remote).WithField("user", sconn.User()).Info("Connection closed")
	}()

	s.logger.WithField("remote", remote).
		WithField("user", sconn.User()).
		WithField("method", sconn.Permissions.Extensions["auth-method"]).
		Info("Client connected")

	fwd := newForwarder(s, sconn)
	defer fwd.closeAll()
	go fwd.handleGlobalRequests(reqs)

	var wg sync.WaitGroup
	for newChannel := range chans {
		switch newChannel.ChannelType() {
		case "session":
			wg.Add(1)
			go func(nc ssh.NewChannel) {
				defer wg.Done()
				s.handleSession(sconn, nc)
			}(newChannel)
		case "direct-tcpip":
			wg.Add(1)
			go func(nc ssh.NewChannel) {
				defer wg.Done()
				fwd.handleDirectTCPIP(nc)
			}(newChannel)
		default:
			s.logger.WithField("type", newChannel.ChannelType()).Debug("Rejecting unknown channel type")
			_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
		}
	}
	wg.Wait()
}

// idleConn closes idle connections by refreshing a deadline on every
// read and write.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *idleConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
