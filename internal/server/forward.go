package server

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/halyard/halyard/errors"
	"golang.org/x/crypto/ssh"
)

const dialTimeout = 10 * time.Second

// directTCPIPMsg is the payload of a "direct-tcpip" channel open (RFC 4254 §7.2).
type directTCPIPMsg struct {
	DestAddr   string
	DestPort   uint32
	OriginAddr string
	OriginPort uint32
}

// tcpipForwardMsg is the payload of a "tcpip-forward" global request (RFC 4254 §7.1).
type tcpipForwardMsg struct {
	BindAddr string
	BindPort uint32
}

// tcpipForwardReplyMsg carries the chosen port back when the client asked
// for port 0.
type tcpipForwardReplyMsg struct {
	Port uint32
}

// forwarder owns the port-forwarding state of a single client connection.
// All of its listeners die with the connection.
type forwarder struct {
	s     *Server
	sconn *ssh.ServerConn

	mu        sync.Mutex
	listeners map[string]net.Listener
}

func newForwarder(s *Server, sconn *ssh.ServerConn) *forwarder {
	return &forwarder{
		s:         s,
		sconn:     sconn,
		listeners: make(map[string]net.Listener),
	}
}

// handleDirectTCPIP serves a client-initiated forward: dial the requested
// target and proxy bytes both ways.
func (f *forwarder) handleDirectTCPIP(nc ssh.NewChannel) {
	var msg directTCPIPMsg
	if err := ssh.Unmarshal(nc.ExtraData(), &msg); err != nil {
		_ = nc.Reject(ssh.Prohibited, "malformed direct-tcpip payload")
		return
	}

	target := net.JoinHostPort(msg.DestAddr, strconv.Itoa(int(msg.DestPort)))
	log := f.s.logger.WithField("user", f.sconn.User()).WithField("target", target)

	remote, err := net.DialTimeout("tcp", target, dialTimeout)
	if err != nil {
		log.WithError(err).Debug("direct-tcpip dial failed")
		_ = nc.Reject(ssh.ConnectionFailed, fmt.Sprintf("cannot connect to %s", target))
		return
	}

	channel, requests, err := nc.Accept()
	if err != nil {
		_ = remote.Close()
		return
	}
	go ssh.DiscardRequests(requests)

	log.Debug("direct-tcpip channel open")
	proxy(channel, remote)
}

// handleGlobalRequests serves connection-level requests, which for halyard
// means remote forwarding setup and teardown.
func (f *forwarder) handleGlobalRequests(reqs <-chan *ssh.Request) {
	for req := range reqs {
		switch req.Type {
		case "tcpip-forward":
			f.handleForwardRequest(req)
		case "cancel-tcpip-forward":
			f.handleCancelRequest(req)
		case "keepalive@openssh.com":
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

// handleForwardRequest binds a listener on the requested address and opens
// a forwarded-tcpip channel back to the client for every accepted
// connection.
func (f *forwarder) handleForwardRequest(req *ssh.Request) {
	var msg tcpipForwardMsg
	if err := ssh.Unmarshal(req.Payload, &msg); err != nil {
		_ = req.Reply(false, nil)
		return
	}

	bindAddr := net.JoinHostPort(msg.BindAddr, strconv.Itoa(int(msg.BindPort)))
	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		f.s.logger.WithError(errors.ForwardDenied(msg.BindAddr, msg.BindPort, err)).
			Warn("tcpip-forward bind failed")
		_ = req.Reply(false, nil)
		return
	}

	boundPort := uint32(listener.Addr().(*net.TCPAddr).Port)
	key := forwardKey(msg.BindAddr, boundPort)

	f.mu.Lock()
	f.listeners[key] = listener
	f.mu.Unlock()

	if req.WantReply {
		var payload []byte
		if msg.BindPort == 0 {
			payload = ssh.Marshal(tcpipForwardReplyMsg{Port: boundPort})
		}
		_ = req.Reply(true, payload)
	}

	f.s.logger.WithField("user", f.sconn.User()).
		WithField("bind", listener.Addr().String()).
		Info("Remote forward established")

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go f.serveForwarded(conn, msg.BindAddr, boundPort)
		}
	}()
}

// serveForwarded opens the forwarded-tcpip channel for one accepted
// connection and proxies it.
func (f *forwarder) serveForwarded(conn net.Conn, bindAddr string, boundPort uint32) {
	originHost, originPortStr, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		_ = conn.Close()
		return
	}
	originPort, _ := strconv.Atoi(originPortStr)

	payload := ssh.Marshal(directTCPIPMsg{
		DestAddr:   bindAddr,
		DestPort:   boundPort,
		OriginAddr: originHost,
		OriginPort: uint32(originPort),
	})

	channel, requests, err := f.sconn.OpenChannel("forwarded-tcpip", payload)
	if err != nil {
		f.s.logger.WithError(err).Debug("Client refused forwarded-tcpip channel")
		_ = conn.Close()
		return
	}
	go ssh.DiscardRequests(requests)

	proxy(channel, conn)
}

// handleCancelRequest tears down one remote forward.
func (f *forwarder) handleCancelRequest(req *ssh.Request) {
	var msg tcpipForwardMsg
	if err := ssh.Unmarshal(req.Payload, &msg); err != nil {
		_ = req.Reply(false, nil)
		return
	}

	key := forwardKey(msg.BindAddr, msg.BindPort)

	f.mu.Lock()
	listener, ok := f.listeners[key]
	if ok {
		delete(f.listeners, key)
	}
	f.mu.Unlock()

	if ok {
		_ = listener.Close()
	}
	if req.WantReply {
		_ = req.Reply(ok, nil)
	}
}

// closeAll tears down every forward listener of the connection.
func (f *forwarder) closeAll() {
	f.mu.Lock()
	listeners := make([]net.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.listeners = make(map[string]net.Listener)
	f.mu.Unlock()

	for _, l := range listeners {
		_ = l.Close()
	}
}

func forwardKey(addr string, port uint32) string {
	return net.JoinHostPort(addr, strconv.Itoa(int(port)))
}

// proxy copies bytes both ways and closes both ends when either side
// finishes.
func proxy(a, b io.ReadWriteCloser) {
	var once sync.Once
	closeBoth := func() {
		_ = a.Close()
		_ = b.Close()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(a, b)
		once.Do(closeBoth)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(b, a)
		once.Do(closeBoth)
	}()
	wg.Wait()
}
