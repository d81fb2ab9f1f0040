package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/halyard/halyard/config"
	"github.com/halyard/halyard/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// startServer runs a server for the given user table and returns its
// address. The server is torn down with the test.
func startServer(t *testing.T, users map[string]config.UserConfig) (*Server, string) {
	t.Helper()

	s := testServer(t, users)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	// Wait for the listener to bind
	deadline := time.Now().Add(5 * time.Second)
	for s.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s, s.Addr().String()
}

func dialPassword(t *testing.T, addr, user, password string) *ssh.Client {
	t.Helper()

	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// openShell returns the session's stdin and a buffered stdout reader with
// the shell already started.
func openShell(t *testing.T, client *ssh.Client) (io.WriteCloser, *bufio.Reader) {
	t.Helper()

	sess, err := client.NewSession()
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	stdin, err := sess.StdinPipe()
	require.NoError(t, err)
	stdout, err := sess.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, sess.Shell())

	return stdin, bufio.NewReader(stdout)
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- result{line, err}
	}()

	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return strings.TrimRight(res.line, "\r\n")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server output")
		return ""
	}
}

func TestSessionEcho(t *testing.T) {
	_, addr := startServer(t, map[string]config.UserConfig{
		"alice": {Password: "hunter2"},
	})

	client := dialPassword(t, addr, "alice", "hunter2")
	stdin, stdout := openShell(t, client)

	_, err := stdin.Write([]byte("hello there"))
	require.NoError(t, err)

	require.Equal(t, "Got data: hello there", readLine(t, stdout))
}

func TestSessionBroadcast(t *testing.T) {
	_, addr := startServer(t, map[string]config.UserConfig{
		"alice": {Password: "hunter2"},
		"bob":   {Password: "hunter2"},
	})

	clientA := dialPassword(t, addr, "alice", "hunter2")
	clientB := dialPassword(t, addr, "bob", "hunter2")

	stdinA, stdoutA := openShell(t, clientA)
	_, stdoutB := openShell(t, clientB)

	_, err := stdinA.Write([]byte("ahoy"))
	require.NoError(t, err)

	// The sender gets the echo, the other session gets the broadcast.
	require.Equal(t, "Got data: ahoy", readLine(t, stdoutA))
	require.Equal(t, "Got data: ahoy", readLine(t, stdoutB))
}

func TestPublicKeyLogin(t *testing.T) {
	signer, authorized, _ := testutil.GenerateClientKey(t)

	_, addr := startServer(t, map[string]config.UserConfig{
		"carol": {Keys: []string{authorized}},
	})

	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "carol",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	require.NoError(t, err)
	defer client.Close()

	stdin, stdout := openShell(t, client)
	_, err = stdin.Write([]byte("key login"))
	require.NoError(t, err)
	require.Equal(t, "Got data: key login", readLine(t, stdout))
}

func TestWrongPasswordRejected(t *testing.T) {
	_, addr := startServer(t, map[string]config.UserConfig{
		"alice": {Password: "hunter2"},
	})

	_, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "alice",
		Auth:            []ssh.AuthMethod{ssh.Password("wrong")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	require.Error(t, err)
}

func TestExecEchoesCommand(t *testing.T) {
	_, addr := startServer(t, map[string]config.UserConfig{
		"alice": {Password: "hunter2"},
	})

	client := dialPassword(t, addr, "alice", "hunter2")

	sess, err := client.NewSession()
	require.NoError(t, err)
	defer sess.Close()

	out, err := sess.Output("uptime")
	require.NoError(t, err)
	require.Equal(t, "Got command: uptime", strings.TrimRight(string(out), "\r\n"))
}

func TestDirectTCPIP(t *testing.T) {
	// A local upper-case echo service to forward to
	target, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer target.Close()
	go func() {
		for {
			conn, err := target.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 1024)
				n, _ := c.Read(buf)
				_, _ = c.Write([]byte(strings.ToUpper(string(buf[:n]))))
			}(conn)
		}
	}()

	_, addr := startServer(t, map[string]config.UserConfig{
		"alice": {Password: "hunter2"},
	})
	client := dialPassword(t, addr, "alice", "hunter2")

	conn, err := client.Dial("tcp", target.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("forward me"))
	require.NoError(t, err)

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "FORWARD ME", string(buf[:n]))
}

func TestDirectTCPIPDialFailure(t *testing.T) {
	_, addr := startServer(t, map[string]config.UserConfig{
		"alice": {Password: "hunter2"},
	})
	client := dialPassword(t, addr, "alice", "hunter2")

	// A port nobody listens on
	port := testutil.FreePort(t)
	_, err := client.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.Error(t, err)
}

func TestRemoteForward(t *testing.T) {
	_, addr := startServer(t, map[string]config.UserConfig{
		"alice": {Password: "hunter2"},
	})
	client := dialPassword(t, addr, "alice", "hunter2")

	// Ask the server to listen and hand connections back to us
	remote, err := client.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer remote.Close()

	go func() {
		conn, err := remote.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		n, _ := conn.Read(buf)
		_, _ = conn.Write([]byte("pong:" + string(buf[:n])))
	}()

	conn, err := net.Dial("tcp", remote.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "pong:ping", string(buf[:n]))
}

func TestForwardListenerClosedOnDisconnect(t *testing.T) {
	_, addr := startServer(t, map[string]config.UserConfig{
		"alice": {Password: "hunter2"},
	})
	client := dialPassword(t, addr, "alice", "hunter2")

	remote, err := client.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	forwardAddr := remote.Addr().String()

	// The forwarded port accepts while the connection lives
	probe, err := net.Dial("tcp", forwardAddr)
	require.NoError(t, err)
	probe.Close()

	require.NoError(t, client.Close())

	// The listener dies with the connection
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.Dial("tcp", forwardAddr)
		if err != nil {
			break
		}
		conn.Close()
		if time.Now().After(deadline) {
			t.Fatal("forwarded port still accepting after disconnect")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestIdleConnectionClosed(t *testing.T) {
	s := testServer(t, map[string]config.UserConfig{
		"alice": {Password: "hunter2"},
	})
	s.limits.IdleTimeoutSec = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.ListenAndServe(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for s.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind")
		}
		time.Sleep(5 * time.Millisecond)
	}

	client := dialPassword(t, s.Addr().String(), "alice", "hunter2")
	stdin, stdout := openShell(t, client)

	// Traffic keeps refreshing the deadline well past the timeout
	for i := 0; i < 4; i++ {
		time.Sleep(400 * time.Millisecond)
		_, err := stdin.Write([]byte("tick"))
		require.NoError(t, err)
		require.Equal(t, "Got data: tick", readLine(t, stdout))
	}

	// Silence lets the deadline expire and the connection dies
	done := make(chan error, 1)
	go func() { done <- client.Wait() }()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("idle connection was not closed")
	}
}

func TestSessionLimit(t *testing.T) {
	signerlessUsers := map[string]config.UserConfig{
		"alice": {Password: "hunter2"},
	}

	s := testServer(t, signerlessUsers)
	s.limits.MaxSessions = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.ListenAndServe(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for s.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind")
		}
		time.Sleep(5 * time.Millisecond)
	}
	addr := s.Addr().String()

	first := dialPassword(t, addr, "alice", "hunter2")
	defer first.Close()

	// The second connection is dropped before the handshake completes
	_, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "alice",
		Auth:            []ssh.AuthMethod{ssh.Password("hunter2")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	require.Error(t, err)
}

func TestHotUserReload(t *testing.T) {
	s, addr := startServer(t, map[string]config.UserConfig{
		"alice": {Password: "hunter2"},
	})

	_, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "erin",
		Auth:            []ssh.AuthMethod{ssh.Password("fresh")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	require.Error(t, err, "erin must not exist yet")

	s.SetUsers(map[string]config.UserConfig{
		"erin": {Password: "fresh"},
	})

	client := dialPassword(t, addr, "erin", "fresh")
	stdin, stdout := openShell(t, client)
	_, err = stdin.Write([]byte("reloaded"))
	require.NoError(t, err)
	require.Equal(t, "Got data: reloaded", readLine(t, stdout))
}

func TestShutdownClosesConnections(t *testing.T) {
	s := testServer(t, map[string]config.UserConfig{
		"alice": {Password: "hunter2"},
	})

	ctx := context.Background()
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for s.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind")
		}
		time.Sleep(5 * time.Millisecond)
	}

	client := dialPassword(t, s.Addr().String(), "alice", "hunter2")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(shutdownCtx))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after Shutdown")
	}

	// The client's connection is gone
	err := client.Wait()
	require.Error(t, err)
}
