package server

import (
	"fmt"

	"golang.org/x/crypto/ssh"
)

// execMsg is the payload of an "exec" channel request.
type execMsg struct {
	Command string
}

// exitStatusMsg is the payload of an "exit-status" channel request.
type exitStatusMsg struct {
	Status uint32
}

// handleSession serves one interactive session channel. Every chunk of
// client data is echoed back and broadcast to all other sessions.
func (s *Server) handleSession(sconn *ssh.ServerConn, nc ssh.NewChannel) {
	channel, requests, err := nc.Accept()
	if err != nil {
		s.logger.WithError(err).Debug("Failed to accept session channel")
		return
	}

	id := s.registry.Add(channel)
	log := s.logger.WithField("user", sconn.User()).WithField("session", id)
	log.Debug("Session opened")

	defer func() {
		s.registry.Remove(id)
		_ = channel.Close()
		log.Debug("Session closed")
	}()

	go func() {
		for req := range requests {
			switch req.Type {
			case "shell":
				// A shell request with a command is malformed per RFC 4254.
				ok := len(req.Payload) == 0
				if req.WantReply {
					_ = req.Reply(ok, nil)
				}
			case "pty-req", "env", "window-change", "signal":
				if req.WantReply {
					_ = req.Reply(true, nil)
				}
			case "exec":
				var msg execMsg
				if err := ssh.Unmarshal(req.Payload, &msg); err != nil {
					if req.WantReply {
						_ = req.Reply(false, nil)
					}
					continue
				}
				if req.WantReply {
					_ = req.Reply(true, nil)
				}
				// No command execution here; acknowledge and end the
				// channel like a command that ran and said nothing useful.
				fmt.Fprintf(channel, "Got command: %s\r\n", msg.Command)
				_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(exitStatusMsg{Status: 0}))
				_ = channel.Close()
			default:
				log.WithField("request", req.Type).Debug("Rejecting session request")
				if req.WantReply {
					_ = req.Reply(false, nil)
				}
			}
		}
	}()

	buf := make([]byte, 32*1024)
	for {
		n, err := channel.Read(buf)
		if n > 0 {
			msg := []byte(fmt.Sprintf("Got data: %s\r\n", string(buf[:n])))
			if _, werr := channel.Write(msg); werr != nil {
				return
			}
			s.registry.Broadcast(id, msg)
		}
		if err != nil {
			return
		}
	}
}
