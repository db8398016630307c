// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

// Console represents an SSH console instance.
type Console struct {
	// Banner is the login welcome banner
	Banner string
	// Handler is the terminal command handler
	Handler func(*term.Terminal, string) error
	// Output, when set, is mirrored on the session terminal
	Output *Output
	// Log is the console logger
	Log *zap.Logger
}

// parseSize decodes the terminal dimensions found at offset off of a
// pty-req or window-change payload (RFC4254, p10 6.2 and 6.7).
func parseSize(payload []byte, off int) (w int, h int, ok bool) {
	if len(payload) < off+8 {
		return
	}

	w = int(binary.BigEndian.Uint32(payload[off:]))
	h = int(binary.BigEndian.Uint32(payload[off+4:]))

	return w, h, true
}

func (c *Console) handleRequests(t *term.Terminal, requests <-chan *ssh.Request) {
	for req := range requests {
		switch req.Type {
		case "shell":
			// do not accept payload commands
			if len(req.Payload) == 0 {
				_ = req.Reply(true, nil)
			}
		case "pty-req":
			if len(req.Payload) < 4 {
				c.Log.Warn("malformed pty-req request")
				continue
			}

			w, h, ok := parseSize(req.Payload, 4+int(req.Payload[3]))

			if !ok {
				c.Log.Warn("malformed pty-req request")
				continue
			}

			_ = t.SetSize(w, h)
			_ = req.Reply(true, nil)
		case "window-change":
			w, h, ok := parseSize(req.Payload, 0)

			if !ok {
				c.Log.Warn("malformed window-change request")
				continue
			}

			_ = t.SetSize(w, h)
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (c *Console) session(conn ssh.Channel, t *term.Terminal) {
	defer conn.Close()

	t.SetPrompt(string(t.Escape.Red) + "> " + string(t.Escape.Reset))

	if c.Output != nil {
		c.Output.Attach(t)
		defer c.Output.Attach(nil)
	}

	fmt.Fprintf(t, "%s\n\n", c.Banner)
	c.Handler(t, "help")

	for {
		line, err := t.ReadLine()

		if err == io.EOF {
			break
		}

		if err != nil {
			c.Log.Warn("readline error", zap.Error(err))
			continue
		}

		if err = c.Handler(t, line); err == io.EOF {
			break
		} else if err != nil {
			fmt.Fprintf(t, "error: %v\n", err)
		}
	}

	c.Log.Info("closing ssh session")
}

func (c *Console) handleChannel(newChannel ssh.NewChannel) {
	if t := newChannel.ChannelType(); t != "session" {
		_ = newChannel.Reject(ssh.UnknownChannelType, fmt.Sprintf("unknown channel type: %s", t))
		return
	}

	conn, requests, err := newChannel.Accept()

	if err != nil {
		c.Log.Warn("error accepting channel", zap.Error(err))
		return
	}

	t := term.NewTerminal(conn, "")

	go c.handleRequests(t, requests)
	go c.session(conn, t)
}

func (c *Console) listen(listener net.Listener, srv *ssh.ServerConfig) {
	for {
		conn, err := listener.Accept()

		if err != nil {
			c.Log.Warn("error accepting connection", zap.Error(err))
			continue
		}

		sshConn, chans, reqs, err := ssh.NewServerConn(conn, srv)

		if err != nil {
			c.Log.Warn("error accepting handshake", zap.Error(err))
			continue
		}

		c.Log.Info("new ssh connection",
			zap.Stringer("addr", sshConn.RemoteAddr()),
			zap.ByteString("client", sshConn.ClientVersion()))

		go ssh.DiscardRequests(reqs)

		go func() {
			for newChannel := range chans {
				go c.handleChannel(newChannel)
			}
		}()
	}
}

// Start instantiates an SSH console on the given listener.
func (c *Console) Start(listener net.Listener) (err error) {
	if c.Log == nil {
		c.Log = zap.NewNop()
	}

	srv := &ssh.ServerConfig{
		NoClientAuth: true,
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)

	if err != nil {
		return fmt.Errorf("private key generation error, %v", err)
	}

	signer, err := ssh.NewSignerFromKey(key)

	if err != nil {
		return fmt.Errorf("key conversion error, %v", err)
	}

	c.Log.Info("starting ssh server", zap.String("fingerprint", ssh.FingerprintSHA256(signer.PublicKey())))

	srv.AddHostKey(signer)

	go c.listen(listener, srv)

	return
}
