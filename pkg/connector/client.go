// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// IRCClient is the single connected IRC client and its session state.
type IRCClient struct {
	connector *MeshConnector
	conn      net.Conn
	writer    *connWriter
	out       lineSender
	log       zerolog.Logger

	// mu guards session. Only the read loop writes it; the mesh event
	// translator reads the nick concurrently.
	mu      sync.RWMutex
	session Session

	quit      bool
	closeOnce sync.Once
	closeErr  error
}

func newIRCClient(connector *MeshConnector, conn net.Conn, log zerolog.Logger) *IRCClient {
	writer := newConnWriter(conn, log)
	return &IRCClient{
		connector: connector,
		conn:      conn,
		writer:    writer,
		out:       writer,
		log:       log,
		session:   newSession(),
	}
}

// serve reads and dispatches lines until the client quits, the connection
// fails or is closed. The connection is closed on return.
func (c *IRCClient) serve(ctx context.Context) error {
	go c.writer.run()
	defer func() {
		c.writer.Close()
		_ = c.Close()
	}()

	lr := newLineReader(c.conn)
	for line := range lr.Lines() {
		c.log.Debug().Str("line", line).Msg("<")
		c.handleLine(ctx, line)
		if c.quit {
			return nil
		}
	}
	if err := lr.Err(); err != nil {
		return fmt.Errorf("failed to read from IRC client: %w", err)
	}
	return nil
}

// SendLine queues a raw protocol line for the client.
func (c *IRCClient) SendLine(line string) {
	c.out.SendLine(line)
}

// Nick returns the current nickname.
func (c *IRCClient) Nick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Nick
}

// Session returns a snapshot of the session state.
func (c *IRCClient) Session() SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.snapshot()
}

// Close closes the client connection, ending the read loop.
func (c *IRCClient) Close() error {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.closeErr = c.conn.Close()
		}
	})
	return c.closeErr
}
