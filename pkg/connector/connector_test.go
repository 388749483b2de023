// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aiku/meshcore-irc/pkg/meshcore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startBridge serves mc on a loopback listener until the test ends.
func startBridge(t *testing.T, mc *MeshConnector) (addr string, cancel context.CancelFunc) {
	t.Helper()
	require.NoError(t, mc.Start(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- mc.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})
	return ln.Addr().String(), cancel
}

type ircTestConn struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialIRC(t *testing.T, addr string) *ircTestConn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &ircTestConn{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *ircTestConn) send(lines ...string) {
	c.t.Helper()
	for _, line := range lines {
		_, err := io.WriteString(c.conn, line+"\r\n")
		require.NoError(c.t, err)
	}
}

func (c *ircTestConn) readLine() (string, error) {
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := c.r.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}

func (c *ircTestConn) expect(want ...string) {
	c.t.Helper()
	for _, w := range want {
		line, err := c.readLine()
		require.NoError(c.t, err)
		require.Equal(c.t, w, line)
	}
}

func (c *ircTestConn) expectClosed() {
	c.t.Helper()
	_, err := c.readLine()
	require.ErrorIs(c.t, err, io.EOF)
}

func (c *ircTestConn) register(nick string) {
	c.t.Helper()
	c.send("NICK "+nick, "USER "+nick+" 0 * :"+nick)
	_, err := c.readLine() // 001
	require.NoError(c.t, err)
	_, err = c.readLine() // 002
	require.NoError(c.t, err)
	c.expect(":mesh 376 " + nick + " :End MOTD")
}

func TestStart(t *testing.T) {
	t.Parallel()
	mesh := newFakeMesh()
	mc := newTestConnector(mesh)
	require.NoError(t, mc.Start(context.Background()))
	mc.subscribe()

	assert.Equal(t, 1, mesh.ensureCalls)
	assert.Equal(t, 2, mesh.subscriptions)
	assert.True(t, mesh.fetchStarted)
}

func TestStartInvalidTemplate(t *testing.T) {
	t.Parallel()
	mc := newTestConnector(newFakeMesh())
	mc.Config.DirectNickTemplate = "{{"
	require.Error(t, mc.Start(context.Background()))
}

func TestQueueFull(t *testing.T) {
	t.Parallel()
	mesh := newFakeMesh()
	mc := newTestConnector(mesh)
	mc.Config.EventQueueSize = 1
	require.NoError(t, mc.Start(context.Background()))

	for range 3 {
		mesh.emit(channelEvent(0, meshcore.TextTypePlain, "alice: hey"))
	}
	assert.Len(t, mc.events, 1)
	assert.Equal(t, 2.0, counterValue(t, mc.Metrics.MeshEventsTotal.WithLabelValues("channel_message", "queue_full")))
}

func TestBridgeEndToEnd(t *testing.T) {
	t.Parallel()
	mesh := newFakeMesh()
	mesh.addContact("abcdef0123456789", "alice")
	mc := newTestConnector(mesh)
	addr, _ := startBridge(t, mc)

	c := dialIRC(t, addr)
	c.send("NICK bob", "USER bob 0 * :Bob")
	c.expect(
		":mesh 001 bob :Welcome to MeshCore",
		":mesh 002 bob :1 contacts",
		":mesh 376 bob :End MOTD",
	)

	c.send("JOIN #public")
	c.expect(
		":bob!bob@mesh JOIN #public",
		":mesh 332 bob #public :MeshCore Public Channel",
		":mesh 353 bob = #public :bob",
		":mesh 366 bob #public :End of /NAMES list",
	)

	mesh.emit(channelEvent(0, meshcore.TextTypePlain, "alice: hey"))
	c.expect(":mesh!mesh@mesh PRIVMSG #public :alice: hey")

	mesh.emit(contactEvent("abcdef012345", meshcore.TextTypePlain, "psst"))
	c.expect(":abcdef012345!abcdef012345@mesh PRIVMSG bob :psst")

	c.send("PRIVMSG #public :hello mesh", "PRIVMSG abcdef012345 :hi alice", "PING :sync")
	c.expect(":mesh PONG mesh :sync")
	assert.Equal(t, []meshCall{
		{Method: "SendChannelMessage", Target: "0", Text: "hello mesh"},
		{Method: "SendMessageWithRetry", Target: "alice", Text: "hi alice"},
	}, mesh.Calls())

	c.send("QUIT :bye")
	c.expect(":bob!bob@mesh QUIT :bob")
	c.expectClosed()

	require.Eventually(t, func() bool {
		return mc.ActiveClient() == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBridgeSingleClient(t *testing.T) {
	t.Parallel()
	mc := newTestConnector(newFakeMesh())
	addr, _ := startBridge(t, mc)

	first := dialIRC(t, addr)
	first.register("bob")

	second := dialIRC(t, addr)
	second.expectClosed()

	first.send("PING :still-here")
	first.expect(":mesh PONG mesh :still-here")
	assert.Equal(t, 1.0, counterValue(t, mc.Metrics.ConnectionsTotal.WithLabelValues("rejected")))

	first.send("QUIT")
	first.expect(":bob!bob@mesh QUIT :bob")
	first.expectClosed()
	require.Eventually(t, func() bool {
		return mc.ActiveClient() == nil
	}, 5*time.Second, 10*time.Millisecond)

	third := dialIRC(t, addr)
	third.register("carol")
	assert.Equal(t, 2.0, counterValue(t, mc.Metrics.ConnectionsTotal.WithLabelValues("accepted")))
}

func TestBridgeDisconnectFreesSlot(t *testing.T) {
	t.Parallel()
	mc := newTestConnector(newFakeMesh())
	addr, _ := startBridge(t, mc)

	first := dialIRC(t, addr)
	first.register("bob")
	require.NoError(t, first.conn.Close())

	require.Eventually(t, func() bool {
		return mc.ActiveClient() == nil
	}, 5*time.Second, 10*time.Millisecond)

	second := dialIRC(t, addr)
	second.register("bob")
}

func TestBridgeDropsEventsWithoutClient(t *testing.T) {
	t.Parallel()
	mesh := newFakeMesh()
	mc := newTestConnector(mesh)
	startBridge(t, mc)

	mesh.emit(channelEvent(0, meshcore.TextTypePlain, "alice: anyone?"))
	require.Eventually(t, func() bool {
		return counterValue(t, mc.Metrics.MeshEventsTotal.WithLabelValues("channel_message", "no_client")) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBridgeShutdownClosesClient(t *testing.T) {
	t.Parallel()
	mc := newTestConnector(newFakeMesh())
	addr, cancel := startBridge(t, mc)

	c := dialIRC(t, addr)
	c.register("bob")
	cancel()
	c.expectClosed()
}

func TestHandleStatus(t *testing.T) {
	t.Parallel()
	mesh := newFakeMesh()
	mesh.addContact("aa", "a")
	mc := newTestConnector(mesh)

	get := func() StatusResponse {
		rec := httptest.NewRecorder()
		mc.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var resp StatusResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp
	}

	resp := get()
	assert.False(t, resp.Connected)
	assert.Nil(t, resp.Session)
	assert.Equal(t, 1, resp.Contacts)

	c, _ := registered(mc, "bob")
	require.True(t, mc.adopt(c))
	resp = get()
	assert.True(t, resp.Connected)
	require.NotNil(t, resp.Session)
	assert.Equal(t, "bob", resp.Session.Nick)
	assert.Equal(t, "registered", resp.Session.Phase)
}

func TestHandleStatus_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	mc := newTestConnector(newFakeMesh())
	rec := httptest.NewRecorder()
	mc.HandleStatus(rec, httptest.NewRequest(http.MethodPost, "/api/status", strings.NewReader("{}")))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminHandler(t *testing.T) {
	t.Parallel()
	mc := newTestConnector(newFakeMesh())
	srv := httptest.NewServer(mc.adminHandler())
	defer srv.Close()

	for _, path := range []string{"/api/status", "/metrics"} {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestAdopt(t *testing.T) {
	t.Parallel()
	mc := newTestConnector(newFakeMesh())
	a, _ := newTestClient(mc)
	b, _ := newTestClient(mc)

	require.True(t, mc.adopt(a))
	require.False(t, mc.adopt(b))
	mc.release(b)
	require.Same(t, a, mc.ActiveClient())
	mc.release(a)
	require.Nil(t, mc.ActiveClient())
	require.True(t, mc.adopt(b))
}
