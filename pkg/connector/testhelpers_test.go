// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aiku/meshcore-irc/pkg/meshcore"
)

// mockLineSender captures lines sent to the IRC client.
type mockLineSender struct {
	mu    sync.Mutex
	lines []string
}

func (m *mockLineSender) SendLine(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
}

func (m *mockLineSender) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(m.lines))
	copy(cp, m.lines)
	return cp
}

func (m *mockLineSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = nil
}

// meshCall records a send made through fakeMesh.
type meshCall struct {
	Method string
	Target string
	Text   string
}

// fakeMesh is an in-memory MeshAPI. It records calls and lets tests fire
// events at the subscribed handlers.
type fakeMesh struct {
	mu    sync.Mutex
	calls []meshCall
	subs  map[meshcore.EventType][]meshcore.Handler

	// Contacts maps hex public keys to contacts.
	Contacts map[string]*meshcore.Contact
	// ChannelErr and DirectErr are returned by the send methods.
	ChannelErr error
	DirectErr  error

	ensureCalls   int
	fetchStarted  bool
	fetchStopped  bool
	subscriptions int
}

var _ MeshAPI = (*fakeMesh)(nil)

func newFakeMesh() *fakeMesh {
	return &fakeMesh{
		subs:     make(map[meshcore.EventType][]meshcore.Handler),
		Contacts: make(map[string]*meshcore.Contact),
	}
}

// addContact registers a contact whose key is the given hex string padded
// with zeros.
func (f *fakeMesh) addContact(hexKey, name string) *meshcore.Contact {
	c := &meshcore.Contact{Name: name}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		panic(err)
	}
	copy(c.PublicKey[:], key)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Contacts[c.PublicKeyHex()] = c
	return c
}

func (f *fakeMesh) EnsureContacts(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	return nil
}

func (f *fakeMesh) Subscribe(eventType meshcore.EventType, handler meshcore.Handler) *meshcore.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[eventType] = append(f.subs[eventType], handler)
	f.subscriptions++
	return &meshcore.Subscription{}
}

func (f *fakeMesh) StartAutoMessageFetching(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchStarted = true
	return nil
}

func (f *fakeMesh) StopAutoMessageFetching() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchStopped = true
}

func (f *fakeMesh) SendChannelMessage(_ context.Context, channelIndex uint8, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, meshCall{Method: "SendChannelMessage", Target: strconv.Itoa(int(channelIndex)), Text: text})
	return f.ChannelErr
}

func (f *fakeMesh) SendMessageWithRetry(_ context.Context, contact *meshcore.Contact, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, meshCall{Method: "SendMessageWithRetry", Target: contact.Name, Text: text})
	return f.DirectErr
}

func (f *fakeMesh) GetContactByKeyPrefix(prefix string) (*meshcore.Contact, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix = strings.ToLower(prefix)
	if prefix == "" {
		return nil, false
	}
	for key, c := range f.Contacts {
		if strings.HasPrefix(key, prefix) {
			return c, true
		}
	}
	return nil, false
}

func (f *fakeMesh) ContactCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Contacts)
}

func (f *fakeMesh) Calls() []meshCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]meshCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

// emit delivers evt to the subscribed handlers, as the radio client would.
func (f *fakeMesh) emit(evt meshcore.Event) {
	f.mu.Lock()
	handlers := append([]meshcore.Handler(nil), f.subs[evt.Type]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

// newTestConnector returns a connector with the example config applied.
func newTestConnector(mesh *fakeMesh) *MeshConnector {
	cfg, err := ParseConfig(nil)
	if err != nil {
		panic(err)
	}
	if err := cfg.PostProcess(); err != nil {
		panic(err)
	}
	return NewMeshConnector(*cfg, mesh, zerolog.Nop())
}

// newTestClient returns a client without a connection whose replies are
// captured by the returned sender.
func newTestClient(mc *MeshConnector) (*IRCClient, *mockLineSender) {
	sender := &mockLineSender{}
	return &IRCClient{
		connector: mc,
		out:       sender,
		log:       zerolog.Nop(),
		session:   newSession(),
	}, sender
}

// send feeds lines to the dispatcher as if read from the connection.
func send(c *IRCClient, lines ...string) {
	for _, line := range lines {
		c.handleLine(context.Background(), line)
	}
}

// registered returns a client that completed NICK/USER, with the welcome
// burst cleared.
func registered(mc *MeshConnector, nick string) (*IRCClient, *mockLineSender) {
	c, sender := newTestClient(mc)
	send(c, "NICK "+nick, "USER "+nick+" 0 * :"+nick)
	sender.Reset()
	return c, sender
}
