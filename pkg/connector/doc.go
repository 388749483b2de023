// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connector implements an IRC server that bridges a single IRC
// client to a MeshCore mesh network.
//
// The bridge speaks just enough of the IRC protocol for a standard client to
// register, join the one bridged channel and exchange messages. Messages on
// mesh channel 0 appear in #public; direct messages from mesh contacts
// appear as private messages from a nick derived from the sender's public
// key prefix, and private messages to such a nick are sent back to that
// contact.
//
// # Core Types
//
// [MeshConnector] owns the listener, the single active client slot, the mesh
// event queue and the admin API. A second concurrent connection is closed
// without affecting the connected client.
//
// [IRCClient] is the connected client. Its read loop dispatches one command
// at a time and its replies are written by a separate writer goroutine.
//
// [MeshAPI] is the part of the mesh radio client the bridge depends on.
//
// # Sub-packages
//
//   - ircfmt converts IRC message text to plain mesh text.
//   - meshfmt makes mesh message text safe to embed in an IRC line.
package connector
