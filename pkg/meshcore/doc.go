// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package meshcore is a client for the MeshCore companion radio protocol.
//
// A companion radio is a MeshCore node that exposes its messaging functions
// to a host application over a serial port, a TCP socket or a BLE UART
// service. The host issues commands one at a time and receives either a
// direct response or asynchronous push notifications (adverts, delivery
// confirmations, "messages waiting").
//
// # Core Types
//
// [MeshCore] owns a [Transport], serializes command round-trips, keeps the
// contact directory and fans received messages out to subscribers as
// [Event] values.
//
// [Transport] moves whole frames. Stream links (serial, TCP) wrap each frame
// with a start byte and a little-endian length; BLE carries one frame per
// characteristic write or notification.
//
// # Message Fetching
//
// The radio queues incoming messages and only announces them with a
// "messages waiting" push. [MeshCore.StartAutoMessageFetching] drains the
// queue on every such push and emits [EventChannelMessage] and
// [EventContactMessage] events.
package meshcore
