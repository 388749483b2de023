// Copyright 2024-2026 Aiku AI

package connector

import (
	"strings"
)

const (
	// serverName is the source of server replies and the host part of
	// every prefix.
	serverName = "mesh"

	// PublicChannel is the only IRC channel; it maps to mesh channel 0.
	PublicChannel = "#public"
	// PublicChannelIndex is the mesh channel index bridged to PublicChannel.
	PublicChannelIndex uint8 = 0

	// directNickLength is the number of key prefix characters used as the
	// nick of a direct message sender.
	directNickLength = 12

	defaultNick           = "*"
	defaultEventQueueSize = 64
)

// meshChannelSource is the prefix of messages relayed from the public mesh
// channel. Channel frames do not identify the sending node.
const meshChannelSource = serverName + "!" + serverName + "@" + serverName

// MakePrefix builds the nick!user@mesh source of a user.
func MakePrefix(nick, user string) string {
	if user == "" {
		user = defaultNick
	}
	return nick + "!" + user + "@" + serverName
}

// MakeDirectNick returns the nick of a direct message sender: the first
// twelve characters of its key prefix.
func MakeDirectNick(keyPrefix string) string {
	if len(keyPrefix) > directNickLength {
		return keyPrefix[:directNickLength]
	}
	return keyPrefix
}

// isChannelName reports whether target names a channel rather than a nick.
func isChannelName(target string) bool {
	return strings.HasPrefix(target, "#")
}
