// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"strings"
)

// handleLine dispatches one inbound line. Unknown commands are ignored.
func (c *IRCClient) handleLine(ctx context.Context, line string) {
	verb, rest, _ := strings.Cut(line, " ")
	verb = strings.ToUpper(verb)

	switch verb {
	case "NICK":
		c.handleNick(rest)
	case "USER":
		c.handleUser(rest)
	case "QUIT":
		c.handleQuit()
	case "JOIN":
		c.handleJoin(rest)
	case "PART":
		c.handlePart(rest)
	case "MODE":
		c.handleMode(rest)
	case "LIST":
		c.handleList(rest)
	case "PRIVMSG":
		c.handlePrivmsg(ctx, rest)
	case "WHOIS":
		c.handleWhois(rest)
	case "WHO":
		c.handleWho(rest)
	case "PING":
		c.handlePing(rest)
	default:
		c.log.Trace().Str("verb", verb).Msg("Ignoring unsupported command")
		c.connector.Metrics.CommandsTotal.WithLabelValues("unknown").Inc()
		return
	}
	c.connector.Metrics.CommandsTotal.WithLabelValues(verb).Inc()
}

func (c *IRCClient) handleJoin(rest string) {
	if strings.TrimSpace(rest) == "" {
		c.sendNeedMoreParams("JOIN")
		return
	}
	for _, name := range splitTargets(firstToken(rest)) {
		ch, ok := c.connector.channelInfo(name)
		if !ok {
			c.sendNoSuchChannel(name)
			continue
		}
		c.mu.Lock()
		c.session.Channels[ch.Name] = struct{}{}
		c.mu.Unlock()
		c.sendJoinReplies(ch)
	}
}

func (c *IRCClient) handlePart(rest string) {
	if strings.TrimSpace(rest) == "" {
		c.sendNeedMoreParams("PART")
		return
	}
	for _, name := range splitTargets(firstToken(rest)) {
		if !c.session.Joined(name) {
			c.sendNotOnChannel(name)
			continue
		}
		c.sendFrom(c.session.Prefix(), "PART", name)
		c.mu.Lock()
		delete(c.session.Channels, name)
		c.mu.Unlock()
	}
}

func (c *IRCClient) handleMode(rest string) {
	target := firstToken(rest)
	if target == "" {
		c.sendNeedMoreParams("MODE")
		return
	}
	if !isChannelName(target) {
		c.sendNumeric(errUsersDontMatch, ":Cant change mode for other users")
		return
	}
	if !c.session.Joined(target) {
		c.sendNotOnChannel(target)
		return
	}
	if ch, ok := c.connector.channelInfo(target); ok {
		c.sendNumeric(rplChannelModeIs, ch.Name, ch.Modes)
	}
}

func (c *IRCClient) handleList(rest string) {
	names := firstToken(rest)
	if names == "" {
		ch, _ := c.connector.channelInfo(PublicChannel)
		c.sendListBlock(ch)
		return
	}
	for _, name := range splitTargets(names) {
		ch, ok := c.connector.channelInfo(name)
		if !ok {
			c.sendNoSuchChannel(name)
			continue
		}
		c.sendListBlock(ch)
	}
}

func (c *IRCClient) handleWhois(rest string) {
	params := strings.Fields(rest)
	if len(params) == 0 {
		c.sendNumeric(errNoNicknameGiven, ":No nickname given")
		return
	}
	// WHOIS [server] nick: the nick is always last.
	target := params[len(params)-1]
	nick := c.session.Nick

	if target != nick {
		c.sendNoSuchNick(target)
		c.sendNumeric(rplEndOfWhois, target, ":End of /WHOIS list")
		return
	}

	c.sendNumeric(rplWhoisUser, nick, c.displayUser(), serverName, "*", ":"+nick)
	c.sendNumeric(rplWhoisServer, nick, serverName, ":"+c.connector.Config.ServerDescription)
	if chans := c.session.SortedChannels(); len(chans) > 0 {
		c.sendNumeric(rplWhoisChannels, nick, ":"+strings.Join(chans, " "))
	}
	c.sendNumeric(rplEndOfWhois, nick, ":End of /WHOIS list")
}

func (c *IRCClient) handleWho(rest string) {
	target := firstToken(rest)
	if target == "" {
		target = "*"
	}

	switch {
	case c.session.Joined(target):
		c.sendWhoReply(target)
	case target == "*" || target == "0" || target == c.session.Nick:
		for _, ch := range c.session.SortedChannels() {
			c.sendWhoReply(ch)
		}
	}
	c.sendNumeric(rplEndOfWho, target, ":End of /WHO list")
}

func (c *IRCClient) handlePing(rest string) {
	token := strings.TrimPrefix(strings.TrimSpace(rest), ":")
	c.sendFrom(serverName, "PONG", serverName, ":"+token)
}
