// Copyright 2024-2026 Aiku AI

package connector

import (
	"strconv"
	"strings"
)

// handleNick sets the nickname. Once registered, the change is echoed so the
// client updates its own view.
func (c *IRCClient) handleNick(rest string) {
	nick := firstToken(strings.TrimPrefix(strings.TrimSpace(rest), ":"))
	if nick == "" {
		c.sendNumeric(errNoNicknameGiven, ":No nickname given")
		return
	}
	if isChannelName(nick) || nick == defaultNick {
		c.sendNumeric(errErroneusNickname, nick, ":Erroneus nickname")
		return
	}
	if nick == c.session.Nick {
		return
	}

	oldPrefix := c.session.Prefix()
	wasRegistered := c.session.Phase == PhaseRegistered

	c.mu.Lock()
	c.session.setNick(nick)
	c.mu.Unlock()

	c.log.Debug().Str("nick", nick).Msg("Nickname set")
	if wasRegistered {
		c.sendFrom(oldPrefix, "NICK", nick)
	}
}

// handleUser sets the username once and sends the welcome burst.
func (c *IRCClient) handleUser(rest string) {
	if c.session.User != "" {
		c.sendNumeric(errAlreadyRegistered, ":You may not reregister")
		return
	}
	user := firstToken(rest)
	if user == "" {
		c.sendNeedMoreParams("USER")
		return
	}

	c.mu.Lock()
	c.session.setUser(user)
	c.mu.Unlock()

	cfg := &c.connector.Config
	c.sendNumeric(rplWelcome, ":"+cfg.WelcomeMessage)
	c.sendNumeric(rplYourHost, ":"+strconv.Itoa(c.connector.Mesh.ContactCount())+" contacts")
	c.sendNumeric(rplEndOfMotd, ":End MOTD")

	c.log.Info().
		Str("nick", c.session.Nick).
		Str("user", user).
		Msg("IRC client registered")
}

// handleQuit acknowledges the quit; the connection is closed once queued
// replies are flushed.
func (c *IRCClient) handleQuit() {
	c.sendFrom(c.session.Prefix(), "QUIT", ":"+c.session.Nick)
	c.quit = true
}
