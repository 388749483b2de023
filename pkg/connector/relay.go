// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"strings"
)

// handlePrivmsg routes a message to the public mesh channel, back to the
// client itself, or to a mesh contact addressed by key prefix.
func (c *IRCClient) handlePrivmsg(ctx context.Context, rest string) {
	target, text, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
	text = strings.TrimPrefix(strings.TrimLeft(text, " "), ":")
	if text == "" {
		c.sendNumeric(errNoTextToSend, ":No text to send")
		return
	}

	nick := c.session.Nick
	switch {
	case isChannelName(target):
		if target != PublicChannel {
			c.sendNoSuchNick(target)
			return
		}
		meshText, ok := c.meshText(text)
		if !ok {
			return
		}
		err := c.connector.Mesh.SendChannelMessage(ctx, PublicChannelIndex, meshText)
		c.connector.Metrics.MeshSendsTotal.WithLabelValues("channel", resultLabel(err)).Inc()
		if err != nil {
			c.log.Warn().Err(err).Str("target", target).Msg("Failed to send channel message to mesh")
			c.sendNotice("Failed to send message to " + target)
		}

	case target == nick:
		c.sendFrom(c.session.Prefix(), "PRIVMSG", nick, ":"+text)

	default:
		contact, ok := c.connector.Mesh.GetContactByKeyPrefix(target)
		if !ok {
			c.sendNoSuchNick(target)
			return
		}
		meshText, ok := c.meshText(text)
		if !ok {
			return
		}
		err := c.connector.Mesh.SendMessageWithRetry(ctx, contact, meshText)
		c.connector.Metrics.MeshSendsTotal.WithLabelValues("direct", resultLabel(err)).Inc()
		if err != nil {
			c.log.Warn().Err(err).
				Str("target", target).
				Str("contact", contact.Name).
				Msg("Failed to send direct message to mesh")
			c.sendNotice("Failed to send message to " + target)
		}
	}
}

// meshText strips IRC formatting; text with nothing left gets 412.
func (c *IRCClient) meshText(text string) (string, bool) {
	meshText := ircfmtParse(text)
	if meshText == "" {
		c.sendNumeric(errNoTextToSend, ":No text to send")
		return "", false
	}
	return meshText, true
}
