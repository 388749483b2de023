// Copyright 2024-2026 Aiku AI

package connector

import "strings"

// Numeric replies (RFC 1459).
const (
	rplWelcome       = "001"
	rplYourHost      = "002"
	rplWhoisUser     = "311"
	rplWhoisServer   = "312"
	rplEndOfWho      = "315"
	rplEndOfWhois    = "318"
	rplWhoisChannels = "319"
	rplListStart     = "321"
	rplList          = "322"
	rplListEnd       = "323"
	rplChannelModeIs = "324"
	rplTopic         = "332"
	rplWhoReply      = "352"
	rplNamReply      = "353"
	rplEndOfNames    = "366"
	rplEndOfMotd     = "376"

	errNoSuchNick        = "401"
	errNoSuchChannel     = "403"
	errNoTextToSend      = "412"
	errNoNicknameGiven   = "431"
	errErroneusNickname  = "432"
	errNotOnChannel      = "442"
	errNeedMoreParams    = "461"
	errAlreadyRegistered = "462"
	errUsersDontMatch    = "502"
)

// sendNumeric sends ":mesh <code> <nick> <params>".
func (c *IRCClient) sendNumeric(code string, params ...string) {
	c.SendLine(":" + serverName + " " + code + " " + c.session.Nick + " " + strings.Join(params, " "))
}

// sendFrom sends a line with the given source prefix.
func (c *IRCClient) sendFrom(prefix string, params ...string) {
	c.SendLine(":" + prefix + " " + strings.Join(params, " "))
}

func (c *IRCClient) sendNotice(text string) {
	c.sendFrom(serverName, "NOTICE", c.session.Nick, ":"+text)
}

func (c *IRCClient) sendNeedMoreParams(verb string) {
	c.sendNumeric(errNeedMoreParams, verb, ":Not enough parameters")
}

func (c *IRCClient) sendNoSuchNick(target string) {
	c.sendNumeric(errNoSuchNick, target, ":No such nick/channel")
}

func (c *IRCClient) sendNoSuchChannel(channel string) {
	c.sendNumeric(errNoSuchChannel, channel, ":No such channel")
}

func (c *IRCClient) sendNotOnChannel(channel string) {
	c.sendNumeric(errNotOnChannel, channel, ":You're not on that channel")
}

// firstToken returns the first space separated word of s.
func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// splitTargets splits a comma separated target list, skipping empty names.
func splitTargets(s string) []string {
	var out []string
	for name := range strings.SplitSeq(s, ",") {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
