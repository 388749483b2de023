// Copyright 2024-2026 Aiku AI

package connector

// ChannelInfo describes a channel as shown by LIST and JOIN.
type ChannelInfo struct {
	Name  string
	Title string
	Topic string
	Modes string
}

// channelInfo returns the description of a bridged channel, or false for
// channels the bridge does not know.
func (mc *MeshConnector) channelInfo(name string) (ChannelInfo, bool) {
	if name != PublicChannel {
		return ChannelInfo{}, false
	}
	return ChannelInfo{
		Name:  PublicChannel,
		Title: "Public",
		Topic: mc.Config.ChannelTopic,
		Modes: "+nt",
	}, true
}

// sendJoinReplies echoes the JOIN and sends topic and names. The session is
// the only member the bridge ever knows about.
func (c *IRCClient) sendJoinReplies(ch ChannelInfo) {
	c.sendFrom(c.session.Prefix(), "JOIN", ch.Name)
	c.sendNumeric(rplTopic, ch.Name, ":"+ch.Topic)
	c.sendNumeric(rplNamReply, "=", ch.Name, ":"+c.session.Nick)
	c.sendNumeric(rplEndOfNames, ch.Name, ":End of /NAMES list")
}

// sendListBlock sends a complete LIST reply for one channel. Member counts
// are not known on the mesh and reported as 0.
func (c *IRCClient) sendListBlock(ch ChannelInfo) {
	c.sendNumeric(rplListStart, "Channel", ":Users Name")
	c.sendNumeric(rplList, ch.Name, "0", ":"+ch.Title)
	c.sendNumeric(rplListEnd, ":End of LIST")
}

func (c *IRCClient) sendWhoReply(channel string) {
	nick := c.session.Nick
	c.sendNumeric(rplWhoReply, channel, c.displayUser(), serverName, serverName, nick, "H", ":0", nick)
}

// displayUser is the username shown in replies; "*" until USER is sent.
func (c *IRCClient) displayUser() string {
	if c.session.User == "" {
		return defaultNick
	}
	return c.session.User
}
