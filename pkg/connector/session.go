// Copyright 2024-2026 Aiku AI

package connector

import "slices"

// Phase is the registration state of a session.
type Phase int

const (
	PhaseUnregistered Phase = iota
	PhaseNickSet
	PhaseRegistered
)

func (p Phase) String() string {
	switch p {
	case PhaseNickSet:
		return "nick_set"
	case PhaseRegistered:
		return "registered"
	default:
		return "unregistered"
	}
}

// Session is the protocol state of the connected IRC client. Commands are
// accepted in every phase.
type Session struct {
	Nick     string
	User     string
	Phase    Phase
	Channels map[string]struct{}
}

func newSession() Session {
	return Session{
		Nick:     defaultNick,
		Channels: make(map[string]struct{}),
	}
}

// Prefix returns the nick!user@mesh source of the session.
func (s *Session) Prefix() string {
	return MakePrefix(s.Nick, s.User)
}

// Joined reports whether the session is a member of channel.
func (s *Session) Joined(channel string) bool {
	_, ok := s.Channels[channel]
	return ok
}

// SortedChannels returns the joined channels in lexical order.
func (s *Session) SortedChannels() []string {
	chans := make([]string, 0, len(s.Channels))
	for ch := range s.Channels {
		chans = append(chans, ch)
	}
	slices.Sort(chans)
	return chans
}

func (s *Session) setNick(nick string) {
	s.Nick = nick
	s.updatePhase()
}

func (s *Session) setUser(user string) {
	s.User = user
	s.updatePhase()
}

func (s *Session) updatePhase() {
	switch {
	case s.Nick != defaultNick && s.User != "":
		s.Phase = PhaseRegistered
	case s.Nick != defaultNick:
		s.Phase = PhaseNickSet
	default:
		s.Phase = PhaseUnregistered
	}
}

// snapshot returns a copy that does not share the channel set.
func (s *Session) snapshot() SessionInfo {
	return SessionInfo{
		Nick:     s.Nick,
		User:     s.User,
		Phase:    s.Phase.String(),
		Channels: s.SortedChannels(),
	}
}

// SessionInfo is the JSON view of a session served by the admin API.
type SessionInfo struct {
	Nick     string   `json:"nick"`
	User     string   `json:"user,omitempty"`
	Phase    string   `json:"phase"`
	Channels []string `json:"channels"`
}
