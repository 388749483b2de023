// Copyright 2024-2026 Aiku AI

package connector

import (
	"github.com/aiku/meshcore-irc/pkg/connector/ircfmt"
	"github.com/aiku/meshcore-irc/pkg/connector/meshfmt"
)

// ircfmtParse converts IRC message text to plain mesh text.
func ircfmtParse(text string) string {
	return ircfmt.Parse(text)
}

// meshfmtSanitize makes mesh text safe for the trailing parameter of an
// IRC line.
func meshfmtSanitize(text string) string {
	return meshfmt.Sanitize(text)
}
