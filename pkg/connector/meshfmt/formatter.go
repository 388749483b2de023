// Copyright 2024-2026 Aiku AI

// Package meshfmt converts mesh message text to text that is safe to put in
// the trailing parameter of an IRC line.
package meshfmt

import "strings"

var sanitizer = strings.NewReplacer("\r", "", "\n", " ", "\x00", "")

// Sanitize removes carriage returns and NUL bytes and replaces line feeds
// with spaces, so the result can never split or truncate an IRC line.
func Sanitize(text string) string {
	return sanitizer.Replace(text)
}

// ParsedMessage is a channel message split into its conventional parts.
type ParsedMessage struct {
	// Sender is the name the originating node prefixed the text with, if any.
	Sender string
	Body   string
}

// Parse splits a channel message of the form "name: text". Mesh channel
// frames carry no sender field, so nodes prepend their advertised name. Text
// without the separator is returned as the body with no sender.
func Parse(text string) ParsedMessage {
	sender, body, ok := strings.Cut(text, ": ")
	if !ok || sender == "" || strings.ContainsAny(sender, "\r\n") {
		return ParsedMessage{Body: text}
	}
	return ParsedMessage{Sender: sender, Body: body}
}
