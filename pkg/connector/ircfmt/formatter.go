// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ircfmt converts IRC message text to plain mesh text.
package ircfmt

import (
	"regexp"
	"strings"
)

const ctcpDelim = "\x01"

var (
	colorRe    = regexp.MustCompile(`\x03(\d{1,2}(,\d{1,2})?)?`)
	hexColorRe = regexp.MustCompile(`\x04([0-9A-Fa-f]{6}(,[0-9A-Fa-f]{6})?)?`)
	// bold, italic, underline, strikethrough, monospace, reverse, reset
	controlRe = regexp.MustCompile("[\x02\x1d\x1f\x1e\x11\x16\x0f]")
	spaceRe   = regexp.MustCompile(`\s+`)
)

// Parse strips IRC formatting codes from text. A CTCP ACTION is rendered as
// "* text"; any other CTCP request yields an empty string.
func Parse(text string) string {
	if text == "" {
		return ""
	}

	if strings.HasPrefix(text, ctcpDelim) {
		body := strings.TrimSuffix(strings.TrimPrefix(text, ctcpDelim), ctcpDelim)
		command, arg, _ := strings.Cut(body, " ")
		if !strings.EqualFold(command, "ACTION") {
			return ""
		}
		arg = StripFormatting(arg)
		if arg == "" {
			return ""
		}
		return "* " + arg
	}

	return StripFormatting(text)
}

// StripFormatting removes color and style control codes and collapses runs
// of whitespace left behind.
func StripFormatting(text string) string {
	text = colorRe.ReplaceAllString(text, "")
	text = hexColorRe.ReplaceAllString(text, "")
	text = controlRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, ctcpDelim, "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}
