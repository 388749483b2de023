// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aiku/meshcore-irc/pkg/connector/meshfmt"
	"github.com/aiku/meshcore-irc/pkg/meshcore"
)

// ErrUnexpectedPayload is reported for mesh events whose payload does not
// match their type.
var ErrUnexpectedPayload = errors.New("unexpected mesh event payload")

func errUnexpectedPayload(evt meshcore.Event) error {
	return fmt.Errorf("%w: %T for %s", ErrUnexpectedPayload, evt.Payload, evt.Type)
}

// translateEvents delivers queued mesh events to the active client, one at
// a time in arrival order.
func (mc *MeshConnector) translateEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-mc.events:
			mc.handleMeshEvent(evt)
		}
	}
}

// handleMeshEvent translates one mesh event and sends it to the active
// client. Events that cannot be delivered are dropped.
func (mc *MeshConnector) handleMeshEvent(evt meshcore.Event) {
	client := mc.ActiveClient()
	if client == nil {
		mc.dropEvent(evt, "no_client")
		return
	}

	var (
		line string
		err  error
	)
	switch evt.Type {
	case meshcore.EventChannelMessage:
		line, err = mc.parseChannelMessage(evt)
	case meshcore.EventContactMessage:
		line, err = mc.parseContactMessage(evt, client.Nick())
	default:
		mc.Log.Trace().Stringer("event_type", evt.Type).Msg("Unhandled mesh event type")
		return
	}
	if err != nil {
		mc.Log.Debug().Err(err).Stringer("event_type", evt.Type).Msg("Dropping malformed mesh event")
		mc.dropEvent(evt, "malformed")
		return
	}
	if line == "" {
		mc.dropEvent(evt, "filtered")
		return
	}

	client.SendLine(line)
	mc.Metrics.MeshEventsTotal.WithLabelValues(evt.Type.String(), "delivered").Inc()
}

func (mc *MeshConnector) dropEvent(evt meshcore.Event, reason string) {
	mc.Metrics.MeshEventsTotal.WithLabelValues(evt.Type.String(), reason).Inc()
	mc.Log.Debug().
		Stringer("event_type", evt.Type).
		Str("reason", reason).
		Msg("Dropping mesh event")
}

// parseChannelMessage builds the IRC line for a public channel message.
// Returns ("", nil) to skip silently, ("", err) for bad payloads.
func (mc *MeshConnector) parseChannelMessage(evt meshcore.Event) (string, error) {
	msg, ok := evt.Payload.(*meshcore.ChannelMessage)
	if !ok || msg == nil {
		return "", errUnexpectedPayload(evt)
	}
	if msg.ChannelIndex != PublicChannelIndex || msg.TextType != meshcore.TextTypePlain {
		return "", nil
	}
	text := meshfmtSanitize(msg.Text)
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	parsed := meshfmt.Parse(msg.Text)
	mc.Log.Debug().
		Str("sender", parsed.Sender).
		Uint8("path_len", msg.PathLen).
		Float64("snr", msg.SNR).
		Msg("Mesh channel message")

	return ":" + meshChannelSource + " PRIVMSG " + PublicChannel + " :" + text, nil
}

// parseContactMessage builds the IRC line for a direct message addressed to
// nick. Returns ("", nil) to skip silently, ("", err) for bad payloads.
func (mc *MeshConnector) parseContactMessage(evt meshcore.Event, nick string) (string, error) {
	msg, ok := evt.Payload.(*meshcore.ContactMessage)
	if !ok || msg == nil {
		return "", errUnexpectedPayload(evt)
	}
	if msg.TextType != meshcore.TextTypePlain {
		return "", nil
	}
	if msg.PubKeyPrefix == "" {
		return "", nil
	}
	text := meshfmtSanitize(strings.TrimSpace(msg.Text))
	if text == "" {
		return "", nil
	}

	sender := mc.directNick(msg.PubKeyPrefix)
	return ":" + MakePrefix(sender, sender) + " PRIVMSG " + nick + " :" + text, nil
}

// directNick renders the nick of a direct message sender.
func (mc *MeshConnector) directNick(keyPrefix string) string {
	params := DirectNickParams{KeyPrefix: MakeDirectNick(keyPrefix)}
	if contact, ok := mc.Mesh.GetContactByKeyPrefix(keyPrefix); ok {
		params.Name = contact.Name
	}
	return mc.Config.FormatDirectNick(params)
}
