// Copyright 2024-2026 Aiku AI

package meshcore

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// EventType identifies the kind of an [Event].
type EventType int

const (
	EventChannelMessage EventType = iota + 1
	EventContactMessage
	EventAdvertisement
	EventPathUpdated
	EventMessagesWaiting
	EventAck
)

func (t EventType) String() string {
	switch t {
	case EventChannelMessage:
		return "channel_message"
	case EventContactMessage:
		return "contact_message"
	case EventAdvertisement:
		return "advertisement"
	case EventPathUpdated:
		return "path_updated"
	case EventMessagesWaiting:
		return "messages_waiting"
	case EventAck:
		return "ack"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Event is a notification delivered to subscribers. Payload holds one of the
// pointer types below, matching Type.
type Event struct {
	Type    EventType
	Payload any
}

// ChannelMessage is a text message received on a group channel. The radio
// does not report the sender; by convention the text starts with "name: ".
type ChannelMessage struct {
	ChannelIndex    uint8
	PathLen         uint8
	TextType        TextType
	SenderTimestamp time.Time
	SNR             float64
	Text            string
}

// ContactMessage is a direct text message from a contact.
type ContactMessage struct {
	// PubKeyPrefix is the hex encoded six byte prefix of the sender's key.
	PubKeyPrefix    string
	PathLen         uint8
	TextType        TextType
	SenderTimestamp time.Time
	SNR             float64
	Signature       string
	Text            string
}

// Advertisement announces that a node (re)advertised itself.
type Advertisement struct {
	PublicKey string
}

// PathUpdate announces that the route to a contact changed.
type PathUpdate struct {
	PublicKey string
}

// Ack confirms delivery of a direct message.
type Ack struct {
	Code      uint32
	RoundTrip time.Duration
}

// Handler receives events. Handlers run on the goroutine that produced the
// event and must not issue radio commands synchronously.
type Handler func(evt Event)

// Subscription is returned by [MeshCore.Subscribe].
type Subscription struct {
	id        uint64
	eventType EventType
	handler   Handler
}

// parseChannelMessage decodes RESP_CODE_CHANNEL_MSG_RECV and its v3 variant.
func parseChannelMessage(frame []byte) (*ChannelMessage, error) {
	var snr float64
	body := frame[1:]
	switch frame[0] {
	case RespChannelMsgRecv:
	case RespChannelMsgRecvV3:
		if len(body) < 3 {
			return nil, fmt.Errorf("%w: short v3 channel message", ErrBadFrame)
		}
		snr = float64(int8(body[0])) / 4
		body = body[3:]
	default:
		return nil, fmt.Errorf("%w: unexpected code %d", ErrBadFrame, frame[0])
	}
	if len(body) < 7 {
		return nil, fmt.Errorf("%w: short channel message", ErrBadFrame)
	}
	return &ChannelMessage{
		ChannelIndex:    body[0],
		PathLen:         body[1],
		TextType:        TextType(body[2]),
		SenderTimestamp: unixTime(body[3:7]),
		SNR:             snr,
		Text:            decodeText(body[7:]),
	}, nil
}

// parseContactMessage decodes RESP_CODE_CONTACT_MSG_RECV and its v3 variant.
func parseContactMessage(frame []byte) (*ContactMessage, error) {
	var snr float64
	body := frame[1:]
	switch frame[0] {
	case RespContactMsgRecv:
	case RespContactMsgRecvV3:
		if len(body) < 3 {
			return nil, fmt.Errorf("%w: short v3 contact message", ErrBadFrame)
		}
		snr = float64(int8(body[0])) / 4
		body = body[3:]
	default:
		return nil, fmt.Errorf("%w: unexpected code %d", ErrBadFrame, frame[0])
	}
	if len(body) < pubKeyPrefixSize+6 {
		return nil, fmt.Errorf("%w: short contact message", ErrBadFrame)
	}
	msg := &ContactMessage{
		PubKeyPrefix:    hex.EncodeToString(body[:pubKeyPrefixSize]),
		PathLen:         body[6],
		TextType:        TextType(body[7]),
		SenderTimestamp: unixTime(body[8:12]),
		SNR:             snr,
	}
	text := body[12:]
	if msg.TextType == TextTypeSignedPlain {
		if len(text) < 4 {
			return nil, fmt.Errorf("%w: short signed message", ErrBadFrame)
		}
		msg.Signature = hex.EncodeToString(text[:4])
		text = text[4:]
	}
	msg.Text = decodeText(text)
	return msg, nil
}

func parseSendConfirmed(frame []byte) (*Ack, error) {
	if len(frame) < 5 {
		return nil, fmt.Errorf("%w: short send confirmation", ErrBadFrame)
	}
	ack := &Ack{Code: binary.LittleEndian.Uint32(frame[1:5])}
	if len(frame) >= 9 {
		ack.RoundTrip = time.Duration(binary.LittleEndian.Uint32(frame[5:9])) * time.Millisecond
	}
	return ack, nil
}

func parsePublicKeyPush(frame []byte) (string, error) {
	if len(frame) < 1+publicKeySize {
		return "", fmt.Errorf("%w: short push %#x", ErrBadFrame, frame[0])
	}
	return hex.EncodeToString(frame[1 : 1+publicKeySize]), nil
}

// decodeText trims trailing NUL padding and drops invalid UTF-8.
func decodeText(b []byte) string {
	return strings.ToValidUTF8(strings.TrimRight(string(b), "\x00"), "")
}
