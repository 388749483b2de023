// Copyright 2024-2026 Aiku AI

package meshcore

// Command codes sent by the host.
const (
	CmdAppStart          byte = 1
	CmdSendTxtMsg        byte = 2
	CmdSendChannelTxtMsg byte = 3
	CmdGetContacts       byte = 4
	CmdGetDeviceTime     byte = 5
	CmdSetDeviceTime     byte = 6
	CmdSendSelfAdvert    byte = 7
	CmdSyncNextMessage   byte = 10
	CmdResetPath         byte = 13
)

// Response codes returned by the radio for a command.
const (
	RespOK               byte = 0
	RespErr              byte = 1
	RespContactsStart    byte = 2
	RespContact          byte = 3
	RespEndOfContacts    byte = 4
	RespSelfInfo         byte = 5
	RespSent             byte = 6
	RespContactMsgRecv   byte = 7
	RespChannelMsgRecv   byte = 8
	RespCurrTime         byte = 9
	RespNoMoreMessages   byte = 10
	RespContactMsgRecvV3 byte = 16
	RespChannelMsgRecvV3 byte = 17
)

// Push codes sent by the radio without a preceding command.
const (
	PushAdvert        byte = 0x80
	PushPathUpdated   byte = 0x81
	PushSendConfirmed byte = 0x82
	PushMsgWaiting    byte = 0x83
)

const (
	firstPushCode         byte = 0x80
	appStartProtocolLevel byte = 3

	publicKeySize      = 32
	pubKeyPrefixSize   = 6
	contactRecordSize  = 148
	contactNameSize    = 32
	contactOutPathSize = 64
	selfInfoNameOffset = 58
	defaultAppName     = "meshcore-irc"
)

// TextType is the text_type field of a text message.
type TextType uint8

const (
	TextTypePlain       TextType = 0
	TextTypeCLIData     TextType = 1
	TextTypeSignedPlain TextType = 2
)

// ContactType is the advertised node type of a contact.
type ContactType uint8

const (
	ContactTypeNone     ContactType = 0
	ContactTypeChat     ContactType = 1
	ContactTypeRepeater ContactType = 2
	ContactTypeRoom     ContactType = 3
	ContactTypeSensor   ContactType = 4
)

func (t ContactType) String() string {
	switch t {
	case ContactTypeChat:
		return "chat"
	case ContactTypeRepeater:
		return "repeater"
	case ContactTypeRoom:
		return "room"
	case ContactTypeSensor:
		return "sensor"
	default:
		return "none"
	}
}
