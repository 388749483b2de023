// Copyright 2024-2026 Aiku AI

package meshcore

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Contact is one entry of the radio's contact directory.
type Contact struct {
	PublicKey  [publicKeySize]byte
	Type       ContactType
	Flags      uint8
	OutPathLen int8 // -1 means flood routing
	OutPath    []byte
	Name       string
	LastAdvert time.Time
	Latitude   float64
	Longitude  float64
	LastMod    time.Time
}

// PublicKeyHex returns the lower-case hex encoding of the public key.
func (c *Contact) PublicKeyHex() string {
	return hex.EncodeToString(c.PublicKey[:])
}

// KeyPrefix returns the six byte public key prefix used to address messages.
func (c *Contact) KeyPrefix() []byte {
	return c.PublicKey[:pubKeyPrefixSize]
}

// parseContact decodes a RESP_CODE_CONTACT frame.
func parseContact(frame []byte) (*Contact, error) {
	if len(frame) < contactRecordSize || frame[0] != RespContact {
		return nil, fmt.Errorf("%w: contact record of %d bytes", ErrBadFrame, len(frame))
	}
	c := &Contact{}
	copy(c.PublicKey[:], frame[1:33])
	c.Type = ContactType(frame[33])
	c.Flags = frame[34]
	c.OutPathLen = int8(frame[35])
	if c.OutPathLen > 0 {
		n := min(int(c.OutPathLen), contactOutPathSize)
		c.OutPath = bytes.Clone(frame[36 : 36+n])
	}
	c.Name = cString(frame[100 : 100+contactNameSize])
	c.LastAdvert = unixTime(frame[132:136])
	c.Latitude = float64(int32(binary.LittleEndian.Uint32(frame[136:140]))) / 1e6
	c.Longitude = float64(int32(binary.LittleEndian.Uint32(frame[140:144]))) / 1e6
	c.LastMod = unixTime(frame[144:148])
	return c, nil
}

// contactBook indexes contacts by their hex public key.
type contactBook map[string]*Contact

// byKeyPrefix returns the contact whose hex public key starts with prefix.
// When several contacts share the prefix the lowest key wins so lookups are
// stable across reloads.
func (b contactBook) byKeyPrefix(prefix string) (*Contact, bool) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, false
	}
	keys := make([]string, 0, len(b))
	for key := range b {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	return b[keys[0]], true
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.ToValidUTF8(string(b), "")
}

func unixTime(b []byte) time.Time {
	secs := binary.LittleEndian.Uint32(b)
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0)
}

func putUnixTime(b []byte, t time.Time) {
	binary.LittleEndian.PutUint32(b, uint32(t.Unix()))
}
