// Copyright 2024-2026 Aiku AI

package meshcore

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// contactFrame builds a RESP_CODE_CONTACT record for a key starting with
// the given bytes.
func contactFrame(keyStart []byte, name string, pathLen int8) []byte {
	frame := make([]byte, contactRecordSize)
	frame[0] = RespContact
	copy(frame[1:33], keyStart)
	frame[33] = byte(ContactTypeChat)
	frame[35] = byte(pathLen)
	for i := 0; i < int(pathLen); i++ {
		frame[36+i] = byte(i + 1)
	}
	copy(frame[100:132], name)
	binary.LittleEndian.PutUint32(frame[132:136], 1700000000)
	lat, lon := int32(52520000), int32(-13405000)
	binary.LittleEndian.PutUint32(frame[136:140], uint32(lat))
	binary.LittleEndian.PutUint32(frame[140:144], uint32(lon))
	return frame
}

func TestParseContact(t *testing.T) {
	t.Parallel()
	c, err := parseContact(contactFrame([]byte{0xab, 0xcd, 0xef, 0x01, 0x23, 0x45}, "alice", 2))
	if err != nil {
		t.Fatalf("parseContact: %v", err)
	}
	if c.Name != "alice" {
		t.Errorf("Name: got %q, want %q", c.Name, "alice")
	}
	if got := c.PublicKeyHex()[:12]; got != "abcdef012345" {
		t.Errorf("PublicKeyHex prefix: got %q, want %q", got, "abcdef012345")
	}
	if len(c.KeyPrefix()) != pubKeyPrefixSize {
		t.Errorf("KeyPrefix length: got %d, want %d", len(c.KeyPrefix()), pubKeyPrefixSize)
	}
	if c.Type != ContactTypeChat || c.Type.String() != "chat" {
		t.Errorf("Type: got %v", c.Type)
	}
	if c.OutPathLen != 2 || len(c.OutPath) != 2 {
		t.Errorf("OutPath: got len %d path %v", c.OutPathLen, c.OutPath)
	}
	if !c.LastAdvert.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("LastAdvert: got %v", c.LastAdvert)
	}
	if c.Latitude != 52.52 || c.Longitude != -13.405 {
		t.Errorf("position: got %v,%v", c.Latitude, c.Longitude)
	}
	if !c.LastMod.IsZero() {
		t.Errorf("LastMod: got %v, want zero", c.LastMod)
	}
}

func TestParseContactFlood(t *testing.T) {
	t.Parallel()
	c, err := parseContact(contactFrame([]byte{1}, "bob", -1))
	if err != nil {
		t.Fatalf("parseContact: %v", err)
	}
	if c.OutPathLen != -1 || c.OutPath != nil {
		t.Errorf("flood contact: got len %d path %v", c.OutPathLen, c.OutPath)
	}
}

func TestParseContactShort(t *testing.T) {
	t.Parallel()
	frame := contactFrame([]byte{1}, "x", 0)[:contactRecordSize-1]
	if _, err := parseContact(frame); !errors.Is(err, ErrBadFrame) {
		t.Errorf("short record: got %v, want ErrBadFrame", err)
	}
}

func TestContactBookByKeyPrefix(t *testing.T) {
	t.Parallel()
	book := make(contactBook)
	for _, f := range [][]byte{
		contactFrame([]byte{0xab, 0xcd, 0x02}, "second", 0),
		contactFrame([]byte{0xab, 0xcd, 0x01}, "first", 0),
		contactFrame([]byte{0x12, 0x34}, "other", 0),
	} {
		c, err := parseContact(f)
		if err != nil {
			t.Fatalf("parseContact: %v", err)
		}
		book[c.PublicKeyHex()] = c
	}

	tests := []struct {
		prefix string
		want   string
		ok     bool
	}{
		{"abcd", "first", true},
		{"ABCD02", "second", true},
		{"1234", "other", true},
		{"ffff", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tt := range tests {
		c, ok := book.byKeyPrefix(tt.prefix)
		if ok != tt.ok {
			t.Errorf("byKeyPrefix(%q): got ok=%v, want %v", tt.prefix, ok, tt.ok)
			continue
		}
		if ok && c.Name != tt.want {
			t.Errorf("byKeyPrefix(%q): got %q, want %q", tt.prefix, c.Name, tt.want)
		}
	}
}
