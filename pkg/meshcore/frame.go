// Copyright 2024-2026 Aiku AI

package meshcore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// frameToRadio starts every frame written by the host on a stream link.
	frameToRadio byte = '<'
	// frameFromRadio starts every frame written by the radio on a stream link.
	frameFromRadio byte = '>'

	frameHeaderLen = 3

	// MaxFrameSize bounds a single frame payload.
	MaxFrameSize = 512
)

var (
	ErrFrameTooLarge = errors.New("meshcore: frame too large")
	ErrEmptyFrame    = errors.New("meshcore: empty frame")
	ErrBadFrame      = errors.New("meshcore: malformed frame")
)

// ReadFrame reads the next radio-to-host frame from a stream link. Bytes
// before the start marker are skipped, since radios print boot and debug
// text on the same serial line.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	return readFrame(r, frameFromRadio)
}

// WriteFrame writes one host-to-radio frame to a stream link.
func WriteFrame(w io.Writer, payload []byte) error {
	return writeFrame(w, frameToRadio, payload)
}

func readFrame(r *bufio.Reader, start byte) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != start {
			continue
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, err
		}
		size := int(binary.LittleEndian.Uint16(lenBuf[:]))
		if size == 0 {
			return nil, ErrEmptyFrame
		}
		if size > MaxFrameSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
}

func writeFrame(w io.Writer, start byte, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, frameHeaderLen+len(payload))
	buf[0] = start
	binary.LittleEndian.PutUint16(buf[1:frameHeaderLen], uint16(len(payload)))
	copy(buf[frameHeaderLen:], payload)
	_, err := w.Write(buf)
	return err
}
