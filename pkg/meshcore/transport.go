// Copyright 2024-2026 Aiku AI

package meshcore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.bug.st/serial"
)

// Transport carries whole frames between the host and a companion radio.
type Transport interface {
	// Start begins delivering received frames to recv. closed is called at
	// most once when the link fails or is closed.
	Start(recv func(frame []byte), closed func(err error)) error
	Send(frame []byte) error
	Close() error
}

// streamTransport frames payloads over a byte stream (serial or TCP).
type streamTransport struct {
	rwc io.ReadWriteCloser

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ Transport = (*streamTransport)(nil)

// NewStreamTransport wraps a byte stream using the serial framing.
func NewStreamTransport(rwc io.ReadWriteCloser) Transport {
	return &streamTransport{rwc: rwc}
}

// OpenSerial opens a companion radio on a serial port.
func OpenSerial(portName string, baudRate int) (Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return NewStreamTransport(port), nil
}

// DialTCP connects to a companion radio exposing its serial protocol over TCP.
func DialTCP(ctx context.Context, addr string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return NewStreamTransport(conn), nil
}

func (s *streamTransport) Start(recv func(frame []byte), closed func(err error)) error {
	go func() {
		br := bufio.NewReader(s.rwc)
		for {
			frame, err := ReadFrame(br)
			if errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrEmptyFrame) {
				continue
			}
			if err != nil {
				closed(err)
				return
			}
			recv(frame)
		}
	}()
	return nil
}

func (s *streamTransport) Send(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return WriteFrame(s.rwc, frame)
}

func (s *streamTransport) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.rwc.Close()
	})
	return s.closeErr
}
