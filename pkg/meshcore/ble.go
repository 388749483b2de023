// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package meshcore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

var (
	ErrBLEUnavailable = errors.New("meshcore: BLE UART service not found")
	ErrBLELinkLost    = errors.New("meshcore: BLE link lost")
)

// bleTransport talks to a radio through the Nordic UART service. Each
// characteristic write or notification carries exactly one frame, so no
// stream framing is applied.
type bleTransport struct {
	address       string
	write         func(p []byte) (int, error)
	enableNotify  func(callback func(buf []byte)) error
	disconnect    func() error
	closeOnce     sync.Once
	closeErr      error
	closedHandler func(err error)
	mu            sync.Mutex
}

var _ Transport = (*bleTransport)(nil)

// ConnectBLE scans for the radio with the given address and connects to its
// UART service.
func ConnectBLE(ctx context.Context, address string) (Transport, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}

	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)
	go func() {
		scanErr <- adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !strings.EqualFold(result.Address.String(), address) {
				return
			}
			select {
			case found <- result:
			default:
			}
			_ = a.StopScan()
		})
	}()

	var result bluetooth.ScanResult
	select {
	case <-ctx.Done():
		_ = adapter.StopScan()
		return nil, fmt.Errorf("failed to find BLE device %s: %w", address, ctx.Err())
	case err := <-scanErr:
		if err == nil {
			err = ErrBLEUnavailable
		}
		return nil, fmt.Errorf("failed to scan for BLE device %s: %w", address, err)
	case result = <-found:
	}

	t := &bleTransport{address: result.Address.String()}
	// Some stacks only report a remote disconnect to this handler; a failed
	// write in Send covers the rest.
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		t.handleConnect(device.Address.String(), connected)
	})

	device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to BLE device %s: %w", address, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{bluetooth.ServiceUUIDNordicUART})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return nil, fmt.Errorf("failed to discover UART service: %w", errors.Join(ErrBLEUnavailable, err))
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		bluetooth.CharacteristicUUIDUARTRX,
		bluetooth.CharacteristicUUIDUARTTX,
	})
	if err != nil {
		_ = device.Disconnect()
		return nil, fmt.Errorf("failed to discover UART characteristics: %w", err)
	}

	t.mu.Lock()
	t.disconnect = device.Disconnect
	t.mu.Unlock()
	for _, char := range chars {
		switch char.UUID() {
		case bluetooth.CharacteristicUUIDUARTRX:
			t.write = char.WriteWithoutResponse
		case bluetooth.CharacteristicUUIDUARTTX:
			t.enableNotify = char.EnableNotifications
		}
	}
	if t.write == nil || t.enableNotify == nil {
		_ = device.Disconnect()
		return nil, ErrBLEUnavailable
	}
	return t, nil
}

func (t *bleTransport) Start(recv func(frame []byte), closed func(err error)) error {
	t.mu.Lock()
	t.closedHandler = closed
	t.mu.Unlock()
	return t.enableNotify(func(buf []byte) {
		if len(buf) == 0 {
			return
		}
		recv(bytes.Clone(buf))
	})
}

func (t *bleTransport) Send(frame []byte) error {
	if len(frame) == 0 {
		return ErrEmptyFrame
	}
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	if _, err := t.write(frame); err != nil {
		t.shutdown(fmt.Errorf("%w: %w", ErrBLELinkLost, err))
		return err
	}
	return nil
}

func (t *bleTransport) Close() error {
	t.shutdown(errors.New("meshcore: BLE link closed"))
	return t.closeErr
}

// handleConnect is called by the adapter for every device. The adapter may
// call it from inside Disconnect, so the shutdown runs on its own goroutine.
func (t *bleTransport) handleConnect(address string, connected bool) {
	if connected || !strings.EqualFold(address, t.address) {
		return
	}
	go t.shutdown(ErrBLELinkLost)
}

func (t *bleTransport) shutdown(cause error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		disconnect, closed := t.disconnect, t.closedHandler
		t.mu.Unlock()
		if disconnect != nil {
			t.closeErr = disconnect()
		}
		if closed != nil {
			closed(cause)
		}
	})
}
