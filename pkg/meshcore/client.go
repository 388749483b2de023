// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package meshcore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNotConnected    = errors.New("meshcore: not connected")
	ErrCommandFailed   = errors.New("meshcore: command failed")
	ErrNotAcknowledged = errors.New("meshcore: message not acknowledged")
	ErrNoMoreMessages  = errors.New("meshcore: no more messages")
)

const (
	defaultCommandTimeout = 5 * time.Second
	defaultAckTimeout     = 10 * time.Second
	earlyAckRetention     = time.Minute
	responseQueueSize     = 32
)

// SelfInfo describes the local radio, as reported by APP_START.
type SelfInfo struct {
	PublicKey   string
	Name        string
	TxPower     uint8
	MaxTxPower  uint8
	Latitude    float64
	Longitude   float64
	RadioFreqHz uint32
}

// SentInfo is the radio's answer to a direct message send.
type SentInfo struct {
	Flood            bool
	ExpectedAck      uint32
	SuggestedTimeout time.Duration
}

// MeshCore is a connected companion radio.
type MeshCore struct {
	transport Transport
	log       zerolog.Logger

	// CommandTimeout bounds one command round-trip.
	CommandTimeout time.Duration
	// MaxAttempts is the number of sends SendMessageWithRetry makes.
	MaxAttempts int
	// FloodAfter is the attempt index from which the route is reset to flood.
	FloodAfter int

	cmdMu     sync.Mutex
	responses chan []byte

	selfMu sync.RWMutex
	self   SelfInfo

	subMu     sync.RWMutex
	subs      map[EventType][]*Subscription
	nextSubID uint64

	contactMu      sync.RWMutex
	contacts       contactBook
	contactsLoaded bool

	ackMu     sync.Mutex
	ackWaits  map[uint32]chan struct{}
	earlyAcks map[uint32]time.Time

	fetchMu     sync.Mutex
	fetchCancel context.CancelFunc
	fetchDone   chan struct{}
	msgWaiting  chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a client on top of an unstarted transport.
func New(t Transport, log zerolog.Logger) *MeshCore {
	return &MeshCore{
		transport:      t,
		log:            log.With().Str("component", "meshcore").Logger(),
		CommandTimeout: defaultCommandTimeout,
		MaxAttempts:    3,
		FloodAfter:     2,
		responses:      make(chan []byte, responseQueueSize),
		subs:           make(map[EventType][]*Subscription),
		contacts:       make(contactBook),
		ackWaits:       make(map[uint32]chan struct{}),
		earlyAcks:      make(map[uint32]time.Time),
		msgWaiting:     make(chan struct{}, 1),
		closed:         make(chan struct{}),
	}
}

// Connect starts the transport and performs the APP_START handshake.
func (mc *MeshCore) Connect(ctx context.Context) error {
	if err := mc.transport.Start(mc.handleFrame, mc.handleTransportClosed); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}

	payload := make([]byte, 0, 8+len(defaultAppName))
	payload = append(payload, CmdAppStart, appStartProtocolLevel)
	payload = append(payload, "      "...)
	payload = append(payload, defaultAppName...)

	var info SelfInfo
	err := mc.roundTrip(ctx, payload, func(frame []byte) (bool, error) {
		switch frame[0] {
		case RespSelfInfo:
			info = parseSelfInfo(frame)
			return true, nil
		case RespErr:
			return true, commandError(frame)
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("failed to start companion session: %w", err)
	}

	mc.selfMu.Lock()
	mc.self = info
	mc.selfMu.Unlock()

	mc.log.Info().
		Str("name", info.Name).
		Str("public_key", info.PublicKey).
		Msg("Connected to MeshCore radio")
	return nil
}

// SelfInfo returns what the radio reported about itself on connect.
func (mc *MeshCore) SelfInfo() SelfInfo {
	mc.selfMu.RLock()
	defer mc.selfMu.RUnlock()
	return mc.self
}

// Subscribe registers handler for events of the given type.
func (mc *MeshCore) Subscribe(eventType EventType, handler Handler) *Subscription {
	mc.subMu.Lock()
	defer mc.subMu.Unlock()
	mc.nextSubID++
	sub := &Subscription{id: mc.nextSubID, eventType: eventType, handler: handler}
	mc.subs[eventType] = append(mc.subs[eventType], sub)
	return sub
}

// Unsubscribe removes a subscription. It is a no-op for unknown subscriptions.
func (mc *MeshCore) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	mc.subMu.Lock()
	defer mc.subMu.Unlock()
	list := mc.subs[sub.eventType]
	for i, s := range list {
		if s.id == sub.id {
			mc.subs[sub.eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (mc *MeshCore) emit(evt Event) {
	mc.subMu.RLock()
	handlers := make([]Handler, 0, len(mc.subs[evt.Type]))
	for _, sub := range mc.subs[evt.Type] {
		handlers = append(handlers, sub.handler)
	}
	mc.subMu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}

// EnsureContacts loads the contact directory unless it was already loaded.
func (mc *MeshCore) EnsureContacts(ctx context.Context) error {
	mc.contactMu.RLock()
	loaded := mc.contactsLoaded
	mc.contactMu.RUnlock()
	if loaded {
		return nil
	}
	_, err := mc.GetContacts(ctx)
	return err
}

// GetContacts reloads the contact directory from the radio.
func (mc *MeshCore) GetContacts(ctx context.Context) ([]*Contact, error) {
	book := make(contactBook)
	err := mc.roundTrip(ctx, []byte{CmdGetContacts}, func(frame []byte) (bool, error) {
		switch frame[0] {
		case RespContactsStart:
			return false, nil
		case RespContact:
			c, err := parseContact(frame)
			if err != nil {
				mc.log.Debug().Err(err).Msg("Skipping malformed contact record")
				return false, nil
			}
			book[c.PublicKeyHex()] = c
			return false, nil
		case RespEndOfContacts:
			return true, nil
		case RespErr:
			return true, commandError(frame)
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}

	mc.contactMu.Lock()
	mc.contacts = book
	mc.contactsLoaded = true
	mc.contactMu.Unlock()

	mc.log.Info().Int("count", len(book)).Msg("Loaded contacts")
	return mc.Contacts(), nil
}

// Contacts returns the known contacts ordered by public key.
func (mc *MeshCore) Contacts() []*Contact {
	mc.contactMu.RLock()
	defer mc.contactMu.RUnlock()
	out := make([]*Contact, 0, len(mc.contacts))
	for _, c := range mc.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PublicKeyHex() < out[j].PublicKeyHex()
	})
	return out
}

// ContactCount returns the number of known contacts.
func (mc *MeshCore) ContactCount() int {
	mc.contactMu.RLock()
	defer mc.contactMu.RUnlock()
	return len(mc.contacts)
}

// GetContactByKeyPrefix finds a contact by a hex prefix of its public key.
func (mc *MeshCore) GetContactByKeyPrefix(prefix string) (*Contact, bool) {
	mc.contactMu.RLock()
	defer mc.contactMu.RUnlock()
	return mc.contacts.byKeyPrefix(prefix)
}

// SendChannelMessage broadcasts text on the channel with the given index.
func (mc *MeshCore) SendChannelMessage(ctx context.Context, channelIndex uint8, text string) error {
	payload := make([]byte, 7, 7+len(text))
	payload[0] = CmdSendChannelTxtMsg
	payload[1] = byte(TextTypePlain)
	payload[2] = channelIndex
	putUnixTime(payload[3:7], time.Now())
	payload = append(payload, text...)

	err := mc.roundTrip(ctx, payload, expectOK)
	if err != nil {
		return fmt.Errorf("failed to send channel message: %w", err)
	}
	return nil
}

// SendMessage sends one direct message attempt to a contact.
func (mc *MeshCore) SendMessage(ctx context.Context, contact *Contact, text string, attempt uint8) (SentInfo, error) {
	payload := make([]byte, 7+pubKeyPrefixSize, 7+pubKeyPrefixSize+len(text))
	payload[0] = CmdSendTxtMsg
	payload[1] = byte(TextTypePlain)
	payload[2] = attempt
	putUnixTime(payload[3:7], time.Now())
	copy(payload[7:], contact.KeyPrefix())
	payload = append(payload, text...)

	var sent SentInfo
	err := mc.roundTrip(ctx, payload, func(frame []byte) (bool, error) {
		switch frame[0] {
		case RespSent:
			if len(frame) < 10 {
				return true, fmt.Errorf("%w: short sent response", ErrBadFrame)
			}
			sent = SentInfo{
				Flood:            frame[1] != 0,
				ExpectedAck:      binary.LittleEndian.Uint32(frame[2:6]),
				SuggestedTimeout: time.Duration(binary.LittleEndian.Uint32(frame[6:10])) * time.Millisecond,
			}
			return true, nil
		case RespErr:
			return true, commandError(frame)
		}
		return false, nil
	})
	if err != nil {
		return SentInfo{}, fmt.Errorf("failed to send message: %w", err)
	}
	return sent, nil
}

// SendMessageWithRetry sends a direct message and waits for its delivery
// acknowledgement, retrying up to MaxAttempts times. From attempt FloodAfter
// onward the stored route is reset so the message floods the mesh.
func (mc *MeshCore) SendMessageWithRetry(ctx context.Context, contact *Contact, text string) error {
	attempts := max(mc.MaxAttempts, 1)
	for attempt := range attempts {
		if attempt > 0 && attempt == mc.FloodAfter && contact.OutPathLen >= 0 {
			if err := mc.ResetPath(ctx, contact); err != nil {
				mc.log.Warn().Err(err).Str("contact", contact.Name).Msg("Failed to reset path before flood retry")
			}
		}

		sent, err := mc.SendMessage(ctx, contact, text, uint8(attempt))
		if err != nil {
			return err
		}

		timeout := sent.SuggestedTimeout * 5 / 4
		if timeout <= 0 {
			timeout = defaultAckTimeout
		}
		if mc.waitAck(ctx, sent.ExpectedAck, timeout) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		mc.log.Debug().
			Str("contact", contact.Name).
			Int("attempt", attempt+1).
			Dur("timeout", timeout).
			Msg("No acknowledgement, retrying")
	}
	return ErrNotAcknowledged
}

// ResetPath forgets the stored route to a contact.
func (mc *MeshCore) ResetPath(ctx context.Context, contact *Contact) error {
	payload := make([]byte, 0, 1+publicKeySize)
	payload = append(payload, CmdResetPath)
	payload = append(payload, contact.PublicKey[:]...)
	if err := mc.roundTrip(ctx, payload, expectOK); err != nil {
		return fmt.Errorf("failed to reset path: %w", err)
	}
	return nil
}

// SyncNextMessage pops one message from the radio's queue. It returns
// ErrNoMoreMessages when the queue is empty.
func (mc *MeshCore) SyncNextMessage(ctx context.Context) (*Event, error) {
	var (
		evt      *Event
		parseErr error
	)
	err := mc.roundTrip(ctx, []byte{CmdSyncNextMessage}, func(frame []byte) (bool, error) {
		switch frame[0] {
		case RespChannelMsgRecv, RespChannelMsgRecvV3:
			msg, err := parseChannelMessage(frame)
			if err != nil {
				parseErr = err
				return true, nil
			}
			evt = &Event{Type: EventChannelMessage, Payload: msg}
			return true, nil
		case RespContactMsgRecv, RespContactMsgRecvV3:
			msg, err := parseContactMessage(frame)
			if err != nil {
				parseErr = err
				return true, nil
			}
			evt = &Event{Type: EventContactMessage, Payload: msg}
			return true, nil
		case RespNoMoreMessages:
			return true, ErrNoMoreMessages
		case RespErr:
			return true, commandError(frame)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return evt, nil
}

// StartAutoMessageFetching drains the radio's message queue now and whenever
// the radio announces waiting messages, emitting an event per message.
func (mc *MeshCore) StartAutoMessageFetching(ctx context.Context) error {
	mc.fetchMu.Lock()
	defer mc.fetchMu.Unlock()
	if mc.fetchCancel != nil {
		return nil
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	mc.fetchCancel = cancel
	mc.fetchDone = make(chan struct{})
	go mc.fetchLoop(fetchCtx, mc.fetchDone)
	mc.log.Debug().Msg("Started auto message fetching")
	return nil
}

// StopAutoMessageFetching stops the loop started by StartAutoMessageFetching
// and waits for it to exit.
func (mc *MeshCore) StopAutoMessageFetching() {
	mc.fetchMu.Lock()
	cancel, done := mc.fetchCancel, mc.fetchDone
	mc.fetchCancel, mc.fetchDone = nil, nil
	mc.fetchMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	mc.log.Debug().Msg("Stopped auto message fetching")
}

func (mc *MeshCore) fetchLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	mc.fetchAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-mc.closed:
			return
		case <-mc.msgWaiting:
			mc.fetchAll(ctx)
		}
	}
}

func (mc *MeshCore) fetchAll(ctx context.Context) {
	for ctx.Err() == nil {
		evt, err := mc.SyncNextMessage(ctx)
		switch {
		case errors.Is(err, ErrNoMoreMessages):
			return
		case errors.Is(err, ErrBadFrame):
			mc.log.Debug().Err(err).Msg("Dropping malformed message")
			continue
		case err != nil:
			if ctx.Err() == nil {
				mc.log.Warn().Err(err).Msg("Failed to fetch message")
			}
			return
		}
		if evt != nil {
			mc.emit(*evt)
		}
	}
}

// Stop ends message fetching and releases waiters. The transport stays open
// until Disconnect.
func (mc *MeshCore) Stop() {
	mc.StopAutoMessageFetching()
	mc.closeOnce.Do(func() {
		close(mc.closed)
	})
}

// Disconnect closes the transport.
func (mc *MeshCore) Disconnect() error {
	mc.Stop()
	if err := mc.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// Done is closed once the client is stopped or the link is lost.
func (mc *MeshCore) Done() <-chan struct{} {
	return mc.closed
}

func (mc *MeshCore) handleTransportClosed(err error) {
	select {
	case <-mc.closed:
	default:
		mc.log.Error().Err(err).Msg("Radio link closed")
	}
	mc.closeOnce.Do(func() {
		close(mc.closed)
	})
}

func (mc *MeshCore) handleFrame(frame []byte) {
	if len(frame) == 0 {
		return
	}
	if frame[0] >= firstPushCode {
		mc.handlePush(frame)
		return
	}
	select {
	case mc.responses <- frame:
	default:
		mc.log.Warn().Uint8("code", frame[0]).Msg("Response queue full, dropping frame")
	}
}

func (mc *MeshCore) handlePush(frame []byte) {
	switch frame[0] {
	case PushMsgWaiting:
		select {
		case mc.msgWaiting <- struct{}{}:
		default:
		}
		mc.emit(Event{Type: EventMessagesWaiting})
	case PushSendConfirmed:
		ack, err := parseSendConfirmed(frame)
		if err != nil {
			mc.log.Debug().Err(err).Msg("Dropping malformed push")
			return
		}
		mc.resolveAck(ack.Code)
		mc.emit(Event{Type: EventAck, Payload: ack})
	case PushAdvert:
		key, err := parsePublicKeyPush(frame)
		if err != nil {
			mc.log.Debug().Err(err).Msg("Dropping malformed push")
			return
		}
		mc.emit(Event{Type: EventAdvertisement, Payload: &Advertisement{PublicKey: key}})
	case PushPathUpdated:
		key, err := parsePublicKeyPush(frame)
		if err != nil {
			mc.log.Debug().Err(err).Msg("Dropping malformed push")
			return
		}
		mc.emit(Event{Type: EventPathUpdated, Payload: &PathUpdate{PublicKey: key}})
	default:
		mc.log.Trace().Uint8("code", frame[0]).Msg("Unhandled push")
	}
}

func (mc *MeshCore) resolveAck(code uint32) {
	mc.ackMu.Lock()
	defer mc.ackMu.Unlock()
	if ch, ok := mc.ackWaits[code]; ok {
		close(ch)
		delete(mc.ackWaits, code)
		return
	}
	now := time.Now()
	for c, at := range mc.earlyAcks {
		if now.Sub(at) > earlyAckRetention {
			delete(mc.earlyAcks, c)
		}
	}
	mc.earlyAcks[code] = now
}

// waitAck reports whether the acknowledgement arrived before the timeout.
func (mc *MeshCore) waitAck(ctx context.Context, code uint32, timeout time.Duration) bool {
	mc.ackMu.Lock()
	if _, ok := mc.earlyAcks[code]; ok {
		delete(mc.earlyAcks, code)
		mc.ackMu.Unlock()
		return true
	}
	ch := make(chan struct{})
	mc.ackWaits[code] = ch
	mc.ackMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
	case <-ctx.Done():
	case <-mc.closed:
	}

	mc.ackMu.Lock()
	defer mc.ackMu.Unlock()
	if waiter, ok := mc.ackWaits[code]; ok && waiter == ch {
		delete(mc.ackWaits, code)
		return false
	}
	// Resolved between the timeout and re-acquiring the lock.
	return true
}

// roundTrip sends one command and feeds response frames to accept until it
// reports done. Only one command is in flight at a time.
func (mc *MeshCore) roundTrip(ctx context.Context, payload []byte, accept func(frame []byte) (bool, error)) error {
	mc.cmdMu.Lock()
	defer mc.cmdMu.Unlock()

	select {
	case <-mc.closed:
		return ErrNotConnected
	default:
	}

	// Discard responses left over from a command that timed out.
	for drained := false; !drained; {
		select {
		case <-mc.responses:
		default:
			drained = true
		}
	}

	if err := mc.transport.Send(payload); err != nil {
		return fmt.Errorf("failed to write command %d: %w", payload[0], err)
	}

	timeout := mc.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-mc.closed:
			return ErrNotConnected
		case frame := <-mc.responses:
			done, err := accept(frame)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

func expectOK(frame []byte) (bool, error) {
	switch frame[0] {
	case RespOK:
		return true, nil
	case RespErr:
		return true, commandError(frame)
	}
	return false, nil
}

func commandError(frame []byte) error {
	if len(frame) > 1 {
		return fmt.Errorf("%w: error code %d", ErrCommandFailed, frame[1])
	}
	return ErrCommandFailed
}

func parseSelfInfo(frame []byte) SelfInfo {
	var info SelfInfo
	if len(frame) < 4+publicKeySize {
		return info
	}
	info.TxPower = frame[2]
	info.MaxTxPower = frame[3]
	info.PublicKey = hex.EncodeToString(frame[4 : 4+publicKeySize])
	if len(frame) >= 44 {
		info.Latitude = float64(int32(binary.LittleEndian.Uint32(frame[36:40]))) / 1e6
		info.Longitude = float64(int32(binary.LittleEndian.Uint32(frame[40:44]))) / 1e6
	}
	if len(frame) >= 52 {
		info.RadioFreqHz = binary.LittleEndian.Uint32(frame[48:52])
	}
	if len(frame) > selfInfoNameOffset {
		info.Name = cString(frame[selfInfoNameOffset:])
	}
	return info
}
