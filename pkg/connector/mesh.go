// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"

	"github.com/aiku/meshcore-irc/pkg/meshcore"
)

// MeshAPI is the part of the mesh radio client the bridge uses. Tests inject
// a fake instead of a connected radio.
type MeshAPI interface {
	EnsureContacts(ctx context.Context) error
	Subscribe(eventType meshcore.EventType, handler meshcore.Handler) *meshcore.Subscription
	StartAutoMessageFetching(ctx context.Context) error
	StopAutoMessageFetching()
	SendChannelMessage(ctx context.Context, channelIndex uint8, text string) error
	SendMessageWithRetry(ctx context.Context, contact *meshcore.Contact, text string) error
	GetContactByKeyPrefix(prefix string) (*meshcore.Contact, bool)
	ContactCount() int
}

var _ MeshAPI = (*meshcore.MeshCore)(nil)
