// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package events decouples KeyStore from its downstream subscribers
// (storage-service manifest rebuild, key-sync messaging) with a pair of
// typed channels instead of direct method calls, avoiding a cyclic
// ownership between KeyStore and those services.
package events

// Sink is the publish side KeyStore holds. Subscribers read from the
// channels returned by ManifestNeedsRebuild and SendKeysSyncMessage;
// KeyStore never calls into a subscriber directly.
type Sink struct {
	manifestNeedsRebuild chan struct{}
	sendKeysSyncMessage  chan struct{}
}

// NewSink constructs a Sink with the given channel buffer depth. A small
// buffer (e.g. 1) lets KeyStore publish without blocking on a subscriber
// that hasn't drained the previous notification yet; a coalesced "rebuild
// needed" signal is all downstream code needs.
func NewSink(buffer int) *Sink {
	return &Sink{
		manifestNeedsRebuild: make(chan struct{}, buffer),
		sendKeysSyncMessage:  make(chan struct{}, buffer),
	}
}

// ManifestNeedsRebuild returns the receive side of the manifest-rebuild
// notification channel.
func (s *Sink) ManifestNeedsRebuild() <-chan struct{} { return s.manifestNeedsRebuild }

// SendKeysSyncMessage returns the receive side of the keys-sync
// notification channel.
func (s *Sink) SendKeysSyncMessage() <-chan struct{} { return s.sendKeysSyncMessage }

// PublishManifestNeedsRebuild emits a (possibly coalesced) manifest-rebuild
// notification. Non-blocking: if the channel is full, the pending
// notification already covers this one.
func (s *Sink) PublishManifestNeedsRebuild() {
	select {
	case s.manifestNeedsRebuild <- struct{}{}:
	default:
	}
}

// PublishSendKeysSyncMessage emits a (possibly coalesced) keys-sync
// notification.
func (s *Sink) PublishSendKeysSyncMessage() {
	select {
	case s.sendKeysSyncMessage <- struct{}{}:
	default:
	}
}
