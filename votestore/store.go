// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package votestore provides the client-local keyed store backing
// remembered votes and other per-(room, wallet) records. Two
// implementations: Memory for tests and ephemeral sessions, SQLite for
// durable storage.
//
// The store is a cache over ledger truth, never a source of it. Keys
// are BLAKE3-derived from (namespace, room, wallet) so store files do
// not leak raw wallet addresses or room codes; values are opaque bytes
// (callers encode with lib/codec).
package votestore

import (
	"context"
	"errors"

	"github.com/zeebo/blake3"

	"github.com/voteroom-foundation/voteroom/ledger"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("votestore: key not found")

// keyContext domain-separates the key derivation from other BLAKE3
// uses in the module.
const keyContext = "voteroom.votestore key v1"

// Key is an opaque derived store key.
type Key [32]byte

// DeriveKey derives the store key for a (namespace, room, wallet)
// triple. The same triple always derives the same key.
func DeriveKey(namespace, roomCode string, wallet ledger.Address) Key {
	material := make([]byte, 0, len(namespace)+len(roomCode)+len(wallet)+2)
	material = append(material, namespace...)
	material = append(material, 0)
	material = append(material, roomCode...)
	material = append(material, 0)
	material = append(material, wallet...)

	var key Key
	blake3.DeriveKey(keyContext, material, key[:])
	return key
}

// Store is the keyed store surface. Implementations are safe for
// concurrent use.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Put stores value under key, replacing any existing value.
	Put(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// DeleteAll removes every record. Used for bulk invalidation on
	// wallet switch.
	DeleteAll(ctx context.Context) error
}
