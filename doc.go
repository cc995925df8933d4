// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package voteroom is the client-side protocol engine for encrypted
// room voting on a ledger. It turns a sequence of unreliable,
// asynchronous, irreversible ledger operations into a coherent session
// for one wallet in one room.
//
// The pieces, leaf first:
//
//   - Client produces read-only and signer-bound contract handles.
//   - Directory answers read-only room queries.
//   - RoomService is the write-path orchestrator: create room, add
//     candidates, join, cast an encrypted ballot; every mutation is
//     submit, await confirmation, interpret receipt.
//   - PasswordValidator checks a room password against the on-ledger
//     digest without the plaintext ever leaving the process, and
//     caches validated outcomes per (room, wallet).
//   - RelayClient executes fee-sponsored joins through a sponsor
//     endpoint, authorized by a wallet signature.
//   - Session is the per-(room, wallet) view model: one guarded
//     initial load, a reconciliation poll, an independent countdown,
//     and optimistic flips reconciled against ledger truth.
//
// Every operation returns a structured *Error classified by Kind;
// validation failures are expected, non-fatal, and leave the session
// usable.
package voteroom
