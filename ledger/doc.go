// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger defines the interface to the on-chain voting
// contract. The contract itself is external: this package carries the
// record types, the read-only [Reader] and signer-bound [Contract]
// surfaces, the [PendingTx] submit-then-wait transaction shape, and
// the structured [RevertError] taxonomy shared by every adapter.
//
// The ledger is append-only and externally authoritative. Nothing in
// this module ever mutates local state without either a confirmed
// receipt or an explicit "optimistic, pending reconciliation" marker
// owned by the session layer.
//
// The ledgertest subpackage provides an in-memory contract that
// enforces the same invariants as the deployed one (one join and one
// vote per wallet per room, the participant cap, the end time) for
// tests and local development.
package ledger
