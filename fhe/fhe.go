// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package fhe defines the encryption collaborator that turns plaintext
// ballot values into ciphertext handles accepted by the voting
// contract. The collaborator is opaque: callers never see key material
// or proof internals, only the (handle, proof) pair to submit.
//
// Ciphertexts are bound to the (contract, voter) pair at input
// construction. A ciphertext encrypted for one pair is rejected by the
// contract when submitted under another, so callers must build a fresh
// input per attempt and never cache the result across wallets.
package fhe

import (
	"context"

	"github.com/voteroom-foundation/voteroom/ledger"
)

// Ciphertext is an encrypted ballot ready for submission. Handle
// references the ciphertext inside the encryption system; Proof lets
// the contract verify the handle was produced for it.
type Ciphertext struct {
	Handle []byte
	Proof  []byte
}

// Input is an encrypted-input builder bound to one (contract, voter)
// pair. Values are appended in order and sealed together by Encrypt.
// An Input is single-use: Encrypt must be called at most once.
type Input interface {
	// Add appends a 32-bit plaintext value to the input.
	Add(value uint32)

	// Encrypt seals the accumulated values and returns the ciphertext
	// for the first one. Encryption typically round-trips to an
	// external coprocessor, so it honors ctx.
	Encrypt(ctx context.Context) (Ciphertext, error)
}

// Encryptor constructs encrypted inputs. Implementations wrap the FHE
// relayer SDK in production and test doubles elsewhere.
type Encryptor interface {
	// EncryptedInput starts a new input bound to the contract and
	// voter addresses.
	EncryptedInput(contract, voter ledger.Address) Input
}
