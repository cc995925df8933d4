// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package fhetest provides encryption collaborator fakes for tests.
package fhetest

import (
	"context"
	"sync"

	"github.com/voteroom-foundation/voteroom/fhe"
	"github.com/voteroom-foundation/voteroom/ledger"
)

// Invocation records one completed encryption.
type Invocation struct {
	Contract ledger.Address
	Voter    ledger.Address
	Values   []uint32
}

// Recorder is an Encryptor that records every completed encryption and
// returns deterministic ciphertexts. Set Err to make Encrypt fail
// without recording.
type Recorder struct {
	mu          sync.Mutex
	invocations []Invocation

	// Err, when non-nil, is returned from every Encrypt call.
	Err error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// EncryptedInput implements fhe.Encryptor.
func (r *Recorder) EncryptedInput(contract, voter ledger.Address) fhe.Input {
	return &recorderInput{recorder: r, contract: contract, voter: voter}
}

// Invocations returns a copy of all completed encryptions in order.
func (r *Recorder) Invocations() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Invocation, len(r.invocations))
	copy(out, r.invocations)
	return out
}

// EncryptCount returns the number of completed encryptions.
func (r *Recorder) EncryptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.invocations)
}

type recorderInput struct {
	recorder *Recorder
	contract ledger.Address
	voter    ledger.Address
	values   []uint32
	consumed bool
}

func (in *recorderInput) Add(value uint32) {
	in.values = append(in.values, value)
}

func (in *recorderInput) Encrypt(ctx context.Context) (fhe.Ciphertext, error) {
	if in.consumed {
		return fhe.Ciphertext{}, fhe.ErrInputConsumed
	}
	in.consumed = true
	if err := ctx.Err(); err != nil {
		return fhe.Ciphertext{}, err
	}

	in.recorder.mu.Lock()
	err := in.recorder.Err
	if err == nil {
		values := make([]uint32, len(in.values))
		copy(values, in.values)
		in.recorder.invocations = append(in.recorder.invocations, Invocation{
			Contract: in.contract,
			Voter:    in.voter,
			Values:   values,
		})
	}
	in.recorder.mu.Unlock()
	if err != nil {
		return fhe.Ciphertext{}, err
	}

	return fhe.Ciphertext{
		Handle: []byte("handle:" + string(in.voter)),
		Proof:  []byte("proof:" + string(in.contract)),
	}, nil
}
