// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package fhe

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/zeebo/blake3"

	"github.com/voteroom-foundation/voteroom/ledger"
)

// proofKeyContext domain-separates the BLAKE3 key used for proof tags.
const proofKeyContext = "voteroom.fhe.sealed proof key v1"

// ErrInputConsumed is returned when Encrypt is called twice on the
// same input.
var ErrInputConsumed = fmt.Errorf("fhe: encrypted input already consumed")

// SealedEncryptor is a development and test Encryptor. It seals ballot
// values to an age X25519 recipient and binds each ciphertext to its
// (contract, voter) pair with a keyed BLAKE3 tag, which stands in for
// the coprocessor's input proof on mock chains. The ledgertest
// contract accepts any non-empty proof; VerifyProof exists so tests
// can check the binding end to end.
type SealedEncryptor struct {
	identity *age.X25519Identity
	proofKey [32]byte
}

// NewSealedEncryptor generates a fresh sealing identity.
func NewSealedEncryptor() (*SealedEncryptor, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("fhe: generating sealing identity: %w", err)
	}
	encryptor := &SealedEncryptor{identity: identity}
	blake3.DeriveKey(proofKeyContext, []byte(identity.Recipient().String()), encryptor.proofKey[:])
	return encryptor, nil
}

// Recipient returns the age recipient ballots are sealed to.
func (e *SealedEncryptor) Recipient() age.Recipient {
	return e.identity.Recipient()
}

// EncryptedInput implements Encryptor.
func (e *SealedEncryptor) EncryptedInput(contract, voter ledger.Address) Input {
	return &sealedInput{encryptor: e, contract: contract, voter: voter}
}

// VerifyProof reports whether the ciphertext's proof binds it to the
// given (contract, voter) pair.
func (e *SealedEncryptor) VerifyProof(contract, voter ledger.Address, ct Ciphertext) bool {
	return bytes.Equal(ct.Proof, e.proofTag(contract, voter, ct.Handle))
}

// Open decrypts a sealed handle back to its plaintext values. Only the
// holder of the sealing identity can do this; in production that role
// belongs to the FHE coprocessor.
func (e *SealedEncryptor) Open(ct Ciphertext) ([]uint32, error) {
	reader, err := age.Decrypt(bytes.NewReader(ct.Handle), e.identity)
	if err != nil {
		return nil, fmt.Errorf("fhe: opening sealed handle: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("fhe: reading sealed handle: %w", err)
	}
	if len(plaintext)%4 != 0 {
		return nil, fmt.Errorf("fhe: sealed payload length %d not a multiple of 4", len(plaintext))
	}
	values := make([]uint32, 0, len(plaintext)/4)
	for i := 0; i < len(plaintext); i += 4 {
		values = append(values, binary.BigEndian.Uint32(plaintext[i:]))
	}
	return values, nil
}

func (e *SealedEncryptor) proofTag(contract, voter ledger.Address, handle []byte) []byte {
	hasher, err := blake3.NewKeyed(e.proofKey[:])
	if err != nil {
		// The key is always 32 bytes; NewKeyed only rejects other sizes.
		panic(fmt.Sprintf("fhe: keyed hasher: %v", err))
	}
	hasher.Write([]byte(contract))
	hasher.Write([]byte{0})
	hasher.Write([]byte(voter))
	hasher.Write([]byte{0})
	hasher.Write(handle)
	return hasher.Sum(nil)
}

type sealedInput struct {
	encryptor *SealedEncryptor
	contract  ledger.Address
	voter     ledger.Address
	values    []uint32
	consumed  bool
}

func (in *sealedInput) Add(value uint32) {
	in.values = append(in.values, value)
}

func (in *sealedInput) Encrypt(ctx context.Context) (Ciphertext, error) {
	if in.consumed {
		return Ciphertext{}, ErrInputConsumed
	}
	in.consumed = true
	if err := ctx.Err(); err != nil {
		return Ciphertext{}, err
	}
	if len(in.values) == 0 {
		return Ciphertext{}, fmt.Errorf("fhe: encrypting empty input")
	}

	plaintext := make([]byte, 0, 4*len(in.values))
	for _, value := range in.values {
		plaintext = binary.BigEndian.AppendUint32(plaintext, value)
	}

	var sealed bytes.Buffer
	writer, err := age.Encrypt(&sealed, in.encryptor.Recipient())
	if err != nil {
		return Ciphertext{}, fmt.Errorf("fhe: sealing input: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return Ciphertext{}, fmt.Errorf("fhe: sealing input: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Ciphertext{}, fmt.Errorf("fhe: sealing input: %w", err)
	}

	handle := sealed.Bytes()
	return Ciphertext{
		Handle: handle,
		Proof:  in.encryptor.proofTag(in.contract, in.voter, handle),
	}, nil
}
