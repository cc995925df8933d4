// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
)

// Address is a wallet or contract address in 0x-prefixed hex form.
// The ledger is the authority on address validity; this package only
// carries the value.
type Address string

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == "" }

func (a Address) String() string { return string(a) }

// Digest is a 32-byte one-way digest as stored by the contract
// (Keccak-256 of the room password). The zero value marks "no
// password".
type Digest [32]byte

// ZeroDigest is the digest stored for rooms without a password.
var ZeroDigest Digest

// IsZero reports whether the digest is the no-password marker.
func (d Digest) IsZero() bool { return d == ZeroDigest }

func (d Digest) String() string { return "0x" + hex.EncodeToString(d[:]) }

// RoomRecord is the room as read from the contract. EndTime is a unix
// timestamp; IsActive is the contract's view at read time and goes
// stale immediately; clients recompute activity locally from EndTime.
type RoomRecord struct {
	Code             string
	Title            string
	Description      string
	Creator          Address
	MaxParticipants  uint32
	ParticipantCount uint32
	EndTime          int64
	HasPassword      bool
	PasswordHash     Digest
	IsActive         bool
	CandidateCount   uint32
}

// CandidateRecord is one voting option within a room. ID is the
// stable index assigned at registration.
type CandidateRecord struct {
	ID          uint32
	Name        string
	Description string
	ImageRef    string
}

// ParticipantStatus is the contract's answer for one (room, wallet)
// pair.
type ParticipantStatus struct {
	IsParticipant bool
	HasVoted      bool
}

// ReceiptStatus is the outcome recorded in a transaction receipt.
type ReceiptStatus int

const (
	// StatusReverted means the transaction was mined but its effects
	// were rolled back.
	StatusReverted ReceiptStatus = 0
	// StatusSuccess means the transaction was mined and applied.
	StatusSuccess ReceiptStatus = 1
)

// Receipt is the confirmation record for a mined transaction.
type Receipt struct {
	TxHash      string
	Status      ReceiptStatus
	BlockNumber uint64
}

// PendingTx is a submitted, not yet confirmed transaction. Once a
// transaction reaches this stage it cannot be retracted; Wait only
// observes the outcome.
type PendingTx interface {
	// Hash returns the transaction hash assigned at submission.
	Hash() string

	// Wait blocks until one confirmation and returns the receipt.
	// Cancelling ctx abandons the wait, not the transaction.
	Wait(ctx context.Context) (*Receipt, error)
}

// CreateRoomParams are the arguments to CreateRoom. EndTime is an
// absolute unix timestamp computed by the caller; PasswordHash must be
// ZeroDigest when HasPassword is false.
type CreateRoomParams struct {
	Code            string
	Title           string
	Description     string
	MaxParticipants uint32
	EndTime         int64
	HasPassword     bool
	PasswordHash    Digest
}

// CandidateParams are the arguments to candidate registration.
type CandidateParams struct {
	Name        string
	Description string
	ImageRef    string
}

// Reader is the read-only contract surface. All methods work without
// a connected wallet.
type Reader interface {
	// GetRoom fetches the room record for a code.
	GetRoom(ctx context.Context, code string) (*RoomRecord, error)

	// GetCandidate fetches one candidate by its index within the room.
	GetCandidate(ctx context.Context, code string, index uint32) (*CandidateRecord, error)

	// HasUserVoted reports whether the wallet has voted in the room.
	HasUserVoted(ctx context.Context, code string, wallet Address) (bool, error)

	// IsUserParticipant reports whether the wallet has joined the room.
	IsUserParticipant(ctx context.Context, code string, wallet Address) (bool, error)

	// GetTotalVotes returns the aggregate number of ballots accepted
	// for the room. The per-candidate split stays encrypted.
	GetTotalVotes(ctx context.Context, code string) (uint64, error)

	// ActiveRooms enumerates rooms whose end time has not passed.
	ActiveRooms(ctx context.Context) ([]RoomRecord, error)

	// RoomsPaginated returns a window over all rooms in creation order.
	RoomsPaginated(ctx context.Context, offset, limit uint32) ([]RoomRecord, error)
}

// Contract is the full contract surface bound to a signing wallet.
// Every mutation submits a transaction and returns a PendingTx; the
// contract enforces one join and one vote per wallet per room, the
// participant cap, and the room end time. Submission-time reverts are
// returned as *RevertError.
type Contract interface {
	Reader

	// Address returns the deployed contract address. Ballot
	// encryption is bound to this address.
	Address() Address

	// Wallet returns the signing wallet address.
	Wallet() Address

	// CreateRoom registers a new room.
	CreateRoom(ctx context.Context, params CreateRoomParams) (PendingTx, error)

	// CreateRoomWithCandidates registers a room and its candidates in
	// a single transaction. Contracts without the batched entry point
	// return ErrNotSupported; callers fall back to CreateRoom followed
	// by AddCandidatesBatch, accepting the consistency gap between the
	// two transactions.
	CreateRoomWithCandidates(ctx context.Context, params CreateRoomParams, candidates []CandidateParams) (PendingTx, error)

	// AddCandidate registers one candidate. Not idempotent:
	// re-submission duplicates the candidate.
	AddCandidate(ctx context.Context, code string, candidate CandidateParams) (PendingTx, error)

	// AddCandidatesBatch registers several candidates in one
	// transaction. Not idempotent.
	AddCandidatesBatch(ctx context.Context, code string, candidates []CandidateParams) (PendingTx, error)

	// JoinRoom admits the wallet to the room. passwordOrProof is the
	// password material the contract checks against the stored digest;
	// empty for open rooms.
	JoinRoom(ctx context.Context, code string, passwordOrProof string) (PendingTx, error)

	// Vote submits an encrypted ballot for a candidate. handle and
	// proof come from the encryption collaborator and are opaque here.
	Vote(ctx context.Context, code string, candidateID uint32, handle, proof []byte) (PendingTx, error)
}

// ErrNotSupported marks a contract entry point the deployed contract
// does not implement.
var ErrNotSupported = fmt.Errorf("ledger: entry point not supported by deployed contract")
