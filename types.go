// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package voteroom

import (
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/voteroom-foundation/voteroom/ledger"
)

// Room is the client-side view of a room record. EndTime is absolute;
// activity is always recomputed locally via Active rather than trusting
// the contract's read-time IsActive, which goes stale immediately.
type Room struct {
	Code             string
	Title            string
	Description      string
	Creator          ledger.Address
	MaxParticipants  uint32
	ParticipantCount uint32
	EndTime          time.Time
	HasPassword      bool
	CandidateCount   uint32
}

// Active reports whether voting is open at the given instant.
func (r Room) Active(now time.Time) bool {
	return now.Before(r.EndTime)
}

func roomFromRecord(record *ledger.RoomRecord) Room {
	return Room{
		Code:             record.Code,
		Title:            record.Title,
		Description:      record.Description,
		Creator:          record.Creator,
		MaxParticipants:  record.MaxParticipants,
		ParticipantCount: record.ParticipantCount,
		EndTime:          time.Unix(record.EndTime, 0),
		HasPassword:      record.HasPassword,
		CandidateCount:   record.CandidateCount,
	}
}

// Candidate is one voting option. ID is the stable index assigned by
// the contract at registration.
type Candidate struct {
	ID          uint32
	Name        string
	Description string
	ImageRef    string
}

// Presence is a boolean ledger fact with optimistic-update status.
// Pending means the value reflects a submitted-but-unconfirmed
// transaction; a successful poll always overwrites a pending value
// (last-read-wins).
type Presence struct {
	Value   bool
	Pending bool
}

// Confirmed wraps a value read from the ledger.
func Confirmed(value bool) Presence { return Presence{Value: value} }

// Optimistic wraps a locally flipped value awaiting confirmation.
func Optimistic(value bool) Presence { return Presence{Value: value, Pending: true} }

// JoinStrategy selects how a join transaction reaches the ledger.
type JoinStrategy int

const (
	// JoinSelfPaid submits the join from the user's own wallet.
	JoinSelfPaid JoinStrategy = iota
	// JoinSponsored delegates submission to the fee-sponsoring relay,
	// authorized by a wallet signature.
	JoinSponsored
)

func (s JoinStrategy) String() string {
	switch s {
	case JoinSelfPaid:
		return "self-paid"
	case JoinSponsored:
		return "sponsored"
	default:
		return "unknown"
	}
}

// VotePhase is the ballot submission state machine. Once Submitting is
// reached the ballot cannot be withdrawn.
type VotePhase int

const (
	VoteIdle VotePhase = iota
	VoteEncrypting
	VoteSubmitting
	VoteConfirming
	VoteVoted
	VoteFailed
)

func (p VotePhase) String() string {
	switch p {
	case VoteIdle:
		return "idle"
	case VoteEncrypting:
		return "encrypting"
	case VoteSubmitting:
		return "submitting"
	case VoteConfirming:
		return "confirming"
	case VoteVoted:
		return "voted"
	case VoteFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// VoteProgress receives phase transitions during CastVote. May be nil.
type VoteProgress func(VotePhase)

// JoinProgress receives optimistic participant flips during JoinRoom.
// May be nil.
type JoinProgress func(Presence)

// PasswordDigest computes the digest the contract stores for a room
// password: Keccak-256 over the UTF-8 bytes. Digesting happens
// client-side so the plaintext never leaves the process.
func PasswordDigest(password string) ledger.Digest {
	var digest ledger.Digest
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(password))
	hash.Sum(digest[:0])
	return digest
}
