// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package voteroom

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voteroom-foundation/voteroom/ledger"
)

func TestCreateRoomComputesEndTimeAndDigest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")

	err := h.service.CreateRoom(ctx, CreateRoomRequest{
		Code:            "GATED",
		Title:           "board vote",
		MaxParticipants: 10,
		Duration:        3 * time.Hour,
		Password:        passwordBuffer(t, "hunter2"),
	})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	record, err := h.chain.GetRoom(ctx, "GATED")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if record.EndTime != h.clock.Now().Add(3*time.Hour).Unix() {
		t.Errorf("end time = %d", record.EndTime)
	}
	if !record.HasPassword {
		t.Error("room not password gated")
	}
	// The ledger holds only the digest; it must match what the
	// contract would compute for the same plaintext.
	if record.PasswordHash != PasswordDigest("hunter2") {
		t.Error("stored digest does not match client-side digest")
	}
}

func TestCreateRoomValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")

	tests := []struct {
		name string
		req  CreateRoomRequest
	}{
		{"missing code", CreateRoomRequest{MaxParticipants: 2, Duration: time.Hour}},
		{"zero participants", CreateRoomRequest{Code: "X", Duration: time.Hour}},
		{"zero duration", CreateRoomRequest{Code: "X", MaxParticipants: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.service.CreateRoom(ctx, tt.req); !IsKind(err, KindValidation) {
				t.Fatalf("err = %v, want validation kind", err)
			}
		})
	}
}

func TestCreateRoomDuplicateCode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("TAKEN", 4))

	err := h.service.CreateRoom(ctx, CreateRoomRequest{
		Code: "TAKEN", MaxParticipants: 2, Duration: time.Hour,
	})
	if !IsKind(err, KindValidation) {
		t.Fatalf("err = %v, want validation kind", err)
	}
	if !ledger.IsRevert(err, ledger.CodeRoomExists) {
		t.Fatalf("err = %v, want ROOM_EXISTS underneath", err)
	}
}

func TestCreateRoomWithCandidatesAtomic(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")

	err := h.service.CreateRoomWithCandidates(ctx, CreateRoomRequest{
		Code: "LUNCH1", MaxParticipants: 8, Duration: time.Hour,
	}, []ledger.CandidateParams{{Name: "Ramen"}, {Name: "Tacos"}})
	if err != nil {
		t.Fatalf("CreateRoomWithCandidates: %v", err)
	}

	record, err := h.chain.GetRoom(ctx, "LUNCH1")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if record.CandidateCount != 2 {
		t.Errorf("candidate count = %d", record.CandidateCount)
	}
}

func TestCreateRoomWithCandidatesFallback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.chain.SetAtomicCreateSupported(false)

	err := h.service.CreateRoomWithCandidates(ctx, CreateRoomRequest{
		Code: "LUNCH2", MaxParticipants: 8, Duration: time.Hour,
	}, []ledger.CandidateParams{{Name: "Ramen"}})
	if err != nil {
		t.Fatalf("fallback create: %v", err)
	}

	record, err := h.chain.GetRoom(ctx, "LUNCH2")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if record.CandidateCount != 1 {
		t.Errorf("candidate count = %d", record.CandidateCount)
	}
}

func TestCreateRoomWithCandidatesFallbackGap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.chain.SetAtomicCreateSupported(false)

	// The create lands, then the candidate batch reverts: the room
	// exists without candidates and the error says so.
	h.chain.RevertSubmission(2)
	err := h.service.CreateRoomWithCandidates(ctx, CreateRoomRequest{
		Code: "GAPPY", MaxParticipants: 8, Duration: time.Hour,
	}, []ledger.CandidateParams{{Name: "Ramen"}})
	if !IsKind(err, KindTransaction) {
		t.Fatalf("err = %v, want transaction kind", err)
	}
	if !strings.Contains(err.Error(), "without candidates") {
		t.Errorf("error does not report the consistency gap: %v", err)
	}

	record, getErr := h.chain.GetRoom(ctx, "GAPPY")
	if getErr != nil {
		t.Fatalf("GetRoom: %v", getErr)
	}
	if record.CandidateCount != 0 {
		t.Errorf("candidate count = %d, want 0", record.CandidateCount)
	}
}

func TestJoinRoomSelfPaid(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 4))

	var flips []Presence
	presence, err := h.service.JoinRoom(ctx, "LUNCH1", nil, JoinSelfPaid, func(p Presence) {
		flips = append(flips, p)
	})
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if !presence.Value || presence.Pending {
		t.Errorf("presence = %+v", presence)
	}
	// Optimistic pending flip first, confirmation second.
	if len(flips) != 2 || !flips[0].Pending || !flips[0].Value || flips[1].Pending || !flips[1].Value {
		t.Errorf("flips = %+v", flips)
	}

	joined, err := h.chain.IsUserParticipant(ctx, "LUNCH1", "0xa11ce")
	if err != nil {
		t.Fatalf("IsUserParticipant: %v", err)
	}
	if !joined {
		t.Error("wallet not recorded as participant")
	}
}

func TestJoinRoomSecondAttemptIsValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 4))

	if _, err := h.service.JoinRoom(ctx, "LUNCH1", nil, JoinSelfPaid, nil); err != nil {
		t.Fatalf("first join: %v", err)
	}
	// The ledger rejects the duplicate; no second entry is recorded.
	_, err := h.service.JoinRoom(ctx, "LUNCH1", nil, JoinSelfPaid, nil)
	if !IsKind(err, KindValidation) {
		t.Fatalf("second join err = %v, want validation kind", err)
	}
	if !ledger.IsRevert(err, ledger.CodeAlreadyJoined) {
		t.Fatalf("err = %v, want ALREADY_JOINED underneath", err)
	}
	record, getErr := h.chain.GetRoom(ctx, "LUNCH1")
	if getErr != nil {
		t.Fatalf("GetRoom: %v", getErr)
	}
	if record.ParticipantCount != 1 {
		t.Errorf("participant count = %d, want 1", record.ParticipantCount)
	}
}

func TestJoinRoomWrongPassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.gatedRoom("GATED", 4, "hunter2"))

	var flips []Presence
	_, err := h.service.JoinRoom(ctx, "GATED", passwordBuffer(t, "wrong"), JoinSelfPaid, func(p Presence) {
		flips = append(flips, p)
	})
	if !IsKind(err, KindValidation) {
		t.Fatalf("err = %v, want validation kind", err)
	}
	// Rejected before submission: no optimistic flip, no transaction.
	if len(flips) != 0 {
		t.Errorf("flips = %+v", flips)
	}
	joined, _ := h.chain.IsUserParticipant(ctx, "GATED", "0xa11ce")
	if joined {
		t.Error("wrong password still joined")
	}
}

func TestJoinRoomAlreadyParticipantShortCircuits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.gatedRoom("GATED", 4, "hunter2"))
	if _, err := h.chain.Contract("0xa11ce").JoinRoom(ctx, "GATED", "hunter2"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	presence, err := h.service.JoinRoom(ctx, "GATED", passwordBuffer(t, "hunter2"), JoinSelfPaid, nil)
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if !presence.Value || presence.Pending {
		t.Errorf("presence = %+v", presence)
	}
}

func TestJoinRoomFullRoomScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xcc")
	h.createRoom(t, h.openRoom("R1", 2))

	if _, err := h.chain.Contract("0xaa").JoinRoom(ctx, "R1", ""); err != nil {
		t.Fatalf("wallet A join: %v", err)
	}
	if _, err := h.chain.Contract("0xbb").JoinRoom(ctx, "R1", ""); err != nil {
		t.Fatalf("wallet B join: %v", err)
	}

	var flips []Presence
	_, err := h.service.JoinRoom(ctx, "R1", nil, JoinSelfPaid, func(p Presence) {
		flips = append(flips, p)
	})
	if !IsKind(err, KindValidation) {
		t.Fatalf("wallet C join err = %v, want validation kind", err)
	}
	if !ledger.IsRevert(err, ledger.CodeRoomFull) {
		t.Fatalf("err = %v, want ROOM_FULL underneath", err)
	}
	// The optimistic flip was rolled back.
	if len(flips) != 2 || !flips[0].Pending || flips[1].Value || flips[1].Pending {
		t.Errorf("flips = %+v", flips)
	}

	record, err := h.chain.GetRoom(ctx, "R1")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if record.ParticipantCount != 2 {
		t.Errorf("participant count = %d, want 2", record.ParticipantCount)
	}
}

func TestJoinRoomRevertedReceiptRollsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("FLAKY", 4))

	h.chain.RevertNextWait()
	var flips []Presence
	presence, err := h.service.JoinRoom(ctx, "FLAKY", nil, JoinSelfPaid, func(p Presence) {
		flips = append(flips, p)
	})
	if !IsKind(err, KindTransaction) {
		t.Fatalf("err = %v, want transaction kind", err)
	}
	if presence.Value {
		t.Errorf("presence = %+v after reverted join", presence)
	}
	if len(flips) != 2 || flips[1].Value {
		t.Errorf("flips = %+v", flips)
	}
}

func TestCastVoteLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 4),
		ledger.CandidateParams{Name: "Ramen"},
		ledger.CandidateParams{Name: "Tacos"},
	)
	if _, err := h.service.JoinRoom(ctx, "LUNCH1", nil, JoinSelfPaid, nil); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	var phases []VotePhase
	err := h.service.CastVote(ctx, "LUNCH1", 1, func(p VotePhase) {
		phases = append(phases, p)
	})
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}

	want := []VotePhase{VoteEncrypting, VoteSubmitting, VoteConfirming, VoteVoted}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}

	// Exactly one encryption, bound to (contract, voter).
	invocations := h.encryptor.Invocations()
	if len(invocations) != 1 {
		t.Fatalf("encryptions = %d, want 1", len(invocations))
	}
	if invocations[0].Contract != h.chain.Contract("0xa11ce").Address() || invocations[0].Voter != "0xa11ce" {
		t.Errorf("encryption bound to %+v", invocations[0])
	}

	// The ballot value is the constant one-vote plaintext.
	if len(invocations[0].Values) != 1 || invocations[0].Values[0] != 1 {
		t.Errorf("values = %v", invocations[0].Values)
	}

	// The chosen candidate is recoverable locally, not from the ledger.
	id, ok, err := h.service.RememberedVote(ctx, "LUNCH1")
	if err != nil {
		t.Fatalf("RememberedVote: %v", err)
	}
	if !ok || id != 1 {
		t.Errorf("remembered = (%d, %v)", id, ok)
	}

	status, err := h.service.VotingStatus(ctx, "LUNCH1")
	if err != nil {
		t.Fatalf("VotingStatus: %v", err)
	}
	if !status.HasVoted || !status.IsParticipant {
		t.Errorf("status = %+v", status)
	}
}

func TestCastVoteDuplicateRejectedBeforeSubmission(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 4), ledger.CandidateParams{Name: "Ramen"})
	if _, err := h.service.JoinRoom(ctx, "LUNCH1", nil, JoinSelfPaid, nil); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if err := h.service.CastVote(ctx, "LUNCH1", 0, nil); err != nil {
		t.Fatalf("first CastVote: %v", err)
	}

	err := h.service.CastVote(ctx, "LUNCH1", 0, nil)
	if !IsKind(err, KindValidation) {
		t.Fatalf("second CastVote err = %v, want validation kind", err)
	}
	// Rejected client-side: no second encryption, no second ballot.
	if h.encryptor.EncryptCount() != 1 {
		t.Errorf("encryptions = %d, want 1", h.encryptor.EncryptCount())
	}
	total, err := h.chain.GetTotalVotes(ctx, "LUNCH1")
	if err != nil {
		t.Fatalf("GetTotalVotes: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}

func TestCastVoteWithoutJoining(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 4), ledger.CandidateParams{Name: "Ramen"})

	err := h.service.CastVote(ctx, "LUNCH1", 0, nil)
	if !IsKind(err, KindValidation) {
		t.Fatalf("err = %v, want validation kind", err)
	}
	if !ledger.IsRevert(err, ledger.CodeNotParticipant) {
		t.Fatalf("err = %v, want NOT_PARTICIPANT underneath", err)
	}
}

func TestCastVoteEncryptionFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 4), ledger.CandidateParams{Name: "Ramen"})
	if _, err := h.service.JoinRoom(ctx, "LUNCH1", nil, JoinSelfPaid, nil); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	h.encryptor.Err = errors.New("coprocessor offline")
	var phases []VotePhase
	err := h.service.CastVote(ctx, "LUNCH1", 0, func(p VotePhase) { phases = append(phases, p) })
	if !IsKind(err, KindUnexpected) {
		t.Fatalf("err = %v, want unexpected kind", err)
	}
	if len(phases) != 2 || phases[0] != VoteEncrypting || phases[1] != VoteFailed {
		t.Errorf("phases = %v", phases)
	}
	// Nothing was submitted.
	total, _ := h.chain.GetTotalVotes(ctx, "LUNCH1")
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
}

func TestCastVoteRevertedReceipt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 4), ledger.CandidateParams{Name: "Ramen"})
	if _, err := h.service.JoinRoom(ctx, "LUNCH1", nil, JoinSelfPaid, nil); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	h.chain.RevertNextWait()
	err := h.service.CastVote(ctx, "LUNCH1", 0, nil)
	if !IsKind(err, KindTransaction) {
		t.Fatalf("err = %v, want transaction kind", err)
	}
	// No memo is persisted for a failed ballot, so a retry is allowed.
	if _, ok, _ := h.service.RememberedVote(ctx, "LUNCH1"); ok {
		t.Error("failed ballot left a memo")
	}
	if err := h.service.CastVote(ctx, "LUNCH1", 0, nil); err != nil {
		t.Fatalf("retry after revert: %v", err)
	}
}

func TestSingleMutationInFlight(t *testing.T) {
	h := newHarness(t, "0xa11ce")

	release, err := h.service.beginMutation("test")
	if err != nil {
		t.Fatalf("beginMutation: %v", err)
	}
	defer release()

	joinErr := h.service.CreateRoom(context.Background(), CreateRoomRequest{
		Code: "X", MaxParticipants: 2, Duration: time.Hour,
	})
	if !IsKind(joinErr, KindValidation) {
		t.Fatalf("err = %v, want validation kind", joinErr)
	}
}

func TestTotalVotesFallback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 8))
	for _, wallet := range []ledger.Address{"0x01", "0x02", "0x03", "0x04"} {
		if _, err := h.chain.Contract(wallet).JoinRoom(ctx, "LUNCH1", ""); err != nil {
			t.Fatalf("join %s: %v", wallet, err)
		}
	}

	t.Run("DirectRead", func(t *testing.T) {
		total, estimated, err := h.service.TotalVotes(ctx, "LUNCH1")
		if err != nil {
			t.Fatalf("TotalVotes: %v", err)
		}
		if estimated || total != 0 {
			t.Errorf("total = %d estimated = %v", total, estimated)
		}
	})

	t.Run("EstimateOnFailure", func(t *testing.T) {
		h.chain.SetTotalVotesError(errors.New("rpc flake"))
		defer h.chain.SetTotalVotesError(nil)

		total, estimated, err := h.service.TotalVotes(ctx, "LUNCH1")
		if err != nil {
			t.Fatalf("TotalVotes: %v", err)
		}
		if !estimated {
			t.Error("fallback not flagged as estimate")
		}
		// Three quarters of 4 participants.
		if total != 3 {
			t.Errorf("estimate = %d, want 3", total)
		}
	})
}

func TestServiceWriteOpsRequireSigner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "")
	h.createRoom(t, h.openRoom("LUNCH1", 4))

	if err := h.service.CreateRoom(ctx, CreateRoomRequest{Code: "X", MaxParticipants: 2, Duration: time.Hour}); !IsKind(err, KindConnectivity) {
		t.Errorf("CreateRoom err = %v, want connectivity kind", err)
	}
	if _, err := h.service.JoinRoom(ctx, "LUNCH1", nil, JoinSelfPaid, nil); !IsKind(err, KindConnectivity) {
		t.Errorf("JoinRoom err = %v, want connectivity kind", err)
	}
	if err := h.service.CastVote(ctx, "LUNCH1", 0, nil); !IsKind(err, KindConnectivity) {
		t.Errorf("CastVote err = %v, want connectivity kind", err)
	}
}
