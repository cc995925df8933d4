// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package voteroom

import (
	"context"
	"testing"
	"time"

	"github.com/voteroom-foundation/voteroom/fhe/fhetest"
	"github.com/voteroom-foundation/voteroom/ledger"
	"github.com/voteroom-foundation/voteroom/ledger/ledgertest"
	"github.com/voteroom-foundation/voteroom/lib/clock"
	"github.com/voteroom-foundation/voteroom/votestore"
)

// testStart anchors fake clocks. Arbitrary but fixed.
var testStart = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// harness wires a service over the in-memory chain with a fake clock,
// a recording encryptor, and an ephemeral store.
type harness struct {
	chain     *ledgertest.Ledger
	clock     *clock.FakeClock
	encryptor *fhetest.Recorder
	store     *votestore.Memory
	client    *Client
	service   *RoomService
}

func newHarness(t *testing.T, wallet ledger.Address) *harness {
	t.Helper()

	chain := ledgertest.New()
	clk := clock.Fake(testStart)
	chain.SetNow(clk.Now)

	var contract ledger.Contract
	if !wallet.IsZero() {
		contract = chain.Contract(wallet)
	}
	client, err := NewClient(ClientConfig{Reader: chain, Contract: contract})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	encryptor := fhetest.NewRecorder()
	store := votestore.NewMemory()
	service, err := NewRoomService(ServiceConfig{
		Client:    client,
		Encryptor: encryptor,
		Store:     store,
		Clock:     clk,
	})
	if err != nil {
		t.Fatalf("NewRoomService: %v", err)
	}

	return &harness{
		chain:     chain,
		clock:     clk,
		encryptor: encryptor,
		store:     store,
		client:    client,
		service:   service,
	}
}

// createRoom registers a room directly on the chain, bypassing the
// service under test.
func (h *harness) createRoom(t *testing.T, params ledger.CreateRoomParams, candidates ...ledger.CandidateParams) {
	t.Helper()
	creator := h.chain.Contract("0xcreator")
	if _, err := creator.CreateRoomWithCandidates(context.Background(), params, candidates); err != nil {
		t.Fatalf("creating room %s: %v", params.Code, err)
	}
}

func (h *harness) openRoom(code string, max uint32) ledger.CreateRoomParams {
	return ledger.CreateRoomParams{
		Code:            code,
		Title:           "test room",
		MaxParticipants: max,
		EndTime:         h.clock.Now().Add(time.Hour).Unix(),
	}
}

func (h *harness) gatedRoom(code string, max uint32, password string) ledger.CreateRoomParams {
	params := h.openRoom(code, max)
	params.HasPassword = true
	params.PasswordHash = ledgertest.PasswordDigest(password)
	return params
}
