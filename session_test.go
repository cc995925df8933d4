// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package voteroom

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voteroom-foundation/voteroom/fhe/fhetest"
	"github.com/voteroom-foundation/voteroom/ledger"
	"github.com/voteroom-foundation/voteroom/lib/testutil"
	"github.com/voteroom-foundation/voteroom/votestore"
)

func newSession(t *testing.T, h *harness, code string, wallet ledger.Address) *Session {
	t.Helper()
	session, err := NewSession(SessionConfig{
		Service:  h.service,
		RoomCode: code,
		Wallet:   wallet,
		Clock:    h.clock,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(session.Close)
	return session
}

// waitForState consumes updates until cond holds. The updates channel
// keeps only the latest snapshot, so intermediate states may be
// skipped.
func waitForState(t *testing.T, session *Session, cond func(SessionState) bool) SessionState {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case state := <-session.Updates():
			if cond(state) {
				return state
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state, last snapshot: %+v", session.Snapshot())
		}
	}
}

func TestSessionInitialLoad(t *testing.T) {
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 4),
		ledger.CandidateParams{Name: "Ramen"},
		ledger.CandidateParams{Name: "Tacos"},
	)

	session := newSession(t, h, "LUNCH1", "0xa11ce")
	state := waitForState(t, session, func(s SessionState) bool { return s.Phase == PhaseReady })

	if state.Room.Code != "LUNCH1" {
		t.Errorf("room = %+v", state.Room)
	}
	if len(state.Candidates) != 2 {
		t.Errorf("candidates = %+v", state.Candidates)
	}
	if state.Participant.Value || state.Voted.Value {
		t.Errorf("fresh wallet state = %+v", state)
	}
	if !state.Active || state.Remaining != time.Hour {
		t.Errorf("remaining = %v active = %v", state.Remaining, state.Active)
	}
}

// blockingReader delays every read until released, for exercising the
// load timeout.
type blockingReader struct {
	ledger.Reader
	release chan struct{}
	once    sync.Once
}

func (r *blockingReader) Release() { r.once.Do(func() { close(r.release) }) }

func (r *blockingReader) GetRoom(ctx context.Context, code string) (*ledger.RoomRecord, error) {
	select {
	case <-r.release:
		return r.Reader.GetRoom(ctx, code)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSessionLoadTimeoutAndRetry(t *testing.T) {
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("SLOW", 4))

	blocking := &blockingReader{Reader: h.chain, release: make(chan struct{})}
	client, err := NewClient(ClientConfig{Reader: blocking, Contract: h.chain.Contract("0xa11ce")})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	service, err := NewRoomService(ServiceConfig{
		Client:    client,
		Encryptor: fhetest.NewRecorder(),
		Store:     votestore.NewMemory(),
		Clock:     h.clock,
	})
	if err != nil {
		t.Fatalf("NewRoomService: %v", err)
	}
	session, err := NewSession(SessionConfig{
		Service:  service,
		RoomCode: "SLOW",
		Wallet:   "0xa11ce",
		Clock:    h.clock,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer session.Close()

	// Let the load register its timeout, then blow past it.
	h.clock.WaitForTimers(1)
	h.clock.Advance(DefaultLoadTimeout + time.Second)

	state := waitForState(t, session, func(s SessionState) bool { return s.Phase == PhaseLoadFailed })
	if !IsKind(state.LoadErr, KindTimeout) {
		t.Fatalf("load err = %v, want timeout kind", state.LoadErr)
	}

	// The retry affordance: unblock the reads and try again.
	blocking.Release()
	session.Retry()
	waitForState(t, session, func(s SessionState) bool { return s.Phase == PhaseReady })
}

func TestSessionPollReconciles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 8))

	session := newSession(t, h, "LUNCH1", "0xa11ce")
	waitForState(t, session, func(s SessionState) bool { return s.Phase == PhaseReady })

	// Another wallet joins behind this session's back.
	if _, err := h.chain.Contract("0xb0b").JoinRoom(ctx, "LUNCH1", ""); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	h.clock.Advance(DefaultPollInterval)
	state := waitForState(t, session, func(s SessionState) bool { return s.Room.ParticipantCount == 1 })
	if state.Participant.Value {
		t.Error("poll flipped participant for the wrong wallet")
	}
}

func TestSessionPollOverwritesPending(t *testing.T) {
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 8))

	session := newSession(t, h, "LUNCH1", "0xa11ce")
	waitForState(t, session, func(s SessionState) bool { return s.Phase == PhaseReady })

	// Pin an optimistic pending flip directly, as if a transaction
	// were submitted and its confirmation lost.
	session.mu.Lock()
	session.state.Participant = Optimistic(true)
	session.mu.Unlock()

	// The next successful poll replaces it with ledger truth:
	// last-read-wins, no merging.
	h.clock.Advance(DefaultPollInterval)
	state := waitForState(t, session, func(s SessionState) bool { return !s.Participant.Pending })
	if state.Participant.Value {
		t.Error("poll kept the optimistic value over ledger truth")
	}
}

func TestSessionJoinAndVote(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 4),
		ledger.CandidateParams{Name: "Ramen"},
		ledger.CandidateParams{Name: "Tacos"},
	)

	session := newSession(t, h, "LUNCH1", "0xa11ce")
	waitForState(t, session, func(s SessionState) bool { return s.Phase == PhaseReady })

	if err := session.Join(ctx, nil, JoinSelfPaid); err != nil {
		t.Fatalf("Join: %v", err)
	}
	state := session.Snapshot()
	if !state.Participant.Value || state.Participant.Pending {
		t.Errorf("participant = %+v", state.Participant)
	}

	if err := session.Vote(ctx, 1, nil); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	state = session.Snapshot()
	if !state.Voted.Value || state.Voted.Pending {
		t.Errorf("voted = %+v", state.Voted)
	}
	if state.RememberedCandidate == nil || *state.RememberedCandidate != 1 {
		t.Errorf("remembered = %v", state.RememberedCandidate)
	}

	// A second vote is rejected locally before any submission.
	if err := session.Vote(ctx, 0, nil); !IsKind(err, KindValidation) {
		t.Fatalf("second vote err = %v, want validation kind", err)
	}
	if h.encryptor.EncryptCount() != 1 {
		t.Errorf("encryptions = %d, want 1", h.encryptor.EncryptCount())
	}
}

func TestSessionFailedJoinRollsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("FLAKY", 4))

	session := newSession(t, h, "FLAKY", "0xa11ce")
	waitForState(t, session, func(s SessionState) bool { return s.Phase == PhaseReady })

	h.chain.RevertNextWait()
	err := session.Join(ctx, nil, JoinSelfPaid)
	if !IsKind(err, KindTransaction) {
		t.Fatalf("err = %v, want transaction kind", err)
	}

	// Rolled back immediately, not left for the poll.
	state := session.Snapshot()
	if state.Participant.Value || state.Participant.Pending {
		t.Errorf("participant = %+v after failed join", state.Participant)
	}
}

func TestSessionCountdownEndsRoomLocally(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("TIMED", 4), ledger.CandidateParams{Name: "Ramen"})

	session := newSession(t, h, "TIMED", "0xa11ce")
	waitForState(t, session, func(s SessionState) bool { return s.Phase == PhaseReady })
	if err := session.Join(ctx, nil, JoinSelfPaid); err != nil {
		t.Fatalf("Join: %v", err)
	}

	// Cut the network: the activity flip must come from the countdown
	// alone, derived from the cached end time.
	h.chain.SetReadError(context.DeadlineExceeded)

	h.clock.Advance(time.Hour + time.Second)
	state := waitForState(t, session, func(s SessionState) bool { return !s.Active })
	if state.Remaining != 0 {
		t.Errorf("remaining = %v", state.Remaining)
	}

	// A vote after local end is rejected before anything is built: no
	// encryption, no transaction.
	err := session.Vote(ctx, 0, nil)
	if !IsKind(err, KindValidation) {
		t.Fatalf("err = %v, want validation kind", err)
	}
	if h.encryptor.EncryptCount() != 0 {
		t.Errorf("encryptions = %d, want 0", h.encryptor.EncryptCount())
	}
}

func TestSessionSwitchResetsIdentity(t *testing.T) {
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("ONE", 4))
	h.createRoom(t, h.openRoom("TWO", 4))

	session := newSession(t, h, "ONE", "0xa11ce")
	waitForState(t, session, func(s SessionState) bool { return s.Phase == PhaseReady })

	session.Switch("TWO", "0xb0b")
	state := waitForState(t, session, func(s SessionState) bool {
		return s.Phase == PhaseReady && s.RoomCode == "TWO"
	})
	if state.Wallet != "0xb0b" {
		t.Errorf("wallet = %s", state.Wallet)
	}
	if state.Participant.Value || state.Voted.Value {
		t.Errorf("state leaked across switch: %+v", state)
	}
}

func TestSessionCloseStopsUpdates(t *testing.T) {
	h := newHarness(t, "0xa11ce")
	h.createRoom(t, h.openRoom("LUNCH1", 4))

	session := newSession(t, h, "LUNCH1", "0xa11ce")
	waitForState(t, session, func(s SessionState) bool { return s.Phase == PhaseReady })

	session.Close()
	state := waitForState(t, session, func(s SessionState) bool { return s.Phase == PhaseClosed })
	if state.Phase != PhaseClosed {
		t.Errorf("phase = %v", state.Phase)
	}
	if session.Snapshot().Phase != PhaseClosed {
		t.Error("snapshot not closed")
	}

	// Timer ticks after Close must not produce further snapshots.
	h.clock.Advance(DefaultPollInterval + DefaultCountdownInterval)
	testutil.RequireNoReceive(t, session.Updates(), 50*time.Millisecond, "update after Close")
}
