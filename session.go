// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package voteroom

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voteroom-foundation/voteroom/ledger"
	"github.com/voteroom-foundation/voteroom/lib/clock"
	"github.com/voteroom-foundation/voteroom/lib/secret"
)

// Session timing defaults.
const (
	DefaultPollInterval      = 10 * time.Second
	DefaultCountdownInterval = time.Second
	DefaultLoadTimeout       = 20 * time.Second
)

// SessionPhase is the lifecycle of a session's view state.
type SessionPhase int

const (
	// PhaseLoading means the guarded initial load is running.
	PhaseLoading SessionPhase = iota
	// PhaseReady means the load completed and timers are running.
	PhaseReady
	// PhaseLoadFailed means the load timed out or failed; Retry is
	// available.
	PhaseLoadFailed
	// PhaseClosed means the session was torn down.
	PhaseClosed
)

func (p SessionPhase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseLoadFailed:
		return "load-failed"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionState is the immutable view snapshot handed to the
// presentation layer.
type SessionState struct {
	Phase    SessionPhase
	RoomCode string
	Wallet   ledger.Address

	Room       Room
	Candidates []Candidate

	// Participant and Voted carry optimistic-update status; a
	// successful poll always overwrites a pending value.
	Participant Presence
	Voted       Presence

	// RememberedCandidate is the locally persisted ballot choice, or
	// nil when none was cast from this client.
	RememberedCandidate *uint32

	TotalVotes          uint64
	TotalVotesEstimated bool

	// Remaining and Active derive from the cached end time via the
	// countdown, with no network reads.
	Remaining time.Duration
	Active    bool

	// LoadErr is set in PhaseLoadFailed.
	LoadErr error
}

// SessionConfig configures a Session. Service, RoomCode, and Wallet
// are required.
type SessionConfig struct {
	Service *RoomService

	RoomCode string
	Wallet   ledger.Address

	// Clock drives the poll and countdown tickers and the load
	// timeout. Nil means clock.Real().
	Clock clock.Clock

	// PollInterval is the reconciliation poll period. Zero means
	// DefaultPollInterval.
	PollInterval time.Duration

	// CountdownInterval is the countdown recomputation period. Zero
	// means DefaultCountdownInterval.
	CountdownInterval time.Duration

	// LoadTimeout bounds the initial load. Zero means
	// DefaultLoadTimeout.
	LoadTimeout time.Duration

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// Session is the per-(room, wallet) view model. It runs one guarded
// initial load, then a reconciliation poll and an independent
// countdown, and publishes state snapshots through Updates.
//
// All durable truth lives on the ledger; the session only presents an
// optimistic, eventually-reconciled view and never double-submits a
// mutation. Switching room or wallet tears both timers down atomically
// and restarts the load under a new generation, so a stale load or
// tick from the previous identity can never touch the new state.
type Session struct {
	service *RoomService
	clock   clock.Clock
	logger  *slog.Logger

	pollInterval      time.Duration
	countdownInterval time.Duration
	loadTimeout       time.Duration

	mu             sync.Mutex
	state          SessionState
	generation     int
	stopTimers     func()
	resultsFetched bool
	closed         bool

	updates chan SessionState
}

// NewSession builds a session and starts its initial load.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("voteroom: SessionConfig.Service is required")
	}
	if cfg.RoomCode == "" {
		return nil, fmt.Errorf("voteroom: SessionConfig.RoomCode is required")
	}
	if cfg.Wallet.IsZero() {
		return nil, fmt.Errorf("voteroom: SessionConfig.Wallet is required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}
	countdownInterval := cfg.CountdownInterval
	if countdownInterval == 0 {
		countdownInterval = DefaultCountdownInterval
	}
	loadTimeout := cfg.LoadTimeout
	if loadTimeout == 0 {
		loadTimeout = DefaultLoadTimeout
	}

	s := &Session{
		service:           cfg.Service,
		clock:             clk,
		logger:            logger,
		pollInterval:      pollInterval,
		countdownInterval: countdownInterval,
		loadTimeout:       loadTimeout,
		state: SessionState{
			Phase:    PhaseLoading,
			RoomCode: cfg.RoomCode,
			Wallet:   cfg.Wallet,
		},
		updates: make(chan SessionState, 1),
	}
	s.startLoad()
	return s, nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates delivers state snapshots to the presentation layer. The
// channel holds only the latest snapshot: a slow consumer sees the
// newest state, not a backlog.
func (s *Session) Updates() <-chan SessionState {
	return s.updates
}

// Retry restarts the initial load after a failure. No-op unless the
// session is in PhaseLoadFailed.
func (s *Session) Retry() {
	s.mu.Lock()
	if s.closed || s.state.Phase != PhaseLoadFailed {
		s.mu.Unlock()
		return
	}
	s.state.Phase = PhaseLoading
	s.state.LoadErr = nil
	s.publishLocked()
	s.mu.Unlock()
	s.startLoad()
}

// Switch retargets the session to a new (room, wallet) pair. Both
// timers are torn down atomically, the state is reset, the password
// cache is invalidated, and a fresh guarded load starts under a new
// generation.
func (s *Session) Switch(roomCode string, wallet ledger.Address) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.teardownTimersLocked()
	s.generation++
	s.resultsFetched = false
	s.state = SessionState{
		Phase:    PhaseLoading,
		RoomCode: roomCode,
		Wallet:   wallet,
	}
	s.publishLocked()
	s.mu.Unlock()

	s.service.Validator().Invalidate()
	s.startLoad()
}

// Close tears the session down. Both timers stop; no further updates
// are published.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	s.teardownTimersLocked()
	s.state.Phase = PhaseClosed
	s.publishLocked()
}

// Join runs a join with the session's optimistic-flip bookkeeping: the
// participant flag flips to pending at submission, confirms on
// success, and rolls back immediately on failure (the next poll
// reconciles regardless).
func (s *Session) Join(ctx context.Context, password *secret.Buffer, strategy JoinStrategy) error {
	s.mu.Lock()
	code := s.state.RoomCode
	gen := s.generation
	s.mu.Unlock()

	_, err := s.service.JoinRoom(ctx, code, password, strategy, func(p Presence) {
		s.applyPresence(gen, func(state *SessionState) { state.Participant = p })
	})
	return err
}

// Vote casts a ballot with local pre-checks: a room whose cached end
// time has passed rejects the attempt before anything is built or
// submitted, as does an already-voted flag. The voted flag flips to
// pending at submission, confirms on success, and rolls back on
// failure.
func (s *Session) Vote(ctx context.Context, candidateID uint32, progress VoteProgress) error {
	const op = "voteroom.Vote"

	s.mu.Lock()
	code := s.state.RoomCode
	gen := s.generation
	if s.state.Phase != PhaseReady {
		s.mu.Unlock()
		return errorf(KindValidation, op, "session is not ready")
	}
	if !s.state.Room.Active(s.clock.Now()) {
		s.mu.Unlock()
		return errorf(KindValidation, op, "voting in room %s has ended", code)
	}
	if s.state.Voted.Value {
		s.mu.Unlock()
		return errorf(KindValidation, op, "a ballot was already cast in room %s", code)
	}
	if !s.state.Participant.Value {
		s.mu.Unlock()
		return errorf(KindValidation, op, "wallet has not joined room %s", code)
	}
	s.mu.Unlock()

	err := s.service.CastVote(ctx, code, candidateID, func(phase VotePhase) {
		if phase == VoteSubmitting {
			s.applyPresence(gen, func(state *SessionState) { state.Voted = Optimistic(true) })
		}
		if progress != nil {
			progress(phase)
		}
	})
	if err != nil {
		s.applyPresence(gen, func(state *SessionState) {
			if state.Voted.Pending {
				state.Voted = Confirmed(false)
			}
		})
		return err
	}

	s.applyPresence(gen, func(state *SessionState) {
		state.Voted = Confirmed(true)
		remembered := candidateID
		state.RememberedCandidate = &remembered
	})
	return nil
}

// applyPresence mutates state under the generation guard and
// publishes.
func (s *Session) applyPresence(gen int, mutate func(*SessionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		return
	}
	mutate(&s.state)
	s.publishLocked()
}

// publishLocked pushes the current state to the updates channel,
// replacing any unconsumed snapshot.
func (s *Session) publishLocked() {
	select {
	case <-s.updates:
	default:
	}
	s.updates <- s.state
}

// loadResult carries the three concurrent initial reads.
type loadResult struct {
	room       Room
	candidates []Candidate
	status     ledger.ParticipantStatus
	remembered *uint32
	err        error
}

// startLoad launches the guarded initial load for the current
// generation. The guard: results are applied only if the generation is
// unchanged, so a load from a previous room or wallet can never leak
// into the new session.
func (s *Session) startLoad() {
	s.mu.Lock()
	gen := s.generation
	code := s.state.RoomCode
	wallet := s.state.Wallet
	s.mu.Unlock()

	done := make(chan loadResult, 1)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		done <- s.load(ctx, code, wallet)
	}()

	go func() {
		defer cancel()
		var result loadResult
		select {
		case result = <-done:
		case <-s.clock.After(s.loadTimeout):
			result = loadResult{err: errorf(KindTimeout, "voteroom.Load", "initial load of room %s exceeded %v", code, s.loadTimeout)}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.generation != gen {
			return
		}
		if result.err != nil {
			s.logger.Warn("session load failed", "room", code, "error", result.err)
			s.state.Phase = PhaseLoadFailed
			s.state.LoadErr = result.err
			s.publishLocked()
			return
		}

		now := s.clock.Now()
		s.state.Phase = PhaseReady
		s.state.Room = result.room
		s.state.Candidates = result.candidates
		s.state.Participant = Confirmed(result.status.IsParticipant)
		s.state.Voted = Confirmed(result.status.HasVoted)
		s.state.RememberedCandidate = result.remembered
		s.state.Remaining = remaining(result.room.EndTime, now)
		s.state.Active = result.room.Active(now)
		s.publishLocked()
		s.startTimersLocked(gen)
	}()
}

// load issues the room, candidate, and status reads concurrently.
func (s *Session) load(ctx context.Context, code string, wallet ledger.Address) loadResult {
	directory := s.service.Directory()

	var result loadResult
	var candidatesErr, statusErr error
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		result.room, result.err = directory.Room(ctx, code)
	}()
	go func() {
		defer wg.Done()
		result.candidates, candidatesErr = directory.Candidates(ctx, code)
	}()
	go func() {
		defer wg.Done()
		result.status, statusErr = directory.Status(ctx, code, wallet)
	}()
	wg.Wait()

	if result.err == nil {
		result.err = candidatesErr
	}
	if result.err == nil {
		result.err = statusErr
	}
	if result.err != nil {
		return result
	}

	if id, ok, err := s.service.RememberedVote(ctx, code); err == nil && ok {
		result.remembered = &id
	}
	return result
}

// startTimersLocked starts the poll and countdown tickers for gen.
// Caller holds s.mu.
func (s *Session) startTimersLocked(gen int) {
	poll := s.clock.NewTicker(s.pollInterval)
	countdown := s.clock.NewTicker(s.countdownInterval)
	stop := make(chan struct{})

	var once sync.Once
	s.stopTimers = func() {
		once.Do(func() {
			poll.Stop()
			countdown.Stop()
			close(stop)
		})
	}

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-poll.C:
				s.pollOnce(gen)
			case <-countdown.C:
				s.countdownTick(gen)
			}
		}
	}()
}

// teardownTimersLocked stops both tickers atomically. Caller holds
// s.mu.
func (s *Session) teardownTimersLocked() {
	if s.stopTimers != nil {
		s.stopTimers()
		s.stopTimers = nil
	}
}

// pollOnce refreshes participant count, status, and tally from the
// ledger. The poll result always overwrites a pending optimistic
// value: last-read-wins, no merging, because all durable truth lives
// on the ledger. After the room has ended, one final fetch collects
// the results and the poll stops.
func (s *Session) pollOnce(gen int) {
	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		return
	}
	code := s.state.RoomCode
	wallet := s.state.Wallet
	ended := !s.state.Room.Active(s.clock.Now())
	alreadyFetched := s.resultsFetched
	s.mu.Unlock()

	if ended && alreadyFetched {
		s.mu.Lock()
		if s.generation == gen {
			s.teardownTimersLocked()
		}
		s.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval)
	defer cancel()

	directory := s.service.Directory()
	room, roomErr := directory.Room(ctx, code)
	status, statusErr := directory.Status(ctx, code, wallet)
	total, estimated, totalErr := s.service.TotalVotes(ctx, code)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		return
	}
	if roomErr != nil || statusErr != nil {
		// Transient poll failures keep the previous view; the next
		// tick retries.
		s.logger.Debug("poll failed", "room", code, "room_err", roomErr, "status_err", statusErr)
		return
	}

	s.state.Room = room
	s.state.Participant = Confirmed(status.IsParticipant)
	s.state.Voted = Confirmed(status.HasVoted)
	if totalErr == nil {
		s.state.TotalVotes = total
		s.state.TotalVotesEstimated = estimated
	}
	now := s.clock.Now()
	s.state.Remaining = remaining(room.EndTime, now)
	s.state.Active = room.Active(now)
	if !s.state.Active {
		s.resultsFetched = true
	}
	s.publishLocked()
}

// countdownTick recomputes the remaining time from the cached end
// time. Pure local derivation, no network.
func (s *Session) countdownTick(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen || s.state.Phase != PhaseReady {
		return
	}
	now := s.clock.Now()
	newRemaining := remaining(s.state.Room.EndTime, now)
	newActive := s.state.Room.Active(now)
	if newRemaining == s.state.Remaining && newActive == s.state.Active {
		return
	}
	s.state.Remaining = newRemaining
	s.state.Active = newActive
	s.publishLocked()
}

func remaining(endTime, now time.Time) time.Duration {
	d := endTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
