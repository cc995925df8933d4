// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledgertest provides an in-memory voting contract for tests
// and local development. It enforces the same invariants as the
// deployed contract (one join and one vote per wallet per room, the
// participant cap, the room end time, the password digest check) and
// mines every transaction instantly with a deterministic hash.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/voteroom-foundation/voteroom/ledger"
)

// Ledger is the shared in-memory chain state. Bind per-wallet write
// handles with Contract; the Ledger itself implements ledger.Reader.
//
// Ledger is safe for concurrent use.
type Ledger struct {
	mu              sync.Mutex
	now             func() time.Time
	address         ledger.Address
	rooms           map[string]*roomState
	order           []string
	txCounter       int
	revertIn        int
	readErr         error
	totalVotesErr   error
	atomicSupported bool
}

type roomState struct {
	record       ledger.RoomRecord
	candidates   []ledger.CandidateRecord
	participants map[ledger.Address]bool
	voted        map[ledger.Address]bool
	ballots      uint64
}

// New creates an empty ledger at a fixed fake contract address.
func New() *Ledger {
	return &Ledger{
		now:             time.Now,
		address:         "0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9",
		rooms:           make(map[string]*roomState),
		atomicSupported: true,
	}
}

// SetNow overrides the time source, typically with a clock.Fake's Now.
func (l *Ledger) SetNow(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// SetAtomicCreateSupported toggles the batched create entry point,
// for exercising the two-step fallback path.
func (l *Ledger) SetAtomicCreateSupported(supported bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.atomicSupported = supported
}

// RevertNextWait makes the next submitted transaction mine with a
// reverted receipt instead of applying. Models a transaction that
// passes submission checks but fails on-chain.
func (l *Ledger) RevertNextWait() {
	l.RevertSubmission(1)
}

// RevertSubmission makes the nth submission from now (1 = next) mine
// with a reverted receipt. Earlier submissions apply normally.
func (l *Ledger) RevertSubmission(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revertIn = n
}

// SetReadError makes all reads fail with err until cleared with nil.
func (l *Ledger) SetReadError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErr = err
}

// SetTotalVotesError makes only GetTotalVotes fail, for exercising the
// tally fallback heuristic.
func (l *Ledger) SetTotalVotesError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalVotesErr = err
}

// Contract returns a write handle bound to the given wallet.
func (l *Ledger) Contract(wallet ledger.Address) ledger.Contract {
	return &boundContract{ledger: l, wallet: wallet}
}

// PasswordDigest computes the Keccak-256 digest the contract stores
// and checks, mirroring the deployed contract's hashing.
func PasswordDigest(password string) ledger.Digest {
	var digest ledger.Digest
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(password))
	hash.Sum(digest[:0])
	return digest
}

// --- ledger.Reader ---

// GetRoom implements ledger.Reader.
func (l *Ledger) GetRoom(_ context.Context, code string) (*ledger.RoomRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return nil, l.readErr
	}
	room, ok := l.rooms[code]
	if !ok {
		return nil, &ledger.RevertError{Code: ledger.CodeRoomNotFound, Message: "no room with code " + code}
	}
	record := l.snapshotLocked(room)
	return &record, nil
}

// GetCandidate implements ledger.Reader.
func (l *Ledger) GetCandidate(_ context.Context, code string, index uint32) (*ledger.CandidateRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return nil, l.readErr
	}
	room, ok := l.rooms[code]
	if !ok {
		return nil, &ledger.RevertError{Code: ledger.CodeRoomNotFound, Message: "no room with code " + code}
	}
	if int(index) >= len(room.candidates) {
		return nil, &ledger.RevertError{Code: ledger.CodeInvalidCandidate, Message: fmt.Sprintf("candidate index %d out of range", index)}
	}
	candidate := room.candidates[index]
	return &candidate, nil
}

// HasUserVoted implements ledger.Reader.
func (l *Ledger) HasUserVoted(_ context.Context, code string, wallet ledger.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return false, l.readErr
	}
	room, ok := l.rooms[code]
	if !ok {
		return false, nil
	}
	return room.voted[wallet], nil
}

// IsUserParticipant implements ledger.Reader.
func (l *Ledger) IsUserParticipant(_ context.Context, code string, wallet ledger.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return false, l.readErr
	}
	room, ok := l.rooms[code]
	if !ok {
		return false, nil
	}
	return room.participants[wallet], nil
}

// GetTotalVotes implements ledger.Reader.
func (l *Ledger) GetTotalVotes(_ context.Context, code string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return 0, l.readErr
	}
	if l.totalVotesErr != nil {
		return 0, l.totalVotesErr
	}
	room, ok := l.rooms[code]
	if !ok {
		return 0, &ledger.RevertError{Code: ledger.CodeRoomNotFound, Message: "no room with code " + code}
	}
	return room.ballots, nil
}

// ActiveRooms implements ledger.Reader.
func (l *Ledger) ActiveRooms(_ context.Context) ([]ledger.RoomRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return nil, l.readErr
	}
	var active []ledger.RoomRecord
	for _, code := range l.order {
		room := l.rooms[code]
		record := l.snapshotLocked(room)
		if record.IsActive {
			active = append(active, record)
		}
	}
	return active, nil
}

// RoomsPaginated implements ledger.Reader.
func (l *Ledger) RoomsPaginated(_ context.Context, offset, limit uint32) ([]ledger.RoomRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return nil, l.readErr
	}
	if int(offset) >= len(l.order) {
		return nil, nil
	}
	end := int(offset) + int(limit)
	if end > len(l.order) {
		end = len(l.order)
	}
	var page []ledger.RoomRecord
	for _, code := range l.order[offset:end] {
		page = append(page, l.snapshotLocked(l.rooms[code]))
	}
	return page, nil
}

// snapshotLocked copies a room record with derived fields refreshed.
func (l *Ledger) snapshotLocked(room *roomState) ledger.RoomRecord {
	record := room.record
	record.ParticipantCount = uint32(len(room.participants))
	record.CandidateCount = uint32(len(room.candidates))
	record.IsActive = l.now().Unix() < record.EndTime
	return record
}

// --- transactions ---

type fakeTx struct {
	hash    string
	receipt ledger.Receipt
}

func (t *fakeTx) Hash() string { return t.hash }

func (t *fakeTx) Wait(ctx context.Context) (*ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	receipt := t.receipt
	return &receipt, nil
}

// submitLocked allocates a transaction. When a revert was scripted via
// RevertNextWait, apply is skipped and the receipt carries
// StatusReverted; otherwise apply runs and may itself revert, which
// surfaces as a submission-time *RevertError (the common shape on EVM
// chains, where gas estimation reverts before anything is sent).
func (l *Ledger) submit(apply func() error) (ledger.PendingTx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.txCounter++
	hash := fmt.Sprintf("0x%064x", l.txCounter)

	if l.revertIn > 0 {
		l.revertIn--
		if l.revertIn == 0 {
			return &fakeTx{
				hash:    hash,
				receipt: ledger.Receipt{TxHash: hash, Status: ledger.StatusReverted, BlockNumber: uint64(l.txCounter)},
			}, nil
		}
	}

	if err := apply(); err != nil {
		return nil, err
	}
	return &fakeTx{
		hash:    hash,
		receipt: ledger.Receipt{TxHash: hash, Status: ledger.StatusSuccess, BlockNumber: uint64(l.txCounter)},
	}, nil
}

// --- ledger.Contract ---

type boundContract struct {
	ledger *Ledger
	wallet ledger.Address
}

func (c *boundContract) Address() ledger.Address { return c.ledger.address }
func (c *boundContract) Wallet() ledger.Address  { return c.wallet }

func (c *boundContract) GetRoom(ctx context.Context, code string) (*ledger.RoomRecord, error) {
	return c.ledger.GetRoom(ctx, code)
}

func (c *boundContract) GetCandidate(ctx context.Context, code string, index uint32) (*ledger.CandidateRecord, error) {
	return c.ledger.GetCandidate(ctx, code, index)
}

func (c *boundContract) HasUserVoted(ctx context.Context, code string, wallet ledger.Address) (bool, error) {
	return c.ledger.HasUserVoted(ctx, code, wallet)
}

func (c *boundContract) IsUserParticipant(ctx context.Context, code string, wallet ledger.Address) (bool, error) {
	return c.ledger.IsUserParticipant(ctx, code, wallet)
}

func (c *boundContract) GetTotalVotes(ctx context.Context, code string) (uint64, error) {
	return c.ledger.GetTotalVotes(ctx, code)
}

func (c *boundContract) ActiveRooms(ctx context.Context) ([]ledger.RoomRecord, error) {
	return c.ledger.ActiveRooms(ctx)
}

func (c *boundContract) RoomsPaginated(ctx context.Context, offset, limit uint32) ([]ledger.RoomRecord, error) {
	return c.ledger.RoomsPaginated(ctx, offset, limit)
}

func (c *boundContract) CreateRoom(_ context.Context, params ledger.CreateRoomParams) (ledger.PendingTx, error) {
	return c.ledger.submit(func() error {
		return c.ledger.createRoomLocked(params, nil, c.wallet)
	})
}

func (c *boundContract) CreateRoomWithCandidates(_ context.Context, params ledger.CreateRoomParams, candidates []ledger.CandidateParams) (ledger.PendingTx, error) {
	if !c.ledger.atomicSupportedNow() {
		return nil, ledger.ErrNotSupported
	}
	return c.ledger.submit(func() error {
		return c.ledger.createRoomLocked(params, candidates, c.wallet)
	})
}

func (c *boundContract) AddCandidate(_ context.Context, code string, candidate ledger.CandidateParams) (ledger.PendingTx, error) {
	return c.ledger.submit(func() error {
		return c.ledger.addCandidatesLocked(code, []ledger.CandidateParams{candidate})
	})
}

func (c *boundContract) AddCandidatesBatch(_ context.Context, code string, candidates []ledger.CandidateParams) (ledger.PendingTx, error) {
	return c.ledger.submit(func() error {
		return c.ledger.addCandidatesLocked(code, candidates)
	})
}

func (c *boundContract) JoinRoom(_ context.Context, code string, passwordOrProof string) (ledger.PendingTx, error) {
	return c.ledger.submit(func() error {
		return c.ledger.joinRoomLocked(code, passwordOrProof, c.wallet)
	})
}

func (c *boundContract) Vote(_ context.Context, code string, candidateID uint32, handle, proof []byte) (ledger.PendingTx, error) {
	return c.ledger.submit(func() error {
		return c.ledger.voteLocked(code, candidateID, handle, proof, c.wallet)
	})
}

func (l *Ledger) atomicSupportedNow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.atomicSupported
}

// --- contract rules (callers hold l.mu) ---

func (l *Ledger) createRoomLocked(params ledger.CreateRoomParams, candidates []ledger.CandidateParams, creator ledger.Address) error {
	if _, exists := l.rooms[params.Code]; exists {
		return &ledger.RevertError{Code: ledger.CodeRoomExists, Message: "room code already in use"}
	}
	if params.MaxParticipants == 0 {
		return &ledger.RevertError{Code: ledger.CodeInvalidCandidate, Message: "max participants must be positive"}
	}
	if params.EndTime <= l.now().Unix() {
		return &ledger.RevertError{Code: ledger.CodeRoomEnded, Message: "end time must be in the future"}
	}
	if params.HasPassword && params.PasswordHash.IsZero() {
		return &ledger.RevertError{Code: ledger.CodeWrongPassword, Message: "password room requires a digest"}
	}

	room := &roomState{
		record: ledger.RoomRecord{
			Code:            params.Code,
			Title:           params.Title,
			Description:     params.Description,
			Creator:         creator,
			MaxParticipants: params.MaxParticipants,
			EndTime:         params.EndTime,
			HasPassword:     params.HasPassword,
			PasswordHash:    params.PasswordHash,
		},
		participants: make(map[ledger.Address]bool),
		voted:        make(map[ledger.Address]bool),
	}
	for i, candidate := range candidates {
		room.candidates = append(room.candidates, ledger.CandidateRecord{
			ID:          uint32(i),
			Name:        candidate.Name,
			Description: candidate.Description,
			ImageRef:    candidate.ImageRef,
		})
	}
	l.rooms[params.Code] = room
	l.order = append(l.order, params.Code)
	return nil
}

func (l *Ledger) addCandidatesLocked(code string, candidates []ledger.CandidateParams) error {
	room, ok := l.rooms[code]
	if !ok {
		return &ledger.RevertError{Code: ledger.CodeRoomNotFound, Message: "no room with code " + code}
	}
	for _, candidate := range candidates {
		room.candidates = append(room.candidates, ledger.CandidateRecord{
			ID:          uint32(len(room.candidates)),
			Name:        candidate.Name,
			Description: candidate.Description,
			ImageRef:    candidate.ImageRef,
		})
	}
	return nil
}

func (l *Ledger) joinRoomLocked(code, passwordOrProof string, wallet ledger.Address) error {
	room, ok := l.rooms[code]
	if !ok {
		return &ledger.RevertError{Code: ledger.CodeRoomNotFound, Message: "no room with code " + code}
	}
	if l.now().Unix() >= room.record.EndTime {
		return &ledger.RevertError{Code: ledger.CodeRoomEnded, Message: "room voting has ended"}
	}
	if room.participants[wallet] {
		return &ledger.RevertError{Code: ledger.CodeAlreadyJoined, Message: "wallet already joined"}
	}
	if uint32(len(room.participants)) >= room.record.MaxParticipants {
		return &ledger.RevertError{Code: ledger.CodeRoomFull, Message: "room is full"}
	}
	if room.record.HasPassword {
		if PasswordDigest(passwordOrProof) != room.record.PasswordHash {
			return &ledger.RevertError{Code: ledger.CodeWrongPassword, Message: "password digest mismatch"}
		}
	}
	room.participants[wallet] = true
	return nil
}

func (l *Ledger) voteLocked(code string, candidateID uint32, handle, proof []byte, wallet ledger.Address) error {
	room, ok := l.rooms[code]
	if !ok {
		return &ledger.RevertError{Code: ledger.CodeRoomNotFound, Message: "no room with code " + code}
	}
	if l.now().Unix() >= room.record.EndTime {
		return &ledger.RevertError{Code: ledger.CodeRoomEnded, Message: "room voting has ended"}
	}
	if !room.participants[wallet] {
		return &ledger.RevertError{Code: ledger.CodeNotParticipant, Message: "wallet has not joined"}
	}
	if room.voted[wallet] {
		return &ledger.RevertError{Code: ledger.CodeAlreadyVoted, Message: "wallet already voted"}
	}
	if int(candidateID) >= len(room.candidates) {
		return &ledger.RevertError{Code: ledger.CodeInvalidCandidate, Message: "candidate index out of range"}
	}
	if len(handle) == 0 || len(proof) == 0 {
		return &ledger.RevertError{Code: ledger.CodeInvalidCandidate, Message: "empty ciphertext handle or proof"}
	}
	room.voted[wallet] = true
	room.ballots++
	return nil
}
