// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package voteroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voteroom-foundation/voteroom/fhe"
	"github.com/voteroom-foundation/voteroom/ledger"
	"github.com/voteroom-foundation/voteroom/lib/clock"
	"github.com/voteroom-foundation/voteroom/lib/codec"
	"github.com/voteroom-foundation/voteroom/lib/secret"
	"github.com/voteroom-foundation/voteroom/votestore"
)

// voteMemoNamespace keys remembered-vote records in the store.
const voteMemoNamespace = "vote-memo"

// ServiceConfig configures a RoomService. Client, Encryptor, and Store
// are required; Relay and Signer only for sponsored joins.
type ServiceConfig struct {
	Client    *Client
	Encryptor fhe.Encryptor
	Store     votestore.Store

	// Validator checks room passwords before joins. Nil builds a
	// default validator over the client.
	Validator *PasswordValidator

	// Relay executes sponsored joins. Nil disables JoinSponsored.
	Relay *RelayClient

	// Signer authorizes sponsored joins. Nil disables JoinSponsored.
	Signer Signer

	// Clock provides time for end-time computation. Nil means
	// clock.Real().
	Clock clock.Clock

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// RoomService is the write-path orchestrator. Every mutation follows
// submit, await one confirmation, interpret receipt, and returns a
// classified *Error on failure. One mutation is in flight at a time
// per service instance; a second concurrent attempt fails fast with a
// validation Error instead of queueing.
type RoomService struct {
	client    *Client
	directory *Directory
	encryptor fhe.Encryptor
	store     votestore.Store
	validator *PasswordValidator
	relay     *RelayClient
	signer    Signer
	clock     clock.Clock
	logger    *slog.Logger

	inflight atomic.Bool
}

// NewRoomService validates the configuration and builds a service.
func NewRoomService(cfg ServiceConfig) (*RoomService, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("voteroom: ServiceConfig.Client is required")
	}
	if cfg.Encryptor == nil {
		return nil, fmt.Errorf("voteroom: ServiceConfig.Encryptor is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("voteroom: ServiceConfig.Store is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	directory := NewDirectory(cfg.Client)
	validator := cfg.Validator
	if validator == nil {
		var err error
		validator, err = NewPasswordValidator(PasswordValidatorConfig{
			Directory: directory,
			Clock:     clk,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
	}

	return &RoomService{
		client:    cfg.Client,
		directory: directory,
		encryptor: cfg.Encryptor,
		store:     cfg.Store,
		validator: validator,
		relay:     cfg.Relay,
		signer:    cfg.Signer,
		clock:     clk,
		logger:    logger,
	}, nil
}

// Directory returns the read-side companion built over the same
// client.
func (s *RoomService) Directory() *Directory { return s.directory }

// Validator returns the password validator, shared so session
// teardown can invalidate its cache.
func (s *RoomService) Validator() *PasswordValidator { return s.validator }

// CreateRoomRequest carries the arguments to CreateRoom. Password nil
// means an open room.
type CreateRoomRequest struct {
	Code            string
	Title           string
	Description     string
	MaxParticipants uint32
	Duration        time.Duration
	Password        *secret.Buffer
}

func (req *CreateRoomRequest) params(now time.Time) (ledger.CreateRoomParams, error) {
	if req.Code == "" {
		return ledger.CreateRoomParams{}, errorf(KindValidation, "voteroom.CreateRoom", "room code is required")
	}
	if req.MaxParticipants == 0 {
		return ledger.CreateRoomParams{}, errorf(KindValidation, "voteroom.CreateRoom", "max participants must be positive")
	}
	if req.Duration <= 0 {
		return ledger.CreateRoomParams{}, errorf(KindValidation, "voteroom.CreateRoom", "duration must be positive")
	}

	params := ledger.CreateRoomParams{
		Code:            req.Code,
		Title:           req.Title,
		Description:     req.Description,
		MaxParticipants: req.MaxParticipants,
		EndTime:         now.Add(req.Duration).Unix(),
	}
	if req.Password != nil {
		// Only the digest is submitted; the plaintext never leaves
		// the process.
		params.HasPassword = true
		params.PasswordHash = PasswordDigest(req.Password.String())
	}
	return params, nil
}

// CreateRoom registers a new room. The end time is computed as
// now + Duration from the injected clock.
func (s *RoomService) CreateRoom(ctx context.Context, req CreateRoomRequest) error {
	const op = "voteroom.CreateRoom"
	release, err := s.beginMutation(op)
	if err != nil {
		return err
	}
	defer release()

	params, err := req.params(s.clock.Now())
	if err != nil {
		return err
	}
	contract, err := s.client.Write()
	if err != nil {
		return err
	}
	return s.submitAndWait(ctx, op, func() (ledger.PendingTx, error) {
		return contract.CreateRoom(ctx, params)
	})
}

// CreateRoomWithCandidates registers a room and its candidates,
// preferring the atomic single-transaction entry point. When the
// contract lacks it, the service falls back to create followed by a
// batched add; a failure in the second step leaves the room without
// candidates, and the returned error says so.
func (s *RoomService) CreateRoomWithCandidates(ctx context.Context, req CreateRoomRequest, candidates []ledger.CandidateParams) error {
	const op = "voteroom.CreateRoomWithCandidates"
	release, err := s.beginMutation(op)
	if err != nil {
		return err
	}
	defer release()

	if len(candidates) == 0 {
		return errorf(KindValidation, op, "at least one candidate is required")
	}
	params, err := req.params(s.clock.Now())
	if err != nil {
		return err
	}
	contract, err := s.client.Write()
	if err != nil {
		return err
	}

	atomicErr := s.submitAndWait(ctx, op, func() (ledger.PendingTx, error) {
		return contract.CreateRoomWithCandidates(ctx, params, candidates)
	})
	if !errors.Is(atomicErr, ledger.ErrNotSupported) {
		return atomicErr
	}

	s.logger.Info("atomic create unsupported, falling back to two transactions", "room", req.Code)
	if err := s.submitAndWait(ctx, op, func() (ledger.PendingTx, error) {
		return contract.CreateRoom(ctx, params)
	}); err != nil {
		return err
	}
	if err := s.submitAndWait(ctx, op, func() (ledger.PendingTx, error) {
		return contract.AddCandidatesBatch(ctx, req.Code, candidates)
	}); err != nil {
		return &Error{
			Kind: KindTransaction,
			Op:   op,
			Msg:  fmt.Sprintf("room %s was created but candidate registration failed; the room exists without candidates", req.Code),
			Err:  err,
		}
	}
	return nil
}

// AddCandidate registers one candidate. Not idempotent: a retry after
// an ambiguous failure can duplicate the candidate.
func (s *RoomService) AddCandidate(ctx context.Context, code string, candidate ledger.CandidateParams) error {
	const op = "voteroom.AddCandidate"
	release, err := s.beginMutation(op)
	if err != nil {
		return err
	}
	defer release()

	contract, err := s.client.Write()
	if err != nil {
		return err
	}
	return s.submitAndWait(ctx, op, func() (ledger.PendingTx, error) {
		return contract.AddCandidate(ctx, code, candidate)
	})
}

// AddCandidates registers several candidates in one transaction. Not
// idempotent.
func (s *RoomService) AddCandidates(ctx context.Context, code string, candidates []ledger.CandidateParams) error {
	const op = "voteroom.AddCandidates"
	release, err := s.beginMutation(op)
	if err != nil {
		return err
	}
	defer release()

	if len(candidates) == 0 {
		return errorf(KindValidation, op, "at least one candidate is required")
	}
	contract, err := s.client.Write()
	if err != nil {
		return err
	}
	return s.submitAndWait(ctx, op, func() (ledger.PendingTx, error) {
		return contract.AddCandidatesBatch(ctx, code, candidates)
	})
}

// JoinRoom admits the wallet to a room. Password validation and the
// already-participant short-circuit are shared by both strategies;
// only the submission path differs. progress receives the optimistic
// participant flip at submission and its confirmation or rollback.
//
// The returned Presence is the final participant state as this call
// knows it: confirmed true on success, confirmed false (rolled back)
// on failure.
func (s *RoomService) JoinRoom(ctx context.Context, code string, password *secret.Buffer, strategy JoinStrategy, progress JoinProgress) (Presence, error) {
	const op = "voteroom.JoinRoom"
	release, err := s.beginMutation(op)
	if err != nil {
		return Confirmed(false), err
	}
	defer release()

	report := func(p Presence) {
		if progress != nil {
			progress(p)
		}
	}

	wallet := s.client.Wallet()
	if wallet.IsZero() {
		return Confirmed(false), &Error{Kind: KindConnectivity, Op: op, Err: ErrNoSigner}
	}

	result, err := s.validator.Validate(ctx, code, wallet, password)
	if err != nil {
		return Confirmed(false), err
	}
	if !result.IsValid {
		return Confirmed(false), errorf(KindValidation, op, "room access denied")
	}
	if result.IsAlreadyParticipant {
		return Confirmed(true), nil
	}

	// Optimistic flip: visible immediately, reconciled on confirmation
	// or the next poll.
	report(Optimistic(true))

	switch strategy {
	case JoinSelfPaid:
		err = s.selfPaidJoin(ctx, op, code, password)
	case JoinSponsored:
		err = s.sponsoredJoin(ctx, op, code, password)
	default:
		err = errorf(KindValidation, op, "unknown join strategy %d", strategy)
	}
	if err != nil {
		report(Confirmed(false))
		return Confirmed(false), err
	}
	report(Confirmed(true))
	s.logger.Info("joined room", "room", code, "wallet", wallet, "strategy", strategy.String())
	return Confirmed(true), nil
}

func (s *RoomService) selfPaidJoin(ctx context.Context, op, code string, password *secret.Buffer) error {
	contract, err := s.client.Write()
	if err != nil {
		return err
	}
	material := ""
	if password != nil {
		material = password.String()
	}
	return s.submitAndWait(ctx, op, func() (ledger.PendingTx, error) {
		return contract.JoinRoom(ctx, code, material)
	})
}

func (s *RoomService) sponsoredJoin(ctx context.Context, op, code string, password *secret.Buffer) error {
	if s.relay == nil || s.signer == nil {
		return errorf(KindConnectivity, op, "sponsored joins are not configured")
	}
	_, err := s.relay.ExecuteJoin(ctx, code, password, s.signer)
	return err
}

// voteMemo is the client-local record of a cast ballot. Display-only:
// the ciphertext conceals the choice from the ledger, so this memo is
// the only place the choice can be recovered from.
type voteMemo struct {
	CandidateID uint32 `cbor:"candidate_id"`
	TxHash      string `cbor:"tx_hash"`
	VotedAt     int64  `cbor:"voted_at"`
}

// CastVote encrypts and submits a ballot. The encryption collaborator
// is invoked exactly once per attempt, bound to the contract and voter
// addresses. ctx aborts the operation only up to submission: once the
// ballot is submitted it cannot be withdrawn, so confirmation is
// awaited regardless of cancellation.
//
// A memo of a previously confirmed ballot rejects the attempt
// client-side before anything is encrypted or submitted.
func (s *RoomService) CastVote(ctx context.Context, code string, candidateID uint32, progress VoteProgress) error {
	const op = "voteroom.CastVote"
	release, err := s.beginMutation(op)
	if err != nil {
		return err
	}
	defer release()

	report := func(p VotePhase) {
		if progress != nil {
			progress(p)
		}
	}

	wallet := s.client.Wallet()
	if wallet.IsZero() {
		return &Error{Kind: KindConnectivity, Op: op, Err: ErrNoSigner}
	}
	contract, err := s.client.Write()
	if err != nil {
		return err
	}

	if _, ok, err := s.RememberedVote(ctx, code); err == nil && ok {
		return errorf(KindValidation, op, "a ballot was already cast in room %s from this wallet", code)
	}

	report(VoteEncrypting)
	input := s.encryptor.EncryptedInput(contract.Address(), wallet)
	input.Add(1)
	ciphertext, err := input.Encrypt(ctx)
	if err != nil {
		report(VoteFailed)
		return &Error{Kind: KindUnexpected, Op: op, Msg: "encrypting ballot", Err: err}
	}

	report(VoteSubmitting)
	tx, err := contract.Vote(ctx, code, candidateID, ciphertext.Handle, ciphertext.Proof)
	if err != nil {
		report(VoteFailed)
		return classify(op, err)
	}

	// Past this point the ballot is on the wire; cancellation can no
	// longer retract it, so the wait ignores ctx cancellation.
	report(VoteConfirming)
	receipt, err := tx.Wait(context.WithoutCancel(ctx))
	if err != nil {
		report(VoteFailed)
		return classify(op, err)
	}
	if receipt.Status != ledger.StatusSuccess {
		report(VoteFailed)
		return errorf(KindTransaction, op, "ballot transaction %s reverted", receipt.TxHash)
	}

	memo := voteMemo{
		CandidateID: candidateID,
		TxHash:      receipt.TxHash,
		VotedAt:     s.clock.Now().Unix(),
	}
	if err := s.putVoteMemo(ctx, code, wallet, memo); err != nil {
		// The ballot is confirmed; a memo write failure only loses the
		// local display of the chosen candidate.
		s.logger.Warn("persisting vote memo failed", "room", code, "error", err)
	}

	report(VoteVoted)
	s.logger.Info("ballot cast", "room", code, "wallet", wallet, "tx", receipt.TxHash)
	return nil
}

// VotingStatus reads the participant and vote flags in parallel, for
// reconciliation.
func (s *RoomService) VotingStatus(ctx context.Context, code string) (ledger.ParticipantStatus, error) {
	return s.directory.Status(ctx, code, s.client.Wallet())
}

// TotalVotes reads the aggregate ballot count. When the read fails, it
// falls back to an estimate of three quarters of the current
// participant count rather than failing; estimated reports which one
// the caller got.
func (s *RoomService) TotalVotes(ctx context.Context, code string) (total uint64, estimated bool, err error) {
	const op = "voteroom.TotalVotes"
	total, readErr := s.client.Read().GetTotalVotes(ctx, code)
	if readErr == nil {
		return total, false, nil
	}

	record, err := s.client.Read().GetRoom(ctx, code)
	if err != nil {
		return 0, false, classify(op, readErr)
	}
	s.logger.Warn("tally read failed, estimating from participant count", "room", code, "error", readErr)
	return uint64(record.ParticipantCount) * 3 / 4, true, nil
}

// RememberedVote returns the candidate id persisted for the connected
// wallet in the given room, if a ballot was cast from this client.
func (s *RoomService) RememberedVote(ctx context.Context, code string) (uint32, bool, error) {
	wallet := s.client.Wallet()
	if wallet.IsZero() {
		return 0, false, nil
	}
	key := votestore.DeriveKey(voteMemoNamespace, code, wallet)
	value, err := s.store.Get(ctx, key)
	if errors.Is(err, votestore.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &Error{Kind: KindUnexpected, Op: "voteroom.RememberedVote", Err: err}
	}
	var memo voteMemo
	if err := codec.Unmarshal(value, &memo); err != nil {
		return 0, false, &Error{Kind: KindUnexpected, Op: "voteroom.RememberedVote", Err: err}
	}
	return memo.CandidateID, true, nil
}

func (s *RoomService) putVoteMemo(ctx context.Context, code string, wallet ledger.Address, memo voteMemo) error {
	value, err := codec.Marshal(memo)
	if err != nil {
		return err
	}
	key := votestore.DeriveKey(voteMemoNamespace, code, wallet)
	return s.store.Put(context.WithoutCancel(ctx), key, value)
}

// beginMutation enforces the single in-flight mutation rule.
func (s *RoomService) beginMutation(op string) (release func(), err error) {
	if !s.inflight.CompareAndSwap(false, true) {
		return nil, errorf(KindValidation, op, "another transaction is already in flight")
	}
	return func() { s.inflight.Store(false) }, nil
}

// submitAndWait runs one submit, awaits one confirmation, and maps the
// receipt. Submission reverts classify as validation; a mined-but-
// reverted receipt is a transaction Error.
func (s *RoomService) submitAndWait(ctx context.Context, op string, submit func() (ledger.PendingTx, error)) error {
	tx, err := submit()
	if err != nil {
		if errors.Is(err, ledger.ErrNotSupported) {
			return err
		}
		return classify(op, err)
	}
	receipt, err := tx.Wait(ctx)
	if err != nil {
		return classify(op, err)
	}
	if receipt.Status != ledger.StatusSuccess {
		return errorf(KindTransaction, op, "transaction %s reverted", receipt.TxHash)
	}
	return nil
}
