// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"errors"
	"fmt"
)

// RevertError is a structured contract revert. Callers use errors.As
// to extract the revert code:
//
//	var revert *ledger.RevertError
//	if errors.As(err, &revert) {
//	    if revert.Code == ledger.CodeRoomFull { ... }
//	}
type RevertError struct {
	// Code is the stable revert reason (e.g. "ROOM_FULL").
	Code string
	// Message is the human-readable reason from the contract.
	Message string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("ledger: revert %s: %s", e.Code, e.Message)
}

// Standard revert codes emitted by the voting contract.
const (
	CodeRoomExists       = "ROOM_EXISTS"
	CodeRoomNotFound     = "ROOM_NOT_FOUND"
	CodeRoomFull         = "ROOM_FULL"
	CodeRoomEnded        = "ROOM_ENDED"
	CodeWrongPassword    = "WRONG_PASSWORD"
	CodeAlreadyJoined    = "ALREADY_JOINED"
	CodeNotParticipant   = "NOT_PARTICIPANT"
	CodeAlreadyVoted     = "ALREADY_VOTED"
	CodeInvalidCandidate = "INVALID_CANDIDATE"
)

// IsRevert checks whether err is a *RevertError with the given code.
func IsRevert(err error, code string) bool {
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert.Code == code
	}
	return false
}

// AsRevert extracts a *RevertError from err, or nil.
func AsRevert(err error) *RevertError {
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert
	}
	return nil
}
