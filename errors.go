// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package voteroom

import (
	"context"
	"errors"
	"fmt"

	"github.com/voteroom-foundation/voteroom/ledger"
)

// Kind classifies an operation failure.
type Kind string

const (
	// KindConnectivity covers missing signer or provider and transport
	// failures. Retryable.
	KindConnectivity Kind = "connectivity"
	// KindValidation covers expected contract rejections: wrong
	// password, room full, already joined, already voted, room ended.
	// Non-fatal; the session stays usable.
	KindValidation Kind = "validation"
	// KindTransaction means the transaction was submitted but mined
	// with a failed receipt. Any optimistic flip must be rolled back.
	KindTransaction Kind = "transaction"
	// KindTimeout means a load or poll exceeded its bound.
	KindTimeout Kind = "timeout"
	// KindUnexpected covers everything else.
	KindUnexpected Kind = "unexpected"
)

// Error is the structured failure type for every engine operation.
// Callers branch on Kind via IsKind; Unwrap exposes the cause so
// errors.As still reaches a *ledger.RevertError underneath.
type Error struct {
	Kind Kind
	// Op names the failing operation, e.g. "voteroom.JoinRoom".
	Op  string
	Msg string
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is (or wraps) an *Error of the given
// kind.
func IsKind(err error, kind Kind) bool {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Kind == kind
	}
	return false
}

// ErrNoSigner is the cause inside the connectivity Error returned when
// a write is attempted without a signing wallet.
var ErrNoSigner = errors.New("no signing wallet connected")

// errorf builds an *Error with a formatted message.
func errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// classify wraps an error from a ledger call. Contract reverts are
// expected outcomes and classify as validation; deadline expiry as
// timeout; everything else reaching the ledger is a transport problem.
func classify(op string, err error) *Error {
	if revert := ledger.AsRevert(err); revert != nil {
		return &Error{Kind: KindValidation, Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindConnectivity, Op: op, Err: err}
}
