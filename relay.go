// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package voteroom

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voteroom-foundation/voteroom/ledger"
	"github.com/voteroom-foundation/voteroom/lib/netutil"
	"github.com/voteroom-foundation/voteroom/lib/secret"
)

// Signer obtains wallet signatures for relay authorization payloads.
type Signer interface {
	// Address returns the wallet address the signature will verify
	// against.
	Address() ledger.Address

	// SignMessage signs an arbitrary message with the wallet key.
	// Implementations return ErrSignatureDeclined (possibly wrapped)
	// when the user refuses.
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// ErrSignatureDeclined is returned by signers when the user refuses to
// authorize the payload.
var ErrSignatureDeclined = errors.New("signature request declined")

// RelayConfig configures a RelayClient. URL is required.
type RelayConfig struct {
	// URL is the sponsor endpoint base, e.g. "https://relay.example.org".
	URL string

	// HTTPClient is used for requests. Nil means a client with a
	// 30-second timeout.
	HTTPClient *http.Client

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// RelayClient executes fee-sponsored joins. The relay covers the
// network fee; the user authorizes the join with a wallet signature
// instead of a self-funded transaction.
type RelayClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRelayClient validates the configuration and builds a client.
func NewRelayClient(cfg RelayConfig) (*RelayClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("voteroom: RelayConfig.URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RelayClient{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type relayJoinRequest struct {
	RoomCode    string `json:"roomCode"`
	Password    string `json:"password"`
	UserAddress string `json:"userAddress"`
	Signature   string `json:"signature"`
}

type relayJoinResponse struct {
	TransactionHash string `json:"transactionHash"`
	Error           string `json:"error"`
	Code            string `json:"code"`
}

// joinAuthorizationMessage is the payload the wallet signs. The room
// and wallet are bound into it so a captured signature cannot be
// replayed for another room or address.
func joinAuthorizationMessage(code string, wallet ledger.Address) []byte {
	return []byte(fmt.Sprintf("voteroom: join room %s as %s", code, wallet))
}

// ExecuteJoin authorizes and submits a sponsored join. Three failure
// classes, each with a distinct shape:
//   - user declined the signature: validation Error wrapping
//     ErrSignatureDeclined (terminal, user-recoverable);
//   - relay unreachable: connectivity Error (retryable);
//   - on-chain revert: validation Error wrapping the
//     *ledger.RevertError reported by the relay (terminal,
//     informative).
//
// On success it returns the relay-reported transaction hash.
func (r *RelayClient) ExecuteJoin(ctx context.Context, code string, password *secret.Buffer, signer Signer) (string, error) {
	const op = "voteroom.ExecuteJoin"

	signature, err := signer.SignMessage(ctx, joinAuthorizationMessage(code, signer.Address()))
	if err != nil {
		if errors.Is(err, ErrSignatureDeclined) {
			return "", &Error{Kind: KindValidation, Op: op, Msg: "join not authorized", Err: err}
		}
		return "", &Error{Kind: KindUnexpected, Op: op, Msg: "signing authorization", Err: err}
	}

	request := relayJoinRequest{
		RoomCode:    code,
		UserAddress: signer.Address().String(),
		Signature:   "0x" + hex.EncodeToString(signature),
	}
	if password != nil {
		request.Password = password.String()
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return "", &Error{Kind: KindUnexpected, Op: op, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/join", bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Kind: KindUnexpected, Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", &Error{Kind: KindConnectivity, Op: op, Msg: "relay unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var result relayJoinResponse
		if err := netutil.DecodeResponse(resp.Body, &result); err != nil {
			return "", &Error{Kind: KindUnexpected, Op: op, Msg: "decoding relay response", Err: err}
		}
		r.logger.Info("sponsored join submitted", "room", code, "tx", result.TransactionHash)
		return result.TransactionHash, nil
	}

	var result relayJoinResponse
	if err := netutil.DecodeResponse(resp.Body, &result); err == nil && result.Code != "" {
		revert := &ledger.RevertError{Code: result.Code, Message: result.Error}
		return "", &Error{Kind: KindValidation, Op: op, Err: revert}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return "", errorf(KindConnectivity, op, "relay returned status %d", resp.StatusCode)
	}
	return "", errorf(KindUnexpected, op, "relay returned status %d", resp.StatusCode)
}
