// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package voteroom

import (
	"fmt"
	"log/slog"

	"github.com/voteroom-foundation/voteroom/ledger"
)

// ClientConfig configures a Client. Reader is required; Contract is
// optional and enables the write path.
type ClientConfig struct {
	// Reader is the read-only contract surface.
	Reader ledger.Reader

	// Contract is the signer-bound contract surface. Nil means no
	// wallet is connected; reads still work.
	Contract ledger.Contract

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// Client produces read-only and signer-bound handles to the voting
// contract. It holds no state of its own and makes no network call at
// construction.
type Client struct {
	reader   ledger.Reader
	contract ledger.Contract
	logger   *slog.Logger
}

// NewClient validates the configuration and builds a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Reader == nil {
		return nil, fmt.Errorf("voteroom: ClientConfig.Reader is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		reader:   cfg.Reader,
		contract: cfg.Contract,
		logger:   logger,
	}, nil
}

// Read returns the read-only handle. Always available.
func (c *Client) Read() ledger.Reader { return c.reader }

// Write returns the signer-bound handle, or a connectivity Error when
// no wallet is connected.
func (c *Client) Write() (ledger.Contract, error) {
	if c.contract == nil {
		return nil, &Error{Kind: KindConnectivity, Op: "voteroom.Write", Err: ErrNoSigner}
	}
	return c.contract, nil
}

// Wallet returns the connected wallet address, or the zero Address
// when no wallet is connected.
func (c *Client) Wallet() ledger.Address {
	if c.contract == nil {
		return ""
	}
	return c.contract.Wallet()
}
